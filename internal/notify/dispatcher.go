package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sentra-safety/sentra/internal/alert"
	"github.com/sentra-safety/sentra/internal/contact"
	"github.com/sentra-safety/sentra/internal/guardian"
	"github.com/sentra-safety/sentra/internal/tracing"
)

const (
	// DefaultWorkers bounds how many deliveries run concurrently per
	// dispatch call.
	DefaultWorkers = 8

	// DefaultAttemptTimeout bounds one provider call. An attempt that
	// exceeds it is recorded as FAILED; there is no automatic retry.
	DefaultAttemptTimeout = 10 * time.Second
)

// Recipient is a resolved delivery target with whatever channel addresses
// the person has.
type Recipient struct {
	Name      string
	Phone     string
	Email     string
	PushToken string
}

// UserDirectory resolves a user id to their contact details. Guardians are
// platform users, so their addresses live outside this service; the
// directory is the seam to wherever they do live.
type UserDirectory interface {
	Lookup(ctx context.Context, userID string) (*Recipient, error)
}

// delivery is one (recipient, channel) pair to attempt.
type delivery struct {
	channel Channel
	to      string
	toName  string
}

// Dispatcher resolves an alert's recipients and delivers the rendered
// message over every channel each recipient has enabled. Attempts run
// concurrently under a worker bound; each attempt gets its own timeout and
// its own audit record, and one channel failing never blocks the others.
type Dispatcher struct {
	contacts  contact.Repository
	guardians guardian.Repository
	directory UserDirectory
	repo      Repository
	templates *TemplateSet
	senders   map[Channel]Sender
	metrics   *Metrics
	logger    *slog.Logger

	workers        int
	attemptTimeout time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWorkers sets the delivery concurrency bound.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithAttemptTimeout sets the per-attempt timeout.
func WithAttemptTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.attemptTimeout = t
		}
	}
}

// NewDispatcher creates a dispatcher with the given channel senders. A
// channel nobody registered a sender for records its attempts as FAILED
// with a configuration reason.
func NewDispatcher(
	contacts contact.Repository,
	guardians guardian.Repository,
	directory UserDirectory,
	repo Repository,
	templates *TemplateSet,
	senders []Sender,
	metrics *Metrics,
	logger *slog.Logger,
	opts ...DispatcherOption,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if templates == nil {
		templates = DefaultTemplates()
	}
	byChannel := make(map[Channel]Sender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	d := &Dispatcher{
		contacts:       contacts,
		guardians:      guardians,
		directory:      directory,
		repo:           repo,
		templates:      templates,
		senders:        byChannel,
		metrics:        metrics,
		logger:         logger,
		workers:        DefaultWorkers,
		attemptTimeout: DefaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DispatchAlert delivers a newly created alert over every channel of every
// recipient.
func (d *Dispatcher) DispatchAlert(ctx context.Context, a *alert.Alert) {
	report := d.dispatch(ctx, a, templateForSource(a.Source), false)
	d.logReport(a, report)
}

// DispatchStatusChange informs recipients of a lifecycle transition.
// Acknowledgement stays internal (responders see it on the live stream);
// resolution and cancellation go out to everyone except over voice, since
// calling someone to say an emergency is over would itself alarm them.
func (d *Dispatcher) DispatchStatusChange(ctx context.Context, a *alert.Alert, previous alert.Status) {
	var tt TemplateType
	switch a.Status {
	case alert.StatusResolved:
		tt = TemplateSOSResolved
	case alert.StatusCancelled:
		tt = TemplateSOSCancelled
	default:
		return
	}
	report := d.dispatch(ctx, a, tt, true)
	d.logReport(a, report)
}

func (d *Dispatcher) logReport(a *alert.Alert, report *DispatchReport) {
	d.logger.Info("notification dispatch finished",
		"alert_id", a.ID,
		"owner_id", a.OwnerID,
		"attempted", report.Attempted,
		"sent", report.Sent,
		"failed", report.Failed,
		"duration_ms", report.Duration.Milliseconds(),
	)
}

func (d *Dispatcher) dispatch(ctx context.Context, a *alert.Alert, tt TemplateType, skipCalls bool) *DispatchReport {
	ctx, endSpan := tracing.StartSpan(ctx, "dispatch_notifications")
	defer endSpan(nil)
	tracing.SetAttributes(ctx,
		attribute.String("alert_id", a.ID),
		attribute.String("template", string(tt)),
	)

	start := time.Now()
	report := &DispatchReport{AlertID: a.ID, ByChannel: make(map[Channel]int)}

	deliveries := d.resolveDeliveries(ctx, a, skipCalls)
	if len(deliveries) == 0 {
		d.logger.Warn("alert has no reachable recipients", "alert_id", a.ID, "owner_id", a.OwnerID)
		report.Duration = time.Since(start)
		return report
	}

	subject, body, renderErr := d.render(ctx, a, tt)

	var mu sync.Mutex
	sem := make(chan struct{}, d.workers)
	var wg sync.WaitGroup

	for _, del := range deliveries {
		wg.Add(1)
		sem <- struct{}{}
		go func(del delivery) {
			defer wg.Done()
			defer func() { <-sem }()

			status := d.attempt(ctx, a.ID, del, subject, body, renderErr)

			mu.Lock()
			report.Attempted++
			report.ByChannel[del.channel]++
			if status == StatusSent {
				report.Sent++
			} else {
				report.Failed++
			}
			mu.Unlock()
		}(del)
	}
	wg.Wait()

	report.Duration = time.Since(start)
	return report
}

// attempt writes the PENDING audit record, tries the channel sender, and
// resolves the record to SENT or FAILED. Returns the final status.
func (d *Dispatcher) attempt(ctx context.Context, alertID string, del delivery, subject, body string, renderErr error) Status {
	record := &Notification{
		AlertID:       alertID,
		Channel:       del.channel,
		Status:        StatusPending,
		Recipient:     del.to,
		RecipientName: del.toName,
		Subject:       subject,
		Body:          body,
	}
	if err := d.repo.Insert(ctx, record); err != nil {
		d.logger.Error("failed to write notification record",
			"alert_id", alertID, "channel", del.channel, "error", err)
		return StatusFailed
	}

	attemptStart := time.Now()
	externalID, err := d.send(ctx, del, subject, body, renderErr)
	d.metrics.ObserveDeliveryDuration(string(del.channel), time.Since(attemptStart))

	now := time.Now()
	if err != nil {
		reason := err.Error()
		record.Status = StatusFailed
		record.FailureReason = &reason
		d.logger.Warn("notification delivery failed",
			"alert_id", alertID,
			"channel", del.channel,
			"recipient_name", del.toName,
			"error", err,
		)
	} else {
		record.Status = StatusSent
		record.SentAt = &now
		if externalID != "" {
			record.ExternalID = &externalID
		}
	}
	d.metrics.RecordAttempt(string(del.channel), string(record.Status))

	if err := d.repo.Update(ctx, record); err != nil {
		d.logger.Error("failed to resolve notification record",
			"alert_id", alertID, "notification_id", record.ID, "error", err)
	}
	return record.Status
}

func (d *Dispatcher) send(ctx context.Context, del delivery, subject, body string, renderErr error) (string, error) {
	if renderErr != nil {
		return "", fmt.Errorf("template render failed: %w", renderErr)
	}
	sender, ok := d.senders[del.channel]
	if !ok {
		return "", fmt.Errorf("no sender configured for channel %s", del.channel)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
	defer cancel()

	type result struct {
		externalID string
		err        error
	}
	done := make(chan result, 1)
	go func() {
		id, err := sender.Send(attemptCtx, &Message{
			To:      del.to,
			ToName:  del.toName,
			Subject: subject,
			Body:    body,
		})
		done <- result{externalID: id, err: err}
	}()

	select {
	case res := <-done:
		return res.externalID, res.err
	case <-attemptCtx.Done():
		return "", fmt.Errorf("delivery timed out after %s: %w", d.attemptTimeout, attemptCtx.Err())
	}
}

// resolveDeliveries expands the owner's emergency contacts and guardians
// into (recipient, channel) pairs. Contacts come first, primary-ordered;
// guardians get SMS, email, and push for whatever addresses they have, but
// never voice calls.
func (d *Dispatcher) resolveDeliveries(ctx context.Context, a *alert.Alert, skipCalls bool) []delivery {
	var out []delivery

	contacts, err := d.contacts.ListActiveByOwner(ctx, a.OwnerID)
	if err != nil {
		d.logger.Error("failed to load emergency contacts", "owner_id", a.OwnerID, "error", err)
	}
	for _, c := range contacts {
		if c.NotifySMS && c.Phone != nil {
			out = append(out, delivery{channel: ChannelSMS, to: *c.Phone, toName: c.Name})
		}
		if c.NotifyEmail && c.Email != nil {
			out = append(out, delivery{channel: ChannelEmail, to: *c.Email, toName: c.Name})
		}
		if c.NotifyCall && !skipCalls && c.Phone != nil {
			out = append(out, delivery{channel: ChannelCall, to: *c.Phone, toName: c.Name})
		}
		if c.NotifyPush && c.PushToken != nil {
			out = append(out, delivery{channel: ChannelPush, to: *c.PushToken, toName: c.Name})
		}
	}

	subs, err := d.guardians.ListByOwner(ctx, a.OwnerID)
	if err != nil {
		d.logger.Error("failed to load guardian subscriptions", "owner_id", a.OwnerID, "error", err)
	}
	for _, sub := range subs {
		if !sub.NotifySOS {
			continue
		}
		if d.directory == nil {
			continue
		}
		rec, err := d.directory.Lookup(ctx, sub.GuardianID)
		if err != nil {
			d.logger.Warn("failed to resolve guardian",
				"guardian_id", sub.GuardianID, "owner_id", a.OwnerID, "error", err)
			continue
		}
		if rec.Phone != "" {
			out = append(out, delivery{channel: ChannelSMS, to: rec.Phone, toName: rec.Name})
		}
		if rec.Email != "" {
			out = append(out, delivery{channel: ChannelEmail, to: rec.Email, toName: rec.Name})
		}
		if rec.PushToken != "" {
			out = append(out, delivery{channel: ChannelPush, to: rec.PushToken, toName: rec.Name})
		}
	}
	return out
}

// render produces the message for this alert. The context is the same for
// every recipient, so rendering happens once per dispatch; a render failure
// fails every attempt with the same reason.
func (d *Dispatcher) render(ctx context.Context, a *alert.Alert, tt TemplateType) (string, string, error) {
	tpl, err := d.templates.Get(tt)
	if err != nil {
		return "", "", err
	}
	return tpl.Render(map[string]string{
		"owner_name": d.ownerName(ctx, a.OwnerID),
		"timestamp":  a.CreatedAt.Format(time.RFC1123),
		"location":   describeLocation(a),
		"message":    messageOrDefault(a.Message),
		"priority":   string(a.Priority),
	})
}

func (d *Dispatcher) ownerName(ctx context.Context, ownerID string) string {
	if d.directory != nil {
		if rec, err := d.directory.Lookup(ctx, ownerID); err == nil && rec.Name != "" {
			return rec.Name
		}
	}
	return "the device owner"
}

func describeLocation(a *alert.Alert) string {
	if a.Address != nil && *a.Address != "" {
		return *a.Address
	}
	if a.Latitude != nil && a.Longitude != nil {
		return fmt.Sprintf("https://maps.google.com/?q=%f,%f", *a.Latitude, *a.Longitude)
	}
	return "unknown"
}

func messageOrDefault(msg string) string {
	if msg == "" {
		return "(no message)"
	}
	return msg
}

func templateForSource(source alert.Source) TemplateType {
	switch source {
	case alert.SourceGeofenceEntry:
		return TemplateGeofenceEntry
	case alert.SourceGeofenceExit:
		return TemplateGeofenceExit
	default:
		return TemplateSOSAlert
	}
}
