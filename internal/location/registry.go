package location

import (
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

// Stream message types exchanged with live-map and guardian clients.
const (
	StreamTypeLocationUpdate = "location_update"
	StreamTypeSOSAlert       = "sos_alert"
	StreamTypeGeofenceNotice = "geofence_notice"
)

// registryShards is the number of independent shard locks in a Registry.
// Sharding keeps connect/disconnect churn for one owner from serializing
// fan-out for unrelated owners.
const registryShards = 16

// subscriberBuffer is the per-subscriber frame buffer. A subscriber that
// cannot drain this many frames is considered slow and further frames are
// dropped for it rather than blocking the ingest path.
const subscriberBuffer = 32

// StreamMessage is the envelope for all server-to-client stream frames.
type StreamMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Subscriber is a live handle onto one owner's stream. The WebSocket layer
// owns the read side; the registry owns the write side.
type Subscriber struct {
	ViewerID string
	OwnerID  string

	ch     chan []byte
	closed bool
	mu     sync.Mutex
}

// C returns the channel of serialized frames for this subscriber.
func (s *Subscriber) C() <-chan []byte {
	return s.ch
}

// send enqueues a frame without blocking. Returns false if the frame was
// dropped because the subscriber is slow or already closed.
func (s *Subscriber) send(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- frame:
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Registry tracks which viewers are subscribed to each owner's live stream
// and fans events out to them. Delivery is at-most-once per subscriber per
// event and never blocks the caller beyond a channel enqueue.
type Registry struct {
	shards  [registryShards]registryShard
	metrics *Metrics
	logger  *slog.Logger
}

type registryShard struct {
	mu     sync.RWMutex
	owners map[string]map[*Subscriber]struct{}
}

// NewRegistry creates a new subscription registry.
func NewRegistry(metrics *Metrics, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{metrics: metrics, logger: logger}
	for i := range r.shards {
		r.shards[i].owners = make(map[string]map[*Subscriber]struct{})
	}
	return r
}

func (r *Registry) shard(ownerID string) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(ownerID))
	return &r.shards[h.Sum32()%registryShards]
}

// Subscribe registers a viewer on an owner's stream and returns the
// subscriber handle. The caller must eventually Unsubscribe the handle;
// the WebSocket layer does this in a defer so a dropped connection always
// cleans up its entries.
func (r *Registry) Subscribe(viewerID, ownerID string) *Subscriber {
	sub := &Subscriber{
		ViewerID: viewerID,
		OwnerID:  ownerID,
		ch:       make(chan []byte, subscriberBuffer),
	}

	shard := r.shard(ownerID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if shard.owners[ownerID] == nil {
		shard.owners[ownerID] = make(map[*Subscriber]struct{})
	}
	shard.owners[ownerID][sub] = struct{}{}

	if r.metrics != nil {
		r.metrics.RecordSubscribe()
	}
	return sub
}

// Unsubscribe removes a subscriber and closes its frame channel.
func (r *Registry) Unsubscribe(sub *Subscriber) {
	shard := r.shard(sub.OwnerID)
	shard.mu.Lock()
	if subs, ok := shard.owners[sub.OwnerID]; ok {
		if _, present := subs[sub]; present {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(shard.owners, sub.OwnerID)
			}
			if r.metrics != nil {
				r.metrics.RecordUnsubscribe()
			}
		}
	}
	shard.mu.Unlock()

	sub.close()
}

// SubscriberCount returns the number of live subscribers for an owner.
func (r *Registry) SubscriberCount(ownerID string) int {
	shard := r.shard(ownerID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	return len(shard.owners[ownerID])
}

// FanoutSample delivers a location sample to every subscriber of the owner.
func (r *Registry) FanoutSample(ownerID string, sample *Sample) {
	r.fanout(ownerID, StreamTypeLocationUpdate, sample)
}

// FanoutAlert delivers an SOS alert frame to every subscriber of the owner.
// The payload is whatever the alert layer considers canonical; the registry
// does not inspect it.
func (r *Registry) FanoutAlert(ownerID string, alert any) {
	r.fanout(ownerID, StreamTypeSOSAlert, alert)
}

// FanoutNotice delivers an informational notice (e.g. HOME entry) to every
// subscriber of the owner.
func (r *Registry) FanoutNotice(ownerID string, data any) {
	r.fanout(ownerID, StreamTypeGeofenceNotice, data)
}

func (r *Registry) fanout(ownerID, msgType string, data any) {
	shard := r.shard(ownerID)

	shard.mu.RLock()
	subs := shard.owners[ownerID]
	if len(subs) == 0 {
		shard.mu.RUnlock()
		return
	}
	// Snapshot so the channel sends happen outside the shard lock.
	targets := make([]*Subscriber, 0, len(subs))
	for sub := range subs {
		targets = append(targets, sub)
	}
	shard.mu.RUnlock()

	// Serialize once per event
	frame, err := json.Marshal(StreamMessage{Type: msgType, Data: data})
	if err != nil {
		r.logger.Error("failed to marshal stream frame", "type", msgType, "owner_id", ownerID, "error", err)
		return
	}

	start := time.Now()
	for _, sub := range targets {
		if sub.send(frame) {
			if r.metrics != nil {
				r.metrics.RecordFanoutDelivered(msgType)
			}
		} else {
			if r.metrics != nil {
				r.metrics.RecordFanoutDropped(msgType)
			}
			r.logger.Warn("dropped stream frame for slow subscriber",
				"type", msgType,
				"owner_id", ownerID,
				"viewer_id", sub.ViewerID,
			)
		}
	}
	if r.metrics != nil {
		r.metrics.ObserveFanoutDuration(time.Since(start))
	}
}
