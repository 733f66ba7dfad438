package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentra-safety/sentra/internal/auth"
	"github.com/sentra-safety/sentra/internal/geofence"
	"github.com/sentra-safety/sentra/internal/location"
	"github.com/sentra-safety/sentra/internal/middleware"
)

// RegistryNoticePublisher adapts the stream registry to the geofence
// evaluator's notice interface, pushing informational crossings to live
// subscribers as geofence_notice frames.
type RegistryNoticePublisher struct {
	Registry *location.Registry
}

func (p RegistryNoticePublisher) PublishGeofenceNotice(ownerID string, event *geofence.Event) {
	p.Registry.FanoutNotice(ownerID, event)
}

// RouterConfig bundles everything the HTTP surface needs.
type RouterConfig struct {
	Locations *LocationHandlers
	Alerts    *AlertHandlers
	Geofences *GeofenceHandlers
	Contacts  *ContactHandlers
	Guardians *GuardianHandlers
	Stream    *StreamHandlers
	Health    *HealthHandlers

	JWT            *auth.JWTService
	Logger         *slog.Logger
	Metrics        *middleware.Metrics
	RateLimitStore middleware.RateLimitStore

	// Registry backs the /metrics endpoint. Optional; the endpoint is not
	// mounted when nil.
	Registry *prometheus.Registry

	// TracingServiceName enables the OpenTelemetry HTTP middleware when
	// non-empty.
	TracingServiceName string
}

// NewRouter builds the full route table with the middleware chain applied:
// RequestID -> Logging -> HTTPMetrics -> (per-group RateLimiter -> RequireAuth).
// Probe and metrics endpoints skip auth and rate limiting.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	requireAuth := auth.RequireAuth(cfg.JWT)
	limit := func(config middleware.RateLimitConfig) func(http.Handler) http.Handler {
		return middleware.RateLimiter(cfg.RateLimitStore, config, middleware.UserKeyFunc())
	}

	// protected wraps an authenticated handler with its rate limit tier.
	// Auth runs first so the limiter can key on the user id.
	protected := func(config middleware.RateLimitConfig, h http.HandlerFunc) http.Handler {
		return requireAuth(limit(config)(h))
	}

	ingest := middleware.DefaultIngestLimit()
	mutation := middleware.DefaultMutationLimit()
	global := middleware.DefaultGlobalLimit()

	// Telemetry
	mux.Handle("POST /locations", protected(ingest, cfg.Locations.SubmitLocation))
	mux.Handle("GET /locations", protected(global, cfg.Locations.ListLocations))

	// Live streaming. The limiter applies to the upgrade request only.
	mux.Handle("GET /ws", protected(global, cfg.Stream.Stream))

	// SOS alerts
	mux.Handle("POST /alerts", protected(mutation, cfg.Alerts.CreateAlert))
	mux.Handle("GET /alerts/{id}", protected(global, cfg.Alerts.GetAlert))
	mux.Handle("GET /alerts/{id}/notifications", protected(global, cfg.Alerts.ListAlertNotifications))
	mux.Handle("POST /alerts/{id}/acknowledge", protected(mutation, cfg.Alerts.AcknowledgeAlert))
	mux.Handle("POST /alerts/{id}/resolve", protected(mutation, cfg.Alerts.ResolveAlert))
	mux.Handle("POST /alerts/{id}/cancel", protected(mutation, cfg.Alerts.CancelAlert))

	// Geofences
	mux.Handle("POST /geofences", protected(mutation, cfg.Geofences.CreateGeofence))
	mux.Handle("GET /geofences", protected(global, cfg.Geofences.ListGeofences))
	mux.Handle("DELETE /geofences/{id}", protected(mutation, cfg.Geofences.DeleteGeofence))

	// Emergency contacts
	mux.Handle("POST /contacts", protected(mutation, cfg.Contacts.CreateContact))
	mux.Handle("GET /contacts", protected(global, cfg.Contacts.ListContacts))
	mux.Handle("DELETE /contacts/{id}", protected(mutation, cfg.Contacts.DeleteContact))

	// Guardian subscriptions
	mux.Handle("POST /guardians/subscriptions", protected(mutation, cfg.Guardians.CreateSubscription))
	mux.Handle("GET /guardians/subscriptions", protected(global, cfg.Guardians.ListSubscriptions))
	mux.Handle("DELETE /guardians/subscriptions/{ownerID}", protected(mutation, cfg.Guardians.DeleteSubscription))

	// Probes and metrics, unauthenticated
	mux.HandleFunc("GET /health", cfg.Health.Health)
	mux.HandleFunc("GET /ready", cfg.Health.Ready)
	if cfg.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	// Everything else is a structured 404.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
	})

	handler := middleware.HTTPMetrics(cfg.Metrics)(mux)
	handler = middleware.Logging(cfg.Logger)(handler)
	if cfg.TracingServiceName != "" {
		handler = middleware.Tracing(cfg.TracingServiceName)(handler)
	}
	return middleware.RequestID(handler)
}
