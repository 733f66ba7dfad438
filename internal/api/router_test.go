package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sentra-safety/sentra/internal/alert"
	"github.com/sentra-safety/sentra/internal/auth"
	"github.com/sentra-safety/sentra/internal/contact"
	"github.com/sentra-safety/sentra/internal/geofence"
	"github.com/sentra-safety/sentra/internal/guardian"
	"github.com/sentra-safety/sentra/internal/location"
	"github.com/sentra-safety/sentra/internal/middleware"
	"github.com/sentra-safety/sentra/internal/notify"
)

const testJWTSecret = "router-test-secret"

// newTestRouter assembles the full HTTP surface on in-memory repositories.
func newTestRouter(t *testing.T) (http.Handler, *auth.JWTService) {
	t.Helper()

	samples := location.NewInMemorySampleRepository()
	fences := geofence.NewInMemoryRepository()
	alerts := alert.NewInMemoryRepository()
	contacts := contact.NewInMemoryRepository()
	guardians := guardian.NewInMemoryRepository()
	notifications := notify.NewInMemoryRepository()

	registry := location.NewRegistry(nil, nil)
	alertService := alert.NewService(alerts, nil, registry, nil, nil)
	escalator := alert.NewGeofenceEscalator(alertService)
	evaluator := geofence.NewEvaluator(fences, escalator, RegistryNoticePublisher{Registry: registry}, nil, nil)
	gateway := location.NewGateway(samples, registry, evaluator, nil, nil)

	jwtService := auth.NewJWTService(testJWTSecret)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	promRegistry := prometheus.NewRegistry()
	metrics := middleware.NewMetrics()
	if err := metrics.Register(promRegistry); err != nil {
		t.Fatalf("failed to register metrics: %v", err)
	}

	router := NewRouter(RouterConfig{
		Locations:      NewLocationHandlers(gateway, samples),
		Alerts:         NewAlertHandlers(alertService, guardians, notifications),
		Geofences:      NewGeofenceHandlers(fences, evaluator),
		Contacts:       NewContactHandlers(contacts),
		Guardians:      NewGuardianHandlers(guardians),
		Stream:         NewStreamHandlers(gateway, registry, guardians),
		Health:         NewHealthHandlers(HealthHandlersConfig{}),
		JWT:            jwtService,
		Logger:         logger,
		Metrics:        metrics,
		RateLimitStore: middleware.NewInMemoryRateLimitStore(),
		Registry:       promRegistry,
	})
	return router, jwtService
}

func bearerToken(t *testing.T, svc *auth.JWTService, userID string) string {
	t.Helper()
	token, err := svc.IssueToken(userID, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func TestRouter_RequiresAuth(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/locations", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without token, got %d", w.Code)
	}
}

func TestRouter_SubmitLocationEndToEnd(t *testing.T) {
	router, jwtService := newTestRouter(t)
	token := bearerToken(t, jwtService, "user-1")

	body, _ := json.Marshal(map[string]any{"latitude": 28.6139, "longitude": 77.2090})
	req := httptest.NewRequest(http.MethodPost, "/locations", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	// The stored sample is visible on the list endpoint.
	req = httptest.NewRequest(http.MethodGet, "/locations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp struct {
		Samples []*location.Sample `json:"samples"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(resp.Samples))
	}
}

func TestRouter_AlertLifecycleEndToEnd(t *testing.T) {
	router, jwtService := newTestRouter(t)
	token := bearerToken(t, jwtService, "owner-1")

	req := httptest.NewRequest(http.MethodPost, "/alerts", bytes.NewReader([]byte(`{"message":"sos"}`)))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var created alert.Alert
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode alert: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/alerts/"+created.ID+"/resolve", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("resolve: expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resolved alert.Alert
	if err := json.NewDecoder(w.Body).Decode(&resolved); err != nil {
		t.Fatalf("failed to decode alert: %v", err)
	}
	if resolved.Status != alert.StatusResolved {
		t.Errorf("expected status RESOLVED, got %q", resolved.Status)
	}
	if resolved.ResponseTimeSeconds == nil {
		t.Error("expected response time to be stamped on resolve")
	}
}

func TestRouter_UnknownPathEnvelope(t *testing.T) {
	router, jwtService := newTestRouter(t)
	token := bearerToken(t, jwtService, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/no/such/route", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
	if code := decodeErrorCode(t, w.Body); code != ErrCodeNotFound {
		t.Errorf("expected error code %q, got %q", ErrCodeNotFound, code)
	}
}

func TestRouter_ProbesUnauthenticated(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected status 200 without token, got %d", path, w.Code)
		}
	}
}

func TestRouter_RateLimitExceeded(t *testing.T) {
	router, jwtService := newTestRouter(t)
	token := bearerToken(t, jwtService, "burst-user")

	limit := middleware.DefaultIngestLimit().RequestsPerWindow
	body := []byte(`{"latitude":10,"longitude":10}`)

	var last int
	for i := 0; i < limit+1; i++ {
		req := httptest.NewRequest(http.MethodPost, "/locations", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected status 429 after %d requests, got %d", limit+1, last)
	}
}
