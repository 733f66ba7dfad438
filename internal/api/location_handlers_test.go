package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sentra-safety/sentra/internal/location"
)

func newTestLocationHandlers() (*LocationHandlers, *location.Registry) {
	repo := location.NewInMemorySampleRepository()
	registry := location.NewRegistry(nil, nil)
	gateway := location.NewGateway(repo, registry, nil, nil, nil)
	return NewLocationHandlers(gateway, repo), registry
}

func TestSubmitLocation_Success(t *testing.T) {
	handlers, _ := newTestLocationHandlers()

	body, _ := json.Marshal(map[string]any{
		"latitude":  28.613912345,
		"longitude": 77.209021,
		"is_sos":    false,
	})
	req := authedRequest(http.MethodPost, "/locations", "user-1", body)
	w := httptest.NewRecorder()
	handlers.SubmitLocation(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var result location.Sample
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.OwnerID != "user-1" {
		t.Errorf("expected owner_id 'user-1', got %q", result.OwnerID)
	}
	// Coordinates are normalized to 6 decimal places on the way in.
	if result.Latitude != 28.613912 {
		t.Errorf("expected normalized latitude 28.613912, got %v", result.Latitude)
	}
	if result.ID == "" {
		t.Error("expected a generated sample id")
	}
}

func TestSubmitLocation_InvalidLatitude(t *testing.T) {
	handlers, _ := newTestLocationHandlers()

	body, _ := json.Marshal(map[string]any{"latitude": 91.0, "longitude": 10.0})
	req := authedRequest(http.MethodPost, "/locations", "user-1", body)
	w := httptest.NewRecorder()
	handlers.SubmitLocation(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
	if code := decodeErrorCode(t, w.Body); code != ErrCodeValidation {
		t.Errorf("expected error code %q, got %q", ErrCodeValidation, code)
	}
}

func TestSubmitLocation_MalformedBody(t *testing.T) {
	handlers, _ := newTestLocationHandlers()

	req := authedRequest(http.MethodPost, "/locations", "user-1", []byte(`{not json`))
	w := httptest.NewRecorder()
	handlers.SubmitLocation(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
	if code := decodeErrorCode(t, w.Body); code != ErrCodeBadRequest {
		t.Errorf("expected error code %q, got %q", ErrCodeBadRequest, code)
	}
}

func TestListLocations_NewestFirst(t *testing.T) {
	handlers, _ := newTestLocationHandlers()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, lng := range []float64{10.0, 11.0, 12.0} {
		body, _ := json.Marshal(map[string]any{
			"latitude":    50.0,
			"longitude":   lng,
			"captured_at": base.Add(time.Duration(i) * time.Minute),
		})
		w := httptest.NewRecorder()
		handlers.SubmitLocation(w, authedRequest(http.MethodPost, "/locations", "user-1", body))
		if w.Code != http.StatusCreated {
			t.Fatalf("failed to submit sample: %d", w.Code)
		}
	}

	req := authedRequest(http.MethodGet, "/locations?limit=2", "user-1", nil)
	w := httptest.NewRecorder()
	handlers.ListLocations(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp struct {
		Samples []*location.Sample `json:"samples"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(resp.Samples))
	}
	if resp.Samples[0].Longitude != 12.0 {
		t.Errorf("expected newest sample first, got longitude %v", resp.Samples[0].Longitude)
	}
}

func TestListLocations_LimitBounds(t *testing.T) {
	handlers, _ := newTestLocationHandlers()

	for _, raw := range []string{"0", "501", "abc", "-1"} {
		req := authedRequest(http.MethodGet, "/locations?limit="+raw, "user-1", nil)
		w := httptest.NewRecorder()
		handlers.ListLocations(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit %q: expected status 400, got %d", raw, w.Code)
		}
	}
}
