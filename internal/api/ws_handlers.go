package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sentra-safety/sentra/internal/guardian"
	"github.com/sentra-safety/sentra/internal/location"
	"github.com/sentra-safety/sentra/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict origins once the companion-app domains are fixed
		return true
	},
}

// Streaming protocol message types.
//
// Inbound:  location_update (device pushes a fix), subscribe_guardian
// (guardian attaches to an owner's stream).
// Outbound: location_update, sos_alert, geofence_notice frames produced by
// the registry, plus error frames for rejected inbound messages.
const (
	wsInboundLocationUpdate    = "location_update"
	wsInboundSubscribeGuardian = "subscribe_guardian"
	wsOutboundError            = "error"
	wsOutboundSubscribed       = "subscribed"
)

// StreamHandlers holds dependencies for the live streaming endpoint.
type StreamHandlers struct {
	gateway   *location.Gateway
	registry  *location.Registry
	guardians guardian.Repository
}

// NewStreamHandlers creates a new StreamHandlers instance.
func NewStreamHandlers(gateway *location.Gateway, registry *location.Registry, guardians guardian.Repository) *StreamHandlers {
	return &StreamHandlers{gateway: gateway, registry: registry, guardians: guardians}
}

// wsEnvelope is the inbound frame shape. location_update carries its fix
// under "location"; subscribe_guardian names the watched owner in "user_id".
type wsEnvelope struct {
	Type     string          `json:"type"`
	Location json.RawMessage `json:"location,omitempty"`
	UserID   string          `json:"user_id,omitempty"`
}

// wsClient is one live WebSocket connection. Writes are serialized through
// a mutex because each active subscription pumps frames from its own
// goroutine.
type wsClient struct {
	conn    *websocket.Conn
	userID  string
	logger  *slog.Logger
	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]*location.Subscriber // owner id -> subscription
}

func (c *wsClient) write(payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(payload)
}

func (c *wsClient) writeRaw(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *wsClient) writeError(code, message string) {
	if err := c.write(map[string]any{
		"type": wsOutboundError,
		"data": ErrorDetail{Code: code, Message: message},
	}); err != nil {
		c.logger.Debug("failed to write ws error frame", "error", err)
	}
}

// Stream handles GET /ws.
//
// The connection serves both roles of the streaming protocol: a device
// submits location_update frames for its own user, and a guardian sends
// subscribe_guardian to attach to an owner's live stream. Closing the
// connection tears every subscription down.
func (h *StreamHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(ctx, "failed to upgrade websocket connection", "error", err)
		return
	}

	client := &wsClient{
		conn:   conn,
		userID: userID,
		logger: slog.Default(),
		subs:   make(map[string]*location.Subscriber),
	}
	requestID := middleware.GetRequestID(ctx)
	slog.InfoContext(ctx, "websocket client connected", "user_id", userID, "request_id", requestID)

	defer func() {
		client.mu.Lock()
		subs := make([]*location.Subscriber, 0, len(client.subs))
		for _, sub := range client.subs {
			subs = append(subs, sub)
		}
		client.subs = nil
		client.mu.Unlock()

		for _, sub := range subs {
			h.registry.Unsubscribe(sub)
		}
		conn.Close()
		slog.InfoContext(ctx, "websocket client disconnected", "user_id", userID, "request_id", requestID)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.WarnContext(ctx, "websocket connection closed unexpectedly", "user_id", userID, "error", err)
			}
			return
		}

		var envelope wsEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			client.writeError(ErrCodeBadRequest, "Invalid JSON frame")
			continue
		}

		switch envelope.Type {
		case wsInboundLocationUpdate:
			h.handleLocationUpdate(r, client, envelope.Location)
		case wsInboundSubscribeGuardian:
			h.handleSubscribe(r, client, envelope.UserID)
		default:
			client.writeError(ErrCodeBadRequest, "Unknown message type: "+envelope.Type)
		}
	}
}

func (h *StreamHandlers) handleLocationUpdate(r *http.Request, client *wsClient, payload json.RawMessage) {
	if len(payload) == 0 {
		client.writeError(ErrCodeBadRequest, "location_update requires a location object")
		return
	}
	var req submitLocationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		client.writeError(ErrCodeBadRequest, "Invalid location_update payload")
		return
	}

	sample := &location.Sample{
		OwnerID:   client.userID,
		DeviceID:  req.DeviceID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Altitude:  req.Altitude,
		Accuracy:  req.Accuracy,
		Speed:     req.Speed,
		Heading:   req.Heading,
		Address:   req.Address,
		IsSOS:     req.IsSOS,
		IsHome:    req.IsHome,
		IsWork:    req.IsWork,
	}
	if req.CapturedAt != nil {
		sample.CapturedAt = *req.CapturedAt
	}

	if _, err := h.gateway.Submit(r.Context(), sample); err != nil {
		client.writeError(ErrCodeValidation, err.Error())
	}
}

func (h *StreamHandlers) handleSubscribe(r *http.Request, client *wsClient, ownerID string) {
	if ownerID == "" {
		client.writeError(ErrCodeBadRequest, "subscribe_guardian requires user_id")
		return
	}

	// Users may always watch their own stream; anyone else needs an
	// active guardian subscription with location sharing on.
	if ownerID != client.userID {
		sub, err := h.guardians.Get(r.Context(), client.userID, ownerID)
		if err != nil || !sub.NotifyLocation {
			client.writeError(ErrCodeForbidden, "Not authorized for this owner's stream")
			return
		}
	}

	client.mu.Lock()
	if client.subs == nil {
		client.mu.Unlock()
		return
	}
	if _, exists := client.subs[ownerID]; exists {
		client.mu.Unlock()
		client.writeError(ErrCodeConflict, "Already subscribed to this owner")
		return
	}
	sub := h.registry.Subscribe(client.userID, ownerID)
	client.subs[ownerID] = sub
	client.mu.Unlock()

	if err := client.write(map[string]any{
		"type": wsOutboundSubscribed,
		"data": map[string]string{"owner_id": ownerID},
	}); err != nil {
		client.logger.Debug("failed to write subscribed frame", "error", err)
	}

	// Pump registry frames until the subscription is torn down.
	go func() {
		for frame := range sub.C() {
			if err := client.writeRaw(frame); err != nil {
				client.logger.Debug("failed to write stream frame",
					"owner_id", ownerID, "viewer_id", client.userID, "error", err)
				return
			}
		}
	}()
}
