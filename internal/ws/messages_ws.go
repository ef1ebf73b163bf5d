package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"marketplace-messaging/internal/auth"
	"marketplace-messaging/internal/models"
	"marketplace-messaging/internal/observability"
	"marketplace-messaging/internal/repositories"
)

// MessageWebSocketHandler owns the per-user websocket sessions. Inbound
// frames are message sends; outbound frames are message events for
// conversations the user participates in.
type MessageWebSocketHandler struct {
	hub              *Hub
	conversationRepo repositories.ConversationRepository
	messageRepo      repositories.MessageRepository
	verifier         auth.Verifier
}

// NewMessageWebSocketHandler constructs a MessageWebSocketHandler.
func NewMessageWebSocketHandler(hub *Hub, conversationRepo repositories.ConversationRepository, messageRepo repositories.MessageRepository, verifier auth.Verifier) *MessageWebSocketHandler {
	return &MessageWebSocketHandler{
		hub:              hub,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		verifier:         verifier,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, registers the client under its user id and
// serves the read loop.
func (h *MessageWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace-messaging/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		if q := c.Query("token"); q != "" {
			token = "Bearer " + q
		}
	}

	identity, err := h.validateToken(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := trace.SpanContextFromContext(ctx).TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      identity.ID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	h.hub.Register(identity.ID, conn, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   wsEventPayload(identity.ID, "ws_connect", info, 0, ""),
	}, observability.BuildHeaders(requestID, traceID))

	go h.readLoop(ctx, identity.ID, conn, info, requestID, traceID)
}

// readLoop consumes send frames until the connection closes. Malformed frames
// are dropped; they never terminate the loop.
func (h *MessageWebSocketHandler) readLoop(ctx context.Context, userID int, conn *websocket.Conn, info ConnInfo, requestID, traceID string) {
	var closeReason string
	defer func() {
		h.hub.Unregister(userID, conn)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "ws_disconnect",
			Payload:   wsEventPayload(userID, "ws_disconnect", info, time.Since(info.ConnectedAt).Milliseconds(), closeReason),
		}, observability.BuildHeaders(requestID, traceID))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
					EventType: "ws_events",
					EventName: "ws_error",
					Payload:   wsEventPayload(userID, "ws_error", info, time.Since(info.ConnectedAt).Milliseconds(), closeReason),
				}, observability.BuildHeaders(requestID, traceID))
			}
			return
		}

		h.handleSendFrame(ctx, userID, data)
	}
}

// handleSendFrame persists an inbound send and broadcasts the stored message
// to both participants.
func (h *MessageWebSocketHandler) handleSendFrame(ctx context.Context, userID int, data []byte) {
	var out models.OutboundMessage
	if err := json.Unmarshal(data, &out); err != nil {
		log.Printf("dropping malformed ws frame from user %d: %v", userID, err)
		return
	}

	out.Content = strings.TrimSpace(out.Content)
	if out.ConversationID == 0 || out.Content == "" {
		log.Printf("dropping invalid ws send from user %d: conversation_id=%d", userID, out.ConversationID)
		return
	}

	conv, err := h.conversationRepo.Get(ctx, out.ConversationID)
	if err != nil {
		log.Printf("ws send rejected: %v", err)
		return
	}
	if conv.User1ID != userID && conv.User2ID != userID {
		log.Printf("ws send rejected: user %d not in conversation %d", userID, out.ConversationID)
		return
	}

	msg, err := h.messageRepo.Create(ctx, out.ConversationID, userID, out.Content)
	if err != nil {
		log.Printf("ws send failed to store message: %v", err)
		return
	}

	h.hub.BroadcastToUsers([]int{conv.User1ID, conv.User2ID}, msg)
}

func (h *MessageWebSocketHandler) validateToken(ctx context.Context, header string) (models.Identity, error) {
	parts := strings.Split(header, " ")
	if len(parts) == 2 {
		return h.verifier.Verify(ctx, parts[1])
	}
	return models.Identity{}, errInvalidToken
}

func wsEventPayload(userID int, event string, info ConnInfo, durationMS int64, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"user_id":     userID,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": durationMS,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}
