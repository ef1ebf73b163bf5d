package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marketplace-messaging/internal/models"
	"marketplace-messaging/internal/observability"
)

// Hub maintains active websocket connections keyed by user. Message events
// are only written to their two participants' connections, never to a shared
// broadcast channel.
type Hub struct {
	users    map[int]map[*websocket.Conn]bool
	connInfo map[int]map[*websocket.Conn]ConnInfo
	mu       sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		users:    make(map[int]map[*websocket.Conn]bool),
		connInfo: make(map[int]map[*websocket.Conn]ConnInfo),
	}
}

// Register adds a websocket connection for a user.
func (h *Hub) Register(userID int, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.users[userID]; !ok {
		h.users[userID] = make(map[*websocket.Conn]bool)
	}
	h.users[userID][conn] = true
	if _, ok := h.connInfo[userID]; !ok {
		h.connInfo[userID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.connInfo[userID][conn] = info
}

// Unregister removes a user's websocket connection.
func (h *Hub) Unregister(userID int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.users[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.users, userID)
		}
	}
	if infos, ok := h.connInfo[userID]; ok {
		delete(infos, conn)
		if len(infos) == 0 {
			delete(h.connInfo, userID)
		}
	}
}

// BroadcastToUsers delivers a message event to every connection of the given
// users. The sender receives its own echo so all of its open tabs converge.
func (h *Hub) BroadcastToUsers(userIDs []int, msg models.Message) {
	event := models.MessageEvent{Type: "message", Message: &msg}
	payload, _ := json.Marshal(event)

	for _, userID := range userIDs {
		h.mu.RLock()
		conns := make([]*websocket.Conn, 0, len(h.users[userID]))
		for conn := range h.users[userID] {
			conns = append(conns, conn)
		}
		h.mu.RUnlock()

		for _, conn := range conns {
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("websocket write error: %v", err)
				conn.Close()
				h.Unregister(userID, conn)
				h.publishWSError(userID, conn, err)
			}
		}
	}
}

func (h *Hub) publishWSError(userID int, conn *websocket.Conn, err error) {
	info, ok := h.getConnInfo(userID, conn)
	if !ok {
		return
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"user_id":     userID,
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("ws_error")
}

func (h *Hub) getConnInfo(userID int, conn *websocket.Conn) (ConnInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if infos, ok := h.connInfo[userID]; ok {
		info, exists := infos[conn]
		return info, exists
	}
	return ConnInfo{}, false
}

const wsRoutingKey = "ws_events.messages"
