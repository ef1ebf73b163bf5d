package models

import "time"

// Message is one entry in a conversation. CreatedAt is the sole ordering key.
type Message struct {
	ID             int       `db:"id" json:"id"`
	ConversationID int       `db:"conversation_id" json:"conversation_id"`
	SenderID       int       `db:"sender_id" json:"sender_id"`
	Content        string    `db:"content" json:"content"`
	IsRead         bool      `db:"is_read" json:"is_read"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// MessageEvent is broadcasted through websockets.
type MessageEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
}

// OutboundMessage is the frame a client writes on its websocket to send a
// message. The sender is taken from the authenticated connection, not the
// frame, so a client cannot impersonate another user.
type OutboundMessage struct {
	ConversationID int    `json:"conversation_id"`
	Content        string `json:"content"`
}
