package models

import "time"

// Conversation is a durable channel between exactly two marketplace users
// (typically a buyer and a seller). Participants are stored with the lower
// id first so the pair is unique regardless of who started the conversation.
type Conversation struct {
	ID            int        `db:"id" json:"id"`
	User1ID       int        `db:"user1_id" json:"user1_id"`
	User2ID       int        `db:"user2_id" json:"user2_id"`
	LastMessage   *string    `db:"last_message" json:"last_message,omitempty"`
	LastMessageAt *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	UnreadUser1   int        `db:"unread_user1" json:"unread_user1"`
	UnreadUser2   int        `db:"unread_user2" json:"unread_user2"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// ConversationSummary is the viewer-relative view of a conversation backing
// the sidebar. The partner is computed from the viewer, never stored.
type ConversationSummary struct {
	ConversationID int        `json:"conversation_id"`
	PartnerID      int        `json:"partner_id"`
	PartnerName    string     `json:"partner_name,omitempty"`
	LastMessage    *string    `json:"last_message,omitempty"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	Unread         int        `json:"unread"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Identity describes an authenticated marketplace user.
type Identity struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}
