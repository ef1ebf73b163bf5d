package client

import (
	"context"
	"errors"
	"strings"
	"time"

	"marketplace-messaging/internal/models"
)

var ErrEmptyMessage = errors.New("message content is empty")

// transport is the slice of Conn the send path uses.
type transport interface {
	State() ConnState
	Send(v any) error
}

// Sender delivers outbound messages: over the live websocket when connected,
// over REST otherwise. Exactly one of the two paths runs per attempt.
type Sender struct {
	conn      transport
	api       restAPI
	store     *MessageStore
	directory *Directory
	timeout   time.Duration
}

// NewSender builds a Sender. timeout bounds the REST fallback call.
func NewSender(conn transport, api restAPI, store *MessageStore, directory *Directory, timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sender{conn: conn, api: api, store: store, directory: directory, timeout: timeout}
}

// Send delivers one message. Empty content (after trimming) is rejected
// before any network traffic. On the transport path the call returns as soon
// as the frame is written; the server echo, routed through the dispatcher,
// lands the message in the store. On the REST path the response is appended
// directly, since no echo arrives on a transport the client is not holding.
// On error nothing is recorded locally, so the caller can retry with the
// same content.
func (s *Sender) Send(ctx context.Context, conversationID int, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}

	if s.conn.State() == StateConnected {
		return s.conn.Send(models.OutboundMessage{
			ConversationID: conversationID,
			Content:        content,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg, err := s.api.SendMessage(ctx, conversationID, content)
	if err != nil {
		return err
	}

	s.store.Append(msg)
	s.directory.ApplyIncomingPreview(msg.ConversationID, msg.Content, msg.CreatedAt, false)
	return nil
}
