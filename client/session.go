package client

import (
	"context"
	"fmt"
	"log"
	"time"

	"marketplace-messaging/internal/models"
)

// Config configures a messaging session for one authenticated user.
type Config struct {
	BaseURL     string
	WSURL       string
	Token       string
	Identity    models.Identity
	SendTimeout time.Duration
}

// Session is the messaging client a dashboard embeds: one transport
// connection, one message store, one conversation directory and one send
// path, all fed by a single dispatcher. The session is a read-through cache
// of server state; it never holds authoritative data.
type Session struct {
	identity   models.Identity
	api        restAPI
	conn       *Conn
	store      *MessageStore
	directory  *Directory
	dispatcher *Dispatcher
	sender     *Sender
}

// NewSession wires up a session from the configuration.
func NewSession(cfg Config) *Session {
	s := &Session{
		identity:  cfg.Identity,
		api:       NewAPI(cfg.BaseURL, cfg.Token),
		store:     NewMessageStore(),
		directory: NewDirectory(),
	}
	s.dispatcher = NewDispatcher(cfg.Identity.ID, s.store, s.directory, s.refreshAsync)
	s.conn = NewConn(cfg.WSURL, cfg.Token, s.dispatcher.HandleFrame)
	s.sender = NewSender(s.conn, s.api, s.store, s.directory, cfg.SendTimeout)
	return s
}

// Start loads the directory and opens the transport connection. A transport
// failure is downgraded to a warning: messaging still works through the REST
// fallback, so the UI must not be blocked on it.
func (s *Session) Start(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil {
		return err
	}
	if err := s.conn.Connect(ctx); err != nil {
		log.Printf("transport unavailable, messages will fall back to REST: %v", err)
	}
	return nil
}

// Refresh refetches the full conversation set. On failure the directory
// keeps its last-known-good contents and the error is returned for a retry
// affordance.
func (s *Session) Refresh(ctx context.Context) error {
	summaries, err := s.api.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("refresh directory: %w", err)
	}
	s.directory.Replace(summaries)
	return nil
}

// refreshAsync is handed to the dispatcher so an event for an unknown
// conversation can trigger a refresh without blocking the dispatch loop.
func (s *Session) refreshAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.Refresh(ctx); err != nil {
			log.Printf("directory refresh failed: %v", err)
		}
	}()
}

// OpenConversation makes the conversation the open one and loads its
// messages. The unread counter is zeroed locally right away; the mark-read
// REST call runs in the background. Opening another conversation while the
// load is in flight supersedes it: the late snapshot is discarded and
// OpenConversation returns nil messages for the superseded call.
func (s *Session) OpenConversation(ctx context.Context, conversationID int) ([]models.Message, error) {
	seq := s.store.Open(conversationID)
	s.directory.SetOpen(conversationID)
	s.directory.MarkRead(conversationID)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.api.MarkRead(ctx, conversationID); err != nil {
			log.Printf("mark read failed for conversation %d: %v", conversationID, err)
		}
	}()

	msgs, err := s.api.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation %d: %w", conversationID, err)
	}
	if !s.store.LoadResult(seq, msgs) {
		return nil, nil
	}
	return s.store.Messages(), nil
}

// StartConversation starts (or resumes) a conversation with the partner and
// refreshes the directory so the entry is present.
func (s *Session) StartConversation(ctx context.Context, partnerID int) (int, error) {
	conversationID, err := s.api.StartConversation(ctx, partnerID)
	if err != nil {
		return 0, err
	}
	if err := s.Refresh(ctx); err != nil {
		log.Printf("directory refresh after start failed: %v", err)
	}
	return conversationID, nil
}

// Send delivers one outbound message through the send path.
func (s *Session) Send(ctx context.Context, conversationID int, content string) error {
	return s.sender.Send(ctx, conversationID, content)
}

// Messages returns the open conversation's messages.
func (s *Session) Messages() []models.Message {
	return s.store.Messages()
}

// Conversations returns the directory sorted by recency.
func (s *Session) Conversations() []models.ConversationSummary {
	return s.directory.List()
}

// ConnState reports the transport state for a connectivity indicator.
func (s *Session) ConnState() ConnState {
	return s.conn.State()
}

// Close tears down the transport connection. Safe to call repeatedly.
func (s *Session) Close() error {
	s.directory.ClearOpen()
	return s.conn.Close()
}
