package client

import (
	"sort"
	"sync"

	"marketplace-messaging/internal/models"
)

// MessageStore holds the message list for the conversation currently open in
// the UI. Messages are kept in a map keyed by id, so de-duplication between
// an optimistic local insert and the transport echo is a map lookup, and in
// a slice sorted ascending by send time.
type MessageStore struct {
	mu             sync.Mutex
	conversationID int
	loadSeq        int
	byID           map[int]struct{}
	ordered        []models.Message
}

// NewMessageStore creates an empty store with no open conversation.
func NewMessageStore() *MessageStore {
	return &MessageStore{byID: make(map[int]struct{})}
}

// Open clears the store and retags it for the given conversation. It returns
// a load sequence; the matching LoadResult call must present the same
// sequence or its snapshot is discarded as stale.
func (s *MessageStore) Open(conversationID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = conversationID
	s.loadSeq++
	s.byID = make(map[int]struct{})
	s.ordered = nil
	return s.loadSeq
}

// LoadResult replaces the list with a fetched snapshot. Snapshots belonging
// to a superseded Open call are dropped; the return value reports whether
// the snapshot was applied.
func (s *MessageStore) LoadResult(seq int, msgs []models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.loadSeq {
		return false
	}

	s.byID = make(map[int]struct{}, len(msgs))
	s.ordered = s.ordered[:0]
	for _, msg := range msgs {
		if _, ok := s.byID[msg.ID]; ok {
			continue
		}
		s.byID[msg.ID] = struct{}{}
		s.ordered = append(s.ordered, msg)
	}
	s.sortLocked()
	return true
}

// Append inserts a message into the open conversation's list. Appending a
// message whose id is already present is a no-op, which collapses the
// REST-fallback insert and the later transport echo into one entry.
func (s *MessageStore) Append(msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ConversationID != s.conversationID {
		return false
	}
	if _, ok := s.byID[msg.ID]; ok {
		return false
	}
	s.byID[msg.ID] = struct{}{}
	s.ordered = append(s.ordered, msg)
	s.sortLocked()
	return true
}

// ConversationID returns the conversation the store currently holds, or zero.
func (s *MessageStore) ConversationID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Messages returns a copy of the current list, ascending by send time.
func (s *MessageStore) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.ordered))
	copy(out, s.ordered)
	return out
}

func (s *MessageStore) sortLocked() {
	sort.SliceStable(s.ordered, func(i, j int) bool {
		return s.ordered[i].CreatedAt.Before(s.ordered[j].CreatedAt)
	})
}
