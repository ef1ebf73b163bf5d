package client

import (
	"sort"
	"sync"
	"time"

	"marketplace-messaging/internal/models"
)

// Directory is the client-side cached, sorted list of the viewer's
// conversations backing the sidebar. It is a read-through cache: the server
// owns the state, the directory converges on it through refreshes and
// incoming previews.
type Directory struct {
	mu      sync.Mutex
	entries map[int]models.ConversationSummary
	openID  int
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{entries: make(map[int]models.ConversationSummary)}
}

// Replace swaps in a freshly fetched conversation set.
func (d *Directory) Replace(summaries []models.ConversationSummary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = make(map[int]models.ConversationSummary, len(summaries))
	for _, s := range summaries {
		d.entries[s.ConversationID] = s
	}
}

// SetOpen marks the conversation currently open and visible in the UI.
// Incoming previews for the open conversation do not increment its unread
// counter, since the viewer observes them immediately.
func (d *Directory) SetOpen(conversationID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openID = conversationID
}

// ClearOpen marks no conversation as open.
func (d *Directory) ClearOpen() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openID = 0
}

// ApplyIncomingPreview updates one entry's preview, timestamp and unread
// count from an incoming message event. Updates carrying a timestamp not
// strictly newer than the entry's current one leave preview and timestamp
// untouched, so a racing refresh cannot be clobbered by an older event.
// The return value reports whether the conversation is known; unknown
// conversations require a full refresh.
func (d *Directory) ApplyIncomingPreview(conversationID int, preview string, ts time.Time, fromPartner bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.entries[conversationID]
	if !ok {
		return false
	}

	if entry.LastMessageAt == nil || ts.After(*entry.LastMessageAt) {
		entry.LastMessage = &preview
		entry.LastMessageAt = &ts
		if fromPartner && conversationID != d.openID {
			entry.Unread++
		}
		d.entries[conversationID] = entry
	}
	return true
}

// MarkRead zeroes the unread counter for a conversation. Called when the
// conversation becomes the open one, before the mark-read REST call
// resolves, so the sidebar badge clears without waiting on the network.
func (d *Directory) MarkRead(conversationID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if entry, ok := d.entries[conversationID]; ok {
		entry.Unread = 0
		d.entries[conversationID] = entry
	}
}

// Unread returns the unread count for a conversation.
func (d *Directory) Unread(conversationID int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries[conversationID].Unread
}

// List returns the conversations sorted by most recent message first.
// Conversations with no messages sort last, newest created first.
func (d *Directory) List() []models.ConversationSummary {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]models.ConversationSummary, 0, len(d.entries))
	for _, entry := range d.entries {
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastMessageAt, out[j].LastMessageAt
		switch {
		case a == nil && b == nil:
			return out[i].CreatedAt.After(out[j].CreatedAt)
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return out
}
