package client

import (
	"encoding/json"
	"log"

	"marketplace-messaging/internal/models"
)

// Dispatcher is the single routing point for inbound transport events. It
// appends events for the open conversation to the message store, always
// updates the directory preview, and triggers a full refresh when an event
// references a conversation the directory has never seen.
type Dispatcher struct {
	viewerID  int
	store     *MessageStore
	directory *Directory
	refresh   func()
}

// NewDispatcher wires the dispatcher to its stores. refresh is invoked (on
// the caller's goroutine) when an unknown conversation shows up; it must not
// block.
func NewDispatcher(viewerID int, store *MessageStore, directory *Directory, refresh func()) *Dispatcher {
	return &Dispatcher{
		viewerID:  viewerID,
		store:     store,
		directory: directory,
		refresh:   refresh,
	}
}

// HandleFrame decodes and routes one inbound transport frame. Malformed
// frames are dropped and logged; they never crash the dispatch loop or
// disturb other conversations' state.
func (d *Dispatcher) HandleFrame(data []byte) {
	var event models.MessageEvent
	if err := json.Unmarshal(data, &event); err != nil {
		log.Printf("dropping malformed transport frame: %v", err)
		return
	}
	if event.Type != "message" || event.Message == nil {
		log.Printf("dropping transport frame with unexpected type %q", event.Type)
		return
	}

	msg := *event.Message
	if msg.ID == 0 || msg.ConversationID == 0 || msg.SenderID == 0 || msg.CreatedAt.IsZero() {
		log.Printf("dropping transport event with missing fields: id=%d conversation=%d", msg.ID, msg.ConversationID)
		return
	}

	d.HandleMessage(msg)
}

// HandleMessage routes one validated message event.
func (d *Dispatcher) HandleMessage(msg models.Message) {
	if msg.ConversationID == d.store.ConversationID() {
		d.store.Append(msg)
	}

	fromPartner := msg.SenderID != d.viewerID
	known := d.directory.ApplyIncomingPreview(msg.ConversationID, msg.Content, msg.CreatedAt, fromPartner)
	if !known && d.refresh != nil {
		d.refresh()
	}
}
