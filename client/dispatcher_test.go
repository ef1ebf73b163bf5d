package client

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-messaging/internal/models"
)

func eventFrame(t *testing.T, msg models.Message) []byte {
	t.Helper()
	data, err := json.Marshal(models.MessageEvent{Type: "message", Message: &msg})
	require.NoError(t, err)
	return data
}

func TestDispatcherDropsMalformedFrames(t *testing.T) {
	store := NewMessageStore()
	directory := NewDirectory()
	d := NewDispatcher(1, store, directory, func() { t.Fatal("refresh must not run") })

	store.Open(5)
	d.HandleFrame([]byte(`{"type":`))
	d.HandleFrame([]byte(`{"type":"presence"}`))
	d.HandleFrame([]byte(`{"type":"message"}`))
	d.HandleFrame(eventFrame(t, models.Message{ID: 0, ConversationID: 5, SenderID: 2, CreatedAt: time.Now()}))

	assert.Empty(t, store.Messages())
}

func TestDispatcherAppendsToOpenConversation(t *testing.T) {
	store := NewMessageStore()
	directory := NewDirectory()
	now := time.Now()
	directory.Replace([]models.ConversationSummary{{ConversationID: 5, PartnerID: 2, CreatedAt: now}})
	d := NewDispatcher(1, store, directory, nil)

	store.Open(5)
	d.HandleFrame(eventFrame(t, models.Message{ID: 7, ConversationID: 5, SenderID: 2, Content: "hi", CreatedAt: now}))

	msgs := store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, 7, msgs[0].ID)
	assert.Equal(t, 1, directory.Unread(5))
}

func TestDispatcherUpdatesDirectoryForBackgroundConversation(t *testing.T) {
	store := NewMessageStore()
	directory := NewDirectory()
	now := time.Now()
	directory.Replace([]models.ConversationSummary{{ConversationID: 8, PartnerID: 3, CreatedAt: now}})
	d := NewDispatcher(1, store, directory, nil)

	store.Open(5)
	d.HandleFrame(eventFrame(t, models.Message{ID: 9, ConversationID: 8, SenderID: 3, Content: "elsewhere", CreatedAt: now}))

	assert.Empty(t, store.Messages())
	assert.Equal(t, 1, directory.Unread(8))
}

func TestDispatcherRequestsRefreshForUnknownConversation(t *testing.T) {
	store := NewMessageStore()
	directory := NewDirectory()
	refreshed := false
	d := NewDispatcher(1, store, directory, func() { refreshed = true })

	d.HandleFrame(eventFrame(t, models.Message{ID: 3, ConversationID: 99, SenderID: 2, Content: "new", CreatedAt: time.Now()}))

	assert.True(t, refreshed)
}

func TestDispatcherDeduplicatesEchoOfRESTSend(t *testing.T) {
	store := NewMessageStore()
	directory := NewDirectory()
	now := time.Now()
	directory.Replace([]models.ConversationSummary{{ConversationID: 5, PartnerID: 2, CreatedAt: now}})
	d := NewDispatcher(1, store, directory, nil)

	store.Open(5)
	sent := models.Message{ID: 7, ConversationID: 5, SenderID: 1, Content: "hi", CreatedAt: now}
	store.Append(sent)
	d.HandleFrame(eventFrame(t, sent))

	assert.Len(t, store.Messages(), 1)
	assert.Equal(t, 0, directory.Unread(5))
}
