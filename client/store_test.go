package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-messaging/internal/models"
)

func msgAt(id, conversationID int, content string, ts time.Time) models.Message {
	return models.Message{ID: id, ConversationID: conversationID, SenderID: 2, Content: content, CreatedAt: ts}
}

func TestStoreAppendIsIdempotent(t *testing.T) {
	store := NewMessageStore()
	store.Open(1)

	now := time.Now()
	require.True(t, store.Append(msgAt(10, 1, "hi", now)))
	require.False(t, store.Append(msgAt(10, 1, "hi", now)))

	assert.Len(t, store.Messages(), 1)
}

func TestStoreAppendIgnoresOtherConversations(t *testing.T) {
	store := NewMessageStore()
	store.Open(1)

	require.False(t, store.Append(msgAt(10, 2, "hi", time.Now())))
	assert.Empty(t, store.Messages())
}

func TestStoreKeepsMessagesSortedBySendTime(t *testing.T) {
	store := NewMessageStore()
	store.Open(1)

	now := time.Now()
	store.Append(msgAt(3, 1, "third", now.Add(2*time.Second)))
	store.Append(msgAt(1, 1, "first", now))
	store.Append(msgAt(2, 1, "second", now.Add(time.Second)))

	msgs := store.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{msgs[0].ID, msgs[1].ID, msgs[2].ID})
}

func TestStoreLoadResultDeduplicatesSnapshot(t *testing.T) {
	store := NewMessageStore()
	seq := store.Open(1)

	now := time.Now()
	require.True(t, store.LoadResult(seq, []models.Message{
		msgAt(1, 1, "a", now),
		msgAt(1, 1, "a", now),
		msgAt(2, 1, "b", now.Add(time.Second)),
	}))

	assert.Len(t, store.Messages(), 2)
}

func TestStoreDiscardsStaleLoad(t *testing.T) {
	store := NewMessageStore()
	now := time.Now()

	seqA := store.Open(1)
	seqB := store.Open(2)

	require.False(t, store.LoadResult(seqA, []models.Message{msgAt(1, 1, "old", now)}))
	require.True(t, store.LoadResult(seqB, []models.Message{msgAt(5, 2, "new", now)}))

	msgs := store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, 5, msgs[0].ID)
	assert.Equal(t, 2, store.ConversationID())
}

func TestStoreOpenClearsPreviousConversation(t *testing.T) {
	store := NewMessageStore()
	store.Open(1)
	store.Append(msgAt(1, 1, "a", time.Now()))

	store.Open(2)
	assert.Empty(t, store.Messages())
}
