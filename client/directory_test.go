package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-messaging/internal/models"
)

func summaryAt(conversationID, partnerID int, preview string, ts *time.Time, unread int) models.ConversationSummary {
	return models.ConversationSummary{
		ConversationID: conversationID,
		PartnerID:      partnerID,
		LastMessage:    &preview,
		LastMessageAt:  ts,
		Unread:         unread,
		CreatedAt:      time.Now().Add(-time.Hour),
	}
}

func TestDirectoryListSortsByRecency(t *testing.T) {
	d := NewDirectory()
	now := time.Now()
	older := now.Add(-time.Minute)

	d.Replace([]models.ConversationSummary{
		summaryAt(1, 2, "older", &older, 0),
		summaryAt(2, 3, "newer", &now, 0),
	})

	list := d.List()
	require.Len(t, list, 2)
	assert.Equal(t, 2, list[0].ConversationID)
	assert.Equal(t, 1, list[1].ConversationID)
}

func TestDirectoryEmptyConversationsSortLast(t *testing.T) {
	d := NewDirectory()
	now := time.Now()

	empty := models.ConversationSummary{ConversationID: 9, PartnerID: 4, CreatedAt: now}
	d.Replace([]models.ConversationSummary{
		empty,
		summaryAt(1, 2, "hello", &now, 0),
	})

	list := d.List()
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].ConversationID)
	assert.Equal(t, 9, list[1].ConversationID)
}

func TestDirectoryPreviewMovesConversationToTop(t *testing.T) {
	d := NewDirectory()
	now := time.Now()
	older := now.Add(-time.Minute)

	d.Replace([]models.ConversationSummary{
		summaryAt(1, 2, "older", &older, 0),
		summaryAt(2, 3, "newer", &now, 0),
	})

	require.True(t, d.ApplyIncomingPreview(1, "just in", now.Add(time.Second), true))

	list := d.List()
	assert.Equal(t, 1, list[0].ConversationID)
	assert.Equal(t, "just in", *list[0].LastMessage)
	assert.Equal(t, 1, d.Unread(1))
}

func TestDirectoryIgnoresStalePreview(t *testing.T) {
	d := NewDirectory()
	now := time.Now()

	d.Replace([]models.ConversationSummary{summaryAt(1, 2, "current", &now, 0)})

	require.True(t, d.ApplyIncomingPreview(1, "late replay", now.Add(-time.Second), true))

	list := d.List()
	assert.Equal(t, "current", *list[0].LastMessage)
	assert.Equal(t, 0, d.Unread(1))
}

func TestDirectoryUnknownConversationReportsMiss(t *testing.T) {
	d := NewDirectory()
	assert.False(t, d.ApplyIncomingPreview(7, "hi", time.Now(), true))
}

func TestDirectoryOpenConversationDoesNotAccrueUnread(t *testing.T) {
	d := NewDirectory()
	now := time.Now()

	d.Replace([]models.ConversationSummary{summaryAt(1, 2, "hi", &now, 0)})
	d.SetOpen(1)

	d.ApplyIncomingPreview(1, "while open", now.Add(time.Second), true)
	assert.Equal(t, 0, d.Unread(1))

	d.ClearOpen()
	d.ApplyIncomingPreview(1, "after close", now.Add(2*time.Second), true)
	assert.Equal(t, 1, d.Unread(1))
}

func TestDirectoryOwnMessagesDoNotAccrueUnread(t *testing.T) {
	d := NewDirectory()
	now := time.Now()

	d.Replace([]models.ConversationSummary{summaryAt(1, 2, "hi", &now, 0)})
	d.ApplyIncomingPreview(1, "sent from another tab", now.Add(time.Second), false)

	assert.Equal(t, 0, d.Unread(1))
}

func TestDirectoryMarkReadZeroesCounter(t *testing.T) {
	d := NewDirectory()
	now := time.Now()

	d.Replace([]models.ConversationSummary{summaryAt(1, 2, "hi", &now, 4)})
	d.MarkRead(1)

	assert.Equal(t, 0, d.Unread(1))
}

func TestDirectoryReplaceConvergesOnServerState(t *testing.T) {
	d := NewDirectory()
	now := time.Now()

	d.Replace([]models.ConversationSummary{summaryAt(1, 2, "local view", &now, 9)})
	d.Replace([]models.ConversationSummary{summaryAt(1, 2, "server view", &now, 2)})

	list := d.List()
	require.Len(t, list, 1)
	assert.Equal(t, "server view", *list[0].LastMessage)
	assert.Equal(t, 2, list[0].Unread)
}
