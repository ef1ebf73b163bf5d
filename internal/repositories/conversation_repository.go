package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"

	"marketplace-messaging/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	CreateOrGet(ctx context.Context, userID int, partnerID int) (models.Conversation, error)
	Get(ctx context.Context, conversationID int) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error)
	ListForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error)
	MarkRead(ctx context.Context, conversationID int, viewerID int) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateOrGet returns the conversation between the two users, creating it if
// it does not already exist. Starting the same pair twice yields the same row.
func (r *ConversationRepo) CreateOrGet(ctx context.Context, userID int, partnerID int) (models.Conversation, error) {
	if userID == partnerID {
		return models.Conversation{}, errors.New("cannot start conversation with self")
	}
	participants := []int{userID, partnerID}
	sort.Ints(participants)
	user1, user2 := participants[0], participants[1]

	var conv models.Conversation
	query := `SELECT id, user1_id, user2_id, last_message, last_message_at, unread_user1, unread_user2, created_at
        FROM conversations WHERE user1_id=$1 AND user2_id=$2`
	if err := r.db.GetContext(ctx, &conv, query, user1, user2); err != nil {
		if err != sql.ErrNoRows {
			return models.Conversation{}, err
		}
		insert := `INSERT INTO conversations (user1_id, user2_id) VALUES ($1, $2)
            ON CONFLICT (user1_id, user2_id) DO UPDATE SET user1_id = EXCLUDED.user1_id
            RETURNING id, user1_id, user2_id, last_message, last_message_at, unread_user1, unread_user2, created_at`
		if err := r.db.GetContext(ctx, &conv, insert, user1, user2); err != nil {
			return models.Conversation{}, err
		}
	}
	return conv, nil
}

// Get fetches a conversation by id.
func (r *ConversationRepo) Get(ctx context.Context, conversationID int) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT id, user1_id, user2_id, last_message, last_message_at, unread_user1, unread_user2, created_at
        FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversations WHERE id=$1 AND (user1_id=$2 OR user2_id=$2))`, conversationID, userID)
	return exists, err
}

// ListForUser returns the user's conversations ordered by most recent message
// first. Conversations with no messages yet sort last.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	query := `SELECT id, user1_id, user2_id, last_message, last_message_at, unread_user1, unread_user2, created_at
        FROM conversations
        WHERE user1_id=$1 OR user2_id=$1
        ORDER BY last_message_at DESC NULLS LAST, created_at DESC`
	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ConversationSummary
	for rows.Next() {
		var conv models.Conversation
		if err := rows.StructScan(&conv); err != nil {
			return nil, err
		}
		result = append(result, SummaryForViewer(conv, userID))
	}
	return result, rows.Err()
}

// MarkRead zeroes the viewer's unread counter and flags the partner's
// messages as read.
func (r *ConversationRepo) MarkRead(ctx context.Context, conversationID int, viewerID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE conversations SET
        unread_user1 = CASE WHEN user1_id=$2 THEN 0 ELSE unread_user1 END,
        unread_user2 = CASE WHEN user2_id=$2 THEN 0 ELSE unread_user2 END
        WHERE id=$1 AND (user1_id=$2 OR user2_id=$2)`, conversationID, viewerID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConversationNotFound
	}

	if _, err := tx.ExecContext(ctx, `UPDATE messages SET is_read = TRUE
        WHERE conversation_id=$1 AND sender_id<>$2 AND is_read = FALSE`, conversationID, viewerID); err != nil {
		return err
	}

	return tx.Commit()
}

// SummaryForViewer projects a conversation onto one participant's view.
func SummaryForViewer(conv models.Conversation, viewerID int) models.ConversationSummary {
	partnerID := conv.User1ID
	unread := conv.UnreadUser1
	if partnerID == viewerID {
		partnerID = conv.User2ID
	}
	if conv.User2ID == viewerID {
		unread = conv.UnreadUser2
	}
	return models.ConversationSummary{
		ConversationID: conv.ID,
		PartnerID:      partnerID,
		LastMessage:    conv.LastMessage,
		LastMessageAt:  conv.LastMessageAt,
		Unread:         unread,
		CreatedAt:      conv.CreatedAt,
	}
}
