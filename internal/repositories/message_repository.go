package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"marketplace-messaging/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// previewLength caps the denormalized last-message preview stored on the
// conversation row.
const previewLength = 120

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	Create(ctx context.Context, conversationID int, senderID int, content string) (models.Message, error)
	ListForConversation(ctx context.Context, conversationID int) ([]models.Message, error)
	Get(ctx context.Context, messageID int) (models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create stores a message and denormalizes the conversation's preview,
// timestamp and the recipient's unread counter in the same transaction.
func (r *MessageRepo) Create(ctx context.Context, conversationID int, senderID int, content string) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var msg models.Message
	err = tx.QueryRowxContext(ctx, `INSERT INTO messages (conversation_id, sender_id, content)
        VALUES ($1, $2, $3)
        RETURNING id, conversation_id, sender_id, content, is_read, created_at`, conversationID, senderID, content).
		Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.IsRead, &msg.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}

	res, err := tx.ExecContext(ctx, `UPDATE conversations SET
        last_message = LEFT($3, $4),
        last_message_at = $5,
        unread_user1 = CASE WHEN user1_id<>$2 THEN unread_user1 + 1 ELSE unread_user1 END,
        unread_user2 = CASE WHEN user2_id<>$2 THEN unread_user2 + 1 ELSE unread_user2 END
        WHERE id=$1 AND (user1_id=$2 OR user2_id=$2)`,
		conversationID, senderID, content, previewLength, msg.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return models.Message{}, err
	}
	if count == 0 {
		return models.Message{}, ErrConversationNotFound
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListForConversation returns the conversation's messages ordered by send time.
func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID int) ([]models.Message, error) {
	query := `SELECT id, conversation_id, sender_id, content, is_read, created_at
        FROM messages
        WHERE conversation_id=$1
        ORDER BY created_at ASC, id ASC`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, conversationID)
	return msgs, err
}

// Get retrieves a single message.
func (r *MessageRepo) Get(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT id, conversation_id, sender_id, content, is_read, created_at FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}
