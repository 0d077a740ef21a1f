package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"connection-chat/internal/models"
)

var (
	ErrMessageNotFound     = errors.New("message not found")
	ErrAlreadyDeleted      = errors.New("message already deleted")
	ErrConnectionNotActive = errors.New("connection not active")
)

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	ListMessages(ctx context.Context, chatID string, before *models.Cursor, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, messageID string) (models.Message, error)
	MarkAllRead(ctx context.Context, chatID string, readerID string) (int64, error)
	SoftDelete(ctx context.Context, messageID string, senderID string) (models.Message, error)
	CountUnread(ctx context.Context, chatID string, userID string) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, chat_id, sender_id, content, message_type, is_read, is_deleted, created_at`

// CreateMessage stores a message only while the chat's connection is active.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	var created models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (`+messageColumns+`)
        SELECT $1::text, $2::text, $3::text, $4::text, $5::text, $6::boolean, FALSE, $7::timestamptz
        WHERE EXISTS (
            SELECT 1 FROM chats ch JOIN connections c ON c.id = ch.connection_id
            WHERE ch.id=$2::text AND c.status=$8::text
        )
        RETURNING `+messageColumns,
		msg.ID, msg.ChatID, msg.SenderID, msg.Content, msg.MessageType, msg.IsRead, msg.CreatedAt, models.ConnectionActive).
		StructScan(&created)
	if err != nil {
		return models.Message{}, createMessageError(err)
	}
	return created, nil
}

// createMessageError maps the empty guarded insert to ErrConnectionNotActive.
func createMessageError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrConnectionNotActive
	}
	return err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListMessages returns up to limit messages strictly older than before, newest first.
func (r *MessageRepo) ListMessages(ctx context.Context, chatID string, before *models.Cursor, limit int) ([]models.Message, error) {
	msgs := []models.Message{}
	var err error
	switch {
	case before == nil:
		err = r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
            WHERE chat_id=$1
            ORDER BY created_at DESC, id DESC LIMIT $2`, chatID, limit)
	case before.ID == "":
		err = r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
            WHERE chat_id=$1 AND created_at < $2
            ORDER BY created_at DESC, id DESC LIMIT $3`, chatID, before.CreatedAt, limit)
	default:
		err = r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
            WHERE chat_id=$1 AND (created_at, id) < ($2, $3)
            ORDER BY created_at DESC, id DESC LIMIT $4`, chatID, before.CreatedAt, before.ID, limit)
	}
	return msgs, err
}

// MarkRead flips is_read on one message.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `UPDATE messages SET is_read=TRUE WHERE id=$1 RETURNING `+messageColumns, messageID).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// MarkAllRead flips every unread message in the chat not authored by readerID.
func (r *MessageRepo) MarkAllRead(ctx context.Context, chatID string, readerID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_read=TRUE
        WHERE chat_id=$1 AND sender_id<>$2 AND is_read=FALSE`, chatID, readerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SoftDelete tombstones a message. Only the first delete by the sender succeeds.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID string, senderID string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `UPDATE messages SET is_deleted=TRUE, content=$3, message_type=$4
        WHERE id=$1 AND sender_id=$2 AND is_deleted=FALSE
        RETURNING `+messageColumns, messageID, senderID, models.DeletedPlaceholder, models.MessageDeleted).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrAlreadyDeleted
	}
	return msg, err
}

// CountUnread counts unread, non-deleted messages in a chat sent by someone other than userID.
func (r *MessageRepo) CountUnread(ctx context.Context, chatID string, userID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages
        WHERE chat_id=$1 AND sender_id<>$2 AND is_read=FALSE AND is_deleted=FALSE`, chatID, userID)
	return count, err
}
