package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"connection-chat/internal/models"
)

var (
	ErrChatNotFound  = errors.New("chat not found")
	ErrDuplicateChat = errors.New("chat already exists for connection")
)

const uniqueViolation = pq.ErrorCode("23505")

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	GetChatByConnection(ctx context.Context, connectionID string) (models.Chat, error)
	CreateChatWithMessage(ctx context.Context, chat models.Chat, first models.Message) (models.Chat, error)
	UpdateLastMessage(ctx context.Context, connectionID string, at time.Time, preview string) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const chatColumns = `id, connection_id, last_message_at, last_message_preview, created_at`

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// GetChatByConnection fetches the chat bound to a connection.
func (r *ChatRepo) GetChatByConnection(ctx context.Context, connectionID string) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE connection_id=$1`, connectionID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// CreateChatWithMessage inserts a chat and its first message atomically.
// A concurrent insert for the same connection yields ErrDuplicateChat.
func (r *ChatRepo) CreateChatWithMessage(ctx context.Context, chat models.Chat, first models.Message) (models.Chat, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var created models.Chat
	err = tx.QueryRowxContext(ctx, `INSERT INTO chats (id, connection_id, created_at) VALUES ($1, $2, $3) RETURNING `+chatColumns,
		chat.ID, chat.ConnectionID, chat.CreatedAt).StructScan(&created)
	if err != nil {
		err = insertChatError(err)
		return models.Chat{}, err
	}

	first.ChatID = created.ID
	if _, err = tx.NamedExecContext(ctx, `INSERT INTO messages (id, chat_id, sender_id, content, message_type, is_read, is_deleted, created_at)
        VALUES (:id, :chat_id, :sender_id, :content, :message_type, :is_read, :is_deleted, :created_at)`, first); err != nil {
		return models.Chat{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return created, nil
}

// insertChatError maps the unique violation on chats.connection_id to ErrDuplicateChat.
func insertChatError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicateChat
	}
	return err
}

// UpdateLastMessage stamps the connection and its chat with the same timestamp.
// Stamps older than the stored one are ignored, so the last message never
// moves backwards when follow-ups of concurrent sends land out of order.
func (r *ChatRepo) UpdateLastMessage(ctx context.Context, connectionID string, at time.Time, preview string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE connections SET last_message_at=$2, last_activity_at=$2
        WHERE id=$1 AND (last_message_at IS NULL OR last_message_at <= $2)`, connectionID, at)
	if err = expectRow(res, err, ErrConnectionNotFound); errors.Is(err, ErrConnectionNotFound) {
		var exists bool
		if err = tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM connections WHERE id=$1)`, connectionID); err != nil {
			return err
		}
		if !exists {
			err = ErrConnectionNotFound
			return err
		}
		// a newer message already stamped the connection
		err = tx.Commit()
		return err
	}
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE chats SET last_message_at=$2, last_message_preview=$3
        WHERE connection_id=$1 AND (last_message_at IS NULL OR last_message_at <= $2)`,
		connectionID, at, preview); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}
