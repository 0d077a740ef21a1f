package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"connection-chat/internal/models"
	"connection-chat/internal/observability"
	"connection-chat/internal/repositories"
)

const (
	DefaultPageSize  = 20
	MaxPageSize      = 100
	MaxContentLength = 4000
)

// IdentityResolver returns display identities, cache first.
type IdentityResolver interface {
	Snapshot(ctx context.Context, userID string) (models.IdentitySnapshot, error)
}

// MessageLedger owns the message lifecycle inside a chat.
type MessageLedger struct {
	messages   repositories.MessageRepository
	chats      ChatResolver
	identities IdentityResolver
	settings
}

// NewMessageLedger builds a MessageLedger.
func NewMessageLedger(messages repositories.MessageRepository, chats ChatResolver, identities IdentityResolver, opts ...Option) *MessageLedger {
	return &MessageLedger{
		messages:   messages,
		chats:      chats,
		identities: identities,
		settings:   newSettings(opts),
	}
}

// SendMessage persists a message from senderID. Connection timestamps and
// unread counters are left to the caller.
func (l *MessageLedger) SendMessage(ctx context.Context, chatID, senderID, content string, msgType models.MessageType) (models.MessageView, error) {
	view, _, err := l.send(ctx, chatID, senderID, content, msgType)
	return view, err
}

func (l *MessageLedger) send(ctx context.Context, chatID, senderID, content string, msgType models.MessageType) (models.MessageView, models.ChatDetail, error) {
	const op = "send message"
	content = strings.TrimSpace(content)
	if content == "" {
		return models.MessageView{}, models.ChatDetail{}, NewValidationError(op, "content must not be empty")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return models.MessageView{}, models.ChatDetail{}, NewValidationError(op, fmt.Sprintf("content exceeds %d characters", MaxContentLength))
	}
	if msgType == "" {
		msgType = models.MessageText
	}
	if !msgType.ClientSendable() {
		return models.MessageView{}, models.ChatDetail{}, NewValidationError(op, fmt.Sprintf("message type %q cannot be sent", msgType))
	}

	detail, err := l.chats.ResolveChat(ctx, chatID)
	if err != nil {
		return models.MessageView{}, models.ChatDetail{}, err
	}
	if !CanAccessChat(detail, senderID) {
		return models.MessageView{}, models.ChatDetail{}, NewForbiddenError(op, "not a participant of this chat")
	}
	if !detail.Connection.IsActive() {
		return models.MessageView{}, models.ChatDetail{}, NewInvalidStateError(op, "connection is not active", nil)
	}

	sender := l.snapshot(ctx, detail, senderID)
	msg, err := l.messages.CreateMessage(ctx, models.Message{
		ID:          l.newID(),
		ChatID:      chatID,
		SenderID:    senderID,
		Content:     content,
		MessageType: msgType,
		CreatedAt:   l.now().UTC(),
	})
	if errors.Is(err, repositories.ErrConnectionNotActive) {
		return models.MessageView{}, models.ChatDetail{}, NewInvalidStateError(op, "connection is not active", err)
	}
	if err != nil {
		return models.MessageView{}, models.ChatDetail{}, fmt.Errorf("%s: %w", op, err)
	}

	observability.IncMessageSent(string(msg.MessageType))
	return models.MessageView{Message: msg, Sender: &sender}, detail, nil
}

// GetMessages returns one page of the chat, newest first, older than cursor.
func (l *MessageLedger) GetMessages(ctx context.Context, chatID, userID, cursor string, limit int) (models.MessagePage, error) {
	const op = "get messages"
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	before, err := models.ParseCursor(cursor)
	if err != nil {
		return models.MessagePage{}, NewValidationError(op, "invalid cursor")
	}

	detail, err := l.chats.ResolveChat(ctx, chatID)
	if err != nil {
		return models.MessagePage{}, err
	}
	if !CanAccessChat(detail, userID) {
		return models.MessagePage{}, NewForbiddenError(op, "not a participant of this chat")
	}

	rows, err := l.messages.ListMessages(ctx, chatID, before, limit+1)
	if err != nil {
		return models.MessagePage{}, fmt.Errorf("%s: %w", op, err)
	}
	page := models.MessagePage{HasMore: len(rows) > limit}
	if page.HasMore {
		rows = rows[:limit]
	}

	senders := map[string]*models.IdentitySnapshot{}
	page.Messages = make([]models.MessageView, 0, len(rows))
	for _, m := range rows {
		sender, ok := senders[m.SenderID]
		if !ok {
			snap := l.snapshot(ctx, detail, m.SenderID)
			sender = &snap
			senders[m.SenderID] = sender
		}
		page.Messages = append(page.Messages, models.MessageView{Message: m, Sender: sender})
	}
	if n := len(rows); n > 0 {
		page.Cursor = models.CursorOf(rows[n-1]).String()
	}
	return page, nil
}

// MarkAsRead flips a counterpart's message to read. Marking twice is a no-op.
func (l *MessageLedger) MarkAsRead(ctx context.Context, messageID, userID string) (models.Message, error) {
	msg, _, _, err := l.markAsRead(ctx, messageID, userID)
	return msg, err
}

func (l *MessageLedger) markAsRead(ctx context.Context, messageID, userID string) (models.Message, models.ChatDetail, bool, error) {
	const op = "mark as read"
	msg, detail, err := l.loadMessage(ctx, op, messageID)
	if err != nil {
		return models.Message{}, models.ChatDetail{}, false, err
	}
	if !CanAccessChat(detail, userID) {
		return models.Message{}, models.ChatDetail{}, false, NewForbiddenError(op, "not a participant of this chat")
	}
	if msg.SenderID == userID {
		return models.Message{}, models.ChatDetail{}, false, NewValidationError(op, "cannot mark own message as read")
	}
	if msg.IsRead {
		return msg, detail, false, nil
	}

	msg, err = l.messages.MarkRead(ctx, messageID)
	if err != nil {
		return models.Message{}, models.ChatDetail{}, false, fmt.Errorf("%s: %w", op, err)
	}
	return msg, detail, true, nil
}

// MarkAllAsRead flips every unread counterpart message in the chat.
func (l *MessageLedger) MarkAllAsRead(ctx context.Context, chatID, userID string) error {
	_, _, err := l.markAllAsRead(ctx, chatID, userID)
	return err
}

func (l *MessageLedger) markAllAsRead(ctx context.Context, chatID, userID string) (models.ChatDetail, int64, error) {
	const op = "mark all as read"
	detail, err := l.chats.ResolveChat(ctx, chatID)
	if err != nil {
		return models.ChatDetail{}, 0, err
	}
	if !CanAccessChat(detail, userID) {
		return models.ChatDetail{}, 0, NewForbiddenError(op, "not a participant of this chat")
	}
	n, err := l.messages.MarkAllRead(ctx, chatID, userID)
	if err != nil {
		return models.ChatDetail{}, 0, fmt.Errorf("%s: %w", op, err)
	}
	return detail, n, nil
}

// DeleteMessage tombstones the sender's own message.
func (l *MessageLedger) DeleteMessage(ctx context.Context, messageID, userID string) (models.Message, error) {
	msg, _, err := l.deleteMessage(ctx, messageID, userID)
	return msg, err
}

func (l *MessageLedger) deleteMessage(ctx context.Context, messageID, userID string) (models.Message, models.ChatDetail, error) {
	const op = "delete message"
	msg, detail, err := l.loadMessage(ctx, op, messageID)
	if err != nil {
		return models.Message{}, models.ChatDetail{}, err
	}
	if msg.SenderID != userID {
		return models.Message{}, models.ChatDetail{}, NewForbiddenError(op, "only the sender can delete a message")
	}
	if msg.IsDeleted {
		return models.Message{}, models.ChatDetail{}, NewInvalidStateError(op, "message already deleted", nil)
	}
	if msg.MessageType == models.MessageSystem {
		return models.Message{}, models.ChatDetail{}, NewInvalidStateError(op, "system messages cannot be deleted", nil)
	}

	deleted, err := l.messages.SoftDelete(ctx, messageID, userID)
	if errors.Is(err, repositories.ErrAlreadyDeleted) {
		return models.Message{}, models.ChatDetail{}, NewInvalidStateError(op, "message already deleted", err)
	}
	if err != nil {
		return models.Message{}, models.ChatDetail{}, fmt.Errorf("%s: %w", op, err)
	}
	return deleted, detail, nil
}

// GetUnreadCount counts unread, non-deleted messages the caller did not send.
func (l *MessageLedger) GetUnreadCount(ctx context.Context, chatID, userID string) (int, error) {
	const op = "get chat unread count"
	detail, err := l.chats.ResolveChat(ctx, chatID)
	if err != nil {
		return 0, err
	}
	if !CanAccessChat(detail, userID) {
		return 0, NewForbiddenError(op, "not a participant of this chat")
	}
	n, err := l.messages.CountUnread(ctx, chatID, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (l *MessageLedger) loadMessage(ctx context.Context, op, messageID string) (models.Message, models.ChatDetail, error) {
	msg, err := l.messages.GetMessage(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, models.ChatDetail{}, NewNotFoundError(op, "message not found", err)
	}
	if err != nil {
		return models.Message{}, models.ChatDetail{}, fmt.Errorf("%s: %w", op, err)
	}
	detail, err := l.chats.ResolveChat(ctx, msg.ChatID)
	if err != nil {
		return models.Message{}, models.ChatDetail{}, err
	}
	return msg, detail, nil
}

// snapshot resolves a sender identity, falling back to the names on the
// connection header when the identity source is unavailable.
func (l *MessageLedger) snapshot(ctx context.Context, detail models.ChatDetail, userID string) models.IdentitySnapshot {
	if l.identities != nil {
		snap, err := l.identities.Snapshot(ctx, userID)
		if err == nil {
			return snap
		}
		l.logger.Warn("identity lookup failed, using connection header", zap.String("user_id", userID), zap.Error(err))
	}

	switch userID {
	case detail.Doctor.UserID:
		return models.IdentitySnapshot{UserID: userID, FirstName: detail.Doctor.FirstName, LastName: detail.Doctor.LastName, Role: models.RoleDoctor}
	case detail.Patient.UserID:
		return models.IdentitySnapshot{UserID: userID, FirstName: detail.Patient.FirstName, LastName: detail.Patient.LastName, Role: models.RolePatient}
	default:
		return models.IdentitySnapshot{UserID: userID}
	}
}
