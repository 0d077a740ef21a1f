package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"connection-chat/internal/models"
	"connection-chat/internal/repositories"
)

// ChatStartedText is the body of the system message opening every chat.
const ChatStartedText = "Chat started. You can now exchange messages."

// PresenceReader answers presence questions. Unknown means offline.
type PresenceReader interface {
	IsOnline(ctx context.Context, userID string) bool
	OnlineSet(ctx context.Context, userIDs []string) map[string]bool
}

// ChatResolver loads a chat together with its connection header.
type ChatResolver interface {
	ResolveChat(ctx context.Context, chatID string) (models.ChatDetail, error)
}

// ChatDirectory owns chat lifecycle, inbox listing, access and unread bookkeeping.
type ChatDirectory struct {
	connections repositories.ConnectionRepository
	chats       repositories.ChatRepository
	profiles    repositories.ProfileRepository
	presence    PresenceReader
	settings
}

// NewChatDirectory builds a ChatDirectory. presence may be nil.
func NewChatDirectory(
	connections repositories.ConnectionRepository,
	chats repositories.ChatRepository,
	profiles repositories.ProfileRepository,
	presence PresenceReader,
	opts ...Option,
) *ChatDirectory {
	return &ChatDirectory{
		connections: connections,
		chats:       chats,
		profiles:    profiles,
		presence:    presence,
		settings:    newSettings(opts),
	}
}

// HasAccess reports whether userID is one of the two participants.
func HasAccess(header models.ConnectionHeader, userID string) bool {
	_, ok := header.RoleOf(userID)
	return ok
}

// CanAccessChat is HasAccess over an already loaded chat.
func CanAccessChat(detail models.ChatDetail, userID string) bool {
	return HasAccess(detail.Connection, userID)
}

// GetOrCreateChat returns the chat of a connection, creating it with its
// opening system message when absent.
func (d *ChatDirectory) GetOrCreateChat(ctx context.Context, connectionID string) (models.ChatDetail, error) {
	const op = "get or create chat"
	header, err := d.loadConnection(ctx, op, connectionID)
	if err != nil {
		return models.ChatDetail{}, err
	}
	return d.getOrCreate(ctx, op, header)
}

// GetOrCreateChatAs is GetOrCreateChat restricted to the connection's participants.
func (d *ChatDirectory) GetOrCreateChatAs(ctx context.Context, connectionID, userID string) (models.ChatDetail, error) {
	const op = "get or create chat"
	header, err := d.loadConnection(ctx, op, connectionID)
	if err != nil {
		return models.ChatDetail{}, err
	}
	if !HasAccess(header, userID) {
		return models.ChatDetail{}, NewForbiddenError(op, "not a participant of this connection")
	}
	return d.getOrCreate(ctx, op, header)
}

func (d *ChatDirectory) getOrCreate(ctx context.Context, op string, header models.ConnectionHeader) (models.ChatDetail, error) {
	if !header.IsActive() {
		return models.ChatDetail{}, NewInvalidStateError(op, "connection is not active", nil)
	}

	chat, err := d.chats.GetChatByConnection(ctx, header.ID)
	if err == nil {
		return d.withPresence(ctx, models.NewChatDetail(chat, header)), nil
	}
	if !errors.Is(err, repositories.ErrChatNotFound) {
		return models.ChatDetail{}, fmt.Errorf("%s: %w", op, err)
	}

	now := d.now().UTC()
	chatID := d.newID()
	opening := models.Message{
		ID:          d.newID(),
		SenderID:    header.DoctorUserID,
		Content:     ChatStartedText,
		MessageType: models.MessageSystem,
		IsRead:      true,
		CreatedAt:   now,
	}
	chat, err = d.chats.CreateChatWithMessage(ctx, models.Chat{ID: chatID, ConnectionID: header.ID, CreatedAt: now}, opening)
	if errors.Is(err, repositories.ErrDuplicateChat) {
		chat, err = d.chats.GetChatByConnection(ctx, header.ID)
	}
	if err != nil {
		return models.ChatDetail{}, fmt.Errorf("%s: %w", op, err)
	}

	d.logger.Info("chat created", zap.String("chat_id", chat.ID), zap.String("connection_id", header.ID))
	return d.withPresence(ctx, models.NewChatDetail(chat, header)), nil
}

// GetUserChats lists the caller's connections, most recent conversation first.
func (d *ChatDirectory) GetUserChats(ctx context.Context, userID string, role models.Role) ([]models.InboxEntry, error) {
	const op = "get user chats"
	var (
		profileID string
		err       error
	)
	switch role {
	case models.RoleDoctor:
		profileID, err = d.profiles.DoctorProfileID(ctx, userID)
	case models.RolePatient:
		profileID, err = d.profiles.PatientProfileID(ctx, userID)
	case models.RoleAdmin:
		return nil, NewForbiddenError(op, "administrators have no inbox")
	default:
		return nil, NewValidationError(op, fmt.Sprintf("unknown role %q", role))
	}
	if errors.Is(err, repositories.ErrProfileNotFound) {
		return nil, NewNotFoundError(op, "profile not found", err)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	entries, err := d.connections.ListInbox(ctx, role, profileID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if d.presence == nil || len(entries) == 0 {
		return entries, nil
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.CounterpartUserID)
	}
	online := d.presence.OnlineSet(ctx, ids)
	for i := range entries {
		entries[i].CounterpartOnline = online[entries[i].CounterpartUserID]
	}
	return entries, nil
}

// GetChatDetails returns a chat the caller participates in.
func (d *ChatDirectory) GetChatDetails(ctx context.Context, chatID, userID string) (models.ChatDetail, error) {
	const op = "get chat details"
	detail, err := d.resolve(ctx, op, chatID)
	if err != nil {
		return models.ChatDetail{}, err
	}
	if !CanAccessChat(detail, userID) {
		return models.ChatDetail{}, NewForbiddenError(op, "not a participant of this chat")
	}
	return d.withPresence(ctx, detail), nil
}

// VerifyUserAccess is the boolean form of the GetChatDetails membership check.
func (d *ChatDirectory) VerifyUserAccess(ctx context.Context, chatID, userID string) (bool, error) {
	detail, err := d.resolve(ctx, "verify user access", chatID)
	if err != nil {
		return false, err
	}
	return CanAccessChat(detail, userID), nil
}

// ResolveChat loads a chat with its connection header without access checks.
func (d *ChatDirectory) ResolveChat(ctx context.Context, chatID string) (models.ChatDetail, error) {
	return d.resolve(ctx, "resolve chat", chatID)
}

func (d *ChatDirectory) resolve(ctx context.Context, op, chatID string) (models.ChatDetail, error) {
	chat, err := d.chats.GetChat(ctx, chatID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return models.ChatDetail{}, NewNotFoundError(op, "chat not found", err)
	}
	if err != nil {
		return models.ChatDetail{}, fmt.Errorf("%s: %w", op, err)
	}
	header, err := d.loadConnection(ctx, op, chat.ConnectionID)
	if err != nil {
		return models.ChatDetail{}, err
	}
	return models.NewChatDetail(chat, header), nil
}

// GetUnreadCount sums the caller side's unread counters. A user without the
// matching profile has no connections and therefore nothing unread.
func (d *ChatDirectory) GetUnreadCount(ctx context.Context, userID string, role models.Role) (int, error) {
	const op = "get unread count"
	var (
		profileID string
		err       error
	)
	switch role {
	case models.RoleDoctor:
		profileID, err = d.profiles.DoctorProfileID(ctx, userID)
	case models.RolePatient:
		profileID, err = d.profiles.PatientProfileID(ctx, userID)
	case models.RoleAdmin:
		return 0, NewForbiddenError(op, "administrators have no inbox")
	default:
		return 0, NewValidationError(op, fmt.Sprintf("unknown role %q", role))
	}
	if errors.Is(err, repositories.ErrProfileNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	total, err := d.connections.SumUnread(ctx, role, profileID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return total, nil
}

// GetPresence reports whether userID is online. Callers may only ask about
// themselves or users they share an active connection with.
func (d *ChatDirectory) GetPresence(ctx context.Context, callerID, userID string) (bool, error) {
	const op = "get presence"
	if callerID != userID {
		counterparts, err := d.connections.CounterpartUserIDs(ctx, callerID)
		if err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		if !slices.Contains(counterparts, userID) {
			return false, NewForbiddenError(op, "no shared connection with this user")
		}
	}
	if d.presence == nil {
		return false, nil
	}
	return d.presence.IsOnline(ctx, userID), nil
}

// UpdateConnectionLastMessage stamps the connection and its chat with the same
// time and a preview of at most models.PreviewLimit runes.
func (d *ChatDirectory) UpdateConnectionLastMessage(ctx context.Context, connectionID string, at time.Time, preview string) error {
	const op = "update connection last message"
	err := d.chats.UpdateLastMessage(ctx, connectionID, at.UTC(), TruncatePreview(preview))
	if errors.Is(err, repositories.ErrConnectionNotFound) {
		return NewNotFoundError(op, "connection not found", err)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// IncrementUnreadCount adds one to the recipient side's counter.
func (d *ChatDirectory) IncrementUnreadCount(ctx context.Context, connectionID string, recipient models.Role) error {
	const op = "increment unread count"
	switch recipient {
	case models.RoleDoctor, models.RolePatient:
	case models.RoleAdmin:
		return NewValidationError(op, "administrators have no unread counter")
	default:
		return NewValidationError(op, fmt.Sprintf("unknown role %q", recipient))
	}
	err := d.connections.IncrementUnread(ctx, connectionID, recipient)
	if errors.Is(err, repositories.ErrConnectionNotFound) {
		return NewNotFoundError(op, "connection not found", err)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ResetUnreadCount zeroes the caller side's counter of the chat's connection.
func (d *ChatDirectory) ResetUnreadCount(ctx context.Context, chatID, userID string) error {
	const op = "reset unread count"
	detail, err := d.resolve(ctx, op, chatID)
	if err != nil {
		return err
	}
	role, ok := detail.Connection.RoleOf(userID)
	if !ok {
		return NewForbiddenError(op, "not a participant of this chat")
	}
	if err := d.connections.ResetUnread(ctx, detail.ConnectionID, role); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (d *ChatDirectory) loadConnection(ctx context.Context, op, connectionID string) (models.ConnectionHeader, error) {
	header, err := d.connections.GetConnection(ctx, connectionID)
	if errors.Is(err, repositories.ErrConnectionNotFound) {
		return models.ConnectionHeader{}, NewNotFoundError(op, "connection not found", err)
	}
	if err != nil {
		return models.ConnectionHeader{}, fmt.Errorf("%s: %w", op, err)
	}
	return header, nil
}

func (d *ChatDirectory) withPresence(ctx context.Context, detail models.ChatDetail) models.ChatDetail {
	if d.presence == nil {
		return detail
	}
	online := d.presence.OnlineSet(ctx, detail.Connection.Participants())
	detail.Doctor.Online = online[detail.Doctor.UserID]
	detail.Patient.Online = online[detail.Patient.UserID]
	return detail
}

// TruncatePreview cuts s to models.PreviewLimit runes.
func TruncatePreview(s string) string {
	if utf8.RuneCountInString(s) <= models.PreviewLimit {
		return s
	}
	runes := []rune(s)
	return string(runes[:models.PreviewLimit])
}
