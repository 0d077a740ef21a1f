package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"connection-chat/internal/models"
	"connection-chat/internal/observability"
	"connection-chat/internal/relay"
)

// Messenger sequences ledger mutations, directory follow-ups and relay
// notifications. HTTP handlers and socket commands both go through it.
type Messenger struct {
	directory  *ChatDirectory
	ledger     *MessageLedger
	reconciler *Reconciler
	events     relay.Publisher
	tracer     trace.Tracer
	settings
}

// NewMessenger builds a Messenger.
func NewMessenger(directory *ChatDirectory, ledger *MessageLedger, reconciler *Reconciler, events relay.Publisher, opts ...Option) *Messenger {
	return &Messenger{
		directory:  directory,
		ledger:     ledger,
		reconciler: reconciler,
		events:     events,
		tracer:     otel.Tracer("connection-chat/services"),
		settings:   newSettings(opts),
	}
}

// Send persists a message, then updates the connection and notifies both sides.
// Follow-up failures are logged and never undo the message.
func (m *Messenger) Send(ctx context.Context, chatID, senderID, content string, msgType models.MessageType) (models.MessageView, error) {
	ctx, span := m.tracer.Start(ctx, "messenger.send", trace.WithAttributes(attribute.String("chat.id", chatID)))
	defer span.End()

	view, detail, err := m.ledger.send(ctx, chatID, senderID, content, msgType)
	if err != nil {
		span.RecordError(err)
		return models.MessageView{}, err
	}

	if err := m.directory.UpdateConnectionLastMessage(ctx, detail.ConnectionID, view.CreatedAt, view.Content); err != nil {
		m.followUpFailed("update_last_message", detail.ConnectionID, err)
	}
	if err := m.bumpUnread(ctx, detail, senderID); err != nil {
		m.followUpFailed("increment_unread", detail.ConnectionID, err)
	}
	m.publish(ctx, relay.MessageCreated, detail.Connection.Participants(), view)
	return view, nil
}

func (m *Messenger) bumpUnread(ctx context.Context, detail models.ChatDetail, senderID string) error {
	senderRole, _ := detail.Connection.RoleOf(senderID)
	recipient, err := senderRole.Counterpart()
	if err != nil {
		return err
	}
	return m.directory.IncrementUnreadCount(ctx, detail.ConnectionID, recipient)
}

// MarkRead marks one message read and tells the sender.
func (m *Messenger) MarkRead(ctx context.Context, messageID, userID string) (models.Message, error) {
	ctx, span := m.tracer.Start(ctx, "messenger.mark_read", trace.WithAttributes(attribute.String("message.id", messageID)))
	defer span.End()

	msg, detail, changed, err := m.ledger.markAsRead(ctx, messageID, userID)
	if err != nil {
		span.RecordError(err)
		return models.Message{}, err
	}
	if !changed {
		return msg, nil
	}

	m.publish(ctx, relay.MessageRead, []string{msg.SenderID, userID}, relay.MessageReadPayload{
		MessageID: msg.ID,
		ChatID:    msg.ChatID,
		ReaderID:  userID,
	})
	m.reconcile(ctx, detail.ConnectionID)
	return msg, nil
}

// MarkAllRead marks the chat read for userID and zeroes their counter.
func (m *Messenger) MarkAllRead(ctx context.Context, chatID, userID string) error {
	ctx, span := m.tracer.Start(ctx, "messenger.mark_all_read", trace.WithAttributes(attribute.String("chat.id", chatID)))
	defer span.End()

	detail, n, err := m.ledger.markAllAsRead(ctx, chatID, userID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := m.directory.ResetUnreadCount(ctx, chatID, userID); err != nil {
		m.followUpFailed("reset_unread", detail.ConnectionID, err)
	}
	if n > 0 {
		m.publish(ctx, relay.MessagesReadBulk, detail.Connection.Participants(), relay.BulkReadPayload{
			ChatID:   chatID,
			ReaderID: userID,
			Count:    n,
		})
	}
	return nil
}

// Delete tombstones a message, notifies both sides and repairs counters.
func (m *Messenger) Delete(ctx context.Context, messageID, userID string) (models.Message, error) {
	ctx, span := m.tracer.Start(ctx, "messenger.delete", trace.WithAttributes(attribute.String("message.id", messageID)))
	defer span.End()

	msg, detail, err := m.ledger.deleteMessage(ctx, messageID, userID)
	if err != nil {
		span.RecordError(err)
		return models.Message{}, err
	}

	if last := detail.LastMessageAt; last != nil && last.Equal(msg.CreatedAt) {
		if err := m.directory.UpdateConnectionLastMessage(ctx, detail.ConnectionID, msg.CreatedAt, msg.Content); err != nil {
			m.followUpFailed("update_last_message", detail.ConnectionID, err)
		}
	}
	m.publish(ctx, relay.MessageDeleted, detail.Connection.Participants(), relay.MessageDeletedPayload{
		MessageID: msg.ID,
		ChatID:    msg.ChatID,
	})
	if !msg.IsRead {
		m.reconcile(ctx, detail.ConnectionID)
	}
	return msg, nil
}

func (m *Messenger) reconcile(ctx context.Context, connectionID string) {
	if m.reconciler == nil {
		return
	}
	if err := m.reconciler.Reconcile(ctx, connectionID); err != nil {
		m.followUpFailed("reconcile", connectionID, err)
	}
}

func (m *Messenger) publish(ctx context.Context, eventType relay.EventType, recipients []string, payload any) {
	if m.events == nil {
		return
	}
	ev, err := relay.NewEvent(eventType, recipients, payload, m.now())
	if err != nil {
		m.followUpFailed("encode_event", "", err)
		return
	}
	if err := m.events.Publish(ctx, ev); err != nil {
		m.logger.Warn("event publish failed", zap.String("type", string(eventType)), zap.Error(err))
	}
}

func (m *Messenger) followUpFailed(step, connectionID string, err error) {
	observability.IncFollowUpError(step)
	m.logger.Warn("follow-up failed",
		zap.String("step", step),
		zap.String("connection_id", connectionID),
		zap.Error(err),
	)
}
