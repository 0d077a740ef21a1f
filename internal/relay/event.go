package relay

import (
	"encoding/json"
	"time"
)

// EventType names a realtime event.
type EventType string

const (
	MessageCreated   EventType = "message.created"
	MessageRead      EventType = "message.read"
	MessagesReadBulk EventType = "messages.read.bulk"
	MessageDeleted   EventType = "message.deleted"
	PresenceChanged  EventType = "presence.changed"
)

// Event is one notification addressed to a set of users.
type Event struct {
	Type       EventType       `json:"type"`
	Recipients []string        `json:"recipients"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewEvent encodes payload and stamps the event.
func NewEvent(eventType EventType, recipients []string, payload any, at time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Recipients: recipients, Payload: raw, OccurredAt: at.UTC()}, nil
}

// MessageReadPayload is carried by message.read.
type MessageReadPayload struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
	ReaderID  string `json:"reader_id"`
}

// BulkReadPayload is carried by messages.read.bulk.
type BulkReadPayload struct {
	ChatID   string `json:"chat_id"`
	ReaderID string `json:"reader_id"`
	Count    int64  `json:"count"`
}

// MessageDeletedPayload is carried by message.deleted.
type MessageDeletedPayload struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
}

// PresencePayload is carried by presence.changed.
type PresencePayload struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}
