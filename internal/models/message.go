package models

import "time"

// MessageType classifies message content.
type MessageType string

const (
	MessageText    MessageType = "TEXT"
	MessageImage   MessageType = "IMAGE"
	MessageFile    MessageType = "FILE"
	MessageSystem  MessageType = "SYSTEM"
	MessageDeleted MessageType = "DELETED"
)

// DeletedPlaceholder replaces the content of a deleted message.
const DeletedPlaceholder = "This message was deleted"

// ClientSendable reports whether clients may create messages of this type.
func (t MessageType) ClientSendable() bool {
	switch t {
	case MessageText, MessageImage, MessageFile:
		return true
	default:
		return false
	}
}

// Message represents a chat message.
type Message struct {
	ID          string      `db:"id" json:"id"`
	ChatID      string      `db:"chat_id" json:"chat_id"`
	SenderID    string      `db:"sender_id" json:"sender_id"`
	Content     string      `db:"content" json:"content"`
	MessageType MessageType `db:"message_type" json:"message_type"`
	IsRead      bool        `db:"is_read" json:"is_read"`
	IsDeleted   bool        `db:"is_deleted" json:"is_deleted"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// MessageView is a message rendered with its sender's display fields.
type MessageView struct {
	Message
	Sender *IdentitySnapshot `json:"sender,omitempty"`
}

// MessagePage is one page of cursor pagination, newest first.
type MessagePage struct {
	Messages []MessageView `json:"messages"`
	Cursor   string        `json:"cursor,omitempty"`
	HasMore  bool          `json:"has_more"`
}
