package models

import "time"

// PreviewLimit caps Chat.LastMessagePreview, counted in runes.
const PreviewLimit = 200

// Chat is the messaging thread bound 1:1 to a connection.
type Chat struct {
	ID                 string     `db:"id" json:"id"`
	ConnectionID       string     `db:"connection_id" json:"connection_id"`
	LastMessageAt      *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	LastMessagePreview *string    `db:"last_message_preview" json:"last_message_preview,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

// Participant is the summary of one side rendered in chat views.
type Participant struct {
	UserID    string `json:"user_id"`
	ProfileID string `json:"profile_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
	Online    bool   `json:"online"`
}

// ChatDetail is a chat with its connection header.
type ChatDetail struct {
	Chat
	Connection ConnectionHeader `json:"-"`
	Status     ConnectionStatus `json:"status"`
	Doctor     Participant      `json:"doctor"`
	Patient    Participant      `json:"patient"`
}

// NewChatDetail builds participant summaries from the header.
func NewChatDetail(chat Chat, header ConnectionHeader) ChatDetail {
	return ChatDetail{
		Chat:       chat,
		Connection: header,
		Status:     header.Status,
		Doctor: Participant{
			UserID:    header.DoctorUserID,
			ProfileID: header.DoctorID,
			FirstName: header.DoctorFirstName,
			LastName:  header.DoctorLastName,
			Role:      RoleDoctor,
		},
		Patient: Participant{
			UserID:    header.PatientUserID,
			ProfileID: header.PatientID,
			FirstName: header.PatientFirstName,
			LastName:  header.PatientLastName,
			Role:      RolePatient,
		},
	}
}

// InboxEntry is one row of a user's chat list.
type InboxEntry struct {
	ConnectionID       string           `db:"connection_id" json:"connection_id"`
	ChatID             *string          `db:"chat_id" json:"chat_id,omitempty"`
	Status             ConnectionStatus `db:"status" json:"status"`
	CounterpartUserID  string           `db:"counterpart_user_id" json:"counterpart_user_id"`
	CounterpartFirst   string           `db:"counterpart_first_name" json:"counterpart_first_name"`
	CounterpartLast    string           `db:"counterpart_last_name" json:"counterpart_last_name"`
	LastMessagePreview *string          `db:"last_message_preview" json:"last_message_preview,omitempty"`
	LastMessageAt      *time.Time       `db:"last_message_at" json:"last_message_at,omitempty"`
	UnreadCount        int              `db:"unread_count" json:"unread_count"`
	CounterpartOnline  bool             `db:"-" json:"counterpart_online"`
}
