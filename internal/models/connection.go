package models

import "time"

// ConnectionStatus is owned by the connection-management service.
type ConnectionStatus string

const (
	ConnectionActive   ConnectionStatus = "ACTIVE"
	ConnectionInactive ConnectionStatus = "INACTIVE"
)

// Connection is an approved doctor/patient relationship. DoctorID and PatientID
// are profile ids, not user ids.
type Connection struct {
	ID                 string           `db:"id" json:"id"`
	DoctorID           string           `db:"doctor_id" json:"doctor_id"`
	PatientID          string           `db:"patient_id" json:"patient_id"`
	Status             ConnectionStatus `db:"status" json:"status"`
	DoctorUnreadCount  int              `db:"doctor_unread_count" json:"-"`
	PatientUnreadCount int              `db:"patient_unread_count" json:"-"`
	LastMessageAt      *time.Time       `db:"last_message_at" json:"last_message_at,omitempty"`
	LastActivityAt     *time.Time       `db:"last_activity_at" json:"last_activity_at,omitempty"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
}

// ConnectionHeader is a connection joined with the user behind each profile.
type ConnectionHeader struct {
	Connection
	DoctorUserID     string `db:"doctor_user_id" json:"doctor_user_id"`
	DoctorFirstName  string `db:"doctor_first_name" json:"doctor_first_name"`
	DoctorLastName   string `db:"doctor_last_name" json:"doctor_last_name"`
	PatientUserID    string `db:"patient_user_id" json:"patient_user_id"`
	PatientFirstName string `db:"patient_first_name" json:"patient_first_name"`
	PatientLastName  string `db:"patient_last_name" json:"patient_last_name"`
}

// IsActive reports whether messages may flow on the connection.
func (h ConnectionHeader) IsActive() bool {
	return h.Status == ConnectionActive
}

// RoleOf returns the side userID plays in the connection.
func (h ConnectionHeader) RoleOf(userID string) (Role, bool) {
	switch userID {
	case "":
		return "", false
	case h.DoctorUserID:
		return RoleDoctor, true
	case h.PatientUserID:
		return RolePatient, true
	default:
		return "", false
	}
}

// UserIDFor returns the user id on the given side.
func (h ConnectionHeader) UserIDFor(role Role) string {
	switch role {
	case RoleDoctor:
		return h.DoctorUserID
	case RolePatient:
		return h.PatientUserID
	default:
		return ""
	}
}

// UnreadFor returns the unread counter of the given side.
func (h ConnectionHeader) UnreadFor(role Role) int {
	switch role {
	case RoleDoctor:
		return h.DoctorUnreadCount
	case RolePatient:
		return h.PatientUnreadCount
	default:
		return 0
	}
}

// Participants lists both user ids.
func (h ConnectionHeader) Participants() []string {
	return []string{h.DoctorUserID, h.PatientUserID}
}
