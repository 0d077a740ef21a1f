package models

import "time"

// ChatEvent is the frame exchanged with websocket clients.
type ChatEvent struct {
	Type       string     `json:"type"`
	RequestID  string     `json:"request_id,omitempty"`
	Payload    any        `json:"payload,omitempty"`
	Error      string     `json:"error,omitempty"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}
