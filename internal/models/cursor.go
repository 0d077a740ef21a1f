package models

import (
	"errors"
	"strings"
	"time"
)

// Cursor positions a page strictly after (older than) a message.
// An empty ID means "strictly older than CreatedAt".
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

const cursorSep = "_"

var ErrInvalidCursor = errors.New("invalid cursor")

// String encodes the cursor as "<RFC3339Nano>_<id>".
func (c Cursor) String() string {
	ts := c.CreatedAt.UTC().Format(time.RFC3339Nano)
	if c.ID == "" {
		return ts
	}
	return ts + cursorSep + c.ID
}

// ParseCursor accepts either an encoded cursor or a bare RFC3339 timestamp.
func ParseCursor(raw string) (*Cursor, error) {
	if raw == "" {
		return nil, nil
	}
	ts, id, _ := strings.Cut(raw, cursorSep)
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{CreatedAt: at, ID: id}, nil
}

// Before reports whether m sorts strictly after the cursor in newest-first order.
func (c Cursor) Before(m Message) bool {
	if m.CreatedAt.Before(c.CreatedAt) {
		return true
	}
	if c.ID == "" || !m.CreatedAt.Equal(c.CreatedAt) {
		return false
	}
	return m.ID < c.ID
}

// CursorOf returns the cursor positioned at m.
func CursorOf(m Message) Cursor {
	return Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
}
