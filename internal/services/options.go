package services

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type settings struct {
	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

// Option customizes a service.
type Option func(*settings)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithIDGenerator overrides how new row ids are minted.
func WithIDGenerator(newID func() string) Option {
	return func(s *settings) { s.newID = newID }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

func newSettings(opts []Option) settings {
	s := settings{now: time.Now, newID: newID, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// newID mints time-ordered ids so that id order follows creation order.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
