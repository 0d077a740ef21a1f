package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"connection-chat/internal/models"
	"connection-chat/internal/repositories"
)

type ProfileRepositoryMock struct {
	mock.Mock
}

func (m *ProfileRepositoryMock) DoctorProfileID(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *ProfileRepositoryMock) PatientProfileID(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *ProfileRepositoryMock) GetIdentity(ctx context.Context, userID string) (models.IdentitySnapshot, error) {
	args := m.Called(ctx, userID)
	var snap models.IdentitySnapshot
	if val := args.Get(0); val != nil {
		snap = val.(models.IdentitySnapshot)
	}
	return snap, args.Error(1)
}

type IdentityResolverMock struct {
	mock.Mock
}

func (m *IdentityResolverMock) Snapshot(ctx context.Context, userID string) (models.IdentitySnapshot, error) {
	args := m.Called(ctx, userID)
	var snap models.IdentitySnapshot
	if val := args.Get(0); val != nil {
		snap = val.(models.IdentitySnapshot)
	}
	return snap, args.Error(1)
}

type PresenceMock struct {
	mock.Mock
}

func (m *PresenceMock) IsOnline(ctx context.Context, userID string) bool {
	args := m.Called(ctx, userID)
	return args.Bool(0)
}

func (m *PresenceMock) OnlineSet(ctx context.Context, userIDs []string) map[string]bool {
	args := m.Called(ctx, userIDs)
	var set map[string]bool
	if val := args.Get(0); val != nil {
		set = val.(map[string]bool)
	}
	return set
}

type MessengerMock struct {
	mock.Mock
}

func (m *MessengerMock) Send(ctx context.Context, chatID, senderID, content string, msgType models.MessageType) (models.MessageView, error) {
	args := m.Called(ctx, chatID, senderID, content, msgType)
	var view models.MessageView
	if val := args.Get(0); val != nil {
		view = val.(models.MessageView)
	}
	return view, args.Error(1)
}

func (m *MessengerMock) MarkRead(ctx context.Context, messageID, userID string) (models.Message, error) {
	args := m.Called(ctx, messageID, userID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessengerMock) MarkAllRead(ctx context.Context, chatID, userID string) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *MessengerMock) Delete(ctx context.Context, messageID, userID string) (models.Message, error) {
	args := m.Called(ctx, messageID, userID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

var _ repositories.ProfileRepository = (*ProfileRepositoryMock)(nil)
