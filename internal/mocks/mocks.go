package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chat-server/internal/models"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) CreateUser(ctx context.Context, id, name, email, passwordHash string) (models.User, error) {
	args := m.Called(ctx, id, name, email, passwordHash)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, id string) (models.User, error) {
	args := m.Called(ctx, id)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	args := m.Called(ctx, email)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) ListUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) ListOnlineUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) CountUsers(ctx context.Context) (int, int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *UserRepositoryMock) SetOnlineStatus(ctx context.Context, id string, online bool, lastLogin *time.Time) error {
	args := m.Called(ctx, id, online, lastLogin)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, senderID, receiverID, content string, msgType models.MessageType, replyTo *int) (models.Message, error) {
	args := m.Called(ctx, senderID, receiverID, content, msgType, replyTo)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, id int) (models.Message, error) {
	args := m.Called(ctx, id)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateState(ctx context.Context, id int, state models.MessageState, at time.Time) error {
	args := m.Called(ctx, id, state, at)
	return args.Error(0)
}

func (m *MessageRepositoryMock) SetReaction(ctx context.Context, id int, userID string, kind models.ReactionKind) error {
	args := m.Called(ctx, id, userID, kind)
	return args.Error(0)
}

func (m *MessageRepositoryMock) ClearReaction(ctx context.Context, id int, userID string) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, id int, actorID string, at time.Time) error {
	args := m.Called(ctx, id, actorID, at)
	return args.Error(0)
}

func (m *MessageRepositoryMock) ListBetween(ctx context.Context, userA, userB string, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, userA, userB, limit, offset)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ListUnread(ctx context.Context, receiverID string) ([]models.Message, error) {
	args := m.Called(ctx, receiverID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) LastBetween(ctx context.Context, userA, userB string) (models.Message, error) {
	args := m.Called(ctx, userA, userB)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) SearchBetween(ctx context.Context, userA, userB, query string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, userA, userB, query, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}
