package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"marketplace-messaging/internal/auth"
	"marketplace-messaging/internal/models"
	"marketplace-messaging/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) CreateOrGet(ctx context.Context, userID int, partnerID int) (models.Conversation, error) {
	args := m.Called(ctx, userID, partnerID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) Get(ctx context.Context, conversationID int) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) MarkRead(ctx context.Context, conversationID int, viewerID int) error {
	args := m.Called(ctx, conversationID, viewerID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, conversationID int, senderID int, content string) (models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListForConversation(ctx context.Context, conversationID int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(ctx context.Context, token string) (models.Identity, error) {
	args := m.Called(ctx, token)
	var identity models.Identity
	if val := args.Get(0); val != nil {
		identity = val.(models.Identity)
	}
	return identity, args.Error(1)
}

type UserDirectoryMock struct {
	mock.Mock
}

func (m *UserDirectoryMock) BulkUsers(ctx context.Context, ids []int) ([]models.Identity, error) {
	args := m.Called(ctx, ids)
	var users []models.Identity
	if val := args.Get(0); val != nil {
		users = val.([]models.Identity)
	}
	return users, args.Error(1)
}

var _ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ auth.Verifier = (*VerifierMock)(nil)
var _ auth.UserDirectory = (*UserDirectoryMock)(nil)
