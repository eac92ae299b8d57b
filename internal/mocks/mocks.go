package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/models"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) CreateOrGetDirect(ctx context.Context, creatorID int64, peerID int64, adID *int64) (models.Conversation, bool, error) {
	args := m.Called(ctx, creatorID, peerID, adID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Bool(1), args.Error(2)
}

func (m *ConversationRepositoryMock) CreateConversation(ctx context.Context, in models.NewConversation) (models.Conversation, error) {
	args := m.Called(ctx, in)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) ListParticipants(ctx context.Context, conversationID int64) ([]models.Participant, error) {
	args := m.Called(ctx, conversationID)
	var list []models.Participant
	if val := args.Get(0); val != nil {
		list = val.([]models.Participant)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) GetParticipant(ctx context.Context, conversationID int64, userID int64) (models.Participant, error) {
	args := m.Called(ctx, conversationID, userID)
	var p models.Participant
	if val := args.Get(0); val != nil {
		p = val.(models.Participant)
	}
	return p, args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, conversationID int64, userID int64) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) ListConversationIDs(ctx context.Context, userID int64) ([]int64, error) {
	args := m.Called(ctx, userID)
	var ids []int64
	if val := args.Get(0); val != nil {
		ids = val.([]int64)
	}
	return ids, args.Error(1)
}

func (m *ConversationRepositoryMock) ListConversations(ctx context.Context, userID int64, archived bool, limit int, offset int) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, userID, archived, limit, offset)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) UnreadCounts(ctx context.Context, userID int64) (map[int64]int, error) {
	args := m.Called(ctx, userID)
	var counts map[int64]int
	if val := args.Get(0); val != nil {
		counts = val.(map[int64]int)
	}
	return counts, args.Error(1)
}

func (m *ConversationRepositoryMock) MarkRead(ctx context.Context, conversationID int64, userID int64) (time.Time, error) {
	args := m.Called(ctx, conversationID, userID)
	var readAt time.Time
	if val := args.Get(0); val != nil {
		readAt = val.(time.Time)
	}
	return readAt, args.Error(1)
}

func (m *ConversationRepositoryMock) UpdateSettings(ctx context.Context, conversationID int64, userID int64, settings models.ParticipantSettings) (models.Participant, error) {
	args := m.Called(ctx, conversationID, userID, settings)
	var p models.Participant
	if val := args.Get(0); val != nil {
		p = val.(models.Participant)
	}
	return p, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	args := m.Called(ctx, in)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, conversationID int64, page models.MessagePage) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, page)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) LastMessages(ctx context.Context, conversationIDs []int64) (map[int64]models.Message, error) {
	args := m.Called(ctx, conversationIDs)
	var last map[int64]models.Message
	if val := args.Get(0); val != nil {
		last = val.(map[int64]models.Message)
	}
	return last, args.Error(1)
}

func (m *MessageRepositoryMock) EditMessage(ctx context.Context, messageID int64, senderID int64, content string) (models.Message, error) {
	args := m.Called(ctx, messageID, senderID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDeleteMessage(ctx context.Context, messageID int64, senderID int64) (models.Message, error) {
	args := m.Called(ctx, messageID, senderID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int64) (models.User, error) {
	args := m.Called(ctx, userID)
	var u models.User
	if val := args.Get(0); val != nil {
		u = val.(models.User)
	}
	return u, args.Error(1)
}

func (m *UserRepositoryMock) GetUsers(ctx context.Context, ids []int64) ([]models.User, error) {
	args := m.Called(ctx, ids)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	args := m.Called(ctx, query, limit)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type TypingStoreMock struct {
	mock.Mock
}

func (m *TypingStoreMock) Upsert(ctx context.Context, ind models.TypingIndicator) error {
	args := m.Called(ctx, ind)
	return args.Error(0)
}

func (m *TypingStoreMock) Remove(ctx context.Context, conversationID int64, userID int64) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}

func (m *TypingStoreMock) RemoveUser(ctx context.Context, userID int64) ([]models.TypingIndicator, error) {
	args := m.Called(ctx, userID)
	var removed []models.TypingIndicator
	if val := args.Get(0); val != nil {
		removed = val.([]models.TypingIndicator)
	}
	return removed, args.Error(1)
}

func (m *TypingStoreMock) Active(ctx context.Context, conversationID int64, now time.Time) ([]models.TypingIndicator, error) {
	args := m.Called(ctx, conversationID, now)
	var active []models.TypingIndicator
	if val := args.Get(0); val != nil {
		active = val.([]models.TypingIndicator)
	}
	return active, args.Error(1)
}

// SweepingTypingStoreMock is a TypingStoreMock that also collects expired rows.
type SweepingTypingStoreMock struct {
	TypingStoreMock
}

func (m *SweepingTypingStoreMock) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}
