package ws

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
)

func TestSocketCreateSendReadFlow(t *testing.T) {
	f := newSocketFixture(t)
	sentAt := time.Now().UTC().Truncate(time.Millisecond)
	readAt := sentAt.Add(time.Second)

	f.convs.On("ListConversationIDs", mock.Anything, mock.Anything).Return([]int64{}, nil)
	f.users.On("GetUsers", mock.Anything, []int64{1, 2}).Return([]models.User{
		{ID: 1, DisplayName: "Seller"}, {ID: 2, DisplayName: "Buyer"},
	}, nil).Once()
	f.convs.On("CreateOrGetDirect", mock.Anything, int64(1), int64(2), mock.Anything).
		Return(models.Conversation{ID: 20, Kind: models.ConversationDirect, CreatedBy: 1}, true, nil).Once()
	f.convs.On("ListParticipants", mock.Anything, int64(20)).Return([]models.Participant{
		{ConversationID: 20, UserID: 1}, {ConversationID: 20, UserID: 2},
	}, nil).Once()
	f.convs.On("IsParticipant", mock.Anything, int64(20), int64(1)).Return(true, nil)
	f.msgs.On("CreateMessage", mock.Anything, mock.Anything).Return(models.Message{
		ID: 200, ConversationID: 20, SenderID: 1, Content: "still available", Type: models.MessageText, CreatedAt: sentAt,
	}, nil).Once()
	f.users.On("GetUser", mock.Anything, int64(1)).Return(models.User{ID: 1, DisplayName: "Seller"}, nil)
	f.convs.On("MarkRead", mock.Anything, int64(20), int64(2)).Return(readAt, nil).Once()

	seller := f.dial(t, 1)
	buyer := f.dial(t, 2)

	// the conversation is created after both are connected
	send(t, seller, models.EventConversationCreate, "c1", map[string]any{"participantIds": []int64{2}})
	ack := readUntil(t, seller, models.EventAck)
	require.Nil(t, ack.Error)
	assert.Equal(t, "c1", ack.AckID)

	created := readUntil(t, buyer, models.EventConversationCreated)
	var conv models.Conversation
	require.NoError(t, json.Unmarshal(created.Data, &conv))
	assert.Equal(t, int64(20), conv.ID)
	assert.Len(t, conv.Participants, 2)

	send(t, seller, models.EventMessageSend, "s1", map[string]any{"conversationId": 20, "content": "still available"})
	ack = readUntil(t, seller, models.EventAck)
	require.Nil(t, ack.Error)

	incoming := readUntil(t, buyer, models.EventMessageNew)
	var msg models.Message
	require.NoError(t, json.Unmarshal(incoming.Data, &msg))
	assert.Equal(t, int64(200), msg.ID)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "Seller", msg.Sender.DisplayName)
	readUntil(t, buyer, models.EventConversationUpdated)

	send(t, buyer, models.EventMessageReadRequest, "r1", map[string]any{"conversationId": 20})
	ack = readUntil(t, buyer, models.EventAck)
	require.Nil(t, ack.Error)

	receipt := readUntil(t, seller, models.EventMessageRead)
	var read models.MessageRead
	require.NoError(t, json.Unmarshal(receipt.Data, &read))
	assert.Equal(t, int64(2), read.UserID)
	assert.Equal(t, int64(20), read.ConversationID)
	assert.False(t, read.ReadAt.Before(sentAt))
}

func TestSocketReadReachesReadersOtherTab(t *testing.T) {
	f := newSocketFixture(t)

	f.convs.On("ListConversationIDs", mock.Anything, mock.Anything).Return([]int64{10}, nil)
	f.convs.On("MarkRead", mock.Anything, int64(10), int64(2)).Return(time.Now().UTC(), nil).Once()

	phone := f.dial(t, 2)
	laptop := f.dial(t, 2)

	send(t, phone, models.EventMessageReadRequest, "r1", map[string]any{"conversationId": 10})
	ack := readUntil(t, phone, models.EventAck)
	require.Nil(t, ack.Error)

	receipt := readUntil(t, laptop, models.EventMessageRead)
	var read models.MessageRead
	require.NoError(t, json.Unmarshal(receipt.Data, &read))
	assert.Equal(t, int64(2), read.UserID)
}

func TestSocketEditThenDelete(t *testing.T) {
	f := newSocketFixture(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	original := models.Message{ID: 100, ConversationID: 10, SenderID: 1, Content: "price is 50", Type: models.MessageText, CreatedAt: now}

	f.convs.On("ListConversationIDs", mock.Anything, mock.Anything).Return([]int64{10}, nil)
	f.msgs.On("GetMessage", mock.Anything, int64(100)).Return(original, nil)
	edited := original
	edited.Content, edited.IsEdited, edited.EditedAt = "price is 45", true, &now
	f.msgs.On("EditMessage", mock.Anything, int64(100), int64(1), "price is 45").Return(edited, nil).Once()
	deleted := edited
	deleted.IsDeleted, deleted.DeletedAt = true, &now
	f.msgs.On("SoftDeleteMessage", mock.Anything, int64(100), int64(1)).Return(deleted, nil).Once()

	author := f.dial(t, 1)
	peer := f.dial(t, 2)

	send(t, author, models.EventMessageEdit, "e1", map[string]any{"messageId": 100, "newContent": "price is 45"})
	ack := readUntil(t, author, models.EventAck)
	require.Nil(t, ack.Error)

	evt := readUntil(t, peer, models.EventMessageEdited)
	var change models.MessageEdited
	require.NoError(t, json.Unmarshal(evt.Data, &change))
	assert.Equal(t, models.MessageEdited{MessageID: 100, ConversationID: 10, NewContent: "price is 45", EditedAt: now}, change)

	send(t, author, models.EventMessageDelete, "d1", map[string]any{"messageId": 100})
	ack = readUntil(t, author, models.EventAck)
	require.Nil(t, ack.Error)
	var redacted models.Message
	require.NoError(t, json.Unmarshal(ack.Data, &redacted))
	assert.True(t, redacted.IsDeleted)
	assert.Empty(t, redacted.Content)

	evt = readUntil(t, peer, models.EventMessageDeleted)
	assert.False(t, strings.Contains(string(evt.Data), "price"))
	var removal models.MessageDeleted
	require.NoError(t, json.Unmarshal(evt.Data, &removal))
	assert.Equal(t, int64(100), removal.MessageID)
}

func TestSocketEditOfOthersMessageIsUnauthorized(t *testing.T) {
	f := newSocketFixture(t)

	f.convs.On("ListConversationIDs", mock.Anything, mock.Anything).Return([]int64{10}, nil)
	f.msgs.On("GetMessage", mock.Anything, int64(100)).Return(models.Message{ID: 100, ConversationID: 10, SenderID: 1}, nil).Once()

	intruder := f.dial(t, 2)
	send(t, intruder, models.EventMessageEdit, "e1", map[string]any{"messageId": 100, "newContent": "hijacked"})

	ack := readUntil(t, intruder, models.EventAck)
	require.NotNil(t, ack.Error)
	assert.Equal(t, "unauthorized", ack.Error.Code)
	f.msgs.AssertNotCalled(t, "EditMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSocketTypingStartAndStop(t *testing.T) {
	f := newSocketFixture(t)

	f.convs.On("ListConversationIDs", mock.Anything, mock.Anything).Return([]int64{10}, nil)
	f.convs.On("IsParticipant", mock.Anything, int64(10), int64(1)).Return(true, nil)
	f.typing.On("Upsert", mock.Anything, mock.MatchedBy(func(ind models.TypingIndicator) bool {
		return ind.ConversationID == 10 && ind.UserID == 1 && ind.ExpiresAt.Sub(ind.StartedAt) == 5*time.Second
	})).Return(nil).Once()
	f.typing.On("Remove", mock.Anything, int64(10), int64(1)).Return(nil).Once()

	typist := f.dial(t, 1)
	watcher := f.dial(t, 2)

	send(t, typist, models.EventTypingStart, "", map[string]any{"conversationId": 10})
	started := readUntil(t, watcher, models.EventTypingStarted)
	var on models.TypingChanged
	require.NoError(t, json.Unmarshal(started.Data, &on))
	assert.Equal(t, int64(1), on.UserID)
	require.NotNil(t, on.ExpiresAt)

	send(t, typist, models.EventTypingStop, "", map[string]any{"conversationId": 10})
	stopped := readUntil(t, watcher, models.EventTypingStopped)
	var off models.TypingChanged
	require.NoError(t, json.Unmarshal(stopped.Data, &off))
	assert.Equal(t, int64(1), off.UserID)
	assert.Nil(t, off.ExpiresAt)
}

func TestSocketDisconnectWhileTyping(t *testing.T) {
	f := newSocketFixture(t, func(f *socketFixture) {
		f.typing.On("RemoveUser", mock.Anything, int64(1)).Return([]models.TypingIndicator{
			{ConversationID: 10, UserID: 1, ExpiresAt: time.Now().Add(time.Minute)},
		}, nil).Once()
	})

	f.convs.On("ListConversationIDs", mock.Anything, mock.Anything).Return([]int64{10}, nil)
	f.convs.On("IsParticipant", mock.Anything, int64(10), int64(1)).Return(true, nil)
	f.typing.On("Upsert", mock.Anything, mock.Anything).Return(nil).Once()

	typist := f.dial(t, 1)
	watcher := f.dial(t, 2)

	send(t, typist, models.EventTypingStart, "", map[string]any{"conversationId": 10})
	readUntil(t, watcher, models.EventTypingStarted)

	typist.Close()

	stopped := readUntil(t, watcher, models.EventTypingStopped)
	var off models.TypingChanged
	require.NoError(t, json.Unmarshal(stopped.Data, &off))
	assert.Equal(t, models.TypingChanged{ConversationID: 10, UserID: 1}, off)

	status := readUntil(t, watcher, models.EventUserStatus)
	var offline models.UserStatus
	require.NoError(t, json.Unmarshal(status.Data, &offline))
	assert.Equal(t, models.UserStatus{UserID: 1, IsOnline: false}, offline)
}
