package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/auth"
	"messaging-service/internal/chat"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
)

const testSecret = "socket-test-secret"

type socketFixture struct {
	server *httptest.Server
	hub    *Hub
	convs  *mocks.ConversationRepositoryMock
	msgs   *mocks.MessageRepositoryMock
	users  *mocks.UserRepositoryMock
	typing *mocks.TypingStoreMock
	auth   *auth.Authenticator
}

// newSocketFixture builds a server over mocked repositories. setups run before
// the catch-all expectations, so they can register more specific ones.
func newSocketFixture(t *testing.T, setups ...func(*socketFixture)) *socketFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &socketFixture{
		hub:    NewHub(),
		convs:  new(mocks.ConversationRepositoryMock),
		msgs:   new(mocks.MessageRepositoryMock),
		users:  new(mocks.UserRepositoryMock),
		typing: new(mocks.TypingStoreMock),
		auth:   auth.NewAuthenticator(testSecret),
	}
	svc := chat.NewService(f.convs, f.msgs, f.users, f.typing, f.hub, chat.Options{TypingTTL: 5 * time.Second})

	router := gin.New()
	router.GET("/ws", NewSocketHandler(f.hub, svc, f.auth, 16).Handle)
	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)

	for _, setup := range setups {
		setup(f)
	}
	// disconnect bookkeeping may run after a test returns
	f.typing.On("RemoveUser", mock.Anything, mock.Anything).Return(nil, nil).Maybe()
	return f
}

func (f *socketFixture) dial(t *testing.T, userID int64) *websocket.Conn {
	t.Helper()
	token, err := f.auth.Issue(auth.Identity{UserID: userID}, time.Minute)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	evt := readUntil(t, conn, models.EventConnected)
	require.NotNil(t, evt)
	return conn
}

type inbound struct {
	Event string          `json:"event"`
	AckID string          `json:"ackId"`
	Data  json.RawMessage `json:"data"`
	Error *ackError       `json:"error"`
}

func readUntil(t *testing.T, conn *websocket.Conn, event string) inbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", event)
		var frame inbound
		require.NoError(t, json.Unmarshal(data, &frame))
		if frame.Event == event {
			return frame
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, event, ackID string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(clientFrame{Event: event, AckID: ackID, Data: raw}))
}

func TestSocketRejectsMissingToken(t *testing.T) {
	f := newSocketFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, f.hub.OnlineCount())
}

func TestSocketRejectsBadSignature(t *testing.T) {
	f := newSocketFixture(t)
	token, err := auth.NewAuthenticator("other-secret").Issue(auth.Identity{UserID: 1}, time.Minute)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSocketSendReachesRoomInOrder(t *testing.T) {
	f := newSocketFixture(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	f.convs.On("ListConversationIDs", mock.Anything, mock.Anything).Return([]int64{10}, nil)
	f.convs.On("IsParticipant", mock.Anything, int64(10), int64(1)).Return(true, nil)
	f.msgs.On("CreateMessage", mock.Anything, mock.Anything).Return(models.Message{
		ID: 100, ConversationID: 10, SenderID: 1, Content: "hi", Type: models.MessageText, CreatedAt: now,
	}, nil).Once()
	f.users.On("GetUser", mock.Anything, int64(1)).Return(models.User{ID: 1, DisplayName: "Alice"}, nil)

	alice := f.dial(t, 1)
	bob := f.dial(t, 2)

	send(t, alice, models.EventMessageSend, "a1", map[string]any{"conversationId": 10, "content": "hi"})

	ack := readUntil(t, alice, models.EventAck)
	assert.Equal(t, "a1", ack.AckID)
	require.Nil(t, ack.Error)
	var persisted models.Message
	require.NoError(t, json.Unmarshal(ack.Data, &persisted))
	assert.Equal(t, int64(100), persisted.ID)

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(2*time.Second)))
	var names []string
	for len(names) < 2 {
		_, data, err := bob.ReadMessage()
		require.NoError(t, err)
		var frame inbound
		require.NoError(t, json.Unmarshal(data, &frame))
		if frame.Event == models.EventMessageNew || frame.Event == models.EventConversationUpdated {
			names = append(names, frame.Event)
		}
		if frame.Event == models.EventConversationUpdated {
			var updated models.ConversationUpdated
			require.NoError(t, json.Unmarshal(frame.Data, &updated))
			assert.Equal(t, "hi", updated.LastMessage.Content)
		}
	}
	assert.Equal(t, []string{models.EventMessageNew, models.EventConversationUpdated}, names)
}

func TestSocketUnauthorizedSendAcksErrorOnly(t *testing.T) {
	f := newSocketFixture(t)

	f.convs.On("ListConversationIDs", mock.Anything, int64(3)).Return([]int64{}, nil)
	f.convs.On("IsParticipant", mock.Anything, int64(10), int64(3)).Return(false, nil).Once()

	mallory := f.dial(t, 3)
	send(t, mallory, models.EventMessageSend, "m1", map[string]any{"conversationId": 10, "content": "hi"})

	ack := readUntil(t, mallory, models.EventAck)
	require.NotNil(t, ack.Error)
	assert.Equal(t, "unauthorized", ack.Error.Code)
	f.msgs.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestSocketMalformedPayload(t *testing.T) {
	f := newSocketFixture(t)

	f.convs.On("ListConversationIDs", mock.Anything, int64(1)).Return([]int64{}, nil)

	conn := f.dial(t, 1)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"message:send","ackId":"x","data":"nope"}`)))

	ack := readUntil(t, conn, models.EventAck)
	require.NotNil(t, ack.Error)
	assert.Equal(t, "validation_failed", ack.Error.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"bogus","ackId":"y"}`)))
	ack = readUntil(t, conn, models.EventAck)
	require.NotNil(t, ack.Error)
	assert.Equal(t, "bad_request", ack.Error.Code)
}

func TestSocketDisconnectAnnouncesOffline(t *testing.T) {
	f := newSocketFixture(t)

	f.convs.On("ListConversationIDs", mock.Anything, mock.Anything).Return([]int64{10}, nil)

	alice := f.dial(t, 1)
	bob := f.dial(t, 2)

	status := readUntil(t, alice, models.EventUserStatus)
	var online models.UserStatus
	require.NoError(t, json.Unmarshal(status.Data, &online))
	assert.Equal(t, models.UserStatus{UserID: 2, IsOnline: true}, online)

	require.NoError(t, bob.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	bob.Close()

	status = readUntil(t, alice, models.EventUserStatus)
	var offline models.UserStatus
	require.NoError(t, json.Unmarshal(status.Data, &offline))
	assert.Equal(t, models.UserStatus{UserID: 2, IsOnline: false}, offline)
}

func TestSocketSecondTabKeepsUserOnline(t *testing.T) {
	f := newSocketFixture(t)

	f.convs.On("ListConversationIDs", mock.Anything, mock.Anything).Return([]int64{10}, nil)

	f.dial(t, 1)
	tab2 := f.dial(t, 1)

	require.NoError(t, tab2.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	tab2.Close()

	assert.Eventually(t, func() bool {
		f.hub.mu.Lock()
		defer f.hub.mu.Unlock()
		return len(f.hub.userClients[1]) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, f.hub.IsOnline(1))
}
