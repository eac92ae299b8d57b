package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	args := m.Called(ctx, routingKey, event, headers)
	return args.Error(0)
}

func TestPublishEventWithoutPublisher(t *testing.T) {
	SetPublisher(nil)
	require.NoError(t, PublishEvent(context.Background(), RoutingWSEvents, EventEnvelope{}, nil))
}

func TestPublishChatEventRoutingKey(t *testing.T) {
	pub := new(publisherMock)
	SetPublisher(pub)
	t.Cleanup(func() { SetPublisher(nil) })

	pub.On("Publish", mock.Anything, "chat_events.message_sent", mock.MatchedBy(func(e EventEnvelope) bool {
		return e.EventType == "chat_events" && e.EventName == "message_sent"
	}), map[string]string(nil)).Return(nil).Once()

	require.NoError(t, PublishChatEvent(context.Background(), "message_sent", map[string]int{"id": 1}))
	pub.AssertExpectations(t)
}

func TestPublishEventReturnsPublisherError(t *testing.T) {
	pub := new(publisherMock)
	SetPublisher(pub)
	t.Cleanup(func() { SetPublisher(nil) })

	pub.On("Publish", mock.Anything, RoutingWSEvents, mock.Anything, mock.Anything).Return(assert.AnError).Once()

	err := PublishEvent(context.Background(), RoutingWSEvents, EventEnvelope{}, BuildHeaders("req", "trace"))
	require.ErrorIs(t, err, assert.AnError)
}

func TestBuildHeaders(t *testing.T) {
	assert.Equal(t, map[string]string{"x-request-id": "r", "trace_id": "t"}, BuildHeaders("r", "t"))
	assert.Empty(t, BuildHeaders("", ""))
}
