package observability

import (
	"context"
)

// Routing keys on the events exchange.
const (
	RoutingWSEvents   = "ws_events.conversations"
	routingChatPrefix = "chat_events."
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// Publisher is the event bus the service writes to.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

var defaultPublisher Publisher

func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

// PublishEvent sends an envelope on the event bus. It is a no-op until SetPublisher is called.
func PublishEvent(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.Publish(ctx, routingKey, message, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}

// PublishChatEvent publishes a domain event such as message_sent under chat_events.<name>.
func PublishChatEvent(ctx context.Context, name string, payload interface{}) error {
	return PublishEvent(ctx, routingChatPrefix+name, EventEnvelope{
		EventType: "chat_events",
		EventName: name,
		Payload:   payload,
	}, nil)
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
