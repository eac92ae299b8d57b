package ws

import "encoding/json"

// clientFrame is an inbound event. AckID is echoed back on the ack.
type clientFrame struct {
	Event string          `json:"event"`
	AckID string          `json:"ackId,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ackError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ackFrame struct {
	Event string    `json:"event"`
	AckID string    `json:"ackId,omitempty"`
	Data  any       `json:"data,omitempty"`
	Error *ackError `json:"error,omitempty"`
}

type conversationRef struct {
	ConversationID int64 `json:"conversationId"`
}

type messageEdit struct {
	MessageID  int64  `json:"messageId"`
	NewContent string `json:"newContent"`
}

type messageRef struct {
	MessageID int64 `json:"messageId"`
}
