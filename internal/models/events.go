package models

import "time"

// Server-to-room event names.
const (
	EventMessageNew          = "message:new"
	EventConversationUpdated = "conversation:updated"
	EventMessageEdited       = "message:edited"
	EventMessageDeleted      = "message:deleted"
	EventMessageRead         = "message:read"
	EventTypingStarted       = "typing:user-started"
	EventTypingStopped       = "typing:user-stopped"
	EventUserStatus          = "user:status"
	EventConversationCreated = "conversation:created"
	EventConnected           = "connected"
	EventAck                 = "ack"
)

// Client-to-server event names.
const (
	EventMessageSend        = "message:send"
	EventMessageReadRequest = "message:read"
	EventMessageEdit        = "message:edit"
	EventMessageDelete      = "message:delete"
	EventTypingStart        = "typing:start"
	EventTypingStop         = "typing:stop"
	EventConversationCreate = "conversation:create"
)

// Event is a server-pushed frame.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ConversationUpdated lets list views refresh without re-fetching.
type ConversationUpdated struct {
	ConversationID int64     `json:"conversationId"`
	LastMessage    *Message  `json:"lastMessage"`
	LastMessageAt  time.Time `json:"lastMessageAt"`
}

type MessageEdited struct {
	MessageID      int64     `json:"messageId"`
	ConversationID int64     `json:"conversationId"`
	NewContent     string    `json:"newContent"`
	EditedAt       time.Time `json:"editedAt"`
}

type MessageDeleted struct {
	MessageID      int64     `json:"messageId"`
	ConversationID int64     `json:"conversationId"`
	DeletedAt      time.Time `json:"deletedAt"`
}

type MessageRead struct {
	ConversationID int64     `json:"conversationId"`
	UserID         int64     `json:"userId"`
	ReadAt         time.Time `json:"readAt"`
}

type TypingChanged struct {
	ConversationID int64      `json:"conversationId"`
	UserID         int64      `json:"userId"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

type UserStatus struct {
	UserID   int64 `json:"userId"`
	IsOnline bool  `json:"isOnline"`
}

type Connected struct {
	UserID          int64   `json:"userId"`
	ConnectionID    string  `json:"connectionId"`
	ConversationIDs []int64 `json:"conversationIds"`
}
