package models

import "time"

// MessageType is the payload kind of a message.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile:
		return true
	}
	return false
}

// Message is an append-only conversation entry. Edits and deletes are soft.
type Message struct {
	ID             int64       `db:"id" json:"id"`
	ConversationID int64       `db:"conversation_id" json:"conversationId"`
	SenderID       int64       `db:"sender_id" json:"senderId"`
	Content        string      `db:"content" json:"content"`
	Type           MessageType `db:"type" json:"type"`
	AttachmentURL  *string     `db:"attachment_url" json:"attachmentUrl,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"createdAt"`
	IsEdited       bool        `db:"is_edited" json:"isEdited"`
	EditedAt       *time.Time  `db:"edited_at" json:"editedAt,omitempty"`
	IsDeleted      bool        `db:"is_deleted" json:"isDeleted"`
	DeletedAt      *time.Time  `db:"deleted_at" json:"deletedAt,omitempty"`

	Sender *User `db:"-" json:"sender,omitempty"`
}

// Redacted hides the body of a soft-deleted message from readers.
func (m Message) Redacted() Message {
	if m.IsDeleted {
		m.Content = ""
		m.AttachmentURL = nil
	}
	return m
}

// NewMessage is the input of the send pipeline.
type NewMessage struct {
	ConversationID int64
	SenderID       int64
	Content        string
	Type           MessageType
	AttachmentURL  *string
}

// MessagePage selects a keyset window of a conversation's history.
// Before and After are message ids; zero means unbounded.
type MessagePage struct {
	Before int64
	After  int64
	Limit  int
}
