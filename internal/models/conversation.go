package models

import "time"

// ConversationKind distinguishes 1:1 threads from titled groups.
type ConversationKind string

const (
	ConversationDirect ConversationKind = "direct"
	ConversationGroup  ConversationKind = "group"
)

// Valid reports whether k is a known kind.
func (k ConversationKind) Valid() bool {
	return k == ConversationDirect || k == ConversationGroup
}

// Conversation is an addressable thread between participants, optionally tied to an ad.
type Conversation struct {
	ID            int64            `db:"id" json:"id"`
	Kind          ConversationKind `db:"kind" json:"type"`
	Title         *string          `db:"title" json:"title,omitempty"`
	AdID          *int64           `db:"ad_id" json:"adId,omitempty"`
	CreatedBy     int64            `db:"created_by" json:"createdBy"`
	CreatedAt     time.Time        `db:"created_at" json:"createdAt"`
	LastMessageAt time.Time        `db:"last_message_at" json:"lastMessageAt"`

	Participants []ParticipantView `db:"-" json:"participants,omitempty"`
}

// Participant is a user's membership record in a conversation.
type Participant struct {
	ConversationID int64      `db:"conversation_id" json:"conversationId"`
	UserID         int64      `db:"user_id" json:"userId"`
	IsMuted        bool       `db:"is_muted" json:"isMuted"`
	IsArchived     bool       `db:"is_archived" json:"isArchived"`
	LastReadAt     *time.Time `db:"last_read_at" json:"lastReadAt,omitempty"`
	JoinedAt       time.Time  `db:"joined_at" json:"joinedAt"`
}

// ParticipantView is a participant hydrated with display info and presence.
type ParticipantView struct {
	Participant
	User     *User `json:"user,omitempty"`
	IsOnline bool  `json:"isOnline"`
}

// ConversationSummary is the list-view projection of a conversation for one user.
type ConversationSummary struct {
	Conversation
	IsMuted     bool       `db:"is_muted" json:"isMuted"`
	IsArchived  bool       `db:"is_archived" json:"isArchived"`
	LastReadAt  *time.Time `db:"last_read_at" json:"lastReadAt,omitempty"`
	UnreadCount int        `db:"unread_count" json:"unreadCount"`
	LastMessage *Message   `db:"-" json:"lastMessage,omitempty"`
}

// ParticipantSettings carries optional per-participant flag updates.
type ParticipantSettings struct {
	IsMuted    *bool `json:"isMuted"`
	IsArchived *bool `json:"isArchived"`
}

// NewConversation is the input for creating a group conversation.
type NewConversation struct {
	Kind      ConversationKind
	Title     *string
	AdID      *int64
	CreatedBy int64
	MemberIDs []int64
}
