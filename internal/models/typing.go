package models

import "time"

// TypingIndicator is a short-lived "user is typing" signal.
type TypingIndicator struct {
	ConversationID int64     `db:"conversation_id" json:"conversationId"`
	UserID         int64     `db:"user_id" json:"userId"`
	StartedAt      time.Time `db:"started_at" json:"startedAt"`
	ExpiresAt      time.Time `db:"expires_at" json:"expiresAt"`
}

// Active reports whether the indicator has not expired at now.
func (t TypingIndicator) Active(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}
