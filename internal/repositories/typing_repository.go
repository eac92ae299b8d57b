package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

// TypingRepo keeps typing indicators in the typing_indicators table.
// Rows may outlive their expiry; every read filters on expires_at.
type TypingRepo struct {
	db *sqlx.DB
}

// NewTypingRepo constructs a TypingRepo.
func NewTypingRepo(db *sqlx.DB) *TypingRepo {
	return &TypingRepo{db: db}
}

// Upsert creates the indicator or refreshes its expiry.
func (r *TypingRepo) Upsert(ctx context.Context, ind models.TypingIndicator) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO typing_indicators (conversation_id, user_id, started_at, expires_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (conversation_id, user_id) DO UPDATE SET
            started_at = CASE WHEN typing_indicators.expires_at > EXCLUDED.started_at
                THEN typing_indicators.started_at ELSE EXCLUDED.started_at END,
            expires_at = EXCLUDED.expires_at`, ind.ConversationID, ind.UserID, ind.StartedAt, ind.ExpiresAt)
	return err
}

// Remove deletes the indicator of one user in one conversation.
func (r *TypingRepo) Remove(ctx context.Context, conversationID int64, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM typing_indicators WHERE conversation_id=$1 AND user_id=$2`, conversationID, userID)
	return err
}

// RemoveUser deletes every indicator of the user and returns what was removed.
func (r *TypingRepo) RemoveUser(ctx context.Context, userID int64) ([]models.TypingIndicator, error) {
	var removed []models.TypingIndicator
	err := r.db.SelectContext(ctx, &removed, `DELETE FROM typing_indicators WHERE user_id=$1
        RETURNING conversation_id, user_id, started_at, expires_at`, userID)
	return removed, err
}

// Active returns the unexpired indicators of a conversation.
func (r *TypingRepo) Active(ctx context.Context, conversationID int64, now time.Time) ([]models.TypingIndicator, error) {
	var active []models.TypingIndicator
	err := r.db.SelectContext(ctx, &active, `SELECT conversation_id, user_id, started_at, expires_at
        FROM typing_indicators
        WHERE conversation_id=$1 AND expires_at > $2
        ORDER BY started_at, user_id`, conversationID, now)
	return active, err
}

// DeleteExpired garbage-collects indicators that expired before now.
func (r *TypingRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM typing_indicators WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
