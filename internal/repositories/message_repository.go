package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrCursorNotFound  = errors.New("cursor message not in conversation")
)

const (
	messageColumns   = `id, conversation_id, sender_id, content, type, attachment_url, created_at, is_edited, edited_at, is_deleted, deleted_at`
	defaultPageLimit = 50
	maxPageLimit     = 100
)

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	ListMessages(ctx context.Context, conversationID int64, page models.MessagePage) ([]models.Message, error)
	LastMessages(ctx context.Context, conversationIDs []int64) (map[int64]models.Message, error)
	EditMessage(ctx context.Context, messageID int64, senderID int64, content string) (models.Message, error)
	SoftDeleteMessage(ctx context.Context, messageID int64, senderID int64) (models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage appends a message, advances the sender's read cursor and the
// conversation's last activity in a single transaction. It returns
// ErrParticipantNotFound, with nothing written, when the sender is not a member.
func (r *MessageRepo) CreateMessage(ctx context.Context, in models.NewMessage) (msg models.Message, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = tx.QueryRowxContext(ctx, `INSERT INTO messages (conversation_id, sender_id, content, type, attachment_url)
        VALUES ($1, $2, $3, $4, $5) RETURNING `+messageColumns,
		in.ConversationID, in.SenderID, in.Content, in.Type, in.AttachmentURL).StructScan(&msg); err != nil {
		return models.Message{}, err
	}

	res, err := tx.ExecContext(ctx, `UPDATE conversation_participants
        SET last_read_at = GREATEST(COALESCE(last_read_at, '-infinity'::timestamptz), $3)
        WHERE conversation_id=$1 AND user_id=$2`, in.ConversationID, in.SenderID, msg.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return models.Message{}, err
	}
	if count == 0 {
		err = ErrParticipantNotFound
		return models.Message{}, err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE conversations SET last_message_at = GREATEST(last_message_at, $2) WHERE id=$1`, in.ConversationID, msg.CreatedAt); err != nil {
		return models.Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// GetMessage retrieves a single message, deleted or not.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListMessages returns a window of history ordered by (created_at, id) ascending.
// Without a cursor the newest page is returned.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID int64, page models.MessagePage) ([]models.Message, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	var (
		msgs []models.Message
		err  error
	)
	switch {
	case page.After > 0:
		cur, cerr := r.cursor(ctx, conversationID, page.After)
		if cerr != nil {
			return nil, cerr
		}
		err = r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
            WHERE conversation_id=$1
            AND (created_at, id) > ($2, $3)
            ORDER BY created_at ASC, id ASC
            LIMIT $4`, conversationID, cur.CreatedAt, cur.ID, limit)
		return msgs, err
	case page.Before > 0:
		cur, cerr := r.cursor(ctx, conversationID, page.Before)
		if cerr != nil {
			return nil, cerr
		}
		err = r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
            WHERE conversation_id=$1
            AND (created_at, id) < ($2, $3)
            ORDER BY created_at DESC, id DESC
            LIMIT $4`, conversationID, cur.CreatedAt, cur.ID, limit)
	default:
		err = r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
            WHERE conversation_id=$1
            ORDER BY created_at DESC, id DESC
            LIMIT $2`, conversationID, limit)
	}
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

type pageCursor struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
}

// cursor resolves a keyset position. Ids of other conversations do not resolve.
func (r *MessageRepo) cursor(ctx context.Context, conversationID int64, messageID int64) (pageCursor, error) {
	var cur pageCursor
	err := r.db.GetContext(ctx, &cur, `SELECT id, created_at FROM messages WHERE id=$1 AND conversation_id=$2`, messageID, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return pageCursor{}, ErrCursorNotFound
	}
	return cur, err
}

// LastMessages returns the newest message of each conversation, keyed by conversation id.
func (r *MessageRepo) LastMessages(ctx context.Context, conversationIDs []int64) (map[int64]models.Message, error) {
	result := make(map[int64]models.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return result, nil
	}
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT DISTINCT ON (conversation_id) `+messageColumns+` FROM messages
        WHERE conversation_id = ANY($1)
        ORDER BY conversation_id, created_at DESC, id DESC`, pq.Array(conversationIDs))
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		result[m.ConversationID] = m
	}
	return result, nil
}

// EditMessage replaces the content of a live message owned by senderID.
func (r *MessageRepo) EditMessage(ctx context.Context, messageID int64, senderID int64, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `UPDATE messages SET content=$3, is_edited=TRUE, edited_at=NOW()
        WHERE id=$1 AND sender_id=$2 AND is_deleted=FALSE
        RETURNING `+messageColumns, messageID, senderID, content)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// SoftDeleteMessage flags a live message owned by senderID as deleted. The row and its content are kept.
func (r *MessageRepo) SoftDeleteMessage(ctx context.Context, messageID int64, senderID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `UPDATE messages SET is_deleted=TRUE, deleted_at=NOW()
        WHERE id=$1 AND sender_id=$2 AND is_deleted=FALSE
        RETURNING `+messageColumns, messageID, senderID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

func reverse(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
