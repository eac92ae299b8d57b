package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrParticipantNotFound  = errors.New("participant not found")
)

const conversationColumns = `c.id, c.kind, c.title, c.ad_id, c.created_by, c.created_at, c.last_message_at`

const participantColumns = `conversation_id, user_id, is_muted, is_archived, last_read_at, joined_at`

// ConversationRepository abstracts conversation and participant persistence.
type ConversationRepository interface {
	CreateOrGetDirect(ctx context.Context, creatorID int64, peerID int64, adID *int64) (models.Conversation, bool, error)
	CreateConversation(ctx context.Context, in models.NewConversation) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error)
	ListParticipants(ctx context.Context, conversationID int64) ([]models.Participant, error)
	GetParticipant(ctx context.Context, conversationID int64, userID int64) (models.Participant, error)
	IsParticipant(ctx context.Context, conversationID int64, userID int64) (bool, error)
	ListConversationIDs(ctx context.Context, userID int64) ([]int64, error)
	ListConversations(ctx context.Context, userID int64, archived bool, limit int, offset int) ([]models.ConversationSummary, error)
	UnreadCounts(ctx context.Context, userID int64) (map[int64]int, error)
	MarkRead(ctx context.Context, conversationID int64, userID int64) (time.Time, error)
	UpdateSettings(ctx context.Context, conversationID int64, userID int64, settings models.ParticipantSettings) (models.Participant, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateOrGetDirect returns the direct conversation between the two users,
// creating it when none exists. The pair is serialized with a transaction-scoped
// advisory lock so concurrent calls cannot both miss the lookup.
func (r *ConversationRepo) CreateOrGetDirect(ctx context.Context, creatorID int64, peerID int64, adID *int64) (conv models.Conversation, created bool, err error) {
	if creatorID == peerID {
		return models.Conversation{}, false, errors.New("cannot create direct conversation with self")
	}
	pair := []int64{creatorID, peerID}
	sort.Slice(pair, func(i, j int) bool { return pair[i] < pair[j] })

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	lockKey := fmt.Sprintf("direct:%d:%d", pair[0], pair[1])
	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return models.Conversation{}, false, err
	}

	err = tx.GetContext(ctx, &conv, `SELECT `+conversationColumns+`
        FROM conversations c
        JOIN conversation_participants p ON p.conversation_id = c.id
        WHERE c.kind = 'direct'
        AND c.id IN (SELECT conversation_id FROM conversation_participants WHERE user_id = $1)
        GROUP BY c.id
        HAVING COUNT(*) = 2 AND BOOL_OR(p.user_id = $1) AND BOOL_OR(p.user_id = $2)
        ORDER BY c.id
        LIMIT 1`, pair[0], pair[1])
	switch {
	case err == nil:
		if err = tx.Commit(); err != nil {
			return models.Conversation{}, false, err
		}
		return conv, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return models.Conversation{}, false, err
	}

	conv, err = insertConversation(ctx, tx, models.NewConversation{
		Kind:      models.ConversationDirect,
		AdID:      adID,
		CreatedBy: creatorID,
		MemberIDs: pair,
	})
	if err != nil {
		return models.Conversation{}, false, err
	}
	if err = tx.Commit(); err != nil {
		return models.Conversation{}, false, err
	}
	return conv, true, nil
}

// CreateConversation creates a conversation and its participants atomically.
func (r *ConversationRepo) CreateConversation(ctx context.Context, in models.NewConversation) (conv models.Conversation, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	conv, err = insertConversation(ctx, tx, in)
	if err != nil {
		return models.Conversation{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

func insertConversation(ctx context.Context, tx *sqlx.Tx, in models.NewConversation) (models.Conversation, error) {
	var conv models.Conversation
	err := tx.QueryRowxContext(ctx, `INSERT INTO conversations (kind, title, ad_id, created_by) VALUES ($1, $2, $3, $4)
        RETURNING id, kind, title, ad_id, created_by, created_at, last_message_at`, in.Kind, in.Title, in.AdID, in.CreatedBy).
		StructScan(&conv)
	if err != nil {
		return models.Conversation{}, err
	}

	// owner first, then the rest in id order
	ids := make([]int64, 0, len(in.MemberIDs)+1)
	seen := map[int64]struct{}{in.CreatedBy: {}}
	ids = append(ids, in.CreatedBy)
	rest := make([]int64, 0, len(in.MemberIDs))
	for _, id := range in.MemberIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		rest = append(rest, id)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	ids = append(ids, rest...)

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`, conv.ID, id); err != nil {
			return models.Conversation{}, err
		}
	}
	return conv, nil
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations c WHERE c.id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// ListParticipants returns every membership record of a conversation.
func (r *ConversationRepo) ListParticipants(ctx context.Context, conversationID int64) ([]models.Participant, error) {
	var participants []models.Participant
	err := r.db.SelectContext(ctx, &participants, `SELECT `+participantColumns+` FROM conversation_participants WHERE conversation_id=$1 ORDER BY joined_at, user_id`, conversationID)
	return participants, err
}

// GetParticipant fetches one membership record.
func (r *ConversationRepo) GetParticipant(ctx context.Context, conversationID int64, userID int64) (models.Participant, error) {
	var p models.Participant
	err := r.db.GetContext(ctx, &p, `SELECT `+participantColumns+` FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2`, conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Participant{}, ErrParticipantNotFound
	}
	return p, err
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID int64, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)`, conversationID, userID)
	return exists, err
}

// ListConversationIDs returns the ids of every conversation the user belongs to, archived included.
func (r *ConversationRepo) ListConversationIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `SELECT conversation_id FROM conversation_participants WHERE user_id=$1 ORDER BY conversation_id`, userID)
	return ids, err
}

// ListConversations returns a page of the user's conversations, most recently active first.
func (r *ConversationRepo) ListConversations(ctx context.Context, userID int64, archived bool, limit int, offset int) ([]models.ConversationSummary, error) {
	query := `SELECT ` + conversationColumns + `, p.is_muted, p.is_archived, p.last_read_at,
        (SELECT COUNT(*) FROM messages m
            WHERE m.conversation_id = c.id
            AND m.sender_id <> p.user_id
            AND m.is_deleted = FALSE
            AND m.created_at > COALESCE(p.last_read_at, '-infinity'::timestamptz)) AS unread_count
        FROM conversations c
        JOIN conversation_participants p ON p.conversation_id = c.id AND p.user_id = $1
        WHERE p.is_archived = $2
        ORDER BY c.last_message_at DESC, c.id DESC
        LIMIT $3 OFFSET $4`
	var result []models.ConversationSummary
	err := r.db.SelectContext(ctx, &result, query, userID, archived, limit, offset)
	return result, err
}

// UnreadCounts computes the unread message count of every conversation of the user.
// Counts are derived on demand from the read cursor and never cached.
func (r *ConversationRepo) UnreadCounts(ctx context.Context, userID int64) (map[int64]int, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT p.conversation_id, COUNT(m.id)
        FROM conversation_participants p
        JOIN messages m ON m.conversation_id = p.conversation_id
            AND m.sender_id <> p.user_id
            AND m.is_deleted = FALSE
            AND m.created_at > COALESCE(p.last_read_at, '-infinity'::timestamptz)
        WHERE p.user_id = $1
        GROUP BY p.conversation_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[int64]int{}
	for rows.Next() {
		var conversationID int64
		var count int
		if err := rows.Scan(&conversationID, &count); err != nil {
			return nil, err
		}
		counts[conversationID] = count
	}
	return counts, rows.Err()
}

// MarkRead advances the participant's read cursor to now and returns it.
func (r *ConversationRepo) MarkRead(ctx context.Context, conversationID int64, userID int64) (time.Time, error) {
	var readAt time.Time
	err := r.db.GetContext(ctx, &readAt, `UPDATE conversation_participants
        SET last_read_at = GREATEST(COALESCE(last_read_at, '-infinity'::timestamptz), NOW())
        WHERE conversation_id=$1 AND user_id=$2
        RETURNING last_read_at`, conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrParticipantNotFound
	}
	return readAt, err
}

// UpdateSettings applies mute / archive changes for one participant.
func (r *ConversationRepo) UpdateSettings(ctx context.Context, conversationID int64, userID int64, settings models.ParticipantSettings) (models.Participant, error) {
	var p models.Participant
	err := r.db.GetContext(ctx, &p, `UPDATE conversation_participants
        SET is_muted = COALESCE($3, is_muted), is_archived = COALESCE($4, is_archived)
        WHERE conversation_id=$1 AND user_id=$2
        RETURNING `+participantColumns, conversationID, userID, settings.IsMuted, settings.IsArchived)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Participant{}, ErrParticipantNotFound
	}
	return p, err
}
