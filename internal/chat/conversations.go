package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

const (
	maxTitleLength       = 200
	maxGroupParticipants = 100
	defaultListLimit     = 20
	maxListLimit         = 100
)

// CreateInput is the payload of conversation:create.
type CreateInput struct {
	ParticipantIDs []int64                 `json:"participantIds"`
	Type           models.ConversationKind `json:"type"`
	Title          *string                 `json:"title,omitempty"`
	AdID           *int64                  `json:"adId,omitempty"`
}

// members returns the creator plus every distinct participant, sorted.
func (in CreateInput) members(creatorID int64) ([]int64, error) {
	seen := map[int64]struct{}{creatorID: {}}
	ids := []int64{creatorID}
	for _, id := range in.ParticipantIDs {
		if id <= 0 {
			return nil, validation(fmt.Sprintf("invalid participant id %d", id))
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// CreateOrGet creates a conversation, or returns the existing direct
// conversation of the same pair. created reports whether a new one was made.
func (s *Service) CreateOrGet(ctx context.Context, creatorID int64, in CreateInput) (conv models.Conversation, created bool, err error) {
	ctx, span := tracer.Start(ctx, "chat.CreateOrGet", trace.WithAttributes(attribute.Int64("user.id", creatorID)))
	defer span.End()

	members, err := in.members(creatorID)
	if err != nil {
		return models.Conversation{}, false, err
	}
	if len(members) < 2 {
		return models.Conversation{}, false, validation("at least one other participant is required")
	}

	kind := in.Type
	if kind == "" {
		kind = models.ConversationDirect
		if len(members) > 2 {
			kind = models.ConversationGroup
		}
	}
	if !kind.Valid() {
		return models.Conversation{}, false, validation("unknown conversation type")
	}
	if kind == models.ConversationDirect && len(members) != 2 {
		return models.Conversation{}, false, validation("direct conversations have exactly two participants")
	}
	if len(members) > maxGroupParticipants {
		return models.Conversation{}, false, validation("too many participants")
	}

	title := in.Title
	if title != nil {
		trimmed := strings.TrimSpace(*title)
		if len([]rune(trimmed)) > maxTitleLength {
			return models.Conversation{}, false, validation("title is too long")
		}
		title = &trimmed
		if trimmed == "" {
			title = nil
		}
	}

	users, err := s.usersByIDStrict(ctx, members)
	if err != nil {
		return models.Conversation{}, false, err
	}

	switch kind {
	case models.ConversationDirect:
		peer := members[0]
		if peer == creatorID {
			peer = members[1]
		}
		conv, created, err = s.conversations.CreateOrGetDirect(ctx, creatorID, peer, in.AdID)
	default:
		conv, err = s.conversations.CreateConversation(ctx, models.NewConversation{
			Kind:      models.ConversationGroup,
			Title:     title,
			AdID:      in.AdID,
			CreatedBy: creatorID,
			MemberIDs: members,
		})
		created = err == nil
	}
	if err != nil {
		return models.Conversation{}, false, persistence("create conversation", err)
	}

	conv.Participants = s.participantViews(ctx, conv.ID, users)

	if !created {
		return conv, false, nil
	}

	for _, id := range members {
		s.hub.SubscribeUser(id, conv.ID)
	}
	s.hub.Broadcast(conv.ID, models.Event{Event: models.EventConversationCreated, Data: conv}, 0)

	s.emitAudit(ctx, fmt.Sprintf("conversation %d (%s) created with %d participants", conv.ID, conv.Kind, len(members)), creatorID)
	if err := observability.PublishChatEvent(ctx, "conversation_created", map[string]any{
		"conversation_id": conv.ID,
		"kind":            conv.Kind,
		"created_by":      creatorID,
		"participant_ids": members,
		"ad_id":           conv.AdID,
	}); err != nil {
		log.Warn().Err(err).Int64("conversation_id", conv.ID).Msg("failed to publish conversation_created")
	}
	return conv, true, nil
}

// usersByIDStrict requires every id to resolve to a user.
func (s *Service) usersByIDStrict(ctx context.Context, ids []int64) (map[int64]models.User, error) {
	users, err := s.users.GetUsers(ctx, ids)
	if err != nil {
		return nil, persistence("load participants", err)
	}
	byID := make(map[int64]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
		}
	}
	return byID, nil
}

// participantViews hydrates membership rows with display info and presence.
func (s *Service) participantViews(ctx context.Context, conversationID int64, users map[int64]models.User) []models.ParticipantView {
	participants, err := s.conversations.ListParticipants(ctx, conversationID)
	if err != nil {
		log.Warn().Err(err).Int64("conversation_id", conversationID).Msg("failed to load participants")
		return nil
	}
	if users == nil {
		ids := make([]int64, 0, len(participants))
		for _, p := range participants {
			ids = append(ids, p.UserID)
		}
		users = s.usersByID(ctx, ids)
	}

	views := make([]models.ParticipantView, 0, len(participants))
	for _, p := range participants {
		view := models.ParticipantView{Participant: p, IsOnline: s.hub.IsOnline(p.UserID)}
		if u, ok := users[p.UserID]; ok {
			user := u
			view.User = &user
		}
		views = append(views, view)
	}
	return views
}

func (s *Service) requireExistingMember(ctx context.Context, conversationID int64, userID int64) error {
	if _, err := s.conversations.GetConversation(ctx, conversationID); err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			return ErrNotFound
		}
		return persistence("get conversation", err)
	}
	return s.requireMember(ctx, conversationID, userID)
}

// GetConversation returns a conversation with hydrated participants.
func (s *Service) GetConversation(ctx context.Context, userID int64, conversationID int64) (models.Conversation, error) {
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if errors.Is(err, repositories.ErrConversationNotFound) {
		return models.Conversation{}, ErrNotFound
	}
	if err != nil {
		return models.Conversation{}, persistence("get conversation", err)
	}
	if err := s.requireMember(ctx, conversationID, userID); err != nil {
		return models.Conversation{}, err
	}
	conv.Participants = s.participantViews(ctx, conv.ID, nil)
	return conv, nil
}

// ListConversations returns a page of the user's conversation list with the
// last message and unread count of each.
func (s *Service) ListConversations(ctx context.Context, userID int64, archived bool, limit int, offset int) ([]models.ConversationSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	summaries, err := s.conversations.ListConversations(ctx, userID, archived, limit, offset)
	if err != nil {
		return nil, persistence("list conversations", err)
	}
	if len(summaries) == 0 {
		return []models.ConversationSummary{}, nil
	}

	ids := make([]int64, 0, len(summaries))
	for _, c := range summaries {
		ids = append(ids, c.ID)
	}
	last, err := s.messages.LastMessages(ctx, ids)
	if err != nil {
		return nil, persistence("load last messages", err)
	}
	for i := range summaries {
		if m, ok := last[summaries[i].ID]; ok {
			redacted := m.Redacted()
			summaries[i].LastMessage = &redacted
		}
	}
	return summaries, nil
}

// UnreadSummary is the per-conversation unread breakdown of one user.
type UnreadSummary struct {
	Total         int           `json:"total"`
	Conversations map[int64]int `json:"conversations"`
}

// Unread derives unread counts from the read cursors on demand.
func (s *Service) Unread(ctx context.Context, userID int64) (UnreadSummary, error) {
	counts, err := s.conversations.UnreadCounts(ctx, userID)
	if err != nil {
		return UnreadSummary{}, persistence("unread counts", err)
	}
	summary := UnreadSummary{Conversations: counts}
	for _, n := range counts {
		summary.Total += n
	}
	return summary, nil
}

// UpdateSettings changes the caller's mute and archive flags.
func (s *Service) UpdateSettings(ctx context.Context, userID int64, conversationID int64, settings models.ParticipantSettings) (models.Participant, error) {
	if settings.IsMuted == nil && settings.IsArchived == nil {
		return models.Participant{}, validation("nothing to update")
	}
	p, err := s.conversations.UpdateSettings(ctx, conversationID, userID, settings)
	if errors.Is(err, repositories.ErrParticipantNotFound) {
		return models.Participant{}, ErrUnauthorized
	}
	if err != nil {
		return models.Participant{}, persistence("update settings", err)
	}
	return p, nil
}

const (
	minSearchLength    = 2
	defaultSearchLimit = 20
)

// SearchUsers finds users whose display name or email contains q.
func (s *Service) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < minSearchLength {
		return nil, validation("query must be at least 2 characters")
	}
	if limit <= 0 || limit > maxListLimit {
		limit = defaultSearchLimit
	}
	users, err := s.users.SearchUsers(ctx, query, limit)
	if err != nil {
		return nil, persistence("search users", err)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}
