package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

var tracer = otel.Tracer("messaging-service/chat")

// Hub is the room fan-out the pipelines broadcast through.
type Hub interface {
	Subscribe(connID string, conversationIDs ...int64)
	SubscribeUser(userID int64, conversationID int64)
	Broadcast(conversationID int64, evt models.Event, exceptUserID int64)
	BroadcastExceptConn(conversationID int64, evt models.Event, exceptConnID string)
	IsOnline(userID int64) bool
}

// TypingStore keeps short-lived typing indicators.
type TypingStore interface {
	Upsert(ctx context.Context, ind models.TypingIndicator) error
	Remove(ctx context.Context, conversationID int64, userID int64) error
	RemoveUser(ctx context.Context, userID int64) ([]models.TypingIndicator, error)
	Active(ctx context.Context, conversationID int64, now time.Time) ([]models.TypingIndicator, error)
}

// expiredSweeper is implemented by stores that need expired rows collected.
type expiredSweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

const defaultTypingTTL = 5 * time.Second

// Options tune a Service.
type Options struct {
	TypingTTL time.Duration
	Audit     *telemetry.AuditEmitter
	Now       func() time.Time
}

// Service implements the messaging pipelines shared by the websocket and REST surfaces.
type Service struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	users         repositories.UserRepository
	typing        TypingStore
	hub           Hub
	audit         *telemetry.AuditEmitter

	typingTTL time.Duration
	now       func() time.Time
	rooms     *roomLocks
	presence  *roomLocks
}

// NewService builds a Service.
func NewService(conversations repositories.ConversationRepository, messages repositories.MessageRepository, users repositories.UserRepository, typing TypingStore, hub Hub, opts Options) *Service {
	if opts.TypingTTL <= 0 {
		opts.TypingTTL = defaultTypingTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		conversations: conversations,
		messages:      messages,
		users:         users,
		typing:        typing,
		hub:           hub,
		audit:         opts.Audit,
		typingTTL:     opts.TypingTTL,
		now:           opts.Now,
		rooms:         newRoomLocks(),
		presence:      newRoomLocks(),
	}
}

// Connect subscribes a freshly authenticated connection to every conversation
// of the user and announces the user online when this is their first connection.
func (s *Service) Connect(ctx context.Context, connID string, userID int64, first bool) ([]int64, error) {
	ctx, span := tracer.Start(ctx, "chat.Connect")
	defer span.End()

	ids, err := s.conversations.ListConversationIDs(ctx, userID)
	if err != nil {
		return nil, persistence("list conversations", err)
	}
	s.hub.Subscribe(connID, ids...)

	if first {
		unlock := s.presence.lock(userID)
		// the connection may already be gone again
		if s.hub.IsOnline(userID) {
			s.fanOutStatus(ids, userID, true)
		}
		unlock()
	}
	return ids, nil
}

// Disconnect clears the user's typing state and, when the last connection is
// gone, announces the user offline. Status changes of one user are fanned out
// one at a time so the last announcement always matches the registry.
func (s *Service) Disconnect(ctx context.Context, userID int64, last bool) {
	ctx, span := tracer.Start(ctx, "chat.Disconnect")
	defer span.End()

	removed, err := s.typing.RemoveUser(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("failed to clear typing indicators")
	}
	now := s.now()
	for _, ind := range removed {
		if !ind.Active(now) {
			continue
		}
		s.hub.Broadcast(ind.ConversationID, models.Event{
			Event: models.EventTypingStopped,
			Data:  models.TypingChanged{ConversationID: ind.ConversationID, UserID: userID},
		}, userID)
	}

	if !last {
		return
	}
	unlock := s.presence.lock(userID)
	defer unlock()
	if s.hub.IsOnline(userID) {
		// reconnected while the old connection was torn down
		return
	}
	ids, err := s.conversations.ListConversationIDs(ctx, userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("failed to load conversations for offline status")
		return
	}
	s.fanOutStatus(ids, userID, false)
}

func (s *Service) fanOutStatus(conversationIDs []int64, userID int64, online bool) {
	evt := models.Event{
		Event: models.EventUserStatus,
		Data:  models.UserStatus{UserID: userID, IsOnline: online},
	}
	for _, id := range conversationIDs {
		s.hub.Broadcast(id, evt, userID)
	}
}

// OnlineUsers reports presence for the given ids.
func (s *Service) OnlineUsers(ids []int64) map[int64]bool {
	result := make(map[int64]bool, len(ids))
	for _, id := range ids {
		result[id] = s.hub.IsOnline(id)
	}
	return result
}

func (s *Service) requireMember(ctx context.Context, conversationID int64, userID int64) error {
	member, err := s.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return persistence("check membership", err)
	}
	if !member {
		return ErrUnauthorized
	}
	return nil
}

func (s *Service) emitAudit(ctx context.Context, text string, userID int64) {
	if s.audit == nil {
		return
	}
	uid := userID
	s.audit.Emit(ctx, "INFO", text, requestIDFrom(ctx), &uid)
}
