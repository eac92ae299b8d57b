package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// StartTyping records a typing indicator with a fresh expiry and tells the
// rest of the room. Repeated calls only push the expiry forward.
func (s *Service) StartTyping(ctx context.Context, userID int64, conversationID int64) error {
	if err := s.requireMember(ctx, conversationID, userID); err != nil {
		return err
	}

	now := s.now()
	ind := models.TypingIndicator{
		ConversationID: conversationID,
		UserID:         userID,
		StartedAt:      now,
		ExpiresAt:      now.Add(s.typingTTL),
	}
	if err := s.typing.Upsert(ctx, ind); err != nil {
		log.Warn().Err(err).Int64("conversation_id", conversationID).Int64("user_id", userID).Msg("failed to store typing indicator")
	}

	expiresAt := ind.ExpiresAt
	s.hub.Broadcast(conversationID, models.Event{
		Event: models.EventTypingStarted,
		Data:  models.TypingChanged{ConversationID: conversationID, UserID: userID, ExpiresAt: &expiresAt},
	}, userID)
	return nil
}

// StopTyping removes the indicator and tells the rest of the room.
func (s *Service) StopTyping(ctx context.Context, userID int64, conversationID int64) error {
	if err := s.requireMember(ctx, conversationID, userID); err != nil {
		return err
	}

	if err := s.typing.Remove(ctx, conversationID, userID); err != nil {
		log.Warn().Err(err).Int64("conversation_id", conversationID).Int64("user_id", userID).Msg("failed to remove typing indicator")
	}
	s.hub.Broadcast(conversationID, models.Event{
		Event: models.EventTypingStopped,
		Data:  models.TypingChanged{ConversationID: conversationID, UserID: userID},
	}, userID)
	return nil
}

// ActiveTyping lists who is typing in a conversation right now. Expired
// indicators are never returned, swept or not.
func (s *Service) ActiveTyping(ctx context.Context, userID int64, conversationID int64) ([]models.TypingIndicator, error) {
	if err := s.requireMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	now := s.now()
	indicators, err := s.typing.Active(ctx, conversationID, now)
	if err != nil {
		return nil, persistence("list typing", err)
	}
	active := make([]models.TypingIndicator, 0, len(indicators))
	for _, ind := range indicators {
		if ind.Active(now) {
			active = append(active, ind)
		}
	}
	return active, nil
}

// SweepTyping deletes expired indicators when the store needs it.
func (s *Service) SweepTyping(ctx context.Context) (int64, error) {
	sweeper, ok := s.typing.(expiredSweeper)
	if !ok {
		return 0, nil
	}
	n, err := sweeper.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, persistence("sweep typing", err)
	}
	observability.AddTypingSwept(n)
	return n, nil
}

// RunTypingSweeper calls SweepTyping every interval until ctx is done.
func (s *Service) RunTypingSweeper(ctx context.Context, interval time.Duration) {
	if _, ok := s.typing.(expiredSweeper); !ok || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepTyping(ctx)
			if err != nil {
				log.Error().Err(err).Msg("typing sweep failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("expired typing indicators swept")
			}
		}
	}
}
