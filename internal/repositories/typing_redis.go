package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"messaging-service/internal/models"
)

// RedisTypingStore keeps typing indicators in redis so they can be shared
// between instances. Each conversation is a sorted set of user ids scored by
// expiry (unix ms), with start times in a companion hash; each user has a set
// of the conversations they are typing in.
type RedisTypingStore struct {
	client *redis.Client
}

// NewRedisTypingStore wraps an existing redis client.
func NewRedisTypingStore(client *redis.Client) *RedisTypingStore {
	return &RedisTypingStore{client: client}
}

func typingConversationKey(conversationID int64) string {
	return fmt.Sprintf("typing:conv:%d", conversationID)
}

func typingStartedKey(conversationID int64) string {
	return fmt.Sprintf("typing:conv:%d:started", conversationID)
}

func typingUserKey(userID int64) string {
	return fmt.Sprintf("typing:user:%d", userID)
}

// Upsert creates the indicator or refreshes its expiry. Expired members of the
// conversation are trimmed on the way.
func (s *RedisTypingStore) Upsert(ctx context.Context, ind models.TypingIndicator) error {
	convKey := typingConversationKey(ind.ConversationID)
	startedKey := typingStartedKey(ind.ConversationID)
	userKey := typingUserKey(ind.UserID)
	member := strconv.FormatInt(ind.UserID, 10)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, convKey, "-inf", strconv.FormatInt(ind.StartedAt.UnixMilli(), 10))
		pipe.ZAdd(ctx, convKey, redis.Z{Score: float64(ind.ExpiresAt.UnixMilli()), Member: member})
		pipe.HSet(ctx, startedKey, member, ind.StartedAt.UnixMilli())
		pipe.SAdd(ctx, userKey, ind.ConversationID)
		pipe.PExpireAt(ctx, convKey, ind.ExpiresAt)
		pipe.PExpireAt(ctx, startedKey, ind.ExpiresAt)
		pipe.PExpireAt(ctx, userKey, ind.ExpiresAt)
		return nil
	})
	return err
}

// Remove deletes the indicator of one user in one conversation.
func (s *RedisTypingStore) Remove(ctx context.Context, conversationID int64, userID int64) error {
	member := strconv.FormatInt(userID, 10)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, typingConversationKey(conversationID), member)
		pipe.HDel(ctx, typingStartedKey(conversationID), member)
		pipe.SRem(ctx, typingUserKey(userID), conversationID)
		return nil
	})
	return err
}

// RemoveUser deletes every indicator of the user and returns what was removed.
func (s *RedisTypingStore) RemoveUser(ctx context.Context, userID int64) ([]models.TypingIndicator, error) {
	userKey := typingUserKey(userID)
	members, err := s.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, err
	}
	member := strconv.FormatInt(userID, 10)

	removed := make([]models.TypingIndicator, 0, len(members))
	for _, raw := range members {
		conversationID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		convKey := typingConversationKey(conversationID)
		score, err := s.client.ZScore(ctx, convKey, member).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := s.Remove(ctx, conversationID, userID); err != nil {
			return nil, err
		}
		removed = append(removed, models.TypingIndicator{
			ConversationID: conversationID,
			UserID:         userID,
			ExpiresAt:      time.UnixMilli(int64(score)),
		})
	}
	if err := s.client.Del(ctx, userKey).Err(); err != nil {
		return nil, err
	}
	return removed, nil
}

// Active returns the unexpired indicators of a conversation.
func (s *RedisTypingStore) Active(ctx context.Context, conversationID int64, now time.Time) ([]models.TypingIndicator, error) {
	entries, err := s.client.ZRangeByScoreWithScores(ctx, typingConversationKey(conversationID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []models.TypingIndicator{}, nil
	}

	fields := make([]string, 0, len(entries))
	for _, e := range entries {
		fields = append(fields, fmt.Sprint(e.Member))
	}
	started, err := s.client.HMGet(ctx, typingStartedKey(conversationID), fields...).Result()
	if err != nil {
		return nil, err
	}

	active := make([]models.TypingIndicator, 0, len(entries))
	for i, e := range entries {
		userID, err := strconv.ParseInt(fields[i], 10, 64)
		if err != nil {
			continue
		}
		ind := models.TypingIndicator{
			ConversationID: conversationID,
			UserID:         userID,
			ExpiresAt:      time.UnixMilli(int64(e.Score)),
		}
		if raw, ok := started[i].(string); ok {
			if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
				ind.StartedAt = time.UnixMilli(ms)
			}
		}
		active = append(active, ind)
	}
	return active, nil
}
