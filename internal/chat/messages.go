package chat

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

const maxContentLength = 4000

// SendInput is the payload of message:send.
type SendInput struct {
	ConversationID int64              `json:"conversationId"`
	Content        string             `json:"content"`
	Type           models.MessageType `json:"type"`
	AttachmentURL  *string            `json:"attachmentUrl,omitempty"`
}

func (in *SendInput) normalize() error {
	if in.ConversationID <= 0 {
		return validation("conversationId is required")
	}
	if in.Type == "" {
		in.Type = models.MessageText
	}
	if !in.Type.Valid() {
		return validation("unknown message type")
	}
	if in.AttachmentURL != nil && strings.TrimSpace(*in.AttachmentURL) == "" {
		in.AttachmentURL = nil
	}
	switch in.Type {
	case models.MessageText:
		if strings.TrimSpace(in.Content) == "" {
			return validation("content is required")
		}
	default:
		if in.AttachmentURL == nil {
			return validation("attachmentUrl is required for " + string(in.Type) + " messages")
		}
	}
	if utf8.RuneCountInString(in.Content) > maxContentLength {
		return validation("content is too long")
	}
	return nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return validation("content is required")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return validation("content is too long")
	}
	return nil
}

// SendMessage persists a message and fans it out to the conversation room,
// message:new first and conversation:updated second.
func (s *Service) SendMessage(ctx context.Context, senderID int64, in SendInput) (models.Message, error) {
	ctx, span := tracer.Start(ctx, "chat.SendMessage", trace.WithAttributes(
		attribute.Int64("conversation.id", in.ConversationID),
		attribute.Int64("user.id", senderID),
	))
	defer span.End()

	if err := in.normalize(); err != nil {
		return models.Message{}, err
	}
	if err := s.requireMember(ctx, in.ConversationID, senderID); err != nil {
		return models.Message{}, err
	}

	unlock := s.rooms.lock(in.ConversationID)
	defer unlock()

	msg, err := s.messages.CreateMessage(ctx, models.NewMessage{
		ConversationID: in.ConversationID,
		SenderID:       senderID,
		Content:        in.Content,
		Type:           in.Type,
		AttachmentURL:  in.AttachmentURL,
	})
	if errors.Is(err, repositories.ErrParticipantNotFound) {
		return models.Message{}, ErrUnauthorized
	}
	if err != nil {
		return models.Message{}, persistence("create message", err)
	}

	if sender, err := s.users.GetUser(ctx, senderID); err == nil {
		msg.Sender = &sender
	} else {
		log.Warn().Err(err).Int64("user_id", senderID).Msg("failed to hydrate message sender")
	}

	s.hub.Broadcast(msg.ConversationID, models.Event{Event: models.EventMessageNew, Data: msg}, 0)
	last := msg
	s.hub.Broadcast(msg.ConversationID, models.Event{
		Event: models.EventConversationUpdated,
		Data: models.ConversationUpdated{
			ConversationID: msg.ConversationID,
			LastMessage:    &last,
			LastMessageAt:  msg.CreatedAt,
		},
	}, 0)

	observability.IncMessageSent(string(msg.Type))
	if err := observability.PublishChatEvent(ctx, "message_sent", map[string]any{
		"message_id":      msg.ID,
		"conversation_id": msg.ConversationID,
		"sender_id":       msg.SenderID,
		"type":            msg.Type,
		"created_at":      msg.CreatedAt,
	}); err != nil {
		log.Warn().Err(err).Int64("message_id", msg.ID).Msg("failed to publish message_sent")
	}
	return msg, nil
}

// loadOwnMessage returns the message when it exists and userID wrote it.
func (s *Service) loadOwnMessage(ctx context.Context, userID int64, messageID int64) (models.Message, error) {
	if messageID <= 0 {
		return models.Message{}, validation("messageId is required")
	}
	msg, err := s.messages.GetMessage(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, ErrNotFound
	}
	if err != nil {
		return models.Message{}, persistence("get message", err)
	}
	if msg.SenderID != userID {
		return models.Message{}, ErrUnauthorized
	}
	return msg, nil
}

// EditMessage replaces the content of the caller's own message.
func (s *Service) EditMessage(ctx context.Context, userID int64, messageID int64, content string) (models.Message, error) {
	ctx, span := tracer.Start(ctx, "chat.EditMessage", trace.WithAttributes(attribute.Int64("message.id", messageID)))
	defer span.End()

	if err := validateContent(content); err != nil {
		return models.Message{}, err
	}
	msg, err := s.loadOwnMessage(ctx, userID, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.IsDeleted {
		return models.Message{}, ErrNotFound
	}

	unlock := s.rooms.lock(msg.ConversationID)
	defer unlock()

	updated, err := s.messages.EditMessage(ctx, messageID, userID, content)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, ErrNotFound
	}
	if err != nil {
		return models.Message{}, persistence("edit message", err)
	}

	editedAt := s.now()
	if updated.EditedAt != nil {
		editedAt = *updated.EditedAt
	}
	s.hub.Broadcast(updated.ConversationID, models.Event{
		Event: models.EventMessageEdited,
		Data: models.MessageEdited{
			MessageID:      updated.ID,
			ConversationID: updated.ConversationID,
			NewContent:     updated.Content,
			EditedAt:       editedAt,
		},
	}, 0)
	return updated, nil
}

// DeleteMessage soft-deletes the caller's own message. Deleting an already
// deleted message succeeds without a second broadcast.
func (s *Service) DeleteMessage(ctx context.Context, userID int64, messageID int64) (models.Message, error) {
	ctx, span := tracer.Start(ctx, "chat.DeleteMessage", trace.WithAttributes(attribute.Int64("message.id", messageID)))
	defer span.End()

	msg, err := s.loadOwnMessage(ctx, userID, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.IsDeleted {
		return msg.Redacted(), nil
	}

	unlock := s.rooms.lock(msg.ConversationID)
	defer unlock()

	deleted, err := s.messages.SoftDeleteMessage(ctx, messageID, userID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		// lost a race with another delete of the same message
		current, getErr := s.messages.GetMessage(ctx, messageID)
		if getErr == nil && current.IsDeleted {
			return current.Redacted(), nil
		}
		return models.Message{}, ErrNotFound
	}
	if err != nil {
		return models.Message{}, persistence("delete message", err)
	}

	deletedAt := s.now()
	if deleted.DeletedAt != nil {
		deletedAt = *deleted.DeletedAt
	}
	s.hub.Broadcast(deleted.ConversationID, models.Event{
		Event: models.EventMessageDeleted,
		Data: models.MessageDeleted{
			MessageID:      deleted.ID,
			ConversationID: deleted.ConversationID,
			DeletedAt:      deletedAt,
		},
	}, 0)
	return deleted.Redacted(), nil
}

// MarkRead advances the caller's read cursor and tells the rest of the room,
// leaving out only the connection the request came from. For a non-member it
// is a no-op that returns a zero time.
func (s *Service) MarkRead(ctx context.Context, userID int64, conversationID int64) (models.MessageRead, error) {
	ctx, span := tracer.Start(ctx, "chat.MarkRead", trace.WithAttributes(attribute.Int64("conversation.id", conversationID)))
	defer span.End()

	if conversationID <= 0 {
		return models.MessageRead{}, validation("conversationId is required")
	}

	unlock := s.rooms.lock(conversationID)
	defer unlock()

	readAt, err := s.conversations.MarkRead(ctx, conversationID, userID)
	if errors.Is(err, repositories.ErrParticipantNotFound) {
		return models.MessageRead{ConversationID: conversationID, UserID: userID}, nil
	}
	if err != nil {
		return models.MessageRead{}, persistence("mark read", err)
	}

	receipt := models.MessageRead{ConversationID: conversationID, UserID: userID, ReadAt: readAt}
	evt := models.Event{Event: models.EventMessageRead, Data: receipt}
	// the reader's other tabs still need the event to clear their badges
	if connID := connIDFrom(ctx); connID != "" {
		s.hub.BroadcastExceptConn(conversationID, evt, connID)
	} else {
		s.hub.Broadcast(conversationID, evt, 0)
	}
	return receipt, nil
}

// ListMessages returns a page of history as seen by a member. Deleted
// messages keep their slot with content removed.
func (s *Service) ListMessages(ctx context.Context, userID int64, conversationID int64, page models.MessagePage) ([]models.Message, error) {
	ctx, span := tracer.Start(ctx, "chat.ListMessages", trace.WithAttributes(attribute.Int64("conversation.id", conversationID)))
	defer span.End()

	if page.Before > 0 && page.After > 0 {
		return nil, validation("before and after are mutually exclusive")
	}
	if err := s.requireExistingMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	msgs, err := s.messages.ListMessages(ctx, conversationID, page)
	if errors.Is(err, repositories.ErrCursorNotFound) {
		return nil, validation("cursor is not a message of this conversation")
	}
	if err != nil {
		return nil, persistence("list messages", err)
	}

	senders := s.usersByID(ctx, senderIDs(msgs))
	for i := range msgs {
		msgs[i] = msgs[i].Redacted()
		if u, ok := senders[msgs[i].SenderID]; ok {
			user := u
			msgs[i].Sender = &user
		}
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

func senderIDs(msgs []models.Message) []int64 {
	seen := make(map[int64]struct{}, len(msgs))
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; ok {
			continue
		}
		seen[m.SenderID] = struct{}{}
		ids = append(ids, m.SenderID)
	}
	return ids
}

// usersByID loads display info; lookup failures degrade to missing entries.
func (s *Service) usersByID(ctx context.Context, ids []int64) map[int64]models.User {
	result := make(map[int64]models.User, len(ids))
	if len(ids) == 0 {
		return result
	}
	users, err := s.users.GetUsers(ctx, ids)
	if err != nil {
		log.Warn().Err(err).Int("count", len(ids)).Msg("failed to load users")
		return result
	}
	for _, u := range users {
		result[u.ID] = u
	}
	return result
}
