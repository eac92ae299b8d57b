package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"messaging-service/internal/auth"
	"messaging-service/internal/chat"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// Pipelines is the subset of the chat service driven by socket events.
type Pipelines interface {
	Connect(ctx context.Context, connID string, userID int64, first bool) ([]int64, error)
	Disconnect(ctx context.Context, userID int64, last bool)
	SendMessage(ctx context.Context, senderID int64, in chat.SendInput) (models.Message, error)
	EditMessage(ctx context.Context, userID int64, messageID int64, content string) (models.Message, error)
	DeleteMessage(ctx context.Context, userID int64, messageID int64) (models.Message, error)
	MarkRead(ctx context.Context, userID int64, conversationID int64) (models.MessageRead, error)
	StartTyping(ctx context.Context, userID int64, conversationID int64) error
	StopTyping(ctx context.Context, userID int64, conversationID int64) error
	CreateOrGet(ctx context.Context, creatorID int64, in chat.CreateInput) (models.Conversation, bool, error)
}

// SocketHandler authenticates, upgrades and serves realtime connections.
type SocketHandler struct {
	hub        *Hub
	pipelines  Pipelines
	auth       *auth.Authenticator
	sendBuffer int
}

// NewSocketHandler constructs a SocketHandler.
func NewSocketHandler(hub *Hub, pipelines Pipelines, authenticator *auth.Authenticator, sendBuffer int) *SocketHandler {
	return &SocketHandler{hub: hub, pipelines: pipelines, auth: authenticator, sendBuffer: sendBuffer}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle verifies the credential before upgrading, then serves the
// connection until it closes.
func (h *SocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")

	identity, err := h.auth.ValidateToken(auth.TokenFromRequest(c.Request))
	if err != nil {
		span.End()
		observability.IncWSEvent("ws_unauthenticated")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	span.SetAttributes(attribute.Int64("user.id", identity.UserID))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.End()
		log.Warn().Err(err).Int64("user_id", identity.UserID).Msg("websocket upgrade failed")
		return
	}

	info := ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      identity.UserID,
		Email:       identity.Email,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	span.End()

	// the connection outlives the upgrade request; keep its values, drop its cancellation
	h.serve(context.WithoutCancel(ctx), conn, info)
}

func (h *SocketHandler) serve(ctx context.Context, conn *websocket.Conn, info ConnInfo) {
	ctx = chat.WithConnID(chat.WithRequestID(ctx, info.RequestID), info.ConnID)
	logger := log.With().Str("conn_id", info.ConnID).Int64("user_id", info.UserID).Logger()

	client := newClient(conn, info, h.sendBuffer)
	first := h.hub.Register(client)
	go client.writePump()

	observability.IncWSActive()
	publishWSEvent(ctx, "ws_connect", info, "")

	closeReason := ""
	defer func() {
		last := h.hub.Unregister(client)
		client.Close(websocket.CloseNormalClosure, "")
		h.pipelines.Disconnect(ctx, info.UserID, last)

		observability.DecWSActive()
		publishWSEvent(ctx, "ws_disconnect", info, closeReason)
		logger.Debug().Str("reason", closeReason).Bool("last", last).Msg("websocket closed")
	}()

	ids, err := h.pipelines.Connect(ctx, info.ConnID, info.UserID, first)
	if err != nil {
		closeReason = "connect failed"
		logger.Error().Err(err).Msg("failed to join conversation rooms")
		client.Close(websocket.CloseInternalServerErr, chat.PublicMessage(err))
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	h.hub.Send(client, models.Event{
		Event: models.EventConnected,
		Data:  models.Connected{UserID: info.UserID, ConnectionID: info.ConnID, ConversationIDs: ids},
	})
	logger.Debug().Int("rooms", len(ids)).Bool("first", first).Msg("websocket connected")

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !client.closed() {
				publishWSEvent(ctx, "ws_error", info, closeReason)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			h.hub.Send(client, ackFrame{Event: models.EventAck, Error: &ackError{Code: "bad_request", Message: "malformed frame"}})
			continue
		}
		h.dispatch(ctx, client, logger, frame)
	}
}

func (h *SocketHandler) dispatch(ctx context.Context, client *Client, logger zerolog.Logger, frame clientFrame) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(ctx, "ws.event", trace.WithAttributes(
		attribute.String("ws.event", frame.Event),
		attribute.String("ws.conn_id", client.ID()),
	))
	defer span.End()
	if _, ok := clientEvents[frame.Event]; ok {
		observability.IncWSEvent(frame.Event)
	} else {
		observability.IncWSEvent("unknown")
	}

	userID := client.UserID()
	var (
		data any
		err  error
	)
	switch frame.Event {
	case models.EventMessageSend:
		var in chat.SendInput
		if err = decode(frame.Data, &in); err == nil {
			data, err = h.pipelines.SendMessage(ctx, userID, in)
		}
	case models.EventMessageReadRequest:
		var in conversationRef
		if err = decode(frame.Data, &in); err == nil {
			data, err = h.pipelines.MarkRead(ctx, userID, in.ConversationID)
		}
	case models.EventMessageEdit:
		var in messageEdit
		if err = decode(frame.Data, &in); err == nil {
			data, err = h.pipelines.EditMessage(ctx, userID, in.MessageID, in.NewContent)
		}
	case models.EventMessageDelete:
		var in messageRef
		if err = decode(frame.Data, &in); err == nil {
			data, err = h.pipelines.DeleteMessage(ctx, userID, in.MessageID)
		}
	case models.EventConversationCreate:
		var in chat.CreateInput
		if err = decode(frame.Data, &in); err == nil {
			data, _, err = h.pipelines.CreateOrGet(ctx, userID, in)
		}
	case models.EventTypingStart, models.EventTypingStop:
		// no ack; failures only matter to the log
		var in conversationRef
		if err = decode(frame.Data, &in); err == nil {
			if frame.Event == models.EventTypingStart {
				err = h.pipelines.StartTyping(ctx, userID, in.ConversationID)
			} else {
				err = h.pipelines.StopTyping(ctx, userID, in.ConversationID)
			}
		}
		if err != nil {
			logger.Debug().Err(err).Str("event", frame.Event).Msg("typing event dropped")
		}
		return
	default:
		h.hub.Send(client, ackFrame{Event: models.EventAck, AckID: frame.AckID, Error: &ackError{Code: "bad_request", Message: "unknown event " + frame.Event}})
		return
	}

	if err != nil {
		code := chat.Code(err)
		observability.IncPipelineError(frame.Event, code)
		span.RecordError(err)
		if errors.Is(err, chat.ErrPersistence) {
			logger.Error().Err(err).Str("event", frame.Event).Msg("pipeline failed")
		} else {
			logger.Debug().Err(err).Str("event", frame.Event).Msg("pipeline rejected event")
		}
		h.hub.Send(client, ackFrame{Event: models.EventAck, AckID: frame.AckID, Error: &ackError{Code: code, Message: chat.PublicMessage(err)}})
		return
	}
	h.hub.Send(client, ackFrame{Event: models.EventAck, AckID: frame.AckID, Data: data})
}

var clientEvents = map[string]struct{}{
	models.EventMessageSend:        {},
	models.EventMessageReadRequest: {},
	models.EventMessageEdit:        {},
	models.EventMessageDelete:      {},
	models.EventTypingStart:        {},
	models.EventTypingStop:         {},
	models.EventConversationCreate: {},
}

var errMalformedPayload = fmt.Errorf("%w: malformed payload", chat.ErrValidation)

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errMalformedPayload
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errMalformedPayload
	}
	return nil
}
