package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/chat"
	"messaging-service/internal/models"
)

// MessageHandler serves message history and the REST mirror of the socket message events.
type MessageHandler struct {
	svc *chat.Service
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(svc *chat.Service) *MessageHandler {
	return &MessageHandler{svc: svc}
}

// ListMessages handles GET /conversations/:conversation_id/messages.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	conversationID, ok := int64Param(c, "conversation_id")
	if !ok {
		return
	}
	before, ok := int64Query(c, "before")
	if !ok {
		return
	}
	after, ok := int64Query(c, "after")
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}

	msgs, err := h.svc.ListMessages(requestContext(c), currentUserID(c), conversationID, models.MessagePage{
		Before: before,
		After:  after,
		Limit:  limit,
	})
	if err != nil {
		respondError(c, "list_messages", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage handles POST /conversations/:conversation_id/messages.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	conversationID, ok := int64Param(c, "conversation_id")
	if !ok {
		return
	}
	var req chat.SendInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.ConversationID = conversationID

	msg, err := h.svc.SendMessage(requestContext(c), currentUserID(c), req)
	if err != nil {
		respondError(c, "send_message", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// EditMessage handles PATCH /messages/:message_id.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	messageID, ok := int64Param(c, "message_id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.svc.EditMessage(requestContext(c), currentUserID(c), messageID, req.Content)
	if err != nil {
		respondError(c, "edit_message", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// DeleteMessage handles DELETE /messages/:message_id.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	messageID, ok := int64Param(c, "message_id")
	if !ok {
		return
	}
	msg, err := h.svc.DeleteMessage(requestContext(c), currentUserID(c), messageID)
	if err != nil {
		respondError(c, "delete_message", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}
