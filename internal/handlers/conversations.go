package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/chat"
	"messaging-service/internal/models"
	"messaging-service/internal/telemetry"
)

// ConversationHandler serves the conversation list, detail, creation and settings endpoints.
type ConversationHandler struct {
	svc   *chat.Service
	audit *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(svc *chat.Service, audit *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{svc: svc, audit: audit}
}

// ListConversations handles GET /conversations.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}
	offset, ok := intQuery(c, "offset", 0)
	if !ok {
		return
	}
	archived, _ := strconv.ParseBool(c.Query("archived"))

	list, err := h.svc.ListConversations(requestContext(c), currentUserID(c), archived, limit, offset)
	if err != nil {
		respondError(c, "list_conversations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

// CreateConversation handles POST /conversations. An existing direct
// conversation is returned with 200 instead of 201.
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	var req chat.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid conversation payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, created, err := h.svc.CreateOrGet(requestContext(c), currentUserID(c), req)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.emitAudit(c, "ERROR", "conversation create failed")
		}
		respondError(c, "create_conversation", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"conversation": conv, "created": created})
}

// GetConversation handles GET /conversations/:conversation_id.
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	conversationID, ok := int64Param(c, "conversation_id")
	if !ok {
		return
	}
	conv, err := h.svc.GetConversation(requestContext(c), currentUserID(c), conversationID)
	if err != nil {
		respondError(c, "get_conversation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

// Unread handles GET /conversations/unread.
func (h *ConversationHandler) Unread(c *gin.Context) {
	summary, err := h.svc.Unread(requestContext(c), currentUserID(c))
	if err != nil {
		respondError(c, "unread", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// UpdateSettings handles PATCH /conversations/:conversation_id/settings.
func (h *ConversationHandler) UpdateSettings(c *gin.Context) {
	conversationID, ok := int64Param(c, "conversation_id")
	if !ok {
		return
	}
	var req models.ParticipantSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.svc.UpdateSettings(requestContext(c), currentUserID(c), conversationID, req)
	if err != nil {
		respondError(c, "update_settings", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participant": p})
}

// MarkRead handles POST /conversations/:conversation_id/read.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	conversationID, ok := int64Param(c, "conversation_id")
	if !ok {
		return
	}
	receipt, err := h.svc.MarkRead(requestContext(c), currentUserID(c), conversationID)
	if err != nil {
		respondError(c, "mark_read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": receipt})
}

// Typing handles GET /conversations/:conversation_id/typing.
func (h *ConversationHandler) Typing(c *gin.Context) {
	conversationID, ok := int64Param(c, "conversation_id")
	if !ok {
		return
	}
	active, err := h.svc.ActiveTyping(requestContext(c), currentUserID(c), conversationID)
	if err != nil {
		respondError(c, "typing", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"typing": active})
}

func (h *ConversationHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), auditUserID(c))
}
