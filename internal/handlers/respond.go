package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"messaging-service/internal/chat"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, chat.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes a pipeline error. Persistence details are logged, never returned.
func respondError(c *gin.Context, operation string, err error) {
	status := statusFor(err)
	observability.IncPipelineError(operation, chat.Code(err))
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("operation", operation).Str("request_id", requestIDFromContext(c)).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": chat.PublicMessage(err), "code": chat.Code(err)})
}

func currentUserID(c *gin.Context) int64 {
	return c.GetInt64(middleware.UserIDKey)
}

func requestContext(c *gin.Context) context.Context {
	return chat.WithRequestID(c.Request.Context(), requestIDFromContext(c))
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return v, true
}

func int64Query(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return v, true
}
