package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"messaging-service/internal/auth"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
)

const requestIDContextKey = "request_id"

// requestIDFromContext returns the request id of the call, minting one when
// the client sent none. The id is cached on the gin context.
func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(requestIDContextKey); id != "" {
		return id
	}
	requestID := observability.RequestIDFromRequest(c.Request)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// auditUserID is the verified caller, nil when the route is not behind AuthMiddleware.
func auditUserID(c *gin.Context) *int64 {
	val, ok := c.Get(middleware.IdentityKey)
	if !ok {
		return nil
	}
	identity, ok := val.(auth.Identity)
	if !ok || identity.UserID == 0 {
		return nil
	}
	userID := identity.UserID
	return &userID
}
