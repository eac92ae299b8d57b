package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints onto routes, which is expected
// to sit behind AuthMiddleware so audit records name a verified user.
func RegisterDebugRoutes(routes gin.IRoutes, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	routes.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		requestID := requestIDFromContext(c)
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestID, auditUserID(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok", "requestId": requestID})
	})
}
