package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/chat"
)

const maxOnlineLookup = 200

// UserHandler serves user search and presence lookups.
type UserHandler struct {
	svc *chat.Service
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(svc *chat.Service) *UserHandler {
	return &UserHandler{svc: svc}
}

// Search handles GET /users/search?q=.
func (h *UserHandler) Search(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}
	users, err := h.svc.SearchUsers(requestContext(c), c.Query("q"), limit)
	if err != nil {
		respondError(c, "search_users", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// Online handles GET /users/online?ids=1,2,3.
func (h *UserHandler) Online(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("ids"))
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids is required"})
		return
	}
	parts := strings.Split(raw, ",")
	if len(parts) > maxOnlineLookup {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many ids"})
		return
	}
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id " + p})
			return
		}
		ids = append(ids, id)
	}

	online := h.svc.OnlineUsers(ids)
	resp := make(map[string]bool, len(online))
	for id, isOnline := range online {
		resp[strconv.FormatInt(id, 10)] = isOnline
	}
	c.JSON(http.StatusOK, gin.H{"online": resp})
}
