package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// Hub tracks live connections, which users they belong to and which
// conversation rooms they are subscribed to.
type Hub struct {
	mu          sync.Mutex
	clients     map[string]*Client
	userClients map[int64]map[string]*Client
	rooms       map[int64]map[string]*Client
	clientRooms map[string]map[int64]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		userClients: make(map[int64]map[string]*Client),
		rooms:       make(map[int64]map[string]*Client),
		clientRooms: make(map[string]map[int64]struct{}),
	}
}

// Register adds a connection and reports whether it is the user's first one.
func (h *Hub) Register(c *Client) (first bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.ID()] = c
	h.clientRooms[c.ID()] = make(map[int64]struct{})

	conns, ok := h.userClients[c.UserID()]
	if !ok {
		conns = make(map[string]*Client)
		h.userClients[c.UserID()] = conns
	}
	first = len(conns) == 0
	conns[c.ID()] = c
	observability.SetOnlineUsers(len(h.userClients))
	return first
}

// Unregister drops a connection from every room and reports whether it was
// the user's last one. Unknown connections report false.
func (h *Hub) Unregister(c *Client) (last bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID()]; !ok {
		return false
	}
	delete(h.clients, c.ID())

	for conversationID := range h.clientRooms[c.ID()] {
		if room, ok := h.rooms[conversationID]; ok {
			delete(room, c.ID())
			if len(room) == 0 {
				delete(h.rooms, conversationID)
			}
		}
	}
	delete(h.clientRooms, c.ID())

	if conns, ok := h.userClients[c.UserID()]; ok {
		delete(conns, c.ID())
		if len(conns) == 0 {
			delete(h.userClients, c.UserID())
			last = true
		}
	}
	observability.SetOnlineUsers(len(h.userClients))
	return last
}

// Subscribe joins one connection to the given rooms.
func (h *Hub) Subscribe(connID string, conversationIDs ...int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}
	for _, id := range conversationIDs {
		h.joinLocked(c, id)
	}
}

// SubscribeUser joins every live connection of the user to a room.
func (h *Hub) SubscribeUser(userID int64, conversationID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.userClients[userID] {
		h.joinLocked(c, conversationID)
	}
}

func (h *Hub) joinLocked(c *Client, conversationID int64) {
	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[conversationID] = room
	}
	room[c.ID()] = c
	h.clientRooms[c.ID()][conversationID] = struct{}{}
}

// Broadcast delivers evt to every connection in the room except those of
// exceptUserID (zero excludes nobody). Connections whose buffer is full are
// closed; the rest of the room is unaffected.
func (h *Hub) Broadcast(conversationID int64, evt models.Event, exceptUserID int64) {
	h.deliver(conversationID, evt, func(c *Client) bool {
		return exceptUserID != 0 && c.UserID() == exceptUserID
	})
}

// BroadcastExceptConn delivers evt to every connection in the room but one.
// Other connections of the same user still receive it.
func (h *Hub) BroadcastExceptConn(conversationID int64, evt models.Event, exceptConnID string) {
	h.deliver(conversationID, evt, func(c *Client) bool {
		return c.ID() == exceptConnID
	})
}

func (h *Hub) deliver(conversationID int64, evt models.Event, skip func(*Client) bool) {
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("event", evt.Event).Msg("failed to encode broadcast")
		return
	}

	var overflowed []*Client
	h.mu.Lock()
	for _, c := range h.rooms[conversationID] {
		if skip(c) {
			continue
		}
		if !c.enqueue(payload) {
			observability.IncBroadcastDropped()
			if !c.closed() {
				overflowed = append(overflowed, c)
			}
		}
	}
	h.mu.Unlock()

	for _, c := range overflowed {
		log.Warn().Str("conn_id", c.ID()).Int64("user_id", c.UserID()).Int64("conversation_id", conversationID).Msg("closing slow websocket consumer")
		h.publishWSError(c, "send buffer full")
		c.Close(websocket.ClosePolicyViolation, "send buffer full")
	}
}

// Send delivers a frame to a single connection.
func (h *Hub) Send(c *Client, frame any) bool {
	payload, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Str("conn_id", c.ID()).Msg("failed to encode frame")
		return false
	}
	if c.enqueue(payload) {
		return true
	}
	if !c.closed() {
		h.publishWSError(c, "send buffer full")
		c.Close(websocket.ClosePolicyViolation, "send buffer full")
	}
	return false
}

// IsOnline reports whether the user has at least one live connection.
func (h *Hub) IsOnline(userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.userClients[userID]) > 0
}

// OnlineCount returns the number of users with a live connection.
func (h *Hub) OnlineCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.userClients)
}

// Close terminates every tracked connection.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.Close(websocket.CloseGoingAway, "server shutdown")
	}
}

func (h *Hub) publishWSError(c *Client, reason string) {
	publishWSEvent(context.Background(), "ws_error", c.info, reason)
}
