package mocks

import (
	"sync"

	"messaging-service/internal/models"
)

// Broadcast is one recorded room delivery.
type Broadcast struct {
	ConversationID int64
	Event          models.Event
	ExceptUserID   int64
	ExceptConnID   string
}

// HubRecorder is an in-memory hub that records every call in order.
type HubRecorder struct {
	mu             sync.Mutex
	Broadcasts     []Broadcast
	Subscriptions  map[string][]int64
	UserSubscribed map[int64][]int64
	Online         map[int64]bool
}

func NewHubRecorder() *HubRecorder {
	return &HubRecorder{
		Subscriptions:  map[string][]int64{},
		UserSubscribed: map[int64][]int64{},
		Online:         map[int64]bool{},
	}
}

func (h *HubRecorder) Subscribe(connID string, conversationIDs ...int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Subscriptions[connID] = append(h.Subscriptions[connID], conversationIDs...)
}

func (h *HubRecorder) SubscribeUser(userID int64, conversationID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.UserSubscribed[userID] = append(h.UserSubscribed[userID], conversationID)
}

func (h *HubRecorder) Broadcast(conversationID int64, evt models.Event, exceptUserID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Broadcasts = append(h.Broadcasts, Broadcast{ConversationID: conversationID, Event: evt, ExceptUserID: exceptUserID})
}

func (h *HubRecorder) BroadcastExceptConn(conversationID int64, evt models.Event, exceptConnID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Broadcasts = append(h.Broadcasts, Broadcast{ConversationID: conversationID, Event: evt, ExceptConnID: exceptConnID})
}

// SetOnline marks a user as having a live connection.
func (h *HubRecorder) SetOnline(userID int64, online bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Online[userID] = online
}

func (h *HubRecorder) IsOnline(userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Online[userID]
}

// Events returns the names of every recorded broadcast in order.
func (h *HubRecorder) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.Broadcasts))
	for _, b := range h.Broadcasts {
		names = append(names, b.Event.Event)
	}
	return names
}
