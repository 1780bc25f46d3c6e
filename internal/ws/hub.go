package ws

import (
	"sync"
	"time"

	"github.com/latticehq/lattice/internal/infrastructure/logging"
	"github.com/latticehq/lattice/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

const subscriberBuffer = 16

// Notification is one user-visible message, tagged with the app that
// emitted it.
type Notification struct {
	ID    string    `json:"id"`
	AppID string    `json:"app_id"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	Time  time.Time `json:"time"`
}

// Hub fans notifications out to per-user subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Notification]struct{} // userID -> channels
	closed      bool
	logger      *logging.Logger
	metrics     *monitoring.Metrics
}

// NewHub creates a notification hub.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{
		subscribers: make(map[string]map[chan Notification]struct{}),
		logger:      logger,
	}
}

// WithMetrics adds metrics tracking to the hub.
func (h *Hub) WithMetrics(metrics *monitoring.Metrics) *Hub {
	h.metrics = metrics
	return h
}

// Subscribe registers a channel for a user's notifications. The caller
// must Unsubscribe when done.
func (h *Hub) Subscribe(userID string) chan Notification {
	ch := make(chan Notification, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	if h.subscribers[userID] == nil {
		h.subscribers[userID] = make(map[chan Notification]struct{})
	}
	h.subscribers[userID][ch] = struct{}{}
	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
	}
	return ch
}

// Unsubscribe removes a channel.
func (h *Hub) Unsubscribe(userID string, ch chan Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subscribers[userID]; ok {
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(h.subscribers, userID)
			}
			if h.metrics != nil {
				h.metrics.WSConnections.Dec()
			}
		}
	}
}

// Publish delivers a notification to every subscriber of a user.
// Non-blocking: full buffers drop.
func (h *Hub) Publish(userID string, note Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for ch := range h.subscribers[userID] {
		select {
		case ch <- note:
		default:
			h.logger.Warn("dropping notification for slow consumer",
				zap.String("user_id", userID), zap.String("app_id", note.AppID))
		}
	}
	if h.metrics != nil {
		h.metrics.NotificationsSent.Inc()
	}
}

// Close tears down the hub and all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for userID, subs := range h.subscribers {
		for ch := range subs {
			close(ch)
		}
		delete(h.subscribers, userID)
	}
}
