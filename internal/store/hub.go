package store

import (
	"sync"

	"go.uber.org/zap"
)

// EventType names a store change.
type EventType string

const (
	EventUserUpdated    EventType = "user.updated"
	EventTaskCompleted  EventType = "task.completed"
	EventWorkoutCreated EventType = "workout.created"
	EventWorkoutUpdated EventType = "workout.updated"
	EventWorkoutDeleted EventType = "workout.deleted"
)

// Event is published after a store changed its in-memory state.
// UserID is empty for changes visible to everyone.
type Event struct {
	Type   EventType `json:"type"`
	UserID string    `json:"userId,omitempty"`
	Data   any       `json:"data"`
}

// Hub fans store events out to subscribers. A nil *Hub drops everything.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
	log    *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{subs: make(map[int]chan Event), log: log}
}

// Subscribe registers a subscriber with the given channel buffer. The returned
// cancel func unregisters it and closes the channel; calling it twice is safe.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to every subscriber without blocking. Subscribers whose
// buffer is full miss the event.
func (h *Hub) Publish(e Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.log.Warn("dropping event for slow subscriber", zap.Int("subscriber", id), zap.String("type", string(e.Type)))
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
