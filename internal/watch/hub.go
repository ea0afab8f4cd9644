package watch

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/memoryd/internal/memory"
)

var ErrNotFound = errors.New("subscription not found")

// Subscription receives every item stored for UserID after it was created.
type Subscription struct {
	ID        string    `json:"subscription_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`

	ch chan memory.Item
}

// C delivers stored items. It is closed on Unsubscribe.
func (s *Subscription) C() <-chan memory.Item { return s.ch }

// Hub fans stored items out to per-user subscribers. Publish never blocks:
// a subscriber whose buffer is full misses the item.
type Hub struct {
	mu     sync.RWMutex
	byUser map[string]map[string]*Subscription
	byID   map[string]*Subscription
	buffer int
	onDrop func(*Subscription)
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		byUser: make(map[string]map[string]*Subscription),
		byID:   make(map[string]*Subscription),
		buffer: buffer,
	}
}

func (h *Hub) SetDropHook(hook func(*Subscription)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDrop = hook
}

func (h *Hub) Subscribe(userID string) *Subscription {
	sub := &Subscription{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		ch:        make(chan memory.Item, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.byUser[userID]
	if !ok {
		subs = make(map[string]*Subscription)
		h.byUser[userID] = subs
	}
	subs[sub.ID] = sub
	h.byID[sub.ID] = sub
	return sub
}

func (h *Hub) Unsubscribe(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(h.byID, id)
	if subs := h.byUser[sub.UserID]; subs != nil {
		delete(subs, id)
		if len(subs) == 0 {
			delete(h.byUser, sub.UserID)
		}
	}
	close(sub.ch)
	return nil
}

// Publish delivers item to the subscribers of item.UserID and reports how
// many received it.
func (h *Hub) Publish(item memory.Item) int {
	var dropped []*Subscription
	delivered := 0

	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send.
	h.mu.RLock()
	for _, sub := range h.byUser[item.UserID] {
		select {
		case sub.ch <- item:
			delivered++
		default:
			dropped = append(dropped, sub)
		}
	}
	hook := h.onDrop
	h.mu.RUnlock()

	if hook != nil {
		for _, sub := range dropped {
			hook(sub)
		}
	}
	return delivered
}

func (h *Hub) ActiveCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}
