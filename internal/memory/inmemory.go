package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps every timeline in process memory for the lifetime of
// the process. The users map lock is only write-locked when a user is seen
// for the first time; appends and reads contend per user.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[string]*timeline
}

type timeline struct {
	mu    sync.RWMutex
	items []Item // insertion order
	// ordered stays true while every append carried a timestamp >= the
	// previous one, so reads can skip the sort.
	ordered bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[string]*timeline)}
}

func (s *InMemoryStore) Add(_ context.Context, item Item) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now().UTC()
	}

	tl := s.timelineFor(item.UserID)
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if n := len(tl.items); n > 0 && item.Timestamp.Before(tl.items[n-1].Timestamp) {
		tl.ordered = false
	}
	tl.items = append(tl.items, item)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, userID string) ([]Item, error) {
	return s.snapshot(userID), nil
}

func (s *InMemoryStore) Search(_ context.Context, userID, query string, llm *string) ([]Item, error) {
	all := s.snapshot(userID)
	needle := strings.ToLower(query)
	out := make([]Item, 0, len(all))
	for _, item := range all {
		if llm != nil && item.LLM != *llm {
			continue
		}
		if !strings.Contains(strings.ToLower(item.Content), needle) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *InMemoryStore) Stats(_ context.Context, userID string) (Stats, error) {
	return statsOf(s.snapshot(userID)), nil
}

func (s *InMemoryStore) UserCount(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *InMemoryStore) Mode() string { return "in-memory" }

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) timelineFor(userID string) *timeline {
	s.mu.RLock()
	tl, ok := s.users[userID]
	s.mu.RUnlock()
	if ok {
		return tl
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tl, ok = s.users[userID]; ok {
		return tl
	}
	tl = &timeline{ordered: true}
	s.users[userID] = tl
	return tl
}

// snapshot returns an ordered copy of the user's timeline. The result is
// never nil.
func (s *InMemoryStore) snapshot(userID string) []Item {
	s.mu.RLock()
	tl, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return []Item{}
	}

	tl.mu.RLock()
	out := make([]Item, len(tl.items))
	copy(out, tl.items)
	ordered := tl.ordered
	tl.mu.RUnlock()

	if !ordered {
		slices.SortStableFunc(out, func(a, b Item) int {
			return a.Timestamp.Compare(b.Timestamp)
		})
	}
	return out
}
