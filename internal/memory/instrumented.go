package memory

import (
	"context"
	"time"
)

// Observer receives the outcome of every store call.
type Observer interface {
	ObserveOperation(op string, d time.Duration, err error)
}

type instrumentedStore struct {
	Store
	obs Observer
}

// Instrument wraps store so every operation is reported to obs.
func Instrument(store Store, obs Observer) Store {
	if obs == nil {
		return store
	}
	return &instrumentedStore{Store: store, obs: obs}
}

func (s *instrumentedStore) Add(ctx context.Context, item Item) error {
	start := time.Now()
	err := s.Store.Add(ctx, item)
	s.obs.ObserveOperation("add", time.Since(start), err)
	return err
}

func (s *instrumentedStore) Get(ctx context.Context, userID string) ([]Item, error) {
	start := time.Now()
	items, err := s.Store.Get(ctx, userID)
	s.obs.ObserveOperation("get", time.Since(start), err)
	return items, err
}

func (s *instrumentedStore) Search(ctx context.Context, userID, query string, llm *string) ([]Item, error) {
	start := time.Now()
	items, err := s.Store.Search(ctx, userID, query, llm)
	s.obs.ObserveOperation("search", time.Since(start), err)
	return items, err
}

func (s *instrumentedStore) Stats(ctx context.Context, userID string) (Stats, error) {
	start := time.Now()
	st, err := s.Store.Stats(ctx, userID)
	s.obs.ObserveOperation("stats", time.Since(start), err)
	return st, err
}
