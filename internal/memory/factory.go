package memory

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/ent0n29/memoryd/internal/reliability"
)

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
// Postgres connection is retried up to attempts times.
func NewStore(ctx context.Context, databaseURL string, attempts int) (Store, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return NewInMemoryStore(), nil
	}

	var store *PostgresStore
	err := reliability.Retry(ctx, attempts, 250*time.Millisecond, 4*time.Second, func(attempt int) error {
		s, err := NewPostgresStore(ctx, databaseURL)
		if err != nil {
			log.Printf("memory store: postgres attempt %d failed: %v", attempt+1, err)
			return err
		}
		store = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}
