package memory

import (
	"context"
	"time"
)

// Item is a single memory recorded for a user by an LLM application.
// Stored items are never modified.
type Item struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	LLM       string    `json:"llm"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats summarizes a user timeline. Timestamps are nil when Total is 0.
type Stats struct {
	Total          int        `json:"total"`
	FirstTimestamp *time.Time `json:"first_timestamp"`
	LastTimestamp  *time.Time `json:"last_timestamp"`
}

// Store records and retrieves user memory timelines.
//
// Get, Search and Stats all observe the same ordering: ascending by
// Timestamp, ties broken by insertion order. Unknown users yield empty
// results, not errors.
type Store interface {
	Add(ctx context.Context, item Item) error
	Get(ctx context.Context, userID string) ([]Item, error)
	// Search filters the user timeline by case-insensitive substring on
	// content. A non-nil llm further restricts to items whose LLM equals it.
	Search(ctx context.Context, userID, query string, llm *string) ([]Item, error)
	Stats(ctx context.Context, userID string) (Stats, error)
	UserCount(ctx context.Context) (int, error)
	Mode() string
	Close() error
}

func statsOf(timeline []Item) Stats {
	st := Stats{Total: len(timeline)}
	if len(timeline) == 0 {
		return st
	}
	first := timeline[0].Timestamp
	last := timeline[len(timeline)-1].Timestamp
	st.FirstTimestamp = &first
	st.LastTimestamp = &last
	return st
}
