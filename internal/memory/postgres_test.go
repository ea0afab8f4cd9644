package memory

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPostgresTestStore connects to MEMORYD_TEST_DATABASE_URL and skips the
// test when it is unset.
func newPostgresTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("MEMORYD_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("MEMORYD_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := NewPostgresStore(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestColumnTimestampTruncatesToMicroseconds(t *testing.T) {
	in := time.Date(2024, 5, 1, 10, 0, 0, 123456789, time.FixedZone("CEST", 2*3600))
	got := columnTimestamp(in)
	assert.Equal(t, 123456000, got.Nanosecond())
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.Equal(in.Truncate(time.Microsecond)))
}

func TestPostgresStoreOrderingAndTies(t *testing.T) {
	s := newPostgresTestStore(t)
	ctx := context.Background()
	user := "pg-order-" + uuid.NewString()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, in := range []struct {
		content string
		at      time.Time
	}{
		{"late", base.Add(2 * time.Hour)},
		{"tie-a", base.Add(time.Hour)},
		{"early", base},
		{"tie-b", base.Add(time.Hour)},
	} {
		require.NoError(t, s.Add(ctx, Item{UserID: user, LLM: "m", Content: in.content, Timestamp: in.at}))
	}

	got, err := s.Get(ctx, user)
	require.NoError(t, err)
	var order []string
	for _, it := range got {
		order = append(order, it.Content)
	}
	assert.Equal(t, []string{"early", "tie-a", "tie-b", "late"}, order)

	st, err := s.Stats(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Total)
	require.NotNil(t, st.FirstTimestamp)
	require.NotNil(t, st.LastTimestamp)
	assert.True(t, st.FirstTimestamp.Equal(base))
	assert.True(t, st.LastTimestamp.Equal(base.Add(2*time.Hour)))
}

func TestPostgresStoreKeepsMicrosecondTimestamp(t *testing.T) {
	s := newPostgresTestStore(t)
	ctx := context.Background()
	user := "pg-ts-" + uuid.NewString()
	at := time.Date(2024, 5, 1, 10, 0, 0, 123456789, time.UTC)

	require.NoError(t, s.Add(ctx, Item{UserID: user, LLM: "m", Content: "x", Timestamp: at}))
	got, err := s.Get(ctx, user)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Timestamp.Equal(at.Truncate(time.Microsecond)))
}

func TestPostgresStoreSearchIsLiteral(t *testing.T) {
	s := newPostgresTestStore(t)
	ctx := context.Background()
	user := "pg-search-" + uuid.NewString()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, it := range []Item{
		{LLM: "gpt4", Content: "Prefers Dark Mode"},
		{LLM: "claude", Content: "50% off_deals"},
		{LLM: "", Content: "no model recorded"},
	} {
		it.UserID = user
		it.Timestamp = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.Add(ctx, it))
	}

	hits, err := s.Search(ctx, user, "DARK", nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "gpt4", hits[0].LLM)

	hits, err = s.Search(ctx, user, "%", nil)
	require.NoError(t, err)
	require.Len(t, hits, 1, "percent sign must not act as a wildcard")
	assert.Equal(t, "claude", hits[0].LLM)

	// "off" would match o_f if underscore were a single-character wildcard.
	hits, err = s.Search(ctx, user, "o_f", nil)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = s.Search(ctx, user, "", strPtr(""))
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "no model recorded", hits[0].Content)

	hits, err = s.Search(ctx, user, "", nil)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestPostgresStoreUnknownUser(t *testing.T) {
	s := newPostgresTestStore(t)
	ctx := context.Background()
	user := "pg-none-" + uuid.NewString()

	got, err := s.Get(ctx, user)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	st, err := s.Stats(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)
	assert.Equal(t, "postgres", s.Mode())
}
