package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists user timelines in PostgreSQL. seq is a
// monotonically increasing insertion counter used as the timestamp
// tiebreak.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS user_memories (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			llm TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_user_memories_user_created ON user_memories (user_id, created_at, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Add(ctx context.Context, item Item) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now().UTC()
	}
	item.Timestamp = columnTimestamp(item.Timestamp)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_memories (id, user_id, llm, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		item.ID,
		item.UserID,
		item.LLM,
		item.Content,
		item.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("add memory: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userID string) ([]Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, llm, content, created_at
		 FROM user_memories WHERE user_id=$1 ORDER BY created_at ASC, seq ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	return collectItems(rows)
}

// Search matches with strpos rather than LIKE so that % and _ in the
// query stay literal.
func (s *PostgresStore) Search(ctx context.Context, userID, query string, llm *string) ([]Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, llm, content, created_at
		 FROM user_memories
		 WHERE user_id=$1
		   AND strpos(lower(content), lower($2)) > 0
		   AND ($3::text IS NULL OR llm = $3::text)
		 ORDER BY created_at ASC, seq ASC`,
		userID,
		query,
		llm,
	)
	if err != nil {
		return nil, fmt.Errorf("search timeline: %w", err)
	}
	return collectItems(rows)
}

func (s *PostgresStore) Stats(ctx context.Context, userID string) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx,
		`SELECT count(*), min(created_at), max(created_at)
		 FROM user_memories WHERE user_id=$1`,
		userID,
	).Scan(&st.Total, &st.FirstTimestamp, &st.LastTimestamp)
	if err != nil {
		return Stats{}, fmt.Errorf("timeline stats: %w", err)
	}
	if st.Total == 0 {
		st.FirstTimestamp, st.LastTimestamp = nil, nil
	}
	return st, nil
}

func (s *PostgresStore) UserCount(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(DISTINCT user_id) FROM user_memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Mode() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// columnTimestamp rounds t down to the microsecond resolution of a
// TIMESTAMPTZ column.
func columnTimestamp(t time.Time) time.Time {
	return t.Truncate(time.Microsecond).UTC()
}

func collectItems(rows pgx.Rows) ([]Item, error) {
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.UserID, &it.LLM, &it.Content, &it.Timestamp); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		it.Timestamp = it.Timestamp.UTC()
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return items, nil
}
