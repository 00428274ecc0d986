// Package history persists search requests to Postgres for analytics.
// Recording is best-effort: a history failure must never fail a search.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one recorded search request.
type Entry struct {
	Query       string          `json:"query"`
	Structured  json.RawMessage `json:"structured,omitempty"`
	ResultCount int             `json:"result_count"`
	LatencyMS   int64           `json:"latency_ms"`
	CreatedAt   time.Time       `json:"created_at"`
}

// QueryStat is an aggregate row for the analytics endpoints.
type QueryStat struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Store writes and reads search history over a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// Open connects a pool and ensures the history table exists.
func Open(ctx context.Context, url string, log *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("history: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history: connect: %w", err)
	}
	s := &Store{pool: pool, log: log}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS search_history (
			id           BIGSERIAL PRIMARY KEY,
			query        TEXT NOT NULL,
			structured   JSONB,
			result_count INT NOT NULL DEFAULT 0,
			latency_ms   BIGINT NOT NULL DEFAULT 0,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("history: ensure schema: %w", err)
	}
	return nil
}

// Record inserts one entry. Failures are logged, never returned.
func (s *Store) Record(ctx context.Context, e Entry) {
	if s == nil || s.pool == nil {
		return
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO search_history (query, structured, result_count, latency_ms) VALUES ($1, $2, $3, $4)`,
		e.Query, e.Structured, e.ResultCount, e.LatencyMS)
	if err != nil {
		s.log.Warn("history record failed", "error", err)
	}
}

// Recent returns the newest entries, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT query, COALESCE(structured, 'null'::jsonb), result_count, latency_ms, created_at
		 FROM search_history ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Query, &e.Structured, &e.ResultCount, &e.LatencyMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// TopQueries returns the most frequent query texts.
func (s *Store) TopQueries(ctx context.Context, limit int) ([]QueryStat, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT query, COUNT(*) FROM search_history GROUP BY query ORDER BY COUNT(*) DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: top queries: %w", err)
	}
	defer rows.Close()

	var out []QueryStat
	for rows.Next() {
		var q QueryStat
		if err := rows.Scan(&q.Query, &q.Count); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// EmptyQueries returns the most frequent queries that produced no results,
// the main input for catalog and vocabulary gaps.
func (s *Store) EmptyQueries(ctx context.Context, limit int) ([]QueryStat, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT query, COUNT(*) FROM search_history WHERE result_count = 0
		 GROUP BY query ORDER BY COUNT(*) DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: empty queries: %w", err)
	}
	defer rows.Close()

	var out []QueryStat
	for rows.Next() {
		var q QueryStat
		if err := rows.Scan(&q.Query, &q.Count); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
