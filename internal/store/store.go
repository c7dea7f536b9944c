// Package store implements the typed Postgres repository backing MarketMind:
// entities, financial periods, macro series, social signals, filings,
// sources, insights, embedded memory chunks, evidence graph relations,
// coverage, search history, audit events, and retention.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps a pgx connection pool with typed repository operations.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, dsn string, maxConns int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the underlying pool for migrations and tests.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// appendAudit records a mutation event. Audit failures are logged, never
// propagated: losing an audit row must not fail the write it describes.
func (s *Store) appendAudit(ctx context.Context, eventType, entityType string, entityID int64, detail string) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_events (event_type, entity_type, entity_id, detail, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		eventType, entityType, entityID, truncate(detail, 500))
	if err != nil {
		log.Printf("store: audit append failed (%s/%s): %v", eventType, entityType, err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// asNotFound converts pgx.ErrNoRows to the package sentinel.
func asNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
