package store

import (
	"context"
	"fmt"
	"time"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// AddSource registers an ingestible URL. Existing URLs are returned as-is
// (and revived if soft-deleted is false — a deleted source stays deleted).
func (s *Store) AddSource(ctx context.Context, name, url, connectorType string) (models.Source, error) {
	if connectorType == "" {
		connectorType = "web"
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sources (name, url, connector_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (url) DO UPDATE SET name = sources.name
		RETURNING id, name, url, connector_type, created_at, deleted_at`,
		name, url, connectorType)
	src, err := scanSource(row)
	if err != nil {
		return models.Source{}, fmt.Errorf("store: add source %s: %w", url, err)
	}
	s.appendAudit(ctx, "source_registered", "source", src.ID, url)
	return src, nil
}

// GetSource fetches a source by id. Soft-deleted sources return ErrNotFound.
func (s *Store) GetSource(ctx context.Context, id int64) (models.Source, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, url, connector_type, created_at, deleted_at
		FROM sources WHERE id = $1 AND deleted_at IS NULL`, id)
	src, err := scanSource(row)
	if err != nil {
		return models.Source{}, asNotFound(err)
	}
	return src, nil
}

// ListActiveSources returns all non-deleted sources.
func (s *Store) ListActiveSources(ctx context.Context) ([]models.Source, error) {
	return s.querySources(ctx, `
		SELECT id, name, url, connector_type, created_at, deleted_at
		FROM sources WHERE deleted_at IS NULL ORDER BY id`)
}

// FindSourcesByName returns active sources whose name matches the pattern,
// case-insensitively. Used to target priority ingestion at a query.
func (s *Store) FindSourcesByName(ctx context.Context, pattern string, limit int) ([]models.Source, error) {
	return s.querySources(ctx, `
		SELECT id, name, url, connector_type, created_at, deleted_at
		FROM sources
		WHERE deleted_at IS NULL AND name ILIKE '%' || $1 || '%'
		ORDER BY id DESC LIMIT $2`, pattern, limit)
}

func (s *Store) querySources(ctx context.Context, sql string, args ...any) ([]models.Source, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query sources: %w", err)
	}
	defer rows.Close()
	var out []models.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func scanSource(row rowScanner) (models.Source, error) {
	var src models.Source
	err := row.Scan(&src.ID, &src.Name, &src.URL, &src.ConnectorType, &src.CreatedAt, &src.DeletedAt)
	return src, err
}

// InsertSnapshot appends a content observation for a source.
func (s *Store) InsertSnapshot(ctx context.Context, sourceID int64, contentHash, excerpt string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO source_snapshots (source_id, content_hash, excerpt)
		VALUES ($1, $2, $3)`, sourceID, contentHash, excerpt)
	if err != nil {
		return fmt.Errorf("store: insert snapshot source=%d: %w", sourceID, err)
	}
	s.appendAudit(ctx, "snapshot_recorded", "source", sourceID, contentHash)
	return nil
}

// GetLatestSnapshotHash returns the most recent content hash for a source,
// or "" when no snapshot exists yet.
func (s *Store) GetLatestSnapshotHash(ctx context.Context, sourceID int64) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx, `
		SELECT content_hash FROM source_snapshots
		WHERE source_id = $1 ORDER BY observed_at DESC LIMIT 1`, sourceID).Scan(&hash)
	if err != nil {
		if asNotFound(err) == ErrNotFound {
			return "", nil
		}
		return "", fmt.Errorf("store: latest snapshot hash source=%d: %w", sourceID, err)
	}
	return hash, nil
}

// GetLastIngestTime returns when the source last completed a successful run.
func (s *Store) GetLastIngestTime(ctx context.Context, sourceID int64) (time.Time, error) {
	var ts time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT started_at FROM ingest_runs
		WHERE source_id = $1 AND status = 'succeeded'
		ORDER BY started_at DESC LIMIT 1`, sourceID).Scan(&ts)
	if err != nil {
		if asNotFound(err) == ErrNotFound {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("store: last ingest time source=%d: %w", sourceID, err)
	}
	return ts, nil
}

// LogIngestRun records the outcome of one worker run.
func (s *Store) LogIngestRun(ctx context.Context, sourceID int64, status, detail string, duration time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ingest_runs (source_id, status, detail, duration_ms)
		VALUES ($1, $2, $3, $4)`, sourceID, status, detail, duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("store: log ingest run source=%d: %w", sourceID, err)
	}
	return nil
}

// LogFailedIngestion records a failed run with its retryability.
func (s *Store) LogFailedIngestion(ctx context.Context, sourceID int64, errMsg string, retryable bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO failed_ingestions (source_id, error, retryable)
		VALUES ($1, $2, $3)`, sourceID, truncate(errMsg, 1000), retryable)
	if err != nil {
		return fmt.Errorf("store: log failed ingestion source=%d: %w", sourceID, err)
	}
	return nil
}

// DeleteSourceRecords soft-deletes a source and removes its snapshots,
// insights, evidence relations, and memory chunks.
func (s *Store) DeleteSourceRecords(ctx context.Context, sourceID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: delete source begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range []string{
		`DELETE FROM memory_chunks WHERE source_id = $1`,
		`DELETE FROM source_evidence_relations WHERE source_id = $1`,
		`DELETE FROM insights WHERE source_id = $1`,
		`DELETE FROM source_snapshots WHERE source_id = $1`,
		`UPDATE sources SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`,
	} {
		if _, err := tx.Exec(ctx, stmt, sourceID); err != nil {
			return fmt.Errorf("store: delete source records %d: %w", sourceID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: delete source commit: %w", err)
	}
	s.appendAudit(ctx, "source_deleted", "source", sourceID, "cascade delete")
	return nil
}
