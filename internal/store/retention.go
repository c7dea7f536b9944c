package store

import (
	"context"
	"fmt"
	"log"

	"github.com/fahimulhaque/MarketMind/internal/config"
)

// purgeBatchSize bounds each delete so retention never holds long locks.
const purgeBatchSize = 5000

// RunRetentionPurge deletes aged rows in age-ordered batches per retention
// window and logs each table's purge to retention_runs. Returns total rows
// purged.
func (s *Store) RunRetentionPurge(ctx context.Context, ret config.RetentionConfig) (int64, error) {
	targets := []struct {
		table   string
		column  string
		days    int
	}{
		{"insights", "created_at", ret.InsightsDays},
		{"source_snapshots", "observed_at", ret.SnapshotsDays},
		{"search_queries", "created_at", ret.SearchDays},
		{"ingest_runs", "started_at", ret.ReportsDays},
		{"failed_ingestions", "created_at", ret.ReportsDays},
		{"audit_events", "created_at", ret.AuditDays},
	}

	var total int64
	for _, t := range targets {
		if t.days <= 0 {
			continue
		}
		purged, err := s.purgeTable(ctx, t.table, t.column, t.days)
		if err != nil {
			return total, fmt.Errorf("store: retention purge %s: %w", t.table, err)
		}
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO retention_runs (table_name, rows_purged, window_days)
			VALUES ($1, $2, $3)`, t.table, purged, t.days); err != nil {
			log.Printf("store: retention run log failed for %s: %v", t.table, err)
		}
		total += purged
	}
	return total, nil
}

func (s *Store) purgeTable(ctx context.Context, table, column string, days int) (int64, error) {
	var purged int64
	for {
		// Oldest rows first, bounded batch.
		sql := fmt.Sprintf(`
			DELETE FROM %s WHERE ctid IN (
				SELECT ctid FROM %s
				WHERE %s < now() - make_interval(days => $1)
				ORDER BY %s
				LIMIT $2
			)`, table, table, column, column)
		tag, err := s.pool.Exec(ctx, sql, days, purgeBatchSize)
		if err != nil {
			return purged, err
		}
		purged += tag.RowsAffected()
		if tag.RowsAffected() < purgeBatchSize {
			return purged, nil
		}
	}
}
