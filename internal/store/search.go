package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// SaveSearchResult persists one executed query with its cited evidence.
// Returns the search id.
func (s *Store) SaveSearchResult(ctx context.Context, rec models.SearchRecord, evidence []models.EvidenceItem) (string, error) {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("store: save search begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO search_queries (id, query, answer, confidence, risk_level, recommendation)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, rec.Query, rec.Answer, rec.Confidence, rec.RiskLevel, rec.Recommendation)
	if err != nil {
		return "", fmt.Errorf("store: save search query: %w", err)
	}

	for _, item := range evidence {
		_, err = tx.Exec(ctx, `
			INSERT INTO search_evidence (search_id, source_name, insight, evidence_ref, rank_score)
			VALUES ($1, $2, $3, $4, $5)`,
			id, item.SourceName, truncate(item.Insight.Insight, 2000), item.EvidenceRef, item.RankScore)
		if err != nil {
			return "", fmt.Errorf("store: save search evidence: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("store: save search commit: %w", err)
	}
	s.appendAudit(ctx, "search_executed", "search_query", 0, truncate(rec.Query, 200))
	return id, nil
}

// GetSearchHistory returns past queries, newest first, with page starting
// at 1.
func (s *Store) GetSearchHistory(ctx context.Context, page, pageSize int) ([]models.SearchRecord, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, query, answer, confidence, risk_level, recommendation, created_at
		FROM search_queries
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("store: search history: %w", err)
	}
	defer rows.Close()

	var out []models.SearchRecord
	for rows.Next() {
		var rec models.SearchRecord
		if err := rows.Scan(&rec.ID, &rec.Query, &rec.Answer, &rec.Confidence,
			&rec.RiskLevel, &rec.Recommendation, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
