package store

import (
	"context"
	"fmt"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// InsertInsight stores one evidence item and returns its id.
func (s *Store) InsertInsight(ctx context.Context, in models.Insight) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO insights
			(source_id, insight, threat_level, recommendation, evidence_ref, content_hash, confidence, critic_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		in.SourceID, in.Insight, in.ThreatLevel, in.Recommendation,
		in.EvidenceRef, in.ContentHash, in.Confidence, in.CriticStatus).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: insert insight source=%d: %w", in.SourceID, err)
	}
	s.appendAudit(ctx, "insight_created", "insight", id, truncate(in.Insight, 120))
	return id, nil
}

const insightColumns = `
	i.id, i.source_id, s.name, i.insight, i.threat_level, i.recommendation,
	i.evidence_ref, i.content_hash, i.confidence, i.critic_status, i.created_at`

// SearchInsightsByText runs ranked full-text search over insight and
// recommendation text, returning items with their text_rank.
func (s *Store) SearchInsightsByText(ctx context.Context, query string, limit int) ([]models.EvidenceItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+insightColumns+`,
		       ts_rank_cd(to_tsvector('english', i.insight || ' ' || i.recommendation),
		                  plainto_tsquery('english', $1)) AS text_rank
		FROM insights i
		JOIN sources s ON s.id = i.source_id AND s.deleted_at IS NULL
		WHERE to_tsvector('english', i.insight || ' ' || i.recommendation)
		      @@ plainto_tsquery('english', $1)
		ORDER BY text_rank DESC, i.created_at DESC
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: text search: %w", err)
	}
	defer rows.Close()

	var out []models.EvidenceItem
	for rows.Next() {
		var item models.EvidenceItem
		if err := rows.Scan(&item.ID, &item.SourceID, &item.SourceName, &item.Insight.Insight,
			&item.ThreatLevel, &item.Recommendation, &item.EvidenceRef, &item.ContentHash,
			&item.Confidence, &item.CriticStatus, &item.CreatedAt, &item.TextRank); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// RecentInsights returns the newest insights regardless of text match.
// Used for the freshness check and as fallback evidence.
func (s *Store) RecentInsights(ctx context.Context, limit int) ([]models.EvidenceItem, error) {
	return s.queryInsights(ctx, `
		SELECT `+insightColumns+`, 0.0
		FROM insights i
		JOIN sources s ON s.id = i.source_id AND s.deleted_at IS NULL
		ORDER BY i.created_at DESC
		LIMIT $1`, limit)
}

// InsightsBySourceIDs returns the newest insight per given source.
func (s *Store) InsightsBySourceIDs(ctx context.Context, sourceIDs []int64, limit int) ([]models.EvidenceItem, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}
	return s.queryInsights(ctx, `
		SELECT DISTINCT ON (i.source_id) `+insightColumns+`, 0.0
		FROM insights i
		JOIN sources s ON s.id = i.source_id AND s.deleted_at IS NULL
		WHERE i.source_id = ANY($1)
		ORDER BY i.source_id, i.created_at DESC
		LIMIT $2`, sourceIDs, limit)
}

// RecentNewsInsights returns recent insights whose source URL looks like a
// news feed. Feeds the market_news stream stage.
func (s *Store) RecentNewsInsights(ctx context.Context, entityName string, limit int) ([]models.EvidenceItem, error) {
	return s.queryInsights(ctx, `
		SELECT `+insightColumns+`, 0.0
		FROM insights i
		JOIN sources s ON s.id = i.source_id AND s.deleted_at IS NULL
		WHERE s.url ILIKE '%news%' AND s.name ILIKE '%' || $1 || '%'
		ORDER BY i.created_at DESC
		LIMIT $2`, entityName, limit)
}

func (s *Store) queryInsights(ctx context.Context, sql string, args ...any) ([]models.EvidenceItem, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query insights: %w", err)
	}
	defer rows.Close()

	var out []models.EvidenceItem
	for rows.Next() {
		var item models.EvidenceItem
		if err := rows.Scan(&item.ID, &item.SourceID, &item.SourceName, &item.Insight.Insight,
			&item.ThreatLevel, &item.Recommendation, &item.EvidenceRef, &item.ContentHash,
			&item.Confidence, &item.CriticStatus, &item.CreatedAt, &item.TextRank); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// CountNewsInsights reports whether any news-like insights exist for
// coverage computation.
func (s *Store) CountNewsInsights(ctx context.Context, entityName string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM insights i
		JOIN sources s ON s.id = i.source_id AND s.deleted_at IS NULL
		WHERE s.url ILIKE '%news%' AND s.name ILIKE '%' || $1 || '%'`, entityName).Scan(&n)
	return n, err
}
