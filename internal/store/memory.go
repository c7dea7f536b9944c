package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// VectorLiteral encodes an embedding as a pgvector text literal.
func VectorLiteral(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// UpsertMemoryChunk stores an embedded chunk, ignoring exact duplicates
// on (source_id, content_hash, chunk_index).
func (s *Store) UpsertMemoryChunk(ctx context.Context, c models.MemoryChunk, embedding []float32) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO memory_chunks (source_id, chunk_index, chunk_text, evidence_ref, content_hash, embedding)
		VALUES ($1, $2, $3, $4, $5, $6::vector)
		ON CONFLICT (source_id, content_hash, chunk_index) DO NOTHING`,
		c.SourceID, c.ChunkIndex, c.ChunkText, c.EvidenceRef, c.ContentHash, VectorLiteral(embedding))
	if err != nil {
		return fmt.Errorf("store: upsert memory chunk source=%d idx=%d: %w", c.SourceID, c.ChunkIndex, err)
	}
	return nil
}

// SemanticSearch returns the nearest memory chunks to the query vector by
// cosine similarity (1 - cosine distance), best first.
func (s *Store) SemanticSearch(ctx context.Context, queryVec []float32, limit int) ([]models.MemoryChunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.source_id, m.chunk_index, m.chunk_text, m.evidence_ref, m.content_hash,
		       1 - (m.embedding <=> $1::vector) AS similarity, m.created_at
		FROM memory_chunks m
		JOIN sources s ON s.id = m.source_id AND s.deleted_at IS NULL
		WHERE m.embedding IS NOT NULL
		ORDER BY m.embedding <=> $1::vector
		LIMIT $2`, VectorLiteral(queryVec), limit)
	if err != nil {
		return nil, fmt.Errorf("store: semantic search: %w", err)
	}
	defer rows.Close()

	var out []models.MemoryChunk
	for rows.Next() {
		var c models.MemoryChunk
		if err := rows.Scan(&c.ID, &c.SourceID, &c.ChunkIndex, &c.ChunkText,
			&c.EvidenceRef, &c.ContentHash, &c.Similarity, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertEvidenceRelation records that a source backs an evidence reference.
func (s *Store) UpsertEvidenceRelation(ctx context.Context, sourceID int64, evidenceRef, threatLevel string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO source_evidence_relations (source_id, evidence_ref, threat_level)
		VALUES ($1, $2, $3)
		ON CONFLICT (source_id, evidence_ref) DO UPDATE SET threat_level = EXCLUDED.threat_level`,
		sourceID, evidenceRef, threatLevel)
	if err != nil {
		return fmt.Errorf("store: upsert evidence relation source=%d: %w", sourceID, err)
	}
	return nil
}

// GraphRelatedSources finds sources sharing any evidence_ref with sources
// whose name matches the entity.
func (s *Store) GraphRelatedSources(ctx context.Context, entityName string, limit int) ([]models.RelatedSource, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT r2.source_id, s2.name, r2.evidence_ref, r2.threat_level
		FROM source_evidence_relations r1
		JOIN sources s1 ON s1.id = r1.source_id AND s1.name ILIKE '%' || $1 || '%'
		JOIN source_evidence_relations r2 ON r2.evidence_ref = r1.evidence_ref
		     AND r2.source_id <> r1.source_id
		JOIN sources s2 ON s2.id = r2.source_id AND s2.deleted_at IS NULL
		LIMIT $2`, entityName, limit)
	if err != nil {
		return nil, fmt.Errorf("store: graph related sources: %w", err)
	}
	defer rows.Close()

	var out []models.RelatedSource
	for rows.Next() {
		var r models.RelatedSource
		if err := rows.Scan(&r.SourceID, &r.Name, &r.EvidenceRef, &r.ThreatLevel); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GraphConnectedEntities counts how much evidence other source names share
// with the entity's sources.
func (s *Store) GraphConnectedEntities(ctx context.Context, entityName string, limit int) ([]models.ConnectedEntity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s2.name, count(DISTINCT r2.evidence_ref) AS shared
		FROM source_evidence_relations r1
		JOIN sources s1 ON s1.id = r1.source_id AND s1.name ILIKE '%' || $1 || '%'
		JOIN source_evidence_relations r2 ON r2.evidence_ref = r1.evidence_ref
		     AND r2.source_id <> r1.source_id
		JOIN sources s2 ON s2.id = r2.source_id AND s2.deleted_at IS NULL
		GROUP BY s2.name
		ORDER BY shared DESC
		LIMIT $2`, entityName, limit)
	if err != nil {
		return nil, fmt.Errorf("store: graph connected entities: %w", err)
	}
	defer rows.Close()

	var out []models.ConnectedEntity
	for rows.Next() {
		var c models.ConnectedEntity
		if err := rows.Scan(&c.Name, &c.SharedEvidence); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
