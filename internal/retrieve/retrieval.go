// Package retrieve implements hybrid evidence retrieval: full-text rank,
// vector similarity over memory chunks, and graph traversal across shared
// evidence references, merged into one candidate set for ranking.
package retrieve

import (
	"context"
	"log"
	"math"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

const (
	textLimit   = 30
	vectorLimit = 15
	graphLimit  = 10
)

// Store is the query surface retrieval reads from.
type Store interface {
	SearchInsightsByText(ctx context.Context, query string, limit int) ([]models.EvidenceItem, error)
	SemanticSearch(ctx context.Context, queryVec []float32, limit int) ([]models.MemoryChunk, error)
	GraphRelatedSources(ctx context.Context, entityName string, limit int) ([]models.RelatedSource, error)
	InsightsBySourceIDs(ctx context.Context, sourceIDs []int64, limit int) ([]models.EvidenceItem, error)
	RecentInsights(ctx context.Context, limit int) ([]models.EvidenceItem, error)
}

// Embedder produces the query vector for semantic search.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Retriever merges the three retrieval paths.
type Retriever struct {
	store    Store
	embedder Embedder
}

// Result carries the merged candidates plus per-path stats for the
// report's knowledge status.
type Result struct {
	Items           []models.EvidenceItem
	SemanticMatches int
	GraphRelated    []models.RelatedSource
}

// New creates a retriever.
func New(store Store, embedder Embedder) *Retriever {
	return &Retriever{store: store, embedder: embedder}
}

// Retrieve gathers candidate evidence for the query. Text search is the
// backbone; vector hits attach similarity to candidates from the same
// source or join as memory-backed items; graph hits pull in insights from
// sources related through shared evidence references. Path failures
// degrade coverage, never the query.
func (r *Retriever) Retrieve(ctx context.Context, query, entityName string) Result {
	items, err := r.store.SearchInsightsByText(ctx, query, textLimit)
	if err != nil {
		log.Printf("retrieve: text search: %v", err)
	}
	if len(items) == 0 {
		// Nothing matched lexically; fall back to the freshest evidence
		// so vector similarity still has candidates to attach to.
		if items, err = r.store.RecentInsights(ctx, textLimit); err != nil {
			log.Printf("retrieve: recent insights: %v", err)
		}
	}

	bySource := make(map[int64]int, len(items))
	for i, item := range items {
		if _, ok := bySource[item.SourceID]; !ok {
			bySource[item.SourceID] = i
		}
	}

	chunks, err := r.store.SemanticSearch(ctx, r.embedder.Embed(ctx, query), vectorLimit)
	if err != nil {
		log.Printf("retrieve: semantic search: %v", err)
	}
	for _, chunk := range chunks {
		if i, ok := bySource[chunk.SourceID]; ok {
			if chunk.Similarity > items[i].SimilarityScore {
				items[i].SimilarityScore = chunk.Similarity
			}
			continue
		}
		items = append(items, chunkEvidence(chunk))
		bySource[chunk.SourceID] = len(items) - 1
	}

	related, err := r.store.GraphRelatedSources(ctx, entityName, graphLimit)
	if err != nil {
		log.Printf("retrieve: graph traversal: %v", err)
	}
	var missing []int64
	for _, rel := range related {
		if _, ok := bySource[rel.SourceID]; !ok {
			missing = append(missing, rel.SourceID)
		}
	}
	if len(missing) > 0 {
		graphItems, err := r.store.InsightsBySourceIDs(ctx, missing, graphLimit)
		if err != nil {
			log.Printf("retrieve: graph insights: %v", err)
		}
		for _, item := range graphItems {
			if _, ok := bySource[item.SourceID]; ok {
				continue
			}
			items = append(items, item)
			bySource[item.SourceID] = len(items) - 1
		}
	}
	return Result{Items: items, SemanticMatches: len(chunks), GraphRelated: related}
}

// chunkEvidence promotes a vector-only hit into a low-threat evidence
// item whose confidence mirrors the similarity score.
func chunkEvidence(chunk models.MemoryChunk) models.EvidenceItem {
	return models.EvidenceItem{
		Insight: models.Insight{
			SourceID:       chunk.SourceID,
			SourceName:     "memory",
			Insight:        chunk.ChunkText,
			ThreatLevel:    "low",
			Recommendation: "Review the underlying source.",
			EvidenceRef:    chunk.EvidenceRef,
			ContentHash:    chunk.ContentHash,
			Confidence:     math.Round(chunk.Similarity*100) / 100,
			CriticStatus:   "approved",
			CreatedAt:      chunk.CreatedAt,
		},
		SimilarityScore: chunk.Similarity,
	}
}
