package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

type fakeRetrieveStore struct {
	text    []models.EvidenceItem
	textErr error
	recent  []models.EvidenceItem
	chunks  []models.MemoryChunk
	related []models.RelatedSource
	graph   []models.EvidenceItem
}

func (f *fakeRetrieveStore) SearchInsightsByText(_ context.Context, _ string, _ int) ([]models.EvidenceItem, error) {
	return f.text, f.textErr
}

func (f *fakeRetrieveStore) SemanticSearch(_ context.Context, _ []float32, _ int) ([]models.MemoryChunk, error) {
	return f.chunks, nil
}

func (f *fakeRetrieveStore) GraphRelatedSources(_ context.Context, _ string, _ int) ([]models.RelatedSource, error) {
	return f.related, nil
}

func (f *fakeRetrieveStore) InsightsBySourceIDs(_ context.Context, _ []int64, _ int) ([]models.EvidenceItem, error) {
	return f.graph, nil
}

func (f *fakeRetrieveStore) RecentInsights(_ context.Context, _ int) ([]models.EvidenceItem, error) {
	return f.recent, nil
}

type staticEmbedder struct{}

func (staticEmbedder) Embed(_ context.Context, _ string) []float32 { return []float32{1, 0, 0} }

func evidence(sourceID int64, text string) models.EvidenceItem {
	return models.EvidenceItem{Insight: models.Insight{
		ID: sourceID, SourceID: sourceID, SourceName: "src", Insight: text,
		ThreatLevel: "low", Confidence: 0.6,
	}}
}

func TestRetrieveAttachesSimilarityToTextHits(t *testing.T) {
	st := &fakeRetrieveStore{
		text: []models.EvidenceItem{evidence(1, "Tesla margin pressure")},
		chunks: []models.MemoryChunk{
			{SourceID: 1, ChunkText: "margins compressed", Similarity: 0.83},
		},
	}
	r := New(st, staticEmbedder{})

	items := r.Retrieve(context.Background(), "tesla margins", "Tesla, Inc.").Items
	require.Len(t, items, 1, "same-source chunk must not duplicate the insight")
	assert.InDelta(t, 0.83, items[0].SimilarityScore, 1e-9)
}

func TestRetrievePromotesVectorOnlyHits(t *testing.T) {
	st := &fakeRetrieveStore{
		text: []models.EvidenceItem{evidence(1, "Tesla margin pressure")},
		chunks: []models.MemoryChunk{
			{SourceID: 2, ChunkText: "deliveries grew 12% in China", Similarity: 0.776},
		},
	}
	r := New(st, staticEmbedder{})

	items := r.Retrieve(context.Background(), "tesla deliveries", "Tesla, Inc.").Items
	require.Len(t, items, 2)
	promoted := items[1]
	assert.Equal(t, "memory", promoted.SourceName)
	assert.Equal(t, "low", promoted.ThreatLevel)
	assert.InDelta(t, 0.78, promoted.Confidence, 1e-9, "confidence is similarity rounded to 2 places")
	assert.InDelta(t, 0.776, promoted.SimilarityScore, 1e-9)
}

func TestRetrieveMergesGraphSources(t *testing.T) {
	st := &fakeRetrieveStore{
		text:    []models.EvidenceItem{evidence(1, "Tesla update")},
		related: []models.RelatedSource{{SourceID: 3, Name: "supplier report"}},
		graph:   []models.EvidenceItem{evidence(3, "Panasonic expands battery output")},
	}
	r := New(st, staticEmbedder{})

	items := r.Retrieve(context.Background(), "tesla batteries", "Tesla, Inc.").Items
	require.Len(t, items, 2)
	assert.EqualValues(t, 3, items[1].SourceID)
}

func TestRetrieveGraphSkipsKnownSources(t *testing.T) {
	st := &fakeRetrieveStore{
		text:    []models.EvidenceItem{evidence(3, "already here")},
		related: []models.RelatedSource{{SourceID: 3, Name: "dup"}},
		graph:   []models.EvidenceItem{evidence(3, "duplicate")},
	}
	r := New(st, staticEmbedder{})

	items := r.Retrieve(context.Background(), "q", "Acme").Items
	assert.Len(t, items, 1)
}

func TestRetrieveFallsBackToRecentOnEmptyText(t *testing.T) {
	st := &fakeRetrieveStore{
		recent: []models.EvidenceItem{evidence(7, "recent item")},
		chunks: []models.MemoryChunk{{SourceID: 7, ChunkText: "recent", Similarity: 0.5}},
	}
	r := New(st, staticEmbedder{})

	items := r.Retrieve(context.Background(), "nothing matches", "Acme").Items
	require.Len(t, items, 1)
	assert.InDelta(t, 0.5, items[0].SimilarityScore, 1e-9)
}

func TestRetrieveSurvivesTextSearchFailure(t *testing.T) {
	st := &fakeRetrieveStore{
		textErr: errors.New("ts query syntax"),
		chunks:  []models.MemoryChunk{{SourceID: 2, ChunkText: "vector only", Similarity: 0.6}},
	}
	r := New(st, staticEmbedder{})

	items := r.Retrieve(context.Background(), "q", "Acme").Items
	require.Len(t, items, 1)
	assert.Equal(t, "memory", items[0].SourceName)
}

func TestRetrieveReportsPathStats(t *testing.T) {
	st := &fakeRetrieveStore{
		text:    []models.EvidenceItem{evidence(1, "Tesla update")},
		chunks:  []models.MemoryChunk{{SourceID: 1, ChunkText: "update", Similarity: 0.7}},
		related: []models.RelatedSource{{SourceID: 3, Name: "supplier report"}},
		graph:   []models.EvidenceItem{evidence(3, "battery output")},
	}
	r := New(st, staticEmbedder{})

	res := r.Retrieve(context.Background(), "tesla", "Tesla, Inc.")
	assert.Equal(t, 1, res.SemanticMatches)
	require.Len(t, res.GraphRelated, 1)
	assert.Equal(t, "supplier report", res.GraphRelated[0].Name)
}
