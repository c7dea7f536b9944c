package models

import "time"

// Source is a registered ingestible URL. Soft-deleted via DeletedAt.
type Source struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	URL           string     `json:"url"`
	ConnectorType string     `json:"connector_type"` // "web" or "rss"
	CreatedAt     time.Time  `json:"created_at,omitempty"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// SourceSnapshot is an append-only observation of a source's content.
type SourceSnapshot struct {
	ID          int64     `json:"id"`
	SourceID    int64     `json:"source_id"`
	ContentHash string    `json:"content_hash"`
	Excerpt     string    `json:"excerpt"`
	ObservedAt  time.Time `json:"observed_at"`
}

// Insight is an atomic piece of evidence created by ingestion.
type Insight struct {
	ID             int64     `json:"id"`
	SourceID       int64     `json:"source_id"`
	SourceName     string    `json:"source_name"`
	Insight        string    `json:"insight"`
	ThreatLevel    string    `json:"threat_level"` // low|medium|high
	Recommendation string    `json:"recommendation"`
	EvidenceRef    string    `json:"evidence_ref"`
	ContentHash    string    `json:"content_hash"`
	Confidence     float64   `json:"confidence"`
	CriticStatus   string    `json:"critic_status"` // approved|flagged
	CreatedAt      time.Time `json:"created_at"`
}

// EvidenceItem is an insight carrying the query-time retrieval and
// ranking scores.
type EvidenceItem struct {
	Insight

	TextRank        float64 `json:"text_rank,omitempty"`
	SimilarityScore float64 `json:"similarity_score,omitempty"`

	RecencyScore    float64 `json:"recency_score,omitempty"`
	SourceQuality   float64 `json:"source_quality,omitempty"`
	TokenRelevance  float64 `json:"token_relevance,omitempty"`
	SemanticScore   float64 `json:"semantic_score,omitempty"`
	EntityRelevance float64 `json:"entity_relevance,omitempty"`
	RankScore       float64 `json:"rank_score,omitempty"`
}

// MemoryChunk is an embedded text fragment of a source used for vector
// search. (source_id, content_hash, chunk_index) is unique.
type MemoryChunk struct {
	ID          int64     `json:"id"`
	SourceID    int64     `json:"source_id"`
	ChunkIndex  int       `json:"chunk_index"`
	ChunkText   string    `json:"chunk_text"`
	EvidenceRef string    `json:"evidence_ref"`
	ContentHash string    `json:"content_hash"`
	Similarity  float64   `json:"similarity,omitempty"` // query-time cosine score
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// RelatedSource is a graph-traversal hit: a source sharing an evidence_ref
// with sources matching the resolved entity.
type RelatedSource struct {
	SourceID    int64  `json:"source_id"`
	Name        string `json:"name"`
	EvidenceRef string `json:"evidence_ref"`
	ThreatLevel string `json:"threat_level"`
}

// ConnectedEntity is an entity linked through shared evidence references.
type ConnectedEntity struct {
	Name           string `json:"name"`
	SharedEvidence int    `json:"shared_evidence"`
}

// Contradiction flags conflicting interpretations among top evidence.
type Contradiction struct {
	Type   string `json:"type"`   // threat_level_conflict | recommendation_conflict
	Detail string `json:"detail"`
}
