package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"github.com/fahimulhaque/MarketMind/internal/config"
	"github.com/fahimulhaque/MarketMind/internal/infra"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// Statuses recorded per ingestion run.
const (
	StatusSucceeded = "succeeded"
	StatusDegraded  = "degraded" // insight stored, memory write failed
	StatusSkipped   = "skipped"  // unchanged content or throttled
	StatusBlocked   = "blocked"  // policy denial
	StatusFailed    = "failed"
)

const (
	fetchAttempts     = 3
	fetchBackoffBase  = 2 * time.Second
	fetchBackoffCap   = 30 * time.Second
	maxChunksPerRun   = 10
	snapshotExcerptSz = 280
)

// Store is the persistence surface the worker writes through.
type Store interface {
	GetLastIngestTime(ctx context.Context, sourceID int64) (time.Time, error)
	GetLatestSnapshotHash(ctx context.Context, sourceID int64) (string, error)
	InsertSnapshot(ctx context.Context, sourceID int64, contentHash, excerpt string) error
	InsertInsight(ctx context.Context, in models.Insight) (int64, error)
	UpsertMemoryChunk(ctx context.Context, c models.MemoryChunk, embedding []float32) error
	UpsertEvidenceRelation(ctx context.Context, sourceID int64, evidenceRef, threatLevel string) error
	LogIngestRun(ctx context.Context, sourceID int64, status, detail string, duration time.Duration) error
	LogFailedIngestion(ctx context.Context, sourceID int64, errMsg string, retryable bool) error
}

// Embedder turns chunk text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// RunResult summarizes one ingestion run.
type RunResult struct {
	Status       string
	InsightID    int64
	ChunksStored int
	Detail       string
}

// Worker ingests one source at a time: policy, fetch, diff, redact,
// analyze, persist.
type Worker struct {
	store    Store
	policy   *Policy
	embedder Embedder
	cfg      config.IngestConfig
}

// NewWorker wires an ingestion worker.
func NewWorker(st Store, policy *Policy, embedder Embedder, cfg config.IngestConfig) *Worker {
	return &Worker{store: st, policy: policy, embedder: embedder, cfg: cfg}
}

// Run ingests the source end to end and logs the outcome. The returned
// error reflects infrastructure failures only; policy blocks and
// unchanged content come back as statuses.
func (w *Worker) Run(ctx context.Context, src models.Source) (RunResult, error) {
	start := time.Now()
	finish := func(res RunResult, err error) (RunResult, error) {
		if logErr := w.store.LogIngestRun(ctx, src.ID, res.Status, res.Detail, time.Since(start)); logErr != nil {
			log.Printf("ingest: log run source=%d: %v", src.ID, logErr)
		}
		return res, err
	}

	lastIngest, err := w.store.GetLastIngestTime(ctx, src.ID)
	if err != nil {
		log.Printf("ingest: last ingest time source=%d: %v", src.ID, err)
	}
	if err := w.policy.CheckThrottle(src.ID, lastIngest); err != nil {
		return finish(RunResult{Status: StatusSkipped, Detail: "throttled"}, nil)
	}

	if err := w.policy.Allow(ctx, src.URL); err != nil {
		return finish(RunResult{Status: StatusBlocked, Detail: err.Error()}, nil)
	}

	content, err := w.fetchWithRetry(ctx, src)
	if err != nil {
		retryable := isRetryable(err)
		if logErr := w.store.LogFailedIngestion(ctx, src.ID, err.Error(), retryable); logErr != nil {
			log.Printf("ingest: log failure source=%d: %v", src.ID, logErr)
		}
		return finish(RunResult{Status: StatusFailed, Detail: err.Error()}, err)
	}

	contentHash := hashContent(content)
	lastHash, err := w.store.GetLatestSnapshotHash(ctx, src.ID)
	if err != nil {
		return finish(RunResult{Status: StatusFailed, Detail: err.Error()}, err)
	}
	changed := contentHash != lastHash

	content = Redact(content)

	if err := w.store.InsertSnapshot(ctx, src.ID, contentHash, truncateRunes(content, snapshotExcerptSz)); err != nil {
		return finish(RunResult{Status: StatusFailed, Detail: err.Error()}, err)
	}
	if !changed {
		return finish(RunResult{Status: StatusSkipped, Detail: "content unchanged"}, nil)
	}

	insight := Analyze(src, content, contentHash, changed)
	insightID, err := w.store.InsertInsight(ctx, insight)
	if err != nil {
		return finish(RunResult{Status: StatusFailed, Detail: err.Error()}, err)
	}

	res := RunResult{Status: StatusSucceeded, InsightID: insightID}
	if err := w.storeMemory(ctx, src, content, contentHash, insight); err != nil {
		// Evidence is durable; only vector recall is degraded.
		log.Printf("ingest: memory write source=%d degraded: %v", src.ID, err)
		res.Status = StatusDegraded
		res.Detail = err.Error()
	} else {
		res.ChunksStored = min(len(ChunkText(content)), maxChunksPerRun)
	}
	return finish(res, nil)
}

func (w *Worker) fetchWithRetry(ctx context.Context, src models.Source) (string, error) {
	connector := ConnectorFor(src, w.cfg.UserAgent)
	var content string
	err := infra.RetryBackoff(ctx, fetchAttempts, fetchBackoffBase, fetchBackoffCap, func() error {
		var fetchErr error
		content, fetchErr = connector.Fetch(ctx, src)
		return fetchErr
	})
	return content, err
}

// storeMemory embeds up to maxChunksPerRun chunks and records the graph
// relation. Any failure degrades the run rather than failing it.
func (w *Worker) storeMemory(ctx context.Context, src models.Source, content, contentHash string, insight models.Insight) error {
	chunks := ChunkText(content)
	if len(chunks) > maxChunksPerRun {
		chunks = chunks[:maxChunksPerRun]
	}
	for i, chunk := range chunks {
		c := models.MemoryChunk{
			SourceID:    src.ID,
			ChunkIndex:  i,
			ChunkText:   chunk,
			EvidenceRef: insight.EvidenceRef,
			ContentHash: contentHash,
		}
		if err := w.store.UpsertMemoryChunk(ctx, c, w.embedder.Embed(ctx, chunk)); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
	}
	if err := w.store.UpsertEvidenceRelation(ctx, src.ID, insight.EvidenceRef, insight.ThreatLevel); err != nil {
		return fmt.Errorf("evidence relation: %w", err)
	}
	return nil
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func isRetryable(err error) bool {
	var statusErr *infra.HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true // network-level errors are worth retrying later
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
