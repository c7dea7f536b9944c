package store

import (
	"context"
	"fmt"
)

// schema is the full DDL. Statements are idempotent so Migrate can run on
// every startup. The vector extension must be installed for memory_chunks.
const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS entities (
    id              BIGSERIAL PRIMARY KEY,
    name            TEXT NOT NULL,
    ticker          TEXT NOT NULL UNIQUE,
    cik             TEXT NOT NULL DEFAULT '',
    sector          TEXT NOT NULL DEFAULT '',
    industry        TEXT NOT NULL DEFAULT '',
    exchange        TEXT NOT NULL DEFAULT '',
    entity_type     TEXT NOT NULL DEFAULT 'company',
    aliases         TEXT[] NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_entities_name_lower ON entities (lower(name));

CREATE TABLE IF NOT EXISTS financial_periods (
    id              BIGSERIAL PRIMARY KEY,
    entity_id       BIGINT REFERENCES entities(id),
    ticker          TEXT NOT NULL,
    period_type     TEXT NOT NULL,
    period_end_date DATE NOT NULL,
    fiscal_year     INT NOT NULL DEFAULT 0,
    fiscal_quarter  INT NOT NULL DEFAULT 0,
    source_provider TEXT NOT NULL,
    income_statement JSONB NOT NULL DEFAULT '{}',
    balance_sheet    JSONB NOT NULL DEFAULT '{}',
    cash_flow        JSONB NOT NULL DEFAULT '{}',
    key_metrics      JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (ticker, period_type, period_end_date, source_provider)
);

CREATE TABLE IF NOT EXISTS macro_indicators (
    series_id        TEXT NOT NULL,
    series_name      TEXT NOT NULL,
    observation_date DATE NOT NULL,
    value            DOUBLE PRECISION NOT NULL,
    source_provider  TEXT NOT NULL DEFAULT 'fred',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (series_id, observation_date)
);

CREATE TABLE IF NOT EXISTS social_signals (
    id              BIGSERIAL PRIMARY KEY,
    entity_id       BIGINT REFERENCES entities(id),
    ticker          TEXT NOT NULL,
    platform        TEXT NOT NULL,
    signal_date     DATE NOT NULL,
    mention_count   INT NOT NULL DEFAULT 0,
    avg_sentiment   DOUBLE PRECISION NOT NULL DEFAULT 0,
    top_posts       JSONB NOT NULL DEFAULT '[]',
    source_provider TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (ticker, platform, signal_date)
);

CREATE TABLE IF NOT EXISTS entity_filings (
    id               BIGSERIAL PRIMARY KEY,
    ticker           TEXT NOT NULL,
    cik              TEXT NOT NULL DEFAULT '',
    filing_type      TEXT NOT NULL,
    filing_date      DATE NOT NULL,
    filing_url       TEXT NOT NULL DEFAULT '',
    accession_number TEXT NOT NULL UNIQUE,
    description      TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_filings_ticker ON entity_filings (ticker, filing_date DESC);

CREATE TABLE IF NOT EXISTS sources (
    id             BIGSERIAL PRIMARY KEY,
    name           TEXT NOT NULL,
    url            TEXT NOT NULL UNIQUE,
    connector_type TEXT NOT NULL DEFAULT 'web',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    deleted_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS source_snapshots (
    id           BIGSERIAL PRIMARY KEY,
    source_id    BIGINT NOT NULL REFERENCES sources(id),
    content_hash TEXT NOT NULL,
    excerpt      TEXT NOT NULL DEFAULT '',
    observed_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_snapshots_source ON source_snapshots (source_id, observed_at DESC);

CREATE TABLE IF NOT EXISTS insights (
    id             BIGSERIAL PRIMARY KEY,
    source_id      BIGINT NOT NULL REFERENCES sources(id),
    insight        TEXT NOT NULL,
    threat_level   TEXT NOT NULL DEFAULT 'low',
    recommendation TEXT NOT NULL DEFAULT '',
    evidence_ref   TEXT NOT NULL DEFAULT '',
    content_hash   TEXT NOT NULL DEFAULT '',
    confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
    critic_status  TEXT NOT NULL DEFAULT 'approved',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_insights_fts ON insights
    USING gin (to_tsvector('english', insight || ' ' || recommendation));
CREATE INDEX IF NOT EXISTS idx_insights_created ON insights (created_at DESC);

CREATE TABLE IF NOT EXISTS memory_chunks (
    id           BIGSERIAL PRIMARY KEY,
    source_id    BIGINT NOT NULL REFERENCES sources(id),
    chunk_index  INT NOT NULL,
    chunk_text   TEXT NOT NULL,
    evidence_ref TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL,
    embedding    vector(768),
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (source_id, content_hash, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_memory_embedding ON memory_chunks
    USING hnsw (embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS source_evidence_relations (
    id           BIGSERIAL PRIMARY KEY,
    source_id    BIGINT NOT NULL REFERENCES sources(id),
    evidence_ref TEXT NOT NULL,
    threat_level TEXT NOT NULL DEFAULT 'low',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (source_id, evidence_ref)
);

CREATE TABLE IF NOT EXISTS entity_coverage (
    ticker            TEXT PRIMARY KEY,
    has_financials    BOOLEAN NOT NULL DEFAULT false,
    has_filings       BOOLEAN NOT NULL DEFAULT false,
    has_macro         BOOLEAN NOT NULL DEFAULT false,
    has_social        BOOLEAN NOT NULL DEFAULT false,
    has_news          BOOLEAN NOT NULL DEFAULT false,
    has_price         BOOLEAN NOT NULL DEFAULT false,
    quarterly_periods INT NOT NULL DEFAULT 0,
    filing_count      INT NOT NULL DEFAULT 0,
    score             DOUBLE PRECISION NOT NULL DEFAULT 0,
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS search_queries (
    id             UUID PRIMARY KEY,
    query          TEXT NOT NULL,
    answer         TEXT NOT NULL DEFAULT '',
    confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
    risk_level     TEXT NOT NULL DEFAULT 'low',
    recommendation TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS search_evidence (
    id           BIGSERIAL PRIMARY KEY,
    search_id    UUID NOT NULL REFERENCES search_queries(id) ON DELETE CASCADE,
    source_name  TEXT NOT NULL DEFAULT '',
    insight      TEXT NOT NULL DEFAULT '',
    evidence_ref TEXT NOT NULL DEFAULT '',
    rank_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ingest_runs (
    id         BIGSERIAL PRIMARY KEY,
    source_id  BIGINT NOT NULL,
    status     TEXT NOT NULL,
    detail     TEXT NOT NULL DEFAULT '',
    started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    duration_ms BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS failed_ingestions (
    id         BIGSERIAL PRIMARY KEY,
    source_id  BIGINT NOT NULL,
    error      TEXT NOT NULL,
    retryable  BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_events (
    id          BIGSERIAL PRIMARY KEY,
    event_type  TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id   BIGINT NOT NULL DEFAULT 0,
    detail      TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS retention_runs (
    id          BIGSERIAL PRIMARY KEY,
    table_name  TEXT NOT NULL,
    rows_purged BIGINT NOT NULL DEFAULT 0,
    window_days INT NOT NULL,
    ran_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate applies the schema. Safe to call on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}
