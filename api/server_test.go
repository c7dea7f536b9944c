package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahimulhaque/MarketMind/internal/config"
	"github.com/fahimulhaque/MarketMind/internal/provider"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

type fakeEngine struct {
	lastQuery string
	lastLimit int
	events    []models.StageEvent
}

func (f *fakeEngine) Run(_ context.Context, query string, limit int) (*models.Report, error) {
	f.lastQuery = query
	f.lastLimit = limit
	return &models.Report{
		SearchID: "search-1",
		Report:   models.ReportBody{ExecutiveSummary: "summary"},
	}, nil
}

func (f *fakeEngine) RunStream(_ context.Context, query string, _ int) <-chan models.StageEvent {
	f.lastQuery = query
	ch := make(chan models.StageEvent, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch
}

type fakeSuggester struct{ out []models.EntitySuggestion }

func (f *fakeSuggester) Autocomplete(_ context.Context, _ string, _ int) ([]models.EntitySuggestion, error) {
	return f.out, nil
}

type fakeAPIResolver struct{ entity models.Entity }

func (f *fakeAPIResolver) Resolve(_ context.Context, _, _ string) (models.Entity, bool, error) {
	return f.entity, f.entity.Name != "", nil
}

type fakeAPIEnricher struct{ calls int }

func (f *fakeAPIEnricher) RunFullEnrichment(_ context.Context, entity models.Entity, _ func(provider.ProviderResult)) provider.EnrichmentSummary {
	f.calls++
	return provider.EnrichmentSummary{Entity: entity, TotalRecords: 3}
}

type fakeIngestor struct{ queued []int64 }

func (f *fakeIngestor) Enqueue(src models.Source) error { return nil }

func (f *fakeIngestor) EnqueuePriority(src models.Source) error {
	f.queued = append(f.queued, src.ID)
	return nil
}

type fakeRepo struct {
	history []models.SearchRecord
	sources []models.Source
	deleted []int64
}

func (f *fakeRepo) GetSearchHistory(_ context.Context, _, _ int) ([]models.SearchRecord, error) {
	return f.history, nil
}

func (f *fakeRepo) AddSource(_ context.Context, name, url, connectorType string) (models.Source, error) {
	src := models.Source{ID: int64(len(f.sources) + 1), Name: name, URL: url, ConnectorType: connectorType}
	f.sources = append(f.sources, src)
	return src, nil
}

func (f *fakeRepo) GetSource(_ context.Context, id int64) (models.Source, error) {
	for _, src := range f.sources {
		if src.ID == id {
			return src, nil
		}
	}
	return models.Source{}, assert.AnError
}

func (f *fakeRepo) ListActiveSources(_ context.Context) ([]models.Source, error) {
	return f.sources, nil
}

func (f *fakeRepo) DeleteSourceRecords(_ context.Context, sourceID int64) error {
	f.deleted = append(f.deleted, sourceID)
	return nil
}

func newTestServer(t *testing.T, writeKey string) (*Server, *fakeEngine, *fakeRepo) {
	t.Helper()
	engine := &fakeEngine{events: []models.StageEvent{
		{Stage: "query_parsed", Progress: 0.05},
		{Stage: "decision_ready", Progress: 0.78},
		{Stage: "complete", Progress: 1.0, Data: map[string]any{"search_id": "search-1"}},
	}}
	repo := &fakeRepo{
		sources: []models.Source{{ID: 7, Name: "acme blog", URL: "https://acme.test/blog", ConnectorType: "web"}},
	}
	cfg := &config.Config{}
	cfg.API.WriteKey = writeKey
	srv := NewServer(cfg, Deps{
		Engine:   engine,
		Suggest:  &fakeSuggester{out: []models.EntitySuggestion{{Ticker: "ACME", Name: "Acme Corp"}}},
		Resolver: &fakeAPIResolver{entity: models.Entity{Name: "Acme Corp", Ticker: "ACME"}},
		Enricher: &fakeAPIEnricher{},
		Ingestor: &fakeIngestor{},
		Repo:     repo,
	})
	return srv, engine, repo
}

func doJSON(t *testing.T, srv *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	rec := doJSON(t, srv, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestSearchQuery(t *testing.T) {
	srv, engine, _ := newTestServer(t, "")
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/search/query",
		SearchRequest{Query: "acme supplier risk", Limit: 10}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report models.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "search-1", report.SearchID)
	assert.Equal(t, "acme supplier risk", engine.lastQuery)
	assert.Equal(t, 10, engine.lastLimit)
}

func TestSearchQueryValidation(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/search/query", SearchRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/search/query",
		SearchRequest{Query: "q", Limit: 99}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchStreamEmitsSSE(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/search/stream",
		SearchRequest{Query: "acme risk"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	frames := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	require.Len(t, frames, 3)
	var first models.StageEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frames[0], "data: ")), &first))
	assert.Equal(t, "query_parsed", first.Stage)

	var last models.StageEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frames[2], "data: ")), &last))
	assert.Equal(t, "complete", last.Stage)
	assert.InDelta(t, 1.0, last.Progress, 1e-9)
}

func TestAutocomplete(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/search/autocomplete?q=ac", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Success bool                     `json:"success"`
		Data    []models.EntitySuggestion `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "ACME", resp.Data[0].Ticker)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/search/autocomplete", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchHistoryDefaults(t *testing.T) {
	srv, _, repo := newTestServer(t, "")
	repo.history = []models.SearchRecord{{ID: "s1", Query: "acme"}}

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/search/history", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Page     int                   `json:"page"`
			PageSize int                   `json:"page_size"`
			Results  []models.SearchRecord `json:"results"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Page)
	assert.Equal(t, 20, resp.Data.PageSize)
	require.Len(t, resp.Data.Results, 1)
}

func TestWriteKeyGuard(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	rec := doJSON(t, srv, http.MethodGet, "/api/v1/sources", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "unset key disables writes")

	srv, _, _ = newTestServer(t, "secret")
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/sources", nil,
		map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/sources", nil,
		map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAddSourceValidation(t *testing.T) {
	srv, _, _ := newTestServer(t, "secret")
	auth := map[string]string{"X-API-Key": "secret"}

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sources",
		AddSourceRequest{Name: "feed", URL: "https://x.test/rss", ConnectorType: "ftp"}, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/sources",
		AddSourceRequest{Name: "feed", URL: "https://x.test/rss", ConnectorType: "rss"}, auth)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data models.Source `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "rss", resp.Data.ConnectorType)
}

func TestIngestSourceQueues(t *testing.T) {
	srv, _, _ := newTestServer(t, "secret")
	auth := map[string]string{"X-API-Key": "secret"}

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sources/7/ingest", nil, auth)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/sources/999/ingest", nil, auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeletionRequestCascades(t *testing.T) {
	srv, _, repo := newTestServer(t, "secret")
	auth := map[string]string{"X-API-Key": "secret"}

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/compliance/deletion-requests",
		DeletionRequest{SourceID: 7}, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{7}, repo.deleted)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/compliance/deletion-requests",
		DeletionRequest{}, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnrichEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, "secret")
	auth := map[string]string{"X-API-Key": "secret"}

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/agents/enrich/ACME", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data provider.EnrichmentSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ACME", resp.Data.Entity.Ticker)
	assert.Equal(t, 3, resp.Data.TotalRecords)
}

func TestGenerateReportHTML(t *testing.T) {
	srv, _, _ := newTestServer(t, "secret")
	auth := map[string]string{"X-API-Key": "secret"}

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/reports/generate",
		GenerateReportRequest{Query: "acme outlook", Format: "html"}, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<!DOCTYPE html>")
	assert.Contains(t, rec.Body.String(), "summary")

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/reports/generate",
		GenerateReportRequest{Query: "acme outlook"}, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}
