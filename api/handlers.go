package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// Version is reported by the health endpoint and the CLI.
const Version = "0.1.0"

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SearchRequest is the body for POST /api/v1/search/query and /search/stream.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// AddSourceRequest is the body for POST /api/v1/sources.
type AddSourceRequest struct {
	Name          string `json:"name"`
	URL           string `json:"url"`
	ConnectorType string `json:"connector_type"` // "web" or "rss"
}

// GenerateReportRequest is the body for POST /api/v1/reports/generate.
type GenerateReportRequest struct {
	Query  string `json:"query"`
	Limit  int    `json:"limit,omitempty"`
	Format string `json:"format,omitempty"` // json (default) or html
}

// DeletionRequest is the body for POST /api/v1/compliance/deletion-requests.
type DeletionRequest struct {
	SourceID int64 `json:"source_id"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("api: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{Success: false, Error: msg})
}

func decodeSearchRequest(r *http.Request) (SearchRequest, error) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, errors.New("invalid request body")
	}
	if req.Query == "" {
		return req, errors.New("query is required")
	}
	if req.Limit < 0 || req.Limit > 50 {
		return req, errors.New("limit must be between 1 and 50")
	}
	return req, nil
}

func (s *Server) handleSearchQuery(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSearchRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.engine.Run(r.Context(), req.Query, req.Limit)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleSearchStream streams pipeline stage events as server-sent events.
// Each event is one `data: <json>` frame; the stream ends after the
// terminal complete or error event.
func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSearchRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range s.engine.RunStream(r.Context(), req.Query, req.Limit) {
		data, err := json.Marshal(ev)
		if err != nil {
			log.Printf("api: marshal stage event: %v", err)
			continue
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return
		}
		if _, err := w.Write(data); err != nil {
			return
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return
		}
		flusher.Flush()

		s.wsHub.Broadcast(WSMessage{Type: "stage_event", Data: ev})
	}
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	suggestions, err := s.suggest.Autocomplete(r.Context(), q, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if suggestions == nil {
		suggestions = []models.EntitySuggestion{}
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: suggestions})
}

func (s *Server) handleSearchHistory(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	records, err := s.repo.GetSearchHistory(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []models.SearchRecord{}
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]any{
		"page":      page,
		"page_size": pageSize,
		"results":   records,
	}})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.repo.ListActiveSources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sources == nil {
		sources = []models.Source{}
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: sources})
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var req AddSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "name and url are required")
		return
	}
	if req.ConnectorType != "web" && req.ConnectorType != "rss" {
		writeError(w, http.StatusBadRequest, "connector_type must be web or rss")
		return
	}

	src, err := s.repo.AddSource(r.Context(), req.Name, req.URL, req.ConnectorType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: src})
}

func (s *Server) handleIngestSource(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source id")
		return
	}
	src, err := s.repo.GetSource(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "source not found")
		return
	}
	if err := s.ingestor.EnqueuePriority(src); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, APIResponse{Success: true, Data: map[string]any{
		"source_id": id,
		"status":    "queued",
	}})
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source id")
		return
	}
	if err := s.repo.DeleteSourceRecords(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]any{
		"source_id": id,
		"status":    "deleted",
	}})
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	entity, ok, err := s.resolver.Resolve(ctx, ticker, ticker)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "entity not found")
		return
	}

	summary := s.enricher.RunFullEnrichment(ctx, entity, nil)
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: summary})
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var req GenerateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	rep, err := s.engine.Run(r.Context(), req.Query, req.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if req.Format == "html" {
		html, err := s.render.RenderHTML(*rep)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(html)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// handleDeletionRequest soft-deletes a source and cascades to its
// snapshots, insights, evidence relations, and memory chunks.
func (s *Server) handleDeletionRequest(w http.ResponseWriter, r *http.Request) {
	var req DeletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SourceID <= 0 {
		writeError(w, http.StatusBadRequest, "source_id is required")
		return
	}
	if err := s.repo.DeleteSourceRecords(r.Context(), req.SourceID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]any{
		"source_id": req.SourceID,
		"status":    "deleted",
	}})
}
