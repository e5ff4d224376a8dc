package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/verte-zerg/gradelens/internal/insight"
	"github.com/verte-zerg/gradelens/internal/logger"
	"github.com/verte-zerg/gradelens/internal/metrics"
	"github.com/verte-zerg/gradelens/internal/model"
	"github.com/verte-zerg/gradelens/internal/source"
	"github.com/verte-zerg/gradelens/internal/stats"
	"github.com/verte-zerg/gradelens/internal/store"
)

const multipartMemory = 8 << 20

type analyzeResponse struct {
	ID       string            `json:"id"`
	Stats    model.ClassReport `json:"stats"`
	Insights insight.Insights  `json:"insights"`
}

type storedResponse struct {
	ID         string            `json:"id"`
	CreatedAt  time.Time         `json:"createdAt"`
	SourceName string            `json:"sourceName"`
	SourceKind string            `json:"sourceKind"`
	Stats      model.ClassReport `json:"stats"`
}

type summaryResponse struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	SourceName string    `json:"sourceName"`
	SourceKind string    `json:"sourceKind"`
	Students   int       `json:"students"`
	Subjects   int       `json:"subjects"`
	WeakCount  int       `json:"weakCount"`
}

// handleAnalyze handles POST /api/analyze.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	kind := "unknown"
	outcome := metrics.OutcomeError
	defer func() {
		s.metrics.RecordAnalysis(outcome, kind, time.Since(start))
	}()

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large", err)
			return
		}
		outcome = metrics.OutcomeUnsupported
		writeError(w, http.StatusBadRequest, "No file uploaded", nil)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll() // best-effort temp file cleanup
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		outcome = metrics.OutcomeUnsupported
		writeError(w, http.StatusBadRequest, "No file uploaded", nil)
		return
	}
	defer file.Close()

	detected, err := source.Detect(header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		outcome = metrics.OutcomeUnsupported
		writeError(w, http.StatusBadRequest, "Unsupported file type", nil)
		return
	}
	kind = string(detected)

	src, err := source.Open(detected, file, source.Options{Sheet: r.FormValue("sheet")})
	if err != nil {
		s.serverError(ctx, w, err)
		return
	}
	records, err := src.Records(ctx)
	if err != nil {
		outcome = metrics.OutcomeMalformed
		writeError(w, http.StatusBadRequest, "Invalid file", err)
		return
	}

	report, err := stats.Analyze(records)
	switch {
	case errors.Is(err, stats.ErrNoData):
		outcome = metrics.OutcomeNoData
		writeError(w, http.StatusUnprocessableEntity, "No data", nil)
		return
	case errors.Is(err, stats.ErrMalformedBatch):
		outcome = metrics.OutcomeMalformed
		writeError(w, http.StatusBadRequest, "Malformed data", err)
		return
	case err != nil:
		s.serverError(ctx, w, err)
		return
	}

	insights := s.insight.Generate(ctx, report)
	s.metrics.RecordInsight(insights.Source)

	id, err := s.save(ctx, header.Filename, kind, report)
	if err != nil {
		s.serverError(ctx, w, err)
		return
	}
	outcome = metrics.OutcomeOK
	s.metrics.RecordReport(len(report.Students), len(report.WeakSubjects))
	s.log.Info(ctx, "analysis complete",
		logger.String("id", id),
		logger.String("kind", kind),
		logger.Int("students", len(report.Students)),
		logger.Int("weak_subjects", len(report.WeakSubjects)),
		logger.String("insight_source", insights.Source),
	)
	writeJSON(w, http.StatusOK, analyzeResponse{ID: id, Stats: report, Insights: insights})
}

// save stores the report when history is on. Without history the id is
// still unique so clients can correlate responses.
func (s *Server) save(ctx context.Context, name, kind string, report model.ClassReport) (string, error) {
	if s.history == nil {
		return uuid.NewString(), nil
	}
	return s.history.InsertAnalysis(ctx, model.AnalysisMeta{
		CreatedAt:  s.now(),
		SourceName: name,
		SourceKind: kind,
	}, report)
}

// handleListAnalyses handles GET /api/analyses?last=N&since=YYYY-MM-DD.
func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "History disabled", nil)
		return
	}
	filter, err := parseHistoryQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}
	runs, err := s.history.ListAnalyses(r.Context(), filter)
	if err != nil {
		s.serverError(r.Context(), w, err)
		return
	}
	out := make([]summaryResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, summaryResponse(run))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetAnalysis handles GET /api/analyses/{id}.
func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "History disabled", nil)
		return
	}
	stored, err := s.history.GetAnalysis(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not found", nil)
		return
	}
	if err != nil {
		s.serverError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, storedResponse{
		ID:         stored.ID,
		CreatedAt:  stored.CreatedAt,
		SourceName: stored.SourceName,
		SourceKind: stored.SourceKind,
		Stats:      stored.Report,
	})
}

type pinger interface {
	Ping(ctx context.Context) error
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.history.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "history": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) serverError(ctx context.Context, w http.ResponseWriter, err error) {
	s.log.Error(ctx, "request failed", logger.Error(err))
	writeError(w, http.StatusInternalServerError, "Server error", err)
}

func parseHistoryQuery(r *http.Request) (model.HistoryConfig, error) {
	var cfg model.HistoryConfig
	q := r.URL.Query()
	if v := q.Get("last"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("last must be a non-negative integer")
		}
		cfg.Last = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, time.UTC)
		if err != nil {
			return cfg, fmt.Errorf("since must be YYYY-MM-DD")
		}
		cfg.Since = &t
	}
	return cfg, nil
}
