// Package httpapi exposes the compliance dashboard service over HTTP+JSON.
package httpapi

import (
	"compliancedash/internal/core"
	"compliancedash/pkg/domain"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// DefaultMaxUploadBytes caps spreadsheet imports.
	DefaultMaxUploadBytes int64 = 50 << 20
	maxJSONBytes          int64 = 1 << 20
	multipartSlack        int64 = 1 << 20
)

// Config tunes a Handler. Zero values select defaults.
type Config struct {
	Logger *slog.Logger
	// Registry receives the HTTP collectors and backs GET /metrics. A nil
	// Registry gets a private one.
	Registry       *prometheus.Registry
	MaxUploadBytes int64
	MaxFileBytes   int64
	// StaticDir is served at / when set.
	StaticDir string
	Now       func() time.Time
}

// Handler routes the dashboard API.
type Handler struct {
	svc            Service
	logger         *slog.Logger
	now            func() time.Time
	maxUploadBytes int64
	maxFileBytes   int64
	metrics        *httpMetrics
	mux            *http.ServeMux
}

// NewHandler builds the routes for svc.
func NewHandler(svc Service, cfg Config) (*Handler, error) {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metrics, err := newHTTPMetrics(reg)
	if err != nil {
		return nil, err
	}
	h := &Handler{
		svc:            svc,
		logger:         cfg.Logger,
		now:            cfg.Now,
		maxUploadBytes: cfg.MaxUploadBytes,
		maxFileBytes:   cfg.MaxFileBytes,
		metrics:        metrics,
		mux:            http.NewServeMux(),
	}
	if h.logger == nil {
		h.logger = slog.New(slog.DiscardHandler)
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = DefaultMaxUploadBytes
	}
	if h.maxFileBytes <= 0 {
		h.maxFileBytes = core.DefaultMaxFileBytes
	}
	h.routes(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), cfg.StaticDir)
	return h, nil
}

func (h *Handler) routes(metrics http.Handler, staticDir string) {
	m := h.mux
	m.HandleFunc("GET /api/health", h.handleHealth)

	m.HandleFunc("GET /api/data", h.handleListPlants)
	m.HandleFunc("PUT /api/data/{id}", h.handleUpdatePlant)
	m.HandleFunc("GET /api/summary", h.handleSummary)
	m.HandleFunc("POST /api/upload", h.handleUpload)
	m.HandleFunc("GET /api/export", h.handleExport)
	m.HandleFunc("GET /api/export-all-plants", h.handleExportAll)

	m.HandleFunc("POST /api/plant/{id}/files", h.handleAttachFile)
	m.HandleFunc("GET /api/plant/{id}/files", h.handleListFiles)
	m.HandleFunc("DELETE /api/plant/{id}/files/{fileId}", h.handleDeleteFile)
	m.HandleFunc("GET /api/plant/{id}/files/{fileId}/download", h.handleDownloadFile)
	m.HandleFunc("GET /api/plant/{id}/report", h.handlePlantReport)
	m.HandleFunc("GET /api/plant/{id}/download-all", h.handlePlantBundle)

	m.HandleFunc("GET /api/alerts", h.handleListAlerts)
	m.HandleFunc("POST /api/alerts", h.handleCreateGeneralAlert)
	m.HandleFunc("POST /api/plant/{id}/alerts", h.handleCreatePlantAlert)
	m.HandleFunc("POST /api/alerts/{id}/responses", h.handleRespond)
	m.HandleFunc("PUT /api/alerts/{id}/resolve", h.handleResolve)
	m.HandleFunc("DELETE /api/alerts/{id}", h.handleDeleteAlert)

	m.HandleFunc("GET /api/messages", h.handleListMessages)
	m.HandleFunc("POST /api/messages", h.handleSendMessage)

	m.Handle("GET /metrics", metrics)
	m.HandleFunc("/api/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	if staticDir != "" {
		m.Handle("/", http.FileServer(http.Dir(staticDir)))
	} else {
		m.Handle("/", http.NotFoundHandler())
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	h.mux.ServeHTTP(rec, r)
	elapsed := time.Since(start)
	h.metrics.observe(r, rec.status, elapsed)
	h.logger.LogAttrs(r.Context(), slog.LevelInfo, "http request",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", rec.status),
		slog.Duration("duration", elapsed),
	)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// fail maps a service error onto a status code and error body.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		tooBig *http.MaxBytesError
		ve     domain.ValidationError
		nf     domain.ErrNotFound
	)
	switch {
	case errors.As(err, &tooBig):
		writeError(w, http.StatusRequestEntityTooLarge, "request body exceeds "+strconv.FormatInt(tooBig.Limit, 10)+" bytes")
	case errors.As(err, &ve):
		status := http.StatusBadRequest
		if ve.TooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, ve.Error())
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, notFoundMessage(nf.Entity))
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func notFoundMessage(entity domain.EntityType) string {
	switch entity {
	case domain.EntityPlant:
		return "Plant not found"
	case domain.EntityPlantFile:
		return "File not found"
	case domain.EntityAlert:
		return "Alert not found"
	default:
		return "not found"
	}
}

// pathID reads an integer path parameter, writing a 400 when it is malformed.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(r.PathValue(name))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes)).Decode(dst)
	if err != nil && err.Error() != "EOF" {
		return err
	}
	return nil
}

func (h *Handler) decodeOrFail(w http.ResponseWriter, r *http.Request, dst any, what string) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.fail(w, r, err)
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid "+what+" payload")
		return false
	}
	return true
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
