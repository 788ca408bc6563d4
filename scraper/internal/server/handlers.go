// Package server provides the HTTP surface of the sync daemon: health, metrics and run status.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bborgeswq/eproc-scraper-2.0/common/httputil"
	"github.com/bborgeswq/eproc-scraper-2.0/common/logging"
	"github.com/bborgeswq/eproc-scraper-2.0/common/messaging"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/repository"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/runloop"
)

const (
	serviceName      = "eproc-scraper"
	readyTimeout     = 3 * time.Second
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// Store is the read side the handlers need.
type Store interface {
	Ping(ctx context.Context) error
	ListRuns(ctx context.Context, limit int) ([]*models.RunLog, error)
	GetRun(ctx context.Context, id string) (*models.RunLog, error)
}

// StatusSource reports the run-loop state.
type StatusSource interface {
	Status() runloop.Status
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status  string                  `json:"status"`
	Service string                  `json:"service"`
	Checks  map[string]string       `json:"checks,omitempty"`
	NATS    *messaging.HealthStatus `json:"nats,omitempty"`
}

// Handler serves the HTTP API.
type Handler struct {
	store  Store
	loop   StatusSource
	bus    messaging.Client
	logger *logging.Logger
}

// NewHandler creates a handler. loop and bus may be nil.
func NewHandler(store Store, loop StatusSource, bus messaging.Client, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, loop: loop, bus: bus, logger: logger}
}

// HealthCheck handles GET /healthz
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok", Service: serviceName})
}

// ReadyCheck handles GET /readyz
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ready", Service: serviceName, Checks: map[string]string{"store": "ok"}}
	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "Readiness check failed", logging.Error(err))
		resp.Status = "not_ready"
		resp.Checks["store"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if h.bus != nil {
		nats := messaging.CheckClientHealth(h.bus)
		resp.NATS = &nats
	}
	httputil.WriteJSON(w, status, resp)
}

// Status handles GET /api/v1/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if h.loop == nil {
		httputil.WriteJSON(w, http.StatusOK, runloop.Status{State: runloop.Idle})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.loop.Status())
}

// Runs handles GET /api/v1/runs?limit=N
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	limit := httputil.ParseLimit(r, defaultRunsLimit, maxRunsLimit)
	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to list runs", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*models.RunLog{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": runs, "limit": limit})
}

// Run handles GET /api/v1/runs/{id}
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/runs/"), "/")
	if id == "" {
		h.Runs(w, r)
		return
	}
	run, err := h.store.GetRun(r.Context(), id)
	if errors.Is(err, repository.ErrRunNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to get run", "id", id, logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, run)
}
