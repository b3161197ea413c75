// Package statusapi serves the orchestrator's read-only reports as JSON.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GoCodeAlone/orchestra"
	"github.com/GoCodeAlone/orchestra/lifecycle"
)

// Reporter is the read side of the orchestrator.
type Reporter interface {
	IsRunning() bool
	SystemHealth() orchestra.SystemHealthSnapshot
	Managers() []orchestra.ManagerInfo
	Manager(id string) (orchestra.ManagerInfo, error)
	ManagersByCategory(category orchestra.Category) map[string]orchestra.ManagerInfo
	ConsolidationReport() orchestra.ConsolidationReport
	HealthHistory(since time.Time) []orchestra.SystemHealthSnapshot
	EventHistory(ctx context.Context, criteria *lifecycle.QueryCriteria) ([]*lifecycle.Event, error)
}

// Handler serves the status routes.
type Handler struct {
	reporter Reporter
}

// NewRouter returns a chi router with every status route mounted at its root.
func NewRouter(reporter Reporter) chi.Router {
	h := &Handler{reporter: reporter}
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

// Routes registers the status routes on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/health/history", h.handleHealthHistory)
	r.Get("/ready", h.handleReady)
	r.Route("/managers", func(r chi.Router) {
		r.Get("/", h.handleManagers)
		r.Get("/{id}", h.handleManager)
	})
	r.Get("/categories/{category}", h.handleCategory)
	r.Get("/consolidation", h.handleConsolidation)
	r.Get("/events", h.handleEvents)
}

type errorResponse struct {
	Error string `json:"error"`
}

type readyResponse struct {
	Ready   bool                           `json:"ready"`
	Running bool                           `json:"running"`
	Health  orchestra.SystemHealthSnapshot `json:"health"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reporter.SystemHealth())
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	snapshot := h.reporter.SystemHealth()
	running := h.reporter.IsRunning()
	resp := readyResponse{
		Ready:   running && snapshot.DegradedManagers == 0 && snapshot.FailedManagers == 0,
		Running: running,
		Health:  snapshot,
	}
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (h *Handler) handleHealthHistory(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, h.reporter.HealthHistory(since))
}

func (h *Handler) handleManagers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reporter.Managers())
}

func (h *Handler) handleManager(w http.ResponseWriter, r *http.Request) {
	info, err := h.reporter.Manager(chi.URLParam(r, "id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, orchestra.ErrManagerNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) handleCategory(w http.ResponseWriter, r *http.Request) {
	category := orchestra.Category(chi.URLParam(r, "category"))
	writeJSON(w, http.StatusOK, h.reporter.ManagersByCategory(category))
}

func (h *Handler) handleConsolidation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reporter.ConsolidationReport())
}

// handleEvents supports ?source=, ?type=, ?since= (RFC 3339) and ?limit=.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	criteria := &lifecycle.QueryCriteria{
		Sources:       query["source"],
		CorrelationID: query.Get("correlation_id"),
		OrderDesc:     query.Get("order") == "desc",
	}
	for _, t := range query["type"] {
		criteria.EventTypes = append(criteria.EventTypes, lifecycle.EventType(t))
	}
	if query.Get("since") != "" {
		since, err := parseSince(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		criteria.Since = &since
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		criteria.Limit = limit
	}

	events, err := h.reporter.EventHistory(r.Context(), criteria)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func parseSince(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return time.Time{}, nil
	}
	since, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, errors.New("since must be an RFC 3339 timestamp")
	}
	return since, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
