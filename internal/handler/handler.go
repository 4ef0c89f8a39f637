package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"circuitsync/internal/config"
	"circuitsync/internal/domain"
	"circuitsync/internal/logging"
	"circuitsync/internal/repository"
	"circuitsync/internal/service"
)

// CircuitLookup resolves circuits from the inventory
type CircuitLookup interface {
	Circuit(id string) (domain.Circuit, bool)
	Circuits() []domain.Circuit
}

// CircuitRunner runs a pass for every device of a circuit
type CircuitRunner interface {
	ReconcileCircuit(ctx context.Context, circuit domain.Circuit, opts service.PassOptions) ([]*domain.ReconciliationResult, error)
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ReconcileRequest is the optional body of a reconcile call
type ReconcileRequest struct {
	Remediate *bool `json:"remediate,omitempty"`
	// Async returns 202 at once; results land in the store and on the event stream
	Async bool `json:"async,omitempty"`
}

// ReconcileResponse carries the results of a synchronous reconcile call
type ReconcileResponse struct {
	Summary service.CircuitSummary         `json:"summary"`
	Results []*domain.ReconciliationResult `json:"results"`
}

// CircuitInfo is the listing entry for one circuit
type CircuitInfo struct {
	ID          string             `json:"id"`
	ServiceType domain.ServiceType `json:"service_type"`
	OrderType   domain.OrderType   `json:"order_type,omitempty"`
	Devices     []string           `json:"devices"`
}

// ResultHandler serves results and triggers passes
type ResultHandler struct {
	store     repository.ResultStore
	inventory CircuitLookup
	runner    CircuitRunner
	cfg       *config.Config
	opts      service.PassOptions
	// background bounds asynchronous passes, which outlive their request
	background context.Context
	log        *logrus.Entry
}

// NewResultHandler creates a handler. opts are the defaults for every pass;
// remediation is only honoured when cfg allows it.
func NewResultHandler(store repository.ResultStore, inventory CircuitLookup, runner CircuitRunner, cfg *config.Config, opts service.PassOptions) *ResultHandler {
	return &ResultHandler{
		store:      store,
		inventory:  inventory,
		runner:     runner,
		cfg:        cfg,
		opts:       opts,
		background: context.Background(),
		log:        logging.For("api"),
	}
}

// SetBackgroundContext sets the context asynchronous passes run under
func (h *ResultHandler) SetBackgroundContext(ctx context.Context) {
	h.background = ctx
}

// Register mounts every endpoint on mux
func (h *ResultHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("GET /api/circuits", h.ListCircuits)
	mux.HandleFunc("POST /api/circuits/{id}/reconcile", h.ReconcileCircuit)
	mux.HandleFunc("GET /api/results", h.ListResults)
	mux.HandleFunc("GET /api/results/{device}", h.GetResult)
	mux.HandleFunc("GET /api/results/{device}/history", h.History)
}

// Health reports the mode and enabled capabilities
func (h *ResultHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]any{
		"status":       "ok",
		"mode":         h.cfg.Mode,
		"posture":      h.cfg.Posture,
		"capabilities": h.cfg.GetEnabledCapabilities(),
	}, http.StatusOK)
}

// ListCircuits returns the inventory
func (h *ResultHandler) ListCircuits(w http.ResponseWriter, r *http.Request) {
	circuits := h.inventory.Circuits()
	out := make([]CircuitInfo, 0, len(circuits))
	for _, c := range circuits {
		info := CircuitInfo{ID: c.ID, ServiceType: c.ServiceType, OrderType: c.OrderType, Devices: []string{}}
		for _, d := range c.Devices {
			info.Devices = append(info.Devices, d.Ref())
		}
		out = append(out, info)
	}
	h.writeJSON(w, out, http.StatusOK)
}

// ReconcileCircuit runs a pass for every device of a circuit
func (h *ResultHandler) ReconcileCircuit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	circuit, ok := h.inventory.Circuit(id)
	if !ok {
		h.writeError(w, "Not found", "unknown circuit "+id, http.StatusNotFound)
		return
	}

	var req ReconcileRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}
	}

	opts := h.opts
	if req.Remediate != nil {
		if *req.Remediate && !h.cfg.RemediationEnabled() {
			h.writeError(w, "Remediation disabled", "mode "+string(h.cfg.Mode)+" does not allow remediation", http.StatusForbidden)
			return
		}
		opts.Remediate = *req.Remediate
	}

	log := h.log.WithFields(logrus.Fields{"circuit": circuit.ID, "remediate": opts.Remediate})
	if req.Async {
		go func() {
			if _, err := h.runner.ReconcileCircuit(h.background, circuit, opts); err != nil {
				log.WithError(err).Warn("Background reconcile finished with errors")
			}
		}()
		h.writeJSON(w, map[string]string{"status": "reconcile_started", "circuit": circuit.ID}, http.StatusAccepted)
		return
	}

	start := time.Now()
	results, err := h.runner.ReconcileCircuit(r.Context(), circuit, opts)
	if err != nil && len(results) == 0 {
		log.WithError(err).Error("Reconcile failed")
		h.writeError(w, "Reconcile failed", err.Error(), http.StatusInternalServerError)
		return
	}
	if err != nil {
		log.WithError(err).Warn("Reconcile finished with errors")
	}
	h.writeJSON(w, ReconcileResponse{
		Summary: service.Summarize(circuit.ID, results, time.Since(start)),
		Results: results,
	}, http.StatusOK)
}

// ListResults returns the last result of every device
func (h *ResultHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	filter := repository.ResultFilter{CircuitID: r.URL.Query().Get("circuit")}
	if v := r.URL.Query().Get("dirty"); v != "" {
		dirty, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, "Invalid dirty parameter", err.Error(), http.StatusBadRequest)
			return
		}
		filter.DirtyOnly = dirty
	}

	results, err := h.store.ListLastResults(r.Context(), filter)
	if err != nil {
		h.log.WithError(err).Error("Failed to list results")
		h.writeError(w, "Failed to list results", err.Error(), http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []*domain.ReconciliationResult{}
	}
	h.writeJSON(w, results, http.StatusOK)
}

// GetResult returns the last result of one device
func (h *ResultHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("device")
	result, err := h.store.LastResult(r.Context(), ref)
	if err != nil {
		h.log.WithError(err).Error("Failed to get result")
		h.writeError(w, "Failed to get result", err.Error(), http.StatusInternalServerError)
		return
	}
	if result == nil {
		h.writeError(w, "Not found", "no result for "+ref, http.StatusNotFound)
		return
	}
	h.writeJSON(w, result, http.StatusOK)
}

// History returns the stored passes of one device, newest first
func (h *ResultHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, "Invalid limit", "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	results, err := h.store.History(r.Context(), r.PathValue("device"), limit)
	if err != nil {
		h.log.WithError(err).Error("Failed to get history")
		h.writeError(w, "Failed to get history", err.Error(), http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []*domain.ReconciliationResult{}
	}
	h.writeJSON(w, results, http.StatusOK)
}

// Helper methods

func (h *ResultHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.WithError(err).Warn("Failed to encode JSON")
	}
}

func (h *ResultHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	h.writeJSON(w, ErrorResponse{Error: error, Details: details}, statusCode)
}
