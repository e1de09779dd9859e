package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"fieldtrack/pkg/capture"
	"fieldtrack/pkg/geo"
	"fieldtrack/pkg/queue"
	"fieldtrack/pkg/tracker"
)

// StatusResponse is the API response structure.
type StatusResponse struct {
	Intent     capture.Intent                   `json:"intent"`
	Actual     bool                             `json:"actual"`
	QueueDepth int                              `json:"queue_depth"`
	LastKnown  *geo.Fix                         `json:"last_known,omitempty"`
	Delivery   map[string]tracker.EndpointStats `json:"delivery"`
}

type StatusHandler struct {
	machine *capture.Machine
	queue   *queue.Queue
	tracker *tracker.Tracker
}

func NewStatusHandler(m *capture.Machine, q *queue.Queue, tr *tracker.Tracker) *StatusHandler {
	return &StatusHandler{machine: m, queue: q, tracker: tr}
}

func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := StatusResponse{
		Intent:     h.machine.Intent(ctx),
		Actual:     h.machine.Actual(ctx),
		QueueDepth: h.queue.Depth(ctx),
		Delivery:   h.tracker.Snapshot(),
	}
	if fix, ok := h.machine.LastKnown(ctx); ok {
		resp.LastKnown = &fix
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode status response", "error", err)
	}
}

func (h *StatusHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if err := h.machine.Start(r.Context()); err != nil {
		slog.Error("Failed to start tracking", "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, capture.ErrPermissionDenied) {
			status = http.StatusForbidden
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *StatusHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	if err := h.machine.Stop(r.Context()); err != nil {
		slog.Error("Failed to stop tracking", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *StatusHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	if err := h.machine.Pause(r.Context()); err != nil {
		slog.Error("Failed to pause tracking", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
