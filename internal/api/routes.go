package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"fieldtrack/pkg/geo"
	"fieldtrack/pkg/route"
)

// RouteResponse is the API response for one subject's route.
type RouteResponse struct {
	Subject string      `json:"subject"`
	Stats   route.Stats `json:"stats"`
	Fixes   []geo.Fix   `json:"fixes"`
}

type RouteHandler struct {
	routes *route.Manager
}

func NewRouteHandler(m *route.Manager) *RouteHandler {
	return &RouteHandler{routes: m}
}

func (h *RouteHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	subjects := h.routes.Subjects()
	if subjects == nil {
		subjects = []string{}
	}
	writeJSON(w, map[string]any{"subjects": subjects})
}

func (h *RouteHandler) HandleRoute(w http.ResponseWriter, r *http.Request) {
	subject := r.PathValue("subject")
	stats, ok := h.routes.Stats(subject)
	if !ok {
		http.Error(w, "unknown subject", http.StatusNotFound)
		return
	}
	writeJSON(w, RouteResponse{
		Subject: subject,
		Stats:   stats,
		Fixes:   h.routes.Fixes(subject),
	})
}

func (h *RouteHandler) HandleGeoJSON(w http.ResponseWriter, r *http.Request) {
	subject := r.PathValue("subject")
	feature, ok := h.routes.GeoJSON(subject)
	if !ok {
		http.Error(w, "unknown subject", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if err := json.NewEncoder(w).Encode(feature); err != nil {
		slog.Error("Failed to encode GeoJSON response", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
