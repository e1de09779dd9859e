// Package geofence tracks presence inside named circular fences. Fences are
// indexed by H3 cell so locating a point checks only nearby candidates
// before the exact distance test.
package geofence

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	h3 "github.com/uber/h3-go/v4"

	"fieldtrack/pkg/config"
	"fieldtrack/pkg/events"
	"fieldtrack/pkg/geo"
)

// Index resolution 8 has an average cell edge around 461 m. Fences cover
// the disk of cells within their radius plus one ring of margin.
const (
	indexResolution = 8
	cellEdgeMeters  = 461.0
)

// Fence is one circular geographic boundary.
type Fence struct {
	Name   string
	Center geo.Point
	Radius float64 // meters
}

// Contains reports whether the point lies inside the fence.
func (f Fence) Contains(p geo.Point) bool {
	return geo.Distance(f.Center, p) <= f.Radius
}

// Service answers point-in-fence queries and publishes enter/exit events
// as subjects move between fences.
type Service struct {
	fences []Fence
	index  map[h3.Cell][]int
	bus    events.Publisher

	mu       sync.Mutex
	presence map[string]map[string]bool // subject -> fence names currently inside
}

// NewService builds the cell index for the configured fences.
func NewService(cfg config.GeofenceConfig, bus events.Publisher) (*Service, error) {
	s := &Service{
		index:    make(map[h3.Cell][]int),
		bus:      bus,
		presence: make(map[string]map[string]bool),
	}

	for _, fc := range cfg.Fences {
		f := Fence{
			Name:   fc.Name,
			Center: geo.Point{Lat: fc.Lat, Lon: fc.Lon},
			Radius: float64(fc.Radius),
		}
		if !f.Center.Valid() {
			return nil, fmt.Errorf("fence %q has invalid center (%f, %f)", f.Name, fc.Lat, fc.Lon)
		}

		cells, err := coveringCells(f)
		if err != nil {
			return nil, fmt.Errorf("failed to index fence %q: %w", f.Name, err)
		}
		s.fences = append(s.fences, f)
		idx := len(s.fences) - 1
		for _, c := range cells {
			s.index[c] = append(s.index[c], idx)
		}
	}

	slog.Info("Geofence: indexed fences", "fences", len(s.fences), "cells", len(s.index))
	return s, nil
}

// coveringCells returns the H3 cells a fence can intersect: the disk of
// cells within the radius around the center, padded by one ring.
func coveringCells(f Fence) ([]h3.Cell, error) {
	center, err := h3.LatLngToCell(h3.NewLatLng(f.Center.Lat, f.Center.Lon), indexResolution)
	if err != nil {
		return nil, err
	}
	k := int(math.Ceil(f.Radius/cellEdgeMeters)) + 1
	return h3.GridDisk(center, k)
}

// Locate returns the fences containing the point.
func (s *Service) Locate(p geo.Point) []Fence {
	if !p.Valid() {
		return nil
	}
	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lon), indexResolution)
	if err != nil {
		slog.Warn("Geofence: failed to index point", "lat", p.Lat, "lon", p.Lon, "error", err)
		return nil
	}

	var out []Fence
	for _, idx := range s.index[cell] {
		if s.fences[idx].Contains(p) {
			out = append(out, s.fences[idx])
		}
	}
	return out
}

// Observe records a subject's position and publishes enter/exit events for
// every fence whose containment changed since the previous observation.
// Invalid points leave the presence state untouched.
func (s *Service) Observe(subjectID string, p geo.Point) {
	if !p.Valid() {
		return
	}

	now := make(map[string]bool)
	for _, f := range s.Locate(p) {
		now[f.Name] = true
	}

	s.mu.Lock()
	prev := s.presence[subjectID]
	s.presence[subjectID] = now
	s.mu.Unlock()

	for name := range now {
		if !prev[name] {
			slog.Info("Geofence: entered", "subject", subjectID, "fence", name)
			s.bus.Publish(events.GeofenceEntered, map[string]any{"subject": subjectID, "fence": name})
		}
	}
	for name := range prev {
		if !now[name] {
			slog.Info("Geofence: exited", "subject", subjectID, "fence", name)
			s.bus.Publish(events.GeofenceExited, map[string]any{"subject": subjectID, "fence": name})
		}
	}
}

// Inside returns the fence names the subject is currently inside.
func (s *Service) Inside(subjectID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for name := range s.presence[subjectID] {
		out = append(out, name)
	}
	return out
}

// Forget drops a subject's presence state without emitting exit events.
func (s *Service) Forget(subjectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.presence, subjectID)
}
