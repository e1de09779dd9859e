// Package route accumulates accepted location fixes into per-subject route
// buffers and derives statistics from them. A subject is one tracked device
// or remote user. Buffers are bounded and swept when stale.
package route

import (
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"fieldtrack/pkg/events"
	"fieldtrack/pkg/geo"
	"fieldtrack/pkg/simplify"
)

// Options bounds the accumulator.
type Options struct {
	MaxPoints       int           // buffer length, oldest evicted past this
	MinMovement     float64       // meters, consecutive points closer are dropped
	SimplifyEpsilon float64       // meters, RDP tolerance for rendering export
	SimplifyAfter   int           // decimate stats input beyond this many points
	Staleness       time.Duration // idle window after which a subject is swept
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		MaxPoints:       500,
		MinMovement:     5,
		SimplifyEpsilon: 10,
		SimplifyAfter:   100,
		Staleness:       2 * time.Hour,
	}
}

// Stats is derived from a route buffer, never mutated directly.
type Stats struct {
	DistanceMeters  float64 `json:"distance_meters"`
	AverageSpeedMps float64 `json:"average_speed_mps"`
	DurationSeconds float64 `json:"duration_seconds"`
	Points          int     `json:"points"`
}

type subjectRoute struct {
	mu        sync.Mutex // single writer per subject
	fixes     []geo.Fix
	stats     Stats
	updatedAt time.Time
}

// Manager holds the route buffers for all subjects. Updates for different
// subjects proceed concurrently; updates for one subject are serialized.
type Manager struct {
	opts Options
	bus  events.Publisher

	mu       sync.RWMutex // guards the subjects map only
	subjects map[string]*subjectRoute
}

// NewManager creates a route Manager.
func NewManager(opts Options, bus events.Publisher) *Manager {
	if opts.MaxPoints <= 0 {
		opts.MaxPoints = DefaultOptions().MaxPoints
	}
	if opts.SimplifyAfter <= 0 {
		opts.SimplifyAfter = DefaultOptions().SimplifyAfter
	}
	if opts.Staleness <= 0 {
		opts.Staleness = DefaultOptions().Staleness
	}
	return &Manager{
		opts:     opts,
		bus:      bus,
		subjects: make(map[string]*subjectRoute),
	}
}

func (m *Manager) subject(id string) *subjectRoute {
	m.mu.RLock()
	s, ok := m.subjects[id]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.subjects[id]; ok {
		return s
	}
	s = &subjectRoute{}
	m.subjects[id] = s
	return s
}

// Append offers a fix to the subject's route. Invalid coordinates and
// points within MinMovement of the previous accepted point are rejected
// without mutating the buffer. Returns whether the fix was accepted.
func (m *Manager) Append(subjectID string, fix geo.Fix) bool {
	if !fix.Point.Valid() {
		slog.Debug("Route: rejecting invalid coordinates", "subject", subjectID, "lat", fix.Lat, "lon", fix.Lon)
		return false
	}

	s := m.subject(subjectID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.fixes); n > 0 {
		if geo.Distance(s.fixes[n-1].Point, fix.Point) < m.opts.MinMovement {
			return false
		}
	}

	s.fixes = append(s.fixes, fix)
	if over := len(s.fixes) - m.opts.MaxPoints; over > 0 {
		s.fixes = append(s.fixes[:0], s.fixes[over:]...)
	}

	s.updatedAt = fix.Timestamp
	if s.updatedAt.IsZero() {
		s.updatedAt = time.Now()
	}
	s.stats = m.computeStats(s.fixes)
	return true
}

// computeStats derives Stats from the buffer. Long buffers are decimated
// first so the cost stays roughly constant as routes grow.
func (m *Manager) computeStats(fixes []geo.Fix) Stats {
	st := Stats{Points: len(fixes)}
	if len(fixes) < 2 {
		return st
	}

	pts := make([]geo.Point, len(fixes))
	for i, f := range fixes {
		pts[i] = f.Point
	}
	if len(pts) > m.opts.SimplifyAfter {
		pts = simplify.Decimate(pts, len(pts)/100)
	}

	for i := 1; i < len(pts); i++ {
		st.DistanceMeters += geo.Distance(pts[i-1], pts[i])
	}

	first, last := fixes[0].Timestamp, fixes[len(fixes)-1].Timestamp
	if !first.IsZero() && !last.IsZero() && last.After(first) {
		st.DurationSeconds = last.Sub(first).Seconds()
		st.AverageSpeedMps = st.DistanceMeters / st.DurationSeconds
	}
	return st
}

// Stats returns the current statistics for a subject.
func (m *Manager) Stats(subjectID string) (Stats, bool) {
	m.mu.RLock()
	s, ok := m.subjects[subjectID]
	m.mu.RUnlock()
	if !ok {
		return Stats{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, true
}

// Fixes returns a copy of the subject's route buffer.
func (m *Manager) Fixes(subjectID string) []geo.Fix {
	m.mu.RLock()
	s, ok := m.subjects[subjectID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]geo.Fix, len(s.fixes))
	copy(out, s.fixes)
	return out
}

// LastFix returns the most recent accepted fix for a subject.
func (m *Manager) LastFix(subjectID string) (geo.Fix, bool) {
	m.mu.RLock()
	s, ok := m.subjects[subjectID]
	m.mu.RUnlock()
	if !ok {
		return geo.Fix{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.fixes) == 0 {
		return geo.Fix{}, false
	}
	return s.fixes[len(s.fixes)-1], true
}

// Subjects lists subjects that currently hold a route.
func (m *Manager) Subjects() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.subjects))
	for id := range m.subjects {
		out = append(out, id)
	}
	return out
}

// Clear drops a subject's route entirely.
func (m *Manager) Clear(subjectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subjects, subjectID)
}

// SweepStale removes every subject whose latest point is older than the
// staleness window. Returns the evicted subject IDs.
func (m *Manager) SweepStale(now time.Time) []string {
	m.mu.Lock()
	var evicted []string
	for id, s := range m.subjects {
		s.mu.Lock()
		stale := !s.updatedAt.IsZero() && now.Sub(s.updatedAt) > m.opts.Staleness
		s.mu.Unlock()
		if stale {
			delete(m.subjects, id)
			evicted = append(evicted, id)
		}
	}
	m.mu.Unlock()

	for _, id := range evicted {
		slog.Info("Route: evicted stale route", "subject", id)
		if m.bus != nil {
			m.bus.Publish(events.RouteEvicted, map[string]any{"subject": id})
		}
	}
	return evicted
}

// GeoJSON exports a subject's route as a simplified GeoJSON LineString
// feature with the current stats as properties. Simplification uses the
// configured RDP epsilon so the exported shape stays faithful but small.
func (m *Manager) GeoJSON(subjectID string) (*geojson.Feature, bool) {
	fixes := m.Fixes(subjectID)
	if len(fixes) == 0 {
		return nil, false
	}
	stats, _ := m.Stats(subjectID)

	pts := make([]geo.Point, len(fixes))
	for i, f := range fixes {
		pts[i] = f.Point
	}
	pts = simplify.DouglasPeucker(pts, m.opts.SimplifyEpsilon)

	line := make(orb.LineString, len(pts))
	for i, p := range pts {
		line[i] = orb.Point{p.Lon, p.Lat}
	}

	f := geojson.NewFeature(line)
	f.Properties["subject"] = subjectID
	f.Properties["distance_meters"] = stats.DistanceMeters
	f.Properties["average_speed_mps"] = stats.AverageSpeedMps
	f.Properties["duration_seconds"] = stats.DurationSeconds
	f.Properties["points"] = stats.Points
	return f, true
}
