package route

import (
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"fieldtrack/pkg/events"
	"fieldtrack/pkg/geo"
)

func newTestManager() *Manager {
	return NewManager(DefaultOptions(), events.NewBus())
}

func TestAppendRejectsInvalid(t *testing.T) {
	m := newTestManager()

	tests := []struct {
		name string
		fix  geo.Fix
	}{
		{"zero pair", geo.Fix{Point: geo.Point{Lat: 0, Lon: 0}}},
		{"NaN", geo.Fix{Point: geo.Point{Lat: math.NaN(), Lon: 77.59}}},
		{"out of range", geo.Fix{Point: geo.Point{Lat: 91, Lon: 77.59}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if m.Append("self", tt.fix) {
				t.Error("Append() accepted invalid fix")
			}
		})
	}
	if got := m.Fixes("self"); len(got) != 0 {
		t.Errorf("buffer mutated by invalid input: %d points", len(got))
	}
}

func TestAppendDedupesStationary(t *testing.T) {
	m := newTestManager()
	base := geo.Point{Lat: 12.9716, Lon: 77.5946}
	ts := time.Now()

	// 150 jittery fixes within a meter of each other.
	for i := 0; i < 150; i++ {
		p := geo.DestinationPoint(base, float64(i%2), 90)
		m.Append("self", geo.Fix{Point: p, Timestamp: ts.Add(time.Duration(i) * time.Second)})
	}

	fixes := m.Fixes("self")
	if len(fixes) != 1 {
		t.Fatalf("stationary route has %d points, want 1", len(fixes))
	}
	stats, _ := m.Stats("self")
	if stats.DistanceMeters != 0 {
		t.Errorf("stationary distance = %f, want 0", stats.DistanceMeters)
	}
}

func TestAppendAlternatingWalk(t *testing.T) {
	m := newTestManager()
	a := geo.Point{Lat: 12.9716, Lon: 77.5946}
	b := geo.Point{Lat: 12.9720, Lon: 77.5950}
	leg := geo.Distance(a, b)
	ts := time.Now()

	for i := 0; i < 20; i++ {
		p := a
		if i%2 == 1 {
			p = b
		}
		if !m.Append("self", geo.Fix{Point: p, Timestamp: ts.Add(time.Duration(i) * 10 * time.Second)}) {
			t.Fatalf("Append() rejected fix %d", i)
		}
	}

	fixes := m.Fixes("self")
	if len(fixes) != 20 {
		t.Fatalf("route has %d points, want 20", len(fixes))
	}
	stats, _ := m.Stats("self")
	want := 19 * leg
	if math.Abs(stats.DistanceMeters-want)/want > 0.01 {
		t.Errorf("distance = %f, want ~%f", stats.DistanceMeters, want)
	}
	if stats.DurationSeconds != 190 {
		t.Errorf("duration = %f, want 190", stats.DurationSeconds)
	}
	wantSpeed := stats.DistanceMeters / 190
	if math.Abs(stats.AverageSpeedMps-wantSpeed) > 1e-9 {
		t.Errorf("average speed = %f, want %f", stats.AverageSpeedMps, wantSpeed)
	}
}

func TestAppendEvictsOldest(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxPoints = 10
	m := NewManager(opts, events.NewBus())

	start := geo.Point{Lat: 52.0, Lon: 13.0}
	for i := 0; i < 25; i++ {
		p := geo.DestinationPoint(start, float64(i)*20, 0)
		m.Append("self", geo.Fix{Point: p})
	}

	fixes := m.Fixes("self")
	if len(fixes) != 10 {
		t.Fatalf("route has %d points, want bound of 10", len(fixes))
	}
	// Survivors are the 10 most recent appends (indices 15..24).
	wantFirst := geo.DestinationPoint(start, 15*20, 0)
	if math.Abs(fixes[0].Lat-wantFirst.Lat) > 1e-9 {
		t.Errorf("oldest surviving point lat = %f, want %f", fixes[0].Lat, wantFirst.Lat)
	}
}

func TestStatsDecimatesLongRoutes(t *testing.T) {
	m := newTestManager()
	start := geo.Point{Lat: 48.0, Lon: 11.0}
	ts := time.Now()

	// Straight line, 200 points 10 m apart.
	for i := 0; i < 200; i++ {
		p := geo.DestinationPoint(start, float64(i)*10, 90)
		m.Append("self", geo.Fix{Point: p, Timestamp: ts.Add(time.Duration(i) * time.Second)})
	}

	stats, ok := m.Stats("self")
	if !ok {
		t.Fatal("Stats() missing subject")
	}
	if stats.Points != 200 {
		t.Errorf("Points = %d, want 200", stats.Points)
	}
	// Decimation on a straight line must not change the total distance much.
	want := 199 * 10.0
	if math.Abs(stats.DistanceMeters-want)/want > 0.01 {
		t.Errorf("distance = %f, want ~%f", stats.DistanceMeters, want)
	}
}

func TestSubjectsAreIndependent(t *testing.T) {
	m := newTestManager()
	m.Append("alice", geo.Fix{Point: geo.Point{Lat: 52.37, Lon: 4.89}})
	m.Append("bob", geo.Fix{Point: geo.Point{Lat: 48.86, Lon: 2.35}})

	if len(m.Fixes("alice")) != 1 || len(m.Fixes("bob")) != 1 {
		t.Error("per-subject buffers interfered")
	}
	if got := len(m.Subjects()); got != 2 {
		t.Errorf("Subjects() = %d, want 2", got)
	}

	m.Clear("alice")
	if len(m.Fixes("alice")) != 0 {
		t.Error("Clear() left points behind")
	}
	if len(m.Fixes("bob")) != 1 {
		t.Error("Clear() affected another subject")
	}
}

func TestSweepStale(t *testing.T) {
	m := newTestManager()
	now := time.Now()

	m.Append("stale", geo.Fix{Point: geo.Point{Lat: 52.37, Lon: 4.89}, Timestamp: now.Add(-3 * time.Hour)})
	m.Append("fresh", geo.Fix{Point: geo.Point{Lat: 48.86, Lon: 2.35}, Timestamp: now.Add(-time.Minute)})

	evicted := m.SweepStale(now)
	if len(evicted) != 1 || evicted[0] != "stale" {
		t.Fatalf("SweepStale() = %v, want [stale]", evicted)
	}
	if _, ok := m.LastFix("stale"); ok {
		t.Error("stale subject still present after sweep")
	}
	if _, ok := m.LastFix("fresh"); !ok {
		t.Error("fresh subject swept")
	}
}

func TestGeoJSONExport(t *testing.T) {
	m := newTestManager()
	start := geo.Point{Lat: 48.0, Lon: 11.0}
	for i := 0; i < 5; i++ {
		m.Append("self", geo.Fix{Point: geo.DestinationPoint(start, float64(i)*50, 45)})
	}

	f, ok := m.GeoJSON("self")
	if !ok {
		t.Fatal("GeoJSON() missing subject")
	}
	line, ok := f.Geometry.(orb.LineString)
	if !ok {
		t.Fatalf("geometry is %T, want orb.LineString", f.Geometry)
	}
	if len(line) < 2 {
		t.Errorf("exported line has %d points", len(line))
	}
	if f.Properties["subject"] != "self" {
		t.Errorf("subject property = %v", f.Properties["subject"])
	}

	if _, ok := m.GeoJSON("nobody"); ok {
		t.Error("GeoJSON() returned feature for unknown subject")
	}
}
