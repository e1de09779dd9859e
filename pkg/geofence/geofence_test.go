package geofence

import (
	"testing"
	"time"

	"fieldtrack/pkg/config"
	"fieldtrack/pkg/events"
	"fieldtrack/pkg/geo"
)

func testConfig() config.GeofenceConfig {
	return config.GeofenceConfig{
		Fences: []config.FenceConfig{
			{Name: "depot", Lat: 52.5200, Lon: 13.4050, Radius: config.Distance(200)},
			{Name: "warehouse", Lat: 52.5300, Lon: 13.4200, Radius: config.Distance(150)},
		},
	}
}

func TestLocate(t *testing.T) {
	s, err := NewService(testConfig(), events.NewBus())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	depot := geo.Point{Lat: 52.5200, Lon: 13.4050}
	tests := []struct {
		name  string
		point geo.Point
		want  []string
	}{
		{"at center", depot, []string{"depot"}},
		{"inside radius", geo.DestinationPoint(depot, 150, 90), []string{"depot"}},
		{"outside radius", geo.DestinationPoint(depot, 400, 90), nil},
		{"far away", geo.Point{Lat: 48.86, Lon: 2.35}, nil},
		{"invalid point", geo.Point{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Locate(tt.point)
			if len(got) != len(tt.want) {
				t.Fatalf("Locate() = %d fences, want %d", len(got), len(tt.want))
			}
			for i, f := range got {
				if f.Name != tt.want[i] {
					t.Errorf("Locate()[%d] = %q, want %q", i, f.Name, tt.want[i])
				}
			}
		})
	}
}

func TestObserveTransitions(t *testing.T) {
	bus := events.NewBus()
	s, err := NewService(testConfig(), bus)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	ch, cancel := bus.Subscribe(events.GeofenceEntered, events.GeofenceExited)
	defer cancel()

	depot := geo.Point{Lat: 52.5200, Lon: 13.4050}
	outside := geo.DestinationPoint(depot, 500, 90)

	s.Observe("alice", outside)
	s.Observe("alice", depot)

	select {
	case ev := <-ch:
		if ev.Type != events.GeofenceEntered {
			t.Fatalf("event = %q, want entered", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no enter event published")
	}

	if inside := s.Inside("alice"); len(inside) != 1 || inside[0] != "depot" {
		t.Errorf("Inside() = %v, want [depot]", inside)
	}

	// Re-observing the same containment publishes nothing.
	s.Observe("alice", geo.DestinationPoint(depot, 50, 0))
	s.Observe("alice", outside)

	select {
	case ev := <-ch:
		if ev.Type != events.GeofenceExited {
			t.Fatalf("event = %q, want exited", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no exit event published")
	}

	if inside := s.Inside("alice"); len(inside) != 0 {
		t.Errorf("Inside() = %v after exit, want empty", inside)
	}
}

func TestObserveIgnoresInvalid(t *testing.T) {
	s, err := NewService(testConfig(), events.NewBus())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	depot := geo.Point{Lat: 52.5200, Lon: 13.4050}
	s.Observe("bob", depot)
	s.Observe("bob", geo.Point{}) // must not count as an exit

	if inside := s.Inside("bob"); len(inside) != 1 {
		t.Errorf("Inside() = %v, want presence preserved", inside)
	}
}

func TestNewServiceRejectsInvalidCenter(t *testing.T) {
	cfg := config.GeofenceConfig{
		Fences: []config.FenceConfig{{Name: "broken", Lat: 0, Lon: 0, Radius: config.Distance(100)}},
	}
	if _, err := NewService(cfg, events.NewBus()); err == nil {
		t.Fatal("NewService() accepted (0,0) fence center")
	}
}
