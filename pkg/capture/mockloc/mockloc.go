// Package mockloc provides in-process implementations of the capture
// collaborators for development and testing on hosts without a positioning
// stack. The registry simulates a device walking a random track and feeds it
// to the registered callback at the configured sampling interval.
package mockloc

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"fieldtrack/pkg/capture"
	"fieldtrack/pkg/geo"
)

// Config holds the simulated walk parameters.
type Config struct {
	StartLat float64
	StartLon float64
	SpeedMps float64 // average walking speed
}

// Registry implements capture.TaskRegistry with a simulated location source.
type Registry struct {
	cfg Config

	mu        sync.Mutex
	callbacks map[string]capture.TaskCallback
	cancels   map[string]context.CancelFunc
	pos       geo.Point
	heading   float64
}

// NewRegistry creates a mock registry positioned at the configured start.
func NewRegistry(cfg Config) *Registry {
	if cfg.SpeedMps <= 0 {
		cfg.SpeedMps = 1.4
	}
	return &Registry{
		cfg:       cfg,
		callbacks: make(map[string]capture.TaskCallback),
		cancels:   make(map[string]context.CancelFunc),
		pos:       geo.Point{Lat: cfg.StartLat, Lon: cfg.StartLon},
		heading:   rand.Float64() * 360,
	}
}

func (r *Registry) DefineTask(id string, cb capture.TaskCallback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[id] = cb
	return nil
}

func (r *Registry) StartLocationUpdates(ctx context.Context, id string, opts capture.SamplingOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cancel, ok := r.cancels[id]; ok {
		cancel()
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	r.cancels[id] = cancel

	cb := r.callbacks[id]
	go r.sampleLoop(loopCtx, cb, opts)
	return nil
}

func (r *Registry) StopLocationUpdates(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.cancels[id]; ok {
		cancel()
		delete(r.cancels, id)
	}
	return nil
}

func (r *Registry) IsTaskRegistered(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.callbacks[id]
	return ok
}

func (r *Registry) IsTaskActive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cancels[id]
	return ok
}

func (r *Registry) LocationServicesEnabled(ctx context.Context) bool { return true }

func (r *Registry) sampleLoop(ctx context.Context, cb capture.TaskCallback, opts capture.SamplingOptions) {
	interval := opts.TimeInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cb(ctx, []geo.Fix{r.step(interval, opts.Accuracy)})
		}
	}
}

// step advances the simulated walk by one sampling interval: mostly straight
// ahead with a gentle random drift in heading.
func (r *Registry) step(elapsed time.Duration, acc capture.Accuracy) geo.Fix {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.heading += (rand.Float64() - 0.5) * 30
	dist := r.cfg.SpeedMps * elapsed.Seconds()
	r.pos = geo.DestinationPoint(r.pos, dist, r.heading)

	radius := 25.0
	switch acc {
	case capture.AccuracyHigh:
		radius = 10
	case capture.AccuracyHighest:
		radius = 5
	case capture.AccuracyLow:
		radius = 60
	}

	return geo.Fix{
		Point:     r.pos,
		Timestamp: time.Now(),
		Accuracy:  radius + rand.Float64()*radius/2,
		Speed:     r.cfg.SpeedMps,
		IsMoving:  true,
	}
}

// Permissions implements capture.PermissionProvider with everything granted,
// matching a development host where no OS prompt exists.
type Permissions struct{}

func (Permissions) ForegroundStatus(ctx context.Context) (capture.PermissionStatus, error) {
	return capture.PermissionGranted, nil
}

func (Permissions) BackgroundStatus(ctx context.Context) (capture.PermissionStatus, error) {
	return capture.PermissionGranted, nil
}

func (Permissions) RequestForeground(ctx context.Context) (capture.PermissionStatus, error) {
	return capture.PermissionGranted, nil
}

func (Permissions) RequestBackground(ctx context.Context) (capture.PermissionStatus, error) {
	return capture.PermissionGranted, nil
}
