// Package capture drives the background location task: it owns the persisted
// tracking intent, reconciles it against the actual OS task state, and feeds
// raw fixes through the filter into routes and the delivery queue.
//
// Intent and last-known location live in durable storage because the OS
// invokes the background callback in a context that shares no memory with
// the foreground; the two sides communicate only through the store and the
// event bus.
package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fieldtrack/pkg/events"
	"fieldtrack/pkg/filter"
	"fieldtrack/pkg/geo"
	"fieldtrack/pkg/geofence"
	"fieldtrack/pkg/retry"
	"fieldtrack/pkg/route"
	"fieldtrack/pkg/store"
	"fieldtrack/pkg/tracker"
)

// Intent is the persisted desired tracking state.
type Intent string

const (
	IntentInactive Intent = "inactive"
	IntentActive   Intent = "active"
	IntentPaused   Intent = "paused"
	IntentError    Intent = "error"
)

// Store keys shared with the background execution context.
const (
	keyIntent    = "tracking.intent"
	keySampling  = "tracking.sampling"
	keyLastKnown = "location.last_known"
)

// Uplink is the delivery capability the capture callback hands fixes to.
// *queue.Queue satisfies it.
type Uplink interface {
	Send(ctx context.Context, endpoint string, payload any, authToken string) bool
}

// Options configures the capture machine.
type Options struct {
	TaskID    string
	Subject   string // route subject for the local device
	Endpoint  string
	AuthToken string
	Sampling  SamplingOptions
	Restart   retry.Policy
}

// DefaultOptions returns the documented capture defaults.
func DefaultOptions() Options {
	return Options{
		TaskID:  "fieldtrack.location",
		Subject: "self",
		Sampling: SamplingOptions{
			TimeInterval:     15 * time.Second,
			DistanceInterval: 10,
			Accuracy:         AccuracyBalanced,
		},
		Restart: retry.DefaultPolicy(),
	}
}

// Machine is the capture state machine.
type Machine struct {
	opts     Options
	perms    PermissionProvider
	flow     PermissionFlow
	registry TaskRegistry
	states   store.StateStore
	uplink   Uplink
	filter   *filter.Filter
	routes   *route.Manager
	fences   *geofence.Service // optional
	bus      events.Publisher
	tracker  *tracker.Tracker

	// Serializes Start/Stop/Pause; Reconcile deliberately runs outside it
	// so a stop can land between restart attempts.
	mu sync.Mutex

	reconcileMu sync.Mutex // re-entry guard for Reconcile
}

// NewMachine wires the capture machine. fences may be nil when no geofences
// are configured.
func NewMachine(opts Options, perms PermissionProvider, flow PermissionFlow, reg TaskRegistry,
	states store.StateStore, uplink Uplink, f *filter.Filter, routes *route.Manager,
	fences *geofence.Service, bus events.Publisher, tr *tracker.Tracker) (*Machine, error) {

	def := DefaultOptions()
	if opts.TaskID == "" {
		opts.TaskID = def.TaskID
	}
	if opts.Subject == "" {
		opts.Subject = def.Subject
	}
	if opts.Sampling.TimeInterval <= 0 {
		opts.Sampling = def.Sampling
	}
	if opts.Restart.MaxAttempts <= 0 {
		opts.Restart = def.Restart
	}

	m := &Machine{
		opts:     opts,
		perms:    perms,
		flow:     flow,
		registry: reg,
		states:   states,
		uplink:   uplink,
		filter:   f,
		routes:   routes,
		fences:   fences,
		bus:      bus,
		tracker:  tr,
	}

	if err := reg.DefineTask(opts.TaskID, m.handleFixes); err != nil {
		return nil, fmt.Errorf("failed to define background task: %w", err)
	}
	return m, nil
}

// Intent reads the persisted tracking intent. Missing or corrupt state
// falls back to inactive.
func (m *Machine) Intent(ctx context.Context) Intent {
	raw, ok := m.states.GetState(ctx, keyIntent)
	if !ok {
		return IntentInactive
	}
	switch Intent(raw) {
	case IntentActive, IntentPaused, IntentError, IntentInactive:
		return Intent(raw)
	}
	slog.Warn("Capture: corrupt intent state, treating as inactive", "value", raw)
	return IntentInactive
}

func (m *Machine) setIntent(ctx context.Context, in Intent) {
	if err := m.states.SetState(ctx, keyIntent, string(in)); err != nil {
		slog.Error("Capture: failed to persist intent", "intent", in, "error", err)
	}
}

// Actual reports whether tracking is really running according to the OS.
func (m *Machine) Actual(ctx context.Context) bool {
	return m.registry.IsTaskRegistered(m.opts.TaskID) &&
		m.registry.IsTaskActive(m.opts.TaskID) &&
		m.registry.LocationServicesEnabled(ctx)
}

// Start validates permissions, registers the OS task with the configured
// sampling parameters and persists intent = Active. A permission denial is
// returned to the caller and never retried automatically.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, err := m.perms.ForegroundStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to read foreground permission: %w", err)
	}
	if status == PermissionUndetermined {
		if status, err = m.perms.RequestForeground(ctx); err != nil {
			return fmt.Errorf("foreground permission request failed: %w", err)
		}
	}
	if status != PermissionGranted {
		return ErrPermissionDenied
	}

	if err := m.flow.EnsureBackground(ctx, m.perms); err != nil {
		return err
	}

	if err := m.startUpdates(ctx, m.opts.Sampling); err != nil {
		return fmt.Errorf("failed to start location updates: %w", err)
	}

	m.setIntent(ctx, IntentActive)
	slog.Info("Capture: tracking started", "task", m.opts.TaskID, "accuracy", m.opts.Sampling.Accuracy)
	m.bus.Publish(events.TrackingStarted, map[string]any{"task": m.opts.TaskID})
	return nil
}

func (m *Machine) startUpdates(ctx context.Context, opts SamplingOptions) error {
	if err := m.registry.StartLocationUpdates(ctx, m.opts.TaskID, opts); err != nil {
		return err
	}
	// Remember the live parameters so a later restart resumes with them.
	if raw, err := json.Marshal(opts); err == nil {
		if err := m.states.SetState(ctx, keySampling, string(raw)); err != nil {
			slog.Error("Capture: failed to persist sampling options", "error", err)
		}
	}
	return nil
}

// Stop unregisters the OS task and persists intent = Inactive. Stopping wins
// over an in-flight reconcile: restart attempts re-read intent and abort.
func (m *Machine) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setIntent(ctx, IntentInactive)
	if err := m.registry.StopLocationUpdates(ctx, m.opts.TaskID); err != nil {
		return fmt.Errorf("failed to stop location updates: %w", err)
	}
	slog.Info("Capture: tracking stopped", "task", m.opts.TaskID)
	m.bus.Publish(events.TrackingStopped, map[string]any{"task": m.opts.TaskID})
	return nil
}

// Pause stops location updates but keeps the session, persisting
// intent = Paused so reconcile will not restart the task.
func (m *Machine) Pause(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setIntent(ctx, IntentPaused)
	if err := m.registry.StopLocationUpdates(ctx, m.opts.TaskID); err != nil {
		return fmt.Errorf("failed to pause location updates: %w", err)
	}
	slog.Info("Capture: tracking paused", "task", m.opts.TaskID)
	return nil
}

// Reconcile compares persisted intent against the actual OS task state and
// repairs divergence: intent Active with a dead task triggers a bounded
// restart, tightening the sampling interval each attempt and escalating to
// highest accuracy on the final one. Exhausted restarts persist
// intent = Error and surface a restart-failure event.
func (m *Machine) Reconcile(ctx context.Context) {
	if !m.reconcileMu.TryLock() {
		return
	}
	defer m.reconcileMu.Unlock()

	if m.Intent(ctx) != IntentActive || m.Actual(ctx) {
		return
	}

	slog.Warn("Capture: task dead while intent active, restarting", "task", m.opts.TaskID)

	err := m.opts.Restart.Do(ctx, func(ctx context.Context, attempt int) error {
		// Stop may have landed since the last attempt.
		if m.Intent(ctx) != IntentActive {
			return retry.ErrAborted
		}
		return m.startUpdates(ctx, m.restartSampling(attempt))
	})

	switch {
	case err == nil:
		slog.Info("Capture: tracking restarted", "task", m.opts.TaskID)
		m.bus.Publish(events.TrackingRestarted, map[string]any{"task": m.opts.TaskID})
	case errors.Is(err, retry.ErrAborted) || errors.Is(err, context.Canceled):
		slog.Info("Capture: restart abandoned, intent no longer active")
	default:
		slog.Error("Capture: auto-restart failed", "task", m.opts.TaskID, "error", err)
		m.setIntent(ctx, IntentError)
		m.bus.Publish(events.TrackingRestartFailed, map[string]any{"task": m.opts.TaskID, "error": err.Error()})
	}
}

// restartSampling tightens the interval 20% per attempt and escalates to
// the highest accuracy on the final attempt.
func (m *Machine) restartSampling(attempt int) SamplingOptions {
	opts := m.opts.Sampling
	for i := 1; i < attempt; i++ {
		opts.TimeInterval = opts.TimeInterval * 4 / 5
	}
	if attempt >= m.opts.Restart.MaxAttempts {
		opts.Accuracy = AccuracyHighest
	}
	return opts
}

// handleFixes is the background task callback. Each fix is scored, the
// last-known location persisted for UI restoration, and the accepted fix
// handed to the delivery queue. Nothing here may panic outward: an escaped
// panic can deregister the task on some platforms.
func (m *Machine) handleFixes(ctx context.Context, fixes []geo.Fix) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Capture: panic in background callback", "panic", r)
		}
	}()

	for _, fix := range fixes {
		scored := m.filter.Apply(fix)
		if scored.IsFiltered {
			m.tracker.TrackFixFiltered(m.opts.Endpoint)
			slog.Debug("Capture: fix filtered", "reason", scored.Reason, "confidence", scored.Confidence)
			continue
		}
		m.tracker.TrackFixAccepted(m.opts.Endpoint)
		accepted := scored.Location

		m.persistLastKnown(ctx, accepted)
		m.routes.Append(m.opts.Subject, accepted)
		if m.fences != nil {
			m.fences.Observe(m.opts.Subject, accepted.Point)
		}

		m.uplink.Send(ctx, m.opts.Endpoint, accepted, m.opts.AuthToken)
	}
}

func (m *Machine) persistLastKnown(ctx context.Context, fix geo.Fix) {
	raw, err := json.Marshal(fix)
	if err != nil {
		return
	}
	if err := m.states.SetState(ctx, keyLastKnown, string(raw)); err != nil {
		slog.Error("Capture: failed to persist last-known location", "error", err)
	}
}

// LastKnown returns the last persisted location, if any. Corrupt state is
// treated as absent.
func (m *Machine) LastKnown(ctx context.Context) (geo.Fix, bool) {
	raw, ok := m.states.GetState(ctx, keyLastKnown)
	if !ok {
		return geo.Fix{}, false
	}
	var fix geo.Fix
	if err := json.Unmarshal([]byte(raw), &fix); err != nil {
		slog.Warn("Capture: corrupt last-known location, ignoring", "error", err)
		return geo.Fix{}, false
	}
	return fix, true
}
