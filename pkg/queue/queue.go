// Package queue implements the offline delivery queue: location updates that
// cannot be delivered are persisted and replayed in bounded batches once
// connectivity returns. Transient network failure is never an error here,
// only a reason to enqueue.
package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldtrack/pkg/events"
	"fieldtrack/pkg/store"
	"fieldtrack/pkg/tracker"
	"fieldtrack/pkg/transport"
)

// Sender is the minimal uplink capability the queue depends on.
type Sender interface {
	PostJSON(ctx context.Context, endpoint string, payload []byte, authToken string) error
}

// Config bounds the queue.
type Config struct {
	MaxSize   int           // stored entries, oldest evicted past this
	BatchSize int           // entries attempted per Process call
	MaxAge    time.Duration // entries older than this are discarded unsent
}

// DefaultConfig returns the documented bounds.
func DefaultConfig() Config {
	return Config{
		MaxSize:   200,
		BatchSize: 5,
		MaxAge:    24 * time.Hour,
	}
}

// Queue persists undeliverable updates and replays them best-effort.
type Queue struct {
	cfg     Config
	st      store.QueueStore
	sender  Sender
	conn    transport.Connectivity
	bus     events.Publisher
	tracker *tracker.Tracker

	// Serializes Process invocations; Send may run concurrently.
	processMu sync.Mutex
}

// New creates a Queue.
func New(cfg Config, st store.QueueStore, sender Sender, conn transport.Connectivity, bus events.Publisher, tr *tracker.Tracker) *Queue {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultConfig().MaxAge
	}
	return &Queue{cfg: cfg, st: st, sender: sender, conn: conn, bus: bus, tracker: tr}
}

// Send attempts to deliver payload to endpoint, enqueueing it on any failure.
// Returns true only when the update was delivered directly. A direct success
// also triggers a best-effort flush of previously queued entries.
func (q *Queue) Send(ctx context.Context, endpoint string, payload any, authToken string) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Queue: unencodable payload dropped", "endpoint", endpoint, "error", err)
		return false
	}

	if !q.conn.IsInternetReachable(ctx) {
		q.enqueue(ctx, endpoint, body)
		return false
	}

	if err := q.sender.PostJSON(ctx, endpoint, body, authToken); err != nil {
		slog.Debug("Queue: direct send failed, queueing", "endpoint", endpoint, "error", err)
		q.enqueue(ctx, endpoint, body)
		return false
	}

	// The link works; drain what piled up earlier.
	q.Process(ctx, authToken)
	return true
}

// enqueue appends the update to durable storage, bounded at MaxSize.
func (q *Queue) enqueue(ctx context.Context, endpoint string, body []byte) {
	u := store.PendingUpdate{
		ID:         uuid.NewString(),
		Endpoint:   endpoint,
		Payload:    string(body),
		EnqueuedAt: time.Now(),
	}
	if err := q.st.AppendUpdate(ctx, u, q.cfg.MaxSize); err != nil {
		slog.Error("Queue: failed to persist update", "endpoint", endpoint, "error", err)
		return
	}

	q.tracker.TrackQueued(endpoint)
	depth, _ := q.st.CountUpdates(ctx)
	q.bus.Publish(events.LocationQueued, map[string]any{"endpoint": endpoint, "depth": depth})
}

// Process replays up to BatchSize queued entries in insertion order. Entries
// past MaxAge are discarded unsent. Failed entries keep their slot for the
// next invocation; later entries in the same batch are still attempted, so
// replay ordering across partial failures is best-effort, not strict FIFO.
func (q *Queue) Process(ctx context.Context, authToken string) int {
	q.processMu.Lock()
	defer q.processMu.Unlock()

	if !q.conn.IsInternetReachable(ctx) {
		return 0
	}

	batch, err := q.st.ListUpdates(ctx, q.cfg.BatchSize)
	if err != nil {
		slog.Error("Queue: failed to read queue", "error", err)
		return 0
	}
	if len(batch) == 0 {
		return 0
	}

	var remove []string
	processed := 0
	for _, u := range batch {
		if time.Since(u.EnqueuedAt) > q.cfg.MaxAge {
			slog.Info("Queue: discarding expired update", "endpoint", u.Endpoint, "age", time.Since(u.EnqueuedAt))
			q.tracker.TrackExpired(u.Endpoint)
			remove = append(remove, u.ID)
			processed++
			continue
		}

		if err := q.sender.PostJSON(ctx, u.Endpoint, []byte(u.Payload), authToken); err != nil {
			slog.Debug("Queue: replay failed, retained", "endpoint", u.Endpoint, "error", err)
			continue
		}
		remove = append(remove, u.ID)
		processed++
	}

	if err := q.st.RemoveUpdates(ctx, remove); err != nil {
		slog.Error("Queue: failed to compact queue", "error", err)
		return processed
	}

	depth, _ := q.st.CountUpdates(ctx)
	q.bus.Publish(events.QueueProcessed, map[string]any{"processed": processed, "depth": depth})
	return processed
}

// Depth returns the current queue depth.
func (q *Queue) Depth(ctx context.Context) int {
	n, err := q.st.CountUpdates(ctx)
	if err != nil {
		return 0
	}
	return n
}

// Clear empties the queue.
func (q *Queue) Clear(ctx context.Context) error {
	if err := q.st.ClearUpdates(ctx); err != nil {
		return err
	}
	q.bus.Publish(events.QueueCleared, nil)
	return nil
}
