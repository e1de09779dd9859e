package core

import (
	"context"
	"log/slog"
	"time"

	"fieldtrack/pkg/capture"
	"fieldtrack/pkg/db"
	"fieldtrack/pkg/queue"
	"fieldtrack/pkg/route"
)

// NewStalenessSweepJob evicts routes whose subjects have gone quiet.
func NewStalenessSweepJob(routes *route.Manager, interval time.Duration) *IntervalJob {
	return NewIntervalJob("staleness_sweep", interval, func(ctx context.Context, now time.Time) {
		if evicted := routes.SweepStale(now); len(evicted) > 0 {
			slog.Info("Sweep: evicted stale routes", "count", len(evicted))
		}
	})
}

// NewReconcileJob periodically repairs intent/actual divergence in the
// capture machine.
func NewReconcileJob(machine *capture.Machine, interval time.Duration) *IntervalJob {
	return NewIntervalJob("reconcile", interval, func(ctx context.Context, now time.Time) {
		machine.Reconcile(ctx)
	})
}

// NewQueuePruneJob deletes queued updates past the maximum age. Drain
// discards expired entries it encounters, but only when the device is
// online; this job keeps a permanently offline queue from holding entries
// that can never be delivered.
func NewQueuePruneJob(d *db.DB, maxAge, interval time.Duration) *IntervalJob {
	return NewIntervalJob("queue_prune", interval, func(ctx context.Context, now time.Time) {
		if err := d.PruneUpdates(maxAge); err != nil {
			slog.Warn("Prune: failed to delete expired updates", "error", err)
		}
	})
}

// NewQueueDrainJob replays queued updates whenever the queue is non-empty.
func NewQueueDrainJob(q *queue.Queue, authToken string, interval time.Duration) *IntervalJob {
	return NewIntervalJob("queue_drain", interval, func(ctx context.Context, now time.Time) {
		if q.Depth(ctx) == 0 {
			return
		}
		if n := q.Process(ctx, authToken); n > 0 {
			slog.Info("Drain: processed queued updates", "count", n, "remaining", q.Depth(ctx))
		}
	})
}
