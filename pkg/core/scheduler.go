// Package core runs the daemon heartbeat: a single ticker loop that
// evaluates registered jobs and fires the due ones in their own goroutines.
package core

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Job defines a scheduled task.
type Job interface {
	Name() string
	ShouldFire(now time.Time) bool
	Run(ctx context.Context, now time.Time)
}

// BaseJob provides atomic running state to prevent re-entry.
type BaseJob struct {
	name    string
	running int32 // 1 if running, 0 otherwise
}

func NewBaseJob(name string) BaseJob {
	return BaseJob{name: name}
}

func (b *BaseJob) Name() string {
	return b.name
}

// TryLock attempts to set running to 1. Returns true if successful.
func (b *BaseJob) TryLock() bool {
	return atomic.CompareAndSwapInt32(&b.running, 0, 1)
}

func (b *BaseJob) Unlock() {
	atomic.StoreInt32(&b.running, 0)
}

// IntervalJob fires an action every interval.
type IntervalJob struct {
	BaseJob
	interval time.Duration
	lastFire atomic.Int64 // UnixNano of the last fire, 0 before the first
	action   func(ctx context.Context, now time.Time)
}

// NewIntervalJob creates a job firing action at most once per interval.
func NewIntervalJob(name string, interval time.Duration, action func(ctx context.Context, now time.Time)) *IntervalJob {
	return &IntervalJob{
		BaseJob:  NewBaseJob(name),
		interval: interval,
		action:   action,
	}
}

func (j *IntervalJob) ShouldFire(now time.Time) bool {
	if atomic.LoadInt32(&j.running) == 1 {
		return false
	}
	// lastFire is written on the job goroutine; the atomic load keeps the
	// ticker goroutine's read coherent.
	last := j.lastFire.Load()
	return last == 0 || now.Sub(time.Unix(0, last)) >= j.interval
}

func (j *IntervalJob) Run(ctx context.Context, now time.Time) {
	if !j.TryLock() {
		return
	}
	defer j.Unlock()

	j.lastFire.Store(now.UnixNano())
	j.action(ctx, now)
}

// Scheduler manages the central heartbeat and scheduled jobs.
type Scheduler struct {
	interval time.Duration
	jobs     []Job
}

// NewScheduler creates a new Scheduler with the given loop interval.
func NewScheduler(interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Scheduler{interval: interval}
}

// AddJob registers a job.
func (s *Scheduler) AddJob(j Job) {
	s.jobs = append(s.jobs, j)
}

// Start runs the main loop. It blocks until context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("Scheduler started", "interval", s.interval, "jobs", len(s.jobs))

	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopped")
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	for _, job := range s.jobs {
		if job.ShouldFire(now) {
			// Fire and forget
			go job.Run(ctx, now)
		}
	}
}
