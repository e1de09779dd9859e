package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestIntervalJobFiresOnSchedule(t *testing.T) {
	var fired int32
	j := NewIntervalJob("test", time.Minute, func(ctx context.Context, now time.Time) {
		atomic.AddInt32(&fired, 1)
	})

	now := time.Now()
	if !j.ShouldFire(now) {
		t.Fatal("first tick should fire")
	}
	j.Run(context.Background(), now)

	if j.ShouldFire(now.Add(30 * time.Second)) {
		t.Error("fired again before interval elapsed")
	}
	if !j.ShouldFire(now.Add(61 * time.Second)) {
		t.Error("did not fire after interval elapsed")
	}
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Errorf("action ran %d times, want 1", got)
	}
}

func TestIntervalJobNoReentry(t *testing.T) {
	blocker := make(chan struct{})
	started := make(chan struct{})
	j := NewIntervalJob("test", time.Millisecond, func(ctx context.Context, now time.Time) {
		close(started)
		<-blocker
	})

	go j.Run(context.Background(), time.Now())
	<-started

	if j.ShouldFire(time.Now().Add(time.Hour)) {
		t.Error("ShouldFire() = true while job is running")
	}
	// A concurrent Run must bail out on the lock.
	j.Run(context.Background(), time.Now())
	close(blocker)
}

// The scheduler reads ShouldFire on the ticker goroutine while Run executes
// on its own goroutine; the fire time recorded there must be visible across
// that boundary.
func TestIntervalJobLastFireCrossGoroutine(t *testing.T) {
	j := NewIntervalJob("test", time.Minute, func(ctx context.Context, now time.Time) {})

	now := time.Now()
	done := make(chan struct{})
	go func() {
		j.Run(context.Background(), now)
		close(done)
	}()
	<-done

	if j.ShouldFire(now.Add(30 * time.Second)) {
		t.Error("fire time from the job goroutine was not observed")
	}
	if !j.ShouldFire(now.Add(61 * time.Second)) {
		t.Error("did not fire after interval elapsed")
	}
}

func TestSchedulerRunsJobs(t *testing.T) {
	var fired int32
	s := NewScheduler(10 * time.Millisecond)
	s.AddJob(NewIntervalJob("test", time.Millisecond, func(ctx context.Context, now time.Time) {
		atomic.AddInt32(&fired, 1)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	if atomic.LoadInt32(&fired) == 0 {
		t.Error("scheduler never ran the job")
	}
}
