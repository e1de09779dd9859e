package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"fieldtrack/pkg/db"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "store_test.db")
	d, err := db.Init(dbPath)
	if err != nil {
		t.Fatalf("Failed to init db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return NewSQLiteStore(d)
}

func TestStateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok := s.GetState(ctx, "tracking.intent"); ok {
		t.Error("expected miss for unset key")
	}

	if err := s.SetState(ctx, "tracking.intent", `"active"`); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}
	val, ok := s.GetState(ctx, "tracking.intent")
	if !ok || val != `"active"` {
		t.Errorf("GetState() = %q, %v", val, ok)
	}

	// Overwrite
	if err := s.SetState(ctx, "tracking.intent", `"inactive"`); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}
	if val, _ := s.GetState(ctx, "tracking.intent"); val != `"inactive"` {
		t.Errorf("GetState() after overwrite = %q", val)
	}

	if err := s.DeleteState(ctx, "tracking.intent"); err != nil {
		t.Fatalf("DeleteState() error = %v", err)
	}
	if _, ok := s.GetState(ctx, "tracking.intent"); ok {
		t.Error("expected miss after delete")
	}
}

func makeUpdate(i int, at time.Time) PendingUpdate {
	return PendingUpdate{
		ID:         fmt.Sprintf("u-%03d", i),
		Endpoint:   "/api/employee/location",
		Payload:    fmt.Sprintf(`{"seq":%d}`, i),
		EnqueuedAt: at,
	}
}

func TestQueueInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		u := makeUpdate(i, base.Add(time.Duration(i)*time.Minute))
		if err := s.AppendUpdate(ctx, u, 100); err != nil {
			t.Fatalf("AppendUpdate() error = %v", err)
		}
	}

	got, err := s.ListUpdates(ctx, 0)
	if err != nil {
		t.Fatalf("ListUpdates() error = %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	for i, u := range got {
		if u.ID != fmt.Sprintf("u-%03d", i) {
			t.Errorf("position %d = %s, want u-%03d", i, u.ID, i)
		}
	}

	limited, err := s.ListUpdates(ctx, 2)
	if err != nil {
		t.Fatalf("ListUpdates(2) error = %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "u-000" {
		t.Errorf("limited = %v", limited)
	}
}

// A backlog flush enqueues many updates within the same millisecond; the
// wall-clock timestamp cannot break those ties, so ordering must come from
// the insertion sequence alone.
func TestQueueInsertionOrderSameTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Now()

	const n = 20
	for i := 0; i < n; i++ {
		if err := s.AppendUpdate(ctx, makeUpdate(i, at), 100); err != nil {
			t.Fatalf("AppendUpdate() error = %v", err)
		}
	}

	got, err := s.ListUpdates(ctx, 0)
	if err != nil {
		t.Fatalf("ListUpdates() error = %v", err)
	}
	if len(got) != n {
		t.Fatalf("len = %d, want %d", len(got), n)
	}
	for i, u := range got {
		if u.ID != fmt.Sprintf("u-%03d", i) {
			t.Errorf("position %d = %s, want u-%03d", i, u.ID, i)
		}
	}
}

func TestQueueBoundedSameTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Now()

	const maxSize = 5
	for i := 0; i < 12; i++ {
		if err := s.AppendUpdate(ctx, makeUpdate(i, at), maxSize); err != nil {
			t.Fatalf("AppendUpdate() error = %v", err)
		}
	}

	got, err := s.ListUpdates(ctx, 0)
	if err != nil {
		t.Fatalf("ListUpdates() error = %v", err)
	}
	if len(got) != maxSize {
		t.Fatalf("len = %d, want %d", len(got), maxSize)
	}
	// Earliest-inserted entries go first even with identical timestamps.
	for i, u := range got {
		want := fmt.Sprintf("u-%03d", 12-maxSize+i)
		if u.ID != want {
			t.Errorf("position %d = %s, want %s", i, u.ID, want)
		}
	}
}

func TestQueueBounded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	const maxSize = 10
	for i := 0; i < 25; i++ {
		u := makeUpdate(i, base.Add(time.Duration(i)*time.Second))
		if err := s.AppendUpdate(ctx, u, maxSize); err != nil {
			t.Fatalf("AppendUpdate() error = %v", err)
		}
	}

	count, err := s.CountUpdates(ctx)
	if err != nil {
		t.Fatalf("CountUpdates() error = %v", err)
	}
	if count != maxSize {
		t.Errorf("count = %d, want %d", count, maxSize)
	}

	// Oldest entries evicted first: the survivors are 15..24.
	got, _ := s.ListUpdates(ctx, 0)
	if got[0].ID != "u-015" {
		t.Errorf("oldest survivor = %s, want u-015", got[0].ID)
	}
	if got[len(got)-1].ID != "u-024" {
		t.Errorf("newest = %s, want u-024", got[len(got)-1].ID)
	}
}

func TestQueueRemoveAndClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 4; i++ {
		if err := s.AppendUpdate(ctx, makeUpdate(i, base.Add(time.Duration(i)*time.Second)), 100); err != nil {
			t.Fatalf("AppendUpdate() error = %v", err)
		}
	}

	if err := s.RemoveUpdates(ctx, []string{"u-001", "u-003"}); err != nil {
		t.Fatalf("RemoveUpdates() error = %v", err)
	}
	got, _ := s.ListUpdates(ctx, 0)
	if len(got) != 2 || got[0].ID != "u-000" || got[1].ID != "u-002" {
		t.Errorf("after remove = %v", got)
	}

	// Removing nothing is a no-op.
	if err := s.RemoveUpdates(ctx, nil); err != nil {
		t.Errorf("RemoveUpdates(nil) error = %v", err)
	}

	if err := s.ClearUpdates(ctx); err != nil {
		t.Fatalf("ClearUpdates() error = %v", err)
	}
	if count, _ := s.CountUpdates(ctx); count != 0 {
		t.Errorf("count after clear = %d", count)
	}
}
