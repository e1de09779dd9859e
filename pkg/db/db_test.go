package db

import (
	"path/filepath"
	"testing"
	"time"
)

func TestInit(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fieldtrack_test.db")

	d, err := Init(dbPath)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer d.Close()

	// Migrations must be idempotent.
	if err := d.migrate(); err != nil {
		t.Errorf("second migrate() error = %v", err)
	}

	for _, table := range []string{"persistent_state", "pending_updates"} {
		var name string
		err := d.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %q missing: %v", table, err)
		}
	}
}

func TestPruneUpdates(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fieldtrack_test.db")
	d, err := Init(dbPath)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer d.Close()

	old := time.Now().Add(-48 * time.Hour).UnixMilli()
	fresh := time.Now().UnixMilli()
	for i, ts := range []int64{old, fresh} {
		_, err := d.Exec("INSERT INTO pending_updates (id, endpoint, payload, enqueued_at) VALUES (?, ?, ?, ?)",
			i, "/api/locations", "{}", ts)
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	if err := d.PruneUpdates(24 * time.Hour); err != nil {
		t.Fatalf("PruneUpdates() error = %v", err)
	}

	var count int
	if err := d.QueryRow("SELECT COUNT(*) FROM pending_updates").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("remaining rows = %d, want 1", count)
	}
}
