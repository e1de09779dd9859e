package store

import (
	"context"
	"time"
)

// PendingUpdate is one queued location update awaiting delivery.
type PendingUpdate struct {
	ID         string    `json:"id"`
	Endpoint   string    `json:"endpoint"`
	Payload    string    `json:"payload"` // JSON body
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// StateStore handles persistent application state: tracking intent, filter
// settings, last-known location. Values are JSON strings keyed by name.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}

// QueueStore handles the durable offline delivery queue.
// All mutations are persisted synchronously; the in-memory queue is never
// the source of truth since the background context may be a separate process.
type QueueStore interface {
	// AppendUpdate appends an update and evicts the oldest entries so the
	// stored count never exceeds maxSize.
	AppendUpdate(ctx context.Context, u PendingUpdate, maxSize int) error
	// ListUpdates returns up to limit updates in insertion order.
	ListUpdates(ctx context.Context, limit int) ([]PendingUpdate, error)
	// RemoveUpdates deletes the given entries by ID.
	RemoveUpdates(ctx context.Context, ids []string) error
	// CountUpdates returns the current queue depth.
	CountUpdates(ctx context.Context) (int, error)
	// ClearUpdates empties the queue.
	ClearUpdates(ctx context.Context) error
}

// Store composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	StateStore
	QueueStore

	// Close closes the store connection.
	Close() error
}
