package capture

import (
	"context"
	"time"

	"fieldtrack/pkg/geo"
)

// Accuracy selects the positioning accuracy level requested from the OS.
type Accuracy string

const (
	AccuracyLow      Accuracy = "low"
	AccuracyBalanced Accuracy = "balanced"
	AccuracyHigh     Accuracy = "high"
	AccuracyHighest  Accuracy = "highest"
)

// SamplingOptions are the parameters the background task samples with.
type SamplingOptions struct {
	TimeInterval     time.Duration
	DistanceInterval float64 // meters
	Accuracy         Accuracy
}

// TaskCallback receives a batch of raw fixes from the OS. The OS may deliver
// a backlog after the app resumes, so batches are not guaranteed to be in
// chronological order.
type TaskCallback func(ctx context.Context, fixes []geo.Fix)

// TaskRegistry abstracts the OS background location task. Implementations
// wrap the platform APIs; tests substitute fakes.
type TaskRegistry interface {
	DefineTask(id string, cb TaskCallback) error
	StartLocationUpdates(ctx context.Context, id string, opts SamplingOptions) error
	StopLocationUpdates(ctx context.Context, id string) error
	IsTaskRegistered(id string) bool
	IsTaskActive(id string) bool
	LocationServicesEnabled(ctx context.Context) bool
}
