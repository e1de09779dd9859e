package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// PermissionStatus is the tri-state the platform reports for a permission.
type PermissionStatus string

const (
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
	PermissionUndetermined PermissionStatus = "undetermined"
)

// ErrPermissionDenied is returned by Start when a required location
// permission is denied. Callers must re-prompt; the machine never retries
// permission requests on its own.
var ErrPermissionDenied = errors.New("location permission denied")

// PermissionProvider abstracts the platform permission APIs.
type PermissionProvider interface {
	ForegroundStatus(ctx context.Context) (PermissionStatus, error)
	BackgroundStatus(ctx context.Context) (PermissionStatus, error)
	RequestForeground(ctx context.Context) (PermissionStatus, error)
	RequestBackground(ctx context.Context) (PermissionStatus, error)
}

// BatteryOptimizer is implemented by platforms where background tasks are
// killed unless the app is exempted from battery optimization.
type BatteryOptimizer interface {
	RequestIgnoreBatteryOptimizations(ctx context.Context) error
}

// PermissionFlow runs the platform-specific prompt sequence that ends with
// background permission granted, or fails with ErrPermissionDenied.
type PermissionFlow interface {
	Name() string
	EnsureBackground(ctx context.Context, perms PermissionProvider) error
}

// IOSFlow implements the iOS double-prompt sequence: the OS only shows the
// "Always Allow" option after foreground ("While Using") was granted first,
// so background must be requested as a second, separate step.
type IOSFlow struct{}

func (IOSFlow) Name() string { return "ios" }

func (IOSFlow) EnsureBackground(ctx context.Context, perms PermissionProvider) error {
	status, err := perms.BackgroundStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to read background permission: %w", err)
	}
	if status == PermissionGranted {
		return nil
	}
	if status == PermissionDenied {
		// The OS will not show the prompt again.
		return ErrPermissionDenied
	}

	slog.Info("Capture: requesting Always Allow (iOS second prompt)")
	status, err = perms.RequestBackground(ctx)
	if err != nil {
		return fmt.Errorf("background permission request failed: %w", err)
	}
	if status != PermissionGranted {
		return ErrPermissionDenied
	}
	return nil
}

// AndroidFlow requests background permission directly and then asks for a
// battery-optimization exemption, which some manufacturers require to keep
// the task alive. The exemption is best-effort: refusal does not fail the
// flow.
type AndroidFlow struct {
	Battery BatteryOptimizer // nil when the platform has no exemption API
}

func (AndroidFlow) Name() string { return "android" }

func (f AndroidFlow) EnsureBackground(ctx context.Context, perms PermissionProvider) error {
	status, err := perms.BackgroundStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to read background permission: %w", err)
	}
	if status != PermissionGranted {
		status, err = perms.RequestBackground(ctx)
		if err != nil {
			return fmt.Errorf("background permission request failed: %w", err)
		}
		if status != PermissionGranted {
			return ErrPermissionDenied
		}
	}

	if f.Battery != nil {
		if err := f.Battery.RequestIgnoreBatteryOptimizations(ctx); err != nil {
			slog.Warn("Capture: battery exemption refused, tracking may be killed in background", "error", err)
		}
	}
	return nil
}
