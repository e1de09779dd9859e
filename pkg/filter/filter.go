// Package filter scores raw location fixes with a [0,1] confidence value and
// optionally rejects or smooths the low-confidence ones. GPS noise is routine,
// so rejection is silent: a filtered fix is a return value, never an error.
package filter

import (
	"fmt"
	"sync"

	"fieldtrack/pkg/geo"
)

// HistorySize is the maximum number of accepted fixes kept for smoothing.
const HistorySize = 5

// Rejection reasons recorded on filtered fixes.
const (
	ReasonInvalidCoordinates = "invalid coordinates"
	ReasonLowAccuracy        = "accuracy radius exceeds maximum"
	ReasonLowConfidence      = "confidence below threshold, no history to smooth"
	ReasonSmoothed           = "smoothed from recent history"
)

// Settings controls scoring and smoothing behavior. Persisted across restarts
// via the state store.
type Settings struct {
	Enabled               bool    `json:"enabled"`
	MaxAccuracyRadius     float64 `json:"max_accuracy_radius"`     // meters
	GoodAccuracyThreshold float64 `json:"good_accuracy_threshold"` // meters
	ConfidenceThreshold   float64 `json:"confidence_threshold"`
	UseSmoothing          bool    `json:"use_smoothing"`
	RejectLowAccuracy     bool    `json:"reject_low_accuracy"`
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		Enabled:               true,
		MaxAccuracyRadius:     100,
		GoodAccuracyThreshold: 20,
		ConfidenceThreshold:   0.4,
		UseSmoothing:          true,
		RejectLowAccuracy:     false,
	}
}

// ScoredLocation is the per-fix filtering verdict. Ephemeral: nothing beyond
// the smoothing history survives it.
type ScoredLocation struct {
	Location   geo.Fix `json:"location"`
	Confidence float64 `json:"confidence"`
	IsFiltered bool    `json:"is_filtered"`
	Reason     string  `json:"reason,omitempty"`
}

// Filter scores and smooths fixes using a bounded recent-history buffer.
type Filter struct {
	mu       sync.Mutex
	settings Settings
	history  []geo.Fix
}

// New creates a Filter with the given settings.
func New(s Settings) *Filter {
	return &Filter{settings: s}
}

// Settings returns the current settings.
func (f *Filter) Settings() Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

// UpdateSettings replaces the settings. The smoothing history is kept.
func (f *Filter) UpdateSettings(s Settings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = s
}

// Reset clears the smoothing history.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = nil
}

const speedCeiling = 50.0 // m/s, ~180 km/h

// Score computes the confidence of a fix from its accuracy radius, speed
// plausibility, and altitude accuracy. The result is clamped to [0,1].
func (f *Filter) Score(fix geo.Fix) float64 {
	f.mu.Lock()
	s := f.settings
	f.mu.Unlock()
	return score(fix, s)
}

func score(fix geo.Fix, s Settings) float64 {
	good := s.GoodAccuracyThreshold
	if good <= 0 {
		good = 20
	}
	maxR := s.MaxAccuracyRadius
	if maxR <= good {
		maxR = good + 80
	}

	// Accuracy-radius term, dominant weight 0.7.
	var acc float64
	r := fix.Accuracy
	switch {
	case r <= 0:
		// Unreported accuracy: treat as mediocre rather than perfect.
		acc = 0.5
	case r <= good:
		acc = 1.0 - 0.3*(r/good)
	case r <= maxR:
		acc = 0.7 - 0.3*((r-good)/(maxR-good))
	default:
		// Decay with the number of multiples past the maximum.
		acc = 0.4 / (r / maxR)
		if acc < 0.05 {
			acc = 0.05
		}
	}
	confidence := 0.7 * acc

	// Speed plausibility.
	if fix.Speed > speedCeiling {
		confidence -= 0.1
	} else if fix.Speed >= 0 {
		confidence += 0.1 * (1 - fix.Speed/speedCeiling)
	}

	// Altitude accuracy.
	switch {
	case fix.AltitudeAccuracy <= 0:
		// Unreported, no adjustment.
	case fix.AltitudeAccuracy <= 10:
		confidence += 0.05
	case fix.AltitudeAccuracy > 100:
		confidence -= 0.1
	case fix.AltitudeAccuracy > 30:
		confidence -= 0.05
	}

	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// Apply runs the full filtering pipeline for one raw fix.
func (f *Filter) Apply(fix geo.Fix) ScoredLocation {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.settings

	if !s.Enabled {
		return ScoredLocation{Location: fix, Confidence: 1}
	}

	if !fix.Point.Valid() {
		return ScoredLocation{Location: fix, IsFiltered: true, Reason: ReasonInvalidCoordinates}
	}

	if s.RejectLowAccuracy && fix.Accuracy > s.MaxAccuracyRadius {
		return ScoredLocation{
			Location:   fix,
			IsFiltered: true,
			Reason:     fmt.Sprintf("%s (%.0fm > %.0fm)", ReasonLowAccuracy, fix.Accuracy, s.MaxAccuracyRadius),
		}
	}

	confidence := score(fix, s)
	if confidence < s.ConfidenceThreshold {
		if s.UseSmoothing && len(f.history) > 0 {
			smoothed := f.smooth(fix)
			// Boost only up to the threshold so consumers can still tell a
			// smoothed fix from a naturally confident one.
			f.remember(smoothed)
			return ScoredLocation{
				Location:   smoothed,
				Confidence: s.ConfidenceThreshold,
				Reason:     ReasonSmoothed,
			}
		}
		return ScoredLocation{
			Location:   fix,
			Confidence: confidence,
			IsFiltered: true,
			Reason:     ReasonLowConfidence,
		}
	}

	f.remember(fix)
	return ScoredLocation{Location: fix, Confidence: confidence}
}

// smooth returns the fix with coordinates replaced by a recency-weighted
// average over the history plus the fix itself (newest weighs most).
func (f *Filter) smooth(fix geo.Fix) geo.Fix {
	var lat, lon, total float64
	weight := 1.0
	for _, h := range f.history {
		lat += h.Lat * weight
		lon += h.Lon * weight
		total += weight
		weight++
	}
	lat += fix.Lat * weight
	lon += fix.Lon * weight
	total += weight

	out := fix
	out.Lat = lat / total
	out.Lon = lon / total
	return out
}

// remember appends an accepted fix to the bounded history, evicting the
// oldest entry on overflow. Caller holds f.mu.
func (f *Filter) remember(fix geo.Fix) {
	f.history = append(f.history, fix)
	if len(f.history) > HistorySize {
		f.history = f.history[1:]
	}
}
