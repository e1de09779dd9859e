package tracker

import (
	"sync"
	"sync/atomic"
)

// Tracker tracks pipeline statistics per endpoint.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*EndpointStats
}

// EndpointStats holds metrics for a specific delivery endpoint.
// Fields are accessed atomically.
type EndpointStats struct {
	Delivered   int64
	Failed      int64
	Queued      int64
	Expired     int64
	FixAccepted int64
	FixFiltered int64
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats: make(map[string]*EndpointStats),
	}
}

// getStats returns the stats object for an endpoint, creating it if needed.
func (t *Tracker) getStats(endpoint string) *EndpointStats {
	t.mu.RLock()
	s, ok := t.stats[endpoint]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if s, ok = t.stats[endpoint]; ok {
		return s
	}
	s = &EndpointStats{}
	t.stats[endpoint] = s
	return s
}

// TrackDelivered increments the successful delivery counter.
func (t *Tracker) TrackDelivered(endpoint string) {
	atomic.AddInt64(&t.getStats(endpoint).Delivered, 1)
}

func (t *Tracker) TrackFailed(endpoint string) {
	atomic.AddInt64(&t.getStats(endpoint).Failed, 1)
}

func (t *Tracker) TrackQueued(endpoint string) {
	atomic.AddInt64(&t.getStats(endpoint).Queued, 1)
}

func (t *Tracker) TrackExpired(endpoint string) {
	atomic.AddInt64(&t.getStats(endpoint).Expired, 1)
}

func (t *Tracker) TrackFixAccepted(endpoint string) {
	atomic.AddInt64(&t.getStats(endpoint).FixAccepted, 1)
}

func (t *Tracker) TrackFixFiltered(endpoint string) {
	atomic.AddInt64(&t.getStats(endpoint).FixFiltered, 1)
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]EndpointStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]EndpointStats)
	for k, v := range t.stats {
		result[k] = EndpointStats{
			Delivered:   atomic.LoadInt64(&v.Delivered),
			Failed:      atomic.LoadInt64(&v.Failed),
			Queued:      atomic.LoadInt64(&v.Queued),
			Expired:     atomic.LoadInt64(&v.Expired),
			FixAccepted: atomic.LoadInt64(&v.FixAccepted),
			FixFiltered: atomic.LoadInt64(&v.FixFiltered),
		}
	}
	return result
}
