package transport

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Connectivity reports network reachability, polled on demand.
type Connectivity interface {
	IsConnected(ctx context.Context) bool
	IsInternetReachable(ctx context.Context) bool
}

// Probe checks reachability by issuing a cheap HEAD request against the
// uplink base URL. Results are cached briefly so the queue can poll freely.
type Probe struct {
	url        string
	httpClient *http.Client

	mu        sync.Mutex
	lastCheck time.Time
	lastOK    bool
}

// probeCacheTTL bounds how often the probe actually dials out.
const probeCacheTTL = 5 * time.Second

// NewProbe creates a connectivity probe against the given base URL.
func NewProbe(baseURL string) *Probe {
	return &Probe{
		url:        baseURL,
		httpClient: &http.Client{Timeout: 3 * time.Second},
	}
}

func (p *Probe) IsConnected(ctx context.Context) bool {
	return p.check(ctx)
}

func (p *Probe) IsInternetReachable(ctx context.Context) bool {
	return p.check(ctx)
}

func (p *Probe) check(ctx context.Context) bool {
	p.mu.Lock()
	if time.Since(p.lastCheck) < probeCacheTTL {
		ok := p.lastOK
		p.mu.Unlock()
		return ok
	}
	p.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, http.NoBody)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	ok := err == nil
	if resp != nil {
		resp.Body.Close()
	}

	p.mu.Lock()
	p.lastCheck = time.Now()
	p.lastOK = ok
	p.mu.Unlock()
	return ok
}

// StaticConnectivity is a fixed-answer Connectivity, useful in tests and for
// forcing offline mode.
type StaticConnectivity bool

func (s StaticConnectivity) IsConnected(ctx context.Context) bool         { return bool(s) }
func (s StaticConnectivity) IsInternetReachable(ctx context.Context) bool { return bool(s) }
