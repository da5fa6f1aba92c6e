package coordinator

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// PingPath is the well-known liveness path every preview server answers.
const PingPath = "/ping"

// DefaultProbeTimeout bounds a single liveness probe.
const DefaultProbeTimeout = 2 * time.Second

// ProbeFunc reports whether the server at base is reachable.
type ProbeFunc func(ctx context.Context, base url.URL) bool

// Prober issues POST <base>/ping with a bounded timeout. It never retries
// and never returns an error: every failure means "unreachable".
type Prober struct {
	client *http.Client
}

// NewProber returns a prober whose requests give up after timeout.
func NewProber(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Prober{client: &http.Client{Timeout: timeout}}
}

// Probe reports whether base answered /ping with a 2xx status.
func (p *Prober) Probe(ctx context.Context, base url.URL) bool {
	target := base
	target.Path = PingPath
	target.RawPath = ""
	target.RawQuery = ""
	target.Fragment = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
