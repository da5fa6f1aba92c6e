// Package coordinator provides the live-preview coordination server functionality.
// This file implements the heartbeat loop that evicts unreachable preview servers.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultHeartbeatInterval is the period between two probe rounds.
const DefaultHeartbeatInterval = 60 * time.Second

// maxParallelProbes caps how many probes of one round run at once.
const maxParallelProbes = 32

// MonitorState is the phase the heartbeat loop is in.
type MonitorState int32

const (
	StateSleeping MonitorState = iota
	StateProbing
	StateReconciling
)

func (s MonitorState) String() string {
	switch s {
	case StateSleeping:
		return "sleeping"
	case StateProbing:
		return "probing"
	case StateReconciling:
		return "reconciling"
	default:
		return "unknown"
	}
}

// CycleReport summarizes one completed probe round.
type CycleReport struct {
	At      time.Time // When the round finished
	Checked int       // Entries in the snapshot that was probed
	Removed []Entry   // Entries evicted by this round
}

// HeartbeatMonitor periodically probes every registry entry and evicts the
// ones that do not answer, publishing one removal event per evicted entry.
// Thread-safe: All methods are safe for concurrent access.
type HeartbeatMonitor struct {
	registry *Registry          // Entries to probe
	events   *Broadcaster       // Receives removal events
	probe    ProbeFunc          // Liveness check for one entry
	logger   *slog.Logger       // Structured log sink
	ctx      context.Context    // Internal context for Stop
	cancel   context.CancelFunc // Cancels ctx
	interval time.Duration      // Period between rounds
	state    atomic.Int32       // Current MonitorState
	mu       sync.RWMutex       // Protects last
	last     CycleReport        // Result of the latest round
	wg       sync.WaitGroup     // Tracks Start for Stop
}

// NewHeartbeatMonitor creates a monitor over registry that publishes removals
// to events every interval.
//
// Parameters:
//   - registry: the table to prune
//   - events: broadcaster receiving {added:false} events
//   - interval: period between rounds (DefaultHeartbeatInterval if <= 0)
//
// Example:
//
//	monitor := NewHeartbeatMonitor(registry, events, time.Minute)
//	go monitor.Start(ctx)
func NewHeartbeatMonitor(registry *Registry, events *Broadcaster, interval time.Duration) *HeartbeatMonitor {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &HeartbeatMonitor{
		registry: registry,
		events:   events,
		probe:    NewProber(DefaultProbeTimeout).Probe,
		logger:   slog.Default(),
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetProbeFunction replaces the liveness check. Tests use it to fake
// reachability; it must be called before Start.
func (h *HeartbeatMonitor) SetProbeFunction(probe ProbeFunc) {
	h.probe = probe
}

// SetLogger replaces the logger. It must be called before Start.
func (h *HeartbeatMonitor) SetLogger(l *slog.Logger) {
	if l != nil {
		h.logger = l
	}
}

// Start runs the loop in the current goroutine until ctx or Stop cancels it.
// The first round runs immediately.
func (h *HeartbeatMonitor) Start(ctx context.Context) {
	h.wg.Add(1)
	defer h.wg.Done()

	if ctx == nil {
		ctx = h.ctx
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Info("heartbeat monitor started", "interval", h.interval)

	h.RunOnce(ctx)
	for {
		select {
		case <-ticker.C:
			h.RunOnce(ctx)
		case <-ctx.Done():
			h.logger.Info("heartbeat monitor stopping", "reason", "context")
			return
		case <-h.ctx.Done():
			h.logger.Info("heartbeat monitor stopping", "reason", "stop")
			return
		}
	}
}

// Stop cancels the loop and waits for it to return.
func (h *HeartbeatMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
}

// RunOnce performs one Probing and one Reconciling phase and returns the
// entries it evicted.
//
// Implementation:
//  1. Snapshot the registry (no lock held afterwards)
//  2. Probe every entry concurrently, remembering which ones failed
//  3. Remove exactly the failed entries
//  4. Publish one {added:false} event per removed entry
func (h *HeartbeatMonitor) RunOnce(ctx context.Context) []Entry {
	defer h.state.Store(int32(StateSleeping))

	h.state.Store(int32(StateProbing))
	snapshot := h.registry.Snapshot()
	alive := make([]bool, len(snapshot))

	var g errgroup.Group
	g.SetLimit(maxParallelProbes)
	for i, e := range snapshot {
		g.Go(func() error {
			alive[i] = h.probe(ctx, e.URL)
			return nil
		})
	}
	_ = g.Wait()

	var failed []Entry
	for i, e := range snapshot {
		if !alive[i] {
			h.logger.Debug("heartbeat probe failed", "name", e.Name, "url", e.URL.String())
			failed = append(failed, e)
		}
	}

	h.state.Store(int32(StateReconciling))
	removed := h.registry.RemoveExact(failed)
	for _, e := range removed {
		h.logger.Info("evicted unreachable preview server", "name", e.Name, "url", e.URL.String())
		h.events.Publish(e.Event(false))
	}

	h.mu.Lock()
	h.last = CycleReport{At: time.Now(), Checked: len(snapshot), Removed: removed}
	h.mu.Unlock()
	return removed
}

// State returns the phase the loop is currently in.
func (h *HeartbeatMonitor) State() MonitorState {
	return MonitorState(h.state.Load())
}

// LastReport returns the summary of the most recent round. The zero value
// means no round has completed yet.
func (h *HeartbeatMonitor) LastReport() CycleReport {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r := h.last
	r.Removed = append([]Entry(nil), h.last.Removed...)
	return r
}

// Interval returns the period between rounds.
func (h *HeartbeatMonitor) Interval() time.Duration { return h.interval }
