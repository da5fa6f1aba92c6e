// Package coordinator implements the control plane shared by every
// live-preview instance on a host: who is running, where, and whether they
// still answer.
//
// # Overview
//
// Each editor workspace runs its own preview server on its own port. The
// coordinator keeps the list of those servers so that one dashboard can show
// all of them and so that new instances can avoid ports already in use.
//
// # Architecture
//
//	┌──────────────────────────────────────┐
//	│             COORDINATOR              │
//	├──────────────────────────────────────┤
//	│  Registry          (name, url) list  │
//	│    ▲      ▲                          │
//	│    │add   │remove                    │
//	│  register  HeartbeatMonitor ─ Prober │
//	│    │      │                          │
//	│    ▼      ▼                          │
//	│  Broadcaster ──▶ Subscription (x N)  │
//	└──────────────────────────────────────┘
//
// # Core Components
//
// Registry: ordered table of Entry values
//   - Add is idempotent for an identical (name, url) pair
//   - Remove deletes by predicate, RemoveExact by identity
//   - Snapshot returns a copy; no lock is held during probes
//
// Prober: POST <url>/ping with a two second timeout
//   - any transport error, timeout or non-2xx answer means unreachable
//   - never retries; the heartbeat decides what a failure means
//
// HeartbeatMonitor: Sleeping → Probing → Reconciling → Sleeping
//   - probes a snapshot concurrently every interval (60s by default)
//   - removes exactly the failed entries and publishes {added:false} for each
//
// Broadcaster: fan-out of cluster.ChangeEvent
//   - each Subscription buffers ten events and drops the oldest when full
//   - Publish never blocks; closed subscriptions are forgotten on the next
//     Publish
//
// # Concurrency
//
// The registry and the broadcaster have separate locks, so a burst of
// registrations never delays event delivery and a slow subscriber never
// delays registration. Probing happens outside both locks.
//
// # See Also
//
//   - internal/dashboard: HTTP surface built on these types
//   - internal/cluster: wire types and the instance-side client
package coordinator
