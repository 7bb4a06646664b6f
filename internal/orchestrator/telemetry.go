// Package orchestrator drives the self-improvement control plane's single
// event loop: it consumes telemetry snapshots, routes degradation signals
// into the task generator, drives the optional parameter controller, records
// everything in Agent Memory, and hands approved changes to the staged
// deployment pipeline.
package orchestrator

import (
	"sync"
	"time"
)

// TelemetrySnapshot is the sole input to the control loop. The four named
// fields are the minimum recognised set; callers may stash additional,
// opaque-to-the-core data in Extra.
type TelemetrySnapshot struct {
	P95_1mUS     float64
	AvgLatencyUS float64
	DropRate     float64
	CapturedAt   time.Time
	Extra        map[string]float64
}

// TelemetryBus is a bounded, drop-on-lag broadcast of TelemetrySnapshot
// values. Subscribers that fall behind observe the most recent snapshot on
// their next receive, never a queued backlog — freshness over completeness,
// per the design's backpressure policy.
type TelemetryBus struct {
	mu     sync.Mutex
	latest TelemetrySnapshot
	have   bool
	subs   []chan TelemetrySnapshot
}

// NewTelemetryBus creates an empty bus.
func NewTelemetryBus() *TelemetryBus {
	return &TelemetryBus{}
}

// Publish broadcasts a snapshot to every subscriber and updates Latest.
// A subscriber whose channel is full has its pending snapshot overwritten
// rather than blocking the publisher.
func (b *TelemetryBus) Publish(snap TelemetrySnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = snap
	b.have = true
	for _, ch := range b.subs {
		select {
		case ch <- snap:
		default:
			// Drain the stale pending value, then push the fresh one. A
			// concurrent receiver may win the race and empty the channel
			// first; either outcome leaves the freshest snapshot enqueued.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Latest returns the most recently published snapshot and whether one has
// ever been published.
func (b *TelemetryBus) Latest() (TelemetrySnapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, b.have
}

// Subscribe registers a new receiver. The returned channel has capacity 1,
// matching the bus's overwrite-on-lag semantics: at most one undelivered
// snapshot is ever buffered per subscriber.
func (b *TelemetryBus) Subscribe() <-chan TelemetrySnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan TelemetrySnapshot, 1)
	b.subs = append(b.subs, ch)
	return ch
}
