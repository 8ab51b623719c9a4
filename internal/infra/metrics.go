package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability for a calculation run without
// external dependencies. Uses atomic operations for thread-safety since
// symbol replays run concurrently.
type Metrics struct {
	// Counters
	symbolsProcessed atomic.Uint64
	symbolsFailed    atomic.Uint64
	ordersReplayed   atomic.Uint64
	eventsEmitted    atomic.Uint64

	// Rate lookup breakdown
	rateCacheHits atomic.Uint64
	rateFetches   atomic.Uint64
	rateFallbacks atomic.Uint64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordSymbol records a completed symbol replay.
func (m *Metrics) RecordSymbol(failed bool) {
	m.symbolsProcessed.Add(1)
	if failed {
		m.symbolsFailed.Add(1)
	}
}

// RecordOrder records one order fed through a cost pool.
func (m *Metrics) RecordOrder() {
	m.ordersReplayed.Add(1)
}

// RecordEvent records an emitted taxable event.
func (m *Metrics) RecordEvent() {
	m.eventsEmitted.Add(1)
}

// RecordRateCacheHit records a rate resolved from memo or local storage.
func (m *Metrics) RecordRateCacheHit() {
	m.rateCacheHits.Add(1)
}

// RecordRateFetch records a rate fetched over the network.
func (m *Metrics) RecordRateFetch() {
	m.rateFetches.Add(1)
}

// RecordRateFallback records a rate served from the static fallback table.
func (m *Metrics) RecordRateFallback() {
	m.rateFallbacks.Add(1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	SymbolsProcessed uint64
	SymbolsFailed    uint64
	OrdersReplayed   uint64
	EventsEmitted    uint64
	RateCacheHits    uint64
	RateFetches      uint64
	RateFallbacks    uint64
	Timestamp        time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		SymbolsProcessed: m.symbolsProcessed.Load(),
		SymbolsFailed:    m.symbolsFailed.Load(),
		OrdersReplayed:   m.ordersReplayed.Load(),
		EventsEmitted:    m.eventsEmitted.Load(),
		RateCacheHits:    m.rateCacheHits.Load(),
		RateFetches:      m.rateFetches.Load(),
		RateFallbacks:    m.rateFallbacks.Load(),
		Timestamp:        time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.symbolsProcessed.Store(0)
	m.symbolsFailed.Store(0)
	m.ordersReplayed.Store(0)
	m.eventsEmitted.Store(0)
	m.rateCacheHits.Store(0)
	m.rateFetches.Store(0)
	m.rateFallbacks.Store(0)
}
