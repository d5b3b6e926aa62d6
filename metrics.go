package audiograph

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is a snapshot of render statistics, returned by Graph.Metrics.
type Metrics struct {
	// Latency is the distribution of wall time spent rendering one quantum.
	Latency LatencyMetrics

	// Quanta is the number of quanta rendered.
	Quanta uint64
	// CommandsApplied counts commands scheduled successfully.
	CommandsApplied uint64
	// CommandsFailed counts commands that failed schedule-time validation.
	CommandsFailed uint64
	// Overruns counts quanta that took longer to render than they last.
	Overruns uint64

	LiveNodes       int
	LiveConnections int
}

// LatencyMetrics holds streaming estimates of render latency.
type LatencyMetrics struct {
	P50  time.Duration
	P90  time.Duration
	P99  time.Duration
	Max  time.Duration
	Mean time.Duration
	// Dropped is the number of samples skipped because a snapshot was being
	// taken at the time.
	Dropped uint64
}

// renderMetrics is written by the render path and read by Graph.Metrics.
// The render path never waits on mu: a sample is dropped instead.
type renderMetrics struct {
	p50, p90, p99   quantile
	sum             time.Duration
	max             time.Duration
	quanta          atomic.Uint64
	applied         atomic.Uint64
	failed          atomic.Uint64
	overruns        atomic.Uint64
	dropped         atomic.Uint64
	liveNodes       atomic.Int64
	liveConnections atomic.Int64
	count           int
	mu              sync.Mutex
}

func newRenderMetrics() *renderMetrics {
	return &renderMetrics{
		p50: newQuantile(0.50),
		p90: newQuantile(0.90),
		p99: newQuantile(0.99),
	}
}

func (m *renderMetrics) recordLatency(d time.Duration) {
	if !m.mu.TryLock() {
		m.dropped.Add(1)
		return
	}
	defer m.mu.Unlock()
	v := float64(d)
	m.p50.observe(v)
	m.p90.observe(v)
	m.p99.observe(v)
	m.sum += d
	m.max = max(m.max, d)
	m.count++
}

func (m *renderMetrics) snapshot() Metrics {
	m.mu.Lock()
	lat := LatencyMetrics{
		P50: time.Duration(m.p50.value()),
		P90: time.Duration(m.p90.value()),
		P99: time.Duration(m.p99.value()),
		Max: m.max,
	}
	if m.count != 0 {
		lat.Mean = m.sum / time.Duration(m.count)
	}
	m.mu.Unlock()
	lat.Dropped = m.dropped.Load()
	return Metrics{
		Latency:         lat,
		Quanta:          m.quanta.Load(),
		CommandsApplied: m.applied.Load(),
		CommandsFailed:  m.failed.Load(),
		Overruns:        m.overruns.Load(),
		LiveNodes:       int(m.liveNodes.Load()),
		LiveConnections: int(m.liveConnections.Load()),
	}
}
