package server

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// maxLatencySamples bounds the dispatch latency window.
const maxLatencySamples = 1000

// ServerMetrics is a point-in-time view of server counters.
type ServerMetrics struct {
	// Connections
	ActiveConns int64
	TotalConns  int64
	ClosedConns int64
	PeakConns   int64
	CleanCloses int64

	// Packets
	FramesReceived    int64
	PacketsDispatched int64
	PacketsSent       int64

	// Network
	BytesReceived int64
	BytesSent     int64

	// Terminal errors, by kind
	HandshakeFailures  int64
	TransportErrors    int64
	UnexpectedMessages int64
	DecodeFailures     int64
	HandlerFailures    int64

	// Handler outcomes
	HandlerErrors int64
	HandlerPanics int64
	WriteErrors   int64

	// Dispatch latency (microseconds)
	DispatchLatencyP50 int64
	DispatchLatencyP99 int64

	// Timestamp
	CollectedAt time.Time
}

// MetricsCollector collects and aggregates metrics over time.
// All methods are safe for concurrent use.
type MetricsCollector struct {
	// Connections
	activeConns atomic.Int64
	totalConns  atomic.Int64
	closedConns atomic.Int64
	peakConns   atomic.Int64
	cleanCloses atomic.Int64

	// Counters
	framesReceived    atomic.Int64
	packetsDispatched atomic.Int64
	packetsSent       atomic.Int64
	bytesReceived     atomic.Int64
	bytesSent         atomic.Int64
	handlerErrors     atomic.Int64
	handlerPanics     atomic.Int64
	writeErrors       atomic.Int64

	// Indexed by ErrorKind
	connErrors [KindHandlerFailed + 1]atomic.Int64

	latencyMu sync.Mutex
	latencies []int64
}

// NewMetricsCollector creates a new MetricsCollector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		latencies: make([]int64, 0, maxLatencySamples),
	}
}

// RecordConnOpened records an accepted connection.
func (m *MetricsCollector) RecordConnOpened() {
	m.totalConns.Add(1)
	active := m.activeConns.Add(1)
	for {
		peak := m.peakConns.Load()
		if active <= peak || m.peakConns.CompareAndSwap(peak, active) {
			return
		}
	}
}

// RecordConnClosed records the end of a connection. clean is true when the
// driver returned without error.
func (m *MetricsCollector) RecordConnClosed(clean bool) {
	m.activeConns.Add(-1)
	m.closedConns.Add(1)
	if clean {
		m.cleanCloses.Add(1)
	}
}

// RecordConnError records a terminal connection error.
func (m *MetricsCollector) RecordConnError(kind ErrorKind) {
	if int(kind) < len(m.connErrors) {
		m.connErrors[kind].Add(1)
	}
}

// RecordFrameReceived records a binary frame of n bytes.
func (m *MetricsCollector) RecordFrameReceived(n int) {
	m.framesReceived.Add(1)
	m.bytesReceived.Add(int64(n))
}

// RecordPacketSent records an outgoing packet of n bytes.
func (m *MetricsCollector) RecordPacketSent(n int) {
	m.packetsSent.Add(1)
	m.bytesSent.Add(int64(n))
}

// RecordDispatch records one handler invocation.
func (m *MetricsCollector) RecordDispatch(d time.Duration, err error) {
	m.packetsDispatched.Add(1)
	if err != nil {
		m.handlerErrors.Add(1)
	}

	m.latencyMu.Lock()
	defer m.latencyMu.Unlock()

	// Keep only recent samples
	if len(m.latencies) >= maxLatencySamples {
		n := copy(m.latencies, m.latencies[maxLatencySamples/2:])
		m.latencies = m.latencies[:n]
	}
	m.latencies = append(m.latencies, d.Microseconds())
}

// RecordHandlerPanic records a recovered handler panic.
func (m *MetricsCollector) RecordHandlerPanic() {
	m.handlerPanics.Add(1)
}

// RecordWriteError records a failed packet write.
func (m *MetricsCollector) RecordWriteError() {
	m.writeErrors.Add(1)
}

// ActiveConns returns the number of open connections.
func (m *MetricsCollector) ActiveConns() int64 {
	return m.activeConns.Load()
}

// Snapshot returns current metrics.
func (m *MetricsCollector) Snapshot() *ServerMetrics {
	metrics := &ServerMetrics{
		ActiveConns:        m.activeConns.Load(),
		TotalConns:         m.totalConns.Load(),
		ClosedConns:        m.closedConns.Load(),
		PeakConns:          m.peakConns.Load(),
		CleanCloses:        m.cleanCloses.Load(),
		FramesReceived:     m.framesReceived.Load(),
		PacketsDispatched:  m.packetsDispatched.Load(),
		PacketsSent:        m.packetsSent.Load(),
		BytesReceived:      m.bytesReceived.Load(),
		BytesSent:          m.bytesSent.Load(),
		HandshakeFailures:  m.connErrors[KindHandshakeFailed].Load(),
		TransportErrors:    m.connErrors[KindTransport].Load(),
		UnexpectedMessages: m.connErrors[KindUnexpectedMessage].Load(),
		DecodeFailures:     m.connErrors[KindDecodeFailed].Load(),
		HandlerFailures:    m.connErrors[KindHandlerFailed].Load(),
		HandlerErrors:      m.handlerErrors.Load(),
		HandlerPanics:      m.handlerPanics.Load(),
		WriteErrors:        m.writeErrors.Load(),
		CollectedAt:        time.Now(),
	}

	metrics.DispatchLatencyP50, metrics.DispatchLatencyP99 = m.latencyPercentiles()

	return metrics
}

// latencyPercentiles calculates P50 and P99 latencies.
func (m *MetricsCollector) latencyPercentiles() (p50, p99 int64) {
	m.latencyMu.Lock()
	sorted := slices.Clone(m.latencies)
	m.latencyMu.Unlock()

	n := len(sorted)
	if n == 0 {
		return 0, 0
	}
	slices.Sort(sorted)

	return sorted[n/2], sorted[(n*99)/100]
}

// Reset resets all counters except the active connection gauge.
func (m *MetricsCollector) Reset() {
	m.totalConns.Store(0)
	m.closedConns.Store(0)
	m.peakConns.Store(m.activeConns.Load())
	m.cleanCloses.Store(0)
	m.framesReceived.Store(0)
	m.packetsDispatched.Store(0)
	m.packetsSent.Store(0)
	m.bytesReceived.Store(0)
	m.bytesSent.Store(0)
	m.handlerErrors.Store(0)
	m.handlerPanics.Store(0)
	m.writeErrors.Store(0)
	for i := range m.connErrors {
		m.connErrors[i].Store(0)
	}

	m.latencyMu.Lock()
	m.latencies = m.latencies[:0]
	m.latencyMu.Unlock()
}
