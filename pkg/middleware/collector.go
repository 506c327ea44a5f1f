package middleware

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/telegraph-dev/telegraph/pkg/server"
)

// MetricsSource is anything that can report connection metrics.
// *server.Server implements it.
type MetricsSource interface {
	Metrics() *server.ServerMetrics
}

// ConnCollector exports server connection counters to Prometheus.
// Values are read from the source on every scrape.
type ConnCollector struct {
	source MetricsSource

	activeConns   *prometheus.Desc
	peakConns     *prometheus.Desc
	connsTotal    *prometheus.Desc
	connErrors    *prometheus.Desc
	cleanCloses   *prometheus.Desc
	framesTotal   *prometheus.Desc
	bytesReceived *prometheus.Desc
	packetsSent   *prometheus.Desc
	bytesSent     *prometheus.Desc
	panicsTotal   *prometheus.Desc
	writeErrors   *prometheus.Desc
}

// NewConnCollector returns a collector reading from source. Namespace,
// Subsystem and ConstLabels options apply; other options are ignored.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(middleware.NewConnCollector(srv))
func NewConnCollector(source MetricsSource, opts ...MetricsOption) *ConnCollector {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(config.Namespace, config.Subsystem, name),
			help, labels, config.ConstLabels,
		)
	}

	return &ConnCollector{
		source:        source,
		activeConns:   desc("connections_active", "Number of open connections"),
		peakConns:     desc("connections_peak", "Highest number of simultaneously open connections"),
		connsTotal:    desc("connections_total", "Total number of connections that completed a handshake"),
		connErrors:    desc("connection_errors_total", "Total connections ended by an error, by kind", "kind"),
		cleanCloses:   desc("connection_clean_closes_total", "Total connections closed cleanly by the peer"),
		framesTotal:   desc("frames_received_total", "Total binary frames received"),
		bytesReceived: desc("received_bytes_total", "Total payload bytes received"),
		packetsSent:   desc("packets_sent_total", "Total packets written to peers"),
		bytesSent:     desc("sent_bytes_total", "Total payload bytes written to peers"),
		panicsTotal:   desc("handler_panics_total", "Total recovered handler panics"),
		writeErrors:   desc("write_errors_total", "Total failed packet writes"),
	}
}

// Describe implements prometheus.Collector.
func (c *ConnCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeConns
	ch <- c.peakConns
	ch <- c.connsTotal
	ch <- c.connErrors
	ch <- c.cleanCloses
	ch <- c.framesTotal
	ch <- c.bytesReceived
	ch <- c.packetsSent
	ch <- c.bytesSent
	ch <- c.panicsTotal
	ch <- c.writeErrors
}

// Collect implements prometheus.Collector.
func (c *ConnCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.source.Metrics()

	gauge := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), labels...)
	}
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	gauge(c.activeConns, m.ActiveConns)
	gauge(c.peakConns, m.PeakConns)
	counter(c.connsTotal, m.TotalConns)
	counter(c.cleanCloses, m.CleanCloses)
	counter(c.framesTotal, m.FramesReceived)
	counter(c.bytesReceived, m.BytesReceived)
	counter(c.packetsSent, m.PacketsSent)
	counter(c.bytesSent, m.BytesSent)
	counter(c.panicsTotal, m.HandlerPanics)
	counter(c.writeErrors, m.WriteErrors)

	counter(c.connErrors, m.HandshakeFailures, "handshake")
	counter(c.connErrors, m.TransportErrors, "transport")
	counter(c.connErrors, m.UnexpectedMessages, "unexpected_message")
	counter(c.connErrors, m.DecodeFailures, "decode")
	counter(c.connErrors, m.HandlerFailures, "handler")
}
