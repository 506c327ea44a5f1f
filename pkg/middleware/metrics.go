package middleware

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/telegraph-dev/telegraph/pkg/server"
	"github.com/telegraph-dev/telegraph/pkg/wire"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "telegraph").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for packet handling duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// defaultMetricsConfig returns the default metrics configuration.
func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "telegraph",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// metrics holds the per-packet Prometheus metrics.
type metrics struct {
	packetsTotal   *prometheus.CounterVec
	packetDuration *prometheus.HistogramVec
	packetSize     *prometheus.HistogramVec
	handlerErrors  *prometheus.CounterVec
}

// metricsKey identifies one set of collectors. Collector names are built
// from namespace and subsystem, so those plus the registry decide whether a
// second registration would collide.
type metricsKey struct {
	registry  prometheus.Registerer
	namespace string
	subsystem string
}

// registered caches metrics per key, since registering the same collectors
// twice panics.
var (
	registeredMu sync.Mutex
	registered   = make(map[metricsKey]*metrics)
)

// initMetrics registers the packet metrics with config.Registry.
func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		packetsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "packets_total",
			Help:        "Total number of packets handled",
			ConstLabels: config.ConstLabels,
		}, []string{"type", "status"}),

		packetDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "packet_duration_seconds",
			Help:        "Packet handling duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"type"}),

		packetSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "packet_size_bytes",
			Help:        "Encoded size of handled packets in bytes",
			ConstLabels: config.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(16, 4, 8), // 16B to 256KB
		}, []string{"type"}),

		handlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "handler_errors_total",
			Help:        "Total number of packet handler errors",
			ConstLabels: config.ConstLabels,
		}, []string{"type", "error_type"}),
	}
}

func metricsFor(config MetricsConfig) *metrics {
	registeredMu.Lock()
	defer registeredMu.Unlock()

	key := metricsKey{config.Registry, config.Namespace, config.Subsystem}
	m, ok := registered[key]
	if !ok {
		m = initMetrics(config)
		registered[key] = m
	}
	return m
}

// Prometheus creates middleware that collects Prometheus metrics for every
// packet handled.
//
// Metrics collected:
//   - telegraph_packets_total: Counter of packets by type and status
//   - telegraph_packet_duration_seconds: Histogram of handler duration by type
//   - telegraph_packet_size_bytes: Histogram of encoded packet size by type
//   - telegraph_handler_errors_total: Counter of handler errors by type and error type
//
// Metrics are registered once per registry, namespace and subsystem. Later
// calls with the same three share the first registration, including its
// const labels and buckets.
//
// Example:
//
//	srv := server.New(nil)
//	srv.Use(middleware.Prometheus(middleware.WithNamespace("intake")))
//
//	// Expose metrics endpoint
//	http.Handle("/metrics", promhttp.Handler())
func Prometheus(opts ...MetricsOption) server.Middleware {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	m := metricsFor(config)

	return func(next server.Handler) server.Handler {
		return server.HandlerFunc(func(ctx context.Context, w server.PacketWriter, p *wire.Packet) error {
			typ := typeLabel(p.Type)

			start := time.Now()
			err := next.HandlePacket(ctx, w, p)
			m.packetDuration.WithLabelValues(typ).Observe(time.Since(start).Seconds())
			m.packetSize.WithLabelValues(typ).Observe(float64(p.Size()))

			status := "success"
			if err != nil {
				status = "error"
				m.handlerErrors.WithLabelValues(typ, categorizeError(err)).Inc()
			}
			m.packetsTotal.WithLabelValues(typ, status).Inc()

			return err
		})
	}
}

// categorizeError returns a low-cardinality category for err.
func categorizeError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, server.ErrConnectionClosed):
		return "closed"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "not found"), strings.Contains(msg, "no such"):
		return "not_found"
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "forbidden"):
		return "forbidden"
	case strings.Contains(msg, "invalid"), strings.Contains(msg, "validation"):
		return "validation"
	default:
		return "internal"
	}
}

// typeLabel names a packet type for metric labels and span names. Types
// outside the known enum share one label to bound cardinality.
func typeLabel(t wire.PacketType) string {
	if t < wire.PacketUnspecified || t > wire.PacketUnsubscribe {
		return "unknown"
	}
	return t.String()
}
