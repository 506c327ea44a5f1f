// Package middleware provides packet handler middleware for telegraph servers.
//
// This package includes:
//   - OpenTelemetry tracing middleware
//   - Prometheus metrics middleware and a connection collector
//   - Structured logging middleware
//
// Every constructor returns a server.Middleware, so they compose with
// Server.Use or server.Chain:
//
//	srv := server.New(nil)
//	srv.Use(
//	    middleware.Logger(logger),
//	    middleware.OpenTelemetry(),
//	    middleware.Prometheus(),
//	)
//
// # OpenTelemetry Middleware
//
// The OpenTelemetry middleware starts one server span per packet and passes the
// span context to the next handler. Spans carry the connection id, request id,
// packet type and target.
//
//	middleware.OpenTelemetry(
//	    middleware.WithTracerName("intake"),
//	    middleware.WithPacketFilter(func(p *wire.Packet) bool {
//	        return p.Type != wire.PacketUpdate
//	    }),
//	)
//
// # Prometheus Metrics
//
// The Prometheus middleware records per-packet metrics:
//   - telegraph_packets_total: Packets handled by type and status
//   - telegraph_packet_duration_seconds: Handler duration histogram
//   - telegraph_packet_size_bytes: Encoded packet size histogram
//   - telegraph_handler_errors_total: Handler errors by type and category
//
// Connection level counters kept by the server are exported with a collector:
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(middleware.NewConnCollector(srv))
//	srv.Use(middleware.Prometheus(middleware.WithRegistry(reg)))
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package middleware
