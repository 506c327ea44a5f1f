package middleware

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/telegraph-dev/telegraph/pkg/server"
	"github.com/telegraph-dev/telegraph/pkg/wire"
)

// Default tracer name for telegraph servers.
const defaultTracerName = "telegraph"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "telegraph").
	TracerName string

	// TracerProvider supplies the tracer.
	// Default: the global provider from otel.GetTracerProvider.
	TracerProvider trace.TracerProvider

	// IncludePath records the packet path as a span attribute.
	// Enabled by default.
	IncludePath bool

	// IncludeRemoteAddr records the peer address as a span attribute.
	// May identify users - disabled by default.
	IncludeRemoteAddr bool

	// Filter determines which packets to trace.
	// Return true to trace the packet, false to skip.
	// If nil, all packets are traced.
	Filter func(p *wire.Packet) bool

	// AttributeExtractor extracts custom attributes from the packet.
	// Called for each traced packet.
	AttributeExtractor func(ctx context.Context, p *wire.Packet) []attribute.KeyValue

	// tracer is the resolved tracer instance.
	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// WithIncludePath enables/disables including the packet path in traces.
func WithIncludePath(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludePath = include
	}
}

// WithIncludeRemoteAddr enables including the peer address in traces.
func WithIncludeRemoteAddr(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludeRemoteAddr = include
	}
}

// WithPacketFilter sets a filter function for packets.
func WithPacketFilter(filter func(p *wire.Packet) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(ctx context.Context, p *wire.Packet) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// defaultOTelConfig returns the default OpenTelemetry configuration.
func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName:  defaultTracerName,
		IncludePath: true,
	}
}

// OpenTelemetry creates middleware that traces every packet.
//
// The middleware:
//   - Creates a server span per packet named after the packet type
//   - Records connection id, request id, packet type and target
//   - Passes the span context to the next handler
//   - Records errors and sets span status
//
// Example:
//
//	srv.Use(middleware.OpenTelemetry(
//	    middleware.WithTracerName("intake"),
//	    middleware.WithPacketFilter(func(p *wire.Packet) bool {
//	        return p.Type != wire.PacketUpdate
//	    }),
//	))
//
// Without WithTracerProvider the global provider is used. Configure it in
// main() before starting the server with otel.SetTracerProvider.
func OpenTelemetry(opts ...OTelOption) server.Middleware {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}

	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	config.tracer = tp.Tracer(config.TracerName)

	return func(next server.Handler) server.Handler {
		return server.HandlerFunc(func(ctx context.Context, w server.PacketWriter, p *wire.Packet) error {
			if config.Filter != nil && !config.Filter(p) {
				return next.HandlePacket(ctx, w, p)
			}

			attrs := []attribute.KeyValue{
				attribute.Int64("telegraph.conn_id", int64(w.ConnID())),
				attribute.Int64("telegraph.req_id", int64(p.ReqID)),
				attribute.String("telegraph.packet_type", typeLabel(p.Type)),
			}
			if p.Target != "" {
				attrs = append(attrs, attribute.String("telegraph.target", p.Target))
			}
			if config.IncludePath && len(p.Path) > 0 {
				attrs = append(attrs, attribute.String("telegraph.path", strings.Join(p.Path, ".")))
			}
			if config.IncludeRemoteAddr {
				if addr := w.RemoteAddr(); addr != nil {
					attrs = append(attrs, attribute.String("net.peer.addr", addr.String()))
				}
			}
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor(ctx, p)...)
			}

			spanCtx, span := config.tracer.Start(
				ctx,
				formatSpanName(p),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			spanCtx = context.WithValue(spanCtx, spanContextKey{}, span)

			err := next.HandlePacket(spanCtx, w, p)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return err
		})
	}
}

// spanContextKey marks contexts created by the OpenTelemetry middleware.
type spanContextKey struct{}

// SpanFromContext returns the span started by the OpenTelemetry middleware
// for the current packet, or nil outside of a traced handler.
//
// Example:
//
//	func handle(ctx context.Context, w server.PacketWriter, p *wire.Packet) error {
//	    if span := middleware.SpanFromContext(ctx); span != nil {
//	        span.SetAttributes(attribute.Int("subscribers", n))
//	    }
//	    return nil
//	}
func SpanFromContext(ctx context.Context) trace.Span {
	if span, ok := ctx.Value(spanContextKey{}).(trace.Span); ok {
		return span
	}
	return nil
}

// formatSpanName creates a span name from the packet type.
func formatSpanName(p *wire.Packet) string {
	return "telegraph." + typeLabel(p.Type)
}
