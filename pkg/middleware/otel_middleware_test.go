package middleware

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/telegraph-dev/telegraph/pkg/server"
	"github.com/telegraph-dev/telegraph/pkg/wire"
)

// recordingProvider hands out a tracer that keeps every span it starts.
type recordingProvider struct {
	embedded.TracerProvider
	tracer *recordingTracer
}

func newRecordingProvider() *recordingProvider {
	return &recordingProvider{tracer: &recordingTracer{}}
}

func (p *recordingProvider) Tracer(name string, _ ...trace.TracerOption) trace.Tracer {
	p.tracer.name = name
	return p.tracer
}

type recordingTracer struct {
	embedded.Tracer
	name  string
	mu    sync.Mutex
	spans []*recordingSpan
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	s := &recordingSpan{name: name, kind: cfg.SpanKind(), attrs: cfg.Attributes()}
	t.mu.Lock()
	t.spans = append(t.spans, s)
	t.mu.Unlock()
	return trace.ContextWithSpan(ctx, s), s
}

func (t *recordingTracer) Spans() []*recordingSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*recordingSpan(nil), t.spans...)
}

type recordingSpan struct {
	noop.Span
	name   string
	kind   trace.SpanKind
	attrs  []attribute.KeyValue
	status codes.Code
	errs   []error
	ended  bool
}

func (s *recordingSpan) End(...trace.SpanEndOption)                    { s.ended = true }
func (s *recordingSpan) SetStatus(code codes.Code, _ string)           { s.status = code }
func (s *recordingSpan) RecordError(err error, _ ...trace.EventOption) { s.errs = append(s.errs, err) }

func (s *recordingSpan) attr(key string) (attribute.Value, bool) {
	for _, kv := range s.attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestOpenTelemetryMiddleware_RecordsSpan(t *testing.T) {
	tp := newRecordingProvider()
	mw := OpenTelemetry(
		WithTracerProvider(tp),
		WithTracerName("intake"),
		WithIncludeRemoteAddr(true),
		WithAttributeExtractor(func(context.Context, *wire.Packet) []attribute.KeyValue {
			return []attribute.KeyValue{attribute.String("test.attr", "ok")}
		}),
	)

	var sawSpan bool
	h := mw(server.HandlerFunc(func(ctx context.Context, w server.PacketWriter, p *wire.Packet) error {
		sawSpan = SpanFromContext(ctx) != nil
		return nil
	}))

	w := stubWriter{id: 4, remote: &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 5000}}
	p := &wire.Packet{ReqID: 11, Type: wire.PacketSubscribe, Target: "live", Path: []string{"root", "var"}}
	if err := h.HandlePacket(context.Background(), w, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !sawSpan {
		t.Error("expected SpanFromContext to return a span during execution")
	}
	if tp.tracer.name != "intake" {
		t.Errorf("tracer name = %q, want %q", tp.tracer.name, "intake")
	}

	spans := tp.tracer.Spans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	s := spans[0]
	if s.name != "telegraph.Subscribe" {
		t.Errorf("span name = %q, want %q", s.name, "telegraph.Subscribe")
	}
	if s.kind != trace.SpanKindServer {
		t.Errorf("span kind = %v, want server", s.kind)
	}
	if !s.ended || s.status != codes.Ok {
		t.Errorf("span ended=%v status=%v, want ended with Ok", s.ended, s.status)
	}

	want := map[string]string{
		"telegraph.packet_type": "Subscribe",
		"telegraph.target":      "live",
		"telegraph.path":        "root.var",
		"net.peer.addr":         "10.0.0.1:5000",
		"test.attr":             "ok",
	}
	for key, val := range want {
		got, ok := s.attr(key)
		if !ok || got.AsString() != val {
			t.Errorf("attribute %s = %v (present %v), want %q", key, got.Emit(), ok, val)
		}
	}
	if v, ok := s.attr("telegraph.req_id"); !ok || v.AsInt64() != 11 {
		t.Errorf("telegraph.req_id = %v, want 11", v.Emit())
	}
	if v, ok := s.attr("telegraph.conn_id"); !ok || v.AsInt64() != 4 {
		t.Errorf("telegraph.conn_id = %v, want 4", v.Emit())
	}
}

func TestOpenTelemetryMiddleware_ErrorSetsStatus(t *testing.T) {
	tp := newRecordingProvider()
	wantErr := errors.New("boom")
	h := OpenTelemetry(WithTracerProvider(tp))(errHandler(wantErr))

	err := h.HandlePacket(context.Background(), stubWriter{}, &wire.Packet{Type: wire.PacketCall})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected error %v, got %v", wantErr, err)
	}

	spans := tp.tracer.Spans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].status != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].status)
	}
	if len(spans[0].errs) != 1 || !errors.Is(spans[0].errs[0], wantErr) {
		t.Errorf("recorded errors = %v, want [%v]", spans[0].errs, wantErr)
	}
}

func TestOpenTelemetryMiddleware_FilterSkipsTracing(t *testing.T) {
	tp := newRecordingProvider()
	mw := OpenTelemetry(
		WithTracerProvider(tp),
		WithPacketFilter(func(p *wire.Packet) bool { return p.Type != wire.PacketUpdate }),
	)

	nextCalled := false
	h := mw(server.HandlerFunc(func(ctx context.Context, w server.PacketWriter, p *wire.Packet) error {
		nextCalled = true
		if SpanFromContext(ctx) != nil {
			t.Error("expected no span for filtered packet")
		}
		return nil
	}))

	if err := h.HandlePacket(context.Background(), stubWriter{}, &wire.Packet{Type: wire.PacketUpdate}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !nextCalled {
		t.Fatal("expected next handler to be called")
	}
	if n := len(tp.tracer.Spans()); n != 0 {
		t.Errorf("spans = %d, want 0", n)
	}
}

func TestOpenTelemetryMiddleware_PathExcluded(t *testing.T) {
	tp := newRecordingProvider()
	h := OpenTelemetry(WithTracerProvider(tp), WithIncludePath(false))(okHandler())

	if err := h.HandlePacket(context.Background(), stubWriter{}, &wire.Packet{Path: []string{"a"}}); err != nil {
		t.Fatal(err)
	}
	if _, ok := tp.tracer.Spans()[0].attr("telegraph.path"); ok {
		t.Error("telegraph.path should be omitted")
	}
	if _, ok := tp.tracer.Spans()[0].attr("net.peer.addr"); ok {
		t.Error("net.peer.addr should be omitted by default")
	}
}

func TestOpenTelemetryMiddleware_GlobalProvider(t *testing.T) {
	h := OpenTelemetry()(okHandler())
	if err := h.HandlePacket(context.Background(), stubWriter{}, &wire.Packet{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSpanFromContextOutsideHandler(t *testing.T) {
	if SpanFromContext(context.Background()) != nil {
		t.Error("expected nil span outside a traced handler")
	}
}
