package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/telegraph-dev/telegraph/pkg/protocol"
	"github.com/telegraph-dev/telegraph/pkg/wire"
)

func TestNewFillsDefaults(t *testing.T) {
	srv := New(&ServerConfig{})
	cfg := srv.Config()
	defaults := DefaultServerConfig()

	if cfg.Address != defaults.Address {
		t.Errorf("Address = %q, want %q", cfg.Address, defaults.Address)
	}
	if cfg.ReadBufferSize != defaults.ReadBufferSize || cfg.WriteBufferSize != defaults.WriteBufferSize {
		t.Errorf("buffer sizes = %d/%d, want defaults", cfg.ReadBufferSize, cfg.WriteBufferSize)
	}
	if cfg.CheckOrigin == nil {
		t.Error("CheckOrigin should default to SameOriginCheck")
	}
	if cfg.ConnConfig == nil {
		t.Fatal("ConnConfig should be set")
	}
	if cfg.ConnConfig.MaxMessageSize != protocol.DefaultMaxPacketSize {
		t.Errorf("MaxMessageSize = %d, want %d", cfg.ConnConfig.MaxMessageSize, protocol.DefaultMaxPacketSize)
	}
	if cfg.ConnConfig.HandshakeTimeout != 10*time.Second {
		t.Errorf("HandshakeTimeout = %v, want 10s", cfg.ConnConfig.HandshakeTimeout)
	}
}

func TestNewClampsMessageSize(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.ConnConfig.MaxMessageSize = 1 << 40
	srv := New(cfg)
	if got := srv.Config().ConnConfig.MaxMessageSize; got != protocol.HardMaxPacketSize {
		t.Errorf("MaxMessageSize = %d, want %d", got, protocol.HardMaxPacketSize)
	}
}

func TestNewNilConfig(t *testing.T) {
	srv := New(nil)
	if srv.Config() == nil || srv.Config().ConnConfig == nil {
		t.Fatal("New(nil) should use DefaultServerConfig")
	}
	if srv.Logger() == nil {
		t.Error("Logger() should not be nil")
	}
	if srv.Handler() != srv {
		t.Error("Handler() should return the server")
	}
}

// lockedBuffer is a bytes.Buffer safe for concurrent log writes.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSetLoggerWhileServing(t *testing.T) {
	h := newRecordingHandler()
	srv := newTestServer(t, nil, h)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				srv.SetLogger(quietLogger())
			}
		}
	}()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	for i := 0; i < 5; i++ {
		conn := dialWS(t, url)
		writePacket(t, conn, &wire.Packet{ReqID: uint32(i + 1)})
		h.waitPacket(t)
		closeNormal(t, conn)
	}
	close(done)
	wg.Wait()

	var out lockedBuffer
	srv.SetLogger(slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug})))
	conn := dialWS(t, url)
	writePacket(t, conn, &wire.Packet{ReqID: 99})
	h.waitPacket(t)
	closeNormal(t, conn)

	eventually(t, func() bool { return strings.Contains(out.String(), "connection opened") })
}

func TestServeHTTP(t *testing.T) {
	h := newRecordingHandler()
	srv := newTestServer(t, nil, h)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialWS(t, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws")
	writePacket(t, conn, &wire.Packet{ReqID: 5, Type: wire.PacketFetchNS})
	if got := h.waitPacket(t); got.ReqID != 5 || got.Type != wire.PacketFetchNS {
		t.Errorf("handler got %+v, want req 5 FetchNS", got)
	}
	closeNormal(t, conn)

	eventually(t, func() bool { return srv.Metrics().CleanCloses == 1 })
	m := srv.Metrics()
	if m.ActiveConns != 0 || m.TotalConns != 1 || m.PacketsDispatched != 1 {
		t.Errorf("metrics = %+v, want one finished connection with one packet", m)
	}
}

func TestServeHTTPRejectsPlainRequest(t *testing.T) {
	srv := newTestServer(t, nil, newRecordingHandler())
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if got := srv.Metrics().HandshakeFailures; got != 1 {
		t.Errorf("HandshakeFailures = %d, want 1", got)
	}
}

func TestServeHTTPRejectsCrossOrigin(t *testing.T) {
	srv := newTestServer(t, nil, newRecordingHandler())
	ts := httptest.NewServer(srv)
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	req.Header.Set("Origin", "http://evil.example")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}

func TestServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}

	h := newRecordingHandler()
	srv := newTestServer(t, nil, h)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()

	const clients = 3
	for i := 0; i < clients; i++ {
		conn := dialWS(t, "ws://"+ln.Addr().String()+"/")
		writePacket(t, conn, &wire.Packet{ReqID: uint32(i + 1)})
	}
	for i := 0; i < clients; i++ {
		h.waitPacket(t)
	}
	eventually(t, func() bool { return srv.Metrics().ActiveConns == clients })

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("Serve() = %v, want nil", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("Serve did not return after cancel")
	}

	if got := srv.Metrics().ActiveConns; got != 0 {
		t.Errorf("ActiveConns = %d after Serve returned, want 0", got)
	}

	ids := make(map[uint64]bool)
	h.mu.Lock()
	for _, id := range h.connIDs {
		ids[id] = true
	}
	h.mu.Unlock()
	if len(ids) != clients {
		t.Errorf("distinct conn ids = %d, want %d", len(ids), clients)
	}
}

func TestServeAcceptError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	ln.Close()

	srv := newTestServer(t, nil, nil)
	err = srv.Serve(context.Background(), ln)
	if !errors.Is(err, net.ErrClosed) {
		t.Fatalf("Serve() = %v, want net.ErrClosed", err)
	}
}

func TestListenAndServeBadAddress(t *testing.T) {
	cfg := DefaultServerConfig().WithAddress("256.0.0.1:bad")
	srv := newTestServer(t, cfg, nil)
	if err := srv.ListenAndServe(context.Background()); err == nil {
		t.Fatal("ListenAndServe() succeeded, want error")
	}
}

func TestUseWrapsHandler(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}
	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return HandlerFunc(func(ctx context.Context, w PacketWriter, p *wire.Packet) error {
				record(name)
				return next.HandlePacket(ctx, w, p)
			})
		}
	}

	h := newRecordingHandler()
	srv := newTestServer(t, nil, h)
	srv.Use(mw("outer"), mw("inner"))

	addr, result := acceptOne(t, context.Background(), srv)
	conn := dialWS(t, "ws://"+addr+"/")
	writePacket(t, conn, &wire.Packet{ReqID: 1})
	h.waitPacket(t)
	closeNormal(t, conn)
	if err := waitResult(t, result); err != nil {
		t.Fatalf("AcceptConnection() = %v, want nil", err)
	}

	if strings.Join(order, ",") != "outer,inner" {
		t.Errorf("middleware order = %v, want [outer inner]", order)
	}
}

func TestNextBackoff(t *testing.T) {
	d := nextBackoff(0)
	if d != 5*time.Millisecond {
		t.Errorf("first backoff = %v, want 5ms", d)
	}
	for i := 0; i < 20; i++ {
		d = nextBackoff(d)
	}
	if d != time.Second {
		t.Errorf("capped backoff = %v, want 1s", d)
	}
}
