package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/telegraph-dev/telegraph/pkg/protocol"
	"github.com/telegraph-dev/telegraph/pkg/wire"
)

const testTimeout = 5 * time.Second

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingHandler keeps every packet it sees.
type recordingHandler struct {
	mu      sync.Mutex
	packets []*wire.Packet
	connIDs []uint64
	notify  chan *wire.Packet
	err     error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{notify: make(chan *wire.Packet, 64)}
}

func (h *recordingHandler) HandlePacket(ctx context.Context, w PacketWriter, p *wire.Packet) error {
	h.mu.Lock()
	h.packets = append(h.packets, p)
	h.connIDs = append(h.connIDs, w.ConnID())
	err := h.err
	h.mu.Unlock()
	h.notify <- p
	return err
}

func (h *recordingHandler) Packets() []*wire.Packet {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*wire.Packet(nil), h.packets...)
}

func (h *recordingHandler) waitPacket(t *testing.T) *wire.Packet {
	t.Helper()
	select {
	case p := <-h.notify:
		return p
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for packet")
		return nil
	}
}

func newTestServer(t *testing.T, cfg *ServerConfig, h Handler) *Server {
	t.Helper()
	srv := New(cfg)
	srv.SetLogger(quietLogger())
	if h != nil {
		srv.SetHandler(h)
	}
	return srv
}

// acceptOne listens on a loopback port and runs AcceptConnection on the first
// stream that arrives.
func acceptOne(t *testing.T, ctx context.Context, srv *Server) (string, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	result := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			result <- err
			return
		}
		result <- srv.AcceptConnection(ctx, conn)
	}()
	return ln.Addr().String(), result
}

func waitResult(t *testing.T, result <-chan error) error {
	t.Helper()
	select {
	case err := <-result:
		return err
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for AcceptConnection to return")
		return nil
	}
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%q) failed: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writePacket(t *testing.T, conn *websocket.Conn, p *wire.Packet) {
	t.Helper()
	data, err := protocol.EncodePacket(p)
	if err != nil {
		t.Fatalf("EncodePacket() error: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Fatalf("WriteMessage() error: %v", err)
	}
}

func closeNormal(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		t.Fatalf("write close failed: %v", err)
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// sliceSource replays frames and then returns err, or io.EOF when err is nil.
type sliceSource struct {
	frames []Frame
	err    error
}

func (s *sliceSource) NextFrame() (Frame, error) {
	if len(s.frames) > 0 {
		f := s.frames[0]
		s.frames = s.frames[1:]
		return f, nil
	}
	if s.err != nil {
		return Frame{}, s.err
	}
	return Frame{}, io.EOF
}

func binaryFrame(t *testing.T, p *wire.Packet) Frame {
	t.Helper()
	data, err := protocol.EncodePacket(p)
	if err != nil {
		t.Fatalf("EncodePacket() error: %v", err)
	}
	return Frame{Kind: MessageBinary, Payload: data}
}

// recordingWriter stands in for the write half of a WebSocket connection.
type recordingWriter struct {
	mu       sync.Mutex
	messages [][]byte
	types    []int
	err      error
}

func (w *recordingWriter) WriteMessage(messageType int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.types = append(w.types, messageType)
	w.messages = append(w.messages, append([]byte(nil), data...))
	return nil
}

func (w *recordingWriter) SetWriteDeadline(time.Time) error { return nil }

func newTestConn(source FrameSource, h Handler, cfg *ConnConfig) *Conn {
	if cfg == nil {
		cfg = DefaultConnConfig()
	}
	return &Conn{
		id:      7,
		source:  source,
		handler: h,
		config:  cfg,
		metrics: NewMetricsCollector(),
		logger:  quietLogger(),
	}
}
