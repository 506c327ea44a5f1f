package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/telegraph-dev/telegraph/pkg/wire"
)

// PacketWriter is the write half of a connection as seen by handlers.
// WritePacket is safe for concurrent use.
type PacketWriter interface {
	ConnID() uint64
	RemoteAddr() net.Addr
	WritePacket(p *wire.Packet) error
}

// Handler consumes decoded packets. HandlePacket is called once per packet,
// in arrival order, and the next packet is not read until it returns.
type Handler interface {
	HandlePacket(ctx context.Context, w PacketWriter, p *wire.Packet) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, w PacketWriter, p *wire.Packet) error

// HandlePacket calls f(ctx, w, p).
func (f HandlerFunc) HandlePacket(ctx context.Context, w PacketWriter, p *wire.Packet) error {
	return f(ctx, w, p)
}

// Middleware wraps a Handler.
type Middleware func(Handler) Handler

// Chain wraps h with mws. The first middleware is the outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// LogHandler returns a Handler that logs every packet at info level.
// It is the default handler of a new Server.
func LogHandler(logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return HandlerFunc(func(ctx context.Context, w PacketWriter, p *wire.Packet) error {
		attrs := []any{
			"conn_id", w.ConnID(),
			"req_id", p.ReqID,
			"type", p.Type.String(),
		}
		if p.Target != "" {
			attrs = append(attrs, "target", p.Target)
		}
		if len(p.Path) > 0 {
			attrs = append(attrs, "path", strings.Join(p.Path, "."))
		}
		if p.Value != nil {
			attrs = append(attrs, "value", p.Value.String())
		}
		if p.Error != "" {
			attrs = append(attrs, "error", p.Error)
		}
		logger.InfoContext(ctx, "packet received", attrs...)
		return nil
	})
}

// HandlerErrorPolicy decides what a handler error does to its connection.
type HandlerErrorPolicy uint8

const (
	// HandlerErrorsLog logs the error and keeps reading.
	HandlerErrorsLog HandlerErrorPolicy = iota

	// HandlerErrorsClose ends the connection with a KindHandlerFailed error.
	HandlerErrorsClose
)

// String returns the configuration name of the policy.
func (p HandlerErrorPolicy) String() string {
	switch p {
	case HandlerErrorsLog:
		return "log"
	case HandlerErrorsClose:
		return "close"
	default:
		return fmt.Sprintf("HandlerErrorPolicy(%d)", uint8(p))
	}
}

// ParseHandlerErrorPolicy parses "log" or "close". The empty string is "log".
func ParseHandlerErrorPolicy(s string) (HandlerErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "log":
		return HandlerErrorsLog, nil
	case "close":
		return HandlerErrorsClose, nil
	default:
		return 0, fmt.Errorf("server: unknown handler error policy %q", s)
	}
}
