package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/telegraph-dev/telegraph/pkg/protocol"
	"github.com/telegraph-dev/telegraph/pkg/wire"
)

// frameWriter is the part of *websocket.Conn used for outgoing packets.
type frameWriter interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
}

// Conn drives one upgraded connection: it reads frames, decodes them into
// packets and hands them to the handler one at a time.
type Conn struct {
	id     uint64
	remote net.Addr
	source FrameSource
	out    frameWriter

	writeMu sync.Mutex
	closed  atomic.Bool

	handler Handler
	config  *ConnConfig
	metrics *MetricsCollector
	logger  *slog.Logger
}

// ConnID implements PacketWriter.
func (c *Conn) ConnID() uint64 {
	return c.id
}

// RemoteAddr implements PacketWriter.
func (c *Conn) RemoteAddr() net.Addr {
	return c.remote
}

// WritePacket encodes p and sends it as one binary message.
func (c *Conn) WritePacket(p *wire.Packet) error {
	if c.out == nil {
		return ErrNoConnection
	}
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	data, err := protocol.EncodePacket(p)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		if err := c.out.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			c.metrics.RecordWriteError()
			return err
		}
	}
	if err := c.out.WriteMessage(websocket.BinaryMessage, data); err != nil {
		c.metrics.RecordWriteError()
		return err
	}
	c.metrics.RecordPacketSent(len(data))
	return nil
}

// run reads until the stream ends. It returns nil on a clean close.
func (c *Conn) run(ctx context.Context) error {
	defer c.closed.Store(true)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := c.source.NextFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.logger.Debug("peer closed connection")
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return c.fail(KindTransport, "", err)
		}

		if frame.Kind != MessageBinary {
			return c.fail(KindUnexpectedMessage, "got "+frame.Kind.String()+" message", nil)
		}
		c.metrics.RecordFrameReceived(len(frame.Payload))

		p, err := protocol.DecodePacket(frame.Payload)
		if err != nil {
			return c.fail(KindDecodeFailed, "", err)
		}

		if err := c.dispatch(ctx, p); err != nil {
			if c.config.HandlerErrors == HandlerErrorsClose {
				return c.fail(KindHandlerFailed, p.Type.String(), err)
			}
			c.logger.Warn("handler error",
				"req_id", p.ReqID,
				"type", p.Type.String(),
				"error", err)
		}
	}
}

// dispatch runs the handler for one packet, converting a panic into an error.
func (c *Conn) dispatch(ctx context.Context, p *wire.Packet) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			c.logger.Error("handler panic",
				"req_id", p.ReqID,
				"type", p.Type.String(),
				"panic", r,
				"stack", string(stack))
			c.metrics.RecordHandlerPanic()
			err = &PanicError{Value: r, Stack: stack}
		}
		c.metrics.RecordDispatch(time.Since(start), err)
	}()

	return c.handler.HandlePacket(ctx, c, p)
}

func (c *Conn) fail(kind ErrorKind, detail string, cause error) error {
	c.metrics.RecordConnError(kind)
	return &ConnError{ConnID: c.id, Kind: kind, Detail: detail, Err: cause}
}
