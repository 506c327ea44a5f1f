package server

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gorilla/websocket"
)

// MessageKind is the kind of a WebSocket message seen by the driver.
type MessageKind uint8

const (
	MessageBinary MessageKind = iota + 1
	MessageText
	MessagePing
	MessagePong
	MessageClose
)

// String returns the lower-case name of the message kind.
func (k MessageKind) String() string {
	switch k {
	case MessageBinary:
		return "binary"
	case MessageText:
		return "text"
	case MessagePing:
		return "ping"
	case MessagePong:
		return "pong"
	case MessageClose:
		return "close"
	default:
		return fmt.Sprintf("MessageKind(%d)", uint8(k))
	}
}

// Frame is one complete WebSocket message.
type Frame struct {
	Kind    MessageKind
	Payload []byte
}

// FrameSource yields the messages of one connection in arrival order.
//
// NextFrame returns io.EOF once the peer has closed cleanly. Any other error
// is a transport failure.
type FrameSource interface {
	NextFrame() (Frame, error)
}

// controlFrameError is returned from gorilla's control handlers when control
// frames are delivered to the driver.
type controlFrameError struct {
	kind MessageKind
}

func (e controlFrameError) Error() string {
	return "websocket: " + e.kind.String() + " frame"
}

// wsFrameSource reads frames from a gorilla connection.
type wsFrameSource struct {
	conn        *websocket.Conn
	readTimeout time.Duration
}

func newFrameSource(conn *websocket.Conn, cfg *ConnConfig) *wsFrameSource {
	fs := &wsFrameSource{conn: conn, readTimeout: cfg.ReadTimeout}
	if cfg.StrictControlFrames {
		conn.SetPingHandler(func(string) error {
			return controlFrameError{kind: MessagePing}
		})
		conn.SetPongHandler(func(string) error {
			return controlFrameError{kind: MessagePong}
		})
	}
	return fs
}

// NextFrame implements FrameSource.
func (fs *wsFrameSource) NextFrame() (Frame, error) {
	if fs.readTimeout > 0 {
		if err := fs.conn.SetReadDeadline(time.Now().Add(fs.readTimeout)); err != nil {
			return Frame{}, err
		}
	}

	msgType, data, err := fs.conn.ReadMessage()
	if err != nil {
		var cf controlFrameError
		if errors.As(err, &cf) {
			return Frame{Kind: cf.kind}, nil
		}
		if isCleanClose(err) {
			return Frame{}, io.EOF
		}
		return Frame{}, err
	}

	switch msgType {
	case websocket.BinaryMessage:
		return Frame{Kind: MessageBinary, Payload: data}, nil
	case websocket.TextMessage:
		return Frame{Kind: MessageText, Payload: data}, nil
	default:
		return Frame{}, fmt.Errorf("websocket: unknown message type %d", msgType)
	}
}

// isCleanClose reports whether err is a close frame that ends the stream
// normally. Every other close code is a transport failure.
func isCleanClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
