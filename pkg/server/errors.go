package server

import (
	"errors"
	"fmt"
)

// Sentinel errors. ConnError values match the sentinel of their kind, so
// errors.Is(err, ErrDecodeFailed) works on anything AcceptConnection returns.
var (
	// ErrHandshakeFailed matches connections whose WebSocket upgrade failed.
	ErrHandshakeFailed = errors.New("server: handshake failed")

	// ErrTransport matches connections that failed while reading or writing.
	ErrTransport = errors.New("server: transport error")

	// ErrUnexpectedMessage matches connections closed because of a non-binary message.
	ErrUnexpectedMessage = errors.New("server: unexpected message")

	// ErrDecodeFailed matches connections closed because a payload was not a packet.
	ErrDecodeFailed = errors.New("server: decode failed")

	// ErrHandlerFailed matches connections closed by a handler error under
	// HandlerErrorsClose.
	ErrHandlerFailed = errors.New("server: handler failed")

	// ErrConnectionClosed is returned by WritePacket after the driver has returned.
	ErrConnectionClosed = errors.New("server: connection closed")

	// ErrNoConnection is returned by WritePacket when the connection has no write half.
	ErrNoConnection = errors.New("server: no connection")
)

// ErrorKind classifies a terminal connection error.
type ErrorKind uint8

const (
	KindHandshakeFailed ErrorKind = iota + 1
	KindTransport
	KindUnexpectedMessage
	KindDecodeFailed
	KindHandlerFailed
)

// String returns the phrase used in error messages.
func (k ErrorKind) String() string {
	switch k {
	case KindHandshakeFailed:
		return "handshake failed"
	case KindTransport:
		return "transport error"
	case KindUnexpectedMessage:
		return "unexpected message"
	case KindDecodeFailed:
		return "decode failed"
	case KindHandlerFailed:
		return "handler failed"
	default:
		return "unknown error"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindHandshakeFailed:
		return ErrHandshakeFailed
	case KindTransport:
		return ErrTransport
	case KindUnexpectedMessage:
		return ErrUnexpectedMessage
	case KindDecodeFailed:
		return ErrDecodeFailed
	case KindHandlerFailed:
		return ErrHandlerFailed
	default:
		return nil
	}
}

// ConnError is the terminal error of one connection.
type ConnError struct {
	ConnID uint64
	Kind   ErrorKind
	Detail string // Extra context, e.g. the offending message kind
	Err    error  // Underlying cause, may be nil
}

// Error returns the error message with connection context.
func (e *ConnError) Error() string {
	msg := fmt.Sprintf("server: conn %d: %s", e.ConnID, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ConnError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *ConnError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// PanicError wraps a panic recovered from a packet handler.
type PanicError struct {
	Value any
	Stack []byte
}

// Error returns the error message.
func (e *PanicError) Error() string {
	return fmt.Sprintf("server: handler panic: %v", e.Value)
}
