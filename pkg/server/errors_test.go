package server

import (
	"errors"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"ErrHandshakeFailed", ErrHandshakeFailed, "server: handshake failed"},
		{"ErrTransport", ErrTransport, "server: transport error"},
		{"ErrUnexpectedMessage", ErrUnexpectedMessage, "server: unexpected message"},
		{"ErrDecodeFailed", ErrDecodeFailed, "server: decode failed"},
		{"ErrHandlerFailed", ErrHandlerFailed, "server: handler failed"},
		{"ErrConnectionClosed", ErrConnectionClosed, "server: connection closed"},
		{"ErrNoConnection", ErrNoConnection, "server: no connection"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.msg {
				t.Errorf("Error message = %q, want %q", tt.err.Error(), tt.msg)
			}
		})
	}
}

func TestConnError(t *testing.T) {
	cause := errors.New("connection reset")
	err := &ConnError{ConnID: 12, Kind: KindTransport, Err: cause}

	expected := "server: conn 12: transport error: connection reset"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, cause) {
		t.Error("Unwrap should return the cause error")
	}
	if !errors.Is(err, ErrTransport) {
		t.Error("ConnError should match its kind sentinel")
	}
	if errors.Is(err, ErrDecodeFailed) {
		t.Error("ConnError should not match another kind's sentinel")
	}
}

func TestConnErrorWithDetailOnly(t *testing.T) {
	err := &ConnError{ConnID: 3, Kind: KindUnexpectedMessage, Detail: "got text message"}

	expected := "server: conn 3: unexpected message: got text message"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
	if err.Unwrap() != nil {
		t.Error("Unwrap() should be nil without a cause")
	}
}

func TestConnErrorUnknownKind(t *testing.T) {
	err := &ConnError{ConnID: 1, Kind: ErrorKind(99)}
	if err.Error() != "server: conn 1: unknown error" {
		t.Errorf("Error() = %q", err.Error())
	}
	for _, sentinel := range []error{ErrHandshakeFailed, ErrTransport, ErrUnexpectedMessage, ErrDecodeFailed, ErrHandlerFailed} {
		if errors.Is(err, sentinel) {
			t.Errorf("unknown kind matched %v", sentinel)
		}
	}
}

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindHandshakeFailed, "handshake failed"},
		{KindTransport, "transport error"},
		{KindUnexpectedMessage, "unexpected message"},
		{KindDecodeFailed, "decode failed"},
		{KindHandlerFailed, "handler failed"},
		{ErrorKind(0), "unknown error"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("ErrorKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestPanicError(t *testing.T) {
	err := &PanicError{Value: "nil map write"}
	if err.Error() != "server: handler panic: nil map write" {
		t.Errorf("Error() = %q", err.Error())
	}
}
