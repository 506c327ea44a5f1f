package protocol

import (
	"errors"
	"fmt"
)

// Codec errors.
var (
	// ErrSizeMismatch is returned by Encode when a message marshals to a
	// different length than its Size reported.
	ErrSizeMismatch = errors.New("protocol: encoded size does not match Size()")

	// ErrPacketTooLarge is returned when a payload exceeds HardMaxPacketSize.
	ErrPacketTooLarge = errors.New("protocol: packet exceeds size limit")
)

// DecodeError reports a payload that could not be parsed as a packet.
type DecodeError struct {
	Len int   // Length of the rejected payload
	Err error // Underlying parser error
}

// Error returns the error message.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: decode packet (%d bytes): %v", e.Len, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
