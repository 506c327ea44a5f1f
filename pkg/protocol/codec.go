package protocol

import (
	"fmt"

	"github.com/telegraph-dev/telegraph/pkg/wire"
)

// Message is a value that knows its encoded length and can append its
// encoding to a buffer.
type Message interface {
	Size() int
	MarshalAppend(b []byte) ([]byte, error)
}

// Unmarshaler is a value that can replace its contents with a decoding of b.
type Unmarshaler interface {
	Unmarshal(b []byte) error
}

// Encode serializes m into a buffer pre-sized to m.Size().
func Encode(m Message) ([]byte, error) {
	n := m.Size()
	buf := make([]byte, 0, n)
	out, err := m.MarshalAppend(buf)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode: %w", err)
	}
	if len(out) != n {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSizeMismatch, len(out), n)
	}
	return out, nil
}

// Decode parses b into m. Errors are returned as *DecodeError.
func Decode(b []byte, m Unmarshaler) error {
	if len(b) > HardMaxPacketSize {
		return &DecodeError{Len: len(b), Err: ErrPacketTooLarge}
	}
	if err := m.Unmarshal(b); err != nil {
		return &DecodeError{Len: len(b), Err: err}
	}
	return nil
}

// EncodePacket is Encode specialized to packets.
func EncodePacket(p *wire.Packet) ([]byte, error) {
	return Encode(p)
}

// DecodePacket parses one frame payload into a new packet.
func DecodePacket(b []byte) (*wire.Packet, error) {
	p := &wire.Packet{}
	if err := Decode(b, p); err != nil {
		return nil, err
	}
	return p, nil
}
