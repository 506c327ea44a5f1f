package wire

import (
	"errors"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the Packet message.
const (
	packetFieldReqID       protowire.Number = 1
	packetFieldType        protowire.Number = 2
	packetFieldTarget      protowire.Number = 3
	packetFieldPath        protowire.Number = 4
	packetFieldValue       protowire.Number = 5
	packetFieldError       protowire.Number = 6
	packetFieldMinInterval protowire.Number = 7
	packetFieldMaxInterval protowire.Number = 8
)

// ErrInvalidUTF8 is returned when a string field is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("wire: string field contains invalid UTF-8")

// Packet is the application envelope carried in each binary frame.
type Packet struct {
	// ReqID correlates a request with its replies. Zero for unsolicited packets.
	ReqID uint32

	// Type selects the command.
	Type PacketType

	// Target names the device or container the command addresses.
	Target string

	// Path is the node path inside the target's tree.
	Path []string

	// Value is the argument or result of a call, or the payload of an update.
	Value *Value

	// Error is the message of a PacketError reply.
	Error string

	// MinInterval and MaxInterval bound the update rate of a subscription,
	// in milliseconds.
	MinInterval uint32
	MaxInterval uint32
}

// Reset clears p to its zero value.
func (p *Packet) Reset() {
	*p = Packet{}
}

// Size returns the encoded length of p in bytes.
func (p *Packet) Size() int {
	if p == nil {
		return 0
	}
	n := 0
	if p.ReqID != 0 {
		n += protowire.SizeTag(packetFieldReqID) + protowire.SizeVarint(uint64(p.ReqID))
	}
	if p.Type != 0 {
		n += protowire.SizeTag(packetFieldType) + protowire.SizeVarint(uint64(p.Type))
	}
	if p.Target != "" {
		n += protowire.SizeTag(packetFieldTarget) + protowire.SizeBytes(len(p.Target))
	}
	for _, s := range p.Path {
		n += protowire.SizeTag(packetFieldPath) + protowire.SizeBytes(len(s))
	}
	if p.Value != nil {
		n += protowire.SizeTag(packetFieldValue) + protowire.SizeBytes(p.Value.Size())
	}
	if p.Error != "" {
		n += protowire.SizeTag(packetFieldError) + protowire.SizeBytes(len(p.Error))
	}
	if p.MinInterval != 0 {
		n += protowire.SizeTag(packetFieldMinInterval) + protowire.SizeVarint(uint64(p.MinInterval))
	}
	if p.MaxInterval != 0 {
		n += protowire.SizeTag(packetFieldMaxInterval) + protowire.SizeVarint(uint64(p.MaxInterval))
	}
	return n
}

// MarshalAppend appends the encoding of p to b.
// Enum values are sign-extended to 64 bits, as protobuf requires for int32.
func (p *Packet) MarshalAppend(b []byte) ([]byte, error) {
	if p == nil {
		return b, nil
	}
	if p.ReqID != 0 {
		b = protowire.AppendTag(b, packetFieldReqID, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.ReqID))
	}
	if p.Type != 0 {
		b = protowire.AppendTag(b, packetFieldType, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.Type))
	}
	if p.Target != "" {
		b = protowire.AppendTag(b, packetFieldTarget, protowire.BytesType)
		b = protowire.AppendString(b, p.Target)
	}
	for _, s := range p.Path {
		b = protowire.AppendTag(b, packetFieldPath, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	if p.Value != nil {
		b = protowire.AppendTag(b, packetFieldValue, protowire.BytesType)
		b = protowire.AppendVarint(b, uint64(p.Value.Size()))
		var err error
		if b, err = p.Value.MarshalAppend(b); err != nil {
			return b, err
		}
	}
	if p.Error != "" {
		b = protowire.AppendTag(b, packetFieldError, protowire.BytesType)
		b = protowire.AppendString(b, p.Error)
	}
	if p.MinInterval != 0 {
		b = protowire.AppendTag(b, packetFieldMinInterval, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.MinInterval))
	}
	if p.MaxInterval != 0 {
		b = protowire.AppendTag(b, packetFieldMaxInterval, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.MaxInterval))
	}
	return b, nil
}

// Unmarshal replaces the contents of p with the decoding of b.
// Strings are copied out of b; p does not alias it after return.
func (p *Packet) Unmarshal(b []byte) error {
	p.Reset()
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == packetFieldReqID && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.ReqID = uint32(x)
			b = b[n:]
		case num == packetFieldType && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.Type = PacketType(int32(x))
			b = b[n:]
		case num == packetFieldTarget && typ == protowire.BytesType:
			s, n, err := consumeString(b)
			if err != nil {
				return err
			}
			p.Target = s
			b = b[n:]
		case num == packetFieldPath && typ == protowire.BytesType:
			s, n, err := consumeString(b)
			if err != nil {
				return err
			}
			p.Path = append(p.Path, s)
			b = b[n:]
		case num == packetFieldValue && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			// Repeated occurrences of a message field merge; last scalar wins.
			if p.Value == nil {
				p.Value = &Value{}
				if err := p.Value.Unmarshal(raw); err != nil {
					return err
				}
			} else if err := p.Value.merge(raw); err != nil {
				return err
			}
			b = b[n:]
		case num == packetFieldError && typ == protowire.BytesType:
			s, n, err := consumeString(b)
			if err != nil {
				return err
			}
			p.Error = s
			b = b[n:]
		case num == packetFieldMinInterval && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.MinInterval = uint32(x)
			b = b[n:]
		case num == packetFieldMaxInterval && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.MaxInterval = uint32(x)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func consumeString(b []byte) (string, int, error) {
	raw, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return "", 0, protowire.ParseError(n)
	}
	if !utf8.Valid(raw) {
		return "", 0, ErrInvalidUTF8
	}
	return string(raw), n, nil
}
