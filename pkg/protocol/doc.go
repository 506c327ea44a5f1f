// Package protocol implements the envelope codec for telegraph connections.
//
// Every WebSocket binary frame carries exactly one wire.Packet encoded in the
// protocol-buffer wire format. There is no framing inside the payload: the
// WebSocket message boundary is the packet boundary.
//
// # Encoding
//
// Encode works on any Message, the small interface shared by the wire types:
//
//	type Message interface {
//	    Size() int
//	    MarshalAppend(b []byte) ([]byte, error)
//	}
//
// The output buffer is allocated once at Size() bytes and the encoder checks
// that the marshaled length matches, so a packet is never truncated or grown.
//
// # Decoding
//
// DecodePacket parses one payload into a fresh wire.Packet. An empty payload
// is a valid encoding of the default packet. Failures are reported as a
// *DecodeError that wraps the parser's cause. The decoder copies what it keeps;
// callers may reuse the input buffer immediately.
//
// # Limits
//
// Payloads larger than HardMaxPacketSize are rejected before parsing. The
// server enforces its own, usually smaller, limit on the WebSocket read side;
// ClampPacketSize keeps that limit within range.
package protocol
