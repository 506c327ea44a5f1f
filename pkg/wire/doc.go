// Package wire defines the telegraph envelope carried inside every WebSocket
// binary frame.
//
// The types in this package mirror api.proto and encode to the standard
// protocol-buffer wire format, so any protobuf runtime that knows the schema
// can talk to the server. Encoding is done field by field with protowire; no
// reflection or generated descriptors are involved.
//
// # Packet
//
// A Packet is the top-level envelope. ReqID correlates requests with their
// replies, Type selects the command, and the remaining fields carry the
// command's arguments:
//
//	Packet{ReqID: 7, Type: PacketSubscribe, Target: "live", Path: []string{"root", "var1"},
//	       MinInterval: 50, MaxInterval: 1000}
//
// # Value
//
// A Value is a tagged scalar. Type records the declared type class and exactly
// one of Bool, Int, Uint or Float holds the payload, matching the class.
//
// # Encoding rules
//
// Fields at their zero value are omitted, a nil Value is omitted, and unknown
// fields are skipped when decoding. Unmarshal never retains the input slice.
package wire
