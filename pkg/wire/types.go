package wire

import "strconv"

// PacketType identifies the command carried by a Packet.
type PacketType int32

const (
	PacketUnspecified PacketType = 0 // Default value, carries no command
	PacketCancel      PacketType = 1 // Cancel the request with the same ReqID
	PacketError       PacketType = 2 // Error reply, see Packet.Error
	PacketFetchNS     PacketType = 3 // Request the namespace tree
	PacketNS          PacketType = 4 // Namespace reply
	PacketCall        PacketType = 5 // Invoke an action at Target/Path
	PacketCallReturn  PacketType = 6 // Action result
	PacketSubscribe   PacketType = 7 // Subscribe to a variable at Target/Path
	PacketUpdate      PacketType = 8 // Variable update
	PacketUnsubscribe PacketType = 9 // Cancel a subscription
)

// String returns the string representation of the packet type.
func (t PacketType) String() string {
	switch t {
	case PacketUnspecified:
		return "Unspecified"
	case PacketCancel:
		return "Cancel"
	case PacketError:
		return "Error"
	case PacketFetchNS:
		return "FetchNS"
	case PacketNS:
		return "NS"
	case PacketCall:
		return "Call"
	case PacketCallReturn:
		return "CallReturn"
	case PacketSubscribe:
		return "Subscribe"
	case PacketUpdate:
		return "Update"
	case PacketUnsubscribe:
		return "Unsubscribe"
	default:
		return "PacketType(" + strconv.Itoa(int(t)) + ")"
	}
}

// ValueType is the type class of a Value.
type ValueType int32

const (
	ValueNone   ValueType = 0
	ValueBool   ValueType = 1
	ValueEnum   ValueType = 2
	ValueUint8  ValueType = 3
	ValueUint16 ValueType = 4
	ValueUint32 ValueType = 5
	ValueUint64 ValueType = 6
	ValueInt8   ValueType = 7
	ValueInt16  ValueType = 8
	ValueInt32  ValueType = 9
	ValueInt64  ValueType = 10
	ValueFloat  ValueType = 11
	ValueDouble ValueType = 12
)

// String returns the lower-case name of the type class.
func (t ValueType) String() string {
	switch t {
	case ValueNone:
		return "none"
	case ValueBool:
		return "bool"
	case ValueEnum:
		return "enum"
	case ValueUint8:
		return "uint8"
	case ValueUint16:
		return "uint16"
	case ValueUint32:
		return "uint32"
	case ValueUint64:
		return "uint64"
	case ValueInt8:
		return "int8"
	case ValueInt16:
		return "int16"
	case ValueInt32:
		return "int32"
	case ValueInt64:
		return "int64"
	case ValueFloat:
		return "float"
	case ValueDouble:
		return "double"
	default:
		return "invalid"
	}
}

// IsSigned reports whether values of this class are carried in Value.Int.
func (t ValueType) IsSigned() bool {
	switch t {
	case ValueInt8, ValueInt16, ValueInt32, ValueInt64:
		return true
	}
	return false
}

// IsUnsigned reports whether values of this class are carried in Value.Uint.
// Enum values are unsigned.
func (t ValueType) IsUnsigned() bool {
	switch t {
	case ValueEnum, ValueUint8, ValueUint16, ValueUint32, ValueUint64:
		return true
	}
	return false
}

// IsFloat reports whether values of this class are carried in Value.Float.
func (t ValueType) IsFloat() bool {
	return t == ValueFloat || t == ValueDouble
}
