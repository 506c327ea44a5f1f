package wire

import (
	"math"
	"strconv"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the Value message.
const (
	valueFieldType  protowire.Number = 1
	valueFieldBool  protowire.Number = 2
	valueFieldInt   protowire.Number = 3
	valueFieldUint  protowire.Number = 4
	valueFieldFloat protowire.Number = 5
)

// Value is a tagged scalar.
type Value struct {
	Type  ValueType
	Bool  bool
	Int   int64
	Uint  uint64
	Float float64
}

// BoolValue returns a bool Value.
func BoolValue(b bool) *Value {
	return &Value{Type: ValueBool, Bool: b}
}

// IntValue returns a signed Value of the given class.
func IntValue(t ValueType, v int64) *Value {
	return &Value{Type: t, Int: v}
}

// UintValue returns an unsigned (or enum) Value of the given class.
func UintValue(t ValueType, v uint64) *Value {
	return &Value{Type: t, Uint: v}
}

// FloatValue returns a float or double Value.
func FloatValue(t ValueType, v float64) *Value {
	return &Value{Type: t, Float: v}
}

// String formats the value the way it is shown in logs: "none", "true",
// "enum(3)", "42", "1.5".
func (v *Value) String() string {
	if v == nil {
		return "none"
	}
	switch {
	case v.Type == ValueNone:
		return "none"
	case v.Type == ValueBool:
		return strconv.FormatBool(v.Bool)
	case v.Type == ValueEnum:
		return "enum(" + strconv.FormatUint(v.Uint, 10) + ")"
	case v.Type.IsUnsigned():
		return strconv.FormatUint(v.Uint, 10)
	case v.Type.IsSigned():
		return strconv.FormatInt(v.Int, 10)
	case v.Type == ValueFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 32)
	case v.Type == ValueDouble:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return "invalid"
	}
}

// Size returns the encoded length of v in bytes.
func (v *Value) Size() int {
	if v == nil {
		return 0
	}
	n := 0
	if v.Type != 0 {
		n += protowire.SizeTag(valueFieldType) + protowire.SizeVarint(uint64(v.Type))
	}
	if v.Bool {
		n += protowire.SizeTag(valueFieldBool) + 1
	}
	if v.Int != 0 {
		n += protowire.SizeTag(valueFieldInt) + protowire.SizeVarint(protowire.EncodeZigZag(v.Int))
	}
	if v.Uint != 0 {
		n += protowire.SizeTag(valueFieldUint) + protowire.SizeVarint(v.Uint)
	}
	if math.Float64bits(v.Float) != 0 {
		n += protowire.SizeTag(valueFieldFloat) + protowire.SizeFixed64()
	}
	return n
}

// MarshalAppend appends the encoding of v to b.
func (v *Value) MarshalAppend(b []byte) ([]byte, error) {
	if v == nil {
		return b, nil
	}
	if v.Type != 0 {
		b = protowire.AppendTag(b, valueFieldType, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.Type))
	}
	if v.Bool {
		b = protowire.AppendTag(b, valueFieldBool, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(v.Bool))
	}
	if v.Int != 0 {
		b = protowire.AppendTag(b, valueFieldInt, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(v.Int))
	}
	if v.Uint != 0 {
		b = protowire.AppendTag(b, valueFieldUint, protowire.VarintType)
		b = protowire.AppendVarint(b, v.Uint)
	}
	if bits := math.Float64bits(v.Float); bits != 0 {
		b = protowire.AppendTag(b, valueFieldFloat, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, bits)
	}
	return b, nil
}

// Unmarshal replaces the contents of v with the decoding of b.
func (v *Value) Unmarshal(b []byte) error {
	*v = Value{}
	return v.merge(b)
}

// merge decodes b on top of the current contents of v. Every field present
// in b overwrites v, including fields explicitly set to their zero value.
func (v *Value) merge(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == valueFieldType && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			v.Type = ValueType(int32(x))
			b = b[n:]
		case num == valueFieldBool && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			v.Bool = protowire.DecodeBool(x)
			b = b[n:]
		case num == valueFieldInt && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			v.Int = protowire.DecodeZigZag(x)
			b = b[n:]
		case num == valueFieldUint && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			v.Uint = x
			b = b[n:]
		case num == valueFieldFloat && typ == protowire.Fixed64Type:
			x, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			v.Float = math.Float64frombits(x)
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
