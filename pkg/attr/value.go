package attr

import (
	"fmt"
	"strconv"
)

// Type tags the variant held by a Value. The numeric values are part of the
// wire encoding.
type Type uint32

const (
	TypeInvalid Type = iota
	TypeString
	TypeByteString
	TypeBoolean
	TypeUint32
	TypeInt32
	TypeUint64
	TypeInt64
	TypeObject
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeByteString:
		return "bytestring"
	case TypeBoolean:
		return "boolean"
	case TypeUint32:
		return "uint32"
	case TypeInt32:
		return "int32"
	case TypeUint64:
		return "uint64"
	case TypeInt64:
		return "int64"
	case TypeObject:
		return "object"
	default:
		return "invalid"
	}
}

// Status records the outcome of setting an attribute in a batch. It is
// meaningless for values produced by a query.
type Status uint32

const (
	StatusUnset Status = iota
	StatusSet
	StatusErrorSetting
)

func (s Status) String() string {
	switch s {
	case StatusSet:
		return "set"
	case StatusErrorSetting:
		return "error-setting"
	default:
		return "unset"
	}
}

// Value is a tagged attribute value. The zero Value is TypeInvalid.
type Value struct {
	typ    Type
	status Status
	str    string
	num    uint64
	obj    any
}

func StringValue(s string) Value     { return Value{typ: TypeString, str: s} }
func ByteStringValue(s string) Value { return Value{typ: TypeByteString, str: s} }
func Uint32Value(v uint32) Value     { return Value{typ: TypeUint32, num: uint64(v)} }
func Int32Value(v int32) Value       { return Value{typ: TypeInt32, num: uint64(int64(v))} }
func Uint64Value(v uint64) Value     { return Value{typ: TypeUint64, num: v} }
func Int64Value(v int64) Value       { return Value{typ: TypeInt64, num: uint64(v)} }
func ObjectValue(o any) Value        { return Value{typ: TypeObject, obj: o} }

func BoolValue(b bool) Value {
	v := Value{typ: TypeBoolean}
	if b {
		v.num = 1
	}
	return v
}

func (v Value) Type() Type     { return v.typ }
func (v Value) Status() Status { return v.status }
func (v Value) IsValid() bool  { return v.typ != TypeInvalid }
func (v Value) Object() any    { return v.obj }

// WithStatus returns a copy of v carrying the given batch-set status.
func (v Value) WithStatus(s Status) Value {
	v.status = s
	return v
}

// AsString returns the payload of a String or ByteString value.
func (v Value) AsString() (string, bool) {
	if v.typ == TypeString || v.typ == TypeByteString {
		return v.str, true
	}
	return "", false
}

func (v Value) AsBool() (bool, bool) {
	return v.num != 0, v.typ == TypeBoolean
}

func (v Value) AsUint32() (uint32, bool) {
	return uint32(v.num), v.typ == TypeUint32
}

func (v Value) AsInt32() (int32, bool) {
	return int32(int64(v.num)), v.typ == TypeInt32
}

func (v Value) AsUint64() (uint64, bool) {
	return v.num, v.typ == TypeUint64
}

func (v Value) AsInt64() (int64, bool) {
	return int64(v.num), v.typ == TypeInt64
}

// String renders the value for logs and listings.
func (v Value) String() string {
	switch v.typ {
	case TypeString, TypeByteString:
		return v.str
	case TypeBoolean:
		return strconv.FormatBool(v.num != 0)
	case TypeUint32, TypeUint64:
		return strconv.FormatUint(v.num, 10)
	case TypeInt32, TypeInt64:
		return strconv.FormatInt(int64(v.num), 10)
	case TypeObject:
		if s, ok := v.obj.(fmt.Stringer); ok {
			return s.String()
		}
		return fmt.Sprintf("<object %T>", v.obj)
	default:
		return "<invalid>"
	}
}

// Equal compares type and payload, ignoring status.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeString, TypeByteString:
		return v.str == o.str
	case TypeObject:
		return v.obj == o.obj
	case TypeInvalid:
		return true
	default:
		return v.num == o.num
	}
}
