package attr

import "encoding"

// WireAttribute is the transport form of one (name, type, value) triple.
// Only the payload field selected by Type is meaningful. The layout is plain
// enough to be XDR-encoded field by field.
type WireAttribute struct {
	Name   string
	Type   uint32
	Status uint32
	Str    string
	Num    uint64
	// ErrCode carries the vfs error code for StatusErrorSetting, offset by
	// one so zero means "no error".
	ErrCode uint32
}

// ToWire flattens the attribute set in Attributes() order. Object values
// are sent as their text form when they implement encoding.TextMarshaler
// or fmt.Stringer.
func ToWire(fi *FileInfo, errCode func(error) uint32) []WireAttribute {
	names := fi.Attributes()
	out := make([]WireAttribute, 0, len(names))

	for _, name := range names {
		v, _ := fi.GetAttribute(name)
		w := WireAttribute{Name: name, Type: uint32(v.Type()), Status: uint32(v.Status())}

		switch v.Type() {
		case TypeString, TypeByteString:
			w.Str, _ = v.AsString()
		case TypeObject:
			switch o := v.Object().(type) {
			case string:
				w.Str = o
			case encoding.TextMarshaler:
				if b, err := o.MarshalText(); err == nil {
					w.Str = string(b)
				}
			default:
				w.Str = v.String()
			}
		default:
			w.Num = v.num
		}

		if err := fi.AttributeError(name); err != nil && errCode != nil {
			w.ErrCode = errCode(err) + 1
		}
		out = append(out, w)
	}
	return out
}

// FromWire rebuilds an attribute set. Triples with an unknown type tag are
// kept as TypeInvalid placeholders so the receiver can report them as
// unsupported instead of silently losing them. errFromCode, if not nil,
// turns a non-zero ErrCode back into an error.
func FromWire(attrs []WireAttribute, errFromCode func(uint32) error) *FileInfo {
	fi := NewFileInfo()
	for _, w := range attrs {
		var v Value
		switch Type(w.Type) {
		case TypeString:
			v = StringValue(w.Str)
		case TypeByteString:
			v = ByteStringValue(w.Str)
		case TypeObject:
			v = ObjectValue(w.Str)
		case TypeBoolean, TypeUint32, TypeInt32, TypeUint64, TypeInt64:
			v = Value{typ: Type(w.Type), num: w.Num}
		default:
			fi.setInvalid(w.Name)
			continue
		}
		fi.SetAttribute(w.Name, v.WithStatus(Status(w.Status)))
		if Status(w.Status) != StatusUnset {
			fi.SetAttributeStatus(w.Name, Status(w.Status))
		}
		if w.ErrCode != 0 && errFromCode != nil {
			fi.SetAttributeError(w.Name, errFromCode(w.ErrCode-1))
		}
	}
	return fi
}

func (fi *FileInfo) setInvalid(name string) {
	if _, exists := fi.values[name]; !exists {
		fi.order = append(fi.order, name)
	}
	fi.values[name] = Value{}
}
