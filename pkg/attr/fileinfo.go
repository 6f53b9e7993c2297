package attr

// Fields stored unboxed in FileInfo.
type fieldMask uint16

const (
	fieldName fieldMask = 1 << iota
	fieldDisplayName
	fieldType
	fieldSize
	fieldIsSymlink
	fieldSymlinkTarget
	fieldIsHidden
	fieldIsBackup
)

var wellKnown = []struct {
	name  string
	field fieldMask
}{
	{StandardName, fieldName},
	{StandardDisplayName, fieldDisplayName},
	{StandardType, fieldType},
	{StandardSize, fieldSize},
	{StandardIsSymlink, fieldIsSymlink},
	{StandardSymlinkTarget, fieldSymlinkTarget},
	{StandardIsHidden, fieldIsHidden},
	{StandardIsBackup, fieldIsBackup},
}

func wellKnownField(name string) (fieldMask, bool) {
	for _, wk := range wellKnown {
		if wk.name == name {
			return wk.field, true
		}
	}
	return 0, false
}

// FileInfo is an attribute set: an ordered mapping from "ns:name" to Value
// plus the frequently used standard fields kept unboxed.
//
// While an attribute mask is installed (SetAttributeMask), every setter
// silently drops attributes the mask rejects. Providers install the query
// matcher as the mask before populating, so nothing unrequested can leak into
// a reply.
type FileInfo struct {
	present fieldMask

	name          string
	displayName   string
	fileType      FileType
	size          int64
	isSymlink     bool
	symlinkTarget string
	isHidden      bool
	isBackup      bool

	// Statuses for the unboxed fields when used in a batch set.
	fieldStatus map[fieldMask]Status

	order  []string
	values map[string]Value
	errs   map[string]error

	mask *Matcher
}

// NewFileInfo returns an empty attribute set.
func NewFileInfo() *FileInfo {
	return &FileInfo{values: make(map[string]Value)}
}

// SetAttributeMask restricts subsequent setters to attributes matched by m.
func (fi *FileInfo) SetAttributeMask(m *Matcher) {
	fi.mask = m
}

// UnsetAttributeMask removes the restriction.
func (fi *FileInfo) UnsetAttributeMask() {
	fi.mask = nil
}

func (fi *FileInfo) allowed(name string) bool {
	return fi.mask == nil || fi.mask.Matches(name)
}

// Copy returns a deep copy without the mask.
func (fi *FileInfo) Copy() *FileInfo {
	c := *fi
	c.mask = nil
	c.order = append([]string(nil), fi.order...)
	c.values = make(map[string]Value, len(fi.values))
	for k, v := range fi.values {
		c.values[k] = v
	}
	if fi.errs != nil {
		c.errs = make(map[string]error, len(fi.errs))
		for k, v := range fi.errs {
			c.errs[k] = v
		}
	}
	if fi.fieldStatus != nil {
		c.fieldStatus = make(map[fieldMask]Status, len(fi.fieldStatus))
		for k, v := range fi.fieldStatus {
			c.fieldStatus[k] = v
		}
	}
	return &c
}

// SetAttribute stores a value under a fully-qualified name. Well-known
// standard names are routed to their unboxed fields; a value of the wrong
// type for such a field is ignored.
func (fi *FileInfo) SetAttribute(name string, v Value) {
	if !fi.allowed(name) || !v.IsValid() {
		return
	}

	if f, ok := wellKnownField(name); ok {
		if fi.setField(f, v) && v.Status() != StatusUnset {
			fi.setFieldStatus(f, v.Status())
		}
		return
	}

	if _, exists := fi.values[name]; !exists {
		fi.order = append(fi.order, name)
	}
	fi.values[name] = v
}

func (fi *FileInfo) setField(f fieldMask, v Value) bool {
	switch f {
	case fieldName, fieldDisplayName, fieldSymlinkTarget:
		s, ok := v.AsString()
		if !ok {
			return false
		}
		switch f {
		case fieldName:
			fi.name = s
		case fieldDisplayName:
			fi.displayName = s
		default:
			fi.symlinkTarget = s
		}
	case fieldType:
		t, ok := v.AsUint32()
		if !ok {
			return false
		}
		fi.fileType = FileType(t)
	case fieldSize:
		n, ok := v.AsInt64()
		if !ok {
			u, uok := v.AsUint64()
			if !uok {
				return false
			}
			n = int64(u)
		}
		fi.size = n
	case fieldIsSymlink, fieldIsHidden, fieldIsBackup:
		b, ok := v.AsBool()
		if !ok {
			return false
		}
		switch f {
		case fieldIsSymlink:
			fi.isSymlink = b
		case fieldIsHidden:
			fi.isHidden = b
		default:
			fi.isBackup = b
		}
	default:
		return false
	}
	fi.present |= f
	return true
}

func (fi *FileInfo) fieldValue(f fieldMask) Value {
	var v Value
	switch f {
	case fieldName:
		v = ByteStringValue(fi.name)
	case fieldDisplayName:
		v = StringValue(fi.displayName)
	case fieldType:
		v = Uint32Value(uint32(fi.fileType))
	case fieldSize:
		v = Int64Value(fi.size)
	case fieldIsSymlink:
		v = BoolValue(fi.isSymlink)
	case fieldSymlinkTarget:
		v = ByteStringValue(fi.symlinkTarget)
	case fieldIsHidden:
		v = BoolValue(fi.isHidden)
	case fieldIsBackup:
		v = BoolValue(fi.isBackup)
	}
	if s, ok := fi.fieldStatus[f]; ok {
		v = v.WithStatus(s)
	}
	return v
}

func (fi *FileInfo) setFieldStatus(f fieldMask, s Status) {
	if fi.fieldStatus == nil {
		fi.fieldStatus = make(map[fieldMask]Status)
	}
	fi.fieldStatus[f] = s
}

// GetAttribute returns the value stored under name.
func (fi *FileInfo) GetAttribute(name string) (Value, bool) {
	if f, ok := wellKnownField(name); ok {
		if fi.present&f == 0 {
			return Value{}, false
		}
		return fi.fieldValue(f), true
	}
	v, ok := fi.values[name]
	return v, ok
}

// HasAttribute reports whether name is present.
func (fi *FileInfo) HasAttribute(name string) bool {
	_, ok := fi.GetAttribute(name)
	return ok
}

// RemoveAttribute deletes name from the set.
func (fi *FileInfo) RemoveAttribute(name string) {
	if f, ok := wellKnownField(name); ok {
		fi.present &^= f
		delete(fi.fieldStatus, f)
		return
	}
	if _, ok := fi.values[name]; !ok {
		return
	}
	delete(fi.values, name)
	delete(fi.errs, name)
	for i, n := range fi.order {
		if n == name {
			fi.order = append(fi.order[:i], fi.order[i+1:]...)
			break
		}
	}
}

// Attributes lists present attribute names: unboxed standard fields first in
// a fixed order, then the rest in insertion order.
func (fi *FileInfo) Attributes() []string {
	names := make([]string, 0, len(fi.order)+len(wellKnown))
	for _, wk := range wellKnown {
		if fi.present&wk.field != 0 {
			names = append(names, wk.name)
		}
	}
	return append(names, fi.order...)
}

// ListAttributes lists present names within one namespace.
func (fi *FileInfo) ListAttributes(ns string) []string {
	var names []string
	for _, name := range fi.Attributes() {
		if n, _ := SplitName(name); n == ns {
			names = append(names, name)
		}
	}
	return names
}

// Len returns the number of present attributes.
func (fi *FileInfo) Len() int {
	return len(fi.Attributes())
}

// SetAttributeStatus records the batch-set outcome for name.
func (fi *FileInfo) SetAttributeStatus(name string, s Status) {
	if f, ok := wellKnownField(name); ok {
		if fi.present&f != 0 {
			fi.setFieldStatus(f, s)
		}
		return
	}
	if v, ok := fi.values[name]; ok {
		fi.values[name] = v.WithStatus(s)
	}
}

// SetAttributeError marks name as ErrorSetting and records why.
func (fi *FileInfo) SetAttributeError(name string, err error) {
	fi.SetAttributeStatus(name, StatusErrorSetting)
	if fi.errs == nil {
		fi.errs = make(map[string]error)
	}
	fi.errs[name] = err
}

// AttributeStatus returns the batch-set status of name.
func (fi *FileInfo) AttributeStatus(name string) Status {
	v, ok := fi.GetAttribute(name)
	if !ok {
		return StatusUnset
	}
	return v.Status()
}

// AttributeError returns the error recorded by SetAttributeError.
func (fi *FileInfo) AttributeError(name string) error {
	return fi.errs[name]
}

// ResetStatuses marks every attribute Unset, as before a batch set.
func (fi *FileInfo) ResetStatuses() {
	fi.fieldStatus = nil
	fi.errs = nil
	for k, v := range fi.values {
		fi.values[k] = v.WithStatus(StatusUnset)
	}
}

// Typed setters for generic attributes.

func (fi *FileInfo) SetString(name, s string) {
	fi.SetAttribute(name, StringValue(s))
}

func (fi *FileInfo) SetByteString(name, s string) {
	fi.SetAttribute(name, ByteStringValue(s))
}

func (fi *FileInfo) SetBool(name string, b bool) {
	fi.SetAttribute(name, BoolValue(b))
}

func (fi *FileInfo) SetUint32(name string, v uint32) {
	fi.SetAttribute(name, Uint32Value(v))
}

func (fi *FileInfo) SetInt32(name string, v int32) {
	fi.SetAttribute(name, Int32Value(v))
}

func (fi *FileInfo) SetUint64(name string, v uint64) {
	fi.SetAttribute(name, Uint64Value(v))
}

func (fi *FileInfo) SetInt64(name string, v int64) {
	fi.SetAttribute(name, Int64Value(v))
}

func (fi *FileInfo) GetString(name string) string {
	v, _ := fi.GetAttribute(name)
	s, _ := v.AsString()
	return s
}

func (fi *FileInfo) GetBool(name string) bool {
	v, _ := fi.GetAttribute(name)
	b, _ := v.AsBool()
	return b
}

func (fi *FileInfo) GetUint32(name string) uint32 {
	v, _ := fi.GetAttribute(name)
	n, _ := v.AsUint32()
	return n
}

func (fi *FileInfo) GetUint64(name string) uint64 {
	v, _ := fi.GetAttribute(name)
	n, _ := v.AsUint64()
	return n
}

func (fi *FileInfo) GetInt64(name string) int64 {
	v, _ := fi.GetAttribute(name)
	n, _ := v.AsInt64()
	return n
}

// Well-known field accessors. Getters return the zero value when the field
// is absent.

func (fi *FileInfo) Name() string {
	return fi.name
}

func (fi *FileInfo) DisplayName() string {
	return fi.displayName
}

func (fi *FileInfo) FileType() FileType {
	return fi.fileType
}

func (fi *FileInfo) Size() int64 {
	return fi.size
}

func (fi *FileInfo) IsSymlink() bool {
	return fi.isSymlink
}

func (fi *FileInfo) SymlinkTarget() string {
	return fi.symlinkTarget
}

func (fi *FileInfo) IsHidden() bool {
	return fi.isHidden
}

func (fi *FileInfo) IsBackup() bool {
	return fi.isBackup
}

func (fi *FileInfo) SetName(s string) {
	fi.SetAttribute(StandardName, ByteStringValue(s))
}

func (fi *FileInfo) SetDisplayName(s string) {
	fi.SetAttribute(StandardDisplayName, StringValue(s))
}

func (fi *FileInfo) SetFileType(t FileType) {
	fi.SetAttribute(StandardType, Uint32Value(uint32(t)))
}

func (fi *FileInfo) SetSize(n int64) {
	fi.SetAttribute(StandardSize, Int64Value(n))
}

func (fi *FileInfo) SetIsSymlink(b bool) {
	fi.SetAttribute(StandardIsSymlink, BoolValue(b))
}

func (fi *FileInfo) SetSymlinkTarget(s string) {
	fi.SetAttribute(StandardSymlinkTarget, ByteStringValue(s))
}

func (fi *FileInfo) SetIsHidden(b bool) {
	fi.SetAttribute(StandardIsHidden, BoolValue(b))
}

func (fi *FileInfo) SetIsBackup(b bool) {
	fi.SetAttribute(StandardIsBackup, BoolValue(b))
}
