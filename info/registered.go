package info

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/gi-runtime/typelib"
)

// RegisteredTypeInfo is the view shared by types that may carry a GType.
type RegisteredTypeInfo struct{ *BaseInfo }

// TypeName returns the GType name, "" for unregistered types.
func (r RegisteredTypeInfo) TypeName() string {
	return r.src.tl.CString(r.src.tl.U32(r.offset + 8))
}

// TypeInit returns the symbol of the GType getter function.
func (r RegisteredTypeInfo) TypeInit() string {
	return r.src.tl.CString(r.src.tl.U32(r.offset + 12))
}

// IsRegistered reports whether the type has a GType.
func (r RegisteredTypeInfo) IsRegistered() bool { return r.TypeName() != "" }

// StructInfo describes a struct or boxed type.
type StructInfo struct{ RegisteredTypeInfo }

func (s StructInfo) flags() uint16 { return s.src.tl.U16(s.offset + 2) }

// Size returns the struct size in bytes.
func (s StructInfo) Size() uint32 { return s.src.tl.U32(s.offset + 16) }

// Alignment returns the struct alignment in bytes.
func (s StructInfo) Alignment() uint32 { return uint32(s.flags() >> 3 & 0x3f) }

// IsBoxed reports whether the type is an opaque boxed type.
func (s StructInfo) IsBoxed() bool { return s.kind == KindBoxed }

// IsGTypeStruct reports whether the struct is the class or interface
// struct of another type.
func (s StructInfo) IsGTypeStruct() bool { return s.flags()&(1<<2) != 0 }

// IsForeign reports whether values need a foreign converter.
func (s StructInfo) IsForeign() bool { return s.flags()&(1<<9) != 0 }

// CopyFunction returns the symbol copying a value, "" when none.
func (s StructInfo) CopyFunction() string { return s.src.tl.CString(s.src.tl.U32(s.offset + 24)) }

// FreeFunction returns the symbol freeing a value, "" when none.
func (s StructInfo) FreeFunction() string { return s.src.tl.CString(s.src.tl.U32(s.offset + 28)) }

// NFields returns the number of fields.
func (s StructInfo) NFields() int { return len(s.layout().Fields) }

// Field returns field i.
func (s StructInfo) Field(i int) (FieldInfo, bool) { return memberField(s.BaseInfo, i) }

// Fields returns every field. Release them with Release.
func (s StructInfo) Fields() []FieldInfo { return collect(s.NFields(), s.Field) }

// FindField returns the field named name.
func (s StructInfo) FindField(name string) (FieldInfo, bool) { return findField(s.BaseInfo, name) }

// NMethods returns the number of methods.
func (s StructInfo) NMethods() int { return s.layout().Methods.Count }

// Method returns method i.
func (s StructInfo) Method(i int) (FunctionInfo, bool) { return memberMethod(s.BaseInfo, i) }

// Methods returns every method. Release them with Release.
func (s StructInfo) Methods() []FunctionInfo { return collect(s.NMethods(), s.Method) }

// FindMethod returns the method named name.
func (s StructInfo) FindMethod(name string) (FunctionInfo, bool) { return findMethod(s.BaseInfo, name) }

// UnionInfo describes a union.
type UnionInfo struct{ RegisteredTypeInfo }

func (u UnionInfo) flags() uint16 { return u.src.tl.U16(u.offset + 2) }

// Size returns the union size in bytes.
func (u UnionInfo) Size() uint32 { return u.src.tl.U32(u.offset + 16) }

// Alignment returns the union alignment in bytes.
func (u UnionInfo) Alignment() uint32 { return uint32(u.flags() >> 3 & 0x3f) }

// CopyFunction returns the symbol copying a value, "" when none.
func (u UnionInfo) CopyFunction() string { return u.src.tl.CString(u.src.tl.U32(u.offset + 24)) }

// FreeFunction returns the symbol freeing a value, "" when none.
func (u UnionInfo) FreeFunction() string { return u.src.tl.CString(u.src.tl.U32(u.offset + 28)) }

// IsDiscriminated reports whether a discriminator selects the active field.
func (u UnionInfo) IsDiscriminated() bool { return u.flags()&(1<<2) != 0 }

// DiscriminatorOffset returns the byte offset of the discriminator.
func (u UnionInfo) DiscriminatorOffset() int { return int(u.src.tl.I32(u.offset + 32)) }

// DiscriminatorType returns the type of the discriminator.
func (u UnionInfo) DiscriminatorType() (TypeInfo, bool) {
	if !u.IsDiscriminated() {
		return TypeInfo{}, false
	}
	return TypeInfo{u.child(KindType, u.offset+36)}, true
}

// Discriminator returns the discriminator value selecting field i.
func (u UnionInfo) Discriminator(i int) (ConstantInfo, bool) {
	bi, ok := memberAt(u.BaseInfo, u.layout().Discriminators, KindConstant, i)
	return ConstantInfo{bi}, ok
}

// NFields returns the number of fields.
func (u UnionInfo) NFields() int { return len(u.layout().Fields) }

// Field returns field i.
func (u UnionInfo) Field(i int) (FieldInfo, bool) { return memberField(u.BaseInfo, i) }

// Fields returns every field. Release them with Release.
func (u UnionInfo) Fields() []FieldInfo { return collect(u.NFields(), u.Field) }

// FindField returns the field named name.
func (u UnionInfo) FindField(name string) (FieldInfo, bool) { return findField(u.BaseInfo, name) }

// NMethods returns the number of methods.
func (u UnionInfo) NMethods() int { return u.layout().Methods.Count }

// Method returns method i.
func (u UnionInfo) Method(i int) (FunctionInfo, bool) { return memberMethod(u.BaseInfo, i) }

// Methods returns every method. Release them with Release.
func (u UnionInfo) Methods() []FunctionInfo { return collect(u.NMethods(), u.Method) }

// FindMethod returns the method named name.
func (u UnionInfo) FindMethod(name string) (FunctionInfo, bool) { return findMethod(u.BaseInfo, name) }

// EnumInfo describes an enumeration or flags type.
type EnumInfo struct{ RegisteredTypeInfo }

// IsFlags reports whether members combine bitwise.
func (e EnumInfo) IsFlags() bool { return e.kind == KindFlags }

// StorageType returns the integer type backing values.
func (e EnumInfo) StorageType() typelib.TypeTag {
	if tag := typelib.TypeTag(e.src.tl.U16(e.offset+2) >> 2 & 0x1f); tag != typelib.TagVoid {
		return tag
	}
	if e.IsFlags() {
		return typelib.TagUint32
	}
	return typelib.TagInt32
}

// ErrorDomain returns the GError domain the enum codes belong to, "" when none.
func (e EnumInfo) ErrorDomain() string {
	return e.src.tl.CString(e.src.tl.U32(e.offset + 20))
}

// NValues returns the number of members.
func (e EnumInfo) NValues() int { return e.layout().Values.Count }

// Value returns member i.
func (e EnumInfo) Value(i int) (ValueInfo, bool) {
	bi, ok := memberAt(e.BaseInfo, e.layout().Values, KindValue, i)
	return ValueInfo{bi}, ok
}

// Values returns every member. Release them with Release.
func (e EnumInfo) Values() []ValueInfo { return collect(e.NValues(), e.Value) }

// FindValue returns the member named name.
func (e EnumInfo) FindValue(name string) (ValueInfo, bool) {
	return findNamed(e.BaseInfo, e.layout().Values, 4, name, func(_ *BaseInfo, i int) (ValueInfo, bool) {
		return e.Value(i)
	})
}

// NMethods returns the number of methods.
func (e EnumInfo) NMethods() int { return e.layout().Methods.Count }

// Method returns method i.
func (e EnumInfo) Method(i int) (FunctionInfo, bool) { return memberMethod(e.BaseInfo, i) }

// Methods returns every method. Release them with Release.
func (e EnumInfo) Methods() []FunctionInfo { return collect(e.NMethods(), e.Method) }

// FindMethod returns the method named name.
func (e EnumInfo) FindMethod(name string) (FunctionInfo, bool) { return findMethod(e.BaseInfo, name) }

// ValueInfo is one enum or flags member.
type ValueInfo struct{ *BaseInfo }

// Value returns the integer value.
func (v ValueInfo) Value() int64 {
	t := v.src.tl
	if t.U32(v.offset)&(1<<1) != 0 {
		return int64(t.U32(v.offset + 8))
	}
	return int64(t.I32(v.offset + 8))
}

// FieldInfo describes a field of a struct, union or object.
type FieldInfo struct{ *BaseInfo }

func (f FieldInfo) flags() uint8 { return f.src.tl.U8(f.offset + 4) }

// IsReadable reports whether the field may be read.
func (f FieldInfo) IsReadable() bool { return f.flags()&1 != 0 }

// IsWritable reports whether the field may be written.
func (f FieldInfo) IsWritable() bool { return f.flags()&2 != 0 }

// Size returns the bit width of a bitfield, 0 for ordinary fields.
func (f FieldInfo) Size() int { return int(f.src.tl.U8(f.offset + 5)) }

// Offset returns the byte offset within the container.
func (f FieldInfo) Offset() int { return int(f.src.tl.U16(f.offset + 6)) }

// BitOffset returns the bit offset within the container.
func (f FieldInfo) BitOffset() int { return f.Offset() * 8 }

// Type returns the field type. Fields declaring an anonymous callback
// return an interface type referring to it.
func (f FieldInfo) Type() TypeInfo {
	if f.flags()&4 != 0 {
		ti := f.child(KindType, f.offset+typelib.FieldBlobSize)
		ti.embedded = true
		return TypeInfo{ti}
	}
	return TypeInfo{f.child(KindType, f.offset+12)}
}

// ConstantInfo describes a constant.
type ConstantInfo struct{ *BaseInfo }

// Type returns the constant's type.
func (c ConstantInfo) Type() TypeInfo {
	return TypeInfo{c.child(KindType, c.offset+8)}
}

// Bytes returns the raw stored value.
func (c ConstantInfo) Bytes() []byte {
	t := c.src.tl
	return t.Bytes(t.U32(c.offset+16), t.U32(c.offset+12))
}

// Value decodes the stored value: bool, sized integers, float32, float64
// or string. Other types yield the raw bytes.
func (c ConstantInfo) Value() any {
	ti := c.Type()
	tag := ti.Tag()
	ti.Unref()
	return decodeConstant(tag, c.Bytes())
}

func decodeConstant(tag typelib.TypeTag, raw []byte) any {
	le := binary.LittleEndian
	need := func(n int) bool { return len(raw) >= n }
	switch tag {
	case typelib.TagBoolean:
		if need(4) {
			return le.Uint32(raw) != 0
		}
	case typelib.TagInt8:
		if need(1) {
			return int8(raw[0])
		}
	case typelib.TagUint8:
		if need(1) {
			return raw[0]
		}
	case typelib.TagInt16:
		if need(2) {
			return int16(le.Uint16(raw))
		}
	case typelib.TagUint16:
		if need(2) {
			return le.Uint16(raw)
		}
	case typelib.TagInt32:
		if need(4) {
			return int32(le.Uint32(raw))
		}
	case typelib.TagUint32, typelib.TagUnichar:
		if need(4) {
			return le.Uint32(raw)
		}
	case typelib.TagInt64:
		if need(8) {
			return int64(le.Uint64(raw))
		}
	case typelib.TagUint64, typelib.TagGType:
		if need(8) {
			return le.Uint64(raw)
		}
	case typelib.TagFloat:
		if need(4) {
			return math.Float32frombits(le.Uint32(raw))
		}
	case typelib.TagDouble:
		if need(8) {
			return math.Float64frombits(le.Uint64(raw))
		}
	case typelib.TagUTF8, typelib.TagFilename:
		if n := len(raw); n > 0 && raw[n-1] == 0 {
			return string(raw[:n-1])
		}
		return string(raw)
	}
	return raw
}
