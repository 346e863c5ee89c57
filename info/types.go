package info

import (
	"strings"

	"github.com/wippyai/gi-runtime/typelib"
)

// TypeInfo describes the native shape of a value. Its offset locates a
// 32-bit simple type slot that either encodes a basic type inline or points
// at a complex type blob.
type TypeInfo struct{ *BaseInfo }

func (t TypeInfo) slot() uint32 { return t.src.tl.U32(t.offset) }

// isBasic reports whether the slot encodes the type inline.
func (t TypeInfo) isBasic() bool { return t.slot()&0x00ffffff == 0 }

// blob returns the complex type blob offset.
func (t TypeInfo) blob() uint32 { return t.slot() }

// Tag returns the type tag.
func (t TypeInfo) Tag() typelib.TypeTag {
	if t.embedded {
		return typelib.TagInterface
	}
	if t.isBasic() {
		return typelib.TypeTag(t.slot() >> 27)
	}
	return typelib.TypeTag(t.src.tl.U8(t.blob()) >> 3 & 0x1f)
}

// IsPointer reports whether the value is passed by pointer.
func (t TypeInfo) IsPointer() bool {
	if t.embedded {
		return true
	}
	if t.isBasic() {
		return t.slot()>>24&1 != 0
	}
	return t.src.tl.U8(t.blob())&1 != 0
}

// Interface returns the entity referenced by an interface type, resolving
// entries of other namespaces. The result is nil for other tags.
func (t TypeInfo) Interface() *BaseInfo {
	if t.embedded {
		return t.child(KindCallback, t.offset)
	}
	if t.Tag() != typelib.TagInterface || t.isBasic() {
		return nil
	}
	return t.resolve(t.src.tl.U16(t.blob() + 2))
}

func (t TypeInfo) arrayFlags() uint16 {
	if t.Tag() != typelib.TagArray || t.isBasic() {
		return 0
	}
	return t.src.tl.U16(t.blob())
}

// ArrayLength returns the index of the argument holding the array length,
// -1 when absent.
func (t TypeInfo) ArrayLength() int {
	if t.arrayFlags()&(1<<9) == 0 {
		return -1
	}
	return int(t.src.tl.U16(t.blob() + 2))
}

// ArrayFixedSize returns the fixed element count, -1 when absent.
func (t TypeInfo) ArrayFixedSize() int {
	if t.arrayFlags()&(1<<10) == 0 {
		return -1
	}
	return int(t.src.tl.U16(t.blob() + 2))
}

// IsZeroTerminated reports whether the array ends with a zero element.
func (t TypeInfo) IsZeroTerminated() bool {
	return t.arrayFlags()&(1<<8) != 0
}

// ArrayType returns the array container kind.
func (t TypeInfo) ArrayType() typelib.ArrayType {
	return typelib.ArrayType(t.arrayFlags() >> 11 & 3)
}

// NParams returns the number of parameter types: one for arrays and lists,
// two for hash tables.
func (t TypeInfo) NParams() int {
	if t.embedded || t.isBasic() {
		return 0
	}
	switch t.Tag() {
	case typelib.TagArray:
		return 1
	case typelib.TagGList, typelib.TagGSList, typelib.TagGHash:
		return int(t.src.tl.U16(t.blob() + 2))
	}
	return 0
}

// ParamType returns parameter type i: the element type of arrays and
// lists, the key (0) and value (1) of hash tables.
func (t TypeInfo) ParamType(i int) (TypeInfo, bool) {
	if i < 0 || i >= t.NParams() {
		return TypeInfo{}, false
	}
	return TypeInfo{t.child(KindType, t.blob()+4+uint32(i)*4)}, true
}

// ElementType is ParamType(0).
func (t TypeInfo) ElementType() (TypeInfo, bool) {
	return t.ParamType(0)
}

// String renders the type the way the GIR describes it.
func (t TypeInfo) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t TypeInfo) write(b *strings.Builder) {
	tag := t.Tag()
	switch tag {
	case typelib.TagInterface:
		iface := t.Interface()
		if iface == nil {
			b.WriteString("interface")
		} else {
			b.WriteString(iface.Namespace())
			b.WriteByte('.')
			b.WriteString(iface.Name())
			iface.Unref()
		}
	case typelib.TagArray, typelib.TagGList, typelib.TagGSList, typelib.TagGHash:
		if tag == typelib.TagArray && t.ArrayType() != typelib.ArrayC {
			b.WriteString(t.ArrayType().String())
		} else {
			b.WriteString(tag.String())
		}
		b.WriteByte('<')
		for i := 0; i < t.NParams(); i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			p, _ := t.ParamType(i)
			p.write(b)
			p.Unref()
		}
		b.WriteByte('>')
	default:
		b.WriteString(tag.String())
	}
	if t.IsPointer() && !tag.IsBasic() || t.IsPointer() && tag.IsNumeric() {
		b.WriteByte('*')
	}
}
