package giruntime

// ValueKind is the native width and class of one call slot.
type ValueKind uint8

const (
	KindVoid ValueKind = iota
	KindI8
	KindU8
	KindI16
	KindU16
	KindI32
	KindU32
	KindI64
	KindU64
	KindF32
	KindF64
	KindPointer
)

var kindNames = [...]string{
	KindVoid:    "void",
	KindI8:      "i8",
	KindU8:      "u8",
	KindI16:     "i16",
	KindU16:     "u16",
	KindI32:     "i32",
	KindU32:     "u32",
	KindI64:     "i64",
	KindU64:     "u64",
	KindF32:     "f32",
	KindF64:     "f64",
	KindPointer: "ptr",
}

func (k ValueKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsFloat reports whether the slot is passed in floating point registers.
func (k ValueKind) IsFloat() bool {
	return k == KindF32 || k == KindF64
}

// Size returns the slot size in bytes for the given pointer width.
func (k ValueKind) Size(ptrSize int) uint32 {
	switch k {
	case KindI8, KindU8:
		return 1
	case KindI16, KindU16:
		return 2
	case KindI32, KindU32, KindF32:
		return 4
	case KindI64, KindU64, KindF64:
		return 8
	case KindPointer:
		return uint32(ptrSize)
	default:
		return 0
	}
}

// Normalize sign- or zero-extends a raw result to the canonical 64-bit
// payload of the slot: signed kinds sign-extended, unsigned kinds and
// f32 bits zero-extended.
func (k ValueKind) Normalize(raw uint64) uint64 {
	switch k {
	case KindI8:
		return uint64(int64(int8(raw)))
	case KindU8:
		return uint64(uint8(raw))
	case KindI16:
		return uint64(int64(int16(raw)))
	case KindU16:
		return uint64(uint16(raw))
	case KindI32:
		return uint64(int64(int32(raw)))
	case KindU32, KindF32:
		return uint64(uint32(raw))
	case KindVoid:
		return 0
	default:
		return raw
	}
}
