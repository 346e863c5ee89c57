package typelib

// Magic is the 16-byte signature every typelib image begins with.
const Magic = "GOBJ\nMETADATA\r\n\x1a"

const (
	MajorVersion = 4
	MinorVersion = 0
)

// HeaderSize is the size of the fixed image header.
const HeaderSize = 112

// Blob sizes of format 4.0.
const (
	EntryBlobSize       = 12
	FunctionBlobSize    = 20
	CallbackBlobSize    = 12
	SignalBlobSize      = 16
	VFuncBlobSize       = 20
	ArgBlobSize         = 16
	PropertyBlobSize    = 16
	FieldBlobSize       = 16
	ValueBlobSize       = 12
	AttributeBlobSize   = 12
	ConstantBlobSize    = 24
	ErrorDomainBlobSize = 16
	SignatureBlobSize   = 8
	EnumBlobSize        = 24
	StructBlobSize      = 32
	ObjectBlobSize      = 60
	InterfaceBlobSize   = 40
	UnionBlobSize       = 40
)

// Header field offsets.
const (
	hdrMajor          = 16
	hdrMinor          = 17
	hdrNEntries       = 20
	hdrNLocalEntries  = 22
	hdrDirectory      = 24
	hdrNAttributes    = 28
	hdrAttributes     = 32
	hdrDependencies   = 36
	hdrSize           = 40
	hdrNamespace      = 44
	hdrNSVersion      = 48
	hdrSharedLibrary  = 52
	hdrCPrefix        = 56
	hdrBlobSizes      = 60
	hdrSections       = 96
	hdrBlobSizesCount = 18
)

// BlobType identifies the kind of a directory entry.
type BlobType uint16

const (
	BlobInvalid   BlobType = 0
	BlobFunction  BlobType = 1
	BlobCallback  BlobType = 2
	BlobStruct    BlobType = 3
	BlobBoxed     BlobType = 4
	BlobEnum      BlobType = 5
	BlobFlags     BlobType = 6
	BlobObject    BlobType = 7
	BlobInterface BlobType = 8
	BlobConstant  BlobType = 9
	blobInvalid0  BlobType = 10
	BlobUnion     BlobType = 11
)

var blobTypeNames = [...]string{
	BlobInvalid:   "invalid",
	BlobFunction:  "function",
	BlobCallback:  "callback",
	BlobStruct:    "struct",
	BlobBoxed:     "boxed",
	BlobEnum:      "enum",
	BlobFlags:     "flags",
	BlobObject:    "object",
	BlobInterface: "interface",
	BlobConstant:  "constant",
	blobInvalid0:  "invalid",
	BlobUnion:     "union",
}

func (b BlobType) String() string {
	if int(b) < len(blobTypeNames) {
		return blobTypeNames[b]
	}
	return "unknown"
}

// Valid reports whether b may appear in a directory entry.
func (b BlobType) Valid() bool {
	return b >= BlobFunction && b <= BlobUnion && b != blobInvalid0
}

// minBlobSize is the fixed part of a top-level blob of type b.
func (b BlobType) minBlobSize() uint32 {
	switch b {
	case BlobFunction:
		return FunctionBlobSize
	case BlobCallback:
		return CallbackBlobSize
	case BlobStruct, BlobBoxed:
		return StructBlobSize
	case BlobEnum, BlobFlags:
		return EnumBlobSize
	case BlobObject:
		return ObjectBlobSize
	case BlobInterface:
		return InterfaceBlobSize
	case BlobConstant:
		return ConstantBlobSize
	case BlobUnion:
		return UnionBlobSize
	default:
		return 0
	}
}

// TypeTag is the discriminant of a type descriptor.
type TypeTag uint8

const (
	TagVoid      TypeTag = 0
	TagBoolean   TypeTag = 1
	TagInt8      TypeTag = 2
	TagUint8     TypeTag = 3
	TagInt16     TypeTag = 4
	TagUint16    TypeTag = 5
	TagInt32     TypeTag = 6
	TagUint32    TypeTag = 7
	TagInt64     TypeTag = 8
	TagUint64    TypeTag = 9
	TagFloat     TypeTag = 10
	TagDouble    TypeTag = 11
	TagGType     TypeTag = 12
	TagUTF8      TypeTag = 13
	TagFilename  TypeTag = 14
	TagArray     TypeTag = 15
	TagInterface TypeTag = 16
	TagGList     TypeTag = 17
	TagGSList    TypeTag = 18
	TagGHash     TypeTag = 19
	TagError     TypeTag = 20
	TagUnichar   TypeTag = 21
)

var tagNames = [...]string{
	TagVoid:      "void",
	TagBoolean:   "gboolean",
	TagInt8:      "gint8",
	TagUint8:     "guint8",
	TagInt16:     "gint16",
	TagUint16:    "guint16",
	TagInt32:     "gint32",
	TagUint32:    "guint32",
	TagInt64:     "gint64",
	TagUint64:    "guint64",
	TagFloat:     "gfloat",
	TagDouble:    "gdouble",
	TagGType:     "GType",
	TagUTF8:      "utf8",
	TagFilename:  "filename",
	TagArray:     "array",
	TagInterface: "interface",
	TagGList:     "glist",
	TagGSList:    "gslist",
	TagGHash:     "ghash",
	TagError:     "error",
	TagUnichar:   "gunichar",
}

func (t TypeTag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "unknown"
}

// IsBasic reports whether the tag is stored directly in a SimpleTypeBlob.
func (t TypeTag) IsBasic() bool {
	return t < TagArray || t == TagUnichar
}

// IsNumeric reports whether the tag is an integer or floating point type.
func (t TypeTag) IsNumeric() bool {
	return t >= TagInt8 && t <= TagDouble
}

// ArrayType distinguishes C arrays from GLib array containers.
type ArrayType uint8

const (
	ArrayC ArrayType = iota
	ArrayGArray
	ArrayPtrArray
	ArrayByteArray
)

func (a ArrayType) String() string {
	switch a {
	case ArrayC:
		return "c"
	case ArrayGArray:
		return "GArray"
	case ArrayPtrArray:
		return "GPtrArray"
	case ArrayByteArray:
		return "GByteArray"
	default:
		return "unknown"
	}
}

// Direction of a callable argument.
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
	DirectionInOut
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "in"
	case DirectionOut:
		return "out"
	case DirectionInOut:
		return "inout"
	default:
		return "unknown"
	}
}

// Transfer describes who owns a value after a call.
type Transfer uint8

const (
	TransferNothing Transfer = iota
	TransferContainer
	TransferEverything
)

func (t Transfer) String() string {
	switch t {
	case TransferNothing:
		return "none"
	case TransferContainer:
		return "container"
	case TransferEverything:
		return "full"
	default:
		return "unknown"
	}
}

// ScopeType is the lifetime of a callback argument.
type ScopeType uint8

const (
	ScopeInvalid ScopeType = iota
	ScopeCall
	ScopeAsync
	ScopeNotified
	ScopeForever
)

func (s ScopeType) String() string {
	switch s {
	case ScopeCall:
		return "call"
	case ScopeAsync:
		return "async"
	case ScopeNotified:
		return "notified"
	case ScopeForever:
		return "forever"
	default:
		return "none"
	}
}

// NoIndex marks an absent 10-bit index (property getter/setter, vfunc invoker).
const NoIndex = 0x3ff
