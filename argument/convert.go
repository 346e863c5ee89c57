package argument

import (
	"fmt"
	"math"
	"sync"
	"unicode/utf8"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/typelib"
)

// InterfaceCodec converts objects, interfaces, structs and unions. The
// converter falls back to raw pointers when none is installed.
type InterfaceCodec interface {
	EncodeInterface(v any, iface *info.BaseInfo, ti info.TypeInfo, opts Options) (Argument, error)
	DecodeInterface(a Argument, iface *info.BaseInfo, ti info.TypeInfo, transfer typelib.Transfer) (any, error)
}

// Integer is implemented by host enum and flags values.
type Integer interface {
	Int64() int64
}

// Options control one ToNative conversion.
type Options struct {
	Path     []string
	Scope    *Scope
	Nullable bool
	// Transfer is the ownership handed to the callee.
	Transfer typelib.Transfer
	// CallbackScope is the lifetime of a callback argument.
	CallbackScope typelib.ScopeType
}

func (o Options) at(elem string) Options {
	p := make([]string, len(o.Path), len(o.Path)+1)
	copy(p, o.Path)
	o.Path = append(p, elem)
	return o
}

// Converter moves values between Go and one library's memory. It may be
// shared by concurrent callers. Besides its configuration it tracks
// notified-scope callbacks until their destroy notify fires; a Converter
// must not be copied after first use.
type Converter struct {
	Memory     giruntime.Memory
	Allocator  giruntime.Allocator
	Interfaces InterfaceCodec
	Callbacks  giruntime.CallbackFactory
	// Quark resolves GError domain quarks to names.
	Quark func(q uint32) string
	// FreeError releases an owned GError.
	FreeError func(addr uint64)

	notified    sync.Map
	destroyOnce sync.Once
	destroy     uint64
	destroyErr  error
}

func (c *Converter) ptrSize() int { return c.Memory.PointerSize() }

func conversion(opts Options, v any, ti info.TypeInfo, cause error, format string, args ...any) error {
	b := errors.New(errors.PhaseEncode, errors.KindConversion).
		Path(opts.Path...).
		GoType(fmt.Sprintf("%T", v)).
		GIType(ti.String()).
		Value(v).
		Detail(format, args...)
	if cause != nil {
		b = b.Cause(cause)
	}
	return b.Build()
}

func decodeError(ti info.TypeInfo, cause error, format string, args ...any) error {
	b := errors.New(errors.PhaseDecode, errors.KindConversion).
		GIType(ti.String()).
		Detail(format, args...)
	if cause != nil {
		b = b.Cause(cause)
	}
	return b.Build()
}

// ToNative converts a host value to the payload for type ti. Strings,
// arrays and lists are copied into library memory; the copies are recorded
// in opts.Scope unless opts.Transfer hands them to the callee.
func (c *Converter) ToNative(v any, ti info.TypeInfo, opts Options) (Argument, error) {
	tag := ti.Tag()
	if tag.IsNumeric() && ti.IsPointer() || tag == typelib.TagVoid {
		if !ti.IsPointer() {
			return 0, nil
		}
		return c.encodePointer(v, ti, opts)
	}
	switch tag {
	case typelib.TagBoolean:
		b, ok := v.(bool)
		if !ok {
			return 0, conversion(opts, v, ti, nil, "want bool")
		}
		return FromBool(b), nil
	case typelib.TagInt8:
		return c.encodeSigned(v, ti, 8, opts)
	case typelib.TagInt16:
		return c.encodeSigned(v, ti, 16, opts)
	case typelib.TagInt32:
		return c.encodeSigned(v, ti, 32, opts)
	case typelib.TagInt64:
		return c.encodeSigned(v, ti, 64, opts)
	case typelib.TagUint8:
		return c.encodeUnsigned(v, ti, 8, opts)
	case typelib.TagUint16:
		return c.encodeUnsigned(v, ti, 16, opts)
	case typelib.TagUint32:
		return c.encodeUnsigned(v, ti, 32, opts)
	case typelib.TagUint64:
		return c.encodeUnsigned(v, ti, 64, opts)
	case typelib.TagFloat:
		f, ok := toFloat64(v)
		if !ok {
			return 0, conversion(opts, v, ti, nil, "want number")
		}
		if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
			return 0, conversion(opts, v, ti, errors.Overflow(errors.PhaseEncode, opts.Path, v, "gfloat"), "out of range")
		}
		return FromFloat32(float32(f)), nil
	case typelib.TagDouble:
		f, ok := toFloat64(v)
		if !ok {
			return 0, conversion(opts, v, ti, nil, "want number")
		}
		return FromFloat64(f), nil
	case typelib.TagGType:
		if g, ok := v.(giruntime.GType); ok {
			return FromUint64(uint64(g)), nil
		}
		return c.encodeUnsigned(v, ti, c.ptrSize()*8, opts)
	case typelib.TagUnichar:
		return c.encodeUnichar(v, ti, opts)
	case typelib.TagUTF8, typelib.TagFilename:
		return c.encodeString(v, ti, opts)
	case typelib.TagArray:
		return c.encodeArray(v, ti, opts)
	case typelib.TagGList, typelib.TagGSList:
		return c.encodeList(v, ti, opts)
	case typelib.TagGHash, typelib.TagError:
		if v == nil || isRawPointer(v) {
			return c.encodePointer(v, ti, opts)
		}
		return 0, conversion(opts, v, ti, errors.Unsupported(errors.PhaseEncode, tag.String()+" from Go values"), "unsupported")
	case typelib.TagInterface:
		return c.encodeInterface(v, ti, opts)
	}
	return 0, conversion(opts, v, ti, errors.Unsupported(errors.PhaseEncode, "type tag "+tag.String()), "unsupported")
}

func isRawPointer(v any) bool {
	switch v.(type) {
	case uint64, uintptr, Handle:
		return true
	}
	return false
}

func (c *Converter) encodePointer(v any, ti info.TypeInfo, opts Options) (Argument, error) {
	switch p := v.(type) {
	case nil:
		if !opts.Nullable {
			return 0, conversion(opts, v, ti, errors.NilPointer(errors.PhaseEncode, opts.Path, ti.String()), "null not allowed")
		}
		return 0, nil
	case uint64:
		return FromPointer(p), nil
	case uintptr:
		return FromPointer(uint64(p)), nil
	case Handle:
		ptr := p.Pointer()
		if ptr == 0 && !opts.Nullable {
			return 0, conversion(opts, v, ti, errors.NilPointer(errors.PhaseEncode, opts.Path, ti.String()), "null not allowed")
		}
		return FromPointer(ptr), nil
	}
	return 0, conversion(opts, v, ti, nil, "want pointer")
}

func (c *Converter) encodeSigned(v any, ti info.TypeInfo, bits int, opts Options) (Argument, error) {
	if e, ok := v.(Integer); ok {
		v = e.Int64()
	}
	i, ok := toInt64(v)
	lo, hi := signedRange(bits)
	if !ok || i < lo || i > hi {
		if isNumber(v) {
			return 0, conversion(opts, v, ti, errors.Overflow(errors.PhaseEncode, opts.Path, v, ti.String()), "out of range")
		}
		return 0, conversion(opts, v, ti, nil, "want integer")
	}
	return FromInt64(i), nil
}

func (c *Converter) encodeUnsigned(v any, ti info.TypeInfo, bits int, opts Options) (Argument, error) {
	if e, ok := v.(Integer); ok {
		v = e.Int64()
	}
	u, ok := toUint64(v)
	if !ok || u > unsignedMax(bits) {
		if isNumber(v) {
			return 0, conversion(opts, v, ti, errors.Overflow(errors.PhaseEncode, opts.Path, v, ti.String()), "out of range")
		}
		return 0, conversion(opts, v, ti, nil, "want unsigned integer")
	}
	return FromUint64(u), nil
}

func (c *Converter) encodeUnichar(v any, ti info.TypeInfo, opts Options) (Argument, error) {
	if s, ok := v.(string); ok {
		r, size := utf8.DecodeRuneInString(s)
		if size == 0 || size != len(s) || r == utf8.RuneError {
			return 0, conversion(opts, v, ti, nil, "want exactly one character")
		}
		return FromUint64(uint64(r)), nil
	}
	u, ok := toUint64(v)
	if !ok || u > utf8.MaxRune {
		return 0, conversion(opts, v, ti, nil, "want rune")
	}
	return FromUint64(u), nil
}

func (c *Converter) encodeString(v any, ti info.TypeInfo, opts Options) (Argument, error) {
	var s string
	switch x := v.(type) {
	case nil:
		if !opts.Nullable {
			return 0, conversion(opts, v, ti, errors.NilPointer(errors.PhaseEncode, opts.Path, ti.String()), "null not allowed")
		}
		return 0, nil
	case string:
		s = x
	case []byte:
		s = string(x)
	case fmt.Stringer:
		s = x.String()
	default:
		return 0, conversion(opts, v, ti, nil, "want string")
	}
	addr, err := giruntime.WriteCString(c.Memory, c.Allocator, s)
	if err != nil {
		return 0, conversion(opts, v, ti, errors.AllocationFailed(errors.PhaseEncode, uint32(len(s)+1), 1, err), "copy string")
	}
	if opts.Transfer == typelib.TransferNothing {
		opts.Scope.Free(addr)
	}
	return FromPointer(addr), nil
}

func (c *Converter) encodeInterface(v any, ti info.TypeInfo, opts Options) (Argument, error) {
	iface := ti.Interface()
	if iface == nil {
		return c.encodePointer(v, ti, opts)
	}
	defer iface.Unref()
	switch iface.Kind() {
	case info.KindEnum, info.KindFlags:
		return c.encodeEnum(v, ti, iface.MustEnum(), opts)
	case info.KindCallback:
		return c.encodeCallback(v, ti, iface, opts)
	case info.KindUnresolved:
		return c.encodePointer(v, ti, opts)
	}
	if v == nil {
		return c.encodePointer(v, ti, opts)
	}
	if c.Interfaces != nil {
		return c.Interfaces.EncodeInterface(v, iface, ti, opts)
	}
	return c.encodePointer(v, ti, opts)
}

func (c *Converter) encodeEnum(v any, ti info.TypeInfo, e info.EnumInfo, opts Options) (Argument, error) {
	storage := e.StorageType()
	k, ok := TagKind(storage)
	if !ok || k == giruntime.KindVoid {
		k = giruntime.KindI32
	}
	var a Argument
	var err error
	switch k {
	case giruntime.KindU8, giruntime.KindU16, giruntime.KindU32, giruntime.KindU64:
		a, err = c.encodeUnsigned(v, ti, int(k.Size(8))*8, opts)
	default:
		a, err = c.encodeSigned(v, ti, int(k.Size(8))*8, opts)
	}
	if err != nil || e.IsFlags() {
		return a, err
	}
	want := EnumStorage(a, storage)
	for i := 0; i < e.NValues(); i++ {
		val, ok := e.Value(i)
		if !ok {
			continue
		}
		match := val.Value() == want
		val.Unref()
		if match {
			return a, nil
		}
	}
	return 0, conversion(opts, v, ti, errors.InvalidEnum(errors.PhaseEncode, opts.Path, want, e.QualifiedName()), "unknown enum value")
}

// EnumStorage widens an enum payload according to its storage tag.
func EnumStorage(a Argument, storage typelib.TypeTag) int64 {
	switch storage {
	case typelib.TagInt8:
		return int64(a.Int8())
	case typelib.TagUint8:
		return int64(a.Uint8())
	case typelib.TagInt16:
		return int64(a.Int16())
	case typelib.TagUint16:
		return int64(a.Uint16())
	case typelib.TagUint32:
		return int64(a.Uint32())
	case typelib.TagInt64, typelib.TagUint64:
		return a.Int64()
	}
	return int64(a.Int32())
}

// FromNative converts a payload of type ti to a host value. With
// TransferEverything the converter owns the native value and releases it
// after copying; the caller must not free it again. C arrays whose length
// lives in another argument need FromNativeArray.
func (c *Converter) FromNative(a Argument, ti info.TypeInfo, transfer typelib.Transfer) (any, error) {
	tag := ti.Tag()
	if tag.IsNumeric() && ti.IsPointer() || tag == typelib.TagVoid {
		if !ti.IsPointer() {
			return nil, nil
		}
		return a.Pointer(), nil
	}
	switch tag {
	case typelib.TagBoolean:
		return a.Bool(), nil
	case typelib.TagInt8:
		return a.Int8(), nil
	case typelib.TagUint8:
		return a.Uint8(), nil
	case typelib.TagInt16:
		return a.Int16(), nil
	case typelib.TagUint16:
		return a.Uint16(), nil
	case typelib.TagInt32:
		return a.Int32(), nil
	case typelib.TagUint32:
		return a.Uint32(), nil
	case typelib.TagInt64:
		return a.Int64(), nil
	case typelib.TagUint64:
		return a.Uint64(), nil
	case typelib.TagFloat:
		return a.Float32(), nil
	case typelib.TagDouble:
		return a.Float64(), nil
	case typelib.TagGType:
		if c.ptrSize() == 4 {
			return giruntime.GType(a.Uint32()), nil
		}
		return giruntime.GType(a.Uint64()), nil
	case typelib.TagUnichar:
		return rune(a.Uint32()), nil
	case typelib.TagUTF8, typelib.TagFilename:
		return c.decodeString(a, ti, transfer)
	case typelib.TagArray:
		return c.FromNativeArray(a, ti, transfer, -1)
	case typelib.TagGList, typelib.TagGSList:
		return c.decodeList(a, ti, transfer)
	case typelib.TagError:
		if a == 0 {
			return nil, nil
		}
		gerr, err := c.ReadGError(a.Pointer())
		if err != nil {
			return nil, decodeError(ti, err, "read GError")
		}
		if transfer == typelib.TransferEverything && c.FreeError != nil {
			c.FreeError(a.Pointer())
		}
		return gerr, nil
	case typelib.TagGHash:
		if a == 0 {
			return nil, nil
		}
		return nil, decodeError(ti, errors.Unsupported(errors.PhaseDecode, "GHashTable to Go values"), "unsupported")
	case typelib.TagInterface:
		return c.decodeInterface(a, ti, transfer)
	}
	return nil, decodeError(ti, errors.Unsupported(errors.PhaseDecode, "type tag "+tag.String()), "unsupported")
}

func (c *Converter) decodeString(a Argument, ti info.TypeInfo, transfer typelib.Transfer) (any, error) {
	if a == 0 {
		return nil, nil
	}
	s, err := giruntime.ReadCString(c.Memory, a.Pointer())
	if err != nil {
		return nil, decodeError(ti, err, "read string at 0x%x", a.Pointer())
	}
	if transfer == typelib.TransferEverything {
		c.Allocator.Free(a.Pointer())
	}
	return s, nil
}

func (c *Converter) decodeInterface(a Argument, ti info.TypeInfo, transfer typelib.Transfer) (any, error) {
	iface := ti.Interface()
	if iface == nil {
		return a.Pointer(), nil
	}
	defer iface.Unref()
	if c.Interfaces != nil && iface.Kind() != info.KindUnresolved {
		return c.Interfaces.DecodeInterface(a, iface, ti, transfer)
	}
	switch iface.Kind() {
	case info.KindEnum, info.KindFlags:
		return EnumStorage(a, iface.MustEnum().StorageType()), nil
	}
	if a == 0 {
		return nil, nil
	}
	return a.Pointer(), nil
}

// Load reads one slot of kind k at addr, normalized.
func (c *Converter) Load(addr uint64, k giruntime.ValueKind) (Argument, error) {
	var raw uint64
	var err error
	switch k.Size(c.ptrSize()) {
	case 0:
		return 0, nil
	case 1:
		var v uint8
		v, err = c.Memory.ReadU8(addr)
		raw = uint64(v)
	case 2:
		var v uint16
		v, err = c.Memory.ReadU16(addr)
		raw = uint64(v)
	case 4:
		var v uint32
		v, err = c.Memory.ReadU32(addr)
		raw = uint64(v)
	default:
		raw, err = c.Memory.ReadU64(addr)
	}
	return Argument(k.Normalize(raw)), err
}

// Store writes one slot of kind k at addr.
func (c *Converter) Store(addr uint64, k giruntime.ValueKind, a Argument) error {
	switch k.Size(c.ptrSize()) {
	case 0:
		return nil
	case 1:
		return c.Memory.WriteU8(addr, a.Uint8())
	case 2:
		return c.Memory.WriteU16(addr, a.Uint16())
	case 4:
		return c.Memory.WriteU32(addr, a.Uint32())
	default:
		return c.Memory.WriteU64(addr, a.Uint64())
	}
}

// ReadGError decodes the GError at addr: a domain quark, a code and a
// message pointer at offset 8.
func (c *Converter) ReadGError(addr uint64) (*errors.NativeError, error) {
	quark, err := c.Memory.ReadU32(addr)
	if err != nil {
		return nil, err
	}
	code, err := c.Memory.ReadU32(addr + 4)
	if err != nil {
		return nil, err
	}
	msgPtr, err := giruntime.ReadPointer(c.Memory, addr+8)
	if err != nil {
		return nil, err
	}
	ne := &errors.NativeError{Quark: quark, Code: int32(code)}
	if msgPtr != 0 {
		if ne.Message, err = giruntime.ReadCString(c.Memory, msgPtr); err != nil {
			return nil, err
		}
	}
	if c.Quark != nil {
		ne.Domain = c.Quark(quark)
	}
	return ne, nil
}
