package argument

import (
	"fmt"
	"reflect"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/typelib"
	"go.uber.org/zap"
)

// maxElements bounds zero-terminated scans and list walks over corrupt memory.
const maxElements = 1 << 24

// Len returns the element count of a host array value, 0 for nil and -1
// for values that are not arrays.
func Len(v any) int {
	switch x := v.(type) {
	case nil:
		return 0
	case string:
		return len(x)
	case []byte:
		return len(x)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len()
	}
	return -1
}

// elements returns the host array as a slice of values.
func elements(v any) ([]any, bool) {
	if s, ok := v.(string); ok {
		v = []byte(s)
	}
	if b, ok := v.([]byte); ok {
		out := make([]any, len(b))
		for i, x := range b {
			out[i] = x
		}
		return out, true
	}
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// inlineAggregate reports whether elements of type elem are structs or
// unions stored by value.
func inlineAggregate(elem info.TypeInfo) bool {
	if elem.IsPointer() || elem.Tag() != typelib.TagInterface {
		return false
	}
	iface := elem.Interface()
	if iface == nil {
		return false
	}
	defer iface.Unref()
	switch iface.Kind() {
	case info.KindStruct, info.KindBoxed, info.KindUnion:
		return true
	}
	return false
}

func elementTransfer(t typelib.Transfer) typelib.Transfer {
	if t == typelib.TransferEverything {
		return typelib.TransferEverything
	}
	return typelib.TransferNothing
}

func (c *Converter) encodeArray(v any, ti info.TypeInfo, opts Options) (Argument, error) {
	if v == nil || isRawPointer(v) {
		return c.encodePointer(v, ti, opts)
	}
	if at := ti.ArrayType(); at != typelib.ArrayC {
		return 0, conversion(opts, v, ti, errors.Unsupported(errors.PhaseEncode, at.String()+" from Go values"), "unsupported")
	}
	elem, ok := ti.ElementType()
	if !ok {
		return 0, conversion(opts, v, ti, nil, "array without element type")
	}
	defer elem.Unref()

	items, ok := elements(v)
	if !ok {
		return 0, conversion(opts, v, ti, nil, "want slice")
	}
	if fixed := ti.ArrayFixedSize(); fixed >= 0 && len(items) != fixed {
		return 0, conversion(opts, v, ti, errors.OutOfBounds(errors.PhaseEncode, opts.Path, len(items), fixed), "want %d elements", fixed)
	}
	size, err := ElementSize(elem, c.ptrSize())
	if err != nil {
		return 0, conversion(opts, v, ti, err, "element type")
	}
	count := len(items)
	if ti.IsZeroTerminated() {
		count++
	}
	total := size * uint32(count)
	if total == 0 {
		total = 1
	}
	align := size
	if align == 0 || align > 8 {
		align = 8
	}
	addr, err := c.Allocator.Alloc(total, align)
	if err != nil {
		return 0, conversion(opts, v, ti, errors.AllocationFailed(errors.PhaseEncode, total, align, err), "allocate array")
	}
	if opts.Transfer == typelib.TransferNothing {
		opts.Scope.Free(addr)
	}

	if b, ok := v.([]byte); ok && size == 1 {
		if err := c.Memory.Write(addr, b); err != nil {
			return 0, conversion(opts, v, ti, err, "write array")
		}
		return FromPointer(addr), nil
	}

	inline := inlineAggregate(elem)
	kind, _ := SlotKind(elem)
	eopts := opts
	eopts.Transfer = elementTransfer(opts.Transfer)
	eopts.Nullable = false
	for i, item := range items {
		slot := addr + uint64(i)*uint64(size)
		iopts := eopts.at(fmt.Sprintf("[%d]", i))
		if inline {
			if err := c.copyInline(item, elem, slot, size, iopts); err != nil {
				return 0, err
			}
			continue
		}
		a, err := c.ToNative(item, elem, iopts)
		if err != nil {
			return 0, err
		}
		if err := c.Store(slot, kind, a); err != nil {
			return 0, conversion(iopts, item, elem, err, "write element")
		}
	}
	return FromPointer(addr), nil
}

// copyInline copies a struct element from the memory its host value wraps.
func (c *Converter) copyInline(item any, elem info.TypeInfo, slot uint64, size uint32, opts Options) error {
	opts.Nullable = false
	src, err := c.ToNative(item, elem, opts)
	if err != nil {
		return err
	}
	data, err := c.Memory.Read(src.Pointer(), size)
	if err != nil {
		return conversion(opts, item, elem, err, "read element")
	}
	if err := c.Memory.Write(slot, data); err != nil {
		return conversion(opts, item, elem, err, "write element")
	}
	return nil
}

// FromNativeArray decodes an array of type ti. length is the element count
// taken from the paired length argument, or -1 to use the fixed size or
// zero terminator.
func (c *Converter) FromNativeArray(a Argument, ti info.TypeInfo, transfer typelib.Transfer, length int) (any, error) {
	if a == 0 {
		return nil, nil
	}
	elem, ok := ti.ElementType()
	if !ok {
		return nil, decodeError(ti, nil, "array without element type")
	}
	defer elem.Unref()
	size, err := ElementSize(elem, c.ptrSize())
	if err != nil {
		return nil, decodeError(ti, err, "element type")
	}

	data := a.Pointer()
	switch at := ti.ArrayType(); at {
	case typelib.ArrayC:
	case typelib.ArrayGArray, typelib.ArrayPtrArray, typelib.ArrayByteArray:
		if data, err = giruntime.ReadPointer(c.Memory, a.Pointer()); err != nil {
			return nil, decodeError(ti, err, "read %s", at)
		}
		n, err := c.Memory.ReadU32(a.Pointer() + uint64(c.ptrSize()))
		if err != nil {
			return nil, decodeError(ti, err, "read %s length", at)
		}
		length = int(n)
		if at == typelib.ArrayByteArray {
			size = 1
		}
		if transfer != typelib.TransferNothing {
			Logger().Warn("container ownership not released",
				zap.String("type", ti.String()), zap.Uint64("ptr", a.Pointer()))
			transfer = typelib.TransferNothing
		}
	default:
		return nil, decodeError(ti, errors.Unsupported(errors.PhaseDecode, at.String()), "unsupported")
	}

	kind, _ := SlotKind(elem)
	if length < 0 {
		switch {
		case ti.ArrayFixedSize() >= 0:
			length = ti.ArrayFixedSize()
		case ti.IsZeroTerminated():
			if length, err = c.zeroTerminatedLen(data, kind); err != nil {
				return nil, decodeError(ti, err, "scan array")
			}
		default:
			return nil, decodeError(ti, errors.Unsupported(errors.PhaseDecode, "array without length"), "unknown length")
		}
	}
	if length > maxElements {
		return nil, decodeError(ti, errors.OutOfBounds(errors.PhaseDecode, nil, length, maxElements), "array too long")
	}

	var out []any
	if size == 1 && (elem.Tag() == typelib.TagUint8 || elem.Tag() == typelib.TagInt8) && !elem.IsPointer() {
		raw, err := c.Memory.Read(data, uint32(length))
		if err != nil {
			return nil, decodeError(ti, err, "read array")
		}
		if elem.Tag() == typelib.TagUint8 {
			b := make([]byte, length)
			copy(b, raw)
			c.releaseContainer(a, transfer)
			return b, nil
		}
		out = make([]any, length)
		for i, x := range raw {
			out[i] = int8(x)
		}
	} else {
		inline := inlineAggregate(elem)
		et := elementTransfer(transfer)
		out = make([]any, length)
		for i := range out {
			slot := data + uint64(i)*uint64(size)
			if inline {
				v, err := c.FromNative(FromPointer(slot), elem, typelib.TransferNothing)
				if err != nil {
					return nil, err
				}
				out[i] = v
				continue
			}
			ea, err := c.Load(slot, kind)
			if err != nil {
				return nil, decodeError(ti, err, "read element %d", i)
			}
			if out[i], err = c.FromNative(ea, elem, et); err != nil {
				return nil, err
			}
		}
	}
	c.releaseContainer(a, transfer)
	return typedSlice(out, elem), nil
}

func (c *Converter) releaseContainer(a Argument, transfer typelib.Transfer) {
	if transfer != typelib.TransferNothing {
		c.Allocator.Free(a.Pointer())
	}
}

func (c *Converter) zeroTerminatedLen(data uint64, kind giruntime.ValueKind) (int, error) {
	size := uint64(kind.Size(c.ptrSize()))
	if size == 0 {
		return 0, errors.Unsupported(errors.PhaseDecode, "zero-terminated array of aggregates")
	}
	for n := 0; n < maxElements; n++ {
		a, err := c.Load(data+uint64(n)*size, kind)
		if err != nil {
			return 0, err
		}
		if a == 0 {
			return n, nil
		}
	}
	return 0, errors.OutOfBounds(errors.PhaseDecode, nil, maxElements, maxElements)
}

var elementTypes = map[typelib.TypeTag]reflect.Type{
	typelib.TagBoolean:  reflect.TypeFor[bool](),
	typelib.TagInt8:     reflect.TypeFor[int8](),
	typelib.TagUint8:    reflect.TypeFor[uint8](),
	typelib.TagInt16:    reflect.TypeFor[int16](),
	typelib.TagUint16:   reflect.TypeFor[uint16](),
	typelib.TagInt32:    reflect.TypeFor[int32](),
	typelib.TagUint32:   reflect.TypeFor[uint32](),
	typelib.TagInt64:    reflect.TypeFor[int64](),
	typelib.TagUint64:   reflect.TypeFor[uint64](),
	typelib.TagFloat:    reflect.TypeFor[float32](),
	typelib.TagDouble:   reflect.TypeFor[float64](),
	typelib.TagGType:    reflect.TypeFor[giruntime.GType](),
	typelib.TagUnichar:  reflect.TypeFor[rune](),
	typelib.TagUTF8:     reflect.TypeFor[string](),
	typelib.TagFilename: reflect.TypeFor[string](),
}

// typedSlice turns decoded elements of a basic type into a typed slice.
// Strings only qualify when no element is NULL.
func typedSlice(items []any, elem info.TypeInfo) any {
	if elem.IsPointer() && elem.Tag() != typelib.TagUTF8 && elem.Tag() != typelib.TagFilename {
		return items
	}
	rt, ok := elementTypes[elem.Tag()]
	if !ok {
		return items
	}
	out := reflect.MakeSlice(reflect.SliceOf(rt), len(items), len(items))
	for i, it := range items {
		if it == nil {
			return items
		}
		out.Index(i).Set(reflect.ValueOf(it))
	}
	return out.Interface()
}
