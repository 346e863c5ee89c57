package typelib

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

func alignUp(n, a uint32) uint32 {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}

// layoutOf computes field offsets, size and alignment of a compound type,
// caching the result by name.
func (e *emitter) layoutOf(name string, fields []FieldDef, explicit bool, size uint32, align uint8, union bool) layout {
	if l, ok := e.layouts[name]; ok {
		return l
	}
	if e.busy[name] {
		e.fail("type %s contains itself by value", name)
		return layout{offsets: make([]uint32, len(fields)), align: 1}
	}
	e.busy[name] = true
	defer delete(e.busy, name)

	l := layout{offsets: make([]uint32, len(fields)), align: 1}
	if explicit {
		for i, f := range fields {
			l.offsets[i] = uint32(f.Offset)
		}
		l.size = size
		l.align = uint32(align)
		if l.align == 0 {
			l.align = 1
		}
		e.layouts[name] = l
		return l
	}

	var end uint32
	for i, f := range fields {
		fs, fa := e.fieldLayout(f)
		if fa > l.align {
			l.align = fa
		}
		if union {
			if fs > end {
				end = fs
			}
			continue
		}
		end = alignUp(end, fa)
		l.offsets[i] = end
		end += fs
	}
	l.size = alignUp(end, l.align)
	e.layouts[name] = l
	return l
}

func (e *emitter) fieldLayout(f FieldDef) (size, align uint32) {
	if f.Callback != nil {
		return e.b.ptrSize, e.b.ptrSize
	}
	return e.typeLayout(f.Type)
}

// typeLayout returns the in-memory size and alignment of t.
func (e *emitter) typeLayout(t TypeDef) (size, align uint32) {
	p := e.b.ptrSize
	if t.Pointer {
		return p, p
	}
	switch t.Tag {
	case TagInt8, TagUint8:
		return 1, 1
	case TagInt16, TagUint16:
		return 2, 2
	case TagBoolean, TagInt32, TagUint32, TagFloat, TagUnichar:
		return 4, 4
	case TagInt64, TagUint64, TagDouble:
		return 8, 8
	case TagArray:
		if t.HasFixedSize && len(t.Params) > 0 {
			s, a := e.typeLayout(t.Params[0])
			return s * uint32(t.FixedSize), a
		}
	case TagInterface:
		return e.entityLayout(t.Interface)
	}
	return p, p
}

func (e *emitter) entityLayout(name string) (size, align uint32) {
	p := e.b.ptrSize
	local := name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		if name[:i] != e.b.namespace {
			return p, p
		}
		local = name[i+1:]
	}
	def, ok := e.locals[local]
	if !ok {
		return p, p
	}
	switch def.typ {
	case BlobEnum, BlobFlags:
		if def.storage == TagVoid {
			return 4, 4
		}
		return e.typeLayout(TypeDef{Tag: def.storage})
	case BlobStruct, BlobBoxed, BlobUnion:
		l := def.layout(e)
		return l.size, l.align
	}
	return p, p
}

// encodeConstant serializes a constant value the way the typelib stores it.
func encodeConstant(t TypeDef, v any) ([]byte, error) {
	var buf [8]byte
	le := binary.LittleEndian
	switch t.Tag {
	case TagBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("want bool, got %T", v)
		}
		if b {
			le.PutUint32(buf[:], 1)
		}
		return buf[:4], nil
	case TagInt8, TagUint8, TagInt16, TagUint16, TagInt32, TagUint32, TagInt64, TagUint64, TagGType, TagUnichar:
		n, ok := constantBits(v)
		if !ok {
			return nil, fmt.Errorf("want integer, got %T", v)
		}
		le.PutUint64(buf[:], n)
		switch t.Tag {
		case TagInt8, TagUint8:
			return buf[:1], nil
		case TagInt16, TagUint16:
			return buf[:2], nil
		case TagInt32, TagUint32, TagUnichar:
			return buf[:4], nil
		}
		return buf[:8], nil
	case TagFloat:
		f, ok := constantFloat(v)
		if !ok {
			return nil, fmt.Errorf("want number, got %T", v)
		}
		le.PutUint32(buf[:], math.Float32bits(float32(f)))
		return buf[:4], nil
	case TagDouble:
		f, ok := constantFloat(v)
		if !ok {
			return nil, fmt.Errorf("want number, got %T", v)
		}
		le.PutUint64(buf[:], math.Float64bits(f))
		return buf[:8], nil
	case TagUTF8, TagFilename:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", v)
		}
		return append([]byte(s), 0), nil
	}
	return nil, fmt.Errorf("unsupported constant type %s", t.Tag)
}

func constantBits(v any) (uint64, bool) {
	switch n := v.(type) {
	case int:
		return uint64(n), true
	case int8:
		return uint64(n), true
	case int16:
		return uint64(n), true
	case int32:
		return uint64(n), true
	case int64:
		return uint64(n), true
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	}
	return 0, false
}

func constantFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
