package typelib

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/typelib/internal/binary"
)

// Builder assembles typelib images. It is used for synthetic namespaces
// (host and wasm libraries without a compiled typelib) and for tests.
type Builder struct {
	namespace string
	version   string
	cPrefix   string
	libs      []string
	deps      []string
	entries   []entryDef
	ptrSize   uint32
}

type entryDef struct {
	layout func(e *emitter) layout
	emit   func(e *emitter)
	name   string
	typ    BlobType
	// storage is the integer tag backing enums and flags.
	storage TypeTag
}

// NewBuilder starts an image for namespace at version. Automatic struct
// layout assumes 64-bit pointers; see PointerSize.
func NewBuilder(namespace, version string) *Builder {
	return &Builder{namespace: namespace, version: version, ptrSize: 8}
}

// PointerSize sets the pointer width used for automatic layout.
func (b *Builder) PointerSize(n int) *Builder {
	b.ptrSize = uint32(n)
	return b
}

// SharedLibrary appends shared objects holding the namespace's symbols.
func (b *Builder) SharedLibrary(names ...string) *Builder {
	b.libs = append(b.libs, names...)
	return b
}

// CPrefix sets the C identifier prefix.
func (b *Builder) CPrefix(prefix string) *Builder {
	b.cPrefix = prefix
	return b
}

// Dependency records a required namespace.
func (b *Builder) Dependency(namespace, version string) *Builder {
	b.deps = append(b.deps, namespace+"-"+version)
	return b
}

// Function adds a top-level function.
func (b *Builder) Function(d FunctionDef) *Builder {
	b.entries = append(b.entries, entryDef{name: d.Name, typ: BlobFunction, emit: func(e *emitter) {
		e.function(d, nil)
	}})
	return b
}

// Callback adds a callback type.
func (b *Builder) Callback(d CallbackDef) *Builder {
	b.entries = append(b.entries, entryDef{name: d.Name, typ: BlobCallback, emit: func(e *emitter) {
		e.callback(d)
	}})
	return b
}

// Enum adds an enumeration or, with d.Flags, a flags type.
func (b *Builder) Enum(d EnumDef) *Builder {
	typ := BlobEnum
	if d.Flags {
		typ = BlobFlags
	}
	b.entries = append(b.entries, entryDef{name: d.Name, typ: typ, storage: d.Storage, emit: func(e *emitter) {
		e.enum(d, typ)
	}})
	return b
}

// Struct adds a struct or boxed type.
func (b *Builder) Struct(d StructDef) *Builder {
	typ := BlobStruct
	if d.Boxed {
		typ = BlobBoxed
	}
	b.entries = append(b.entries, entryDef{
		name: d.Name,
		typ:  typ,
		layout: func(e *emitter) layout {
			return e.layoutOf(d.Name, d.Fields, d.ExplicitLayout, d.Size, d.Alignment, false)
		},
		emit: func(e *emitter) { e.structBlob(d, typ) },
	})
	return b
}

// Union adds a union type.
func (b *Builder) Union(d UnionDef) *Builder {
	b.entries = append(b.entries, entryDef{
		name: d.Name,
		typ:  BlobUnion,
		layout: func(e *emitter) layout {
			return e.layoutOf(d.Name, d.Fields, d.ExplicitLayout, d.Size, d.Alignment, true)
		},
		emit: func(e *emitter) { e.union(d) },
	})
	return b
}

// Object adds an object type.
func (b *Builder) Object(d ObjectDef) *Builder {
	b.entries = append(b.entries, entryDef{name: d.Name, typ: BlobObject, emit: func(e *emitter) {
		e.object(d)
	}})
	return b
}

// Interface adds an interface type.
func (b *Builder) Interface(d InterfaceDef) *Builder {
	b.entries = append(b.entries, entryDef{name: d.Name, typ: BlobInterface, emit: func(e *emitter) {
		e.iface(d)
	}})
	return b
}

// Constant adds a top-level constant.
func (b *Builder) Constant(d ConstantDef) *Builder {
	b.entries = append(b.entries, entryDef{name: d.Name, typ: BlobConstant, emit: func(e *emitter) {
		e.constant(d)
	}})
	return b
}

// Build assembles the image and loads it.
func (b *Builder) Build() (*Typelib, error) {
	data, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	return LoadFromMemory(data)
}

// Bytes assembles the image.
func (b *Builder) Bytes() ([]byte, error) {
	e := &emitter{
		b:       b,
		w:       binary.NewWriter(),
		strs:    make(map[string][]uint32),
		index:   make(map[string]uint16),
		locals:  make(map[string]*entryDef),
		layouts: make(map[string]layout),
		busy:    make(map[string]bool),
	}
	return e.run()
}

type layout struct {
	offsets []uint32
	size    uint32
	align   uint32
}

type attrRec struct {
	name   string
	value  string
	offset uint32
}

type foreignRef struct {
	namespace string
	name      string
}

// owner resolves member names to indices within a compound type.
type owner struct {
	methods    map[string]int
	properties map[string]int
	vfuncs     map[string]int
	signals    map[string]int
}

func indexOf[T any](items []T, name func(T) string) map[string]int {
	m := make(map[string]int, len(items))
	for i, it := range items {
		m[name(it)] = i
	}
	return m
}

func newOwner(methods []FunctionDef, props []PropertyDef, vfuncs []VFuncDef, signals []SignalDef) *owner {
	return &owner{
		methods:    indexOf(methods, func(f FunctionDef) string { return f.Name }),
		properties: indexOf(props, func(p PropertyDef) string { return p.Name }),
		vfuncs:     indexOf(vfuncs, func(v VFuncDef) string { return v.Name }),
		signals:    indexOf(signals, func(s SignalDef) string { return s.Name }),
	}
}

func lookupIndex(m map[string]int, name string) uint32 {
	if name == "" || m == nil {
		return NoIndex
	}
	if i, ok := m[name]; ok {
		return uint32(i)
	}
	return NoIndex
}

type emitter struct {
	err     error
	b       *Builder
	w       *binary.Writer
	strs    map[string][]uint32
	index   map[string]uint16
	locals  map[string]*entryDef
	layouts map[string]layout
	busy    map[string]bool
	later   []func()
	attrs   []attrRec
	foreign []foreignRef
	nLocal  uint16
}

func (e *emitter) fail(format string, args ...any) {
	if e.err == nil {
		e.err = errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("typelib builder: "+format, args...))
	}
}

func (e *emitter) run() ([]byte, error) {
	entries := make([]entryDef, len(e.b.entries))
	copy(entries, e.b.entries)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	if len(entries) > math.MaxUint16 {
		return nil, errors.InvalidInput(errors.PhaseLoad, "typelib builder: too many entries")
	}
	e.nLocal = uint16(len(entries))
	for i := range entries {
		name := entries[i].name
		if name == "" || strings.Contains(name, ".") {
			return nil, errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("typelib builder: invalid entry name %q", name))
		}
		if _, dup := e.locals[name]; dup {
			return nil, errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("typelib builder: duplicate entry %q", name))
		}
		e.locals[name] = &entries[i]
		e.index[name] = uint16(i + 1)
	}

	w := e.w
	w.Zero(HeaderSize)

	offsets := make([]uint32, len(entries))
	for i := range entries {
		w.Align(4)
		offsets[i] = w.Len()
		entries[i].emit(e)
	}
	for len(e.later) > 0 {
		next := e.later[0]
		e.later = e.later[1:]
		next()
	}
	if e.err != nil {
		return nil, e.err
	}

	w.Align(4)
	dir := w.Len()
	for i, ent := range entries {
		w.U16(uint16(ent.typ))
		w.U16(1)
		e.str(ent.name)
		w.U32(offsets[i])
	}
	for _, f := range e.foreign {
		w.U16(uint16(BlobInvalid))
		w.U16(0)
		e.str(f.name)
		e.str(f.namespace)
	}

	sort.SliceStable(e.attrs, func(i, j int) bool { return e.attrs[i].offset < e.attrs[j].offset })
	attrs := w.Len()
	for _, a := range e.attrs {
		w.U32(a.offset)
		e.str(a.name)
		e.str(a.value)
	}

	e.strAt(hdrDependencies, strings.Join(e.b.deps, "|"))
	e.strAt(hdrNamespace, e.b.namespace)
	e.strAt(hdrNSVersion, e.b.version)
	e.strAt(hdrSharedLibrary, strings.Join(e.b.libs, ","))
	e.strAt(hdrCPrefix, e.b.cPrefix)
	e.flushStrings()

	for i := 0; i < len(Magic); i++ {
		w.Patch8(uint32(i), Magic[i])
	}
	w.Patch8(hdrMajor, MajorVersion)
	w.Patch8(hdrMinor, MinorVersion)
	w.Patch16(hdrNEntries, uint16(len(entries)+len(e.foreign)))
	w.Patch16(hdrNLocalEntries, e.nLocal)
	w.Patch32(hdrDirectory, dir)
	w.Patch32(hdrNAttributes, uint32(len(e.attrs)))
	w.Patch32(hdrAttributes, attrs)
	w.Patch32(hdrSize, w.Len())
	for i, sz := range blobSizeTable {
		w.Patch16(hdrBlobSizes+uint32(i)*2, sz)
	}
	return w.Bytes(), nil
}

func (e *emitter) postpone(fn func()) {
	e.later = append(e.later, fn)
}

// str writes a string offset slot for s, zero for the empty string.
func (e *emitter) str(s string) {
	e.strAt(e.w.Zero(4), s)
}

func (e *emitter) strAt(pos uint32, s string) {
	if s != "" {
		e.strs[s] = append(e.strs[s], pos)
	}
}

func (e *emitter) flushStrings() {
	keys := make([]string, 0, len(e.strs))
	for s := range e.strs {
		keys = append(keys, s)
	}
	sort.Strings(keys)
	for _, s := range keys {
		off := e.w.Len()
		e.w.CString(s)
		for _, pos := range e.strs[s] {
			e.w.Patch32(pos, off)
		}
	}
}

func (e *emitter) attributes(off uint32, attrs []Attribute) {
	for _, a := range attrs {
		e.attrs = append(e.attrs, attrRec{offset: off, name: a.Name, value: a.Value})
	}
}

// ref resolves an entity name to its directory index, adding a foreign
// entry for names qualified with another namespace.
func (e *emitter) ref(name string) uint16 {
	if name == "" {
		return 0
	}
	ns, local := e.b.namespace, name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		ns, local = name[:i], name[i+1:]
	}
	if ns == e.b.namespace {
		idx, ok := e.index[local]
		if !ok {
			e.fail("unresolved reference %q", name)
		}
		return idx
	}
	key := ns + "." + local
	if idx, ok := e.index[key]; ok {
		return idx
	}
	e.foreign = append(e.foreign, foreignRef{namespace: ns, name: local})
	idx := e.nLocal + uint16(len(e.foreign))
	e.index[key] = idx
	return idx
}

func bit(cond bool, n uint) uint16 {
	if cond {
		return 1 << n
	}
	return 0
}

func bit32(cond bool, n uint) uint32 {
	return uint32(bit(cond, n))
}

// simpleType writes a SimpleTypeBlob. Non-basic types are written later and
// referenced by offset.
func (e *emitter) simpleType(t TypeDef) {
	if t.Tag.IsBasic() {
		v := uint32(t.Tag) << 27
		if t.Pointer {
			v |= 1 << 24
		}
		e.w.U32(v)
		return
	}
	pos := e.w.Zero(4)
	e.postpone(func() {
		e.w.Align(4)
		e.w.Patch32(pos, e.w.Len())
		e.complexType(t)
	})
}

func (e *emitter) complexType(t TypeDef) {
	w := e.w
	head := byte(t.Tag) << 3
	if t.Pointer {
		head |= 1
	}
	switch t.Tag {
	case TagInterface:
		w.Byte(head)
		w.Byte(0)
		w.U16(e.ref(t.Interface))
	case TagArray:
		w.U16(uint16(head) | bit(t.ZeroTerminated, 8) | bit(t.HasLength, 9) | bit(t.HasFixedSize, 10) | uint16(t.ArrayType&3)<<11)
		switch {
		case t.HasLength:
			w.U16(uint16(t.Length))
		case t.HasFixedSize:
			w.U16(uint16(t.FixedSize))
		default:
			w.U16(0)
		}
		elem := TypeDef{}
		if len(t.Params) > 0 {
			elem = t.Params[0]
		}
		e.simpleType(elem)
	case TagGList, TagGSList, TagGHash:
		w.Byte(head)
		w.Byte(0)
		w.U16(uint16(len(t.Params)))
		for _, p := range t.Params {
			e.simpleType(p)
		}
	case TagError:
		w.Byte(head)
		w.Byte(0)
		w.U16(0)
	default:
		e.fail("type tag %s cannot be encoded", t.Tag)
	}
}

func (e *emitter) signature(sig SignatureDef) {
	pos := e.w.Zero(4)
	e.postpone(func() {
		w := e.w
		w.Align(4)
		w.Patch32(pos, w.Len())
		e.simpleType(sig.Return)
		w.U16(bit(sig.MayReturnNull, 0) |
			bit(sig.ReturnTransfer == TransferEverything, 1) |
			bit(sig.ReturnTransfer == TransferContainer, 2) |
			bit(sig.SkipReturn, 3) |
			bit(sig.InstanceTransfer == TransferEverything, 4) |
			bit(sig.Throws, 5))
		w.U16(uint16(len(sig.Args)))
		for _, a := range sig.Args {
			e.arg(a)
		}
	})
}

func (e *emitter) arg(a ArgDef) {
	w := e.w
	e.str(a.Name)
	flags := bit32(a.Direction == DirectionIn || a.Direction == DirectionInOut, 0) |
		bit32(a.Direction == DirectionOut || a.Direction == DirectionInOut, 1) |
		bit32(a.CallerAllocates, 2) |
		bit32(a.Nullable, 3) |
		bit32(a.Optional, 4) |
		bit32(a.Transfer == TransferEverything, 5) |
		bit32(a.Transfer == TransferContainer, 6) |
		bit32(a.ReturnValue, 7) |
		uint32(a.Scope&7)<<8 |
		bit32(a.Skip, 11)
	w.U32(flags)
	w.Byte(byte(int8(a.Closure)))
	w.Byte(byte(int8(a.Destroy)))
	w.U16(0)
	e.simpleType(a.Type)
}

func (e *emitter) function(d FunctionDef, o *owner) {
	w := e.w
	off := w.Len()
	idx := uint32(NoIndex)
	if o != nil {
		switch {
		case d.Getter || d.Setter:
			idx = lookupIndex(o.properties, d.Property)
		case d.VFunc != "":
			idx = lookupIndex(o.vfuncs, d.VFunc)
		}
	}
	w.U16(uint16(BlobFunction))
	w.U16(bit(d.Deprecated, 0) | bit(d.Setter, 1) | bit(d.Getter, 2) | bit(d.Constructor, 3) |
		bit(d.VFunc != "", 4) | bit(d.Throws, 5) | uint16(idx&NoIndex)<<6)
	e.str(d.Name)
	e.str(d.Symbol)
	e.signature(d.SignatureDef)
	w.U16(bit(!d.Method && !d.Constructor, 0))
	w.U16(0)
	e.attributes(off, d.Attributes)
}

func (e *emitter) functions(fns []FunctionDef, o *owner) {
	for _, f := range fns {
		e.function(f, o)
	}
}

func (e *emitter) callback(d CallbackDef) {
	off := e.w.Len()
	e.w.U16(uint16(BlobCallback))
	e.w.U16(bit(d.Deprecated, 0))
	e.str(d.Name)
	e.signature(d.SignatureDef)
	e.attributes(off, d.Attributes)
}

func (e *emitter) enum(d EnumDef, typ BlobType) {
	w := e.w
	off := w.Len()
	w.U16(uint16(typ))
	w.U16(bit(d.Deprecated, 0) | bit(d.GTypeName == "", 1) | uint16(d.Storage&0x1f)<<2)
	e.str(d.Name)
	e.str(d.GTypeName)
	e.str(d.GTypeInit)
	w.U16(uint16(len(d.Values)))
	w.U16(uint16(len(d.Methods)))
	e.str(d.ErrorDomain)
	e.attributes(off, d.Attributes)
	for _, v := range d.Values {
		if v.Value < math.MinInt32 || v.Value > math.MaxUint32 {
			e.fail("value %s.%s = %d does not fit 32 bits", d.Name, v.Name, v.Value)
		}
		w.U32(bit32(v.Deprecated, 0) | bit32(v.Value > math.MaxInt32, 1))
		e.str(v.Name)
		w.U32(uint32(v.Value))
	}
	e.functions(d.Methods, newOwner(d.Methods, nil, nil, nil))
}

func (e *emitter) field(f FieldDef, offset uint32) {
	w := e.w
	e.str(f.Name)
	w.Byte(byte(bit(f.Readable, 0) | bit(f.Writable, 1) | bit(f.Callback != nil, 2)))
	w.Byte(f.Bits)
	if offset > math.MaxUint16 {
		e.fail("field %s offset %d does not fit 16 bits", f.Name, offset)
	}
	w.U16(uint16(offset))
	w.U32(0)
	e.simpleType(f.Type)
	if f.Callback != nil {
		e.callback(*f.Callback)
	}
}

func (e *emitter) fields(fields []FieldDef, lay layout) {
	for i, f := range fields {
		e.field(f, lay.offsets[i])
	}
}

func (e *emitter) structBlob(d StructDef, typ BlobType) {
	w := e.w
	lay := e.layoutOf(d.Name, d.Fields, d.ExplicitLayout, d.Size, d.Alignment, false)
	off := w.Len()
	w.U16(uint16(typ))
	w.U16(bit(d.Deprecated, 0) | bit(d.GTypeName == "", 1) | bit(d.GTypeStruct, 2) |
		uint16(lay.align&0x3f)<<3 | bit(d.Foreign, 9))
	e.str(d.Name)
	e.str(d.GTypeName)
	e.str(d.GTypeInit)
	w.U32(lay.size)
	w.U16(uint16(len(d.Fields)))
	w.U16(uint16(len(d.Methods)))
	e.str(d.CopyFunc)
	e.str(d.FreeFunc)
	e.attributes(off, d.Attributes)
	e.fields(d.Fields, lay)
	e.functions(d.Methods, newOwner(d.Methods, nil, nil, nil))
}

func (e *emitter) union(d UnionDef) {
	w := e.w
	lay := e.layoutOf(d.Name, d.Fields, d.ExplicitLayout, d.Size, d.Alignment, true)
	off := w.Len()
	disc := d.Discriminator
	w.U16(uint16(BlobUnion))
	w.U16(bit(d.Deprecated, 0) | bit(d.GTypeName == "", 1) | bit(disc != nil, 2) | uint16(lay.align&0x3f)<<3)
	e.str(d.Name)
	e.str(d.GTypeName)
	e.str(d.GTypeInit)
	w.U32(lay.size)
	w.U16(uint16(len(d.Fields)))
	w.U16(uint16(len(d.Methods)))
	e.str(d.CopyFunc)
	e.str(d.FreeFunc)
	if disc != nil {
		w.U32(uint32(disc.Offset))
		e.simpleType(disc.Type)
	} else {
		w.U32(0)
		w.U32(0)
	}
	e.attributes(off, d.Attributes)
	e.fields(d.Fields, lay)
	e.functions(d.Methods, newOwner(d.Methods, nil, nil, nil))
	if disc != nil {
		if len(disc.Values) != len(d.Fields) {
			e.fail("union %s: %d discriminator values for %d fields", d.Name, len(disc.Values), len(d.Fields))
		}
		for _, c := range disc.Values {
			e.constant(c)
		}
	}
}

func (e *emitter) property(p PropertyDef, o *owner) {
	w := e.w
	e.str(p.Name)
	w.U32(bit32(p.Deprecated, 0) | bit32(p.Readable, 1) | bit32(p.Writable, 2) |
		bit32(p.Construct, 3) | bit32(p.ConstructOnly, 4) |
		bit32(p.Transfer == TransferEverything, 5) | bit32(p.Transfer == TransferContainer, 6))
	w.U32(lookupIndex(o.methods, p.Setter) | lookupIndex(o.methods, p.Getter)<<10)
	e.simpleType(p.Type)
}

func (e *emitter) signal(s SignalDef, o *owner) {
	w := e.w
	closure := lookupIndex(o.vfuncs, s.ClassClosure)
	w.U16(bit(s.Deprecated, 0) | bit(s.RunFirst, 1) | bit(s.RunLast, 2) | bit(s.RunCleanup, 3) |
		bit(s.NoRecurse, 4) | bit(s.Detailed, 5) | bit(s.Action, 6) | bit(s.NoHooks, 7) |
		bit(closure != NoIndex, 8) | bit(s.TrueStopsEmit, 9))
	if closure == NoIndex {
		closure = 0
	}
	w.U16(uint16(closure))
	e.str(s.Name)
	w.U32(0)
	e.signature(s.SignatureDef)
}

func (e *emitter) vfunc(v VFuncDef, o *owner) {
	w := e.w
	sig := lookupIndex(o.signals, v.Signal)
	e.str(v.Name)
	w.U16(bit(v.MustChainUp, 0) | bit(v.MustBeImplemented, 1) | bit(v.MustNotBeImplemented, 2) |
		bit(sig != NoIndex, 3) | bit(v.Throws, 4))
	if sig == NoIndex {
		sig = 0
	}
	w.U16(uint16(sig))
	w.U16(v.StructOffset)
	w.U16(uint16(lookupIndex(o.methods, v.Invoker)))
	w.U32(0)
	e.signature(v.SignatureDef)
}

func (e *emitter) constant(d ConstantDef) {
	w := e.w
	off := w.Len()
	w.U16(uint16(BlobConstant))
	w.U16(bit(d.Deprecated, 0))
	e.str(d.Name)
	e.simpleType(d.Type)
	sizePos := w.Zero(4)
	valPos := w.Zero(4)
	w.U32(0)
	e.attributes(off, d.Attributes)
	e.postpone(func() {
		data, err := encodeConstant(d.Type, d.Value)
		if err != nil {
			e.fail("constant %s: %v", d.Name, err)
			return
		}
		w.Align(8)
		w.Patch32(valPos, w.Len())
		w.Patch32(sizePos, uint32(len(data)))
		w.WriteBytes(data)
	})
}

func (e *emitter) object(d ObjectDef) {
	w := e.w
	off := w.Len()
	o := newOwner(d.Methods, d.Properties, d.VFuncs, d.Signals)
	lay := e.layoutOf(d.Name, d.Fields, false, 0, 0, false)
	callbacks := 0
	for _, f := range d.Fields {
		if f.Callback != nil {
			callbacks++
		}
	}
	w.U16(uint16(BlobObject))
	w.U16(bit(d.Deprecated, 0) | bit(d.Abstract, 1) | bit(d.Fundamental, 2) | bit(d.Final, 3))
	e.str(d.Name)
	e.str(d.GTypeName)
	e.str(d.GTypeInit)
	w.U16(e.ref(d.Parent))
	w.U16(e.ref(d.ClassStruct))
	w.U16(uint16(len(d.Interfaces)))
	w.U16(uint16(len(d.Fields)))
	w.U16(uint16(len(d.Properties)))
	w.U16(uint16(len(d.Methods)))
	w.U16(uint16(len(d.Signals)))
	w.U16(uint16(len(d.VFuncs)))
	w.U16(uint16(len(d.Constants)))
	w.U16(uint16(callbacks))
	e.str(d.RefFunc)
	e.str(d.UnrefFunc)
	e.str(d.SetValueFunc)
	e.str(d.GetValueFunc)
	w.U32(0)
	w.U32(0)
	e.attributes(off, d.Attributes)
	e.refList(d.Interfaces)
	e.fields(d.Fields, lay)
	e.members(d.Properties, d.Methods, d.Signals, d.VFuncs, d.Constants, o)
}

func (e *emitter) iface(d InterfaceDef) {
	w := e.w
	off := w.Len()
	o := newOwner(d.Methods, d.Properties, d.VFuncs, d.Signals)
	w.U16(uint16(BlobInterface))
	w.U16(bit(d.Deprecated, 0))
	e.str(d.Name)
	e.str(d.GTypeName)
	e.str(d.GTypeInit)
	w.U16(e.ref(d.IfaceStruct))
	w.U16(uint16(len(d.Prerequisites)))
	w.U16(uint16(len(d.Properties)))
	w.U16(uint16(len(d.Methods)))
	w.U16(uint16(len(d.Signals)))
	w.U16(uint16(len(d.VFuncs)))
	w.U16(uint16(len(d.Constants)))
	w.U16(0)
	w.U32(0)
	w.U32(0)
	e.attributes(off, d.Attributes)
	e.refList(d.Prerequisites)
	e.members(d.Properties, d.Methods, d.Signals, d.VFuncs, d.Constants, o)
}

// refList writes directory indices padded to an even count.
func (e *emitter) refList(names []string) {
	for _, n := range names {
		e.w.U16(e.ref(n))
	}
	if len(names)%2 != 0 {
		e.w.U16(0)
	}
}

func (e *emitter) members(props []PropertyDef, methods []FunctionDef, signals []SignalDef, vfuncs []VFuncDef, consts []ConstantDef, o *owner) {
	for _, p := range props {
		e.property(p, o)
	}
	e.functions(methods, o)
	for _, s := range signals {
		e.signal(s, o)
	}
	for _, v := range vfuncs {
		e.vfunc(v, o)
	}
	for _, c := range consts {
		e.constant(c)
	}
}
