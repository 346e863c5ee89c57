package binding

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/override"
	"github.com/wippyai/gi-runtime/typelib"
)

// Class is the generated definition of an object, interface, struct or
// union type. Its operation table holds the type's own functions, then
// the parent chain's, then those of implemented interfaces.
type Class struct {
	mod      *Module
	bi       *info.BaseInfo
	parent   *Class
	ifaces   []*Class
	methods  map[string]*Function
	name     string
	gtype    giruntime.GType
	gtypeErr error
	once     sync.Once
	gtOnce   sync.Once
	mu       sync.Mutex
	kind     info.InfoKind
}

func newClass(m *Module, bi *info.BaseInfo) *Class {
	return &Class{mod: m, bi: bi, name: bi.Name(), kind: bi.Kind(), methods: make(map[string]*Function)}
}

// TypeName returns the type name inside its namespace.
func (c *Class) TypeName() string { return c.name }

func (c *Class) Name() string { return c.name }

// QualifiedName returns "Namespace.Name".
func (c *Class) QualifiedName() string { return c.mod.Name() + "." + c.name }

func (c *Class) Module() *Module      { return c.mod }
func (c *Class) Info() *info.BaseInfo { return c.bi }
func (c *Class) Kind() info.InfoKind  { return c.kind }
func (c *Class) String() string       { return c.kind.String() + " " + c.QualifiedName() }

// IsInstanceType reports whether values of the class are reference
// counted instances (objects and interfaces).
func (c *Class) IsInstanceType() bool {
	return c.kind == info.KindObject || c.kind == info.KindInterface
}

// IsValueType reports whether the class is a struct or union.
func (c *Class) IsValueType() bool {
	return c.kind == info.KindStruct || c.kind == info.KindBoxed || c.kind == info.KindUnion
}

// GTypeName returns the registered GType name, empty for unregistered
// types.
func (c *Class) GTypeName() string {
	rt, err := c.bi.AsRegisteredType()
	if err != nil {
		return ""
	}
	return rt.TypeName()
}

// GType calls the type's get_type function.
func (c *Class) GType() (giruntime.GType, error) {
	c.gtOnce.Do(func() {
		rt, err := c.bi.AsRegisteredType()
		if err != nil || rt.TypeInit() == "" {
			c.gtypeErr = errors.Unsupported(errors.PhaseLookup, "GType of unregistered "+c.QualifiedName())
			return
		}
		sig := giruntime.Signature{Result: gtypeKind(c.mod.lib)}
		v, err := c.mod.callSymbol(rt.TypeInit(), sig)
		if err != nil {
			c.gtypeErr = err
			return
		}
		c.gtype = giruntime.GType(v)
	})
	return c.gtype, c.gtypeErr
}

// gtypeKind is the slot of a GType, which is gsize wide. Signal handler
// ids (gulong) share it on every supported target.
func gtypeKind(lib giruntime.Library) giruntime.ValueKind {
	if lib.Memory().PointerSize() == 4 {
		return giruntime.KindU32
	}
	return giruntime.KindU64
}

// Size returns the instance size of structs and unions, 0 otherwise.
func (c *Class) Size() uint32 {
	switch c.kind {
	case info.KindStruct, info.KindBoxed:
		return c.bi.MustStruct().Size()
	case info.KindUnion:
		return c.bi.MustUnion().Size()
	}
	return 0
}

func (c *Class) hierarchy() {
	c.once.Do(func() {
		var refs []*info.BaseInfo
		switch c.kind {
		case info.KindObject:
			o := c.bi.MustObject()
			if p := o.ParentRef(); p != nil {
				refs = append(refs, p)
				c.parent = c.link(p)
			}
			for _, ib := range o.Interfaces() {
				refs = append(refs, ib)
				if ic := c.link(ib); ic != nil {
					c.ifaces = append(c.ifaces, ic)
				}
			}
		case info.KindInterface:
			for _, pb := range c.bi.MustInterface().Prerequisites() {
				refs = append(refs, pb)
				if pb.Kind() != info.KindInterface {
					continue
				}
				if pc := c.link(pb); pc != nil {
					c.ifaces = append(c.ifaces, pc)
				}
			}
		}
		info.Release(refs)
	})
}

func (c *Class) link(bi *info.BaseInfo) *Class {
	k, err := c.mod.rt.classOf(bi)
	if err != nil {
		Logger().Debug("related type unavailable",
			zap.String("class", c.QualifiedName()),
			zap.String("related", bi.QualifiedName()),
			zap.Error(err))
		return nil
	}
	return k
}

// Parent returns the parent class, nil for roots, non-objects and
// parents whose namespace is not available.
func (c *Class) Parent() *Class {
	c.hierarchy()
	return c.parent
}

// Interfaces returns the interfaces an object implements, or the
// interface prerequisites of an interface.
func (c *Class) Interfaces() []*Class {
	c.hierarchy()
	return append([]*Class(nil), c.ifaces...)
}

// IsA reports whether c is other, descends from it or implements it.
func (c *Class) IsA(other *Class) bool {
	if other == nil {
		return false
	}
	if c == other || c.QualifiedName() == other.QualifiedName() {
		return true
	}
	if p := c.Parent(); p != nil && p.IsA(other) {
		return true
	}
	for _, i := range c.Interfaces() {
		if i.IsA(other) {
			return true
		}
	}
	return false
}

// ownMethod returns a function defined directly on the type.
func (c *Class) ownMethod(name string) (*Function, bool) {
	c.mu.Lock()
	f, cached := c.methods[name]
	c.mu.Unlock()
	if cached {
		return f, f != nil
	}

	var fi info.FunctionInfo
	var ok bool
	switch c.kind {
	case info.KindObject:
		fi, ok = c.bi.MustObject().FindMethod(name)
	case info.KindInterface:
		fi, ok = c.bi.MustInterface().FindMethod(name)
	case info.KindStruct, info.KindBoxed:
		fi, ok = c.bi.MustStruct().FindMethod(name)
	case info.KindUnion:
		fi, ok = c.bi.MustUnion().FindMethod(name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, cached := c.methods[name]; cached {
		if ok {
			fi.Unref()
		}
		return prev, prev != nil
	}
	if ok {
		f = &Function{mod: c.mod, fi: fi, owner: c}
	}
	c.methods[name] = f
	return f, ok
}

// release drops the infos of cached methods.
func (c *Class) release() {
	c.mu.Lock()
	methods := c.methods
	c.methods = make(map[string]*Function)
	c.mu.Unlock()
	for _, f := range methods {
		if f != nil {
			f.fi.Unref()
		}
	}
}

// replacement returns the override registered for the class.
func (c *Class) replacement() (override.Replacement, bool) {
	t := c.mod.Overrides()
	if t == nil {
		return nil, false
	}
	return t.Lookup(c.name)
}

// lookup resolves name through the operation table with overrides: at
// each class an override's methods come before the generated ones.
func (c *Class) lookup(name string) (override.Method, *Function, bool) {
	if r, ok := c.replacement(); ok {
		if mt, ok := r.(override.MethodTable); ok {
			if m, ok := mt.Method(name); ok {
				return m, nil, true
			}
		}
	}
	if f, ok := c.ownMethod(name); ok {
		return nil, f, true
	}
	if p := c.Parent(); p != nil {
		if m, f, ok := p.lookup(name); ok {
			return m, f, true
		}
	}
	for _, i := range c.Interfaces() {
		if m, f, ok := i.lookup(name); ok {
			return m, f, true
		}
	}
	return nil, nil, false
}

// construct hands a generated wrapper to the Constructor override of the
// class or of its nearest overridden ancestor. The wrapper is released
// when construction fails.
func (c *Class) construct(v any, h *handle) (any, error) {
	for k := c; k != nil; k = k.Parent() {
		r, ok := k.replacement()
		if !ok {
			continue
		}
		ctor, ok := r.(override.Constructor)
		if !ok {
			continue
		}
		out, err := ctor.Construct(v)
		if err != nil {
			_ = h.Release()
			return nil, errors.Wrap(errors.PhaseOverride, errors.KindInvalidInput, err, "construct "+c.QualifiedName())
		}
		return out, nil
	}
	return v, nil
}

// wrapInstance wraps an instance with its generated wrapper, then hands
// that to the overrides.
func (c *Class) wrapInstance(ptr uint64, owned bool) (any, error) {
	o, err := wrapObject(c, ptr, owned)
	if err != nil {
		return nil, err
	}
	return c.construct(o, &o.handle)
}

// wrapValue is wrapInstance for structs and unions.
func (c *Class) wrapValue(ptr uint64, transfer typelib.Transfer) (any, error) {
	b, err := wrapBoxed(c, ptr, transfer)
	if err != nil {
		return nil, err
	}
	return c.construct(b, &b.handle)
}

// Method resolves name to a generated function through the operation
// table, ignoring overrides.
func (c *Class) Method(name string) (*Function, bool) {
	if f, ok := c.ownMethod(name); ok {
		return f, true
	}
	if p := c.Parent(); p != nil {
		if f, ok := p.Method(name); ok {
			return f, true
		}
	}
	for _, i := range c.Interfaces() {
		if f, ok := i.Method(name); ok {
			return f, true
		}
	}
	return nil, false
}

// MethodNames lists every name the operation table resolves, sorted.
func (c *Class) MethodNames() []string {
	seen := make(map[string]bool)
	c.collectMethods(seen)
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c *Class) collectMethods(seen map[string]bool) {
	var fns []info.FunctionInfo
	switch c.kind {
	case info.KindObject:
		fns = c.bi.MustObject().Methods()
	case info.KindInterface:
		fns = c.bi.MustInterface().Methods()
	case info.KindStruct, info.KindBoxed:
		fns = c.bi.MustStruct().Methods()
	case info.KindUnion:
		fns = c.bi.MustUnion().Methods()
	}
	for _, f := range fns {
		seen[f.Name()] = true
		f.Unref()
	}
	if p := c.Parent(); p != nil {
		p.collectMethods(seen)
	}
	for _, i := range c.Interfaces() {
		i.collectMethods(seen)
	}
}

// Call invokes a function of the class, typically a constructor or a
// static function, preferring override methods. Methods need the
// receiver as first argument.
func (c *Class) Call(ctx context.Context, name string, args ...any) ([]any, error) {
	m, f, ok := c.lookup(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseLookup, "function", c.QualifiedName()+"."+name)
	}
	if m != nil {
		return m(ctx, nil, args...)
	}
	return f.Call(ctx, args...)
}

// Constant returns a constant declared on an object or interface.
func (c *Class) Constant(name string) (any, bool) {
	var ci info.ConstantInfo
	var ok bool
	switch c.kind {
	case info.KindObject:
		ci, ok = c.bi.MustObject().FindConstant(name)
	case info.KindInterface:
		for _, k := range c.bi.MustInterface().Constants() {
			if !ok && k.Name() == name {
				ci, ok = k, true
				continue
			}
			k.Unref()
		}
	}
	if !ok {
		return nil, false
	}
	defer ci.Unref()
	return ci.Value(), true
}

// field finds a field of a struct, union or object instance.
func (c *Class) field(name string) (info.FieldInfo, bool) {
	switch c.kind {
	case info.KindStruct, info.KindBoxed:
		return c.bi.MustStruct().FindField(name)
	case info.KindUnion:
		return c.bi.MustUnion().FindField(name)
	case info.KindObject:
		for _, f := range c.bi.MustObject().Fields() {
			if f.Name() == name {
				return f, true
			}
			f.Unref()
		}
	}
	return info.FieldInfo{}, false
}

// Fields lists the field names in declaration order.
func (c *Class) Fields() []string {
	var fields []info.FieldInfo
	switch c.kind {
	case info.KindStruct, info.KindBoxed:
		fields = c.bi.MustStruct().Fields()
	case info.KindUnion:
		fields = c.bi.MustUnion().Fields()
	case info.KindObject:
		fields = c.bi.MustObject().Fields()
	}
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name())
		f.Unref()
	}
	return names
}

// New allocates a zero-initialized struct or union owned by the returned
// value: a *Boxed, or what the type's Constructor override makes of it.
func (c *Class) New() (any, error) {
	if !c.IsValueType() {
		return nil, errors.Unsupported(errors.PhaseRuntime, "New on "+c.String())
	}
	size := c.Size()
	if size == 0 {
		return nil, errors.Unsupported(errors.PhaseRuntime, "allocation of opaque "+c.QualifiedName())
	}
	ptr, err := c.mod.lib.Allocator().Alloc(size, c.alignment())
	if err != nil {
		return nil, errors.AllocationFailed(errors.PhaseRuntime, size, c.alignment(), err)
	}
	b := &Boxed{handle{class: c, ptr: ptr}}
	if err := b.own(c.allocatorFree()); err != nil {
		c.mod.lib.Allocator().Free(ptr)
		return nil, err
	}
	return c.construct(b, &b.handle)
}

func (c *Class) alignment() uint32 {
	var a uint32
	switch c.kind {
	case info.KindStruct, info.KindBoxed:
		a = c.bi.MustStruct().Alignment()
	case info.KindUnion:
		a = c.bi.MustUnion().Alignment()
	}
	if a == 0 {
		a = uint32(c.mod.lib.Memory().PointerSize())
	}
	return a
}

func (c *Class) allocatorFree() func(uint64) error {
	alloc := c.mod.lib.Allocator()
	return func(ptr uint64) error {
		alloc.Free(ptr)
		return nil
	}
}

// copyFunction and freeFunction return the type's boxed helpers.
func (c *Class) copyFunction() string {
	switch c.kind {
	case info.KindStruct, info.KindBoxed:
		return c.bi.MustStruct().CopyFunction()
	case info.KindUnion:
		return c.bi.MustUnion().CopyFunction()
	}
	return ""
}

func (c *Class) freeFunction() string {
	switch c.kind {
	case info.KindStruct, info.KindBoxed:
		return c.bi.MustStruct().FreeFunction()
	case info.KindUnion:
		return c.bi.MustUnion().FreeFunction()
	}
	return ""
}

// isBoxed reports whether values have a registered copy/free pair.
func (c *Class) isBoxed() bool {
	return c.kind == info.KindBoxed || c.copyFunction() != "" || c.freeFunction() != ""
}

// refFunctions returns the symbols taking and dropping an instance
// reference.
func (c *Class) refFunctions() (ref, unref string) {
	if c.kind == info.KindObject {
		o := c.bi.MustObject()
		ref, unref = o.RefFunction(), o.UnrefFunction()
		if ref == "" && unref == "" {
			if p := c.Parent(); p != nil {
				return p.refFunctions()
			}
		}
	}
	if ref == "" {
		ref = "g_object_ref_sink"
		if _, ok := c.mod.symbol(ref); !ok {
			ref = "g_object_ref"
		}
	}
	if unref == "" {
		unref = "g_object_unref"
	}
	return ref, unref
}

// Wrap builds the host value for an instance or struct pointer. owned
// says whether the caller hands over a reference (or the allocation).
// Overrides of the class construct the result.
func (c *Class) Wrap(ptr uint64, owned bool) (any, error) {
	if ptr == 0 {
		return nil, nil
	}
	if c.IsInstanceType() {
		return c.wrapInstance(ptr, owned)
	}
	if c.IsValueType() {
		t := typelib.TransferNothing
		if owned {
			t = typelib.TransferEverything
		}
		return c.wrapValue(ptr, t)
	}
	return nil, errors.Unsupported(errors.PhaseDecode, "wrap "+c.String())
}
