package binding

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/argument"
	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/typelib"
)

// A GValue is a GType followed by two 8-byte data words; the words are
// 8-aligned on every supported target.
const (
	gvalueSize = 24
	gvalueData = 8
)

// fundamental GTypes (G_TYPE_MAKE_FUNDAMENTAL) of the basic tags.
var fundamentals = map[typelib.TypeTag]giruntime.GType{
	typelib.TagInt8:     3 << 2,
	typelib.TagUint8:    4 << 2,
	typelib.TagBoolean:  5 << 2,
	typelib.TagInt16:    6 << 2,
	typelib.TagInt32:    6 << 2,
	typelib.TagUint16:   7 << 2,
	typelib.TagUint32:   7 << 2,
	typelib.TagUnichar:  7 << 2,
	typelib.TagInt64:    10 << 2,
	typelib.TagUint64:   11 << 2,
	typelib.TagFloat:    14 << 2,
	typelib.TagDouble:   15 << 2,
	typelib.TagUTF8:     16 << 2,
	typelib.TagFilename: 16 << 2,
}

const gtypePointer giruntime.GType = 17 << 2

// canonical spells a property or signal name the way GObject stores it.
func canonical(name string) string { return strings.ReplaceAll(name, "_", "-") }

// property resolves a property through the class, its parents and its
// interfaces.
func (c *Class) property(name string) (info.PropertyInfo, bool) {
	switch c.kind {
	case info.KindObject:
		if p, ok := c.bi.MustObject().FindProperty(name); ok {
			return p, true
		}
	case info.KindInterface:
		if p, ok := c.bi.MustInterface().FindProperty(name); ok {
			return p, true
		}
	}
	if p := c.Parent(); p != nil {
		if pi, ok := p.property(name); ok {
			return pi, true
		}
	}
	for _, i := range c.Interfaces() {
		if pi, ok := i.property(name); ok {
			return pi, true
		}
	}
	return info.PropertyInfo{}, false
}

func (c *Class) findProperty(name string) (info.PropertyInfo, error) {
	if p, ok := c.property(canonical(name)); ok {
		return p, nil
	}
	if p, ok := c.property(name); ok {
		return p, nil
	}
	return info.PropertyInfo{}, errors.NotFound(errors.PhaseLookup, "property", c.QualifiedName()+"."+name)
}

// Properties lists the property names of the class and its ancestors,
// nearest first.
func (c *Class) Properties() []string {
	var names []string
	seen := make(map[string]bool)
	for k := c; k != nil; k = k.Parent() {
		if k.kind != info.KindObject {
			break
		}
		for _, p := range k.bi.MustObject().Properties() {
			if n := p.Name(); !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
			p.Unref()
		}
	}
	return names
}

// valueType returns the GType a GValue holding ti is initialized with.
func (m *Module) valueType(ti info.TypeInfo) (giruntime.GType, error) {
	tag := ti.Tag()
	if tag == typelib.TagInterface {
		iface := ti.Interface()
		if iface == nil {
			return 0, errors.Unsupported(errors.PhaseEncode, "GValue of unresolved "+ti.String())
		}
		defer iface.Unref()
		switch iface.Kind() {
		case info.KindEnum, info.KindFlags:
			rt, err := iface.AsRegisteredType()
			if err != nil || rt.TypeInit() == "" {
				return 0, errors.Unsupported(errors.PhaseEncode, "GValue of unregistered "+iface.QualifiedName())
			}
			v, err := m.callSymbol(rt.TypeInit(), giruntime.Signature{Result: gtypeKind(m.lib)})
			return giruntime.GType(v), err
		case info.KindCallback:
			return gtypePointer, nil
		}
		c, err := m.rt.classOf(iface)
		if err != nil {
			return 0, err
		}
		return c.GType()
	}
	if tag == typelib.TagVoid && ti.IsPointer() {
		return gtypePointer, nil
	}
	if gt, ok := fundamentals[tag]; ok {
		return gt, nil
	}
	return 0, errors.Unsupported(errors.PhaseEncode, "GValue of "+ti.String())
}

// values is a block of GValues in library memory, freed with its scope.
type values struct {
	m     *Module
	addr  uint64
	scope *argument.Scope
}

func (m *Module) newValues(scope *argument.Scope, n int) (*values, error) {
	size := uint32(n) * gvalueSize
	addr, err := m.lib.Allocator().Alloc(size, 8)
	if err != nil {
		return nil, errors.AllocationFailed(errors.PhaseEncode, size, 8, err)
	}
	scope.Free(addr)
	if err := m.lib.Memory().Write(addr, make([]byte, size)); err != nil {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "clear GValue")
	}
	return &values{m: m, addr: addr, scope: scope}, nil
}

func (v *values) at(i int) uint64 { return v.addr + uint64(i)*gvalueSize }

// init runs g_value_init on value i. With owned set the value is unset
// when the scope ends; otherwise its contents are borrowed and left alone.
func (v *values) init(i int, gt giruntime.GType, owned bool) error {
	sig := giruntime.Signature{
		Params: []giruntime.ValueKind{giruntime.KindPointer, gtypeKind(v.m.lib)},
		Result: giruntime.KindPointer,
	}
	addr := v.at(i)
	if _, err := v.m.callSymbol("g_value_init", sig, addr, uint64(gt)); err != nil {
		return err
	}
	if owned {
		v.scope.Defer(func() {
			if _, err := v.m.callSymbol("g_value_unset", unrefSig, addr); err != nil {
				Logger().Warn("g_value_unset failed", zap.Uint64("value", addr), zap.Error(err))
			}
		})
	}
	return nil
}

// set encodes x into value i, initialized for ti. The value borrows what
// the encoding allocates; the scope frees it.
func (v *values) set(i int, ti info.TypeInfo, x any, path []string) error {
	conv := v.m.inv.Converter()
	k, err := argument.SlotKind(ti)
	if err != nil {
		return err
	}
	a, err := conv.ToNative(x, ti, argument.Options{
		Path:     path,
		Scope:    v.scope,
		Nullable: true,
		Transfer: typelib.TransferNothing,
	})
	if err != nil {
		return err
	}
	return conv.Store(v.at(i)+gvalueData, k, a)
}

// get decodes value i. The result owns copies of what the value holds.
func (v *values) get(i int, ti info.TypeInfo) (any, error) {
	conv := v.m.inv.Converter()
	k, err := argument.SlotKind(ti)
	if err != nil {
		return nil, err
	}
	a, err := conv.Load(v.at(i)+gvalueData, k)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "load GValue")
	}
	return conv.FromNative(a, ti, typelib.TransferNothing)
}

func (m *Module) cstring(scope *argument.Scope, s string) (uint64, error) {
	addr, err := giruntime.WriteCString(m.lib.Memory(), m.lib.Allocator(), s)
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseEncode, uint32(len(s)+1), 1, err)
	}
	scope.Free(addr)
	return addr, nil
}

var propertySig = giruntime.Signature{
	Params: []giruntime.ValueKind{giruntime.KindPointer, giruntime.KindPointer, giruntime.KindPointer},
}

// Property reads a readable property with g_object_get_property.
func (o *Object) Property(ctx context.Context, name string) (any, error) {
	if err := o.live("property " + name); err != nil {
		return nil, err
	}
	c, m := o.class, o.class.mod
	pi, err := c.findProperty(name)
	if err != nil {
		return nil, err
	}
	defer pi.Unref()
	if pi.Flags()&info.PropertyReadable == 0 {
		return nil, memberError(c, name, errors.KindUnsupported, "property is not readable")
	}
	ti := pi.Type()
	defer ti.Unref()
	gt, err := m.valueType(ti)
	if err != nil {
		return nil, err
	}

	scope := argument.NewScope(m.lib.Allocator())
	defer scope.Release()
	vals, err := m.newValues(scope, 1)
	if err != nil {
		return nil, err
	}
	if err := vals.init(0, gt, true); err != nil {
		return nil, err
	}
	cname, err := m.cstring(scope, pi.Name())
	if err != nil {
		return nil, err
	}
	if _, err := m.invokeSymbol(ctx, "g_object_get_property", propertySig, o.ptr, cname, vals.at(0)); err != nil {
		return nil, err
	}
	return vals.get(0, ti)
}

// SetProperty writes a writable property with g_object_set_property.
// Construct-only properties are set through NewWithProperties.
func (o *Object) SetProperty(ctx context.Context, name string, v any) error {
	if err := o.live("property " + name); err != nil {
		return err
	}
	c, m := o.class, o.class.mod
	pi, err := c.findProperty(name)
	if err != nil {
		return err
	}
	defer pi.Unref()
	flags := pi.Flags()
	if flags&info.PropertyWritable == 0 {
		return memberError(c, name, errors.KindReadOnly, "property is not writable")
	}
	if flags&info.PropertyConstructOnly != 0 {
		return memberError(c, name, errors.KindReadOnly, "property can only be set at construction")
	}
	ti := pi.Type()
	defer ti.Unref()
	gt, err := m.valueType(ti)
	if err != nil {
		return err
	}

	scope := argument.NewScope(m.lib.Allocator())
	defer scope.Release()
	vals, err := m.newValues(scope, 1)
	if err != nil {
		return err
	}
	if err := vals.init(0, gt, false); err != nil {
		return err
	}
	if err := vals.set(0, ti, v, []string{c.QualifiedName(), name}); err != nil {
		return err
	}
	cname, err := m.cstring(scope, pi.Name())
	if err != nil {
		return err
	}
	_, err = m.invokeSymbol(ctx, "g_object_set_property", propertySig, o.ptr, cname, vals.at(0))
	return err
}

// NewWithProperties creates an instance with g_object_new_with_properties,
// setting props (construct-only ones included) during construction. The
// result is the class's wrapper, or what its Constructor override makes
// of it.
func (c *Class) NewWithProperties(ctx context.Context, props map[string]any) (any, error) {
	if c.kind != info.KindObject {
		return nil, errors.Unsupported(errors.PhaseRuntime, "NewWithProperties on "+c.String())
	}
	if c.bi.MustObject().IsAbstract() {
		return nil, errors.Unsupported(errors.PhaseRuntime, "instance of abstract "+c.QualifiedName())
	}
	gt, err := c.GType()
	if err != nil {
		return nil, err
	}
	m := c.mod
	names := make([]string, 0, len(props))
	for n := range props {
		names = append(names, n)
	}
	sort.Strings(names)

	scope := argument.NewScope(m.lib.Allocator())
	defer scope.Release()
	n := len(names)
	vals, err := m.newValues(scope, max(n, 1))
	if err != nil {
		return nil, err
	}
	ps := uint32(m.lib.Memory().PointerSize())
	namev, err := m.lib.Allocator().Alloc(max(uint32(n), 1)*ps, ps)
	if err != nil {
		return nil, errors.AllocationFailed(errors.PhaseEncode, uint32(n)*ps, ps, err)
	}
	scope.Free(namev)

	for i, name := range names {
		prop, err := c.constructValue(vals, i, name, props[name])
		if err != nil {
			return nil, err
		}
		cname, err := m.cstring(scope, prop)
		if err != nil {
			return nil, err
		}
		if err := giruntime.WritePointer(m.lib.Memory(), namev+uint64(i)*uint64(ps), cname); err != nil {
			return nil, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "write property names")
		}
	}

	sig := giruntime.Signature{
		Params: []giruntime.ValueKind{gtypeKind(m.lib), giruntime.KindU32, giruntime.KindPointer, giruntime.KindPointer},
		Result: giruntime.KindPointer,
	}
	ptr, err := m.invokeSymbol(ctx, "g_object_new_with_properties", sig, uint64(gt), uint64(n), namev, vals.addr)
	if err != nil {
		return nil, err
	}
	if ptr == 0 {
		return nil, errors.New(errors.PhaseInvoke, errors.KindNilPointer).
			Path(c.QualifiedName()).
			Detail("g_object_new_with_properties returned NULL").
			Build()
	}
	return c.wrapInstance(ptr, true)
}

// constructValue fills value i with a construction property and returns
// the property's registered name.
func (c *Class) constructValue(vals *values, i int, name string, v any) (string, error) {
	pi, err := c.findProperty(name)
	if err != nil {
		return "", err
	}
	defer pi.Unref()
	if pi.Flags()&info.PropertyWritable == 0 {
		return "", memberError(c, name, errors.KindReadOnly, "property is not writable")
	}
	ti := pi.Type()
	defer ti.Unref()
	gt, err := c.mod.valueType(ti)
	if err != nil {
		return "", err
	}
	if err := vals.init(i, gt, false); err != nil {
		return "", err
	}
	return pi.Name(), vals.set(i, ti, v, []string{c.QualifiedName(), name})
}
