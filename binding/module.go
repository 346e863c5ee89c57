package binding

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/invoke"
	"github.com/wippyai/gi-runtime/override"
	"github.com/wippyai/gi-runtime/repository"
)

// Module is the host view of one namespace bound to its library.
// Entries are materialized on first access and cached.
type Module struct {
	rt      *Runtime
	ns      *repository.Namespace
	lib     giruntime.Library
	inv     *invoke.Invoker
	table   *override.Table
	entries map[string]override.Definition
	held    []*info.BaseInfo
	syms    map[string]giruntime.Function
	names   []string
	// dynamic caches the class of runtime GTypes; nil marks unknown types.
	dynamic sync.Map
	mu      sync.Mutex
	symMu   sync.Mutex
}

func newModule(rt *Runtime, ns *repository.Namespace, lib giruntime.Library) *Module {
	m := &Module{
		rt:      rt,
		ns:      ns,
		lib:     lib,
		entries: make(map[string]override.Definition),
		syms:    make(map[string]giruntime.Function),
	}
	m.inv = invoke.New(lib, &codec{mod: m})
	return m
}

func (m *Module) loadOverrides() {
	t, err := m.rt.overrides.Load(m.Name(), m.generated)
	if err != nil {
		Logger().Warn("overrides unavailable, using generated definitions",
			zap.String("namespace", m.Name()), zap.Error(err))
	}
	m.mu.Lock()
	m.table = t
	m.mu.Unlock()
}

func (m *Module) Name() string                     { return m.ns.Name() }
func (m *Module) Version() string                  { return m.ns.Version() }
func (m *Module) Namespace() *repository.Namespace { return m.ns }
func (m *Module) Library() giruntime.Library       { return m.lib }
func (m *Module) Invoker() *invoke.Invoker         { return m.inv }
func (m *Module) Runtime() *Runtime                { return m.rt }
func (m *Module) String() string                   { return "module " + m.Name() + "-" + m.Version() }

func (m *Module) generated(name string) (override.Definition, bool) {
	d, err := m.entry(name)
	return d, err == nil
}

// Overrides returns the frozen override table of the namespace.
func (m *Module) Overrides() *override.Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table
}

// Names lists the entries of the namespace in directory order.
func (m *Module) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.names == nil {
		n := m.ns.Len()
		m.names = make([]string, 0, n)
		for i := 0; i < n; i++ {
			bi, err := m.ns.Info(i)
			if err != nil {
				continue
			}
			m.names = append(m.names, bi.Name())
			bi.Unref()
		}
	}
	return append([]string(nil), m.names...)
}

// Lookup returns the definition of name: the registered override when
// there is one, the generated definition otherwise.
func (m *Module) Lookup(name string) (override.Definition, error) {
	if t := m.Overrides(); t != nil {
		if d, ok := t.Lookup(name); ok {
			return d, nil
		}
	}
	return m.entry(name)
}

// entry materializes the generated definition of name.
func (m *Module) entry(name string) (override.Definition, error) {
	m.mu.Lock()
	if d, ok := m.entries[name]; ok {
		m.mu.Unlock()
		return d, nil
	}
	m.mu.Unlock()

	bi, err := m.ns.Find(name)
	if err != nil {
		return nil, err
	}
	d, err := m.build(bi)
	if err != nil {
		bi.Unref()
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.entries[name]; ok {
		bi.Unref()
		return prev, nil
	}
	m.entries[name] = d
	m.held = append(m.held, bi)
	return d, nil
}

func (m *Module) build(bi *info.BaseInfo) (override.Definition, error) {
	switch bi.Kind() {
	case info.KindFunction:
		return &Function{mod: m, fi: bi.MustFunction()}, nil
	case info.KindObject, info.KindInterface, info.KindStruct, info.KindBoxed, info.KindUnion:
		return newClass(m, bi), nil
	case info.KindEnum, info.KindFlags:
		return newEnumType(bi.MustEnum()), nil
	case info.KindConstant:
		return &Constant{name: bi.Name(), value: bi.MustConstant().Value()}, nil
	}
	return nil, errors.Unsupported(errors.PhaseLookup, bi.Kind().String()+" "+bi.QualifiedName())
}

// Class returns the generated class of an object, interface, struct or
// union.
func (m *Module) Class(name string) (*Class, error) {
	d, err := m.entry(name)
	if err != nil {
		return nil, err
	}
	c, ok := d.(*Class)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseLookup, []string{m.Name(), name}, kindOf(d), "class")
	}
	return c, nil
}

// Function returns a namespace-level function.
func (m *Module) Function(name string) (*Function, error) {
	d, err := m.entry(name)
	if err != nil {
		return nil, err
	}
	f, ok := d.(*Function)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseLookup, []string{m.Name(), name}, kindOf(d), "function")
	}
	return f, nil
}

// Enum returns an enum or flags type.
func (m *Module) Enum(name string) (*EnumType, error) {
	d, err := m.entry(name)
	if err != nil {
		return nil, err
	}
	e, ok := d.(*EnumType)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseLookup, []string{m.Name(), name}, kindOf(d), "enum")
	}
	return e, nil
}

// Constant returns the value of a namespace constant.
func (m *Module) Constant(name string) (any, error) {
	d, err := m.entry(name)
	if err != nil {
		return nil, err
	}
	c, ok := d.(*Constant)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseLookup, []string{m.Name(), name}, kindOf(d), "constant")
	}
	return c.Value(), nil
}

// Call invokes a namespace-level function, or its Callable override.
func (m *Module) Call(ctx context.Context, name string, args ...any) ([]any, error) {
	if t := m.Overrides(); t != nil {
		if r, ok := t.Lookup(name); ok {
			if c, ok := r.(override.Callable); ok {
				return c.Call(ctx, args...)
			}
		}
	}
	f, err := m.Function(name)
	if err != nil {
		return nil, err
	}
	return f.Call(ctx, args...)
}

// symbol resolves and caches an exported symbol of the module's library.
func (m *Module) symbol(name string) (giruntime.Function, bool) {
	if name == "" {
		return nil, false
	}
	m.symMu.Lock()
	defer m.symMu.Unlock()
	if fn, ok := m.syms[name]; ok {
		return fn, fn != nil
	}
	fn, err := m.lib.Symbol(name)
	if err != nil {
		fn = nil
	}
	m.syms[name] = fn
	return fn, fn != nil
}

// callSymbol calls an exported helper such as g_object_ref.
func (m *Module) callSymbol(name string, sig giruntime.Signature, args ...uint64) (uint64, error) {
	return m.invokeSymbol(context.Background(), name, sig, args...)
}

func (m *Module) invokeSymbol(ctx context.Context, name string, sig giruntime.Signature, args ...uint64) (uint64, error) {
	fn, ok := m.symbol(name)
	if !ok {
		return 0, errors.SymbolNotFound(name, nil)
	}
	return fn.Call(ctx, sig, args)
}

// release drops the infos held by cached entries, their methods and
// the invoker's call plans.
func (m *Module) release() {
	m.mu.Lock()
	held := m.held
	entries := m.entries
	m.held = nil
	m.entries = make(map[string]override.Definition)
	m.mu.Unlock()
	for _, d := range entries {
		if c, ok := d.(*Class); ok {
			c.release()
		}
	}
	m.inv.Release()
	for _, bi := range held {
		bi.Unref()
	}
}

// Cached returns the names materialized so far, sorted.
func (m *Module) Cached() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.entries))
	for n := range m.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func kindOf(d override.Definition) string {
	switch d.(type) {
	case *Class:
		return "class"
	case *Function:
		return "function"
	case *EnumType:
		return "enum"
	case *Constant:
		return "constant"
	}
	return "override"
}

// Constant is a namespace-level constant.
type Constant struct {
	value any
	name  string
}

func (c *Constant) TypeName() string { return c.name }
func (c *Constant) Value() any       { return c.value }
