// Package override lets hand-written definitions supersede the ones
// generated from introspection data.
//
// Overrides are provided per namespace as a Loader. The first Load of a
// namespace runs its loader against a fresh Table, which is frozen once
// the loader returns. A namespace without a loader gets an empty table.
// Every replacement must declare the generated definition of the same
// type as its base.
//
// A replacement may also change behavior: a Constructor wraps every host
// value built for its type, a MethodTable supplies methods ahead of the
// generated ones and a Callable replaces a namespace function.
package override

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/gi-runtime/errors"
)

// Definition is a host-side type definition.
type Definition interface {
	TypeName() string
}

// Replacement supersedes the generated definition returned by Base.
type Replacement interface {
	Definition
	Base() Definition
}

// Constructor is a Replacement that wraps the host values of its type.
// Construct receives the generated wrapper, which holds the native
// reference, and returns the value handed to callers instead.
type Constructor interface {
	Replacement
	Construct(generated any) (any, error)
}

// Method is a hand-written method. self is the generated wrapper of the
// receiver, nil for static calls.
type Method func(ctx context.Context, self any, args ...any) ([]any, error)

// MethodTable is a Replacement supplying methods that take precedence
// over the generated methods of its type.
type MethodTable interface {
	Replacement
	Method(name string) (Method, bool)
}

// Callable is a Replacement of a namespace function.
type Callable interface {
	Replacement
	Call(ctx context.Context, args ...any) ([]any, error)
}

// Methods is a name-keyed MethodTable.
type Methods map[string]Method

// Method returns the method registered under name.
func (m Methods) Method(name string) (Method, bool) {
	f, ok := m[name]
	return f, ok && f != nil
}

// Generated returns the generated definition of a type in the namespace
// being loaded.
type Generated func(typeName string) (Definition, bool)

// Loader registers the overrides of one namespace.
type Loader func(t *Table) error

// Table maps type names to replacements for one namespace.
type Table struct {
	generated Generated
	entries   map[string]Replacement
	namespace string
	mu        sync.RWMutex
	frozen    bool
}

func newTable(namespace string, generated Generated) *Table {
	return &Table{namespace: namespace, generated: generated, entries: make(map[string]Replacement)}
}

func (t *Table) Namespace() string { return t.namespace }

// Register inserts or replaces the override of typeName. It fails once
// the table is frozen and when r's base is not the generated definition
// of typeName.
func (t *Table) Register(typeName string, r Replacement) error {
	if typeName == "" || r == nil {
		return errors.InvalidInput(errors.PhaseOverride, "override needs a type name and a definition")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen {
		return errors.ReadOnly(errors.PhaseOverride, "override table "+t.namespace)
	}
	if t.generated == nil {
		return errors.NotFound(errors.PhaseOverride, "generated type", t.namespace+"."+typeName)
	}
	gen, ok := t.generated(typeName)
	if !ok {
		return errors.NotFound(errors.PhaseOverride, "generated type", t.namespace+"."+typeName)
	}
	base := r.Base()
	if !sameDefinition(base, gen) {
		have := "<nil>"
		if base != nil {
			have = base.TypeName()
		}
		return errors.TypeMismatch(errors.PhaseOverride, []string{t.namespace, typeName}, have, gen.TypeName())
	}
	if _, replaced := t.entries[typeName]; replaced {
		Logger().Debug("override replaced", zap.String("namespace", t.namespace), zap.String("type", typeName))
	}
	t.entries[typeName] = r
	return nil
}

// Lookup returns the override registered for typeName.
func (t *Table) Lookup(typeName string) (Replacement, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.entries[typeName]
	return r, ok
}

// Generated returns the generated definition of typeName, the base a
// replacement must declare.
func (t *Table) Generated(typeName string) (Definition, bool) {
	if t.generated == nil {
		return nil, false
	}
	return t.generated(typeName)
}

// Resolve returns the override of typeName, falling back to the
// generated definition.
func (t *Table) Resolve(typeName string) (Definition, bool) {
	if r, ok := t.Lookup(typeName); ok {
		return r, true
	}
	return t.Generated(typeName)
}

// Names returns the overridden type names in sorted order.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.entries))
	for n := range t.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *Table) Frozen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.frozen
}

func (t *Table) freeze() {
	t.mu.Lock()
	t.frozen = true
	t.mu.Unlock()
}

// sameDefinition reports whether a and b are the same definition value.
func sameDefinition(a, b Definition) bool {
	if a == nil || b == nil {
		return false
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// Registry holds override loaders and the tables they produced.
type Registry struct {
	loaders map[string]Loader
	tables  map[string]*Table
	mu      sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{loaders: make(map[string]Loader), tables: make(map[string]*Table)}
}

// Provide installs the loader of a namespace. It fails once the namespace
// was loaded.
func (r *Registry) Provide(namespace string, l Loader) error {
	if namespace == "" || l == nil {
		return errors.InvalidInput(errors.PhaseOverride, "loader needs a namespace and a function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tables[namespace]; ok {
		return errors.ReadOnly(errors.PhaseOverride, "overrides of loaded namespace "+namespace)
	}
	r.loaders[namespace] = l
	return nil
}

// Load returns the frozen override table of namespace, running its loader
// the first time. A loader failure is returned together with an empty
// table, which is cached so generated definitions stay usable.
func (r *Registry) Load(namespace string, generated Generated) (*Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tables[namespace]; ok {
		return t, nil
	}
	t := newTable(namespace, generated)
	l, ok := r.loaders[namespace]
	if !ok {
		t.freeze()
		r.tables[namespace] = t
		return t, nil
	}
	if err := runLoader(l, t); err != nil {
		Logger().Warn("override loader failed",
			zap.String("namespace", namespace), zap.Error(err))
		empty := newTable(namespace, generated)
		empty.freeze()
		r.tables[namespace] = empty
		return empty, errors.New(errors.PhaseOverride, errors.KindInvalidInput).
			Path(namespace).
			Detail("override loader failed").
			Cause(err).
			Build()
	}
	t.freeze()
	r.tables[namespace] = t
	Logger().Debug("overrides loaded", zap.String("namespace", namespace), zap.Int("count", t.Len()))
	return t, nil
}

func runLoader(l Loader, t *Table) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.New(errors.PhaseOverride, errors.KindInvalidInput).
				Value(p).
				Detail("override loader panicked").
				Build()
		}
	}()
	return l(t)
}

// Loaded returns the namespaces whose tables exist, sorted.
func (r *Registry) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.tables))
	for n := range r.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
