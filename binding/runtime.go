// Package binding exposes introspected namespaces as host values.
//
// A Runtime turns the namespaces of a repository into Modules. A Module
// materializes its entries on first use: classes for objects, interfaces,
// structs and unions, callable functions, enum and flags types, and
// constants. Objects and boxed values returned by native calls are
// wrapped with their most-derived class and own a reference that is
// dropped when the wrapper is released or collected. Objects also read
// and write GObject properties and connect signal handlers.
//
//	rt := binding.New(binding.Options{Repository: repo})
//	mod, err := rt.Attach(ns, lib)
//	res, err := mod.Call(ctx, "parse", "42")
//
// Hand-written overrides registered with the override registry take
// precedence over generated definitions: Module.Lookup returns them,
// Constructor overrides wrap every value built for their type and its
// descendants, MethodTable overrides come first in method resolution and
// Callable overrides replace namespace functions in Module.Call.
package binding

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/finalize"
	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/override"
	"github.com/wippyai/gi-runtime/repository"
)

// LibraryOpener opens the shared library backing a namespace.
type LibraryOpener func(ctx context.Context, ns *repository.Namespace) (giruntime.Library, error)

type Options struct {
	// Repository defaults to repository.Default().
	Repository *repository.Repository
	// Overrides defaults to an empty registry.
	Overrides *override.Registry
	// Finalizer defaults to a new registry owned by the runtime.
	Finalizer *finalize.Registry
	// OpenLibrary is used by Require and for namespaces reached through
	// type references. Without it every namespace must be attached.
	OpenLibrary LibraryOpener
}

// Runtime holds the modules of one process or embedding.
type Runtime struct {
	repo      *repository.Repository
	overrides *override.Registry
	finalizer *finalize.Registry
	open      LibraryOpener
	modules   map[string]*Module
	opened    []giruntime.Library
	ownFinal  bool
	mu        sync.Mutex
	closed    bool
}

func New(opts Options) *Runtime {
	rt := &Runtime{
		repo:      opts.Repository,
		overrides: opts.Overrides,
		finalizer: opts.Finalizer,
		open:      opts.OpenLibrary,
		modules:   make(map[string]*Module),
	}
	if rt.repo == nil {
		rt.repo = repository.Default()
	}
	if rt.overrides == nil {
		rt.overrides = override.NewRegistry()
	}
	if rt.finalizer == nil {
		rt.finalizer = finalize.NewRegistry()
		rt.ownFinal = true
	}
	return rt
}

func (rt *Runtime) Repository() *repository.Repository { return rt.repo }
func (rt *Runtime) Overrides() *override.Registry      { return rt.overrides }
func (rt *Runtime) Finalizer() *finalize.Registry      { return rt.finalizer }

// Attach binds ns to lib and returns its module. Attaching a namespace
// again returns the existing module when lib is the same library.
func (rt *Runtime) Attach(ns *repository.Namespace, lib giruntime.Library) (*Module, error) {
	if ns == nil || lib == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "attach needs a namespace and a library")
	}
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil, errors.Closed(errors.PhaseLoad, "binding runtime")
	}
	if m, ok := rt.modules[ns.Name()]; ok {
		rt.mu.Unlock()
		if m.lib != lib {
			return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
				Path(ns.Name()).
				Detail("namespace already attached to %s", m.lib.Name()).
				Build()
		}
		return m, nil
	}
	m := newModule(rt, ns, lib)
	rt.modules[ns.Name()] = m
	rt.mu.Unlock()

	// Overrides load outside rt.mu: loaders may look up other modules.
	m.loadOverrides()
	Logger().Debug("module attached",
		zap.String("namespace", ns.Name()), zap.String("library", lib.Name()))
	return m, nil
}

// Require loads namespace at version through the repository, opens its
// library with the configured opener and returns the module.
func (rt *Runtime) Require(ctx context.Context, namespace, version string) (*Module, error) {
	if m, ok := rt.Module(namespace); ok {
		if version != "" && m.Version() != version {
			return nil, errors.TypeMismatch(errors.PhaseLoad, []string{namespace}, m.Version(), version)
		}
		return m, nil
	}
	ns, err := rt.repo.Require(namespace, version)
	if err != nil {
		return nil, err
	}
	if rt.open == nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Path(namespace).
			Detail("no library attached and no opener configured").
			Build()
	}
	lib, err := rt.open(ctx, ns)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindSymbolNotFound).
			Path(namespace).
			Detail("open shared library").
			Cause(err).
			Build()
	}
	m, err := rt.Attach(ns, lib)
	if err != nil {
		_ = lib.Close(ctx)
		return nil, err
	}
	if m.lib == lib {
		rt.mu.Lock()
		rt.opened = append(rt.opened, lib)
		rt.mu.Unlock()
	} else {
		_ = lib.Close(ctx)
	}
	return m, nil
}

// Module returns an attached module.
func (rt *Runtime) Module(namespace string) (*Module, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	m, ok := rt.modules[namespace]
	return m, ok
}

// Modules returns the names of the attached modules, sorted.
func (rt *Runtime) Modules() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	names := make([]string, 0, len(rt.modules))
	for n := range rt.modules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// moduleFor returns the module of namespace, requiring it when an opener
// is configured.
func (rt *Runtime) moduleFor(namespace string) (*Module, error) {
	if m, ok := rt.Module(namespace); ok {
		return m, nil
	}
	if rt.open == nil {
		return nil, errors.NotFound(errors.PhaseLookup, "module", namespace)
	}
	return rt.Require(context.Background(), namespace, "")
}

// classOf returns the class of a registered type info from any module.
func (rt *Runtime) classOf(bi *info.BaseInfo) (*Class, error) {
	if bi == nil || bi.Kind() == info.KindUnresolved {
		name := "<nil>"
		if bi != nil {
			name = bi.QualifiedName()
		}
		return nil, errors.NotFound(errors.PhaseLookup, "type", name)
	}
	m, err := rt.moduleFor(bi.Namespace())
	if err != nil {
		return nil, err
	}
	return m.Class(bi.Name())
}

// ClassByGTypeName finds the class registered under a GType name in any
// loaded namespace.
func (rt *Runtime) ClassByGTypeName(name string) (*Class, error) {
	bi, err := rt.repo.FindByGTypeName(name)
	if err != nil {
		return nil, err
	}
	defer bi.Unref()
	return rt.classOf(bi)
}

// Close releases every module, drops pending destructors when the
// runtime owns the finalizer, and closes the libraries it opened.
func (rt *Runtime) Close(ctx context.Context) error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil
	}
	rt.closed = true
	mods := make([]*Module, 0, len(rt.modules))
	for _, m := range rt.modules {
		mods = append(mods, m)
	}
	opened := rt.opened
	rt.modules = make(map[string]*Module)
	rt.opened = nil
	rt.mu.Unlock()

	var errs []error
	if rt.ownFinal {
		errs = append(errs, rt.finalizer.Close())
	}
	for _, m := range mods {
		m.release()
	}
	for _, lib := range opened {
		errs = append(errs, lib.Close(ctx))
	}
	return stderrors.Join(errs...)
}
