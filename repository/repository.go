// Package repository loads typelibs by namespace and resolves references
// between them.
//
// A Repository owns the namespaces it loaded. Require finds
// "<Namespace>-<Version>.typelib" on the search path, loads it and its
// dependencies, and hands back the Namespace. The Repository is the
// info.Resolver of every namespace it owns, so cross-namespace type
// references resolve to loaded entities.
package repository

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/internal/config"
	"github.com/wippyai/gi-runtime/typelib"
)

// Loader opens the typelib stored at path.
type Loader func(path string) (*typelib.Typelib, error)

type Options struct {
	// SearchPath lists the typelib directories in priority order. Nil
	// means the configured GI_TYPELIB_PATH followed by the system
	// defaults.
	SearchPath []string
	// Loader defaults to typelib.LoadFromFile.
	Loader Loader
}

// Repository is a set of loaded namespaces. It is safe for concurrent
// use.
type Repository struct {
	namespaces map[string]*Namespace
	load       Loader
	search     []string
	mu         sync.Mutex
	closed     bool
}

var (
	defaultRepo *Repository
	defaultOnce sync.Once
)

// Default returns the process-wide repository configured from the
// environment.
func Default() *Repository {
	defaultOnce.Do(func() {
		defaultRepo = New(Options{})
	})
	return defaultRepo
}

func New(opts Options) *Repository {
	r := &Repository{
		namespaces: make(map[string]*Namespace),
		load:       opts.Loader,
		search:     opts.SearchPath,
	}
	if r.load == nil {
		r.load = typelib.LoadFromFile
	}
	if r.search == nil {
		r.search = config.Load().TypelibPath
	}
	return r
}

// SearchPath returns the directories searched by Require.
func (r *Repository) SearchPath() []string {
	return append([]string(nil), r.search...)
}

// Register adds an already loaded typelib, for images built in memory.
// Its dependencies are required from the search path.
func (r *Repository) Register(tl *typelib.Typelib) (*Namespace, error) {
	if tl == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "nil typelib")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.Closed(errors.PhaseLoad, "repository")
	}
	if ns, ok := r.namespaces[tl.Namespace()]; ok {
		if ns.tl == tl {
			return ns, nil
		}
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Path(tl.Namespace()).
			Detail("namespace already loaded at version %s", ns.Version()).
			Build()
	}
	return r.addLocked(tl, "")
}

// Require returns the namespace at version, loading it and its
// dependencies when needed. An empty version selects the highest version
// on the search path, or the loaded one.
func (r *Repository) Require(namespace, version string) (*Namespace, error) {
	if namespace == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "empty namespace")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.Closed(errors.PhaseLoad, "repository")
	}
	return r.requireLocked(namespace, version)
}

func (r *Repository) requireLocked(namespace, version string) (*Namespace, error) {
	if ns, ok := r.namespaces[namespace]; ok {
		if version != "" && version != ns.Version() {
			return nil, errors.TypeMismatch(errors.PhaseLoad, []string{namespace},
				ns.Version(), version)
		}
		return ns, nil
	}
	path, err := r.find(namespace, version)
	if err != nil {
		return nil, err
	}
	tl, err := r.load(path)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindMalformedTypelib).
			Path(namespace).
			Detail("load %s", path).
			Cause(err).
			Build()
	}
	if tl.Namespace() != namespace || (version != "" && tl.Version() != version) {
		_ = tl.Close()
		return nil, errors.TypeMismatch(errors.PhaseLoad, []string{path},
			fileName(tl.Namespace(), tl.Version()), fileName(namespace, version))
	}
	return r.addLocked(tl, path)
}

// addLocked registers tl and requires its dependencies; r.mu is held.
// The namespace is visible before its dependencies load so cycles end.
func (r *Repository) addLocked(tl *typelib.Typelib, path string) (*Namespace, error) {
	ns := &Namespace{repo: r, tl: tl, path: path}
	ns.src = info.NewSource(tl, r)
	r.namespaces[tl.Namespace()] = ns

	for _, dep := range tl.Dependencies() {
		depNS, depVer, ok := SplitRequirement(dep)
		if !ok {
			Logger().Warn("ignoring malformed dependency",
				zap.String("namespace", tl.Namespace()), zap.String("dependency", dep))
			continue
		}
		if _, err := r.requireLocked(depNS, depVer); err != nil {
			delete(r.namespaces, tl.Namespace())
			if path != "" {
				_ = tl.Close()
			}
			return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
				Path(tl.Namespace(), dep).
				Detail("dependency unavailable").
				Cause(err).
				Build()
		}
	}
	Logger().Debug("namespace loaded",
		zap.String("namespace", tl.Namespace()),
		zap.String("version", tl.Version()),
		zap.String("path", path))
	return ns, nil
}

// find locates the typelib file of namespace on the search path.
func (r *Repository) find(namespace, version string) (string, error) {
	if version != "" {
		name := fileName(namespace, version)
		for _, dir := range r.search {
			p := filepath.Join(dir, name)
			if st, err := os.Stat(p); err == nil && !st.IsDir() {
				return p, nil
			}
		}
		return "", errors.NotFound(errors.PhaseLoad, "typelib", name)
	}

	var best string
	var bestVer Version
	prefix := namespace + "-"
	for _, dir := range r.search {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".typelib") {
				continue
			}
			v, ok := ParseVersion(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".typelib"))
			if !ok {
				continue
			}
			// Earlier directories win ties.
			if best == "" || v.Compare(bestVer) > 0 {
				best, bestVer = filepath.Join(dir, name), v
			}
		}
	}
	if best == "" {
		return "", errors.NotFound(errors.PhaseLoad, "typelib", namespace)
	}
	return best, nil
}

// Namespace returns a loaded namespace.
func (r *Repository) Namespace(name string) (*Namespace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ns, ok := r.namespaces[name]
	return ns, ok
}

// LoadedNamespaces returns the names of the loaded namespaces, sorted.
func (r *Repository) LoadedNamespaces() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.namespaces))
	for n := range r.namespaces {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve implements info.Resolver. Namespaces not loaded yet are
// required at their highest version.
func (r *Repository) Resolve(namespace, name string) (*info.BaseInfo, error) {
	ns, err := r.Require(namespace, "")
	if err != nil {
		return nil, err
	}
	return ns.Find(name)
}

// FindByGTypeName searches every loaded namespace for the registered type
// named name.
func (r *Repository) FindByGTypeName(name string) (*info.BaseInfo, error) {
	r.mu.Lock()
	nss := make([]*Namespace, 0, len(r.namespaces))
	for _, ns := range r.namespaces {
		nss = append(nss, ns)
	}
	r.mu.Unlock()
	for _, ns := range nss {
		if bi, err := ns.src.FindByGTypeName(name); err == nil {
			return bi, nil
		}
	}
	return nil, errors.NotFound(errors.PhaseLookup, "GType", name)
}

// Close closes every namespace and rejects further loads. Namespaces with
// live infos stay open and are reported in the returned error.
func (r *Repository) Close() error {
	r.mu.Lock()
	r.closed = true
	nss := make([]*Namespace, 0, len(r.namespaces))
	for _, ns := range r.namespaces {
		nss = append(nss, ns)
	}
	r.mu.Unlock()

	var errs []error
	for _, ns := range nss {
		if err := ns.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Namespace is one loaded typelib.
type Namespace struct {
	repo *Repository
	tl   *typelib.Typelib
	src  *info.Source
	path string
	mu   sync.Mutex
	done bool
}

func (ns *Namespace) Name() string              { return ns.tl.Namespace() }
func (ns *Namespace) Version() string           { return ns.tl.Version() }
func (ns *Namespace) Typelib() *typelib.Typelib { return ns.tl }
func (ns *Namespace) Source() *info.Source      { return ns.src }

// Path returns the file the namespace was loaded from, empty for
// registered images.
func (ns *Namespace) Path() string { return ns.path }

// Len returns the number of entities the namespace defines.
func (ns *Namespace) Len() int { return ns.src.Len() }

// Info returns the i-th entity. The caller owns the reference.
func (ns *Namespace) Info(i int) (*info.BaseInfo, error) { return ns.src.Info(i) }

// Find returns the entity named name. The caller owns the reference.
func (ns *Namespace) Find(name string) (*info.BaseInfo, error) { return ns.src.Find(name) }

// Live returns the number of unreleased infos of the namespace.
func (ns *Namespace) Live() int64 { return ns.src.Live() }

func (ns *Namespace) Dependencies() []string    { return ns.tl.Dependencies() }
func (ns *Namespace) SharedLibraries() []string { return ns.tl.SharedLibraries() }

// Close unloads the namespace. It fails while infos of the namespace are
// still referenced, since they borrow its image.
func (ns *Namespace) Close() error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.done {
		return nil
	}
	if live := ns.src.Live(); live > 0 {
		return errors.New(errors.PhaseRuntime, errors.KindRefCount).
			Path(ns.Name()).
			Value(live).
			Detail("namespace has live infos").
			Build()
	}
	ns.done = true
	r := ns.repo
	r.mu.Lock()
	if r.namespaces[ns.Name()] == ns {
		delete(r.namespaces, ns.Name())
	}
	r.mu.Unlock()
	Logger().Debug("namespace closed", zap.String("namespace", ns.Name()))
	return ns.tl.Close()
}
