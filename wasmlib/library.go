// Package wasmlib loads C libraries compiled to WebAssembly as
// giruntime.Library values.
//
// The guest runs in its own wazero runtime. Exported functions are the
// library's symbols, linear memory is its address space (4-byte
// pointers) and the guest's malloc/free exports are its allocator:
//
//	lib, err := wasmlib.Open(ctx, "libdemo", wasmBytes, wasmlib.Config{WASI: true})
//	fn, err := lib.Symbol("demo_add")
//
// Calls into one Library are serialized. Optional WIT declarations
// (Config.Signatures) pin the types of exports beyond what core wasm
// value types can express, e.g. signed versus unsigned integers.
package wasmlib

import (
	"context"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/internal/config"
)

// Config holds guest instantiation options.
type Config struct {
	// Signatures declares WIT function types of exports by name, for
	// example "func(a: s32, b: string) -> u32".
	Signatures map[string]string
	// Malloc and Free name the allocator exports. They default to
	// "malloc" and "free"; without them cabi_realloc is used.
	Malloc string
	Free   string
	// MemoryLimitPages caps linear memory in 64 KiB pages. 0 means the
	// wazero default (65536 pages = 4GB).
	MemoryLimitPages uint32
	// WASI instantiates wasi_snapshot_preview1 for guests linked against
	// wasi-libc.
	WASI bool
}

// DefaultConfig returns a Config with the memory limit taken from the
// environment.
func DefaultConfig() Config {
	return Config{MemoryLimitPages: config.Load().WasmMemoryPages, WASI: true}
}

func (c Config) mallocName() string {
	if c.Malloc != "" {
		return c.Malloc
	}
	return "malloc"
}

func (c Config) freeName() string {
	if c.Free != "" {
		return c.Free
	}
	return "free"
}

// Library is an instantiated guest module.
type Library struct {
	runtime wazero.Runtime
	mod     api.Module
	mem     *memory
	alloc   *allocator
	decls   map[string]declared
	funcs   map[string]*function
	name    string
	mu      sync.Mutex
	closed  bool
}

var _ giruntime.Library = (*Library)(nil)

// Open compiles and instantiates wasm as the library name. A reactor's
// _initialize export runs before Open returns.
func Open(ctx context.Context, name string, wasm []byte, cfg Config) (*Library, error) {
	decls, err := parseSignatures(cfg.Signatures)
	if err != nil {
		return nil, err
	}

	rcfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		rcfg = rcfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, rcfg)
	fail := func(err error) (*Library, error) {
		_ = r.Close(ctx)
		return nil, err
	}

	if cfg.WASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
			return fail(errors.Load("instantiate WASI for "+name, err))
		}
	}
	compiled, err := r.CompileModule(ctx, wasm)
	if err != nil {
		return fail(errors.Load("compile "+name, err))
	}
	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name).WithStartFunctions())
	if err != nil {
		return fail(errors.Load("instantiate "+name, err))
	}
	if init := mod.ExportedFunction("_initialize"); init != nil {
		if _, err := init.Call(ctx); err != nil {
			return fail(errors.Load("initialize "+name, err))
		}
	}
	if mod.Memory() == nil {
		return fail(errors.Load(name+" exports no memory", nil))
	}

	lib := &Library{
		runtime: r,
		mod:     mod,
		mem:     &memory{mem: mod.Memory()},
		decls:   decls,
		funcs:   make(map[string]*function),
		name:    name,
	}
	if lib.alloc, err = newAllocator(lib, mod, cfg); err != nil {
		return fail(err)
	}
	for sym, d := range decls {
		fn := mod.ExportedFunction(sym)
		if fn == nil {
			return fail(errors.SymbolNotFound(sym, errors.InvalidInput(errors.PhaseLoad, "declared signature has no export")))
		}
		if err := d.matches(sym, fn.Definition()); err != nil {
			return fail(err)
		}
	}
	Logger().Debug("guest instantiated",
		zap.String("library", name),
		zap.Int("signatures", len(decls)),
		zap.Uint32("memory", lib.mem.Size()))
	return lib, nil
}

func (l *Library) Name() string                   { return l.name }
func (l *Library) Memory() giruntime.Memory       { return l.mem }
func (l *Library) Allocator() giruntime.Allocator { return l.alloc }

// Exports lists the names of the guest's exported functions.
func (l *Library) Exports() []string {
	defs := l.mod.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for n := range defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (l *Library) Symbol(name string) (giruntime.Function, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, errors.Closed(errors.PhaseLookup, "library "+l.name)
	}
	if f, ok := l.funcs[name]; ok {
		return f, nil
	}
	fn := l.mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.SymbolNotFound(name, nil)
	}
	f := &function{lib: l, fn: fn, def: fn.Definition(), name: name}
	if d, ok := l.decls[name]; ok {
		f.decl = &d
	}
	l.funcs[name] = f
	return f, nil
}

// Close tears down the guest and its runtime.
func (l *Library) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	return l.runtime.Close(ctx)
}

type function struct {
	lib  *Library
	fn   api.Function
	def  api.FunctionDefinition
	decl *declared
	name string
}

func (f *function) Name() string { return f.name }

// Addr returns the guest's function index.
func (f *function) Addr() uint64 { return uint64(f.def.Index()) }

func (f *function) Call(ctx context.Context, sig giruntime.Signature, args []uint64) (uint64, error) {
	if len(args) != len(sig.Params) {
		return 0, errors.ArgCount([]string{f.name}, len(args), len(sig.Params))
	}
	if err := f.check(sig); err != nil {
		return 0, err
	}
	params := f.def.ParamTypes()
	in := make([]uint64, len(args))
	for i, a := range args {
		if params[i] == api.ValueTypeI32 || params[i] == api.ValueTypeF32 {
			a = uint64(uint32(a))
		}
		in[i] = a
	}

	f.lib.mu.Lock()
	defer f.lib.mu.Unlock()
	if f.lib.closed {
		return 0, errors.Closed(errors.PhaseInvoke, "library "+f.lib.name)
	}
	out, err := f.fn.Call(ctx, in...)
	if err != nil {
		return 0, errors.New(errors.PhaseInvoke, errors.KindInvalidInput).
			Path(f.lib.name, f.name).
			Detail("guest call failed").
			Cause(err).
			Build()
	}
	if sig.Result == giruntime.KindVoid || len(out) == 0 {
		return 0, nil
	}
	return sig.Result.Normalize(out[0]), nil
}

// check verifies that sig lowers to the export's core types and agrees
// with its declared WIT signature.
func (f *function) check(sig giruntime.Signature) error {
	mismatch := func() error {
		return errors.TypeMismatch(errors.PhaseInvoke, []string{f.lib.name, f.name}, sig.String(), f.describe())
	}
	params := f.def.ParamTypes()
	if len(params) != len(sig.Params) {
		return errors.ArgCount([]string{f.lib.name, f.name}, len(sig.Params), len(params))
	}
	for i, k := range sig.Params {
		if lower(k) != params[i] {
			return mismatch()
		}
	}
	results := f.def.ResultTypes()
	if sig.Result != giruntime.KindVoid {
		if len(results) != 1 || lower(sig.Result) != results[0] {
			return mismatch()
		}
	}
	if f.decl == nil {
		return nil
	}
	for i, k := range sig.Params {
		if !compatible(k, f.decl.params[i]) {
			return mismatch()
		}
	}
	if sig.Result != giruntime.KindVoid && !compatible(sig.Result, f.decl.result) {
		return mismatch()
	}
	return nil
}

func (f *function) describe() string {
	if f.decl != nil {
		return f.decl.text
	}
	return coreSignature(f.def)
}
