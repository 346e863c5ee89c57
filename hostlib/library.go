// Package hostlib provides a Library whose symbols are Go functions
// operating on a private heap. It backs synthetic namespaces and tests.
package hostlib

import (
	"context"
	"sync"
	"sync/atomic"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/errors"
)

// HostFunc is a raw entry point. Arguments and the result are canonical
// slot payloads as described by the call's Signature.
type HostFunc func(ctx context.Context, lib *Library, args []uint64) (uint64, error)

// codeBase is where synthetic function addresses start, above any heap address.
const codeBase = 0x7f00_0000_0000

// Options configure a Library.
type Options struct {
	// PointerSize is 8 unless set to 4.
	PointerSize int
	// HeapLimit caps heap growth in bytes; 0 means 64 MiB.
	HeapLimit uint64
}

// Library is a giruntime.Library backed by Go functions.
type Library struct {
	heap   *Heap
	funcs  map[string]*function
	addrs  map[uint64]*function
	name   string
	next   uint64
	mu     sync.RWMutex
	closed atomic.Bool
}

var (
	_ giruntime.Library         = (*Library)(nil)
	_ giruntime.CallbackFactory = (*Library)(nil)
)

func New(name string, opts Options) *Library {
	ps := opts.PointerSize
	if ps != 4 {
		ps = 8
	}
	limit := opts.HeapLimit
	if limit == 0 {
		limit = 64 << 20
	}
	return &Library{
		name:  name,
		heap:  newHeap(ps, limit),
		funcs: make(map[string]*function),
		addrs: make(map[uint64]*function),
		next:  codeBase,
	}
}

func (l *Library) Name() string                   { return l.name }
func (l *Library) Memory() giruntime.Memory       { return l.heap }
func (l *Library) Allocator() giruntime.Allocator { return l.heap }
func (l *Library) Heap() *Heap                    { return l.heap }

// Register exports fn under name. fn is either a HostFunc or a Go function
// whose parameters and results are integers, floats, bools, uintptr
// (pointers) or strings (NUL terminated, results copied onto the heap). An
// optional leading context.Context and trailing error are allowed.
func (l *Library) Register(name string, fn any) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseLoad, "function name cannot be empty")
	}
	f, err := l.adapt(name, fn)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if old, ok := l.funcs[name]; ok {
		f.addr = old.addr
	} else {
		f.addr = l.allocAddr()
	}
	l.funcs[name] = f
	l.addrs[f.addr] = f
	return nil
}

// MustRegister is Register that panics on error.
func (l *Library) MustRegister(name string, fn any) *Library {
	if err := l.Register(name, fn); err != nil {
		panic(err)
	}
	return l
}

// allocAddr hands out the next code address; l.mu is held.
func (l *Library) allocAddr() uint64 {
	addr := l.next
	l.next += 16
	return addr
}

func (l *Library) Symbol(name string) (giruntime.Function, error) {
	if l.closed.Load() {
		return nil, errors.Closed(errors.PhaseLookup, "library "+l.name)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.funcs[name]
	if !ok {
		return nil, errors.SymbolNotFound(name, nil)
	}
	return f, nil
}

// NewCallback exposes fn at a fresh code address callable through
// CallPointer.
func (l *Library) NewCallback(sig giruntime.Signature, fn func(args []uint64) uint64) (uint64, error) {
	if l.closed.Load() {
		return 0, errors.Closed(errors.PhaseRuntime, "library "+l.name)
	}
	f := &function{
		lib:      l,
		name:     "callback",
		params:   sig.Params,
		result:   sig.Result,
		typed:    true,
		callback: true,
		raw: func(_ context.Context, _ *Library, args []uint64) (uint64, error) {
			return fn(args), nil
		},
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f.addr = l.allocAddr()
	l.addrs[f.addr] = f
	return f.addr, nil
}

// FreeCallback removes a callback created by NewCallback. Registered
// functions are never removed.
func (l *Library) FreeCallback(addr uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok := l.addrs[addr]; ok && f.callback {
		delete(l.addrs, addr)
	}
}

// Callbacks returns the number of live callbacks.
func (l *Library) Callbacks() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, f := range l.addrs {
		if f.callback {
			n++
		}
	}
	return n
}

// Lookup returns the function at a code address.
func (l *Library) Lookup(addr uint64) (giruntime.Function, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.addrs[addr]
	return f, ok
}

// CallPointer calls the function at a code address, as native code calls
// a function pointer it was handed.
func (l *Library) CallPointer(ctx context.Context, addr uint64, sig giruntime.Signature, args []uint64) (uint64, error) {
	f, ok := l.Lookup(addr)
	if !ok {
		return 0, errors.New(errors.PhaseInvoke, errors.KindNotFound).
			Detail("no function at 0x%x", addr).
			Build()
	}
	return f.Call(ctx, sig, args)
}

func (l *Library) Close(context.Context) error {
	l.closed.Store(true)
	return nil
}

type function struct {
	lib    *Library
	raw    HostFunc
	name   string
	params []giruntime.ValueKind
	result giruntime.ValueKind
	addr   uint64
	typed  bool
	// callback marks functions made by NewCallback.
	callback bool
}

func (f *function) Name() string { return f.name }
func (f *function) Addr() uint64 { return f.addr }

func (f *function) Call(ctx context.Context, sig giruntime.Signature, args []uint64) (uint64, error) {
	if f.lib.closed.Load() {
		return 0, errors.Closed(errors.PhaseInvoke, "library "+f.lib.name)
	}
	if len(args) != len(sig.Params) {
		return 0, errors.ArgCount([]string{f.name}, len(args), len(sig.Params))
	}
	if f.typed {
		if len(sig.Params) != len(f.params) {
			return 0, errors.ArgCount([]string{f.name}, len(sig.Params), len(f.params))
		}
		for i, k := range sig.Params {
			if !f.lib.compatible(k, f.params[i]) {
				return 0, errors.TypeMismatch(errors.PhaseInvoke, []string{f.name}, sig.String(), f.signature().String())
			}
		}
		if sig.Result != giruntime.KindVoid && !f.lib.compatible(sig.Result, f.result) {
			return 0, errors.TypeMismatch(errors.PhaseInvoke, []string{f.name}, sig.String(), f.signature().String())
		}
	}
	in := make([]uint64, len(args))
	for i, a := range args {
		in[i] = sig.Params[i].Normalize(a)
	}
	out, err := f.raw(ctx, f.lib, in)
	if err != nil {
		return 0, err
	}
	return sig.Result.Normalize(out), nil
}

func (f *function) signature() giruntime.Signature {
	return giruntime.Signature{Params: f.params, Result: f.result}
}

// compatible reports whether a caller slot may feed a declared slot.
func (l *Library) compatible(have, want giruntime.ValueKind) bool {
	if have == want {
		return true
	}
	if l.heap.ptrSize == 8 {
		return have == giruntime.KindPointer && want == giruntime.KindU64 ||
			have == giruntime.KindU64 && want == giruntime.KindPointer
	}
	return have == giruntime.KindPointer && want == giruntime.KindU32 ||
		have == giruntime.KindU32 && want == giruntime.KindPointer
}
