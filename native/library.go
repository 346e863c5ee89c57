//go:build darwin || freebsd || linux || netbsd

// Package native loads real shared objects as giruntime.Library values.
//
// Symbols are resolved with dlsym and called through purego with a Go
// function type built from each call's signature, so no cgo is needed.
// Memory is the process address space and the allocator is the C heap:
//
//	lib, err := native.Open("libgobject-2.0.so.0")
//	fn, err := lib.Symbol("g_type_name")
package native

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/errors"
)

var goos = runtime.GOOS

// Library is a dlopen'ed shared object.
type Library struct {
	handle uintptr
	name   string
	mu     sync.Mutex
	funcs  map[string]*function
	closed atomic.Bool
}

var (
	_ giruntime.Library         = (*Library)(nil)
	_ giruntime.CallbackFactory = (*Library)(nil)
)

// Open loads the shared object at path, or searches the dynamic loader's
// path when it has no directory part.
func Open(path string) (*Library, error) {
	if err := loadLibc(); err != nil {
		return nil, err
	}
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, errors.Load("dlopen "+path, err)
	}
	Logger().Debug("library loaded", zap.String("path", path))
	return &Library{handle: h, name: path, funcs: make(map[string]*function)}, nil
}

func (l *Library) Name() string                   { return l.name }
func (l *Library) Memory() giruntime.Memory       { return Memory }
func (l *Library) Allocator() giruntime.Allocator { return Allocator{} }

func (l *Library) Symbol(name string) (giruntime.Function, error) {
	if l.closed.Load() {
		return nil, errors.Closed(errors.PhaseLookup, "library "+l.name)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok := l.funcs[name]; ok {
		return f, nil
	}
	addr, err := purego.Dlsym(l.handle, name)
	if err != nil || addr == 0 {
		return nil, errors.SymbolNotFound(name, err)
	}
	f := &function{lib: l, name: name, addr: addr, stubs: make(map[string]reflect.Value)}
	l.funcs[name] = f
	return f, nil
}

// Close drops the library handle. Functions and callbacks obtained from
// it must not be used afterwards.
func (l *Library) Close(context.Context) error {
	if l.closed.Swap(true) {
		return nil
	}
	if err := purego.Dlclose(l.handle); err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindInvalidInput, err, "dlclose "+l.name)
	}
	return nil
}

// NewCallback exposes fn as a C function pointer. Pointers released with
// FreeCallback are reused for later callbacks of the same signature.
func (l *Library) NewCallback(sig giruntime.Signature, fn func(args []uint64) uint64) (uint64, error) {
	return callbacks.get(sig, fn)
}

// FreeCallback returns ptr to the pool of its signature.
func (l *Library) FreeCallback(ptr uint64) { callbacks.put(ptr) }

type function struct {
	lib  *Library
	name string
	addr uintptr

	mu    sync.Mutex
	stubs map[string]reflect.Value
}

func (f *function) Name() string { return f.name }
func (f *function) Addr() uint64 { return uint64(f.addr) }

func (f *function) Call(_ context.Context, sig giruntime.Signature, args []uint64) (uint64, error) {
	if f.lib.closed.Load() {
		return 0, errors.Closed(errors.PhaseInvoke, "library "+f.lib.name)
	}
	if len(args) != len(sig.Params) {
		return 0, errors.ArgCount([]string{f.name}, len(args), len(sig.Params))
	}
	stub, err := f.stub(sig)
	if err != nil {
		return 0, err
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		in[i] = toValue(sig.Params[i], a)
	}
	out := stub.Call(in)
	if sig.Result == giruntime.KindVoid {
		return 0, nil
	}
	return sig.Result.Normalize(fromValue(sig.Result, out[0])), nil
}

// stub returns the purego-bound Go function for sig, binding it once.
func (f *function) stub(sig giruntime.Signature) (v reflect.Value, err error) {
	key := sig.String()
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.stubs[key]; ok {
		return v, nil
	}
	ft, err := funcType(sig)
	if err != nil {
		return reflect.Value{}, err
	}
	fp := reflect.New(ft)
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.PhaseInvoke, errors.KindUnsupported).
				Path(f.lib.name, f.name).
				Detail("bind %s: %v", key, r).
				Build()
		}
	}()
	purego.RegisterFunc(fp.Interface(), f.addr)
	v = fp.Elem()
	f.stubs[key] = v
	return v, nil
}

var slotTypes = map[giruntime.ValueKind]reflect.Type{
	giruntime.KindI8:      reflect.TypeFor[int8](),
	giruntime.KindU8:      reflect.TypeFor[uint8](),
	giruntime.KindI16:     reflect.TypeFor[int16](),
	giruntime.KindU16:     reflect.TypeFor[uint16](),
	giruntime.KindI32:     reflect.TypeFor[int32](),
	giruntime.KindU32:     reflect.TypeFor[uint32](),
	giruntime.KindI64:     reflect.TypeFor[int64](),
	giruntime.KindU64:     reflect.TypeFor[uint64](),
	giruntime.KindF32:     reflect.TypeFor[float32](),
	giruntime.KindF64:     reflect.TypeFor[float64](),
	giruntime.KindPointer: reflect.TypeFor[uintptr](),
}

// funcType builds the Go function type purego marshals sig with.
func funcType(sig giruntime.Signature) (reflect.Type, error) {
	in := make([]reflect.Type, len(sig.Params))
	for i, k := range sig.Params {
		t, ok := slotTypes[k]
		if !ok {
			return nil, errors.Unsupported(errors.PhaseInvoke, fmt.Sprintf("parameter %d of kind %s", i, k))
		}
		in[i] = t
	}
	var out []reflect.Type
	if sig.Result != giruntime.KindVoid {
		t, ok := slotTypes[sig.Result]
		if !ok {
			return nil, errors.Unsupported(errors.PhaseInvoke, fmt.Sprintf("result of kind %s", sig.Result))
		}
		out = []reflect.Type{t}
	}
	return reflect.FuncOf(in, out, false), nil
}

func toValue(k giruntime.ValueKind, raw uint64) reflect.Value {
	v := reflect.New(slotTypes[k]).Elem()
	switch k {
	case giruntime.KindF32:
		v.SetFloat(float64(math.Float32frombits(uint32(raw))))
	case giruntime.KindF64:
		v.SetFloat(math.Float64frombits(raw))
	case giruntime.KindI8, giruntime.KindI16, giruntime.KindI32, giruntime.KindI64:
		v.SetInt(int64(raw))
	default:
		v.SetUint(raw)
	}
	return v
}

func fromValue(k giruntime.ValueKind, v reflect.Value) uint64 {
	switch k {
	case giruntime.KindF32:
		return uint64(math.Float32bits(float32(v.Float())))
	case giruntime.KindF64:
		return math.Float64bits(v.Float())
	case giruntime.KindI8, giruntime.KindI16, giruntime.KindI32, giruntime.KindI64:
		return k.Normalize(uint64(v.Int()))
	}
	return v.Uint()
}
