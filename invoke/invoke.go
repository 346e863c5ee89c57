// Package invoke performs foreign calls described by callable infos.
//
// An Invoker lowers Go arguments into the native call frame a callable's
// metadata describes, calls the function with fully typed slots and lifts
// the return value and out arguments back into Go values:
//
//	inv := invoke.New(lib, nil)
//	results, err := inv.Call(ctx, fn, "42")
//
// Results hold the return value unless it is void or skipped, followed by
// every out and inout argument in declaration order. Array lengths,
// callback user data and destroy notifiers are filled in from the metadata
// and never appear in either direction.
package invoke

import (
	"context"
	"sync"

	"go.uber.org/zap"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/argument"
	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/typelib"
)

var (
	quarkSig = giruntime.Signature{Params: []giruntime.ValueKind{giruntime.KindU32}, Result: giruntime.KindPointer}
	freeSig  = giruntime.Signature{Params: []giruntime.ValueKind{giruntime.KindPointer}}
)

// Invoker calls functions of one library. It carries no per-call state and
// may be shared by concurrent callers.
type Invoker struct {
	lib   giruntime.Library
	conv  *argument.Converter
	cache map[string]giruntime.Function
	plans map[planKey]*plan
	mu    sync.RWMutex
}

// planKey identifies a callable blob.
type planKey struct {
	tl     *typelib.Typelib
	offset uint32
}

// New returns an Invoker for lib. codec converts objects and boxed values
// and may be nil, in which case they travel as raw pointers. Callbacks are
// available when lib implements giruntime.CallbackFactory.
func New(lib giruntime.Library, codec argument.InterfaceCodec) *Invoker {
	inv := &Invoker{lib: lib, cache: make(map[string]giruntime.Function), plans: make(map[planKey]*plan)}
	inv.conv = &argument.Converter{
		Memory:     lib.Memory(),
		Allocator:  lib.Allocator(),
		Interfaces: codec,
		Quark:      inv.quark,
		FreeError:  inv.freeError,
	}
	if cf, ok := lib.(giruntime.CallbackFactory); ok {
		inv.conv.Callbacks = cf
	}
	return inv
}

func (inv *Invoker) Library() giruntime.Library { return inv.lib }

// Converter returns the converter used for arguments. Setting its
// Interfaces field before the first call installs an interface codec.
func (inv *Invoker) Converter() *argument.Converter { return inv.conv }

// Function resolves the symbol of fi through its typelib.
func (inv *Invoker) Function(fi info.FunctionInfo) (giruntime.Function, error) {
	sym := fi.Symbol()
	inv.mu.RLock()
	fn, ok := inv.cache[sym]
	inv.mu.RUnlock()
	if ok {
		return fn, nil
	}
	fn, err := fi.Typelib().Symbol(inv.lib, sym)
	if err != nil {
		return nil, err
	}
	inv.mu.Lock()
	inv.cache[sym] = fn
	inv.mu.Unlock()
	return fn, nil
}

// Call resolves fi's symbol and invokes it.
func (inv *Invoker) Call(ctx context.Context, fi info.FunctionInfo, args ...any) ([]any, error) {
	fn, err := inv.Function(fi)
	if err != nil {
		return nil, err
	}
	return inv.Invoke(ctx, fi.CallableInfo, fn, args...)
}

// Invoke calls fn as described by c. Methods take their receiver as the
// first argument, either a raw pointer or a value with a Pointer method.
// A wrong argument count fails before anything is allocated or called.
func (inv *Invoker) Invoke(ctx context.Context, c info.CallableInfo, fn giruntime.Function, args ...any) ([]any, error) {
	p, err := inv.plan(c)
	if err != nil {
		return nil, err
	}
	if len(args) != p.want {
		return nil, errors.New(errors.PhaseEncode, errors.KindConversion).
			Path(p.name).
			Detail("want %d arguments, got %d", p.want, len(args)).
			Cause(errors.ArgCount([]string{p.name}, len(args), p.want)).
			Build()
	}

	f := &frame{
		inv:     inv,
		p:       p,
		scope:   argument.NewScope(inv.lib.Allocator()),
		vals:    make([]argument.Argument, len(p.slots)),
		storage: make([]uint64, len(p.slots)),
		lengths: make(map[int]int),
	}
	defer f.scope.Release()

	raw, err := f.lower(args)
	if err != nil {
		f.forget()
		f.abandon()
		return nil, err
	}
	Logger().Debug("invoke",
		zap.String("callable", p.name),
		zap.String("symbol", fn.Name()),
		zap.Stringer("signature", p.sig))

	ret, err := fn.Call(ctx, p.sig, raw)
	if err != nil {
		f.forget()
		f.abandon()
		return nil, err
	}
	if p.throws {
		if err := f.thrown(); err != nil {
			f.abandon()
			return nil, err
		}
	}
	return f.lift(ret)
}

// plan returns the cached call plan of c, building it on first use.
func (inv *Invoker) plan(c info.CallableInfo) (*plan, error) {
	key := planKey{tl: c.Typelib(), offset: c.Offset()}
	inv.mu.RLock()
	p, ok := inv.plans[key]
	inv.mu.RUnlock()
	if ok {
		return p, nil
	}
	p, err := newPlan(c, inv.conv.Memory.PointerSize())
	if err != nil {
		return nil, err
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if prev, ok := inv.plans[key]; ok {
		p.release()
		return prev, nil
	}
	inv.plans[key] = p
	return p, nil
}

// Plans returns the number of cached call plans.
func (inv *Invoker) Plans() int {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return len(inv.plans)
}

// Release drops the cached call plans and the infos they reference. The
// Invoker stays usable and rebuilds plans on demand.
func (inv *Invoker) Release() {
	inv.mu.Lock()
	plans := inv.plans
	inv.plans = make(map[planKey]*plan)
	inv.mu.Unlock()
	for _, p := range plans {
		p.release()
	}
}

// quark resolves a GError domain through g_quark_to_string.
func (inv *Invoker) quark(q uint32) string {
	fn, err := inv.symbol("g_quark_to_string")
	if err != nil {
		return ""
	}
	ptr, err := fn.Call(context.Background(), quarkSig, []uint64{uint64(q)})
	if err != nil || ptr == 0 {
		return ""
	}
	s, err := giruntime.ReadCString(inv.lib.Memory(), ptr)
	if err != nil {
		return ""
	}
	return s
}

// freeError releases a GError with g_error_free, or field by field when
// the library does not export it.
func (inv *Invoker) freeError(addr uint64) {
	if fn, err := inv.symbol("g_error_free"); err == nil {
		if _, err := fn.Call(context.Background(), freeSig, []uint64{addr}); err != nil {
			Logger().Warn("g_error_free failed", zap.Uint64("ptr", addr), zap.Error(err))
		}
		return
	}
	if msg, err := giruntime.ReadPointer(inv.lib.Memory(), addr+8); err == nil && msg != 0 {
		inv.lib.Allocator().Free(msg)
	}
	inv.lib.Allocator().Free(addr)
}

func (inv *Invoker) symbol(name string) (giruntime.Function, error) {
	inv.mu.RLock()
	fn, ok := inv.cache[name]
	inv.mu.RUnlock()
	if ok {
		return fn, nil
	}
	fn, err := inv.lib.Symbol(name)
	if err != nil {
		return nil, err
	}
	inv.mu.Lock()
	inv.cache[name] = fn
	inv.mu.Unlock()
	return fn, nil
}

// Pointer extracts a receiver address from a raw pointer or a handle.
func Pointer(v any) (uint64, bool) {
	switch x := v.(type) {
	case argument.Handle:
		return x.Pointer(), true
	case uint64:
		return x, true
	case uintptr:
		return uint64(x), true
	}
	return 0, false
}

// transferOf returns the ownership an argument hands to the callee.
func transferOf(s *slot) typelib.Transfer {
	if s.dir == typelib.DirectionOut {
		return typelib.TransferNothing
	}
	return s.arg.Transfer()
}
