package argument

import (
	"fmt"
	"sync"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/typelib"
	"go.uber.org/zap"
)

// Callback is a Go function exposed to native code. It receives the
// decoded arguments; out arguments arrive as raw pointers. The result is
// encoded with the callback's return type and ignored for void.
type Callback func(args []any) any

// frame holds the metadata a native callback decodes its arguments with.
// A transfer-none result is kept alive in last until the next invocation
// or until the callback is released.
type frame struct {
	cb     *info.BaseInfo
	args   []info.ArgInfo
	types  []info.TypeInfo
	ret    info.TypeInfo
	sig    giruntime.Signature
	rtrans typelib.Transfer
	// self decodes the leading instance of a signal handler.
	self func(ptr uint64) (any, error)
	off  int

	mu   sync.Mutex
	last *Scope
}

func newFrame(cb *info.BaseInfo) (*frame, error) {
	cc, err := cb.AsCallable()
	if err != nil {
		return nil, err
	}
	f := &frame{cb: cb.Ref(), args: cc.Args(), ret: cc.ReturnType(), rtrans: cc.ReturnTransfer()}
	for _, a := range f.args {
		t := a.Type()
		f.types = append(f.types, t)
		k := giruntime.KindPointer
		if a.Direction() == typelib.DirectionIn {
			if k, err = SlotKind(t); err != nil {
				f.release()
				return nil, err
			}
		}
		f.sig.Params = append(f.sig.Params, k)
	}
	if f.sig.Result, err = SlotKind(f.ret); err != nil {
		f.release()
		return nil, err
	}
	return f, nil
}

// result swaps in the scope of the newest invocation and frees the one
// before it.
func (f *frame) result(s *Scope) {
	f.mu.Lock()
	prev := f.last
	f.last = s
	f.mu.Unlock()
	prev.Release()
}

func (f *frame) release() {
	f.result(nil)
	info.Release(f.types)
	info.Release(f.args)
	f.ret.Unref()
	f.cb.Unref()
}

func (c *Converter) encodeCallback(v any, ti info.TypeInfo, cb *info.BaseInfo, opts Options) (Argument, error) {
	var fn Callback
	switch x := v.(type) {
	case Callback:
		fn = x
	case func([]any) any:
		fn = x
	default:
		return c.encodePointer(v, ti, opts)
	}
	if fn == nil {
		return c.encodePointer(nil, ti, opts)
	}
	if c.Callbacks == nil {
		return 0, conversion(opts, v, ti, errors.Unsupported(errors.PhaseEncode, "callbacks on this library"), "unsupported")
	}
	f, err := newFrame(cb)
	if err != nil {
		return 0, conversion(opts, v, ti, err, "callback signature")
	}
	var (
		ptr  uint64
		once sync.Once
	)
	release := func() {
		once.Do(func() {
			c.Callbacks.FreeCallback(ptr)
			f.release()
		})
	}
	native := c.trampoline(f, fn)
	if opts.CallbackScope == typelib.ScopeAsync {
		inner := native
		native = func(raw []uint64) uint64 {
			defer release()
			return inner(raw)
		}
	}
	ptr, err = c.Callbacks.NewCallback(f.sig, native)
	if err != nil {
		f.release()
		return 0, conversion(opts, v, ti, err, "create callback")
	}
	switch opts.CallbackScope {
	case typelib.ScopeCall:
		opts.Scope.Defer(release)
	case typelib.ScopeNotified:
		c.notified.Store(ptr, release)
	}
	return FromPointer(ptr), nil
}

// Handler creates a native handler for signal. The native form takes
// the emitting instance first and user data last; self decodes the
// instance, which fn receives as its first argument. The handler is
// notified-scoped: it lives until ReleaseCallback is called with the
// returned pointer, normally from DestroyNotify.
func (c *Converter) Handler(signal *info.BaseInfo, self func(ptr uint64) (any, error), fn Callback) (uint64, error) {
	if fn == nil || self == nil {
		return 0, errors.New(errors.PhaseEncode, errors.KindInvalidInput).
			Path(signal.QualifiedName()).
			Detail("handler needs a function and an instance decoder").
			Build()
	}
	if c.Callbacks == nil {
		return 0, errors.Unsupported(errors.PhaseEncode, "callbacks on this library")
	}
	f, err := newFrame(signal)
	if err != nil {
		return 0, err
	}
	f.self, f.off = self, 1
	params := make([]giruntime.ValueKind, 0, len(f.sig.Params)+2)
	params = append(params, giruntime.KindPointer)
	params = append(params, f.sig.Params...)
	f.sig.Params = append(params, giruntime.KindPointer)

	ptr, err := c.Callbacks.NewCallback(f.sig, c.trampoline(f, fn))
	if err != nil {
		f.release()
		return 0, err
	}
	c.notified.Store(ptr, func() {
		c.Callbacks.FreeCallback(ptr)
		f.release()
	})
	return ptr, nil
}

// ReleaseCallback frees a notified-scope callback created by ToNative.
// Unknown or already released pointers are ignored.
func (c *Converter) ReleaseCallback(ptr uint64) {
	if fn, ok := c.notified.LoadAndDelete(ptr); ok {
		fn.(func())()
	}
}

// Notified returns the number of notified-scope callbacks not yet
// released.
func (c *Converter) Notified() int {
	n := 0
	c.notified.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// DestroyNotify returns a native GDestroyNotify that releases the
// notified-scope callback passed as its data. The function is created
// once per converter.
func (c *Converter) DestroyNotify() (uint64, error) {
	if c.Callbacks == nil {
		return 0, errors.Unsupported(errors.PhaseEncode, "callbacks on this library")
	}
	c.destroyOnce.Do(func() {
		sig := giruntime.Signature{Params: []giruntime.ValueKind{giruntime.KindPointer}, Result: giruntime.KindVoid}
		c.destroy, c.destroyErr = c.Callbacks.NewCallback(sig, func(raw []uint64) uint64 {
			if len(raw) > 0 {
				c.ReleaseCallback(raw[0])
			}
			return 0
		})
	})
	return c.destroy, c.destroyErr
}

// trampoline adapts fn to raw native slots. Failures cannot reach a Go
// caller, so they are logged and the zero value is returned.
func (c *Converter) trampoline(f *frame, fn Callback) func([]uint64) uint64 {
	name := f.cb.QualifiedName()
	return func(raw []uint64) (result uint64) {
		defer func() {
			if r := recover(); r != nil {
				Logger().Error("callback panicked", zap.String("callback", name), zap.Any("panic", r))
				result = 0
			}
		}()
		vals := make([]any, f.off+len(f.args))
		if f.self != nil && len(raw) > 0 {
			v, err := f.self(raw[0])
			if err != nil {
				Logger().Error("callback instance", zap.String("callback", name), zap.Error(err))
				return 0
			}
			vals[0] = v
		}
		for i, a := range f.args {
			j := f.off + i
			if j >= len(raw) {
				break
			}
			if a.Direction() != typelib.DirectionIn {
				vals[j] = raw[j]
				continue
			}
			v, err := c.FromNative(Argument(f.sig.Params[j].Normalize(raw[j])), f.types[i], typelib.TransferNothing)
			if err != nil {
				Logger().Error("callback argument", zap.String("callback", name), zap.Int("index", i), zap.Error(err))
				return 0
			}
			vals[j] = v
		}
		out := fn(vals)
		if f.sig.Result == giruntime.KindVoid {
			return 0
		}
		var scope *Scope
		if f.rtrans == typelib.TransferNothing {
			scope = NewScope(c.Allocator)
		}
		a, err := c.ToNative(out, f.ret, Options{
			Path:     []string{name, "return"},
			Scope:    scope,
			Nullable: true,
			Transfer: f.rtrans,
		})
		f.result(scope)
		if err != nil {
			Logger().Error("callback result", zap.String("callback", name), zap.Error(err),
				zap.String("go_type", fmt.Sprintf("%T", out)))
			return 0
		}
		return a.Raw()
	}
}
