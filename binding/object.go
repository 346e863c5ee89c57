package binding

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/argument"
	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/finalize"
	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/override"
	"github.com/wippyai/gi-runtime/typelib"
)

var (
	refSig   = giruntime.Signature{Params: []giruntime.ValueKind{giruntime.KindPointer}, Result: giruntime.KindPointer}
	unrefSig = giruntime.Signature{Params: []giruntime.ValueKind{giruntime.KindPointer}}
)

// handle is the state shared by objects and boxed values.
type handle struct {
	class    *Class
	reg      *finalize.Registration
	owner    any
	ptr      uint64
	released atomic.Bool
}

// Pointer returns the native address.
func (h *handle) Pointer() uint64 { return h.ptr }

func (h *handle) Class() *Class { return h.class }

// Owned reports whether the wrapper holds a reference or allocation that
// is dropped when it is released or collected.
func (h *handle) Owned() bool { return h.reg != nil && !h.reg.Done() }

// IsA reports whether the value's class is, derives from or implements c.
func (h *handle) IsA(c *Class) bool { return h.class.IsA(c) }

// Definition returns the override registered for the value's class, or
// the class itself.
func (h *handle) Definition() override.Definition {
	d, err := h.class.mod.Lookup(h.class.name)
	if err != nil {
		return h.class
	}
	return d
}

// Release drops the wrapper's reference now. The wrapper must not be
// used afterwards.
func (h *handle) Release() error {
	if !h.released.CompareAndSwap(false, true) {
		return nil
	}
	if h.reg == nil {
		return nil
	}
	return h.reg.Release()
}

func (h *handle) live(op string) error {
	if h.released.Load() {
		return errors.Closed(errors.PhaseRuntime, h.class.QualifiedName()+" "+op)
	}
	return nil
}

// call invokes a method of the value's class with self as receiver.
// Override methods take precedence at each level of the table.
func (h *handle) call(ctx context.Context, self any, name string, args []any) ([]any, error) {
	if err := h.live("call " + name); err != nil {
		return nil, err
	}
	m, f, ok := h.class.lookup(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseLookup, "method", h.class.QualifiedName()+"."+name)
	}
	if m != nil {
		return m(ctx, self, args...)
	}
	if !f.IsMethod() {
		return f.Call(ctx, args...)
	}
	full := make([]any, 0, len(args)+1)
	full = append(full, self)
	return f.Call(ctx, append(full, args...)...)
}

// Field reads a readable field.
func (h *handle) Field(name string) (any, error) {
	if err := h.live("field " + name); err != nil {
		return nil, err
	}
	fi, ok := h.class.field(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseLookup, "field", h.class.QualifiedName()+"."+name)
	}
	defer fi.Unref()
	if !fi.IsReadable() {
		return nil, memberError(h.class, name, errors.KindUnsupported, "field is not readable")
	}
	ti := fi.Type()
	defer ti.Unref()
	addr := h.ptr + uint64(fi.Offset())

	if ti.Tag() == typelib.TagInterface && !ti.IsPointer() {
		if iface := ti.Interface(); iface != nil {
			defer iface.Unref()
			switch iface.Kind() {
			case info.KindStruct, info.KindBoxed, info.KindUnion:
				c, err := h.class.mod.rt.classOf(iface)
				if err != nil {
					return nil, err
				}
				// An inline value borrows the enclosing allocation.
				b := &Boxed{handle{class: c, ptr: addr, owner: h}}
				return c.construct(b, &b.handle)
			}
		}
	}
	conv := h.class.mod.inv.Converter()
	k, err := argument.SlotKind(ti)
	if err != nil {
		return nil, memberError(h.class, name, errors.KindUnsupported, err.Error())
	}
	a, err := conv.Load(addr, k)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "load field "+name)
	}
	return conv.FromNative(a, ti, typelib.TransferNothing)
}

// SetField writes a writable field. Strings and references stored in the
// field belong to the value afterwards.
func (h *handle) SetField(name string, v any) error {
	if err := h.live("field " + name); err != nil {
		return err
	}
	fi, ok := h.class.field(name)
	if !ok {
		return errors.NotFound(errors.PhaseLookup, "field", h.class.QualifiedName()+"."+name)
	}
	defer fi.Unref()
	if !fi.IsWritable() {
		return memberError(h.class, name, errors.KindReadOnly, "field is not writable")
	}
	ti := fi.Type()
	defer ti.Unref()
	k, err := argument.SlotKind(ti)
	if err != nil {
		return memberError(h.class, name, errors.KindUnsupported, err.Error())
	}
	conv := h.class.mod.inv.Converter()
	a, err := conv.ToNative(v, ti, argument.Options{
		Path:     []string{h.class.QualifiedName(), name},
		Nullable: true,
		Transfer: typelib.TransferEverything,
	})
	if err != nil {
		return err
	}
	return conv.Store(h.ptr+uint64(fi.Offset()), k, a)
}

func memberError(c *Class, member string, kind errors.Kind, detail string) error {
	return errors.New(errors.PhaseRuntime, kind).
		Path(c.QualifiedName(), member).
		Detail("%s", detail).
		Build()
}

// track registers destroy for the handle's pointer with the runtime's
// finalizer. wrapper is the outer value whose collection triggers it.
func track[T any](h *handle, wrapper *T, destroy finalize.Destructor) error {
	reg, err := finalize.Track(h.class.mod.rt.finalizer, wrapper, h.ptr, destroy)
	if err != nil {
		return err
	}
	h.reg = reg
	return nil
}

// Object wraps a reference-counted instance. Override wrappers embed
// *Object so they can be passed back to native calls.
type Object struct{ handle }

func wrapObject(c *Class, ptr uint64, owned bool) (*Object, error) {
	o := &Object{handle{class: c, ptr: ptr}}
	ref, unref := c.refFunctions()
	if !owned {
		if _, err := c.mod.callSymbol(ref, refSig, ptr); err != nil {
			Logger().Debug("borrowing instance without a reference",
				zap.String("class", c.QualifiedName()), zap.Uint64("ptr", ptr), zap.Error(err))
			return o, nil
		}
	}
	fn, ok := c.mod.symbol(unref)
	if !ok {
		Logger().Debug("instance not tracked, no unref function",
			zap.String("class", c.QualifiedName()), zap.String("symbol", unref))
		return o, nil
	}
	destroy := func(p uint64) error {
		_, err := fn.Call(context.Background(), unrefSig, []uint64{p})
		return err
	}
	if err := track(&o.handle, o, destroy); err != nil {
		_ = destroy(ptr)
		return nil, err
	}
	return o, nil
}

func (o *Object) object() *Object { return o }

// Call invokes a method resolved through the class's operation table.
func (o *Object) Call(ctx context.Context, name string, args ...any) ([]any, error) {
	return o.call(ctx, o, name, args)
}

func (o *Object) String() string {
	return fmt.Sprintf("<%s object at 0x%x>", o.class.QualifiedName(), o.ptr)
}

// Boxed wraps a struct or union value. Override wrappers embed *Boxed.
type Boxed struct{ handle }

func wrapBoxed(c *Class, ptr uint64, transfer typelib.Transfer) (*Boxed, error) {
	b := &Boxed{handle{class: c, ptr: ptr}}
	destroy := c.destructor()
	if transfer == typelib.TransferNothing {
		if !c.isBoxed() {
			return b, nil
		}
		cp, free, err := c.duplicate(ptr)
		if err != nil {
			Logger().Debug("borrowing boxed value, copy failed",
				zap.String("class", c.QualifiedName()), zap.Error(err))
			return b, nil
		}
		b.ptr, destroy = cp, free
	}
	if err := b.own(destroy); err != nil {
		_ = destroy(b.ptr)
		return nil, err
	}
	return b, nil
}

func (b *Boxed) own(destroy finalize.Destructor) error {
	return track(&b.handle, b, destroy)
}

func (b *Boxed) boxed() *Boxed { return b }

// Call invokes a method of the struct or union type.
func (b *Boxed) Call(ctx context.Context, name string, args ...any) ([]any, error) {
	return b.call(ctx, b, name, args)
}

// Copy returns an owned copy of the value.
func (b *Boxed) Copy() (*Boxed, error) {
	if err := b.live("copy"); err != nil {
		return nil, err
	}
	cp, free, err := b.class.duplicate(b.ptr)
	if err != nil {
		return nil, err
	}
	out := &Boxed{handle{class: b.class, ptr: cp}}
	if err := out.own(free); err != nil {
		_ = free(cp)
		return nil, err
	}
	return out, nil
}

func (b *Boxed) String() string {
	return fmt.Sprintf("<%s at 0x%x>", b.class.QualifiedName(), b.ptr)
}

// destructor frees an owned value: the type's free function, then
// g_boxed_free for registered types, then the library allocator.
func (c *Class) destructor() finalize.Destructor {
	if fn, ok := c.mod.symbol(c.freeFunction()); ok {
		return func(p uint64) error {
			_, err := fn.Call(context.Background(), unrefSig, []uint64{p})
			return err
		}
	}
	if c.kind == info.KindBoxed {
		if fn, ok := c.mod.symbol("g_boxed_free"); ok {
			if gt, err := c.GType(); err == nil {
				sig := giruntime.Signature{Params: []giruntime.ValueKind{gtypeKind(c.mod.lib), giruntime.KindPointer}}
				return func(p uint64) error {
					_, err := fn.Call(context.Background(), sig, []uint64{uint64(gt), p})
					return err
				}
			}
		}
	}
	return c.allocatorFree()
}

// duplicate copies the value at ptr and returns the destructor matching
// how the copy was made.
func (c *Class) duplicate(ptr uint64) (uint64, finalize.Destructor, error) {
	if fn, ok := c.mod.symbol(c.copyFunction()); ok {
		cp, err := fn.Call(context.Background(), refSig, []uint64{ptr})
		if err != nil {
			return 0, nil, err
		}
		return cp, c.destructor(), nil
	}
	if c.kind == info.KindBoxed {
		if fn, ok := c.mod.symbol("g_boxed_copy"); ok {
			if gt, err := c.GType(); err == nil {
				sig := giruntime.Signature{
					Params: []giruntime.ValueKind{gtypeKind(c.mod.lib), giruntime.KindPointer},
					Result: giruntime.KindPointer,
				}
				cp, err := fn.Call(context.Background(), sig, []uint64{uint64(gt), ptr})
				if err != nil {
					return 0, nil, err
				}
				return cp, c.destructor(), nil
			}
		}
	}
	size := c.Size()
	if size == 0 {
		return 0, nil, errors.Unsupported(errors.PhaseRuntime, "copy of opaque "+c.QualifiedName())
	}
	mem, alloc := c.mod.lib.Memory(), c.mod.lib.Allocator()
	data, err := mem.Read(ptr, size)
	if err != nil {
		return 0, nil, errors.Wrap(errors.PhaseRuntime, errors.KindOutOfBounds, err, "read "+c.QualifiedName())
	}
	cp, err := alloc.Alloc(size, c.alignment())
	if err != nil {
		return 0, nil, errors.AllocationFailed(errors.PhaseRuntime, size, c.alignment(), err)
	}
	if err := mem.Write(cp, data); err != nil {
		alloc.Free(cp)
		return 0, nil, errors.Wrap(errors.PhaseRuntime, errors.KindOutOfBounds, err, "write "+c.QualifiedName())
	}
	return cp, c.allocatorFree(), nil
}
