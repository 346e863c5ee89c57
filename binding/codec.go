package binding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/argument"
	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/invoke"
	"github.com/wippyai/gi-runtime/typelib"
)

// codec converts objects, boxed values and enums for a module's invoker.
type codec struct {
	mod *Module
}

var _ argument.InterfaceCodec = (*codec)(nil)

func encodeError(v any, ti info.TypeInfo, opts argument.Options, cause error, detail string) error {
	b := errors.New(errors.PhaseEncode, errors.KindConversion).
		Path(opts.Path...).
		GoType(fmt.Sprintf("%T", v)).
		GIType(ti.String()).
		Value(v).
		Detail("%s", detail)
	if cause != nil {
		b = b.Cause(cause)
	}
	return b.Build()
}

// generated returns the generated wrapper inside an override value that
// embeds *Object or *Boxed.
func generated(v any) any {
	switch x := v.(type) {
	case interface{ object() *Object }:
		if o := x.object(); o != nil {
			return o
		}
	case interface{ boxed() *Boxed }:
		if b := x.boxed(); b != nil {
			return b
		}
	}
	return v
}

func (c *codec) EncodeInterface(v any, iface *info.BaseInfo, ti info.TypeInfo, opts argument.Options) (argument.Argument, error) {
	switch x := generated(v).(type) {
	case *Object:
		if x == nil {
			return null(v, ti, opts)
		}
		if err := c.accept(&x.handle, iface); err != nil {
			return 0, encodeError(v, ti, opts, err, "incompatible instance")
		}
		if opts.Transfer != typelib.TransferNothing {
			// The callee takes a reference; the wrapper keeps its own.
			ref, _ := x.class.refFunctions()
			if _, err := x.class.mod.callSymbol(ref, refSig, x.ptr); err != nil {
				return 0, encodeError(v, ti, opts, err, "take reference for callee")
			}
		}
		return argument.FromPointer(x.ptr), nil
	case *Boxed:
		if x == nil {
			return null(v, ti, opts)
		}
		if err := c.accept(&x.handle, iface); err != nil {
			return 0, encodeError(v, ti, opts, err, "incompatible value")
		}
		if opts.Transfer != typelib.TransferNothing {
			cp, _, err := x.class.duplicate(x.ptr)
			if err != nil {
				return 0, encodeError(v, ti, opts, err, "copy for callee")
			}
			return argument.FromPointer(cp), nil
		}
		return argument.FromPointer(x.ptr), nil
	}
	if p, ok := invoke.Pointer(v); ok {
		if p == 0 {
			return null(v, ti, opts)
		}
		return argument.FromPointer(p), nil
	}
	return 0, encodeError(v, ti, opts,
		errors.TypeMismatch(errors.PhaseEncode, opts.Path, fmt.Sprintf("%T", v), iface.QualifiedName()),
		"want "+iface.QualifiedName())
}

func null(v any, ti info.TypeInfo, opts argument.Options) (argument.Argument, error) {
	if !opts.Nullable {
		return 0, encodeError(v, ti, opts, errors.NilPointer(errors.PhaseEncode, opts.Path, ti.String()), "null not allowed")
	}
	return 0, nil
}

// accept checks that a wrapper is alive and an instance of iface.
func (c *codec) accept(h *handle, iface *info.BaseInfo) error {
	if err := h.live("pass"); err != nil {
		return err
	}
	want, err := c.mod.rt.classOf(iface)
	if err != nil {
		// Unknown target types accept any wrapper.
		return nil
	}
	if !h.class.IsA(want) {
		return errors.TypeMismatch(errors.PhaseEncode, nil, h.class.QualifiedName(), want.QualifiedName())
	}
	return nil
}

func (c *codec) DecodeInterface(a argument.Argument, iface *info.BaseInfo, ti info.TypeInfo, transfer typelib.Transfer) (any, error) {
	switch iface.Kind() {
	case info.KindEnum, info.KindFlags:
		raw := argument.EnumStorage(a, iface.MustEnum().StorageType())
		m, err := c.mod.rt.moduleFor(iface.Namespace())
		if err != nil {
			return raw, nil
		}
		et, err := m.Enum(iface.Name())
		if err != nil {
			return raw, nil
		}
		return et.Value(raw)
	case info.KindObject, info.KindInterface:
		ptr := a.Pointer()
		if ptr == 0 {
			return nil, nil
		}
		cls, err := c.mod.rt.classOf(iface)
		if err != nil {
			Logger().Debug("instance of unavailable class stays raw",
				zap.String("type", iface.QualifiedName()), zap.Error(err))
			return ptr, nil
		}
		if dyn := c.mod.dynamicClass(cls, ptr); dyn != nil {
			cls = dyn
		}
		return cls.wrapInstance(ptr, transfer != typelib.TransferNothing)
	case info.KindStruct, info.KindBoxed, info.KindUnion:
		ptr := a.Pointer()
		if ptr == 0 {
			return nil, nil
		}
		cls, err := c.mod.rt.classOf(iface)
		if err != nil {
			return ptr, nil
		}
		return cls.wrapValue(ptr, transfer)
	}
	if a == 0 {
		return nil, nil
	}
	return a.Pointer(), nil
}

// dynamicClass finds the most-derived class of the instance at ptr from
// its runtime GType, or nil when it cannot tell or the answer does not
// derive from static.
func (m *Module) dynamicClass(static *Class, ptr uint64) *Class {
	fn, ok := m.symbol("g_type_name")
	if !ok {
		return nil
	}
	mem := m.lib.Memory()
	klass, err := giruntime.ReadPointer(mem, ptr)
	if err != nil || klass == 0 {
		return nil
	}
	gt, err := giruntime.ReadPointer(mem, klass)
	if err != nil || gt == 0 {
		return nil
	}
	if v, ok := m.dynamic.Load(gt); ok {
		cls, _ := v.(*Class)
		if cls != nil && cls.IsA(static) {
			return cls
		}
		return nil
	}

	sig := giruntime.Signature{Params: []giruntime.ValueKind{gtypeKind(m.lib)}, Result: giruntime.KindPointer}
	addr, err := fn.Call(context.Background(), sig, []uint64{gt})
	if err != nil || addr == 0 {
		return nil
	}
	name, err := giruntime.ReadCString(mem, addr)
	if err != nil {
		return nil
	}
	var cls *Class
	if name == static.GTypeName() {
		cls = static
	} else if cls, err = m.rt.ClassByGTypeName(name); err != nil {
		Logger().Debug("runtime type not introspected",
			zap.String("gtype", name), zap.String("static", static.QualifiedName()))
		cls = nil
	}
	m.dynamic.Store(gt, cls)
	if cls == nil || !cls.IsA(static) {
		return nil
	}
	return cls
}
