package binding

import (
	"context"
	"strings"
	"weak"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/argument"
	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/info"
)

// G_CONNECT_AFTER
const connectAfter = 1

// signal resolves a signal through the class, its parents and its
// interfaces.
func (c *Class) signal(name string) (info.SignalInfo, bool) {
	switch c.kind {
	case info.KindObject:
		if s, ok := c.bi.MustObject().FindSignal(name); ok {
			return s, true
		}
	case info.KindInterface:
		if s, ok := c.bi.MustInterface().FindSignal(name); ok {
			return s, true
		}
	}
	if p := c.Parent(); p != nil {
		if s, ok := p.signal(name); ok {
			return s, true
		}
	}
	for _, i := range c.Interfaces() {
		if s, ok := i.signal(name); ok {
			return s, true
		}
	}
	return info.SignalInfo{}, false
}

// Connect attaches fn to a signal of the object and returns the handler
// id. detailed is "name" or "name::detail". fn receives the emitting
// object followed by the signal's arguments; its result is the signal's
// return value.
func (o *Object) Connect(ctx context.Context, detailed string, fn argument.Callback) (uint64, error) {
	return o.connect(ctx, detailed, fn, 0)
}

// ConnectAfter is Connect for a handler run after the default handler.
func (o *Object) ConnectAfter(ctx context.Context, detailed string, fn argument.Callback) (uint64, error) {
	return o.connect(ctx, detailed, fn, connectAfter)
}

func (o *Object) connect(ctx context.Context, detailed string, fn argument.Callback, flags uint64) (uint64, error) {
	if err := o.live("connect " + detailed); err != nil {
		return 0, err
	}
	c, m := o.class, o.class.mod
	name, detail, hasDetail := strings.Cut(detailed, "::")
	name = canonical(name)
	si, ok := c.signal(name)
	if !ok {
		return 0, errors.NotFound(errors.PhaseLookup, "signal", c.QualifiedName()+"::"+name)
	}
	if hasDetail {
		name += "::" + detail
	}

	conv := m.inv.Converter()
	handler, err := conv.Handler(si.BaseInfo, o.emitter(), fn)
	si.Unref()
	if err != nil {
		return 0, err
	}
	destroy, err := conv.DestroyNotify()
	if err != nil {
		conv.ReleaseCallback(handler)
		return 0, err
	}

	scope := argument.NewScope(m.lib.Allocator())
	defer scope.Release()
	cname, err := m.cstring(scope, name)
	if err != nil {
		conv.ReleaseCallback(handler)
		return 0, err
	}
	sig := giruntime.Signature{
		Params: []giruntime.ValueKind{
			giruntime.KindPointer, giruntime.KindPointer, giruntime.KindPointer,
			giruntime.KindPointer, giruntime.KindPointer, giruntime.KindU32,
		},
		Result: gtypeKind(m.lib),
	}
	id, err := m.invokeSymbol(ctx, "g_signal_connect_data", sig, o.ptr, cname, handler, handler, destroy, flags)
	if err != nil {
		conv.ReleaseCallback(handler)
		return 0, err
	}
	if id == 0 {
		conv.ReleaseCallback(handler)
		return 0, errors.New(errors.PhaseInvoke, errors.KindInvalidInput).
			Path(c.QualifiedName(), name).
			Detail("g_signal_connect_data refused the handler").
			Build()
	}
	return id, nil
}

// emitter decodes the instance a handler is called with. The connected
// wrapper is reused while it is alive; it is only weakly held so a
// handler does not keep its own instance referenced.
func (o *Object) emitter() func(ptr uint64) (any, error) {
	self := weak.Make(o)
	c := o.class
	return func(ptr uint64) (any, error) {
		if w := self.Value(); w != nil && w.ptr == ptr && !w.released.Load() {
			return w, nil
		}
		return c.wrapInstance(ptr, false)
	}
}

// Disconnect removes a handler; its destroy notify releases the
// callback.
func (o *Object) Disconnect(ctx context.Context, id uint64) error {
	return o.handlerCall(ctx, "g_signal_handler_disconnect", id)
}

// HandlerBlock stops a handler from being called until HandlerUnblock.
func (o *Object) HandlerBlock(ctx context.Context, id uint64) error {
	return o.handlerCall(ctx, "g_signal_handler_block", id)
}

func (o *Object) HandlerUnblock(ctx context.Context, id uint64) error {
	return o.handlerCall(ctx, "g_signal_handler_unblock", id)
}

func (o *Object) handlerCall(ctx context.Context, symbol string, id uint64) error {
	if err := o.live(symbol); err != nil {
		return err
	}
	m := o.class.mod
	sig := giruntime.Signature{Params: []giruntime.ValueKind{giruntime.KindPointer, gtypeKind(m.lib)}}
	_, err := m.invokeSymbol(ctx, symbol, sig, o.ptr, id)
	return err
}
