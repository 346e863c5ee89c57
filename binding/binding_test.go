package binding

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	giruntime "github.com/wippyai/gi-runtime"
	gierrors "github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/hostlib"
	"github.com/wippyai/gi-runtime/override"
	"github.com/wippyai/gi-runtime/repository"
	"github.com/wippyai/gi-runtime/typelib"
)

const (
	gtypeBase    = 100
	gtypeDerived = 101

	gtypeInt    = 6 << 2
	gtypeString = 16 << 2
)

// handler is a signal connection made through g_signal_connect_data.
type handler struct {
	id       uint64
	instance uint64
	signal   string
	fn       uint64
	data     uint64
	destroy  uint64
	after    bool
	blocked  int
}

// world is the native side of the Demo namespace: a tiny object system
// with per-instance reference counts.
type world struct {
	lib    *hostlib.Library
	heap   *hostlib.Heap
	refs   map[uint64]int
	klass  map[uint64]uint64
	names  map[uint64]uint64
	strs   map[string]uint64
	global uint64
	rect   uint64
	copies int
	frees  int
	mu     sync.Mutex
	// props holds property values: Go strings, int32s and instance
	// pointers the world holds a reference on.
	props    map[uint64]map[string]any
	handlers []*handler
	lastID   uint64
}

func (w *world) str(s string) uint64 {
	if p, ok := w.strs[s]; ok {
		return p
	}
	p, err := giruntime.WriteCString(w.heap, w.heap, s)
	if err != nil {
		panic(err)
	}
	w.strs[s] = p
	return p
}

func (w *world) instance(gtype uint64) uint64 {
	p, err := w.heap.Alloc(16, 8)
	if err != nil {
		panic(err)
	}
	_ = w.heap.WriteU64(p, w.klass[gtype])
	_ = w.heap.WriteU32(p+8, 7)
	w.mu.Lock()
	w.refs[p] = 1
	w.props[p] = map[string]any{"serial": int32(7)}
	w.mu.Unlock()
	return p
}

func (w *world) ref(p uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.refs[p]++
}

func (w *world) unref(p uint64) {
	w.mu.Lock()
	w.refs[p]--
	if w.refs[p] > 0 {
		w.mu.Unlock()
		return
	}
	delete(w.refs, p)
	props := w.props[p]
	delete(w.props, p)
	w.mu.Unlock()
	w.heap.Free(p)
	for _, v := range props {
		if peer, ok := v.(uint64); ok && peer != 0 {
			w.unref(peer)
		}
	}
}

// getProperty fills an initialized GValue the way g_object_get_property
// does: strings are duplicated and instances referenced.
func (w *world) getProperty(obj uint64, name string, value uint64) {
	gt, _ := w.heap.ReadU64(value)
	w.mu.Lock()
	v := w.props[obj][name]
	w.mu.Unlock()
	switch gt {
	case gtypeString:
		var p uint64
		if s, ok := v.(string); ok {
			p, _ = giruntime.WriteCString(w.heap, w.heap, s)
		}
		_ = w.heap.WriteU64(value+8, p)
	case gtypeInt:
		n, _ := v.(int32)
		_ = w.heap.WriteU32(value+8, uint32(n))
	default:
		p, _ := v.(uint64)
		if p != 0 {
			w.ref(p)
		}
		_ = w.heap.WriteU64(value+8, p)
	}
}

func (w *world) setProperty(obj uint64, name string, value uint64) {
	gt, _ := w.heap.ReadU64(value)
	var v any
	switch gt {
	case gtypeString:
		if p, _ := w.heap.ReadU64(value + 8); p != 0 {
			v, _ = giruntime.ReadCString(w.heap, p)
		}
	case gtypeInt:
		n, _ := w.heap.ReadU32(value + 8)
		v = int32(n)
	default:
		p, _ := w.heap.ReadU64(value + 8)
		if p != 0 {
			w.ref(p)
		}
		v = p
	}
	w.mu.Lock()
	old := w.props[obj][name]
	w.props[obj][name] = v
	w.mu.Unlock()
	if p, ok := old.(uint64); ok && p != 0 {
		w.unref(p)
	}
}

// emit runs the unblocked handlers of signal on instance, normal ones
// before after ones, and returns the last result.
func (w *world) emit(ctx context.Context, instance uint64, signal string, sig giruntime.Signature, args ...uint64) (uint64, error) {
	params := append([]giruntime.ValueKind{giruntime.KindPointer}, sig.Params...)
	full := giruntime.Signature{Params: append(params, giruntime.KindPointer), Result: sig.Result}
	w.mu.Lock()
	handlers := append([]*handler(nil), w.handlers...)
	w.mu.Unlock()
	var ret uint64
	for _, after := range []bool{false, true} {
		for _, h := range handlers {
			if h.instance != instance || h.signal != signal || h.after != after || h.blocked > 0 {
				continue
			}
			raw := append([]uint64{instance}, args...)
			r, err := w.lib.CallPointer(ctx, h.fn, full, append(raw, h.data))
			if err != nil {
				return 0, err
			}
			ret = r
		}
	}
	return ret, nil
}

func (w *world) handler(id uint64) *handler {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, h := range w.handlers {
		if h.id == id {
			return h
		}
	}
	return nil
}

func (w *world) refCount(p uint64) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.refs[p]
}

func newWorld() *world {
	w := &world{
		lib:   hostlib.New("libdemo", hostlib.Options{PointerSize: 8}),
		refs:  make(map[uint64]int),
		klass: make(map[uint64]uint64),
		names: make(map[uint64]uint64),
		strs:  make(map[string]uint64),
		props: make(map[uint64]map[string]any),
	}
	w.heap = w.lib.Heap()
	for gt, name := range map[uint64]string{gtypeBase: "DemoBase", gtypeDerived: "DemoDerived"} {
		k, _ := w.heap.Alloc(8, 8)
		_ = w.heap.WriteU64(k, gt)
		w.klass[gt] = k
		w.names[gt] = w.str(name)
	}
	for _, s := range []string{"base", "named", "nick"} {
		w.str(s)
	}
	w.global = w.instance(gtypeBase)
	w.rect, _ = w.heap.Alloc(8, 4)
	_ = w.heap.WriteU32(w.rect, 2)
	_ = w.heap.WriteU32(w.rect+4, 5)

	w.lib.MustRegister("g_object_ref", func(p uintptr) uintptr {
		w.ref(uint64(p))
		return p
	}).
		MustRegister("g_object_unref", func(p uintptr) { w.unref(uint64(p)) }).
		MustRegister("g_value_init", func(value uintptr, gt uint64) uintptr {
			_ = w.heap.WriteU64(uint64(value), gt)
			_ = w.heap.Write(uint64(value)+8, make([]byte, 16))
			return value
		}).
		MustRegister("g_value_unset", func(value uintptr) {
			gt, _ := w.heap.ReadU64(uint64(value))
			p, _ := w.heap.ReadU64(uint64(value) + 8)
			switch {
			case p == 0 || gt == gtypeInt:
			case gt == gtypeString:
				w.heap.Free(p)
			default:
				w.unref(p)
			}
			_ = w.heap.Write(uint64(value), make([]byte, 24))
		}).
		MustRegister("g_object_get_property", func(obj, name, value uintptr) {
			n, _ := giruntime.ReadCString(w.heap, uint64(name))
			w.getProperty(uint64(obj), n, uint64(value))
		}).
		MustRegister("g_object_set_property", func(obj, name, value uintptr) {
			n, _ := giruntime.ReadCString(w.heap, uint64(name))
			w.setProperty(uint64(obj), n, uint64(value))
		}).
		MustRegister("g_object_new_with_properties", func(gt uint64, n uint32, names, values uintptr) uintptr {
			p := w.instance(gt)
			for i := uint64(0); i < uint64(n); i++ {
				np, _ := w.heap.ReadU64(uint64(names) + i*8)
				name, _ := giruntime.ReadCString(w.heap, np)
				w.setProperty(p, name, uint64(values)+i*24)
			}
			return uintptr(p)
		}).
		MustRegister("g_signal_connect_data", func(inst, signal, fn, data, destroy uintptr, flags uint32) uint64 {
			name, _ := giruntime.ReadCString(w.heap, uint64(signal))
			w.mu.Lock()
			defer w.mu.Unlock()
			w.lastID++
			w.handlers = append(w.handlers, &handler{
				id: w.lastID, instance: uint64(inst), signal: name,
				fn: uint64(fn), data: uint64(data), destroy: uint64(destroy), after: flags&1 != 0,
			})
			return w.lastID
		}).
		MustRegister("g_signal_handler_disconnect", hostlib.HostFunc(func(ctx context.Context, lib *hostlib.Library, args []uint64) (uint64, error) {
			w.mu.Lock()
			var gone *handler
			for i, h := range w.handlers {
				if h.instance == args[0] && h.id == args[1] {
					gone = h
					w.handlers = append(w.handlers[:i], w.handlers[i+1:]...)
					break
				}
			}
			w.mu.Unlock()
			if gone == nil || gone.destroy == 0 {
				return 0, nil
			}
			sig := giruntime.Signature{Params: []giruntime.ValueKind{giruntime.KindPointer}}
			_, err := lib.CallPointer(ctx, gone.destroy, sig, []uint64{gone.data})
			return 0, err
		})).
		MustRegister("g_signal_handler_block", func(inst uintptr, id uint64) {
			if h := w.handler(id); h != nil {
				h.blocked++
			}
		}).
		MustRegister("g_signal_handler_unblock", func(inst uintptr, id uint64) {
			if h := w.handler(id); h != nil && h.blocked > 0 {
				h.blocked--
			}
		}).
		MustRegister("g_type_name", func(gt uint64) uintptr { return uintptr(w.names[gt]) }).
		MustRegister("demo_base_get_type", func() uint64 { return gtypeBase }).
		MustRegister("demo_derived_get_type", func() uint64 { return gtypeDerived }).
		MustRegister("demo_base_new", func() uintptr { return uintptr(w.instance(gtypeBase)) }).
		MustRegister("demo_make_derived", func() uintptr { return uintptr(w.instance(gtypeDerived)) }).
		MustRegister("demo_peek", func() uintptr { return uintptr(w.global) }).
		MustRegister("demo_take", func(p uintptr) {}).
		MustRegister("demo_base_get_id", func(self uintptr) int32 {
			v, _ := w.heap.ReadU32(uint64(self) + 8)
			return int32(v)
		}).
		MustRegister("demo_base_describe", func(uintptr) uintptr { return uintptr(w.strs["base"]) }).
		MustRegister("demo_named_describe", func(uintptr) uintptr { return uintptr(w.strs["named"]) }).
		MustRegister("demo_named_nick", func(uintptr) uintptr { return uintptr(w.strs["nick"]) }).
		MustRegister("demo_derived_extra", func(self uintptr, n int32) int32 { return n * 2 }).
		MustRegister("demo_point_norm1", func(self uintptr) int32 {
			x, _ := w.heap.ReadU32(uint64(self))
			y, _ := w.heap.ReadU32(uint64(self) + 4)
			return abs(int32(x)) + abs(int32(y))
		}).
		MustRegister("demo_rect_new", func(width, height int32) uintptr {
			p, _ := w.heap.Alloc(8, 4)
			_ = w.heap.WriteU32(p, uint32(width))
			_ = w.heap.WriteU32(p+4, uint32(height))
			return uintptr(p)
		}).
		MustRegister("demo_rect_peek", func() uintptr { return uintptr(w.rect) }).
		MustRegister("demo_rect_copy", func(p uintptr) uintptr {
			data, _ := w.heap.Read(uint64(p), 8)
			cp, _ := w.heap.Alloc(8, 4)
			_ = w.heap.Write(cp, data)
			w.mu.Lock()
			w.copies++
			w.mu.Unlock()
			return uintptr(cp)
		}).
		MustRegister("demo_rect_free", func(p uintptr) {
			w.heap.Free(uint64(p))
			w.mu.Lock()
			w.frees++
			w.mu.Unlock()
		}).
		MustRegister("demo_color_next", func(c int32) int32 { return (c + 1) % 3 }).
		MustRegister("demo_color_bad", func() int32 { return 9 }).
		MustRegister("demo_mode_echo", func(m uint32) uint32 { return m })
	return w
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func demoTypelib(t testing.TB) *typelib.Typelib {
	t.Helper()
	int32T := typelib.Basic(typelib.TagInt32)
	utf8T := typelib.Basic(typelib.TagUTF8)
	voidT := typelib.Basic(typelib.TagVoid)
	method := func(name, symbol string, ret typelib.TypeDef, args ...typelib.ArgDef) typelib.FunctionDef {
		return typelib.FunctionDef{Name: name, Symbol: symbol, Method: true,
			SignatureDef: typelib.SignatureDef{Args: args, Return: ret}}
	}
	fn := func(name, symbol string, ret typelib.TypeDef, xfer typelib.Transfer, args ...typelib.ArgDef) typelib.FunctionDef {
		return typelib.FunctionDef{Name: name, Symbol: symbol,
			SignatureDef: typelib.SignatureDef{Args: args, Return: ret, ReturnTransfer: xfer}}
	}
	take := typelib.In("obj", typelib.Ref("Base"))
	take.Transfer = typelib.TransferEverything

	tl, err := typelib.NewBuilder("Demo", "1.0").
		Object(typelib.ObjectDef{
			Name: "Base", GTypeName: "DemoBase", GTypeInit: "demo_base_get_type",
			Methods: []typelib.FunctionDef{
				{Name: "new", Symbol: "demo_base_new", Constructor: true, SignatureDef: typelib.SignatureDef{
					Return: typelib.Ref("Base"), ReturnTransfer: typelib.TransferEverything,
				}},
				method("get_id", "demo_base_get_id", int32T),
				method("describe", "demo_base_describe", utf8T),
			},
			Constants: []typelib.ConstantDef{{Name: "LIMIT", Value: int32(8), Type: int32T}},
			Properties: []typelib.PropertyDef{
				{Name: "label", Type: utf8T, Readable: true, Writable: true},
				{Name: "item-count", Type: int32T, Readable: true, Writable: true, Construct: true},
				{Name: "peer", Type: typelib.Ref("Base"), Readable: true, Writable: true},
				{Name: "serial", Type: int32T, Readable: true},
				{Name: "kind", Type: int32T, Readable: true, Writable: true, ConstructOnly: true},
			},
			Signals: []typelib.SignalDef{
				{Name: "changed", RunLast: true, SignatureDef: typelib.SignatureDef{
					Args: []typelib.ArgDef{typelib.In("count", int32T)}, Return: voidT,
				}},
				{Name: "query", RunLast: true, Detailed: true, SignatureDef: typelib.SignatureDef{
					Args: []typelib.ArgDef{typelib.In("text", utf8T)}, Return: typelib.Basic(typelib.TagBoolean),
				}},
			},
		}).
		Interface(typelib.InterfaceDef{
			Name: "Named", GTypeName: "DemoNamed",
			Methods: []typelib.FunctionDef{
				method("describe", "demo_named_describe", utf8T),
				method("nick", "demo_named_nick", utf8T),
			},
		}).
		Object(typelib.ObjectDef{
			Name: "Derived", GTypeName: "DemoDerived", GTypeInit: "demo_derived_get_type",
			Parent: "Base", Interfaces: []string{"Named"},
			Methods: []typelib.FunctionDef{method("extra", "demo_derived_extra", int32T, typelib.In("n", int32T))},
		}).
		Struct(typelib.StructDef{
			Name: "Point",
			Fields: []typelib.FieldDef{
				{Name: "x", Type: int32T, Readable: true, Writable: true},
				{Name: "y", Type: int32T, Readable: true},
			},
			Methods: []typelib.FunctionDef{method("norm1", "demo_point_norm1", int32T)},
		}).
		Struct(typelib.StructDef{
			Name: "Rect", GTypeName: "DemoRect", Boxed: true,
			CopyFunc: "demo_rect_copy", FreeFunc: "demo_rect_free",
			Fields: []typelib.FieldDef{
				{Name: "width", Type: int32T, Readable: true, Writable: true},
				{Name: "height", Type: int32T, Readable: true, Writable: true},
			},
		}).
		Enum(typelib.EnumDef{Name: "Color", GTypeName: "DemoColor", Values: []typelib.ValueDef{
			{Name: "red", Value: 0}, {Name: "green", Value: 1}, {Name: "blue", Value: 2},
		}}).
		Enum(typelib.EnumDef{Name: "Mode", GTypeName: "DemoMode", Flags: true, Values: []typelib.ValueDef{
			{Name: "fg", Value: 1}, {Name: "base", Value: 2}, {Name: "bold", Value: 4},
		}}).
		Constant(typelib.ConstantDef{Name: "ANSWER", Value: int32(42), Type: int32T}).
		Function(fn("make_derived", "demo_make_derived", typelib.Ref("Base"), typelib.TransferEverything)).
		Function(fn("peek", "demo_peek", typelib.Ref("Base"), typelib.TransferNothing)).
		Function(fn("take", "demo_take", voidT, typelib.TransferNothing, take)).
		Function(fn("rect_new", "demo_rect_new", typelib.Ref("Rect"), typelib.TransferEverything,
			typelib.In("width", int32T), typelib.In("height", int32T))).
		Function(fn("rect_peek", "demo_rect_peek", typelib.Ref("Rect"), typelib.TransferNothing)).
		Function(fn("color_next", "demo_color_next", typelib.ValueRef("Color"), typelib.TransferNothing,
			typelib.In("c", typelib.ValueRef("Color")))).
		Function(fn("color_bad", "demo_color_bad", typelib.ValueRef("Color"), typelib.TransferNothing)).
		Function(fn("mode_echo", "demo_mode_echo", typelib.ValueRef("Mode"), typelib.TransferNothing,
			typelib.In("m", typelib.ValueRef("Mode")))).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return tl
}

type fixture struct {
	w   *world
	rt  *Runtime
	mod *Module
}

func newFixture(t *testing.T, overrides *override.Registry) *fixture {
	t.Helper()
	repo := repository.New(repository.Options{SearchPath: []string{}})
	ns, err := repo.Register(demoTypelib(t))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	w := newWorld()
	rt := New(Options{Repository: repo, Overrides: overrides})
	mod, err := rt.Attach(ns, w.lib)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	t.Cleanup(func() {
		if err := rt.Close(context.Background()); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return &fixture{w: w, rt: rt, mod: mod}
}

func (f *fixture) class(t *testing.T, name string) *Class {
	t.Helper()
	c, err := f.mod.Class(name)
	if err != nil {
		t.Fatalf("Class(%q): %v", name, err)
	}
	return c
}

// call1 returns a checker for calls producing exactly one result.
func call1(t *testing.T) func([]any, error) any {
	return func(res []any, err error) any {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		if len(res) != 1 {
			t.Fatalf("results = %v, want one", res)
		}
		return res[0]
	}
}

func TestModuleEntries(t *testing.T) {
	f := newFixture(t, nil)

	v, err := f.mod.Constant("ANSWER")
	if err != nil || v != int32(42) {
		t.Errorf("Constant(ANSWER) = %v, %v", v, err)
	}
	if _, err := f.mod.Function("Base"); !errors.Is(err, gierrors.ErrTypeMismatch) {
		t.Errorf("Function(Base) error = %v, want type mismatch", err)
	}
	if _, err := f.mod.Lookup("Nope"); !errors.Is(err, gierrors.ErrNotFound) {
		t.Errorf("Lookup(Nope) error = %v, want not found", err)
	}

	names := f.mod.Names()
	if len(names) != f.mod.Namespace().Len() {
		t.Errorf("Names() has %d entries, namespace %d", len(names), f.mod.Namespace().Len())
	}

	base := f.class(t, "Base")
	if again := f.class(t, "Base"); again != base {
		t.Error("classes are not cached")
	}
	if got, ok := base.Constant("LIMIT"); !ok || got != int32(8) {
		t.Errorf("Base.LIMIT = %v, %v", got, ok)
	}
	gt, err := base.GType()
	if err != nil || gt != gtypeBase {
		t.Errorf("GType() = %v, %v", gt, err)
	}
	if !base.IsInstanceType() || base.IsValueType() {
		t.Error("Base must be an instance type")
	}
}

func TestObjectLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	baseline := f.w.heap.Live()

	obj, ok := call1(t)(f.class(t, "Base").Call(context.Background(), "new")).(*Object)
	if !ok {
		t.Fatal("constructor did not return an *Object")
	}
	if !obj.Owned() {
		t.Error("full transfer result not owned")
	}
	if got := f.w.refCount(obj.Pointer()); got != 1 {
		t.Errorf("refcount = %d, want 1", got)
	}
	if id := call1(t)(obj.Call(context.Background(), "get_id")); id != int32(7) {
		t.Errorf("get_id = %v", id)
	}

	ptr := obj.Pointer()
	if err := obj.Release(); err != nil {
		t.Fatal(err)
	}
	if err := obj.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
	if got := f.w.refCount(ptr); got != 0 {
		t.Errorf("refcount after Release = %d", got)
	}
	if got := f.w.heap.Live(); got != baseline {
		t.Errorf("live allocations = %d, want %d", got, baseline)
	}
	if _, err := obj.Call(context.Background(), "get_id"); !errors.Is(err, &gierrors.Error{Kind: gierrors.KindClosed}) {
		t.Errorf("call after Release error = %v", err)
	}
}

func TestBorrowedObjectTakesReference(t *testing.T) {
	f := newFixture(t, nil)

	obj := call1(t)(f.mod.Call(context.Background(), "peek")).(*Object)
	if got := f.w.refCount(f.w.global); got != 2 {
		t.Errorf("refcount = %d, want 2", got)
	}
	if err := obj.Release(); err != nil {
		t.Fatal(err)
	}
	if got := f.w.refCount(f.w.global); got != 1 {
		t.Errorf("refcount after Release = %d, want 1", got)
	}
}

func TestMostDerivedClass(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	obj := call1(t)(f.mod.Call(ctx, "make_derived")).(*Object)
	defer obj.Release()

	derived := f.class(t, "Derived")
	if obj.Class() != derived {
		t.Fatalf("class = %s, want Demo.Derived", obj.Class())
	}
	for _, name := range []string{"Base", "Named", "Derived"} {
		if !obj.IsA(f.class(t, name)) {
			t.Errorf("instance is not a %s", name)
		}
	}
	if f.class(t, "Base").IsA(derived) {
		t.Error("Base must not be a Derived")
	}

	tests := []struct {
		method string
		args   []any
		want   any
	}{
		{"describe", nil, "base"},
		{"nick", nil, "nick"},
		{"extra", []any{int32(4)}, int32(8)},
		{"get_id", nil, int32(7)},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			if got := call1(t)(obj.Call(ctx, tt.method, tt.args...)); got != tt.want {
				t.Errorf("%s() = %v, want %v", tt.method, got, tt.want)
			}
		})
	}

	if _, err := obj.Call(ctx, "missing"); !errors.Is(err, gierrors.ErrNotFound) {
		t.Errorf("missing method error = %v", err)
	}
	names := derived.MethodNames()
	want := []string{"describe", "extra", "get_id", "new", "nick"}
	if len(names) != len(want) {
		t.Fatalf("MethodNames() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("MethodNames()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestPassObject(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	obj := call1(t)(f.class(t, "Base").Call(ctx, "new")).(*Object)
	defer obj.Release()
	if _, err := f.mod.Call(ctx, "take", obj); err != nil {
		t.Fatal(err)
	}
	if got := f.w.refCount(obj.Pointer()); got != 2 {
		t.Errorf("refcount after full transfer = %d, want 2", got)
	}

	pt := newPoint(t, f)
	defer pt.Release()
	if _, err := f.mod.Call(ctx, "take", pt); !errors.Is(err, gierrors.ErrConversion) {
		t.Errorf("passing a Point error = %v, want conversion", err)
	}
	if _, err := f.mod.Call(ctx, "take", nil); err == nil {
		t.Error("nil accepted for non-nullable argument")
	}
}

func newPoint(t *testing.T, f *fixture) *Boxed {
	t.Helper()
	v, err := f.class(t, "Point").New()
	if err != nil {
		t.Fatal(err)
	}
	pt, ok := v.(*Boxed)
	if !ok {
		t.Fatalf("New() = %T, want *Boxed", v)
	}
	return pt
}

//go:noinline
func dropObject(t *testing.T, f *fixture) uint64 {
	obj := call1(t)(f.class(t, "Base").Call(context.Background(), "new")).(*Object)
	return obj.Pointer()
}

func TestCollectedObjectDropsReference(t *testing.T) {
	f := newFixture(t, nil)
	ptr := dropObject(t, f)

	deadline := time.Now().Add(5 * time.Second)
	for f.w.refCount(ptr) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the wrapper to be collected")
		}
		runtime.GC()
		time.Sleep(time.Millisecond)
	}
}

func TestStructFields(t *testing.T) {
	f := newFixture(t, nil)
	baseline := f.w.heap.Live()

	point := f.class(t, "Point")
	pt := newPoint(t, f)
	if err := pt.SetField("x", int32(-3)); err != nil {
		t.Fatal(err)
	}
	if got, err := pt.Field("x"); err != nil || got != int32(-3) {
		t.Errorf("x = %v, %v", got, err)
	}
	err := pt.SetField("y", int32(1))
	if !errors.Is(err, &gierrors.Error{Kind: gierrors.KindReadOnly}) {
		t.Errorf("SetField(y) error = %v, want read only", err)
	}
	if _, err := pt.Field("z"); !errors.Is(err, gierrors.ErrNotFound) {
		t.Errorf("Field(z) error = %v", err)
	}
	if got := call1(t)(pt.Call(context.Background(), "norm1")); got != int32(3) {
		t.Errorf("norm1 = %v", got)
	}
	if fields := point.Fields(); len(fields) != 2 || fields[0] != "x" || fields[1] != "y" {
		t.Errorf("Fields() = %v", fields)
	}

	cp, err := pt.Copy()
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := cp.Field("x"); got != int32(-3) {
		t.Errorf("copy x = %v", got)
	}
	if err := cp.Release(); err != nil {
		t.Fatal(err)
	}
	if err := pt.Release(); err != nil {
		t.Fatal(err)
	}
	if got := f.w.heap.Live(); got != baseline {
		t.Errorf("live allocations = %d, want %d", got, baseline)
	}
	if _, err := f.class(t, "Base").New(); !errors.Is(err, &gierrors.Error{Kind: gierrors.KindUnsupported}) {
		t.Errorf("New on an object error = %v", err)
	}
}

func TestBoxedOwnership(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	r := call1(t)(f.mod.Call(ctx, "rect_new", int32(3), int32(4))).(*Boxed)
	if w, _ := r.Field("width"); w != int32(3) {
		t.Errorf("width = %v", w)
	}
	if err := r.Release(); err != nil {
		t.Fatal(err)
	}
	if f.w.frees != 1 || f.w.copies != 0 {
		t.Errorf("after owned release: frees=%d copies=%d", f.w.frees, f.w.copies)
	}

	peeked := call1(t)(f.mod.Call(ctx, "rect_peek")).(*Boxed)
	if peeked.Pointer() == f.w.rect {
		t.Error("borrowed boxed value was not copied")
	}
	if h, _ := peeked.Field("height"); h != int32(5) {
		t.Errorf("height = %v", h)
	}
	if err := peeked.Release(); err != nil {
		t.Fatal(err)
	}
	if f.w.copies != 1 || f.w.frees != 2 {
		t.Errorf("after borrowed release: frees=%d copies=%d", f.w.frees, f.w.copies)
	}
	if v, _ := f.w.heap.ReadU32(f.w.rect + 4); v != 5 {
		t.Error("original value was freed or modified")
	}
}

func TestEnums(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	color, err := f.mod.Enum("Color")
	if err != nil {
		t.Fatal(err)
	}
	green, ok := color.Enum("green")
	if !ok {
		t.Fatal("GREEN missing")
	}
	got := call1(t)(f.mod.Call(ctx, "color_next", green)).(Enum)
	if got.Name() != "BLUE" || got.Int64() != 2 || got.Type() != color {
		t.Errorf("color_next(GREEN) = %v", got)
	}
	if _, err := f.mod.Call(ctx, "color_bad"); !errors.Is(err, gierrors.ErrConversion) {
		t.Errorf("unknown enum value error = %v, want conversion", err)
	}
	if _, ok := color.Flag("red"); ok {
		t.Error("Flag on an enum type")
	}
	if (Enum{}).Name() != "" {
		t.Error("zero Enum has a name")
	}

	mode, err := f.mod.Enum("Mode")
	if err != nil {
		t.Fatal(err)
	}
	fg, _ := mode.Flag("FG")
	base, _ := mode.Flag("base")
	v := fg.Or(base, mode.Flags(0x400))
	echoed := call1(t)(f.mod.Call(ctx, "mode_echo", v)).(Flags)

	tests := []struct {
		name string
		f    Flags
		want string
	}{
		{"combined", echoed, "FG | BASE | 0x400"},
		{"single", fg, "FG"},
		{"zero", mode.Flags(0), "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
	if !echoed.Has(fg) || echoed.Has(mode.Flags(4)) {
		t.Error("Has reports wrong bits")
	}
}

// labeled is the host value the Base override builds around instances.
type labeled struct {
	*Object
	label string
}

type baseOverride struct {
	override.Methods
	base override.Definition
}

func (o *baseOverride) TypeName() string          { return "Base" }
func (o *baseOverride) Base() override.Definition { return o.base }

func (o *baseOverride) Construct(v any) (any, error) {
	obj, ok := v.(*Object)
	if !ok {
		return nil, fmt.Errorf("Base override got %T", v)
	}
	return &labeled{Object: obj, label: "custom"}, nil
}

type answerOverride struct {
	base override.Definition
}

func (o *answerOverride) TypeName() string          { return "color_bad" }
func (o *answerOverride) Base() override.Definition { return o.base }

func (o *answerOverride) Call(ctx context.Context, args ...any) ([]any, error) {
	return []any{"no color"}, nil
}

func demoOverrides(t *testing.T) (*override.Registry, **baseOverride) {
	t.Helper()
	reg := override.NewRegistry()
	var installed *baseOverride
	err := reg.Provide("Demo", func(tab *override.Table) error {
		gen, ok := tab.Generated("Base")
		if !ok {
			return errors.New("generated Base missing")
		}
		installed = &baseOverride{base: gen, Methods: override.Methods{
			"describe": func(ctx context.Context, self any, args ...any) ([]any, error) {
				return []any{"custom " + self.(*Object).Class().Name()}, nil
			},
		}}
		if err := tab.Register("Base", installed); err != nil {
			return err
		}
		fn, ok := tab.Generated("color_bad")
		if !ok {
			return errors.New("generated color_bad missing")
		}
		return tab.Register("color_bad", &answerOverride{base: fn})
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg, &installed
}

func TestOverridePrecedence(t *testing.T) {
	reg, installed := demoOverrides(t)
	f := newFixture(t, reg)
	ctx := context.Background()

	d, err := f.mod.Lookup("Base")
	if err != nil || d != override.Definition(*installed) {
		t.Fatalf("Lookup(Base) = %v, %v; want the override", d, err)
	}
	if d, _ := f.mod.Lookup("Derived"); d != override.Definition(f.class(t, "Derived")) {
		t.Errorf("Lookup(Derived) = %v, want the generated class", d)
	}
	if (*installed).base != override.Definition(f.class(t, "Base")) {
		t.Error("override base is not the generated class")
	}

	obj, ok := call1(t)(f.class(t, "Base").Call(ctx, "new")).(*labeled)
	if !ok {
		t.Fatal("constructor result is not the override value")
	}
	defer obj.Release()
	if obj.label != "custom" || obj.Definition() != override.Definition(*installed) {
		t.Errorf("override value = %+v, definition %v", obj, obj.Definition())
	}
	if !obj.IsA(f.class(t, "Base")) {
		t.Error("override value is not a generated Base")
	}
	if got := call1(t)(f.mod.Call(ctx, "color_bad")); got != "no color" {
		t.Errorf("color_bad = %v, want the override result", got)
	}
}

func TestOverrideWrapsNativeValues(t *testing.T) {
	reg, _ := demoOverrides(t)
	f := newFixture(t, reg)
	ctx := context.Background()
	base := f.class(t, "Base")

	peeked, ok := call1(t)(f.mod.Call(ctx, "peek")).(*labeled)
	if !ok {
		t.Fatal("returned instance is not the override value")
	}
	if got := f.w.refCount(f.w.global); got != 2 {
		t.Errorf("refcount = %d, want 2", got)
	}
	if err := peeked.Release(); err != nil {
		t.Fatal(err)
	}

	v, err := base.Wrap(f.w.global, false)
	if err != nil {
		t.Fatal(err)
	}
	wrapped, ok := v.(*labeled)
	if !ok {
		t.Fatalf("Wrap = %T, want the override value", v)
	}
	defer wrapped.Release()

	derived, ok := call1(t)(f.mod.Call(ctx, "make_derived")).(*labeled)
	if !ok {
		t.Fatal("descendant instance is not the ancestor's override value")
	}
	defer derived.Release()
	if derived.Class() != f.class(t, "Derived") {
		t.Errorf("class = %s, want Demo.Derived", derived.Class())
	}

	tests := []struct {
		method string
		want   any
	}{
		{"describe", "custom Derived"},
		{"nick", "nick"},
		{"get_id", int32(7)},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			if got := call1(t)(derived.Call(ctx, tt.method)); got != tt.want {
				t.Errorf("%s() = %v, want %v", tt.method, got, tt.want)
			}
		})
	}

	if _, err := f.mod.Call(ctx, "take", wrapped); err != nil {
		t.Fatalf("passing the override value: %v", err)
	}
	if got := f.w.refCount(f.w.global); got != 3 {
		t.Errorf("refcount after full transfer = %d, want 3", got)
	}
}

type rectOverride struct {
	base override.Definition
}

func (o *rectOverride) TypeName() string          { return "Rect" }
func (o *rectOverride) Base() override.Definition { return o.base }

func (o *rectOverride) Construct(any) (any, error) {
	return nil, errors.New("rectangles are disabled")
}

func TestOverrideConstructFailure(t *testing.T) {
	reg := override.NewRegistry()
	err := reg.Provide("Demo", func(tab *override.Table) error {
		gen, _ := tab.Generated("Rect")
		return tab.Register("Rect", &rectOverride{base: gen})
	})
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, reg)

	_, err = f.mod.Call(context.Background(), "rect_new", int32(1), int32(2))
	if !errors.Is(err, &gierrors.Error{Kind: gierrors.KindInvalidInput}) {
		t.Errorf("rect_new error = %v, want construction failure", err)
	}
	if f.w.frees != 1 {
		t.Errorf("frees = %d, want the owned value released", f.w.frees)
	}
}

func TestDescribe(t *testing.T) {
	f := newFixture(t, nil)
	extra, ok := f.class(t, "Derived").Method("extra")
	if !ok {
		t.Fatal("extra missing")
	}
	if got, want := extra.String(), "Derived.extra(self, n: gint32) -> gint32"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestProperties(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	obj := call1(t)(f.mod.Call(ctx, "make_derived")).(*Object)
	other := call1(t)(f.mod.Call(ctx, "make_derived")).(*Object)

	if got, err := obj.Property(ctx, "serial"); err != nil || got != int32(7) {
		t.Errorf("serial = %v, %v; want 7", got, err)
	}
	if got, err := obj.Property(ctx, "label"); err != nil || got != nil {
		t.Errorf("unset label = %#v, %v; want nil", got, err)
	}

	tests := []struct {
		name string
		set  any
		want any
	}{
		{"label", "hello", "hello"},
		{"item-count", int32(5), int32(5)},
		{"item_count", int32(6), int32(6)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := obj.SetProperty(ctx, tt.name, tt.set); err != nil {
				t.Fatalf("SetProperty: %v", err)
			}
			got, err := obj.Property(ctx, tt.name)
			if err != nil || got != tt.want {
				t.Errorf("Property = %#v, %v; want %#v", got, err, tt.want)
			}
		})
	}

	if err := obj.SetProperty(ctx, "peer", other); err != nil {
		t.Fatalf("set peer: %v", err)
	}
	if n := f.w.refCount(other.Pointer()); n != 2 {
		t.Errorf("peer refcount = %d, want 2", n)
	}
	peer, err := obj.Property(ctx, "peer")
	if err != nil {
		t.Fatal(err)
	}
	if p, ok := peer.(*Object); !ok || p.Pointer() != other.Pointer() || p.Class().Name() != "Derived" {
		t.Errorf("peer = %v", peer)
	}

	heap := f.w.heap
	before := heap.Live()
	for i := 0; i < 10; i++ {
		if err := obj.SetProperty(ctx, "label", fmt.Sprintf("label %d", i)); err != nil {
			t.Fatal(err)
		}
		if _, err := obj.Property(ctx, "label"); err != nil {
			t.Fatal(err)
		}
	}
	if n := heap.Live() - before; n != 0 {
		t.Errorf("%d allocations leaked by property access", n)
	}

	errs := []struct {
		name string
		set  bool
		want error
	}{
		{"missing", false, gierrors.ErrNotFound},
		{"serial", true, &gierrors.Error{Kind: gierrors.KindReadOnly}},
		{"kind", true, &gierrors.Error{Kind: gierrors.KindReadOnly}},
	}
	for _, tt := range errs {
		var err error
		if tt.set {
			err = obj.SetProperty(ctx, tt.name, int32(1))
		} else {
			_, err = obj.Property(ctx, tt.name)
		}
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestNewWithProperties(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	base := f.class(t, "Base")

	v, err := base.NewWithProperties(ctx, map[string]any{"label": "made", "kind": int32(3)})
	if err != nil {
		t.Fatalf("NewWithProperties: %v", err)
	}
	obj, ok := v.(*Object)
	if !ok {
		t.Fatalf("NewWithProperties = %T", v)
	}
	if n := f.w.refCount(obj.Pointer()); n != 1 {
		t.Errorf("refcount = %d, want 1", n)
	}
	for name, want := range map[string]any{"label": "made", "kind": int32(3), "serial": int32(7)} {
		if got, err := obj.Property(ctx, name); err != nil || got != want {
			t.Errorf("%s = %v, %v; want %v", name, got, err, want)
		}
	}

	if _, err := base.NewWithProperties(ctx, map[string]any{"serial": int32(1)}); !errors.Is(err, &gierrors.Error{Kind: gierrors.KindReadOnly}) {
		t.Errorf("read-only construct property: %v", err)
	}
	if _, err := base.NewWithProperties(ctx, map[string]any{"nope": 1}); !errors.Is(err, gierrors.ErrNotFound) {
		t.Errorf("unknown construct property: %v", err)
	}
	if _, err := f.class(t, "Point").NewWithProperties(ctx, nil); !errors.Is(err, &gierrors.Error{Kind: gierrors.KindUnsupported}) {
		t.Errorf("struct construction: %v", err)
	}
}

func TestSignals(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	obj := call1(t)(f.mod.Call(ctx, "make_derived")).(*Object)
	changed := giruntime.Signature{Params: []giruntime.ValueKind{giruntime.KindI32}}

	var order []string
	var seen []any
	after, err := obj.ConnectAfter(ctx, "changed", func(args []any) any {
		order = append(order, "after")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	before, err := obj.Connect(ctx, "changed", func(args []any) any {
		order = append(order, "before")
		seen = args
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	emit := func(want ...string) {
		t.Helper()
		order = nil
		if _, err := f.w.emit(ctx, obj.Pointer(), "changed", changed, 5); err != nil {
			t.Fatal(err)
		}
		if fmt.Sprint(order) != fmt.Sprint(want) {
			t.Errorf("handlers ran %v, want %v", order, want)
		}
	}
	emit("before", "after")
	if len(seen) != 2 || seen[0] != any(obj) || seen[1] != int32(5) {
		t.Errorf("handler args = %#v", seen)
	}

	if err := obj.HandlerBlock(ctx, before); err != nil {
		t.Fatal(err)
	}
	emit("after")
	if err := obj.HandlerUnblock(ctx, before); err != nil {
		t.Fatal(err)
	}
	emit("before", "after")

	query, err := obj.Connect(ctx, "query::detail", func(args []any) any {
		return args[1] == "yes"
	})
	if err != nil {
		t.Fatal(err)
	}
	querySig := giruntime.Signature{Params: []giruntime.ValueKind{giruntime.KindPointer}, Result: giruntime.KindI32}
	for text, want := range map[string]uint64{"yes": 1, "no": 0} {
		arg, _ := giruntime.WriteCString(f.w.heap, f.w.heap, text)
		ret, err := f.w.emit(ctx, obj.Pointer(), "query::detail", querySig, arg)
		f.w.heap.Free(arg)
		if err != nil || ret != want {
			t.Errorf("query(%q) = %d, %v; want %d", text, ret, err, want)
		}
	}

	conv := f.mod.Invoker().Converter()
	if n := conv.Notified(); n != 3 {
		t.Errorf("Notified = %d, want 3", n)
	}
	for _, id := range []uint64{before, after, query} {
		if err := obj.Disconnect(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	emit()
	if n := conv.Notified(); n != 0 {
		t.Errorf("Notified after disconnect = %d", n)
	}
	// the shared destroy notify stays registered
	if n := f.w.lib.Callbacks(); n != 1 {
		t.Errorf("Callbacks after disconnect = %d, want 1", n)
	}

	if _, err := obj.Connect(ctx, "nope", func([]any) any { return nil }); !errors.Is(err, gierrors.ErrNotFound) {
		t.Errorf("unknown signal: %v", err)
	}
}
