package invoke

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"testing"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/argument"
	gierrors "github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/hostlib"
	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/typelib"
)

const errorQuark = 7

var visitSig = giruntime.Signature{Params: []giruntime.ValueKind{giruntime.KindI32}}

func nullable(a typelib.ArgDef) typelib.ArgDef {
	a.Nullable = true
	return a
}

func transferred(a typelib.ArgDef) typelib.ArgDef {
	a.Transfer = typelib.TransferEverything
	return a
}

func basic(tag typelib.TypeTag) typelib.TypeDef { return typelib.Basic(tag) }

type fixture struct {
	lib    *hostlib.Library
	inv    *Invoker
	src    *info.Source
	parsed int
	// watched holds the callback, user data and destroy notify given
	// to demo_watch.
	watched [3]uint64
}

func newFixture(t testing.TB) *fixture {
	t.Helper()
	int32T := basic(typelib.TagInt32)
	each := typelib.In("fn", typelib.Ref("Visit"))
	each.Scope = typelib.ScopeCall
	each.Closure = 2
	watch := typelib.In("fn", typelib.Ref("Visit"))
	watch.Scope = typelib.ScopeNotified
	watch.Closure = 1
	watch.Destroy = 2
	origin := typelib.Out("p", typelib.Ref("Point"))
	origin.CallerAllocates = true

	tl, err := typelib.NewBuilder("Demo", "1.0").
		Struct(typelib.StructDef{
			Name:   "Counter",
			Fields: []typelib.FieldDef{{Name: "value", Type: int32T, Readable: true, Writable: true}},
			Methods: []typelib.FunctionDef{{
				Name: "add", Symbol: "demo_counter_add", Method: true,
				SignatureDef: typelib.SignatureDef{
					Args:   []typelib.ArgDef{typelib.In("delta", int32T)},
					Return: int32T,
				},
			}},
		}).
		Struct(typelib.StructDef{Name: "Point", Fields: []typelib.FieldDef{
			{Name: "x", Type: int32T, Readable: true, Writable: true},
			{Name: "y", Type: int32T, Readable: true, Writable: true},
		}}).
		Callback(typelib.CallbackDef{Name: "Visit", SignatureDef: typelib.SignatureDef{
			Args:   []typelib.ArgDef{typelib.In("value", int32T)},
			Return: basic(typelib.TagVoid),
		}}).
		Function(typelib.FunctionDef{Name: "parse", Symbol: "demo_parse", SignatureDef: typelib.SignatureDef{
			Args:   []typelib.ArgDef{typelib.In("text", basic(typelib.TagUTF8)), typelib.Out("value", int32T)},
			Return: basic(typelib.TagBoolean),
		}}).
		Function(typelib.FunctionDef{Name: "sum", Symbol: "demo_sum", SignatureDef: typelib.SignatureDef{
			Args: []typelib.ArgDef{
				nullable(typelib.In("values", typelib.CArray(int32T).WithLength(1))),
				typelib.In("n", int32T),
			},
			Return: basic(typelib.TagInt64),
		}}).
		Function(typelib.FunctionDef{Name: "squares", Symbol: "demo_squares", SignatureDef: typelib.SignatureDef{
			Args: []typelib.ArgDef{
				typelib.In("count", int32T),
				transferred(typelib.Out("items", typelib.CArray(int32T).WithLength(2))),
				typelib.Out("n", basic(typelib.TagUint32)),
			},
			Return: basic(typelib.TagVoid),
		}}).
		Function(typelib.FunctionDef{Name: "divide", Symbol: "demo_divide", SignatureDef: typelib.SignatureDef{
			Args:   []typelib.ArgDef{typelib.In("a", int32T), typelib.In("b", int32T)},
			Return: int32T,
			Throws: true,
		}}).
		Function(typelib.FunctionDef{Name: "each", Symbol: "demo_each", SignatureDef: typelib.SignatureDef{
			Args: []typelib.ArgDef{
				typelib.In("count", int32T),
				each,
				typelib.In("data", basic(typelib.TagVoid).WithPointer(true)),
			},
			Return: basic(typelib.TagVoid),
		}}).
		Function(typelib.FunctionDef{Name: "watch", Symbol: "demo_watch", SignatureDef: typelib.SignatureDef{
			Args: []typelib.ArgDef{
				watch,
				typelib.In("data", basic(typelib.TagVoid).WithPointer(true)),
				typelib.In("notify", basic(typelib.TagVoid).WithPointer(true)),
			},
			Return: basic(typelib.TagVoid),
		}}).
		Function(typelib.FunctionDef{Name: "double", Symbol: "demo_double", SignatureDef: typelib.SignatureDef{
			Args:   []typelib.ArgDef{typelib.InOut("v", int32T)},
			Return: basic(typelib.TagVoid),
		}}).
		Function(typelib.FunctionDef{Name: "origin", Symbol: "demo_origin", SignatureDef: typelib.SignatureDef{
			Args:   []typelib.ArgDef{origin},
			Return: basic(typelib.TagVoid),
		}}).
		Function(typelib.FunctionDef{Name: "missing", Symbol: "demo_missing", SignatureDef: typelib.SignatureDef{
			Return: basic(typelib.TagVoid),
		}}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	lib := hostlib.New("libdemo", hostlib.Options{})
	heap := lib.Heap()
	f := &fixture{lib: lib, src: info.NewSource(tl, nil)}
	lib.MustRegister("demo_parse", func(text string, out uintptr) bool {
		f.parsed++
		n, err := strconv.Atoi(text)
		if err != nil {
			return false
		}
		return heap.WriteU32(uint64(out), uint32(int32(n))) == nil
	}).
		MustRegister("demo_sum", func(values uintptr, n int32) int64 {
			var total int64
			for i := int32(0); i < n; i++ {
				v, _ := heap.ReadU32(uint64(values) + uint64(i)*4)
				total += int64(int32(v))
			}
			return total
		}).
		MustRegister("demo_squares", func(count int32, items, n uintptr) error {
			arr, err := heap.Alloc(uint32(count)*4+1, 4)
			if err != nil {
				return err
			}
			for i := int32(0); i < count; i++ {
				_ = heap.WriteU32(arr+uint64(i)*4, uint32(i*i))
			}
			_ = heap.WriteU64(uint64(items), arr)
			return heap.WriteU32(uint64(n), uint32(count))
		}).
		MustRegister("demo_divide", hostlib.HostFunc(func(_ context.Context, lib *hostlib.Library, args []uint64) (uint64, error) {
			a, b := int32(args[0]), int32(args[1])
			if b != 0 {
				return uint64(int64(a / b)), nil
			}
			gerr, err := heap.Alloc(16, 8)
			if err != nil {
				return 0, err
			}
			msg, err := giruntime.WriteCString(heap, heap, "division by zero")
			if err != nil {
				return 0, err
			}
			_ = heap.WriteU32(gerr, errorQuark)
			_ = heap.WriteU32(gerr+4, 3)
			_ = heap.WriteU64(gerr+8, msg)
			return 0, heap.WriteU64(args[2], gerr)
		})).
		MustRegister("demo_each", hostlib.HostFunc(func(ctx context.Context, lib *hostlib.Library, args []uint64) (uint64, error) {
			if args[2] != 0 {
				t.Errorf("user data = 0x%x, want NULL", args[2])
			}
			for i := int32(0); i < int32(args[0]); i++ {
				if _, err := lib.CallPointer(ctx, args[1], visitSig, []uint64{uint64(i)}); err != nil {
					return 0, err
				}
			}
			return 0, nil
		})).
		MustRegister("demo_watch", func(fn, data, notify uintptr) {
			f.watched = [3]uint64{uint64(fn), uint64(data), uint64(notify)}
		}).
		MustRegister("demo_double", func(p uintptr) {
			v, _ := heap.ReadU32(uint64(p))
			_ = heap.WriteU32(uint64(p), uint32(int32(v)*2))
		}).
		MustRegister("demo_origin", func(p uintptr) {
			_ = heap.WriteU32(uint64(p), 3)
			_ = heap.WriteU32(uint64(p)+4, 4)
		}).
		MustRegister("demo_counter_add", func(self uintptr, delta int32) int32 {
			v, _ := heap.ReadU32(uint64(self))
			v += uint32(delta)
			_ = heap.WriteU32(uint64(self), v)
			return int32(v)
		})
	f.inv = New(lib, nil)
	return f
}

func (f *fixture) function(t testing.TB, name string) info.FunctionInfo {
	t.Helper()
	b, err := f.src.Find(name)
	if err != nil {
		t.Fatalf("Find(%q): %v", name, err)
	}
	t.Cleanup(b.Unref)
	return b.MustFunction()
}

func (f *fixture) call(t testing.TB, name string, args ...any) ([]any, error) {
	t.Helper()
	return f.inv.Call(context.Background(), f.function(t, name), args...)
}

func TestInStringOutInt(t *testing.T) {
	f := newFixture(t)
	before := f.lib.Heap().Live()

	got, err := f.call(t, "parse", "42")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if want := []any{true, int32(42)}; !reflect.DeepEqual(got, want) {
		t.Errorf("parse = %#v, want %#v", got, want)
	}
	if live := f.lib.Heap().Live(); live != before {
		t.Errorf("live allocations = %d, want %d", live, before)
	}

	got, err = f.call(t, "parse", "nope")
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != false {
		t.Errorf("parse(nope) = %v", got)
	}
}

func TestPlanCache(t *testing.T) {
	f := newFixture(t)
	parse := f.function(t, "parse")
	for i := 0; i < 3; i++ {
		if _, err := f.inv.Call(context.Background(), parse, "7"); err != nil {
			t.Fatal(err)
		}
	}
	if n := f.inv.Plans(); n != 1 {
		t.Fatalf("Plans() = %d after repeated calls, want 1", n)
	}
	cached := f.src.Live()
	f.inv.Release()
	if n := f.inv.Plans(); n != 0 {
		t.Errorf("Plans() = %d after Release", n)
	}
	if live := f.src.Live(); live >= cached {
		t.Errorf("Live = %d after Release, was %d with a cached plan", live, cached)
	}
	got, err := f.inv.Call(context.Background(), parse, "8")
	if err != nil || got[1] != int32(8) {
		t.Errorf("call after Release = %v, %v", got, err)
	}
}

func TestArgumentCount(t *testing.T) {
	f := newFixture(t)
	before := f.lib.Heap().Live()
	tests := []struct {
		name string
		args []any
	}{
		{"none", nil},
		{"too many", []any{"1", "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.call(t, "parse", tt.args...)
			if !errors.Is(err, gierrors.ErrConversion) {
				t.Errorf("err = %v, want conversion error", err)
			}
			if !errors.Is(err, gierrors.ErrArgCount) {
				t.Errorf("err = %v, want arg count cause", err)
			}
		})
	}
	if f.parsed != 0 {
		t.Errorf("native function ran %d times", f.parsed)
	}
	if live := f.lib.Heap().Live(); live != before {
		t.Errorf("allocations leaked: %d, want %d", live, before)
	}
}

func TestArrayLengthInjection(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		in   any
		want int64
	}{
		{"slice", []int32{1, 2, 3, 4}, 10},
		{"mixed ints", []any{int8(-1), 5, uint16(6)}, 10},
		{"nil", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.call(t, "sum", tt.in)
			if err != nil {
				t.Fatalf("sum: %v", err)
			}
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("sum = %v, want [%d]", got, tt.want)
			}
		})
	}

	if _, err := f.call(t, "sum", uint64(0x1000)); !errors.Is(err, gierrors.ErrConversion) {
		t.Errorf("raw pointer without length: %v", err)
	}
	if _, err := f.call(t, "sum", []int32{1}, 1); !errors.Is(err, gierrors.ErrArgCount) {
		t.Errorf("length is hidden, explicit value should be rejected: %v", err)
	}
}

func TestOutArrayWithLength(t *testing.T) {
	f := newFixture(t)
	before := f.lib.Heap().Live()
	got, err := f.call(t, "squares", 4)
	if err != nil {
		t.Fatalf("squares: %v", err)
	}
	if want := []any{[]int32{0, 1, 4, 9}}; !reflect.DeepEqual(got, want) {
		t.Errorf("squares = %#v, want %#v", got, want)
	}
	if live := f.lib.Heap().Live(); live != before {
		t.Errorf("owned array not released: live %d, want %d", live, before)
	}
}

func TestGError(t *testing.T) {
	f := newFixture(t)
	f.lib.MustRegister("g_quark_to_string", func(q uint32) string {
		if q == errorQuark {
			return "demo-error-quark"
		}
		return ""
	})

	got, err := f.call(t, "divide", 9, 3)
	if err != nil {
		t.Fatalf("divide: %v", err)
	}
	if got[0] != int32(3) {
		t.Errorf("divide = %v", got)
	}

	_, err = f.call(t, "divide", 1, 0)
	var ne *gierrors.NativeError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want NativeError", err)
	}
	if ne.Domain != "demo-error-quark" || ne.Code != 3 || ne.Message != "division by zero" {
		t.Errorf("NativeError = %+v", ne)
	}
	if !errors.Is(err, &gierrors.NativeError{Domain: "demo-error-quark", Code: 3}) {
		t.Error("errors.Is by domain and code failed")
	}
}

func TestGErrorWithoutQuarkLookup(t *testing.T) {
	f := newFixture(t)
	before := f.lib.Heap().Live()
	_, err := f.call(t, "divide", 1, 0)
	var ne *gierrors.NativeError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v", err)
	}
	if ne.Domain != "" || ne.Quark != errorQuark {
		t.Errorf("NativeError = %+v", ne)
	}
	if live := f.lib.Heap().Live(); live != before {
		t.Errorf("GError not freed: live %d, want %d", live, before)
	}
}

func TestInOut(t *testing.T) {
	f := newFixture(t)
	got, err := f.call(t, "double", int32(-21))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []any{int32(-42)}) {
		t.Errorf("double = %v", got)
	}
}

func TestCallerAllocatedStruct(t *testing.T) {
	f := newFixture(t)
	got, err := f.call(t, "origin")
	if err != nil {
		t.Fatal(err)
	}
	ptr, ok := got[0].(uint64)
	if !ok || ptr == 0 {
		t.Fatalf("origin = %v, want pointer", got)
	}
	heap := f.lib.Heap()
	x, _ := heap.ReadU32(ptr)
	y, _ := heap.ReadU32(ptr + 4)
	if x != 3 || y != 4 {
		t.Errorf("point = (%d, %d), want (3, 4)", x, y)
	}
	if size, ok := heap.Size(ptr); !ok || size < 8 {
		t.Errorf("storage size = %d", size)
	}
	heap.Free(ptr)
}

type counter uint64

func (c counter) Pointer() uint64 { return uint64(c) }

func TestMethod(t *testing.T) {
	f := newFixture(t)
	st, err := f.src.Find("Counter")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Unref()
	add, ok := st.MustStruct().FindMethod("add")
	if !ok {
		t.Fatal("method add not found")
	}
	defer add.Unref()

	self, err := f.lib.Heap().Alloc(4, 4)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for i, want := range []int32{5, 10} {
		got, err := f.inv.Call(ctx, add, counter(self), 5)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if got[0] != want {
			t.Errorf("call %d = %v, want %d", i, got[0], want)
		}
	}
	if _, err := f.inv.Call(ctx, add, nil, 1); !errors.Is(err, gierrors.ErrConversion) {
		t.Errorf("nil receiver: %v", err)
	}
	if _, err := f.inv.Call(ctx, add, 1); !errors.Is(err, gierrors.ErrArgCount) {
		t.Errorf("missing receiver argument: %v", err)
	}
}

func TestCallback(t *testing.T) {
	f := newFixture(t)
	var seen []int32
	visit := argument.Callback(func(args []any) any {
		seen = append(seen, args[0].(int32))
		return nil
	})
	got, err := f.call(t, "each", 3, visit)
	if err != nil {
		t.Fatalf("each: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("each = %v, want no results", got)
	}
	if !reflect.DeepEqual(seen, []int32{0, 1, 2}) {
		t.Errorf("callback saw %v", seen)
	}

	for i := 0; i < 500; i++ {
		if _, err := f.call(t, "each", 1, visit); err != nil {
			t.Fatalf("each #%d: %v", i, err)
		}
	}
	if n := f.lib.Callbacks(); n != 0 {
		t.Errorf("%d call-scoped callbacks still registered", n)
	}
}

func TestNotifiedCallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var seen []int32
	visit := argument.Callback(func(args []any) any {
		seen = append(seen, args[0].(int32))
		return nil
	})
	if _, err := f.call(t, "watch", visit); err != nil {
		t.Fatalf("watch: %v", err)
	}
	fn, data, notify := f.watched[0], f.watched[1], f.watched[2]
	if fn == 0 || data != fn || notify == 0 {
		t.Fatalf("watch got fn=0x%x data=0x%x notify=0x%x", fn, data, notify)
	}
	// the callback outlives the call
	if _, err := f.lib.CallPointer(ctx, fn, visitSig, []uint64{7}); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(seen, []int32{7}) {
		t.Errorf("callback saw %v", seen)
	}
	if n := f.inv.Converter().Notified(); n != 1 {
		t.Errorf("Notified = %d, want 1", n)
	}

	destroy := giruntime.Signature{Params: []giruntime.ValueKind{giruntime.KindPointer}}
	if _, err := f.lib.CallPointer(ctx, notify, destroy, []uint64{data}); err != nil {
		t.Fatal(err)
	}
	if n := f.inv.Converter().Notified(); n != 0 {
		t.Errorf("Notified after destroy = %d", n)
	}
	if _, err := f.lib.CallPointer(ctx, fn, visitSig, []uint64{8}); !errors.Is(err, &gierrors.Error{Kind: gierrors.KindNotFound}) {
		t.Errorf("call after destroy: %v", err)
	}
}

func TestSymbolNotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.call(t, "missing"); !errors.Is(err, gierrors.ErrSymbolNotFound) {
		t.Errorf("err = %v, want symbol not found", err)
	}
}

func TestSignature(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		fn   string
		want giruntime.Signature
	}{
		{"parse", giruntime.Signature{
			Params: []giruntime.ValueKind{giruntime.KindPointer, giruntime.KindPointer},
			Result: giruntime.KindI32,
		}},
		{"sum", giruntime.Signature{
			Params: []giruntime.ValueKind{giruntime.KindPointer, giruntime.KindI32},
			Result: giruntime.KindI64,
		}},
		{"divide", giruntime.Signature{
			Params: []giruntime.ValueKind{giruntime.KindI32, giruntime.KindI32, giruntime.KindPointer},
			Result: giruntime.KindI32,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			p, err := newPlan(f.function(t, tt.fn).CallableInfo, 8)
			if err != nil {
				t.Fatal(err)
			}
			defer p.release()
			if p.sig.String() != tt.want.String() {
				t.Errorf("signature = %s, want %s", p.sig, tt.want)
			}
		})
	}
}

func BenchmarkInvoke(b *testing.B) {
	f := newFixture(b)
	fn := f.function(b, "sum")
	ctx := context.Background()
	values := []int32{1, 2, 3, 4, 5, 6, 7, 8}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.inv.Call(ctx, fn, values); err != nil {
			b.Fatal(err)
		}
	}
}
