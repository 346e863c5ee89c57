//go:build darwin || freebsd || linux || netbsd

package native

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/binding"
	gierrors "github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/invoke"
	"github.com/wippyai/gi-runtime/repository"
	"github.com/wippyai/gi-runtime/typelib"
)

func openLibc(t *testing.T) *Library {
	t.Helper()
	if Memory.PointerSize() != 8 {
		t.Skip("fixtures assume 64-bit pointers")
	}
	lib, err := Open(libcName())
	if err != nil {
		t.Skipf("C library unavailable: %v", err)
	}
	t.Cleanup(func() { _ = lib.Close(context.Background()) })
	return lib
}

func sig(result giruntime.ValueKind, params ...giruntime.ValueKind) giruntime.Signature {
	return giruntime.Signature{Params: params, Result: result}
}

func TestCall(t *testing.T) {
	lib := openLibc(t)
	s, err := giruntime.WriteCString(Memory, Allocator{}, "2.5 apples")
	if err != nil {
		t.Fatal(err)
	}
	defer Allocator{}.Free(s)

	tests := []struct {
		name string
		sym  string
		sig  giruntime.Signature
		args []uint64
		want uint64
	}{
		{"strlen", "strlen", sig(giruntime.KindU64, giruntime.KindPointer), []uint64{s}, 10},
		{"abs", "abs", sig(giruntime.KindI32, giruntime.KindI32), []uint64{uint64(math.MaxUint64 - 6)}, 7},
		{"labs", "labs", sig(giruntime.KindI64, giruntime.KindI64), []uint64{uint64(math.MaxUint64 - 1<<40 + 1)}, 1 << 40},
		{"strtod", "strtod", sig(giruntime.KindF64, giruntime.KindPointer, giruntime.KindPointer), []uint64{s, 0}, math.Float64bits(2.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := lib.Symbol(tt.sym)
			if err != nil {
				t.Fatal(err)
			}
			got, err := fn.Call(context.Background(), tt.sig, tt.args)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("%s = 0x%x, want 0x%x", tt.sym, got, tt.want)
			}
		})
	}

	if _, err := lib.Symbol("definitely_not_in_libc"); !errors.Is(err, gierrors.ErrSymbolNotFound) {
		t.Errorf("missing symbol error = %v", err)
	}
	fn, _ := lib.Symbol("abs")
	if _, err := fn.Call(context.Background(), sig(giruntime.KindI32, giruntime.KindI32), nil); !errors.Is(err, gierrors.ErrArgCount) {
		t.Errorf("short call error = %v", err)
	}
}

func TestAllocator(t *testing.T) {
	if err := loadLibc(); err != nil {
		t.Skipf("C library unavailable: %v", err)
	}
	for _, align := range []uint32{1, 8, 16, 64, 4096} {
		p, err := Allocator{}.Alloc(48, align)
		if err != nil {
			t.Fatalf("Alloc(48, %d): %v", align, err)
		}
		if p%uint64(align) != 0 {
			t.Errorf("Alloc(48, %d) = 0x%x, misaligned", align, p)
		}
		b, _ := Memory.Read(p, 48)
		for i, c := range b {
			if c != 0 {
				t.Fatalf("Alloc(48, %d) byte %d = %d", align, i, c)
			}
		}
		if err := Memory.WriteU32(p+4, 0xdeadbeef); err != nil {
			t.Fatal(err)
		}
		if v, _ := Memory.ReadU32(p + 4); v != 0xdeadbeef {
			t.Errorf("ReadU32 = 0x%x", v)
		}
		if err := Memory.WriteU64(p+8, math.MaxUint64); err != nil {
			t.Fatal(err)
		}
		if v, _ := Memory.ReadU16(p + 8); v != math.MaxUint16 {
			t.Errorf("ReadU16 = 0x%x", v)
		}
		Allocator{}.Free(p)
	}
	if _, err := Memory.ReadU8(0); !errors.Is(err, &gierrors.Error{Kind: gierrors.KindNilPointer}) {
		t.Errorf("ReadU8(NULL) error = %v", err)
	}
}

func TestCallback(t *testing.T) {
	lib := openLibc(t)
	values := []int32{42, -3, 17, 0, 9}
	base, err := Allocator{}.Alloc(uint32(4*len(values)), 4)
	if err != nil {
		t.Fatal(err)
	}
	defer Allocator{}.Free(base)
	for i, v := range values {
		_ = Memory.WriteU32(base+uint64(4*i), uint32(v))
	}

	var calls int
	cmp, err := lib.NewCallback(sig(giruntime.KindI32, giruntime.KindPointer, giruntime.KindPointer), func(args []uint64) uint64 {
		calls++
		a, _ := Memory.ReadU32(args[0])
		b, _ := Memory.ReadU32(args[1])
		switch {
		case int32(a) < int32(b):
			return uint64(math.MaxUint64) // -1
		case int32(a) > int32(b):
			return 1
		}
		return 0
	})
	if err != nil {
		t.Skipf("callbacks unavailable: %v", err)
	}
	qsort, err := lib.Symbol("qsort")
	if err != nil {
		t.Fatal(err)
	}
	qs := sig(giruntime.KindVoid, giruntime.KindPointer, giruntime.KindU64, giruntime.KindU64, giruntime.KindPointer)
	if _, err := qsort.Call(context.Background(), qs, []uint64{base, uint64(len(values)), 4, cmp}); err != nil {
		t.Fatal(err)
	}
	if calls == 0 {
		t.Error("comparator never called")
	}
	got := make([]int32, len(values))
	for i := range got {
		v, _ := Memory.ReadU32(base + uint64(4*i))
		got[i] = int32(v)
	}
	if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i] < got[j] }) {
		t.Errorf("qsort result %v", got)
	}

	// A released pointer is rebound instead of creating a new one.
	total, _ := callbacks.stats()
	for i := 0; i < 50; i++ {
		lib.FreeCallback(cmp)
		descending := func(args []uint64) uint64 {
			a, _ := Memory.ReadU32(args[0])
			b, _ := Memory.ReadU32(args[1])
			return uint64(int64(int32(b) - int32(a)))
		}
		if cmp, err = lib.NewCallback(sig(giruntime.KindI32, giruntime.KindPointer, giruntime.KindPointer), descending); err != nil {
			t.Fatal(err)
		}
	}
	if after, _ := callbacks.stats(); after != total {
		t.Errorf("trampolines = %d after reuse, want %d", after, total)
	}
	if _, err := qsort.Call(context.Background(), qs, []uint64{base, uint64(len(values)), 4, cmp}); err != nil {
		t.Fatal(err)
	}
	first, _ := Memory.ReadU32(base)
	if int32(first) != 42 {
		t.Errorf("rebound comparator: first = %d, want 42", int32(first))
	}
	lib.FreeCallback(cmp)
}

func libcTypelib(t *testing.T) *typelib.Typelib {
	t.Helper()
	tl, err := typelib.NewBuilder("LibC", "1.0").
		PointerSize(8).
		SharedLibrary(libcName()).
		Function(typelib.FunctionDef{Name: "length", Symbol: "strlen", SignatureDef: typelib.SignatureDef{
			Args:   []typelib.ArgDef{typelib.In("s", typelib.Basic(typelib.TagUTF8))},
			Return: typelib.Basic(typelib.TagUint64),
		}}).
		Function(typelib.FunctionDef{Name: "abs", Symbol: "abs", SignatureDef: typelib.SignatureDef{
			Args:   []typelib.ArgDef{typelib.In("n", typelib.Basic(typelib.TagInt32))},
			Return: typelib.Basic(typelib.TagInt32),
		}}).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	return tl
}

func TestInvoke(t *testing.T) {
	lib := openLibc(t)
	src := info.NewSource(libcTypelib(t), nil)
	bi, err := src.Find("length")
	if err != nil {
		t.Fatal(err)
	}
	defer bi.Unref()

	res, err := invoke.New(lib, nil).Call(context.Background(), bi.MustFunction(), "gobject")
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0] != uint64(7) {
		t.Errorf("length = %v", res)
	}
}

func TestOpener(t *testing.T) {
	openLibc(t)
	repo := repository.New(repository.Options{SearchPath: []string{}})
	if _, err := repo.Register(libcTypelib(t)); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	rt := binding.New(binding.Options{Repository: repo, OpenLibrary: Opener(t.TempDir())})
	defer rt.Close(ctx)

	mod, err := rt.Require(ctx, "LibC", "1.0")
	if err != nil {
		t.Fatal(err)
	}
	res, err := mod.Call(ctx, "abs", int32(-12))
	if err != nil || len(res) != 1 || res[0] != int32(12) {
		t.Errorf("abs = %v, %v", res, err)
	}
}
