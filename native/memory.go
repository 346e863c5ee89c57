//go:build darwin || freebsd || linux || netbsd

package native

import (
	"encoding/binary"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/errors"
)

// processMemory is the address space of the current process.
type processMemory struct{}

// Memory is the process address space shared by every native library.
var Memory giruntime.Memory = processMemory{}

// at turns an address into a pointer without a uintptr conversion
// expression the compiler could reorder around a GC.
func at(addr uint64) unsafe.Pointer {
	u := uintptr(addr)
	return *(*unsafe.Pointer)(unsafe.Pointer(&u))
}

func view(addr uint64, n int) ([]byte, error) {
	if addr == 0 {
		return nil, errors.NilPointer(errors.PhaseRuntime, nil, "gpointer")
	}
	return unsafe.Slice((*byte)(at(addr)), n), nil
}

func (processMemory) PointerSize() int { return int(unsafe.Sizeof(uintptr(0))) }

func (processMemory) Read(addr uint64, length uint32) ([]byte, error) {
	b, err := view(addr, int(length))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func (processMemory) Write(addr uint64, data []byte) error {
	b, err := view(addr, len(data))
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

func (processMemory) ReadU8(addr uint64) (uint8, error) {
	b, err := view(addr, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (processMemory) ReadU16(addr uint64) (uint16, error) {
	b, err := view(addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint16(b), nil
}

func (processMemory) ReadU32(addr uint64) (uint32, error) {
	b, err := view(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint32(b), nil
}

func (processMemory) ReadU64(addr uint64) (uint64, error) {
	b, err := view(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint64(b), nil
}

func (processMemory) WriteU8(addr uint64, v uint8) error {
	b, err := view(addr, 1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

func (processMemory) WriteU16(addr uint64, v uint16) error {
	b, err := view(addr, 2)
	if err != nil {
		return err
	}
	binary.NativeEndian.PutUint16(b, v)
	return nil
}

func (processMemory) WriteU32(addr uint64, v uint32) error {
	b, err := view(addr, 4)
	if err != nil {
		return err
	}
	binary.NativeEndian.PutUint32(b, v)
	return nil
}

func (processMemory) WriteU64(addr uint64, v uint64) error {
	b, err := view(addr, 8)
	if err != nil {
		return err
	}
	binary.NativeEndian.PutUint64(b, v)
	return nil
}

// libc allocation functions, bound on first use.
var libc struct {
	once     sync.Once
	err      error
	calloc   func(n, size uintptr) uintptr
	free     func(p uintptr)
	memalign func(out unsafe.Pointer, align, size uintptr) int32
}

func libcName() string {
	switch goos {
	case "darwin":
		return "/usr/lib/libSystem.B.dylib"
	case "freebsd":
		return "libc.so.7"
	}
	return "libc.so.6"
}

func loadLibc() error {
	libc.once.Do(func() {
		h, err := purego.Dlopen(libcName(), purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			libc.err = errors.Load("open "+libcName(), err)
			return
		}
		for sym, fptr := range map[string]any{
			"calloc":         &libc.calloc,
			"free":           &libc.free,
			"posix_memalign": &libc.memalign,
		} {
			addr, err := purego.Dlsym(h, sym)
			if err != nil {
				libc.err = errors.SymbolNotFound(sym, err)
				return
			}
			purego.RegisterFunc(fptr, addr)
		}
	})
	return libc.err
}

// mallocAlign is the alignment calloc guarantees on supported platforms.
const mallocAlign = 16

// Allocator allocates with the C library's heap, so memory it returns
// can be released by native code with free() or g_free().
type Allocator struct{}

var _ giruntime.Allocator = Allocator{}

func (Allocator) Alloc(size, align uint32) (uint64, error) {
	if err := loadLibc(); err != nil {
		return 0, err
	}
	if size == 0 {
		size = 1
	}
	if align <= mallocAlign {
		p := libc.calloc(1, uintptr(size))
		if p == 0 {
			return 0, errors.AllocationFailed(errors.PhaseRuntime, size, align, nil)
		}
		return uint64(p), nil
	}
	var p uintptr
	if rc := libc.memalign(unsafe.Pointer(&p), uintptr(align), uintptr(size)); rc != 0 || p == 0 {
		return 0, errors.New(errors.PhaseRuntime, errors.KindAllocation).
			Value(rc).
			Detail("posix_memalign(%d, %d) failed", align, size).
			Build()
	}
	clear(unsafe.Slice((*byte)(at(uint64(p))), size))
	return uint64(p), nil
}

func (Allocator) Free(addr uint64) {
	if addr == 0 || loadLibc() != nil {
		return
	}
	libc.free(uintptr(addr))
}
