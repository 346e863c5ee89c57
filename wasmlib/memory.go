package wasmlib

import (
	"context"
	"math"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/gi-runtime/errors"
)

// memory adapts a guest's linear memory to giruntime.Memory. Addresses
// above 4 GiB are always out of bounds.
type memory struct {
	mem api.Memory
}

func outOfBounds(op string, addr uint64, n int) error {
	return errors.New(errors.PhaseRuntime, errors.KindOutOfBounds).
		Detail("guest memory %s out of bounds: addr=0x%x, length=%d", op, addr, n).
		Build()
}

func offset(addr uint64) (uint32, bool) {
	if addr > math.MaxUint32 {
		return 0, false
	}
	return uint32(addr), true
}

func (m *memory) PointerSize() int { return 4 }

// Size returns the current size of linear memory in bytes.
func (m *memory) Size() uint32 { return m.mem.Size() }

func (m *memory) Read(addr uint64, length uint32) ([]byte, error) {
	off, ok := offset(addr)
	if !ok {
		return nil, outOfBounds("read", addr, int(length))
	}
	data, ok := m.mem.Read(off, length)
	if !ok {
		return nil, outOfBounds("read", addr, int(length))
	}
	// Read returns a view that a later memory.grow may invalidate.
	return append([]byte(nil), data...), nil
}

func (m *memory) Write(addr uint64, data []byte) error {
	off, ok := offset(addr)
	if !ok || !m.mem.Write(off, data) {
		return outOfBounds("write", addr, len(data))
	}
	return nil
}

func (m *memory) ReadU8(addr uint64) (uint8, error) {
	off, ok := offset(addr)
	if ok {
		if v, ok := m.mem.ReadByte(off); ok {
			return v, nil
		}
	}
	return 0, outOfBounds("read", addr, 1)
}

func (m *memory) ReadU16(addr uint64) (uint16, error) {
	off, ok := offset(addr)
	if ok {
		if v, ok := m.mem.ReadUint16Le(off); ok {
			return v, nil
		}
	}
	return 0, outOfBounds("read", addr, 2)
}

func (m *memory) ReadU32(addr uint64) (uint32, error) {
	off, ok := offset(addr)
	if ok {
		if v, ok := m.mem.ReadUint32Le(off); ok {
			return v, nil
		}
	}
	return 0, outOfBounds("read", addr, 4)
}

func (m *memory) ReadU64(addr uint64) (uint64, error) {
	off, ok := offset(addr)
	if ok {
		if v, ok := m.mem.ReadUint64Le(off); ok {
			return v, nil
		}
	}
	return 0, outOfBounds("read", addr, 8)
}

func (m *memory) WriteU8(addr uint64, value uint8) error {
	off, ok := offset(addr)
	if !ok || !m.mem.WriteByte(off, value) {
		return outOfBounds("write", addr, 1)
	}
	return nil
}

func (m *memory) WriteU16(addr uint64, value uint16) error {
	off, ok := offset(addr)
	if !ok || !m.mem.WriteUint16Le(off, value) {
		return outOfBounds("write", addr, 2)
	}
	return nil
}

func (m *memory) WriteU32(addr uint64, value uint32) error {
	off, ok := offset(addr)
	if !ok || !m.mem.WriteUint32Le(off, value) {
		return outOfBounds("write", addr, 4)
	}
	return nil
}

func (m *memory) WriteU64(addr uint64, value uint64) error {
	off, ok := offset(addr)
	if !ok || !m.mem.WriteUint64Le(off, value) {
		return outOfBounds("write", addr, 8)
	}
	return nil
}

// allocator hands out guest memory through the guest's own exports:
// malloc and free when present, cabi_realloc otherwise.
type allocator struct {
	lib     *Library
	malloc  api.Function
	free    api.Function
	realloc api.Function
	// sizes remembers cabi_realloc allocations, which need their size and
	// alignment to be released.
	sizes map[uint32][2]uint32
}

func newAllocator(lib *Library, mod api.Module, cfg Config) (*allocator, error) {
	a := &allocator{lib: lib, sizes: make(map[uint32][2]uint32)}
	a.malloc = mod.ExportedFunction(cfg.mallocName())
	a.free = mod.ExportedFunction(cfg.freeName())
	if a.malloc != nil && a.free != nil {
		return a, nil
	}
	a.malloc, a.free = nil, nil
	if a.realloc = mod.ExportedFunction("cabi_realloc"); a.realloc != nil {
		Logger().Debug("guest allocator falls back to cabi_realloc")
		return a, nil
	}
	return nil, errors.New(errors.PhaseLoad, errors.KindSymbolNotFound).
		Path(lib.name).
		Detail("guest exports neither %s/%s nor cabi_realloc", cfg.mallocName(), cfg.freeName()).
		Build()
}

// Alloc returns zeroed guest memory.
func (a *allocator) Alloc(size, align uint32) (uint64, error) {
	if size == 0 {
		size = 1
	}
	if align == 0 {
		align = 1
	}
	a.lib.mu.Lock()
	defer a.lib.mu.Unlock()
	if a.lib.closed {
		return 0, errors.Closed(errors.PhaseRuntime, "library "+a.lib.name)
	}
	ctx := context.Background()
	var res []uint64
	var err error
	if a.malloc != nil {
		res, err = a.malloc.Call(ctx, uint64(size))
	} else {
		res, err = a.realloc.Call(ctx, 0, 0, uint64(align), uint64(size))
	}
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseRuntime, size, align, err)
	}
	if len(res) == 0 || uint32(res[0]) == 0 {
		return 0, errors.AllocationFailed(errors.PhaseRuntime, size, align, nil)
	}
	ptr := uint32(res[0])
	if a.realloc != nil {
		a.sizes[ptr] = [2]uint32{size, align}
	}
	if ptr%align != 0 {
		a.release(ctx, ptr)
		return 0, errors.New(errors.PhaseRuntime, errors.KindAllocation).
			Detail("guest returned 0x%x, not aligned to %d", ptr, align).
			Build()
	}
	if !a.lib.mem.mem.Write(ptr, make([]byte, size)) {
		a.release(ctx, ptr)
		return 0, outOfBounds("zero", uint64(ptr), int(size))
	}
	return uint64(ptr), nil
}

func (a *allocator) Free(addr uint64) {
	ptr, ok := offset(addr)
	if !ok || ptr == 0 {
		return
	}
	a.lib.mu.Lock()
	defer a.lib.mu.Unlock()
	if a.lib.closed {
		return
	}
	a.release(context.Background(), ptr)
}

// release frees ptr; a.lib.mu is held.
func (a *allocator) release(ctx context.Context, ptr uint32) {
	var err error
	if a.free != nil {
		_, err = a.free.Call(ctx, uint64(ptr))
	} else {
		sz, ok := a.sizes[ptr]
		if !ok {
			return
		}
		delete(a.sizes, ptr)
		_, err = a.realloc.Call(ctx, uint64(ptr), uint64(sz[0]), uint64(sz[1]), 0)
	}
	if err != nil {
		Logger().Warn("guest free failed", zap.Uint32("ptr", ptr), zap.Error(err))
	}
}
