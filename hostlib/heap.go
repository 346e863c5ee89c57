package hostlib

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/wippyai/gi-runtime/errors"
	"go.uber.org/zap"
)

// heapBase keeps NULL and small integers out of the address range.
const heapBase = 0x10000

// Heap is a growable private address space with a first-fit allocator.
// It implements giruntime.Memory and giruntime.Allocator.
type Heap struct {
	data    []byte
	live    map[uint64]uint32
	free    []block
	mu      sync.Mutex
	ptrSize int
	limit   uint64
	top     uint64
}

type block struct {
	addr uint64
	size uint64
}

func newHeap(ptrSize int, limit uint64) *Heap {
	return &Heap{
		live:    make(map[uint64]uint32),
		ptrSize: ptrSize,
		limit:   limit,
		top:     heapBase,
	}
}

func (h *Heap) PointerSize() int { return h.ptrSize }

// Live returns the number of allocations not yet freed.
func (h *Heap) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

// Size returns the byte size of the live allocation at addr.
func (h *Heap) Size(addr uint64) (uint32, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.live[addr]
	return n, ok
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

func (h *Heap) Alloc(size, align uint32) (uint64, error) {
	if align == 0 || align&(align-1) != 0 {
		return 0, errors.InvalidInput(errors.PhaseRuntime, fmt.Sprintf("alignment %d is not a power of two", align))
	}
	need := uint64(size)
	if need == 0 {
		need = 1
	}
	a := uint64(align)

	h.mu.Lock()
	defer h.mu.Unlock()

	for i, b := range h.free {
		start := alignUp(b.addr, a)
		if start+need > b.addr+b.size {
			continue
		}
		h.free = append(h.free[:i], h.free[i+1:]...)
		if start > b.addr {
			h.free = append(h.free, block{b.addr, start - b.addr})
		}
		if end := start + need; end < b.addr+b.size {
			h.free = append(h.free, block{end, b.addr + b.size - end})
		}
		h.claim(start, need)
		return start, nil
	}

	start := alignUp(h.top, a)
	end := start + need
	if end-heapBase > h.limit {
		return 0, errors.AllocationFailed(errors.PhaseRuntime, size, align, fmt.Errorf("heap limit %d bytes reached", h.limit))
	}
	if start > h.top {
		h.free = append(h.free, block{h.top, start - h.top})
	}
	if grow := int(end - heapBase); grow > len(h.data) {
		n := max(grow, 2*len(h.data))
		data := make([]byte, n)
		copy(data, h.data)
		h.data = data
	}
	h.top = end
	h.claim(start, need)
	return start, nil
}

// claim zeroes and records an allocation; h.mu is held.
func (h *Heap) claim(addr, size uint64) {
	clear(h.data[addr-heapBase : addr-heapBase+size])
	h.live[addr] = uint32(size)
}

func (h *Heap) Free(addr uint64) {
	if addr == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	size, ok := h.live[addr]
	if !ok {
		Logger().Warn("free of unknown address", zap.Uint64("ptr", addr))
		return
	}
	delete(h.live, addr)
	h.free = append(h.free, block{addr, uint64(size)})
	h.coalesce()
}

// coalesce merges adjacent free blocks; h.mu is held.
func (h *Heap) coalesce() {
	sort.Slice(h.free, func(i, j int) bool { return h.free[i].addr < h.free[j].addr })
	out := h.free[:0]
	for _, b := range h.free {
		if n := len(out); n > 0 && out[n-1].addr+out[n-1].size == b.addr {
			out[n-1].size += b.size
			continue
		}
		out = append(out, b)
	}
	h.free = out
}

// span returns the backing slice for [addr, addr+n); h.mu is held.
func (h *Heap) span(addr uint64, n uint64) ([]byte, error) {
	if addr < heapBase || addr-heapBase+n > uint64(len(h.data)) || addr+n < addr {
		return nil, errors.OutOfBounds(errors.PhaseRuntime, nil, int(addr), len(h.data)+heapBase)
	}
	return h.data[addr-heapBase : addr-heapBase+n], nil
}

func (h *Heap) Read(addr uint64, length uint32) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(addr, uint64(length))
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, b)
	return out, nil
}

func (h *Heap) Write(addr uint64, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(addr, uint64(len(data)))
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

func (h *Heap) ReadU8(addr uint64) (uint8, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(addr, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (h *Heap) ReadU16(addr uint64) (uint16, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (h *Heap) ReadU32(addr uint64) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (h *Heap) ReadU64(addr uint64) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (h *Heap) WriteU8(addr uint64, v uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(addr, 1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

func (h *Heap) WriteU16(addr uint64, v uint16) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(addr, 2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, v)
	return nil
}

func (h *Heap) WriteU32(addr uint64, v uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(addr, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

func (h *Heap) WriteU64(addr uint64, v uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(addr, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	return nil
}
