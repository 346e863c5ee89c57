package giruntime

import (
	"context"
	"fmt"
)

// Memory is the address space a Library's functions read and write.
// Addresses are 64-bit regardless of the backend's pointer width.
type Memory interface {
	// PointerSize returns the width of a native pointer in bytes (4 or 8).
	PointerSize() int
	Read(addr uint64, length uint32) ([]byte, error)
	Write(addr uint64, data []byte) error
	ReadU8(addr uint64) (uint8, error)
	ReadU16(addr uint64) (uint16, error)
	ReadU32(addr uint64) (uint32, error)
	ReadU64(addr uint64) (uint64, error)
	WriteU8(addr uint64, value uint8) error
	WriteU16(addr uint64, value uint16) error
	WriteU32(addr uint64, value uint32) error
	WriteU64(addr uint64, value uint64) error
}

// Allocator allocates memory inside a Library's address space.
// Alloc returns zeroed memory.
type Allocator interface {
	Alloc(size, align uint32) (uint64, error)
	Free(addr uint64)
}

// Function is a resolved entry point of a Library.
type Function interface {
	Name() string
	Addr() uint64
	// Call performs a fully typed foreign call. Each argument is an untagged
	// 64-bit payload whose interpretation is given by sig.
	Call(ctx context.Context, sig Signature, args []uint64) (uint64, error)
}

// Library is a loaded native library the typelib's functions live in.
type Library interface {
	Name() string
	Symbol(name string) (Function, error)
	Memory() Memory
	Allocator() Allocator
	Close(ctx context.Context) error
}

// CallbackFactory is implemented by libraries able to expose Go functions as
// native function pointers. FreeCallback releases a pointer NewCallback
// returned; native code must not call it afterwards.
type CallbackFactory interface {
	NewCallback(sig Signature, fn func(args []uint64) uint64) (uint64, error)
	FreeCallback(addr uint64)
}

// Signature describes the native slots of a foreign call.
type Signature struct {
	Params []ValueKind
	Result ValueKind
}

func (s Signature) String() string {
	b := make([]byte, 0, 16+len(s.Params)*4)
	b = append(b, '(')
	for i, p := range s.Params {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, p.String()...)
	}
	b = append(b, ") -> "...)
	b = append(b, s.Result.String()...)
	return string(b)
}

// GType is a GLib runtime type identifier.
type GType uint64

func (g GType) String() string {
	return fmt.Sprintf("GType(%d)", uint64(g))
}

// ReadPointer reads a pointer-sized value at addr.
func ReadPointer(mem Memory, addr uint64) (uint64, error) {
	if mem.PointerSize() == 4 {
		v, err := mem.ReadU32(addr)
		return uint64(v), err
	}
	return mem.ReadU64(addr)
}

// WritePointer writes a pointer-sized value at addr.
func WritePointer(mem Memory, addr, value uint64) error {
	if mem.PointerSize() == 4 {
		return mem.WriteU32(addr, uint32(value))
	}
	return mem.WriteU64(addr, value)
}

// maxCString bounds NUL scanning so a corrupt pointer cannot spin forever.
const maxCString = 1 << 24

// ReadCString reads a NUL terminated string starting at addr.
func ReadCString(mem Memory, addr uint64) (string, error) {
	if addr == 0 {
		return "", fmt.Errorf("read string: null pointer")
	}
	var buf []byte
	const chunk = 64
	for len(buf) < maxCString {
		data, err := mem.Read(addr+uint64(len(buf)), chunk)
		if err != nil {
			// Fall back to byte reads near the end of the address space.
			b, berr := mem.ReadU8(addr + uint64(len(buf)))
			if berr != nil {
				return "", berr
			}
			if b == 0 {
				return string(buf), nil
			}
			buf = append(buf, b)
			continue
		}
		for i, b := range data {
			if b == 0 {
				return string(append(buf, data[:i]...)), nil
			}
		}
		buf = append(buf, data...)
	}
	return "", fmt.Errorf("read string: no terminator within %d bytes", maxCString)
}

// WriteCString allocates a NUL terminated copy of s.
func WriteCString(mem Memory, alloc Allocator, s string) (uint64, error) {
	addr, err := alloc.Alloc(uint32(len(s)+1), 1)
	if err != nil {
		return 0, err
	}
	data := make([]byte, len(s)+1)
	copy(data, s)
	if err := mem.Write(addr, data); err != nil {
		alloc.Free(addr)
		return 0, err
	}
	return addr, nil
}
