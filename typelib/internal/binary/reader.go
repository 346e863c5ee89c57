package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOutOfBounds is returned when a read crosses the image limit.
var ErrOutOfBounds = errors.New("read out of bounds")

// Reader provides random-access little-endian reads over a typelib image.
// Every read is checked against the limit; reads that would cross it return
// zero values so a corrupt offset can never fault.
type Reader struct {
	data  []byte
	limit uint32
}

// NewReader creates a Reader over data. Reads are limited to the first
// limit bytes; a limit larger than data is clamped.
func NewReader(data []byte, limit uint32) *Reader {
	if uint64(limit) > uint64(len(data)) {
		limit = uint32(len(data))
	}
	return &Reader{data: data, limit: limit}
}

// Limit returns the number of readable bytes.
func (r *Reader) Limit() uint32 {
	return r.limit
}

// InBounds reports whether [off, off+n) lies within the limit.
func (r *Reader) InBounds(off, n uint32) bool {
	end := uint64(off) + uint64(n)
	return end <= uint64(r.limit)
}

// U8 reads a byte at off.
func (r *Reader) U8(off uint32) uint8 {
	if !r.InBounds(off, 1) {
		return 0
	}
	return r.data[off]
}

// I8 reads a signed byte at off.
func (r *Reader) I8(off uint32) int8 {
	return int8(r.U8(off))
}

// U16 reads a little-endian uint16 at off.
func (r *Reader) U16(off uint32) uint16 {
	if !r.InBounds(off, 2) {
		return 0
	}
	return binary.LittleEndian.Uint16(r.data[off:])
}

// U32 reads a little-endian uint32 at off.
func (r *Reader) U32(off uint32) uint32 {
	if !r.InBounds(off, 4) {
		return 0
	}
	return binary.LittleEndian.Uint32(r.data[off:])
}

// I32 reads a little-endian int32 at off.
func (r *Reader) I32(off uint32) int32 {
	return int32(r.U32(off))
}

// U64 reads a little-endian uint64 at off.
func (r *Reader) U64(off uint32) uint64 {
	if !r.InBounds(off, 8) {
		return 0
	}
	return binary.LittleEndian.Uint64(r.data[off:])
}

// Bytes returns the n bytes at off, or nil when they cross the limit.
// The slice aliases the image.
func (r *Reader) Bytes(off, n uint32) []byte {
	if !r.InBounds(off, n) {
		return nil
	}
	return r.data[off : off+n : off+n]
}

// CString reads a NUL terminated string at off. Offset zero, an offset
// past the limit, or a missing terminator yield ok == false.
func (r *Reader) CString(off uint32) (string, bool) {
	if off == 0 || off >= r.limit {
		return "", false
	}
	for i := off; i < r.limit; i++ {
		if r.data[i] == 0 {
			return string(r.data[off:i]), true
		}
	}
	return "", false
}

// String is CString without the ok flag.
func (r *Reader) String(off uint32) string {
	s, _ := r.CString(off)
	return s
}

// Check returns a ParseError when [off, off+n) crosses the limit.
func (r *Reader) Check(section string, off, n uint32) error {
	if r.InBounds(off, n) {
		return nil
	}
	return &ParseError{
		Section:  section,
		Position: off,
		Err:      fmt.Errorf("%w: %d bytes at %d, limit %d", ErrOutOfBounds, n, off, r.limit),
	}
}

// ParseError represents an error during image validation with position information.
type ParseError struct {
	Err      error
	Section  string
	Position uint32
}

func (e *ParseError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("typelib: %s at offset %d: %v", e.Section, e.Position, e.Err)
	}
	return fmt.Sprintf("typelib: at offset %d: %v", e.Position, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
