package binary

import (
	"encoding/binary"
	"math"
)

// Writer accumulates a little-endian image and supports patching
// previously written slots.
type Writer struct {
	buf []byte
}

// NewWriter creates a new Writer.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 1024)}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written.
func (w *Writer) Len() uint32 {
	return uint32(len(w.buf))
}

// Byte writes a single byte.
func (w *Writer) Byte(b byte) {
	w.buf = append(w.buf, b)
}

// WriteBytes writes a byte slice.
func (w *Writer) WriteBytes(data []byte) {
	w.buf = append(w.buf, data...)
}

// Zero writes n zero bytes and returns the offset of the first.
func (w *Writer) Zero(n uint32) uint32 {
	off := w.Len()
	w.buf = append(w.buf, make([]byte, n)...)
	return off
}

// Align pads with zeros to a multiple of n.
func (w *Writer) Align(n uint32) {
	for w.Len()%n != 0 {
		w.buf = append(w.buf, 0)
	}
}

// U16 writes a little-endian uint16.
func (w *Writer) U16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// U32 writes a little-endian uint32.
func (w *Writer) U32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// U64 writes a little-endian uint64.
func (w *Writer) U64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// F32 writes IEEE-754 single precision bits.
func (w *Writer) F32(v float32) {
	w.U32(math.Float32bits(v))
}

// F64 writes IEEE-754 double precision bits.
func (w *Writer) F64(v float64) {
	w.U64(math.Float64bits(v))
}

// CString writes s followed by a NUL byte.
func (w *Writer) CString(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// Patch8 overwrites the byte at off.
func (w *Writer) Patch8(off uint32, v uint8) {
	w.buf[off] = v
}

// Patch16 overwrites the uint16 at off.
func (w *Writer) Patch16(off uint32, v uint16) {
	binary.LittleEndian.PutUint16(w.buf[off:], v)
}

// Patch32 overwrites the uint32 at off.
func (w *Writer) Patch32(off uint32, v uint32) {
	binary.LittleEndian.PutUint32(w.buf[off:], v)
}
