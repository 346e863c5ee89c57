package binary

import (
	"errors"
	"testing"
)

func TestReaderFixedWidth(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0xff}
	r := NewReader(data, uint32(len(data)))

	if got := r.U8(0); got != 0x01 {
		t.Errorf("U8: got 0x%02x, want 0x01", got)
	}
	if got := r.U16(0); got != 0x0201 {
		t.Errorf("U16: got 0x%04x, want 0x0201", got)
	}
	if got := r.U32(0); got != 0x04030201 {
		t.Errorf("U32: got 0x%08x, want 0x04030201", got)
	}
	if got := r.U64(0); got != 0x0807060504030201 {
		t.Errorf("U64: got 0x%x", got)
	}
	if got := r.I8(8); got != -1 {
		t.Errorf("I8: got %d, want -1", got)
	}
}

func TestReaderOutOfBounds(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04}
	r := NewReader(data, 3)

	if got := r.U32(0); got != 0 {
		t.Errorf("U32 crossing limit: got %d, want 0", got)
	}
	if got := r.U16(2); got != 0 {
		t.Errorf("U16 crossing limit: got %d, want 0", got)
	}
	if got := r.U8(0xffffffff); got != 0 {
		t.Errorf("U8 at max offset: got %d, want 0", got)
	}
	if got := r.Bytes(1, 0xffffffff); got != nil {
		t.Errorf("Bytes overflow: got %v, want nil", got)
	}
	if got := r.U16(1); got != 0x0302 {
		t.Errorf("U16 inside limit: got 0x%04x", got)
	}
}

func TestReaderLimitClamped(t *testing.T) {
	r := NewReader([]byte{1, 2}, 100)
	if r.Limit() != 2 {
		t.Errorf("Limit: got %d, want 2", r.Limit())
	}
}

func TestReaderCString(t *testing.T) {
	data := []byte{0, 'a', 'b', 0, 'c', 'd'}
	r := NewReader(data, uint32(len(data)))

	tests := []struct {
		off  uint32
		want string
		ok   bool
	}{
		{0, "", false},
		{1, "ab", true},
		{3, "", true},
		{4, "", false},
		{99, "", false},
	}
	for _, tt := range tests {
		got, ok := r.CString(tt.off)
		if got != tt.want || ok != tt.ok {
			t.Errorf("CString(%d) = %q, %v; want %q, %v", tt.off, got, ok, tt.want, tt.ok)
		}
	}
}

func TestReaderCheck(t *testing.T) {
	r := NewReader(make([]byte, 16), 16)
	if err := r.Check("directory", 4, 12); err != nil {
		t.Errorf("Check in bounds: %v", err)
	}
	err := r.Check("directory", 8, 12)
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %T", err)
	}
	if pe.Section != "directory" || pe.Position != 8 {
		t.Errorf("ParseError = %+v", pe)
	}
	if !errors.Is(err, ErrOutOfBounds) {
		t.Error("expected ErrOutOfBounds in chain")
	}
}

func TestParseErrorNoSection(t *testing.T) {
	err := &ParseError{Position: 3, Err: ErrOutOfBounds}
	if got := err.Error(); got != "typelib: at offset 3: read out of bounds" {
		t.Errorf("Error() = %q", got)
	}
}

func TestWriterPatch(t *testing.T) {
	w := NewWriter()
	w.Byte(0xaa)
	w.Align(4)
	if w.Len() != 4 {
		t.Fatalf("Align: len %d, want 4", w.Len())
	}
	slot := w.Zero(4)
	w.U16(0x1234)
	w.CString("hi")
	w.Patch32(slot, 0xdeadbeef)

	r := NewReader(w.Bytes(), w.Len())
	if got := r.U32(slot); got != 0xdeadbeef {
		t.Errorf("patched slot: got 0x%x", got)
	}
	if got := r.U16(8); got != 0x1234 {
		t.Errorf("U16: got 0x%x", got)
	}
	if got := r.String(10); got != "hi" {
		t.Errorf("String: got %q", got)
	}
}

func TestWriterFloats(t *testing.T) {
	w := NewWriter()
	w.F32(1.5)
	w.F64(-2.25)
	r := NewReader(w.Bytes(), w.Len())
	if got := r.U32(0); got != 0x3fc00000 {
		t.Errorf("F32 bits: got 0x%x", got)
	}
	if got := r.U64(4); got != 0xc002000000000000 {
		t.Errorf("F64 bits: got 0x%x", got)
	}
}
