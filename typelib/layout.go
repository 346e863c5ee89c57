package typelib

// Span locates a homogeneous array of blobs.
type Span struct {
	Offset uint32
	Count  int
	Stride uint32
}

// At returns the offset of element i.
func (s Span) At(i int) uint32 {
	return s.Offset + uint32(i)*s.Stride
}

// End returns the offset just past the last element.
func (s Span) End() uint32 {
	return s.At(s.Count)
}

// Members locates the member arrays that follow a compound blob.
type Members struct {
	// Interfaces holds uint16 directory indices: implemented interfaces of
	// an object or prerequisites of an interface.
	Interfaces Span
	// Fields holds field blob offsets. A field with an embedded callback
	// type is followed by its callback blob, so fields are not uniformly
	// strided.
	Fields         []uint32
	Properties     Span
	Methods        Span
	Signals        Span
	VFuncs         Span
	Constants      Span
	Values         Span
	Discriminators Span
}

// Members computes the member layout of the compound blob at off.
// Non-compound blobs yield empty members.
func (t *Typelib) Members(off uint32) Members {
	var m Members
	switch BlobType(t.U16(off)) {
	case BlobStruct, BlobBoxed:
		next := t.fields(&m, off+StructBlobSize, int(t.U16(off+20)))
		m.Methods = Span{Offset: next, Count: int(t.U16(off + 22)), Stride: FunctionBlobSize}

	case BlobUnion:
		next := t.fields(&m, off+UnionBlobSize, int(t.U16(off+20)))
		m.Methods = Span{Offset: next, Count: int(t.U16(off + 22)), Stride: FunctionBlobSize}
		if t.U16(off+2)&(1<<2) != 0 {
			m.Discriminators = Span{Offset: m.Methods.End(), Count: len(m.Fields), Stride: ConstantBlobSize}
		}

	case BlobEnum, BlobFlags:
		m.Values = Span{Offset: off + EnumBlobSize, Count: int(t.U16(off + 16)), Stride: ValueBlobSize}
		m.Methods = Span{Offset: m.Values.End(), Count: int(t.U16(off + 18)), Stride: FunctionBlobSize}

	case BlobObject:
		nIfaces := int(t.U16(off + 20))
		m.Interfaces = Span{Offset: off + ObjectBlobSize, Count: nIfaces, Stride: 2}
		next := m.Interfaces.Offset + uint32(nIfaces+nIfaces%2)*2
		next = t.fields(&m, next, int(t.U16(off+22)))
		m.Properties = Span{Offset: next, Count: int(t.U16(off + 24)), Stride: PropertyBlobSize}
		m.Methods = Span{Offset: m.Properties.End(), Count: int(t.U16(off + 26)), Stride: FunctionBlobSize}
		m.Signals = Span{Offset: m.Methods.End(), Count: int(t.U16(off + 28)), Stride: SignalBlobSize}
		m.VFuncs = Span{Offset: m.Signals.End(), Count: int(t.U16(off + 30)), Stride: VFuncBlobSize}
		m.Constants = Span{Offset: m.VFuncs.End(), Count: int(t.U16(off + 32)), Stride: ConstantBlobSize}

	case BlobInterface:
		nPrereq := int(t.U16(off + 18))
		m.Interfaces = Span{Offset: off + InterfaceBlobSize, Count: nPrereq, Stride: 2}
		next := m.Interfaces.Offset + uint32(nPrereq+nPrereq%2)*2
		m.Properties = Span{Offset: next, Count: int(t.U16(off + 20)), Stride: PropertyBlobSize}
		m.Methods = Span{Offset: m.Properties.End(), Count: int(t.U16(off + 22)), Stride: FunctionBlobSize}
		m.Signals = Span{Offset: m.Methods.End(), Count: int(t.U16(off + 24)), Stride: SignalBlobSize}
		m.VFuncs = Span{Offset: m.Signals.End(), Count: int(t.U16(off + 26)), Stride: VFuncBlobSize}
		m.Constants = Span{Offset: m.VFuncs.End(), Count: int(t.U16(off + 28)), Stride: ConstantBlobSize}
	}
	return m
}

// fields walks n field blobs starting at off and returns the offset past them.
func (t *Typelib) fields(m *Members, off uint32, n int) uint32 {
	limit := t.Size()
	for i := 0; i < n; i++ {
		if off >= limit {
			// Truncated image: skip the rest without recording unreadable offsets.
			return off + uint32(n-i)*FieldBlobSize
		}
		m.Fields = append(m.Fields, off)
		embedded := t.U8(off+4)&(1<<2) != 0
		off += FieldBlobSize
		if embedded {
			off += CallbackBlobSize
		}
	}
	return off
}
