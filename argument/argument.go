package argument

import "math"

// Argument is the untagged payload exchanged with native functions. It is
// wide enough for any primitive or pointer; the TypeInfo supplied by the
// caller decides how it is read. Signed values are stored sign-extended and
// float32 values as their IEEE bits in the low word.
type Argument uint64

func FromBool(v bool) Argument {
	if v {
		return 1
	}
	return 0
}

func FromInt64(v int64) Argument     { return Argument(uint64(v)) }
func FromUint64(v uint64) Argument   { return Argument(v) }
func FromFloat32(v float32) Argument { return Argument(math.Float32bits(v)) }
func FromFloat64(v float64) Argument { return Argument(math.Float64bits(v)) }
func FromPointer(p uint64) Argument  { return Argument(p) }

func (a Argument) Bool() bool       { return uint32(a) != 0 }
func (a Argument) Int8() int8       { return int8(a) }
func (a Argument) Uint8() uint8     { return uint8(a) }
func (a Argument) Int16() int16     { return int16(a) }
func (a Argument) Uint16() uint16   { return uint16(a) }
func (a Argument) Int32() int32     { return int32(a) }
func (a Argument) Uint32() uint32   { return uint32(a) }
func (a Argument) Int64() int64     { return int64(a) }
func (a Argument) Uint64() uint64   { return uint64(a) }
func (a Argument) Float32() float32 { return math.Float32frombits(uint32(a)) }
func (a Argument) Float64() float64 { return math.Float64frombits(uint64(a)) }
func (a Argument) Pointer() uint64  { return uint64(a) }

// Raw returns the payload as passed to giruntime.Function.Call.
func (a Argument) Raw() uint64 { return uint64(a) }

// Handle is implemented by host values that wrap a native pointer.
type Handle interface {
	Pointer() uint64
}
