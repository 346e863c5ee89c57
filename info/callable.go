package info

import (
	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/typelib"
)

// Release unrefs every info in infos.
func Release[T interface{ Unref() }](infos []T) {
	for _, i := range infos {
		i.Unref()
	}
}

// CallableInfo is the signature view shared by functions, callbacks,
// signals and virtual functions.
type CallableInfo struct{ *BaseInfo }

func (c CallableInfo) signature() uint32 {
	t := c.src.tl
	switch c.kind {
	case KindFunction, KindSignal:
		return t.U32(c.offset + 12)
	case KindCallback:
		return t.U32(c.offset + 8)
	case KindVFunc:
		return t.U32(c.offset + 16)
	}
	return 0
}

func (c CallableInfo) sigFlags() uint16 {
	return c.src.tl.U16(c.signature() + 4)
}

// NArgs returns the number of arguments, not counting the instance.
func (c CallableInfo) NArgs() int {
	return int(c.src.tl.U16(c.signature() + 6))
}

// Arg returns argument i. It panics when i is out of range.
func (c CallableInfo) Arg(i int) ArgInfo {
	if i < 0 || i >= c.NArgs() {
		panic(errors.OutOfBounds(errors.PhaseParse, []string{c.QualifiedName()}, i, c.NArgs()))
	}
	return ArgInfo{c.child(KindArg, c.signature()+typelib.SignatureBlobSize+uint32(i)*typelib.ArgBlobSize)}
}

// Args returns every argument. Release them with Release.
func (c CallableInfo) Args() []ArgInfo {
	n := c.NArgs()
	out := make([]ArgInfo, n)
	for i := range out {
		out[i] = c.Arg(i)
	}
	return out
}

// ReturnType returns the type of the return value.
func (c CallableInfo) ReturnType() TypeInfo {
	return TypeInfo{c.child(KindType, c.signature())}
}

// ReturnTransfer returns the ownership transfer of the return value.
func (c CallableInfo) ReturnTransfer() typelib.Transfer {
	f := c.sigFlags()
	switch {
	case f&(1<<1) != 0:
		return typelib.TransferEverything
	case f&(1<<2) != 0:
		return typelib.TransferContainer
	}
	return typelib.TransferNothing
}

// MayReturnNull reports whether the return value is nullable.
func (c CallableInfo) MayReturnNull() bool { return c.sigFlags()&1 != 0 }

// SkipReturn reports whether the return value should be hidden from callers.
func (c CallableInfo) SkipReturn() bool { return c.sigFlags()&(1<<3) != 0 }

// InstanceTransfer returns the ownership transfer of the instance argument.
func (c CallableInfo) InstanceTransfer() typelib.Transfer {
	if c.sigFlags()&(1<<4) != 0 {
		return typelib.TransferEverything
	}
	return typelib.TransferNothing
}

// CanThrowGError reports whether the callable takes a trailing GError**.
func (c CallableInfo) CanThrowGError() bool {
	if c.sigFlags()&(1<<5) != 0 {
		return true
	}
	t := c.src.tl
	switch c.kind {
	case KindFunction:
		return t.U16(c.offset+2)&(1<<5) != 0
	case KindVFunc:
		return t.U16(c.offset+4)&(1<<4) != 0
	}
	return false
}

// IsMethod reports whether the callable takes an instance argument.
func (c CallableInfo) IsMethod() bool {
	t := c.src.tl
	switch c.kind {
	case KindFunction:
		constructor := t.U16(c.offset+2)&(1<<3) != 0
		static := t.U16(c.offset+16)&1 != 0
		return !constructor && !static
	case KindSignal, KindVFunc:
		return true
	}
	return false
}

// FunctionFlags describes a function.
type FunctionFlags uint8

const (
	FunctionIsMethod FunctionFlags = 1 << iota
	FunctionIsConstructor
	FunctionIsGetter
	FunctionIsSetter
	FunctionWrapsVFunc
	FunctionThrows
)

// FunctionInfo describes a function, method or constructor.
type FunctionInfo struct{ CallableInfo }

func (f FunctionInfo) blobFlags() uint16 { return f.src.tl.U16(f.offset + 2) }

// Symbol returns the exported C symbol.
func (f FunctionInfo) Symbol() string {
	return f.src.tl.CString(f.src.tl.U32(f.offset + 8))
}

// Flags returns the function flags.
func (f FunctionInfo) Flags() FunctionFlags {
	var fl FunctionFlags
	bf := f.blobFlags()
	if f.IsMethod() {
		fl |= FunctionIsMethod
	}
	if bf&(1<<3) != 0 {
		fl |= FunctionIsConstructor
	}
	if bf&(1<<2) != 0 {
		fl |= FunctionIsGetter
	}
	if bf&(1<<1) != 0 {
		fl |= FunctionIsSetter
	}
	if bf&(1<<4) != 0 {
		fl |= FunctionWrapsVFunc
	}
	if f.CanThrowGError() {
		fl |= FunctionThrows
	}
	return fl
}

// IsConstructor reports whether the function creates an instance of its container.
func (f FunctionInfo) IsConstructor() bool { return f.Flags()&FunctionIsConstructor != 0 }

func (f FunctionInfo) index() int { return int(f.blobFlags() >> 6) }

// Property returns the property a getter or setter belongs to.
func (f FunctionInfo) Property() (PropertyInfo, bool) {
	if f.Flags()&(FunctionIsGetter|FunctionIsSetter) == 0 || f.container == nil {
		return PropertyInfo{}, false
	}
	return memberProperty(f.container, f.index())
}

// VFunc returns the virtual function this function invokes.
func (f FunctionInfo) VFunc() (VFuncInfo, bool) {
	if f.Flags()&FunctionWrapsVFunc == 0 || f.container == nil {
		return VFuncInfo{}, false
	}
	return memberVFunc(f.container, f.index())
}

// CallbackInfo describes a callback type.
type CallbackInfo struct{ CallableInfo }

// SignalFlags describes signal emission.
type SignalFlags uint16

const (
	SignalRunFirst SignalFlags = 1 << iota
	SignalRunLast
	SignalRunCleanup
	SignalNoRecurse
	SignalDetailed
	SignalAction
	SignalNoHooks
)

// SignalInfo describes a signal of an object or interface.
type SignalInfo struct{ CallableInfo }

// Flags returns the emission flags.
func (s SignalInfo) Flags() SignalFlags {
	return SignalFlags(s.src.tl.U16(s.offset)>>1) & 0x7f
}

// TrueStopsEmit reports whether a true handler return stops emission.
func (s SignalInfo) TrueStopsEmit() bool {
	return s.src.tl.U16(s.offset)&(1<<9) != 0
}

// ClassClosure returns the virtual function run as the class handler.
func (s SignalInfo) ClassClosure() (VFuncInfo, bool) {
	if s.src.tl.U16(s.offset)&(1<<8) == 0 || s.container == nil {
		return VFuncInfo{}, false
	}
	return memberVFunc(s.container, int(s.src.tl.U16(s.offset+2)))
}

// VFuncFlags describes a virtual function.
type VFuncFlags uint8

const (
	VFuncMustChainUp VFuncFlags = 1 << iota
	VFuncMustOverride
	VFuncMustNotOverride
)

// VFuncInfo describes a virtual function slot of a class or interface struct.
type VFuncInfo struct{ CallableInfo }

// Flags returns the vfunc flags.
func (v VFuncInfo) Flags() VFuncFlags {
	return VFuncFlags(v.src.tl.U16(v.offset+4)) & 0x7
}

// StructOffset returns the byte offset of the slot in the class struct.
func (v VFuncInfo) StructOffset() int {
	return int(v.src.tl.U16(v.offset + 8))
}

// Signal returns the signal this vfunc is the class closure of.
func (v VFuncInfo) Signal() (SignalInfo, bool) {
	if v.src.tl.U16(v.offset+4)&(1<<3) == 0 || v.container == nil {
		return SignalInfo{}, false
	}
	return memberSignal(v.container, int(v.src.tl.U16(v.offset+6)))
}

// Invoker returns the method that calls this vfunc.
func (v VFuncInfo) Invoker() (FunctionInfo, bool) {
	idx := int(v.src.tl.U16(v.offset+10) & typelib.NoIndex)
	if idx == typelib.NoIndex || v.container == nil {
		return FunctionInfo{}, false
	}
	return memberMethod(v.container, idx)
}

// ArgInfo describes one callable parameter.
type ArgInfo struct{ *BaseInfo }

func (a ArgInfo) flags() uint32 { return a.src.tl.U32(a.offset + 4) }

// Direction returns whether the argument is in, out or inout.
func (a ArgInfo) Direction() typelib.Direction {
	f := a.flags()
	in, out := f&1 != 0, f&2 != 0
	switch {
	case in && out:
		return typelib.DirectionInOut
	case out:
		return typelib.DirectionOut
	}
	return typelib.DirectionIn
}

// Transfer returns who owns the value after the call.
func (a ArgInfo) Transfer() typelib.Transfer {
	f := a.flags()
	switch {
	case f&(1<<5) != 0:
		return typelib.TransferEverything
	case f&(1<<6) != 0:
		return typelib.TransferContainer
	}
	return typelib.TransferNothing
}

// MayBeNull reports whether NULL is an acceptable value.
func (a ArgInfo) MayBeNull() bool { return a.flags()&(1<<3) != 0 }

// IsOptional reports whether an out argument may be passed as NULL.
func (a ArgInfo) IsOptional() bool { return a.flags()&(1<<4) != 0 }

// IsCallerAllocates reports whether the caller provides storage for an out argument.
func (a ArgInfo) IsCallerAllocates() bool { return a.flags()&(1<<2) != 0 }

// IsReturnValue reports whether the argument is the callable's real return value.
func (a ArgInfo) IsReturnValue() bool { return a.flags()&(1<<7) != 0 }

// IsSkip reports whether the argument should be hidden from callers.
func (a ArgInfo) IsSkip() bool { return a.flags()&(1<<11) != 0 }

// Scope returns the lifetime of a callback argument.
func (a ArgInfo) Scope() typelib.ScopeType {
	return typelib.ScopeType(a.flags() >> 8 & 7)
}

// Closure returns the index of the user data argument, -1 when absent.
func (a ArgInfo) Closure() int { return int(a.src.tl.I8(a.offset + 8)) }

// Destroy returns the index of the destroy notify argument, -1 when absent.
func (a ArgInfo) Destroy() int { return int(a.src.tl.I8(a.offset + 9)) }

// Type returns the argument type.
func (a ArgInfo) Type() TypeInfo {
	return TypeInfo{a.child(KindType, a.offset+12)}
}
