package info

import "github.com/wippyai/gi-runtime/typelib"

// ObjectInfo describes a class. A class has at most one parent and
// implements an ordered set of interfaces.
type ObjectInfo struct{ RegisteredTypeInfo }

func (o ObjectInfo) flags() uint16 { return o.src.tl.U16(o.offset + 2) }

// IsAbstract reports whether the class cannot be instantiated.
func (o ObjectInfo) IsAbstract() bool { return o.flags()&(1<<1) != 0 }

// IsFundamental reports whether the class is a fundamental type with its
// own reference counting functions.
func (o ObjectInfo) IsFundamental() bool { return o.flags()&(1<<2) != 0 }

// IsFinal reports whether the class cannot be derived from.
func (o ObjectInfo) IsFinal() bool { return o.flags()&(1<<3) != 0 }

// ParentRef returns the parent entry as recorded, possibly unresolved, or
// nil for root classes.
func (o ObjectInfo) ParentRef() *BaseInfo {
	idx := o.src.tl.U16(o.offset + 16)
	if idx == 0 {
		return nil
	}
	return o.resolve(idx)
}

// Parent returns the parent class. ok is false for root classes and for
// parents that cannot be resolved.
func (o ObjectInfo) Parent() (ObjectInfo, bool) {
	bi := o.ParentRef()
	if bi == nil {
		return ObjectInfo{}, false
	}
	p, err := bi.AsObject()
	if err != nil {
		bi.Unref()
		return ObjectInfo{}, false
	}
	return p, true
}

// ClassStruct returns the class struct.
func (o ObjectInfo) ClassStruct() (StructInfo, bool) {
	return structRef(o.BaseInfo, o.src.tl.U16(o.offset+18))
}

func structRef(b *BaseInfo, idx uint16) (StructInfo, bool) {
	if idx == 0 {
		return StructInfo{}, false
	}
	bi := b.resolve(idx)
	s, err := bi.AsStruct()
	if err != nil {
		bi.Unref()
		return StructInfo{}, false
	}
	return s, true
}

// RefFunction returns the symbol referencing instances of fundamental types.
func (o ObjectInfo) RefFunction() string { return o.src.tl.CString(o.src.tl.U32(o.offset + 36)) }

// UnrefFunction returns the symbol releasing instances of fundamental types.
func (o ObjectInfo) UnrefFunction() string { return o.src.tl.CString(o.src.tl.U32(o.offset + 40)) }

// SetValueFunction returns the symbol storing an instance in a GValue.
func (o ObjectInfo) SetValueFunction() string { return o.src.tl.CString(o.src.tl.U32(o.offset + 44)) }

// GetValueFunction returns the symbol reading an instance from a GValue.
func (o ObjectInfo) GetValueFunction() string { return o.src.tl.CString(o.src.tl.U32(o.offset + 48)) }

// NInterfaces returns the number of implemented interfaces.
func (o ObjectInfo) NInterfaces() int { return o.layout().Interfaces.Count }

// Interface returns implemented interface i. Interfaces of namespaces that
// cannot be loaded come back with KindUnresolved.
func (o ObjectInfo) Interface(i int) (*BaseInfo, bool) {
	return refAt(o.BaseInfo, o.layout().Interfaces, i)
}

// Interfaces returns the implemented interfaces in declaration order.
// Release them with Release.
func (o ObjectInfo) Interfaces() []*BaseInfo { return collect(o.NInterfaces(), o.Interface) }

func refAt(b *BaseInfo, span typelib.Span, i int) (*BaseInfo, bool) {
	if i < 0 || i >= span.Count {
		return nil, false
	}
	return b.resolve(b.src.tl.U16(span.At(i))), true
}

// NFields returns the number of instance fields.
func (o ObjectInfo) NFields() int { return len(o.layout().Fields) }

// Field returns field i.
func (o ObjectInfo) Field(i int) (FieldInfo, bool) { return memberField(o.BaseInfo, i) }

// Fields returns every field.
func (o ObjectInfo) Fields() []FieldInfo { return collect(o.NFields(), o.Field) }

// NProperties returns the number of properties.
func (o ObjectInfo) NProperties() int { return o.layout().Properties.Count }

// Property returns property i.
func (o ObjectInfo) Property(i int) (PropertyInfo, bool) { return memberProperty(o.BaseInfo, i) }

// Properties returns every property.
func (o ObjectInfo) Properties() []PropertyInfo { return collect(o.NProperties(), o.Property) }

// FindProperty returns the property named name, without walking parents.
func (o ObjectInfo) FindProperty(name string) (PropertyInfo, bool) {
	return findProperty(o.BaseInfo, name)
}

// NMethods returns the number of methods.
func (o ObjectInfo) NMethods() int { return o.layout().Methods.Count }

// Method returns method i.
func (o ObjectInfo) Method(i int) (FunctionInfo, bool) { return memberMethod(o.BaseInfo, i) }

// Methods returns every method.
func (o ObjectInfo) Methods() []FunctionInfo { return collect(o.NMethods(), o.Method) }

// FindMethod returns the method named name, without walking parents.
func (o ObjectInfo) FindMethod(name string) (FunctionInfo, bool) { return findMethod(o.BaseInfo, name) }

// NSignals returns the number of signals.
func (o ObjectInfo) NSignals() int { return o.layout().Signals.Count }

// Signal returns signal i.
func (o ObjectInfo) Signal(i int) (SignalInfo, bool) { return memberSignal(o.BaseInfo, i) }

// Signals returns every signal.
func (o ObjectInfo) Signals() []SignalInfo { return collect(o.NSignals(), o.Signal) }

// FindSignal returns the signal named name.
func (o ObjectInfo) FindSignal(name string) (SignalInfo, bool) { return findSignal(o.BaseInfo, name) }

// NVFuncs returns the number of virtual functions.
func (o ObjectInfo) NVFuncs() int { return o.layout().VFuncs.Count }

// VFunc returns virtual function i.
func (o ObjectInfo) VFunc(i int) (VFuncInfo, bool) { return memberVFunc(o.BaseInfo, i) }

// VFuncs returns every virtual function.
func (o ObjectInfo) VFuncs() []VFuncInfo { return collect(o.NVFuncs(), o.VFunc) }

// FindVFunc returns the virtual function named name.
func (o ObjectInfo) FindVFunc(name string) (VFuncInfo, bool) { return findVFunc(o.BaseInfo, name) }

// NConstants returns the number of constants.
func (o ObjectInfo) NConstants() int { return o.layout().Constants.Count }

// Constant returns constant i.
func (o ObjectInfo) Constant(i int) (ConstantInfo, bool) { return memberConstant(o.BaseInfo, i) }

// Constants returns every constant.
func (o ObjectInfo) Constants() []ConstantInfo { return collect(o.NConstants(), o.Constant) }

// FindConstant returns the constant named name.
func (o ObjectInfo) FindConstant(name string) (ConstantInfo, bool) {
	return findConstant(o.BaseInfo, name)
}

// InterfaceInfo describes an interface.
type InterfaceInfo struct{ RegisteredTypeInfo }

// IfaceStruct returns the interface struct.
func (i InterfaceInfo) IfaceStruct() (StructInfo, bool) {
	return structRef(i.BaseInfo, i.src.tl.U16(i.offset+16))
}

// NPrerequisites returns the number of prerequisite types.
func (i InterfaceInfo) NPrerequisites() int { return i.layout().Interfaces.Count }

// Prerequisite returns prerequisite n, an object or interface.
func (i InterfaceInfo) Prerequisite(n int) (*BaseInfo, bool) {
	return refAt(i.BaseInfo, i.layout().Interfaces, n)
}

// Prerequisites returns every prerequisite.
func (i InterfaceInfo) Prerequisites() []*BaseInfo {
	return collect(i.NPrerequisites(), i.Prerequisite)
}

// NProperties returns the number of properties.
func (i InterfaceInfo) NProperties() int { return i.layout().Properties.Count }

// Property returns property n.
func (i InterfaceInfo) Property(n int) (PropertyInfo, bool) { return memberProperty(i.BaseInfo, n) }

// Properties returns every property.
func (i InterfaceInfo) Properties() []PropertyInfo { return collect(i.NProperties(), i.Property) }

// FindProperty returns the property named name.
func (i InterfaceInfo) FindProperty(name string) (PropertyInfo, bool) {
	return findProperty(i.BaseInfo, name)
}

// NMethods returns the number of methods.
func (i InterfaceInfo) NMethods() int { return i.layout().Methods.Count }

// Method returns method n.
func (i InterfaceInfo) Method(n int) (FunctionInfo, bool) { return memberMethod(i.BaseInfo, n) }

// Methods returns every method.
func (i InterfaceInfo) Methods() []FunctionInfo { return collect(i.NMethods(), i.Method) }

// FindMethod returns the method named name.
func (i InterfaceInfo) FindMethod(name string) (FunctionInfo, bool) {
	return findMethod(i.BaseInfo, name)
}

// NSignals returns the number of signals.
func (i InterfaceInfo) NSignals() int { return i.layout().Signals.Count }

// Signal returns signal n.
func (i InterfaceInfo) Signal(n int) (SignalInfo, bool) { return memberSignal(i.BaseInfo, n) }

// Signals returns every signal.
func (i InterfaceInfo) Signals() []SignalInfo { return collect(i.NSignals(), i.Signal) }

// FindSignal returns the signal named name.
func (i InterfaceInfo) FindSignal(name string) (SignalInfo, bool) {
	return findSignal(i.BaseInfo, name)
}

// NVFuncs returns the number of virtual functions.
func (i InterfaceInfo) NVFuncs() int { return i.layout().VFuncs.Count }

// VFunc returns virtual function n.
func (i InterfaceInfo) VFunc(n int) (VFuncInfo, bool) { return memberVFunc(i.BaseInfo, n) }

// VFuncs returns every virtual function.
func (i InterfaceInfo) VFuncs() []VFuncInfo { return collect(i.NVFuncs(), i.VFunc) }

// FindVFunc returns the virtual function named name.
func (i InterfaceInfo) FindVFunc(name string) (VFuncInfo, bool) { return findVFunc(i.BaseInfo, name) }

// NConstants returns the number of constants.
func (i InterfaceInfo) NConstants() int { return i.layout().Constants.Count }

// Constant returns constant n.
func (i InterfaceInfo) Constant(n int) (ConstantInfo, bool) { return memberConstant(i.BaseInfo, n) }

// Constants returns every constant.
func (i InterfaceInfo) Constants() []ConstantInfo { return collect(i.NConstants(), i.Constant) }

// PropertyFlags describes a property.
type PropertyFlags uint8

const (
	PropertyReadable PropertyFlags = 1 << iota
	PropertyWritable
	PropertyConstruct
	PropertyConstructOnly
)

// PropertyInfo describes a property of an object or interface.
type PropertyInfo struct{ *BaseInfo }

func (p PropertyInfo) blobFlags() uint32 { return p.src.tl.U32(p.offset + 4) }

// Flags returns the access flags.
func (p PropertyInfo) Flags() PropertyFlags {
	return PropertyFlags(p.blobFlags()>>1) & 0xf
}

// Transfer returns the ownership transfer of values read from the property.
func (p PropertyInfo) Transfer() typelib.Transfer {
	f := p.blobFlags()
	switch {
	case f&(1<<5) != 0:
		return typelib.TransferEverything
	case f&(1<<6) != 0:
		return typelib.TransferContainer
	}
	return typelib.TransferNothing
}

// Type returns the property type.
func (p PropertyInfo) Type() TypeInfo {
	return TypeInfo{p.child(KindType, p.offset+12)}
}

func (p PropertyInfo) accessor(shift uint) (FunctionInfo, bool) {
	idx := int(p.src.tl.U32(p.offset+8) >> shift & typelib.NoIndex)
	if idx == typelib.NoIndex || p.container == nil {
		return FunctionInfo{}, false
	}
	return memberMethod(p.container, idx)
}

// Setter returns the method setting the property.
func (p PropertyInfo) Setter() (FunctionInfo, bool) { return p.accessor(0) }

// Getter returns the method reading the property.
func (p PropertyInfo) Getter() (FunctionInfo, bool) { return p.accessor(10) }
