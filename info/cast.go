package info

import "github.com/wippyai/gi-runtime/errors"

// Checked downcasts. A view shares the handle it was cast from; it does not
// take a reference of its own.

func (b *BaseInfo) mismatch(want string) *errors.Error {
	return errors.TypeMismatch(errors.PhaseParse, []string{b.Namespace(), b.Name()}, b.kind.String(), want)
}

func (b *BaseInfo) is(kinds ...InfoKind) bool {
	for _, k := range kinds {
		if b.kind == k {
			return true
		}
	}
	return false
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// AsCallable casts to the signature view of functions, callbacks, signals and vfuncs.
func (b *BaseInfo) AsCallable() (CallableInfo, error) {
	if !b.kind.IsCallable() {
		return CallableInfo{}, b.mismatch("callable")
	}
	return CallableInfo{b}, nil
}

// AsFunction casts to FunctionInfo.
func (b *BaseInfo) AsFunction() (FunctionInfo, error) {
	if b.kind != KindFunction {
		return FunctionInfo{}, b.mismatch("function")
	}
	return FunctionInfo{CallableInfo{b}}, nil
}

// AsCallback casts to CallbackInfo.
func (b *BaseInfo) AsCallback() (CallbackInfo, error) {
	if b.kind != KindCallback {
		return CallbackInfo{}, b.mismatch("callback")
	}
	return CallbackInfo{CallableInfo{b}}, nil
}

// AsSignal casts to SignalInfo.
func (b *BaseInfo) AsSignal() (SignalInfo, error) {
	if b.kind != KindSignal {
		return SignalInfo{}, b.mismatch("signal")
	}
	return SignalInfo{CallableInfo{b}}, nil
}

// AsVFunc casts to VFuncInfo.
func (b *BaseInfo) AsVFunc() (VFuncInfo, error) {
	if b.kind != KindVFunc {
		return VFuncInfo{}, b.mismatch("vfunc")
	}
	return VFuncInfo{CallableInfo{b}}, nil
}

// AsRegisteredType casts to the GType-carrying view.
func (b *BaseInfo) AsRegisteredType() (RegisteredTypeInfo, error) {
	if !b.kind.IsRegisteredType() {
		return RegisteredTypeInfo{}, b.mismatch("registered type")
	}
	return RegisteredTypeInfo{b}, nil
}

// AsStruct casts structs and boxed types to StructInfo.
func (b *BaseInfo) AsStruct() (StructInfo, error) {
	if !b.is(KindStruct, KindBoxed) {
		return StructInfo{}, b.mismatch("struct")
	}
	return StructInfo{RegisteredTypeInfo{b}}, nil
}

// AsUnion casts to UnionInfo.
func (b *BaseInfo) AsUnion() (UnionInfo, error) {
	if b.kind != KindUnion {
		return UnionInfo{}, b.mismatch("union")
	}
	return UnionInfo{RegisteredTypeInfo{b}}, nil
}

// AsEnum casts enums and flags to EnumInfo.
func (b *BaseInfo) AsEnum() (EnumInfo, error) {
	if !b.is(KindEnum, KindFlags) {
		return EnumInfo{}, b.mismatch("enum")
	}
	return EnumInfo{RegisteredTypeInfo{b}}, nil
}

// AsObject casts to ObjectInfo.
func (b *BaseInfo) AsObject() (ObjectInfo, error) {
	if b.kind != KindObject {
		return ObjectInfo{}, b.mismatch("object")
	}
	return ObjectInfo{RegisteredTypeInfo{b}}, nil
}

// AsInterface casts to InterfaceInfo.
func (b *BaseInfo) AsInterface() (InterfaceInfo, error) {
	if b.kind != KindInterface {
		return InterfaceInfo{}, b.mismatch("interface")
	}
	return InterfaceInfo{RegisteredTypeInfo{b}}, nil
}

// AsConstant casts to ConstantInfo.
func (b *BaseInfo) AsConstant() (ConstantInfo, error) {
	if b.kind != KindConstant {
		return ConstantInfo{}, b.mismatch("constant")
	}
	return ConstantInfo{b}, nil
}

// AsValue casts to ValueInfo.
func (b *BaseInfo) AsValue() (ValueInfo, error) {
	if b.kind != KindValue {
		return ValueInfo{}, b.mismatch("value")
	}
	return ValueInfo{b}, nil
}

// AsProperty casts to PropertyInfo.
func (b *BaseInfo) AsProperty() (PropertyInfo, error) {
	if b.kind != KindProperty {
		return PropertyInfo{}, b.mismatch("property")
	}
	return PropertyInfo{b}, nil
}

// AsField casts to FieldInfo.
func (b *BaseInfo) AsField() (FieldInfo, error) {
	if b.kind != KindField {
		return FieldInfo{}, b.mismatch("field")
	}
	return FieldInfo{b}, nil
}

// AsArg casts to ArgInfo.
func (b *BaseInfo) AsArg() (ArgInfo, error) {
	if b.kind != KindArg {
		return ArgInfo{}, b.mismatch("arg")
	}
	return ArgInfo{b}, nil
}

// AsType casts to TypeInfo.
func (b *BaseInfo) AsType() (TypeInfo, error) {
	if b.kind != KindType {
		return TypeInfo{}, b.mismatch("type")
	}
	return TypeInfo{b}, nil
}

// MustCallable is AsCallable that panics on mismatch.
func (b *BaseInfo) MustCallable() CallableInfo { return must(b.AsCallable()) }

// MustFunction is AsFunction that panics on mismatch.
func (b *BaseInfo) MustFunction() FunctionInfo { return must(b.AsFunction()) }

// MustCallback is AsCallback that panics on mismatch.
func (b *BaseInfo) MustCallback() CallbackInfo { return must(b.AsCallback()) }

// MustStruct is AsStruct that panics on mismatch.
func (b *BaseInfo) MustStruct() StructInfo { return must(b.AsStruct()) }

// MustUnion is AsUnion that panics on mismatch.
func (b *BaseInfo) MustUnion() UnionInfo { return must(b.AsUnion()) }

// MustEnum is AsEnum that panics on mismatch.
func (b *BaseInfo) MustEnum() EnumInfo { return must(b.AsEnum()) }

// MustObject is AsObject that panics on mismatch.
func (b *BaseInfo) MustObject() ObjectInfo { return must(b.AsObject()) }

// MustInterface is AsInterface that panics on mismatch.
func (b *BaseInfo) MustInterface() InterfaceInfo { return must(b.AsInterface()) }

// MustConstant is AsConstant that panics on mismatch.
func (b *BaseInfo) MustConstant() ConstantInfo { return must(b.AsConstant()) }
