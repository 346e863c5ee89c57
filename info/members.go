package info

import "github.com/wippyai/gi-runtime/typelib"

func memberAt(owner *BaseInfo, span typelib.Span, kind InfoKind, i int) (*BaseInfo, bool) {
	if i < 0 || i >= span.Count {
		return nil, false
	}
	return owner.child(kind, span.At(i)), true
}

func memberMethod(owner *BaseInfo, i int) (FunctionInfo, bool) {
	bi, ok := memberAt(owner, owner.layout().Methods, KindFunction, i)
	if !ok {
		return FunctionInfo{}, false
	}
	return FunctionInfo{CallableInfo{bi}}, true
}

func memberProperty(owner *BaseInfo, i int) (PropertyInfo, bool) {
	bi, ok := memberAt(owner, owner.layout().Properties, KindProperty, i)
	return PropertyInfo{bi}, ok
}

func memberSignal(owner *BaseInfo, i int) (SignalInfo, bool) {
	bi, ok := memberAt(owner, owner.layout().Signals, KindSignal, i)
	if !ok {
		return SignalInfo{}, false
	}
	return SignalInfo{CallableInfo{bi}}, true
}

func memberVFunc(owner *BaseInfo, i int) (VFuncInfo, bool) {
	bi, ok := memberAt(owner, owner.layout().VFuncs, KindVFunc, i)
	if !ok {
		return VFuncInfo{}, false
	}
	return VFuncInfo{CallableInfo{bi}}, true
}

func memberConstant(owner *BaseInfo, i int) (ConstantInfo, bool) {
	bi, ok := memberAt(owner, owner.layout().Constants, KindConstant, i)
	return ConstantInfo{bi}, ok
}

func memberField(owner *BaseInfo, i int) (FieldInfo, bool) {
	fields := owner.layout().Fields
	if i < 0 || i >= len(fields) {
		return FieldInfo{}, false
	}
	return FieldInfo{owner.child(KindField, fields[i])}, true
}

// findNamed scans span for a member whose name slot (at nameOff within the
// blob) reads name. Names are read straight from the image so misses
// materialize no infos.
func findNamed[T any](owner *BaseInfo, span typelib.Span, nameOff uint32, name string, get func(*BaseInfo, int) (T, bool)) (T, bool) {
	t := owner.src.tl
	for i := 0; i < span.Count; i++ {
		if t.CString(t.U32(span.At(i)+nameOff)) == name {
			return get(owner, i)
		}
	}
	var zero T
	return zero, false
}

func findMethod(owner *BaseInfo, name string) (FunctionInfo, bool) {
	return findNamed(owner, owner.layout().Methods, 4, name, memberMethod)
}

func findProperty(owner *BaseInfo, name string) (PropertyInfo, bool) {
	return findNamed(owner, owner.layout().Properties, 0, name, memberProperty)
}

func findSignal(owner *BaseInfo, name string) (SignalInfo, bool) {
	return findNamed(owner, owner.layout().Signals, 4, name, memberSignal)
}

func findVFunc(owner *BaseInfo, name string) (VFuncInfo, bool) {
	return findNamed(owner, owner.layout().VFuncs, 0, name, memberVFunc)
}

func findConstant(owner *BaseInfo, name string) (ConstantInfo, bool) {
	return findNamed(owner, owner.layout().Constants, 4, name, memberConstant)
}

func findField(owner *BaseInfo, name string) (FieldInfo, bool) {
	t := owner.src.tl
	for i, off := range owner.layout().Fields {
		if t.CString(t.U32(off)) == name {
			return memberField(owner, i)
		}
	}
	return FieldInfo{}, false
}

func collect[T any](n int, get func(int) (T, bool)) []T {
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		if v, ok := get(i); ok {
			out = append(out, v)
		}
	}
	return out
}
