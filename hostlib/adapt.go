package hostlib

import (
	"context"
	"math"
	"reflect"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/errors"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// goKind maps a Go parameter type to its slot.
func goKind(t reflect.Type) (giruntime.ValueKind, bool) {
	switch t.Kind() {
	case reflect.Bool:
		return giruntime.KindI32, true
	case reflect.Int8:
		return giruntime.KindI8, true
	case reflect.Int16:
		return giruntime.KindI16, true
	case reflect.Int32:
		return giruntime.KindI32, true
	case reflect.Int, reflect.Int64:
		return giruntime.KindI64, true
	case reflect.Uint8:
		return giruntime.KindU8, true
	case reflect.Uint16:
		return giruntime.KindU16, true
	case reflect.Uint32:
		return giruntime.KindU32, true
	case reflect.Uint, reflect.Uint64:
		return giruntime.KindU64, true
	case reflect.Float32:
		return giruntime.KindF32, true
	case reflect.Float64:
		return giruntime.KindF64, true
	case reflect.Uintptr, reflect.String:
		return giruntime.KindPointer, true
	}
	return giruntime.KindVoid, false
}

func (l *Library) adapt(name string, fn any) (*function, error) {
	switch h := fn.(type) {
	case HostFunc:
		return &function{lib: l, name: name, raw: h}, nil
	case func(context.Context, *Library, []uint64) (uint64, error):
		return &function{lib: l, name: name, raw: h}, nil
	}

	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return nil, errors.New(errors.PhaseLoad, errors.KindTypeMismatch).
			Path(l.name, name).
			GoType(reflect.TypeOf(fn).String()).
			Detail("handler must be a function").
			Build()
	}
	rt := rv.Type()
	f := &function{lib: l, name: name, typed: true}

	first := 0
	withCtx := rt.NumIn() > 0 && rt.In(0) == contextType
	if withCtx {
		first = 1
	}
	for i := first; i < rt.NumIn(); i++ {
		k, ok := goKind(rt.In(i))
		if !ok {
			return nil, unsupportedParam(l.name, name, rt.In(i))
		}
		f.params = append(f.params, k)
	}

	nout := rt.NumOut()
	withErr := nout > 0 && rt.Out(nout-1) == errorType
	if withErr {
		nout--
	}
	switch nout {
	case 0:
		f.result = giruntime.KindVoid
	case 1:
		k, ok := goKind(rt.Out(0))
		if !ok {
			return nil, unsupportedParam(l.name, name, rt.Out(0))
		}
		f.result = k
	default:
		return nil, errors.New(errors.PhaseLoad, errors.KindUnsupported).
			Path(l.name, name).
			GoType(rt.String()).
			Detail("at most one result besides error").
			Build()
	}

	f.raw = func(ctx context.Context, lib *Library, args []uint64) (uint64, error) {
		in := make([]reflect.Value, 0, rt.NumIn())
		if withCtx {
			in = append(in, reflect.ValueOf(ctx))
		}
		for i, a := range args {
			v, err := lib.toGo(a, rt.In(first+i))
			if err != nil {
				return 0, err
			}
			in = append(in, v)
		}
		out := rv.Call(in)
		if withErr {
			if err, _ := out[len(out)-1].Interface().(error); err != nil {
				return 0, err
			}
		}
		if nout == 0 {
			return 0, nil
		}
		return lib.fromGo(out[0])
	}
	return f, nil
}

func unsupportedParam(lib, name string, t reflect.Type) error {
	return errors.New(errors.PhaseLoad, errors.KindUnsupported).
		Path(lib, name).
		GoType(t.String()).
		Detail("unsupported parameter or result type").
		Build()
}

func (l *Library) toGo(raw uint64, t reflect.Type) (reflect.Value, error) {
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Bool:
		v.SetBool(uint32(raw) != 0)
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int, reflect.Int64:
		v.SetInt(int64(raw))
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint, reflect.Uint64, reflect.Uintptr:
		v.SetUint(raw)
	case reflect.Float32:
		v.SetFloat(float64(math.Float32frombits(uint32(raw))))
	case reflect.Float64:
		v.SetFloat(math.Float64frombits(raw))
	case reflect.String:
		if raw != 0 {
			s, err := giruntime.ReadCString(l.heap, raw)
			if err != nil {
				return v, err
			}
			v.SetString(s)
		}
	}
	return v, nil
}

func (l *Library) fromGo(v reflect.Value) (uint64, error) {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return 1, nil
		}
		return 0, nil
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int, reflect.Int64:
		return uint64(v.Int()), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint, reflect.Uint64, reflect.Uintptr:
		return v.Uint(), nil
	case reflect.Float32:
		return uint64(math.Float32bits(float32(v.Float()))), nil
	case reflect.Float64:
		return math.Float64bits(v.Float()), nil
	case reflect.String:
		return giruntime.WriteCString(l.heap, l.heap, v.String())
	}
	return 0, nil
}
