package binding

import (
	"context"
	"strings"

	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/typelib"
)

// Function is a callable namespace function, constructor or method.
type Function struct {
	mod   *Module
	owner *Class
	fi    info.FunctionInfo
}

func (f *Function) Name() string { return f.fi.Name() }

// TypeName returns "Owner.name" for members and the bare name otherwise.
func (f *Function) TypeName() string {
	if f.owner != nil {
		return f.owner.Name() + "." + f.fi.Name()
	}
	return f.fi.Name()
}

func (f *Function) Symbol() string          { return f.fi.Symbol() }
func (f *Function) Info() info.FunctionInfo { return f.fi }
func (f *Function) Owner() *Class           { return f.owner }
func (f *Function) IsMethod() bool          { return f.fi.IsMethod() }
func (f *Function) IsConstructor() bool     { return f.fi.IsConstructor() }
func (f *Function) Throws() bool            { return f.fi.CanThrowGError() }

// Call invokes the function through its module's library. Methods take
// the receiver first.
func (f *Function) Call(ctx context.Context, args ...any) ([]any, error) {
	return f.mod.inv.Call(ctx, f.fi, args...)
}

func (f *Function) String() string {
	return Describe(f.TypeName(), f.fi.CallableInfo)
}

// Describe renders a callable as "name(in a: gint32, out b: gchar*) -> gboolean throws".
func Describe(name string, c info.CallableInfo) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')
	first := true
	if c.IsMethod() {
		b.WriteString("self")
		first = false
	}
	for _, a := range c.Args() {
		if !first {
			b.WriteString(", ")
		}
		first = false
		switch a.Direction() {
		case typelib.DirectionOut:
			b.WriteString("out ")
		case typelib.DirectionInOut:
			b.WriteString("inout ")
		}
		b.WriteString(a.Name())
		b.WriteString(": ")
		t := a.Type()
		b.WriteString(t.String())
		t.Unref()
		if a.MayBeNull() {
			b.WriteByte('?')
		}
		a.Unref()
	}
	b.WriteByte(')')
	if !c.SkipReturn() {
		rt := c.ReturnType()
		if rt.Tag() != typelib.TagVoid || rt.IsPointer() {
			b.WriteString(" -> ")
			b.WriteString(rt.String())
		}
		rt.Unref()
	}
	if c.CanThrowGError() {
		b.WriteString(" throws")
	}
	return b.String()
}
