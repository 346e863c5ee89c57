package invoke

import (
	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/argument"
	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/typelib"
)

// role says where an argument's value comes from.
type role uint8

const (
	roleUser    role = iota // supplied by the caller
	roleLength              // element count of an array argument
	roleClosure             // callback user data
	roleDestroy             // callback destroy notify
	roleSkip                // annotated skip
)

type slot struct {
	arg  info.ArgInfo
	typ  info.TypeInfo
	name string
	// kind is the slot of the value itself; out arguments pass a pointer
	// to storage of this kind.
	kind giruntime.ValueKind
	// size is the storage allocated for caller-allocated outs.
	size uint32
	dir  typelib.Direction
	role role
	// host is the position among the caller's arguments, -1 when hidden.
	host int
}

func (s *slot) out() bool { return s.dir != typelib.DirectionIn }

// plan is the call frame layout derived from a callable's metadata.
type plan struct {
	ret     info.TypeInfo
	name    string
	slots   []slot
	sig     giruntime.Signature
	want    int
	method  bool
	throws  bool
	skipRet bool
	retXfer typelib.Transfer
}

func newPlan(c info.CallableInfo, ptrSize int) (*plan, error) {
	p := &plan{
		name:    c.QualifiedName(),
		ret:     c.ReturnType(),
		method:  c.IsMethod(),
		throws:  c.CanThrowGError(),
		skipRet: c.SkipReturn(),
		retXfer: c.ReturnTransfer(),
	}
	args := c.Args()
	p.slots = make([]slot, len(args))
	for i, a := range args {
		p.slots[i] = slot{arg: a, typ: a.Type(), name: a.Name(), dir: a.Direction(), host: -1}
	}

	mark := func(idx int, r role) {
		if idx >= 0 && idx < len(p.slots) && p.slots[idx].role == roleUser {
			p.slots[idx].role = r
		}
	}
	// A length is hidden when it travels in the same direction as its
	// array; an in length of an out array is chosen by the caller.
	if j := p.lengthSlot(p.ret); j >= 0 && p.slots[j].out() {
		mark(j, roleLength)
	}
	for i := range p.slots {
		s := &p.slots[i]
		if j := p.lengthSlot(s.typ); j >= 0 && j != i && s.out() == p.slots[j].out() {
			mark(j, roleLength)
		}
		if isCallback(s.typ) {
			mark(s.arg.Closure(), roleClosure)
			mark(s.arg.Destroy(), roleDestroy)
		} else if s.arg.Closure() >= 0 && s.typ.Tag() == typelib.TagVoid {
			mark(i, roleClosure)
		}
		if s.arg.IsSkip() {
			mark(i, roleSkip)
		}
	}

	if p.method {
		p.want++
		p.sig.Params = append(p.sig.Params, giruntime.KindPointer)
	}
	for i := range p.slots {
		s := &p.slots[i]
		if s.role == roleUser && s.dir != typelib.DirectionOut {
			s.host = p.want
			p.want++
		}
		if s.arg.IsCallerAllocates() {
			size, err := storageSize(s.typ, ptrSize)
			if err != nil {
				p.release()
				return nil, p.unsupported(s.name, s.typ, err)
			}
			s.kind, s.size = giruntime.KindPointer, size
		} else {
			k, err := argument.SlotKind(s.typ)
			if err != nil {
				p.release()
				return nil, p.unsupported(s.name, s.typ, err)
			}
			s.kind = k
		}
		if s.out() {
			p.sig.Params = append(p.sig.Params, giruntime.KindPointer)
		} else {
			p.sig.Params = append(p.sig.Params, s.kind)
		}
	}
	if p.throws {
		p.sig.Params = append(p.sig.Params, giruntime.KindPointer)
	}
	k, err := argument.SlotKind(p.ret)
	if err != nil {
		p.release()
		return nil, p.unsupported("return", p.ret, err)
	}
	p.sig.Result = k
	return p, nil
}

func (p *plan) unsupported(arg string, ti info.TypeInfo, cause error) error {
	return errors.New(errors.PhaseEncode, errors.KindConversion).
		Path(p.name, arg).
		GIType(ti.String()).
		Detail("no native slot").
		Cause(cause).
		Build()
}

func (p *plan) release() {
	for _, s := range p.slots {
		s.typ.Unref()
		s.arg.Unref()
	}
	p.ret.Unref()
}

// lengthSlot returns the length argument paired with an array type, or -1.
func (p *plan) lengthSlot(ti info.TypeInfo) int {
	if ti.Tag() != typelib.TagArray {
		return -1
	}
	j := ti.ArrayLength()
	if j < 0 || j >= len(p.slots) {
		return -1
	}
	return j
}

func isCallback(ti info.TypeInfo) bool {
	if ti.Tag() != typelib.TagInterface {
		return false
	}
	iface := ti.Interface()
	if iface == nil {
		return false
	}
	defer iface.Unref()
	return iface.Kind() == info.KindCallback
}

// storageSize is the size of caller-allocated storage for ti.
func storageSize(ti info.TypeInfo, ptrSize int) (uint32, error) {
	switch ti.Tag() {
	case typelib.TagInterface:
		iface := ti.Interface()
		if iface == nil {
			break
		}
		defer iface.Unref()
		switch iface.Kind() {
		case info.KindStruct, info.KindBoxed:
			return iface.MustStruct().Size(), nil
		case info.KindUnion:
			return iface.MustUnion().Size(), nil
		}
	case typelib.TagArray:
		n := ti.ArrayFixedSize()
		elem, ok := ti.ElementType()
		if n < 0 || !ok {
			break
		}
		defer elem.Unref()
		size, err := argument.ElementSize(elem, ptrSize)
		if err != nil {
			return 0, err
		}
		return size * uint32(n), nil
	}
	return 0, errors.Unsupported(errors.PhaseEncode, "caller-allocated "+ti.String())
}
