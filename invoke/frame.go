package invoke

import (
	"fmt"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/argument"
	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/typelib"
)

// slotSize is the storage reserved for a non caller-allocated out value.
const slotSize = 8

// frame is the state of one call.
type frame struct {
	inv   *Invoker
	p     *plan
	scope *argument.Scope
	// vals holds each argument's lowered value.
	vals []argument.Argument
	// storage holds out and inout addresses.
	storage []uint64
	// owned is caller-allocated storage handed to the results.
	owned   []uint64
	lengths map[int]int
	errSlot uint64
	// notified are callbacks handed over with a destroy notify.
	notified []uint64
}

func (f *frame) conv() *argument.Converter { return f.inv.conv }

func (f *frame) path(arg string) []string { return []string{f.p.name, arg} }

func (f *frame) alloc(size uint32) (uint64, error) {
	if size == 0 {
		size = 1
	}
	addr, err := f.inv.lib.Allocator().Alloc(size, slotSize)
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseEncode, size, slotSize, err)
	}
	return addr, nil
}

// abandon frees caller-allocated storage when no result will own it.
func (f *frame) abandon() {
	for _, addr := range f.owned {
		f.inv.lib.Allocator().Free(addr)
	}
	f.owned = nil
}

// forget releases notified callbacks the callee never received.
func (f *frame) forget() {
	for _, ptr := range f.notified {
		f.conv().ReleaseCallback(ptr)
	}
	f.notified = nil
}

// lower builds the raw argument list.
func (f *frame) lower(args []any) ([]uint64, error) {
	p := f.p
	raw := make([]uint64, 0, len(p.sig.Params))
	if p.method {
		self, ok := Pointer(args[0])
		if !ok || self == 0 {
			return nil, errors.New(errors.PhaseEncode, errors.KindConversion).
				Path(p.name, "self").
				GoType(fmt.Sprintf("%T", args[0])).
				Detail("want receiver pointer").
				Cause(errors.NilPointer(errors.PhaseEncode, f.path("self"), "instance")).
				Build()
		}
		raw = append(raw, self)
	}

	if err := f.measure(args); err != nil {
		return nil, err
	}

	for i := range p.slots {
		s := &p.slots[i]
		v, err := f.lowerSlot(i, s, args)
		if err != nil {
			return nil, err
		}
		f.vals[i] = v
		raw = append(raw, v.Raw())
	}
	if err := f.notify(raw); err != nil {
		return nil, err
	}

	if p.throws {
		addr, err := f.alloc(slotSize)
		if err != nil {
			return nil, err
		}
		f.scope.Free(addr)
		f.errSlot = addr
		raw = append(raw, addr)
	}
	return raw, nil
}

// notify passes each notified-scope callback as its own user data and
// installs the destroy notify that releases it.
func (f *frame) notify(raw []uint64) error {
	p := f.p
	base := 0
	if p.method {
		base = 1
	}
	for i := range p.slots {
		s := &p.slots[i]
		if s.role != roleUser || s.arg.Scope() != typelib.ScopeNotified || f.vals[i] == 0 {
			continue
		}
		ptr := f.vals[i].Pointer()
		f.notified = append(f.notified, ptr)
		if j := s.arg.Closure(); j >= 0 && j < len(p.slots) && p.slots[j].role == roleClosure {
			raw[base+j] = ptr
		}
		j := s.arg.Destroy()
		if j < 0 || j >= len(p.slots) || p.slots[j].role != roleDestroy {
			continue
		}
		destroy, err := f.conv().DestroyNotify()
		if err != nil {
			return errors.Wrap(errors.PhaseEncode, errors.KindUnsupported, err, "destroy notify for "+s.name)
		}
		raw[base+j] = destroy
	}
	return nil
}

// measure derives the value of every length argument from the arrays that
// reference it.
func (f *frame) measure(args []any) error {
	for i := range f.p.slots {
		s := &f.p.slots[i]
		j := f.p.lengthSlot(s.typ)
		if j < 0 || s.host < 0 || f.p.slots[j].role != roleLength {
			continue
		}
		v := args[s.host]
		n := argument.Len(v)
		if n < 0 {
			if v != nil {
				return errors.New(errors.PhaseEncode, errors.KindConversion).
					Path(f.p.name, s.name).
					GoType(fmt.Sprintf("%T", v)).
					GIType(s.typ.String()).
					Detail("length of %s comes from %s and needs a slice", s.name, f.p.slots[j].name).
					Build()
			}
			n = 0
		}
		if prev, ok := f.lengths[j]; ok && prev != n {
			return errors.New(errors.PhaseEncode, errors.KindConversion).
				Path(f.p.name, s.name).
				Detail("arrays sharing %s differ in length: %d and %d", f.p.slots[j].name, prev, n).
				Build()
		}
		f.lengths[j] = n
	}
	return nil
}

func (f *frame) lowerSlot(i int, s *slot, args []any) (argument.Argument, error) {
	conv := f.conv()
	var in argument.Argument
	if s.dir != typelib.DirectionOut {
		switch s.role {
		case roleUser:
			a, err := conv.ToNative(args[s.host], s.typ, argument.Options{
				Path:          f.path(s.name),
				Scope:         f.scope,
				Nullable:      s.arg.MayBeNull() || s.arg.IsOptional(),
				Transfer:      transferOf(s),
				CallbackScope: s.arg.Scope(),
			})
			if err != nil {
				return 0, err
			}
			in = a
		case roleLength:
			a, err := conv.ToNative(f.lengths[i], s.typ, argument.Options{
				Path:  f.path(s.name),
				Scope: f.scope,
			})
			if err != nil {
				return 0, err
			}
			in = a
		}
		if s.dir == typelib.DirectionIn {
			return in, nil
		}
	}

	if s.arg.IsCallerAllocates() {
		addr, err := f.alloc(s.size)
		if err != nil {
			return 0, err
		}
		f.storage[i] = addr
		f.owned = append(f.owned, addr)
		return argument.FromPointer(addr), nil
	}
	addr, err := f.alloc(slotSize)
	if err != nil {
		return 0, err
	}
	f.scope.Free(addr)
	f.storage[i] = addr
	if s.dir == typelib.DirectionInOut {
		if err := conv.Store(addr, s.kind, in); err != nil {
			return 0, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "store "+s.name)
		}
	}
	return argument.FromPointer(addr), nil
}

// thrown returns the GError the callee stored, as a NativeError.
func (f *frame) thrown() error {
	conv := f.conv()
	ptr, err := giruntime.ReadPointer(conv.Memory, f.errSlot)
	if err != nil {
		return errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "read error slot")
	}
	if ptr == 0 {
		return nil
	}
	ne, err := conv.ReadGError(ptr)
	if err != nil {
		return errors.Wrap(errors.PhaseDecode, errors.KindConversion, err, "read GError")
	}
	conv.FreeError(ptr)
	return ne
}

// lift decodes the return value and the out arguments.
func (f *frame) lift(ret uint64) ([]any, error) {
	p := f.p
	if err := f.collectLengths(); err != nil {
		f.abandon()
		return nil, err
	}
	var results []any
	if p.sig.Result != giruntime.KindVoid && !p.skipRet {
		v, err := f.decode(argument.Argument(p.sig.Result.Normalize(ret)), p.ret, p.retXfer)
		if err != nil {
			f.abandon()
			return nil, err
		}
		results = append(results, v)
	}
	for i := range p.slots {
		s := &p.slots[i]
		if !s.out() || s.role != roleUser {
			continue
		}
		v, err := f.liftSlot(i, s)
		if err != nil {
			f.abandon()
			return nil, err
		}
		results = append(results, v)
	}
	f.owned = nil
	return results, nil
}

func (f *frame) liftSlot(i int, s *slot) (any, error) {
	conv := f.conv()
	addr := f.storage[i]
	if s.arg.IsCallerAllocates() {
		if s.typ.Tag() == typelib.TagArray {
			f.scope.Free(addr)
			return conv.FromNativeArray(argument.FromPointer(addr), s.typ, typelib.TransferNothing, -1)
		}
		if conv.Interfaces == nil {
			return addr, nil
		}
		return conv.FromNative(argument.FromPointer(addr), s.typ, typelib.TransferEverything)
	}
	a, err := conv.Load(addr, s.kind)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "load "+s.name)
	}
	return f.decode(a, s.typ, s.arg.Transfer())
}

func (f *frame) decode(a argument.Argument, ti info.TypeInfo, transfer typelib.Transfer) (any, error) {
	if j := f.p.lengthSlot(ti); j >= 0 {
		n, ok := f.lengths[j]
		if !ok {
			var err error
			if n, err = f.lengthOf(j); err != nil {
				return nil, err
			}
		}
		return f.conv().FromNativeArray(a, ti, transfer, n)
	}
	return f.conv().FromNative(a, ti, transfer)
}

// collectLengths reads back hidden length arguments the callee wrote.
func (f *frame) collectLengths() error {
	for j := range f.p.slots {
		s := &f.p.slots[j]
		if s.role != roleLength || !s.out() {
			continue
		}
		n, err := f.lengthOf(j)
		if err != nil {
			return err
		}
		f.lengths[j] = n
	}
	return nil
}

// lengthOf reads the value of argument j after the call.
func (f *frame) lengthOf(j int) (int, error) {
	s := &f.p.slots[j]
	a := f.vals[j]
	if s.out() {
		var err error
		if a, err = f.conv().Load(f.storage[j], s.kind); err != nil {
			return 0, errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "load "+s.name)
		}
	}
	n := lengthValue(a, s.kind)
	if n < 0 {
		return 0, errors.New(errors.PhaseDecode, errors.KindConversion).
			Path(f.p.name, s.name).
			Value(n).
			Detail("negative array length").
			Build()
	}
	return n, nil
}

func lengthValue(a argument.Argument, k giruntime.ValueKind) int {
	switch k {
	case giruntime.KindI8, giruntime.KindI16, giruntime.KindI32, giruntime.KindI64:
		return int(a.Int64())
	}
	return int(a.Uint64())
}
