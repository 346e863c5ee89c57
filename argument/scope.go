package argument

import giruntime "github.com/wippyai/gi-runtime"

// Scope collects the temporaries created while encoding the arguments of
// one call. A nil Scope records nothing; allocations then belong to the
// caller of ToNative.
type Scope struct {
	alloc  giruntime.Allocator
	frees  []uint64
	defers []func()
}

func NewScope(alloc giruntime.Allocator) *Scope {
	return &Scope{alloc: alloc}
}

// Free schedules addr for release when the scope ends.
func (s *Scope) Free(addr uint64) {
	if s == nil || addr == 0 {
		return
	}
	s.frees = append(s.frees, addr)
}

// Defer schedules fn to run when the scope ends.
func (s *Scope) Defer(fn func()) {
	if s == nil {
		return
	}
	s.defers = append(s.defers, fn)
}

// Pending returns the number of scheduled frees.
func (s *Scope) Pending() int {
	if s == nil {
		return 0
	}
	return len(s.frees)
}

// Release runs deferred functions and frees temporaries in reverse order.
// The scope may be reused afterwards.
func (s *Scope) Release() {
	if s == nil {
		return
	}
	for i := len(s.defers) - 1; i >= 0; i-- {
		s.defers[i]()
	}
	for i := len(s.frees) - 1; i >= 0; i-- {
		s.alloc.Free(s.frees[i])
	}
	s.defers = s.defers[:0]
	s.frees = s.frees[:0]
}
