// Package finalize runs native destructors for Go wrapper objects.
//
// A Registry pairs a wrapper with the native pointer it owns. The
// destructor runs exactly once: when the wrapper becomes unreachable, or
// earlier through Registration.Release. Close drops every registration
// without running destructors, which is the teardown behavior.
//
//	reg, err := finalize.Track(registry, obj, ptr, unref)
//	...
//	reg.Release() // optional, deterministic
package finalize

import (
	"runtime"
	"sync"
	"sync/atomic"
	"weak"

	"go.uber.org/zap"

	"github.com/wippyai/gi-runtime/errors"
)

// Registry tracks wrapper objects and their native destructors.
type Registry struct {
	entries   map[uint64]*Registration
	byWrapper map[any]*Registration
	observers map[uint64]Observer
	next      uint64
	nextObs   uint64
	mu        sync.Mutex
	obsMu     sync.RWMutex
	closed    bool
}

// Registration is one tracked wrapper.
type Registration struct {
	reg     *Registry
	destroy Destructor
	key     any
	cleanup runtime.Cleanup
	id      uint64
	ptr     uint64
	done    atomic.Bool
}

func NewRegistry() *Registry {
	return &Registry{
		entries:   make(map[uint64]*Registration),
		byWrapper: make(map[any]*Registration),
		observers: make(map[uint64]Observer),
	}
}

// Track registers destroy to run for ptr once wrapper is unreachable.
// Tracking a wrapper again replaces its previous registration without
// running the old destructor.
func Track[T any](r *Registry, wrapper *T, ptr uint64, destroy Destructor) (*Registration, error) {
	if wrapper == nil {
		return nil, errors.InvalidInput(errors.PhaseFinalize, "nil wrapper")
	}
	if ptr == 0 {
		return nil, errors.NilPointer(errors.PhaseFinalize, nil, "tracked pointer")
	}
	if destroy == nil {
		return nil, errors.InvalidInput(errors.PhaseFinalize, "nil destructor")
	}
	key := weak.Make(wrapper)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.Closed(errors.PhaseFinalize, "finalization registry")
	}
	r.next++
	reg := &Registration{reg: r, destroy: destroy, key: key, id: r.next, ptr: ptr}
	old := r.byWrapper[key]
	if old != nil {
		r.removeLocked(old)
	}
	r.entries[reg.id] = reg
	r.byWrapper[key] = reg
	// The cleanup must not reference wrapper, only the id.
	reg.cleanup = runtime.AddCleanup(wrapper, r.finalize, reg.id)
	r.mu.Unlock()

	if old != nil && old.done.CompareAndSwap(false, true) {
		old.cleanup.Stop()
		Logger().Debug("registration replaced",
			zap.Uint64("id", old.id), zap.Uint64("ptr", old.ptr), zap.Uint64("new_ptr", ptr))
	}
	r.notify(Event{Type: EventTracked, ID: reg.id, Ptr: ptr})
	return reg, nil
}

// removeLocked drops reg from the maps; r.mu is held.
func (r *Registry) removeLocked(reg *Registration) {
	delete(r.entries, reg.id)
	if r.byWrapper[reg.key] == reg {
		delete(r.byWrapper, reg.key)
	}
}

func (r *Registry) take(id uint64) *Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.entries[id]
	if !ok {
		return nil
	}
	r.removeLocked(reg)
	return reg
}

// finalize runs on the cleanup goroutine after the wrapper is collected.
func (r *Registry) finalize(id uint64) {
	reg := r.take(id)
	if reg == nil || !reg.done.CompareAndSwap(false, true) {
		return
	}
	if err := reg.run(); err != nil {
		r.fail(reg, err)
		return
	}
	r.notify(Event{Type: EventFinalized, ID: reg.id, Ptr: reg.ptr})
}

func (r *Registry) fail(reg *Registration, err error) {
	ferr := errors.Finalization(reg.ptr, err)
	Logger().Error("destructor failed",
		zap.Uint64("id", reg.id), zap.Uint64("ptr", reg.ptr), zap.Error(ferr))
	r.notify(Event{Type: EventFailed, ID: reg.id, Ptr: reg.ptr, Err: ferr})
}

// run calls the destructor, turning a panic into an error.
func (reg *Registration) run() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.New(errors.PhaseFinalize, errors.KindFinalization).
				Value(p).
				Detail("destructor panicked").
				Build()
		}
	}()
	return reg.destroy(reg.ptr)
}

func (reg *Registration) ID() uint64  { return reg.id }
func (reg *Registration) Ptr() uint64 { return reg.ptr }

// Done reports whether the destructor ran or the registration was dropped.
func (reg *Registration) Done() bool { return reg.done.Load() }

// Release runs the destructor now. Later calls and the collector's
// cleanup do nothing. The destructor's failure is returned and also
// reported to observers.
func (reg *Registration) Release() error {
	if !reg.done.CompareAndSwap(false, true) {
		return nil
	}
	reg.cleanup.Stop()
	r := reg.reg
	r.mu.Lock()
	r.removeLocked(reg)
	r.mu.Unlock()
	if err := reg.run(); err != nil {
		r.fail(reg, err)
		return errors.Finalization(reg.ptr, err)
	}
	r.notify(Event{Type: EventReleased, ID: reg.id, Ptr: reg.ptr})
	return nil
}

// Detach drops the registration without running the destructor, for
// pointers whose ownership moved elsewhere.
func (reg *Registration) Detach() {
	if !reg.done.CompareAndSwap(false, true) {
		return
	}
	reg.cleanup.Stop()
	r := reg.reg
	r.mu.Lock()
	r.removeLocked(reg)
	r.mu.Unlock()
}

// Len returns the number of live registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Subscribe adds an observer and returns a function removing it.
func (r *Registry) Subscribe(o Observer) (unsubscribe func()) {
	r.obsMu.Lock()
	r.nextObs++
	id := r.nextObs
	r.observers[id] = o
	r.obsMu.Unlock()
	return func() {
		r.obsMu.Lock()
		delete(r.observers, id)
		r.obsMu.Unlock()
	}
}

// Close drops every registration without running destructors and stops
// accepting new ones.
func (r *Registry) Close() error {
	r.mu.Lock()
	regs := make([]*Registration, 0, len(r.entries))
	for _, reg := range r.entries {
		regs = append(regs, reg)
	}
	r.entries = make(map[uint64]*Registration)
	r.byWrapper = make(map[any]*Registration)
	r.closed = true
	r.mu.Unlock()

	for _, reg := range regs {
		if reg.done.CompareAndSwap(false, true) {
			reg.cleanup.Stop()
		}
	}
	if len(regs) > 0 {
		Logger().Debug("registry closed, destructors skipped", zap.Int("count", len(regs)))
	}
	return nil
}

func (r *Registry) notify(e Event) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, o := range r.observers {
		o.OnFinalizeEvent(e)
	}
}
