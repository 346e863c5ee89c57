//go:build darwin || freebsd || linux || netbsd

package native

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/errors"
)

// purego callbacks live for the whole process and their number is
// capped, so released ones are pooled per signature and rebound.
var callbacks = &trampolines{byPtr: make(map[uint64]*trampoline), idle: make(map[string][]*trampoline)}

type trampoline struct {
	fn  atomic.Pointer[func([]uint64) uint64]
	sig giruntime.Signature
	key string
	ptr uint64
}

type trampolines struct {
	byPtr map[uint64]*trampoline
	idle  map[string][]*trampoline
	mu    sync.Mutex
}

func (p *trampolines) get(sig giruntime.Signature, fn func([]uint64) uint64) (uint64, error) {
	key := sig.String()
	p.mu.Lock()
	if idle := p.idle[key]; len(idle) > 0 {
		t := idle[len(idle)-1]
		p.idle[key] = idle[:len(idle)-1]
		p.mu.Unlock()
		t.fn.Store(&fn)
		return t.ptr, nil
	}
	p.mu.Unlock()

	t := &trampoline{sig: sig, key: key}
	t.fn.Store(&fn)
	ptr, err := t.register()
	if err != nil {
		return 0, err
	}
	t.ptr = ptr
	p.mu.Lock()
	p.byPtr[ptr] = t
	p.mu.Unlock()
	return ptr, nil
}

func (p *trampolines) put(ptr uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.byPtr[ptr]
	if !ok || t.fn.Swap(nil) == nil {
		return
	}
	p.idle[t.key] = append(p.idle[t.key], t)
}

// stats returns the number of trampolines created and of idle ones.
func (p *trampolines) stats() (total, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ts := range p.idle {
		idle += len(ts)
	}
	return len(p.byPtr), idle
}

// register creates the C entry point, which dispatches to whatever
// function the trampoline is bound to.
func (t *trampoline) register() (ptr uint64, err error) {
	ft, err := funcType(t.sig)
	if err != nil {
		return 0, err
	}
	sig := t.sig
	impl := reflect.MakeFunc(ft, func(in []reflect.Value) []reflect.Value {
		args := make([]uint64, len(in))
		for i, v := range in {
			args[i] = fromValue(sig.Params[i], v)
		}
		var res uint64
		if fn := t.fn.Load(); fn != nil {
			func() {
				defer func() {
					if r := recover(); r != nil {
						Logger().Error("callback panicked", zap.String("signature", sig.String()), zap.Any("panic", r))
					}
				}()
				res = (*fn)(args)
			}()
		} else {
			Logger().Error("released callback called", zap.String("signature", sig.String()))
		}
		if sig.Result == giruntime.KindVoid {
			return nil
		}
		return []reflect.Value{toValue(sig.Result, res)}
	})
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.PhaseEncode, errors.KindUnsupported).
				Detail("callback %s: %v", sig, r).
				Build()
		}
	}()
	return uint64(purego.NewCallback(impl.Interface())), nil
}
