package ectx

import (
	"runtime"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/wippyai/freelan-binding/errors"
	"github.com/wippyai/freelan-binding/native"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var errNoThreadID = errors.InvalidInput(errors.PhaseAcquire, "no thread identity on this platform")

// slot is one thread's context. busy is held while a Do uses ctx.
type slot struct {
	ctx  *Context
	busy atomic.Bool
}

// Registry holds one error context per OS thread. Contexts are created on
// first use by a thread and live until Clear or ClearAll.
type Registry struct {
	lib      Library
	contexts *xsync.MapOf[int, *slot]
}

// NewRegistry creates an empty registry over lib.
func NewRegistry(lib Library) *Registry {
	return &Registry{
		lib:      lib,
		contexts: xsync.NewMapOf[int, *slot](),
	}
}

// Current returns the calling thread's context, acquiring it on first use.
// The caller must keep its goroutine locked to the OS thread while using
// the result; Do does this.
func (r *Registry) Current() (*Context, error) {
	s, err := r.slot()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errNoThreadID
	}
	return s.ctx, nil
}

// Do runs fn with the calling thread's error context. The context is reset
// before fn and checked after it, even when fn fails or panics. A native
// error takes precedence over the error returned by fn.
//
// A nested Do on the same thread runs with a temporary context so that the
// outer call's error state is left untouched.
func (r *Registry) Do(fn func(ectx native.Ptr) error) (err error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	s, err := r.slot()
	if err != nil {
		return err
	}

	var ctx *Context
	if s != nil && s.busy.CompareAndSwap(false, true) {
		defer s.busy.Store(false)
		ctx = s.ctx
	} else {
		tmp, err := Acquire(r.lib)
		if err != nil {
			return err
		}
		defer tmp.Release()
		ctx = tmp
	}

	ctx.Reset()
	defer func() {
		if nerr := ctx.Err(); nerr != nil {
			err = multierr.Append(nerr, err)
		}
	}()
	return fn(ctx.Handle())
}

// Call is Do for bodies that produce a value.
func Call[T any](r *Registry, fn func(ectx native.Ptr) T) (T, error) {
	var out T
	err := r.Do(func(ectx native.Ptr) error {
		out = fn(ectx)
		return nil
	})
	return out, err
}

// Clear releases the calling thread's context.
func (r *Registry) Clear() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	id, ok := threadID()
	if !ok {
		return
	}
	if s, loaded := r.contexts.LoadAndDelete(id); loaded {
		s.ctx.Release()
	}
}

// ClearAll releases every thread's context. It must not run concurrently
// with Do; use it at teardown, before the allocator is uninstrumented.
func (r *Registry) ClearAll() {
	var released int
	r.contexts.Range(func(id int, s *slot) bool {
		r.contexts.Delete(id)
		s.ctx.Release()
		released++
		return true
	})
	if released > 0 {
		Logger().Debug("error contexts cleared", zap.Int("count", released))
	}
}

// Len returns the number of live per-thread contexts.
func (r *Registry) Len() int {
	return r.contexts.Size()
}

// slot returns the calling thread's slot, acquiring its context on first
// use. It returns nil when the platform has no thread identity.
func (r *Registry) slot() (*slot, error) {
	id, ok := threadID()
	if !ok {
		return nil, nil
	}
	if s, ok := r.contexts.Load(id); ok {
		return s, nil
	}
	ctx, err := Acquire(r.lib)
	if err != nil {
		return nil, err
	}
	s := &slot{ctx: ctx}
	r.contexts.Store(id, s)
	return s, nil
}
