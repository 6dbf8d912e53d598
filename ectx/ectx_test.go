package ectx

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime"
	"testing"

	"github.com/wippyai/freelan-binding/errors"
	"github.com/wippyai/freelan-binding/native"
	"golang.org/x/sync/errgroup"
)

func openLibrary(t *testing.T) *native.Library {
	t.Helper()
	ctx := context.Background()
	lib, err := native.Open(ctx, native.Config{})
	if err != nil {
		t.Fatalf("native.Open: %v", err)
	}
	t.Cleanup(func() { _ = lib.Close(ctx) })
	return lib
}

func requireThreadID(t *testing.T) {
	t.Helper()
	if _, ok := threadID(); !ok {
		t.Skip("no thread identity on this platform")
	}
}

type nullLibrary struct {
	*native.Library
}

func (nullLibrary) AcquireErrorContext() native.Ptr { return 0 }

func TestContext_Accessors(t *testing.T) {
	lib := openLibrary(t)

	c, err := Acquire(lib)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if err := c.Err(); err != nil {
		t.Errorf("fresh context Err() = %v", err)
	}
	if _, ok := c.Description(); ok {
		t.Error("fresh context has a description")
	}

	lib.ErrorContextSetError(c.Handle(), "system", 13, "permission denied", "tap_adapter.cpp", 210)

	err = c.Err()
	if !stderrors.Is(err, errors.ErrNativeOperation) {
		t.Fatalf("Err() = %v, want a native operation error", err)
	}
	var snap *errors.NativeError
	if !stderrors.As(err, &snap) {
		t.Fatal("Err() does not carry a snapshot")
	}
	want := errors.NativeError{Category: "system", Code: 13, Description: "permission denied", File: "tap_adapter.cpp", Line: 210}
	if *snap != want {
		t.Errorf("snapshot = %+v, want %+v", *snap, want)
	}

	c.Reset()
	if c.Err() != nil {
		t.Error("Err() after Reset should be nil")
	}

	c.Release()
	c.Release()
	if !c.Released() {
		t.Error("Released() = false")
	}
	if n := lib.ErrorContexts(); n != 0 {
		t.Errorf("native contexts = %d after release", n)
	}
}

func TestContext_UseAfterRelease(t *testing.T) {
	lib := openLibrary(t)
	c, err := Acquire(lib)
	if err != nil {
		t.Fatal(err)
	}
	c.Release()

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !stderrors.Is(err, &errors.Error{Phase: errors.PhaseNative, Kind: errors.KindReleased}) {
			t.Errorf("recovered %v, want a released error", r)
		}
	}()
	c.Category()
}

func TestAcquire_AllocationFailure(t *testing.T) {
	lib := openLibrary(t)

	_, err := Acquire(nullLibrary{lib})
	if !stderrors.Is(err, errors.ErrNativeAllocation) {
		t.Errorf("Acquire() error = %v, want native allocation error", err)
	}

	r := NewRegistry(nullLibrary{lib})
	if err := r.Do(func(native.Ptr) error { return nil }); !stderrors.Is(err, errors.ErrNativeAllocation) {
		t.Errorf("Do() error = %v, want native allocation error", err)
	}
}

func TestRegistry_Do(t *testing.T) {
	lib := openLibrary(t)
	r := NewRegistry(lib)
	defer r.ClearAll()

	t.Run("success", func(t *testing.T) {
		if err := r.Do(func(ectx native.Ptr) error { return nil }); err != nil {
			t.Errorf("Do() = %v", err)
		}
	})

	t.Run("check on exit", func(t *testing.T) {
		err := r.Do(func(ectx native.Ptr) error {
			lib.ErrorContextSetError(ectx, "freelan.value", 22, "forced", "values.cpp", 7)
			return nil
		})
		var snap *errors.NativeError
		if !stderrors.As(err, &snap) {
			t.Fatalf("Do() = %v, want native snapshot", err)
		}
		if snap.Category != "freelan.value" || snap.Code != 22 || snap.Description != "forced" || snap.File != "values.cpp" || snap.Line != 7 {
			t.Errorf("snapshot = %+v", snap)
		}
	})

	t.Run("reset before call", func(t *testing.T) {
		err := r.Do(func(ectx native.Ptr) error {
			if _, ok := lib.ErrorContextCategory(ectx); ok {
				t.Error("context not reset")
			}
			return nil
		})
		if err != nil {
			t.Errorf("Do() = %v", err)
		}
	})

	t.Run("native error takes precedence", func(t *testing.T) {
		bodyErr := stderrors.New("body failed")
		err := r.Do(func(ectx native.Ptr) error {
			lib.ErrorContextSetError(ectx, "system", 5, "io", "", 0)
			return bodyErr
		})
		if !stderrors.Is(err, errors.ErrNativeOperation) || !stderrors.Is(err, bodyErr) {
			t.Errorf("Do() = %v, want both errors", err)
		}
	})

	t.Run("body error only", func(t *testing.T) {
		bodyErr := stderrors.New("body failed")
		if err := r.Do(func(native.Ptr) error { return bodyErr }); err != bodyErr {
			t.Errorf("Do() = %v, want %v", err, bodyErr)
		}
	})

	t.Run("panic", func(t *testing.T) {
		requireThreadID(t)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		func() {
			defer func() {
				if recover() == nil {
					t.Error("panic was swallowed")
				}
			}()
			_ = r.Do(func(native.Ptr) error { panic("boom") })
		}()

		// a busy slot would make Do acquire a temporary context
		before := lib.ErrorContexts()
		_ = r.Do(func(native.Ptr) error {
			if lib.ErrorContexts() != before {
				t.Error("slot still busy after panic")
			}
			return nil
		})
	})
}

func TestRegistry_Nested(t *testing.T) {
	requireThreadID(t)
	lib := openLibrary(t)
	r := NewRegistry(lib)
	defer r.ClearAll()

	var outer, inner native.Ptr
	err := r.Do(func(ectx native.Ptr) error {
		outer = ectx
		lib.ErrorContextSetError(ectx, "system", 1, "outer", "", 0)

		nestedErr := r.Do(func(ectx native.Ptr) error {
			inner = ectx
			if _, ok := lib.ErrorContextCategory(ectx); ok {
				t.Error("nested context inherited the outer error")
			}
			return nil
		})
		if nestedErr != nil {
			t.Errorf("nested Do() = %v", nestedErr)
		}
		return nil
	})

	if outer == inner {
		t.Error("nested Do shared the outer context")
	}
	var snap *errors.NativeError
	if !stderrors.As(err, &snap) || snap.Description != "outer" {
		t.Errorf("outer Do() = %v", err)
	}
	if n := lib.ErrorContexts(); n != 1 {
		t.Errorf("native contexts = %d, want the thread's context only", n)
	}
}

func TestCall(t *testing.T) {
	lib := openLibrary(t)
	r := NewRegistry(lib)
	defer r.ClearAll()

	n, err := Call(r, func(ectx native.Ptr) int { return 42 })
	if err != nil || n != 42 {
		t.Errorf("Call() = %d, %v", n, err)
	}

	_, err = Call(r, func(ectx native.Ptr) int {
		lib.ErrorContextSetError(ectx, "system", 12, "oom", "", 0)
		return 0
	})
	if !stderrors.Is(err, errors.ErrNativeOperation) {
		t.Errorf("Call() error = %v", err)
	}
}

func TestRegistry_ThreadLifecycle(t *testing.T) {
	requireThreadID(t)
	lib := openLibrary(t)
	r := NewRegistry(lib)

	runtime.LockOSThread()
	c1, err := r.Current()
	if err != nil {
		t.Fatal(err)
	}
	c2, _ := r.Current()
	if c1 != c2 {
		t.Error("Current() returned different contexts on one thread")
	}
	r.Clear()
	runtime.UnlockOSThread()

	if !c1.Released() {
		t.Error("Clear() did not release the context")
	}
	if r.Len() != 0 || lib.ErrorContexts() != 0 {
		t.Errorf("Len() = %d, native = %d", r.Len(), lib.ErrorContexts())
	}

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			return r.Do(func(native.Ptr) error { return nil })
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent Do: %v", err)
	}
	if r.Len() == 0 || r.Len() != lib.ErrorContexts() {
		t.Errorf("Len() = %d, native = %d", r.Len(), lib.ErrorContexts())
	}

	r.ClearAll()
	if r.Len() != 0 || lib.ErrorContexts() != 0 {
		t.Errorf("after ClearAll: Len() = %d, native = %d", r.Len(), lib.ErrorContexts())
	}
}

func TestRegistry_ConcurrentDo(t *testing.T) {
	lib := openLibrary(t)
	r := NewRegistry(lib)
	defer r.ClearAll()

	var g errgroup.Group
	for i := 0; i < 64; i++ {
		i := i
		g.Go(func() error {
			for j := 0; j < 16; j++ {
				err := r.Do(func(ectx native.Ptr) error {
					if j%4 == 0 {
						lib.ErrorContextSetError(ectx, "system", 12, "oom", "", 0)
					}
					return nil
				})
				if (j%4 == 0) != stderrors.Is(err, errors.ErrNativeOperation) {
					return fmt.Errorf("goroutine %d call %d: err = %v", i, j, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if r.Len() != lib.ErrorContexts() {
		t.Errorf("Len() = %d, native = %d", r.Len(), lib.ErrorContexts())
	}
}
