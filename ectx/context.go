package ectx

import (
	"github.com/wippyai/freelan-binding/errors"
	"github.com/wippyai/freelan-binding/native"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Library is the native error-context API.
type Library interface {
	AcquireErrorContext() native.Ptr
	ReleaseErrorContext(ectx native.Ptr)
	ErrorContextReset(ectx native.Ptr)
	ErrorContextCategory(ectx native.Ptr) (string, bool)
	ErrorContextCode(ectx native.Ptr) int
	ErrorContextDescription(ectx native.Ptr) (string, bool)
	ErrorContextFile(ectx native.Ptr) (string, bool)
	ErrorContextLine(ectx native.Ptr) int
}

// Context owns one native error context.
//
// A Context must only be used by one OS thread at a time. Accessing it after
// Release panics.
type Context struct {
	lib      Library
	handle   native.Ptr
	released atomic.Bool
}

// Acquire allocates a native error context.
func Acquire(lib Library) (*Context, error) {
	h := lib.AcquireErrorContext()
	if h == 0 {
		return nil, errors.NativeAllocation("error context")
	}
	Logger().Debug("error context acquired", zap.Stringer("handle", h))
	return &Context{lib: lib, handle: h}, nil
}

// Handle returns the native handle to pass to native calls.
func (c *Context) Handle() native.Ptr {
	c.mustBeLive()
	return c.handle
}

// Reset clears the recorded error.
func (c *Context) Reset() {
	c.mustBeLive()
	c.lib.ErrorContextReset(c.handle)
}

func (c *Context) Category() (string, bool) {
	c.mustBeLive()
	return c.lib.ErrorContextCategory(c.handle)
}

func (c *Context) Code() int {
	c.mustBeLive()
	return c.lib.ErrorContextCode(c.handle)
}

func (c *Context) Description() (string, bool) {
	c.mustBeLive()
	return c.lib.ErrorContextDescription(c.handle)
}

func (c *Context) File() (string, bool) {
	c.mustBeLive()
	return c.lib.ErrorContextFile(c.handle)
}

func (c *Context) Line() int {
	c.mustBeLive()
	return c.lib.ErrorContextLine(c.handle)
}

// Snapshot copies the recorded error.
func (c *Context) Snapshot() *errors.NativeError {
	category, _ := c.Category()
	description, _ := c.Description()
	file, _ := c.File()
	return &errors.NativeError{
		Category:    category,
		Code:        c.Code(),
		Description: description,
		File:        file,
		Line:        c.Line(),
	}
}

// Err returns a native operation error carrying the snapshot, or nil when
// no category is recorded.
func (c *Context) Err() error {
	if _, ok := c.Category(); !ok {
		return nil
	}
	return errors.NativeOperation(c.Snapshot())
}

// Release frees the native context. Later calls are no-ops.
func (c *Context) Release() {
	if c.released.Swap(true) {
		return
	}
	c.lib.ReleaseErrorContext(c.handle)
	Logger().Debug("error context released", zap.Stringer("handle", c.handle))
}

// Released reports whether Release was called.
func (c *Context) Released() bool {
	return c.released.Load()
}

func (c *Context) mustBeLive() {
	if c.released.Load() {
		panic(errors.Released("ErrorContext"))
	}
}
