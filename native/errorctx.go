package native

import (
	"sync"

	"github.com/wippyai/freelan-binding/resource"
	"go.uber.org/zap"
)

// Error codes recorded by the library.
const (
	CodeOutOfMemory  = 12
	CodeBusy         = 16
	CodeInvalidValue = 22
)

// Error categories recorded by the library.
const (
	CategorySystem    = "system"
	CategoryValue     = "freelan.value"
	CategoryIOService = "freelan.io_service"
)

const errorContextSize = 16

type errorContext struct {
	category    string
	description string
	file        string
	code        int
	line        int
	mu          sync.Mutex
}

func (c *errorContext) reset() {
	c.mu.Lock()
	c.category, c.description, c.file = "", "", ""
	c.code, c.line = 0, 0
	c.mu.Unlock()
}

// AcquireErrorContext allocates an error context. It returns 0 when the
// allocator fails.
func (l *Library) AcquireErrorContext() Ptr {
	p := l.alloc(errorContextSize)
	if p == 0 {
		return 0
	}
	if err := l.contexts.Insert(resource.Handle(p), &errorContext{}); err != nil {
		Logger().Error("register error context", zap.Error(err))
		l.Free(p)
		return 0
	}
	return p
}

// ReleaseErrorContext frees an error context.
func (l *Library) ReleaseErrorContext(ectx Ptr) {
	if _, ok := l.contexts.Remove(resource.Handle(ectx)); !ok {
		Logger().Warn("release of unknown error context", zap.Uint32("ectx", uint32(ectx)))
		return
	}
	l.Free(ectx)
}

// ErrorContextReset clears the recorded error.
func (l *Library) ErrorContextReset(ectx Ptr) {
	l.errorContext(ectx).reset()
}

// ErrorContextSetError records a failure in ectx.
func (l *Library) ErrorContextSetError(ectx Ptr, category string, code int, description, file string, line int) {
	c := l.errorContext(ectx)
	c.mu.Lock()
	c.category = category
	c.code = code
	c.description = description
	c.file = file
	c.line = line
	c.mu.Unlock()
}

// ErrorContextCategory returns the recorded category, if any.
func (l *Library) ErrorContextCategory(ectx Ptr) (string, bool) {
	c := l.errorContext(ectx)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.category, c.category != ""
}

func (l *Library) ErrorContextCode(ectx Ptr) int {
	c := l.errorContext(ectx)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

func (l *Library) ErrorContextDescription(ectx Ptr) (string, bool) {
	c := l.errorContext(ectx)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.description, c.description != ""
}

func (l *Library) ErrorContextFile(ectx Ptr) (string, bool) {
	c := l.errorContext(ectx)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file, c.file != ""
}

func (l *Library) ErrorContextLine(ectx Ptr) int {
	c := l.errorContext(ectx)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.line
}

// ErrorContexts returns the number of live error contexts.
func (l *Library) ErrorContexts() int {
	return l.contexts.Len()
}

// raise records an error at the caller's site.
func (l *Library) raise(ectx Ptr, category string, code int, description string) {
	if ectx == 0 {
		return
	}
	file, line := callerSite(2)
	l.ErrorContextSetError(ectx, category, code, description, file, line)
}

// errorContext panics on an unknown handle: passing a released or foreign
// context is a programming error.
func (l *Library) errorContext(ectx Ptr) *errorContext {
	c, ok := l.contexts.Get(resource.Handle(ectx))
	if !ok {
		panic(&InvalidHandleError{Kind: "error context", Ptr: ectx})
	}
	return c
}

// InvalidHandleError is the panic value for use of an unknown handle.
type InvalidHandleError struct {
	Kind string
	Ptr  Ptr
}

func (e *InvalidHandleError) Error() string {
	return "invalid " + e.Kind + " handle " + e.Ptr.String()
}
