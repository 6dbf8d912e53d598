package iosvc

import (
	"fmt"
	"sync"

	"github.com/wippyai/freelan-binding/ectx"
	"github.com/wippyai/freelan-binding/errors"
	"github.com/wippyai/freelan-binding/native"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Library is the native I/O service API.
type Library interface {
	IOServiceNew() native.Ptr
	IOServiceFree(svc native.Ptr)
	IOServicePost(svc native.Ptr, callback native.TaskCallback, userdata uintptr) bool
	IOServiceRun(ectx native.Ptr, svc native.Ptr) int
}

// Task is a deferred callable. It receives the arguments given to Post.
type Task func(args ...any)

// TaskID identifies a pending task. IDs are unique among pending tasks and
// may be reused once a task has run.
type TaskID uint64

type entry struct {
	fn   Task
	args []any
}

// Service posts Go callables to a native I/O service and runs them when the
// service is driven by Run.
type Service struct {
	lib      Library
	contexts *ectx.Registry
	tasks    map[TaskID]entry
	panics   []error
	handle   native.Ptr
	next     TaskID
	mu       sync.Mutex
	closed   bool
}

// New creates a native I/O service.
func New(lib Library, contexts *ectx.Registry) (*Service, error) {
	h := lib.IOServiceNew()
	if h == 0 {
		return nil, errors.NativeAllocation("io service")
	}
	return &Service{
		lib:      lib,
		contexts: contexts,
		tasks:    make(map[TaskID]entry),
		handle:   h,
	}, nil
}

// Post registers fn to run with args during a later Run. It may be called
// from any goroutine, including from a running task.
func (s *Service) Post(fn Task, args ...any) (TaskID, error) {
	if fn == nil {
		return 0, errors.InvalidInput(errors.PhasePost, "nil task")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, errors.Closed(errors.PhasePost, "io service")
	}
	id := s.nextID()
	s.tasks[id] = entry{fn: fn, args: args}
	s.mu.Unlock()

	if !s.lib.IOServicePost(s.handle, s.trampoline, uintptr(id)) {
		s.mu.Lock()
		delete(s.tasks, id)
		s.mu.Unlock()
		return 0, errors.NativeAllocation("task")
	}

	Logger().Debug("task posted", zap.Uint64("id", uint64(id)), zap.Int("args", len(args)))
	return id, nil
}

// PostFunc posts a closure. Keyword-style arguments are expressed by
// capturing them.
func (s *Service) PostFunc(fn func()) (TaskID, error) {
	if fn == nil {
		return 0, errors.InvalidInput(errors.PhasePost, "nil task")
	}
	return s.Post(func(...any) { fn() })
}

// Run drives the native service on the calling goroutine until no task is
// left, including tasks posted while it runs. It returns the number of
// tasks that ran. Panics raised by tasks are recovered and returned.
func (s *Service) Run() (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, errors.Closed(errors.PhasePost, "io service")
	}
	s.mu.Unlock()

	ran, err := ectx.Call(s.contexts, func(h native.Ptr) int {
		return s.lib.IOServiceRun(h, s.handle)
	})

	s.mu.Lock()
	panics := s.panics
	s.panics = nil
	s.mu.Unlock()

	return ran, multierr.Combine(append([]error{err}, panics...)...)
}

// Pending returns the number of tasks posted but not yet run.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Close destroys the native service. Pending tasks are dropped.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	dropped := len(s.tasks)
	s.tasks = nil
	s.mu.Unlock()

	s.lib.IOServiceFree(s.handle)
	if dropped > 0 {
		Logger().Debug("io service closed with pending tasks", zap.Int("dropped", dropped))
	}
	return nil
}

// nextID must be called with s.mu held.
func (s *Service) nextID() TaskID {
	for {
		s.next++
		if s.next == 0 {
			continue
		}
		if _, taken := s.tasks[s.next]; !taken {
			return s.next
		}
	}
}

// trampoline is the native callback. The entry is removed under the lock
// and the task runs outside it, so tasks may post.
func (s *Service) trampoline(userdata uintptr) {
	id := TaskID(userdata)

	s.mu.Lock()
	e, ok := s.tasks[id]
	delete(s.tasks, id)
	s.mu.Unlock()

	if !ok {
		Logger().Warn("native callback for unknown task", zap.Uint64("id", uint64(id)))
		return
	}
	s.invoke(id, e)
}

func (s *Service) invoke(id TaskID, e entry) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.TaskPanic(uint64(id), r)
			Logger().Error("task panicked", zap.Uint64("id", uint64(id)), zap.String("panic", fmt.Sprint(r)))
			s.mu.Lock()
			s.panics = append(s.panics, err)
			s.mu.Unlock()
		}
	}()
	e.fn(e.args...)
}
