package native

import (
	"sync"

	"github.com/wippyai/freelan-binding/resource"
	"go.uber.org/zap"
)

// TaskCallback is invoked by IOServiceRun with the userdata given to IOServicePost.
type TaskCallback func(userdata uintptr)

const (
	ioServiceSize = 16
	taskSize      = 8
)

type pendingTask struct {
	callback TaskCallback
	userdata uintptr
	block    Ptr
}

type ioService struct {
	lib     *Library
	queue   []pendingTask
	mu      sync.Mutex
	running bool
}

// Drop releases the blocks of tasks that never ran.
func (s *ioService) Drop() {
	s.mu.Lock()
	queue := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, t := range queue {
		s.lib.Free(t.block)
	}
	if len(queue) > 0 {
		Logger().Debug("io service dropped pending tasks", zap.Int("count", len(queue)))
	}
}

// IOServiceNew creates an I/O service. It returns 0 when the allocator fails.
func (l *Library) IOServiceNew() Ptr {
	p := l.alloc(ioServiceSize)
	if p == 0 {
		return 0
	}
	if err := l.services.Insert(resource.Handle(p), &ioService{lib: l}); err != nil {
		Logger().Error("register io service", zap.Error(err))
		l.Free(p)
		return 0
	}
	l.log(LogDebug, CategoryIOService, "created", LogPayload{Key: "handle", Value: uint32(p)})
	return p
}

// IOServiceFree destroys svc. Tasks that never ran are discarded.
func (l *Library) IOServiceFree(svc Ptr) {
	if _, ok := l.services.Remove(resource.Handle(svc)); !ok {
		Logger().Warn("free of unknown io service", zap.Uint32("svc", uint32(svc)))
		return
	}
	l.Free(svc)
	l.log(LogDebug, CategoryIOService, "destroyed", LogPayload{Key: "handle", Value: uint32(svc)})
}

// IOServicePost queues callback. It reports false when svc is unknown or the
// task block cannot be allocated.
func (l *Library) IOServicePost(svc Ptr, callback TaskCallback, userdata uintptr) bool {
	s, ok := l.services.Get(resource.Handle(svc))
	if !ok || callback == nil {
		return false
	}
	block := l.alloc(taskSize)
	if block == 0 {
		return false
	}

	s.mu.Lock()
	s.queue = append(s.queue, pendingTask{callback: callback, userdata: userdata, block: block})
	s.mu.Unlock()
	return true
}

// IOServiceRun runs queued callbacks on the calling goroutine until the queue
// is empty, including tasks posted by the callbacks themselves. It returns
// the number of callbacks that ran.
func (l *Library) IOServiceRun(ectx Ptr, svc Ptr) int {
	s, ok := l.services.Get(resource.Handle(svc))
	if !ok {
		l.raise(ectx, CategoryIOService, CodeInvalidValue, "unknown io service")
		return 0
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		l.raise(ectx, CategoryIOService, CodeBusy, "io service already running")
		return 0
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ran := 0
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			break
		}
		task := s.queue[0]
		s.queue[0] = pendingTask{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		l.Free(task.block)
		task.callback(task.userdata)
		ran++
	}
	return ran
}

// IOServicePending returns the number of queued callbacks.
func (l *Library) IOServicePending(svc Ptr) int {
	s, ok := l.services.Get(resource.Handle(svc))
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
