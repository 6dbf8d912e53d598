package native

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/wippyai/freelan-binding/resource"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Allocator hook signatures. The library calls every allocation and release
// through the currently registered hooks.
type (
	MallocFunc      func(size uint32) Ptr
	ReallocFunc     func(ptr Ptr, size uint32) Ptr
	FreeFunc        func(ptr Ptr)
	MarkPointerFunc func(ptr Ptr, file string, line int)
)

// MemoryFunctions is the set of allocator hooks.
type MemoryFunctions struct {
	Malloc      MallocFunc
	Realloc     ReallocFunc
	Free        FreeFunc
	MarkPointer MarkPointerFunc
}

// Config configures a Library.
type Config struct {
	Heap     HeapConfig
	LogLevel LogLevel
}

// Library is the native core: a heap, allocator hooks, error contexts,
// the value entry points and I/O services.
type Library struct {
	heap     *Heap
	contexts *resource.Table[*errorContext]
	services *resource.Table[*ioService]
	symbols  map[string]any
	hooks    atomic.Pointer[MemoryFunctions]
	sink     atomic.Pointer[logSink]
	level    atomic.Int32
	custom   atomic.Bool
	closed   atomic.Bool
}

// Open creates a library over a fresh heap.
func Open(ctx context.Context, cfg Config) (*Library, error) {
	heap, err := NewHeap(ctx, cfg.Heap)
	if err != nil {
		return nil, err
	}

	l := &Library{
		heap:     heap,
		contexts: resource.NewTable[*errorContext]("error_context"),
		services: resource.NewTable[*ioService]("io_service"),
	}
	l.hooks.Store(l.defaultHooks())
	level := cfg.LogLevel
	if level == 0 {
		level = LogInformation
	}
	l.level.Store(int32(level))

	obs := &tableObserver{}
	l.contexts.Subscribe(obs)
	l.services.Subscribe(obs)

	l.symbols = l.exportSymbols()

	Logger().Debug("native library opened",
		zap.Uint32("pages", heap.Stats().Pages),
		zap.Int("symbols", len(l.symbols)))
	return l, nil
}

// Close releases every error context and I/O service, then the heap.
func (l *Library) Close(ctx context.Context) error {
	if l.closed.Swap(true) {
		return nil
	}
	err := multierr.Combine(
		l.services.Close(),
		l.contexts.Close(),
	)
	return multierr.Append(err, l.heap.Close(ctx))
}

// Heap returns the default allocator so that hooks can pass through to it.
func (l *Library) Heap() *Heap {
	return l.heap
}

// Memory returns the heap memory.
func (l *Library) Memory() Memory {
	return l.heap.Memory()
}

// Symbol resolves an exported entry point by name.
func (l *Library) Symbol(name string) (any, bool) {
	fn, ok := l.symbols[name]
	return fn, ok
}

// Symbols returns the number of exported entry points.
func (l *Library) Symbols() int {
	return len(l.symbols)
}

// RegisterMemoryFunctions replaces the allocator hooks. A nil member
// restores that member's default.
func (l *Library) RegisterMemoryFunctions(fns MemoryFunctions) {
	hooks := l.defaultHooks()
	if fns.Malloc != nil {
		hooks.Malloc = fns.Malloc
	}
	if fns.Realloc != nil {
		hooks.Realloc = fns.Realloc
	}
	if fns.Free != nil {
		hooks.Free = fns.Free
	}
	if fns.MarkPointer != nil {
		hooks.MarkPointer = fns.MarkPointer
	}
	l.hooks.Store(hooks)
	l.custom.Store(fns.Malloc != nil || fns.Realloc != nil || fns.Free != nil)
}

// RegisterMemoryDebugFunctions installs only the pointer-mark hook.
func (l *Library) RegisterMemoryDebugFunctions(mark MarkPointerFunc) {
	for {
		cur := l.hooks.Load()
		next := *cur
		next.MarkPointer = mark
		if mark == nil {
			next.MarkPointer = noMark
		}
		if l.hooks.CompareAndSwap(cur, &next) {
			return
		}
	}
}

// MemoryFunctionsInstalled reports whether custom allocation hooks are registered.
func (l *Library) MemoryFunctionsInstalled() bool {
	return l.custom.Load()
}

// Malloc allocates through the registered hooks.
func (l *Library) Malloc(size uint32) Ptr {
	return l.allocAt(size, 3)
}

// Realloc resizes through the registered hooks.
func (l *Library) Realloc(ptr Ptr, size uint32) Ptr {
	hooks := l.hooks.Load()
	p := hooks.Realloc(ptr, size)
	if p != 0 {
		file, line := callerSite(2)
		hooks.MarkPointer(p, file, line)
	}
	return p
}

// Free releases a block, including strings returned by to_string entry points.
func (l *Library) Free(ptr Ptr) {
	if ptr == 0 {
		return
	}
	l.hooks.Load().Free(ptr)
}

func (l *Library) alloc(size uint32) Ptr {
	return l.allocAt(size, 3)
}

func (l *Library) allocAt(size uint32, skip int) Ptr {
	hooks := l.hooks.Load()
	p := hooks.Malloc(size)
	if p == 0 {
		l.log(LogWarning, "freelan.memory", "allocation_failed", LogPayload{Key: "size", Value: size})
		return 0
	}
	file, line := callerSite(skip)
	hooks.MarkPointer(p, file, line)
	return p
}

func (l *Library) defaultHooks() *MemoryFunctions {
	return &MemoryFunctions{
		Malloc:      l.heap.Malloc,
		Realloc:     l.heap.Realloc,
		Free:        l.heap.Free,
		MarkPointer: noMark,
	}
}

func noMark(Ptr, string, int) {}

func callerSite(skip int) (string, int) {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "", 0
	}
	return filepath.Base(file), line
}

func symbolName(typeName, op string) string {
	return fmt.Sprintf("freelan_%s_%s", typeName, op)
}

type tableObserver struct{}

func (o *tableObserver) OnResourceEvent(e resource.Event) {
	Logger().Debug("native object "+e.Type.String(),
		zap.String("kind", e.Kind),
		zap.Uint32("handle", uint32(e.Handle)))
}
