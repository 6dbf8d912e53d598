package memtrace

import (
	"runtime"
	"strconv"
	"strings"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/wippyai/freelan-binding/errors"
	"github.com/wippyai/freelan-binding/native"
	"go.uber.org/zap"
)

// Library is the part of the native library the ledger instruments.
type Library interface {
	Heap() *native.Heap
	RegisterMemoryFunctions(fns native.MemoryFunctions)
	MemoryFunctionsInstalled() bool
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithStacks records up to depth Go frames for every allocation.
func WithStacks(depth int) Option {
	return func(l *Ledger) {
		l.stackDepth = depth
	}
}

// Ledger tracks the live blocks of an instrumented native allocator.
//
// All hooks serialize on one mutex. The real allocator is called while the
// mutex is held, so an address cannot be handed out again before the ledger
// has recorded its release.
type Ledger struct {
	lib        Library
	live       *orderedmap.OrderedMap[native.Ptr, *PointerInfo]
	events     []Event
	anomalies  []Anomaly
	stats      Stats
	stackDepth int
	mu         sync.Mutex
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		live: orderedmap.New[native.Ptr, *PointerInfo](),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Install replaces lib's allocator hooks with hooks that record into the
// ledger and pass through to lib's heap.
func (l *Ledger) Install(lib Library) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lib != nil || lib.MemoryFunctionsInstalled() {
		return errors.AlreadyRegistered("memory functions")
	}

	heap := lib.Heap()
	lib.RegisterMemoryFunctions(native.MemoryFunctions{
		Malloc: func(size uint32) native.Ptr {
			l.mu.Lock()
			defer l.mu.Unlock()
			p := heap.Malloc(size)
			l.onMalloc(p, size)
			return p
		},
		Realloc: func(ptr native.Ptr, size uint32) native.Ptr {
			l.mu.Lock()
			defer l.mu.Unlock()
			p := heap.Realloc(ptr, size)
			l.onRealloc(ptr, p, size)
			return p
		},
		Free: func(ptr native.Ptr) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.onFree(ptr)
			heap.Free(ptr)
		},
		MarkPointer: l.OnMark,
	})
	l.lib = lib

	Logger().Debug("memory instrumentation installed")
	return nil
}

// Uninstall restores the library's default allocator.
func (l *Ledger) Uninstall() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lib == nil {
		return errors.NotRegistered("memory functions")
	}
	l.lib.RegisterMemoryFunctions(native.MemoryFunctions{})
	l.lib = nil

	Logger().Debug("memory instrumentation removed",
		zap.Int("live", l.live.Len()),
		zap.Uint64("current", l.stats.Current))
	return nil
}

// Installed reports whether the ledger's hooks are registered.
func (l *Ledger) Installed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lib != nil
}

// OnMalloc records an allocation of size bytes that returned ptr.
func (l *Ledger) OnMalloc(ptr native.Ptr, size uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onMalloc(ptr, size)
}

// OnRealloc records a reallocation of old to size bytes that returned ptr.
func (l *Ledger) OnRealloc(old, ptr native.Ptr, size uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onRealloc(old, ptr, size)
}

// OnFree records the release of ptr.
func (l *Ledger) OnFree(ptr native.Ptr) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onFree(ptr)
}

// OnMark attaches a native allocation site to a live block.
func (l *Ledger) OnMark(ptr native.Ptr, file string, line int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if info, ok := l.live.Get(ptr); ok {
		info.File = file
		info.Line = line
	}
}

func (l *Ledger) onMalloc(ptr native.Ptr, size uint32) {
	info := &PointerInfo{Address: ptr, Size: size, Stack: l.stack()}
	l.record(EventAllocation, info, nil)

	if ptr == 0 {
		l.stats.Failed++
		return
	}
	l.live.Set(ptr, info)
	l.stats.Allocations++
	l.grow(0, size)
}

func (l *Ledger) onRealloc(old, ptr native.Ptr, size uint32) {
	prev, tracked := l.live.Get(old)
	if !tracked {
		prev = &PointerInfo{Address: old}
	}
	prevCopy := *prev

	info := &PointerInfo{
		Address: ptr,
		Size:    size,
		File:    prev.File,
		Line:    prev.Line,
		Stack:   l.stack(),
	}
	l.record(EventReallocation, info, &prevCopy)

	if ptr == 0 {
		l.stats.Failed++
		return
	}
	l.stats.Reallocations++

	if !tracked && old != 0 {
		l.stats.UntrackedReallocs++
		l.anomaly(errors.UntrackedFree("realloc", uint32(old)))
	}

	if tracked && ptr == old {
		// same key: keeps the block's position in the ledger
		l.live.Set(ptr, info)
	} else {
		if tracked {
			l.live.Delete(old)
		}
		l.live.Set(ptr, info)
	}
	l.grow(prev.Size, size)
}

func (l *Ledger) onFree(ptr native.Ptr) {
	if ptr == 0 {
		return
	}

	info, ok := l.live.Delete(ptr)
	if !ok {
		l.record(EventDeallocation, &PointerInfo{Address: ptr}, nil)
		l.stats.UntrackedFrees++
		l.anomaly(errors.UntrackedFree("free", uint32(ptr)))
		return
	}

	l.record(EventDeallocation, info, nil)
	l.stats.Frees++
	l.stats.Current -= uint64(info.Size)
}

// grow moves current usage from an old block size to a new one.
func (l *Ledger) grow(from, to uint32) {
	l.stats.Current = l.stats.Current - uint64(from) + uint64(to)
	l.stats.Sum += uint64(to)
	if l.stats.Current > l.stats.Max {
		l.stats.Max = l.stats.Current
	}
}

func (l *Ledger) record(kind EventKind, info, prev *PointerInfo) {
	l.events = append(l.events, Event{
		Seq:      uint64(len(l.events)) + 1,
		Kind:     kind,
		Pointer:  *info,
		Previous: prev,
	})
}

func (l *Ledger) anomaly(err *errors.Error) {
	seq := uint64(len(l.events))
	l.anomalies = append(l.anomalies, Anomaly{Seq: seq, Err: err})
	Logger().Warn("memory anomaly", zap.Uint64("seq", seq), zap.Error(err))
}

func (l *Ledger) stack() string {
	if l.stackDepth <= 0 {
		return ""
	}
	pcs := make([]uintptr, l.stackDepth)
	// skip runtime.Callers, stack, the ledger update and the hook itself
	n := runtime.Callers(4, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		f, more := frames.Next()
		b.WriteString(f.Function)
		b.WriteByte('\n')
		b.WriteString("\t")
		b.WriteString(f.File)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(f.Line))
		b.WriteByte('\n')
		if !more {
			break
		}
	}
	return b.String()
}

// Stats returns the running totals.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Live returns the live blocks in allocation order.
func (l *Ledger) Live() []PointerInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]PointerInfo, 0, l.live.Len())
	for pair := l.live.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, *pair.Value)
	}
	return out
}

// Lookup returns the live block at ptr.
func (l *Ledger) Lookup(ptr native.Ptr) (PointerInfo, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	info, ok := l.live.Get(ptr)
	if !ok {
		return PointerInfo{}, false
	}
	return *info, true
}

// Events returns a copy of the event sequence.
func (l *Ledger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// Anomalies returns a copy of the recorded anomalies.
func (l *Ledger) Anomalies() []Anomaly {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Anomaly(nil), l.anomalies...)
}
