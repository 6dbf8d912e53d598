package native

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// Ptr is an address in the native heap. 0 is NULL and never a valid block.
type Ptr uint32

func (p Ptr) String() string {
	return fmt.Sprintf("0x%08x", uint32(p))
}

const (
	DefaultInitialPages = 1
	DefaultMaxPages     = 256
	MaxPages            = 65536

	headerSize = 8
	blockAlign = 8
	heapBase   = 16
	minSplit   = headerSize + blockAlign

	magicLive  = 0xf4ee1a40
	magicFreed = 0xdeadf4ee
)

// HeapConfig sizes the linear memory backing the heap.
type HeapConfig struct {
	InitialPages uint32
	MaxPages     uint32
}

// HeapStats is a point-in-time view of the heap.
type HeapStats struct {
	LiveBlocks int
	InUse      uint64
	Pages      uint32
}

// Heap is the native library's default allocator: a first-fit free list
// over blocks in a wazero linear memory. Each block is preceded by an
// 8-byte header holding its capacity and a liveness magic.
type Heap struct {
	runtime wazero.Runtime
	raw     api.Memory
	mem     Memory
	free    []span
	inUse   uint64
	live    int
	top     uint32
	mu      sync.Mutex
}

type span struct {
	ptr      Ptr
	capacity uint32
}

// NewHeap instantiates a memory-only module and returns an allocator over it.
func NewHeap(ctx context.Context, cfg HeapConfig) (*Heap, error) {
	if cfg.InitialPages == 0 {
		cfg.InitialPages = DefaultInitialPages
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.MaxPages > MaxPages || cfg.InitialPages > cfg.MaxPages {
		return nil, fmt.Errorf("invalid heap limits: initial=%d max=%d", cfg.InitialPages, cfg.MaxPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithMemoryLimitPages(cfg.MaxPages))
	mod, err := rt.Instantiate(ctx, memoryModule(cfg.InitialPages, cfg.MaxPages))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiate heap memory: %w", err)
	}

	raw := mod.ExportedMemory(heapExport)
	if raw == nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("heap module has no %q export", heapExport)
	}

	return &Heap{
		runtime: rt,
		raw:     raw,
		mem:     WrapMemory(raw),
		top:     heapBase,
	}, nil
}

// Memory returns the heap's linear memory.
func (h *Heap) Memory() Memory {
	return h.mem
}

// Malloc allocates size bytes. It returns 0 when the memory limit is reached.
func (h *Heap) Malloc(size uint32) Ptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.malloc(size)
}

// Realloc resizes the block at ptr. The address is kept when the block's
// capacity suffices; otherwise the contents move to a new block. On failure
// it returns 0 and the original block is untouched.
func (h *Heap) Realloc(ptr Ptr, size uint32) Ptr {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ptr == 0 {
		return h.malloc(size)
	}

	capacity, ok := h.liveHeader(ptr)
	if !ok {
		Logger().Warn("heap: realloc of invalid pointer", zap.Uint32("ptr", uint32(ptr)))
		return 0
	}

	need, ok := blockSize(size)
	if !ok {
		return 0
	}
	if need <= capacity {
		return ptr
	}

	moved := h.malloc(size)
	if moved == 0 {
		return 0
	}
	data, err := h.mem.Read(uint32(ptr), capacity)
	if err == nil {
		err = h.mem.Write(uint32(moved), data)
	}
	if err != nil {
		Logger().Error("heap: realloc copy failed", zap.Error(err))
	}
	h.release(ptr, capacity)
	return moved
}

// Free releases the block at ptr. Freeing NULL is a no-op; freeing an
// address that is not a live block is logged and ignored.
func (h *Heap) Free(ptr Ptr) {
	if ptr == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	capacity, ok := h.liveHeader(ptr)
	if !ok {
		Logger().Warn("heap: free of invalid pointer", zap.Uint32("ptr", uint32(ptr)))
		return
	}
	h.release(ptr, capacity)
}

// Stats returns the current block count, bytes in use and page count.
func (h *Heap) Stats() HeapStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HeapStats{
		LiveBlocks: h.live,
		InUse:      h.inUse,
		Pages:      h.mem.Size() / PageSize,
	}
}

// Close releases the linear memory. Every pointer becomes invalid.
func (h *Heap) Close(ctx context.Context) error {
	return h.runtime.Close(ctx)
}

func (h *Heap) malloc(size uint32) Ptr {
	need, ok := blockSize(size)
	if !ok {
		return 0
	}

	for i, s := range h.free {
		if s.capacity < need {
			continue
		}
		if s.capacity-need >= minSplit {
			rest := span{
				ptr:      s.ptr + Ptr(need+headerSize),
				capacity: s.capacity - need - headerSize,
			}
			h.writeHeader(rest.ptr, rest.capacity, magicFreed)
			h.free[i] = rest
			s.capacity = need
		} else {
			h.free = append(h.free[:i], h.free[i+1:]...)
		}
		h.writeHeader(s.ptr, s.capacity, magicLive)
		h.live++
		h.inUse += uint64(s.capacity)
		return s.ptr
	}

	ptr := uint64(h.top) + headerSize
	end := ptr + uint64(need)
	if end > math.MaxUint32 {
		return 0
	}
	if end > uint64(h.mem.Size()) && !h.grow(end) {
		return 0
	}

	h.top = uint32(end)
	h.writeHeader(Ptr(ptr), need, magicLive)
	h.live++
	h.inUse += uint64(need)
	return Ptr(ptr)
}

func (h *Heap) release(ptr Ptr, capacity uint32) {
	h.writeHeader(ptr, capacity, magicFreed)
	h.free = append(h.free, span{ptr: ptr, capacity: capacity})
	h.live--
	h.inUse -= uint64(capacity)
}

func (h *Heap) grow(end uint64) bool {
	missing := end - uint64(h.mem.Size())
	pages := (missing + PageSize - 1) / PageSize
	if _, ok := h.raw.Grow(uint32(pages)); !ok {
		Logger().Debug("heap: memory limit reached", zap.Uint64("pages", pages))
		return false
	}
	return true
}

func (h *Heap) liveHeader(ptr Ptr) (uint32, bool) {
	if uint32(ptr) < heapBase+headerSize || uint32(ptr) >= h.top || uint32(ptr)%blockAlign != 0 {
		return 0, false
	}
	capacity, err := h.mem.ReadU32(uint32(ptr) - headerSize)
	if err != nil {
		return 0, false
	}
	magic, err := h.mem.ReadU32(uint32(ptr) - 4)
	if err != nil || magic != magicLive {
		return 0, false
	}
	return capacity, true
}

func (h *Heap) writeHeader(ptr Ptr, capacity, magic uint32) {
	_ = h.mem.WriteU32(uint32(ptr)-headerSize, capacity)
	_ = h.mem.WriteU32(uint32(ptr)-4, magic)
}

func blockSize(size uint32) (uint32, bool) {
	if size > math.MaxUint32-2*blockAlign {
		return 0, false
	}
	if size == 0 {
		size = 1
	}
	return (size + blockAlign - 1) &^ (blockAlign - 1), true
}
