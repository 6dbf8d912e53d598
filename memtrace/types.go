package memtrace

import (
	"fmt"

	"github.com/wippyai/freelan-binding/native"
)

// EventKind identifies a ledger event.
type EventKind uint8

const (
	EventAllocation EventKind = iota
	EventReallocation
	EventDeallocation
)

func (k EventKind) String() string {
	switch k {
	case EventAllocation:
		return "malloc"
	case EventReallocation:
		return "realloc"
	case EventDeallocation:
		return "free"
	default:
		return "unknown"
	}
}

// PointerInfo describes one block. File and Line are the native allocation
// site reported through the pointer-mark hook.
type PointerInfo struct {
	File    string
	Stack   string
	Line    int
	Size    uint32
	Address native.Ptr
}

func (p PointerInfo) String() string {
	s := fmt.Sprintf("%s (%d bytes)", p.Address, p.Size)
	if p.File != "" {
		s += fmt.Sprintf(" at %s:%d", p.File, p.Line)
	}
	return s
}

// Event is one entry of the append-only event sequence. Previous is set
// for reallocations only.
type Event struct {
	Pointer  PointerInfo
	Previous *PointerInfo
	Seq      uint64
	Kind     EventKind
}

func (e Event) String() string {
	switch e.Kind {
	case EventReallocation:
		return fmt.Sprintf("#%d %s %s -> %s", e.Seq, e.Kind, *e.Previous, e.Pointer)
	default:
		return fmt.Sprintf("#%d %s %s", e.Seq, e.Kind, e.Pointer)
	}
}

// Stats are the ledger's running totals. Sum is the total of every size
// obtained through malloc or realloc. UntrackedFrees and UntrackedReallocs
// count releases and resizes of addresses the ledger never saw.
type Stats struct {
	Current           uint64
	Max               uint64
	Sum               uint64
	Allocations       uint64
	Reallocations     uint64
	Frees             uint64
	Failed            uint64
	UntrackedFrees    uint64
	UntrackedReallocs uint64
}

// Anomaly is a recoverable irregularity seen by the hooks, such as the
// release of a block allocated before instrumentation.
type Anomaly struct {
	Err error
	Seq uint64
}

func (a Anomaly) String() string {
	return fmt.Sprintf("#%d %v", a.Seq, a.Err)
}
