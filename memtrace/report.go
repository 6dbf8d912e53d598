package memtrace

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/wippyai/freelan-binding/errors"
	"github.com/wippyai/freelan-binding/native"
	"go.uber.org/multierr"
)

// Snapshot is the ledger state at the start of a unit of work.
type Snapshot struct {
	live      map[native.Ptr]struct{}
	events    int
	anomalies int
}

// Report describes a unit of work: the blocks that survived it, every event
// it produced and the anomalies seen meanwhile.
type Report struct {
	Leaks     []PointerInfo
	Events    []Event
	Anomalies []Anomaly
	Stats     Stats
}

// Snapshot captures the live addresses and the current event position.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	live := make(map[native.Ptr]struct{}, l.live.Len())
	for pair := l.live.Oldest(); pair != nil; pair = pair.Next() {
		live[pair.Key] = struct{}{}
	}
	return Snapshot{
		live:      live,
		events:    len(l.events),
		anomalies: len(l.anomalies),
	}
}

// Diff reports the addresses live now but not in s, in ledger order, with
// the events and anomalies recorded since s.
func (l *Ledger) Diff(s Snapshot) *Report {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := &Report{Stats: l.stats}
	for pair := l.live.Oldest(); pair != nil; pair = pair.Next() {
		if _, existed := s.live[pair.Key]; !existed {
			r.Leaks = append(r.Leaks, *pair.Value)
		}
	}
	if s.events <= len(l.events) {
		r.Events = append([]Event(nil), l.events[s.events:]...)
	}
	if s.anomalies <= len(l.anomalies) {
		r.Anomalies = append([]Anomaly(nil), l.anomalies[s.anomalies:]...)
	}
	return r
}

// Check runs fn between a snapshot and a diff. The error combines fn's
// error with the leak error, if any.
func (l *Ledger) Check(fn func() error) (*Report, error) {
	s := l.Snapshot()
	err := fn()
	r := l.Diff(s)
	return r, multierr.Append(r.Err(), err)
}

// Err returns a memory leak error carrying r, or nil without leaks.
func (r *Report) Err() error {
	if len(r.Leaks) == 0 {
		return nil
	}
	return errors.MemoryLeak(len(r.Leaks), r)
}

// LeakedBytes is the total size of the leaked blocks.
func (r *Report) LeakedBytes() uint64 {
	return lo.SumBy(r.Leaks, func(p PointerInfo) uint64 { return uint64(p.Size) })
}

// EventsOf returns the window's events touching addr, as allocation,
// reallocation source or target, or release.
func (r *Report) EventsOf(addr native.Ptr) []Event {
	return lo.Filter(r.Events, func(e Event, _ int) bool {
		return e.Pointer.Address == addr || (e.Previous != nil && e.Previous.Address == addr)
	})
}

// String renders the report deterministically.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d leak(s), %d bytes\n", len(r.Leaks), r.LeakedBytes())
	for _, p := range r.Leaks {
		b.WriteString("  leak ")
		b.WriteString(p.String())
		b.WriteByte('\n')
		if p.Stack != "" {
			for _, line := range strings.Split(strings.TrimSuffix(p.Stack, "\n"), "\n") {
				b.WriteString("    ")
				b.WriteString(line)
				b.WriteByte('\n')
			}
		}
	}
	if len(r.Events) > 0 {
		b.WriteString("events:\n")
		for _, e := range r.Events {
			b.WriteString("  ")
			b.WriteString(e.String())
			b.WriteByte('\n')
		}
	}
	if len(r.Anomalies) > 0 {
		b.WriteString("anomalies:\n")
		for _, a := range r.Anomalies {
			b.WriteString("  ")
			b.WriteString(a.String())
			b.WriteByte('\n')
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}
