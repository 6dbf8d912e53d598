package resource

import (
	"errors"
	"sync"
)

var (
	ErrClosed        = errors.New("resource table closed")
	ErrInvalidHandle = errors.New("invalid handle")
	ErrHandleInUse   = errors.New("handle already in use")
)

// Table maps native handles to Go-side state of one kind of object.
//
// Handles are chosen by the caller (the native library uses the address of
// the object's heap block), so the table never invents identifiers.
type Table[T any] struct {
	entries   map[Handle]T
	kind      string
	observers []Observer
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

// NewTable creates an empty table. kind names the objects in events.
func NewTable[T any](kind string) *Table[T] {
	return &Table[T]{
		entries: make(map[Handle]T, 16),
		kind:    kind,
	}
}

// Insert stores a value under handle.
func (t *Table[T]) Insert(handle Handle, value T) error {
	if handle == 0 {
		return ErrInvalidHandle
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if _, exists := t.entries[handle]; exists {
		t.mu.Unlock()
		return ErrHandleInUse
	}
	t.entries[handle] = value
	t.mu.Unlock()

	t.notify(Event{
		Type:   EventCreated,
		Handle: handle,
		Kind:   t.kind,
		Value:  value,
	})
	return nil
}

// Get retrieves a value by handle.
func (t *Table[T]) Get(handle Handle) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.entries[handle]
	return v, ok
}

// Remove drops a value and returns (value, true) if found.
// Values implementing Dropper are dropped before observers are notified.
func (t *Table[T]) Remove(handle Handle) (T, bool) {
	t.mu.Lock()
	value, ok := t.entries[handle]
	if ok {
		delete(t.entries, handle)
	}
	t.mu.Unlock()

	if !ok {
		return value, false
	}

	if d, ok := any(value).(Dropper); ok {
		d.Drop()
	}

	t.notify(Event{
		Type:   EventDropped,
		Handle: handle,
		Kind:   t.kind,
		Value:  value,
	})
	return value, true
}

// Len returns the number of live values.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Each iterates over a copy of the live handles. Iteration stops when fn returns false.
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	t.mu.RLock()
	handles := make([]Handle, 0, len(t.entries))
	values := make([]T, 0, len(t.entries))
	for h, v := range t.entries {
		handles = append(handles, h)
		values = append(values, v)
	}
	t.mu.RUnlock()

	for i, h := range handles {
		if !fn(h, values[i]) {
			return
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (t *Table[T]) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table[T]) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Close drops every remaining value and rejects further inserts.
func (t *Table[T]) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	// Collect handles first to avoid holding the lock during Remove
	var handles []Handle
	t.Each(func(h Handle, _ T) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		t.Remove(h)
	}
	return nil
}

func (t *Table[T]) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
