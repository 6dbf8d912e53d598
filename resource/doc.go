// Package resource provides handle tables for native objects that carry
// Go-side state.
//
// The native library hands out opaque handles (heap addresses) for error
// contexts and I/O services. The state behind those handles (error fields,
// task queues) lives in Go and is looked up through a Table:
//
//	contexts := resource.NewTable[*errorState]("error_context")
//
//	// Store state under the handle returned to callers
//	err := contexts.Insert(resource.Handle(ptr), state)
//
//	// Look it up on every native call
//	state, ok := contexts.Get(resource.Handle(ptr))
//
//	// Release it when the caller frees the handle
//	state, ok = contexts.Remove(resource.Handle(ptr))
//
// # Observers
//
// Register observers to track lifecycle events:
//
//	contexts.Subscribe(observer) // observer implements OnResourceEvent(Event)
//
// Observers are compared by identity on Unsubscribe, so use pointer types.
//
// # Memory Management
//
// Values are not garbage collected with their handles. The owner must call
// Remove when the native object is freed. Values implementing Dropper are
// dropped on Remove and on Close.
package resource
