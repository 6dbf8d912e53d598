// Package native is the in-process native core the binding wraps.
//
// It exposes a handle-based API: values, error contexts and I/O services
// are addresses (Ptr) in a heap backed by a wazero linear memory. Every
// allocation the library makes goes through the registered allocator hooks,
// so an instrumented allocator sees each block, including the strings
// returned by to_string entry points:
//
//	lib, err := native.Open(ctx, native.Config{})
//	ectx := lib.AcquireErrorContext()
//	parse, _ := lib.Symbol("freelan_IPv4Address_from_string")
//	v := parse.(native.FromStringFunc)(ectx, "10.0.0.1")
//
// Value entry points are resolved by name through Library.Symbol, following
// the freelan_{Type}_{operation} convention.
package native
