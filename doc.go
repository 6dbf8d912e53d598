// Package freelan binds Go to the freelan native value library and carries
// a harness that proves the binding does not leak native memory.
//
// The library is organized into several packages with distinct responsibilities:
//
//	freelan/             Binding facade, configuration and native log bridge
//	├── native/          The native core: heap, allocator hooks, error contexts, value entry points, I/O services
//	├── ectx/            Error context handles and the per-thread registry
//	├── value/           Typed wrappers over the native value types
//	├── memtrace/        Allocation ledger and leak reports
//	│   └── memtracetest/  Leak-checking windows for tests
//	├── iosvc/           Task poster over a native I/O service
//	├── resource/        Handle tables for native objects with Go-side state
//	└── errors/          Structured error types
//
// # Quick Start
//
//	cfg := freelan.DefaultConfig()
//	cfg.Memory.Track = true
//
//	b, err := freelan.Open(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close(ctx)
//
//	report, err := b.Ledger().Check(func() error {
//	    ep, err := value.Parse[value.EndpointOf[value.IPv4]](b.Values(), "9.0.0.1:12000")
//	    if err != nil {
//	        return err
//	    }
//	    defer ep.Close()
//	    fmt.Println(ep) // 9.0.0.1:12000
//	    b.Quiesce()
//	    return nil
//	})
//
// # Memory Model
//
// Every native object lives in a block of the native heap. Go wrappers own
// their blocks and release them on Close; there are no finalizers. Blocks
// that outlive a Check window are reported as leaks with the allocation
// site recorded by the native library.
//
// # Logging
//
// Each package exposes Logger and SetLogger and is silent by default. With
// log.bridge enabled, native log entries at or above log.level are written
// to this package's logger under the "native" name.
package freelan
