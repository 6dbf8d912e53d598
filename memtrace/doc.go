// Package memtrace instruments the native allocator to find leaks across
// the binding boundary.
//
// A Ledger installs hooks that pass every malloc, realloc and free through
// to the real heap while recording live blocks and an append-only event
// sequence. A unit of work is checked by diffing the live addresses before
// and after it:
//
//	ledger := memtrace.New()
//	if err := ledger.Install(lib); err != nil {
//		return err
//	}
//	defer ledger.Uninstall()
//
//	report, err := ledger.Check(func() error {
//		return work()
//	})
//
// Releases of addresses the ledger never saw are anomalies: they are logged
// and reported, never fatal, since they happen naturally for blocks
// allocated before Install.
package memtrace
