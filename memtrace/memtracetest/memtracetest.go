// Package memtracetest runs tests inside leak-checking windows.
package memtracetest

import (
	"fmt"
	"os"
	"testing"

	"github.com/wippyai/freelan-binding/memtrace"
)

// Verify runs fn and fails tb when it leaves blocks behind. The quiesce
// functions run after fn and before the diff, to release state that is
// created lazily on use, such as per-thread error contexts.
func Verify(tb testing.TB, ledger *memtrace.Ledger, fn func(), quiesce ...func()) *memtrace.Report {
	tb.Helper()
	s := ledger.Snapshot()
	fn()
	for _, q := range quiesce {
		q()
	}
	r := ledger.Diff(s)
	if err := r.Err(); err != nil {
		tb.Errorf("%v\n%s", err, r)
	}
	return r
}

// Track checks the rest of the test: it snapshots now and diffs in a
// cleanup registered on tb.
func Track(tb testing.TB, ledger *memtrace.Ledger, quiesce ...func()) {
	tb.Helper()
	s := ledger.Snapshot()
	tb.Cleanup(func() {
		for _, q := range quiesce {
			q()
		}
		r := ledger.Diff(s)
		if err := r.Err(); err != nil {
			tb.Errorf("%v\n%s", err, r)
		}
	})
}

// Main runs the package's tests inside one window and turns a leak into a
// failing exit code. Use it from TestMain:
//
//	func TestMain(m *testing.M) {
//		os.Exit(memtracetest.Main(m, ledger, contexts.ClearAll))
//	}
func Main(m *testing.M, ledger *memtrace.Ledger, quiesce ...func()) int {
	s := ledger.Snapshot()
	code := m.Run()
	for _, q := range quiesce {
		q()
	}
	r := ledger.Diff(s)
	if err := r.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n%s\n", err, r)
		if code == 0 {
			code = 1
		}
	}
	return code
}
