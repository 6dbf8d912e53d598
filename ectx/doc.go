// Package ectx carries the native library's per-thread error context.
//
// Every native call that reports failures through an error context goes
// through Registry.Do, which keeps the reset, call and check steps visible
// at the call site:
//
//	err := contexts.Do(func(ectx native.Ptr) error {
//		n = lib.IOServiceRun(ectx, svc)
//		return nil
//	})
//
// The check runs on every exit path. A recorded category becomes a
// native operation error carrying the full snapshot.
package ectx
