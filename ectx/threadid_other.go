//go:build !linux

package ectx

// Without a thread identity every Do runs with its own context.
func threadID() (int, bool) {
	return 0, false
}
