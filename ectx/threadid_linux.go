//go:build linux

package ectx

import "golang.org/x/sys/unix"

func threadID() (int, bool) {
	return unix.Gettid(), true
}
