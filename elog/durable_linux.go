//go:build linux
// +build linux

package elog

import (
	"os"

	"golang.org/x/sys/unix"
)

// durableSync flushes f's dirty pages to stable storage without the
// extra metadata sync that f.Sync() performs; the log's size and
// mtime don't need to survive a crash precisely, only its bytes do.
func durableSync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
