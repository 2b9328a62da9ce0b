//go:build !linux
// +build !linux

package elog

import "os"

// durableSync falls back to a full Sync on platforms without a
// cheaper data-only sync call.
func durableSync(f *os.File) error {
	return f.Sync()
}
