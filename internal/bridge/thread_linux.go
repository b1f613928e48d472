//go:build linux

package bridge

import (
	"golang.org/x/sys/unix"

	"github.com/nao1215/torbridge/internal/registry"
)

// currentThread returns the kernel id of the calling OS thread. A cgo call
// runs on the C caller's thread for its whole duration.
func currentThread() registry.Owner {
	return registry.Owner(unix.Gettid())
}
