//go:build !linux && !windows

package bridge

import (
	"github.com/petermattis/goid"

	"github.com/nao1215/torbridge/internal/registry"
)

// currentThread falls back to the goroutine id where no portable thread id
// is available. A cgo callback keeps one goroutine per C thread, so the
// mapping holds for calls arriving through the C library.
func currentThread() registry.Owner {
	return registry.Owner(goid.Get())
}
