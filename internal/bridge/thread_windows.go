//go:build windows

package bridge

import (
	"golang.org/x/sys/windows"

	"github.com/nao1215/torbridge/internal/registry"
)

func currentThread() registry.Owner {
	return registry.Owner(windows.GetCurrentThreadId())
}
