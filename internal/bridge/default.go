package bridge

import (
	"os"
	"sync"

	"github.com/nao1215/torbridge/internal/config"
	"github.com/nao1215/torbridge/internal/journal"
	"github.com/nao1215/torbridge/internal/log"
	"github.com/nao1215/torbridge/internal/session"
)

var (
	defaultOnce   sync.Once
	defaultBridge *Bridge
)

// Default returns the process-wide Bridge used by the C library. It is
// built on first use from the settings file (see config.FindConfigFile) and
// lives for the rest of the process.
func Default() *Bridge {
	defaultOnce.Do(func() {
		defaultBridge = newDefault()
	})
	return defaultBridge
}

func newDefault() *Bridge {
	cfg, loadErr := config.Load("")
	if loadErr != nil {
		cfg = config.NewConfig()
	}
	logger := log.NewSecureLogger(os.Stderr, cfg.Verbose)

	if loadErr != nil {
		logger.Warn("failed to load settings, using defaults", "error", loadErr)
	}
	if err := cfg.Validate(); err != nil {
		logger.Warn("invalid settings, using defaults", "error", err)
		cfg = config.NewConfig()
	}

	opts := []session.Option{session.WithLogger(logger)}
	if cfg.EnableJournal {
		j, err := journal.Open(cfg.JournalDir, journal.DefaultOptions())
		if err != nil {
			logger.Warn("journal disabled", "dir", cfg.JournalDir, "error", err)
		} else {
			opts = append(opts, session.WithJournal(j))
		}
	}

	return New(session.NewFromConfig(cfg, opts...), WithLogger(logger))
}
