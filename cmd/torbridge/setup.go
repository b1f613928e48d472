package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/torbridge/internal/config"
	"github.com/nao1215/torbridge/internal/journal"
	"github.com/nao1215/torbridge/internal/log"
	"github.com/nao1215/torbridge/internal/session"
	"github.com/spf13/cobra"
)

// addTorFlags registers the flags shared by commands that bootstrap Tor.
func addTorFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("embedded-tor", "E", false,
		"Start an embedded Tor daemon instead of using an external proxy")
	cmd.Flags().StringP("socks", "s", config.DefaultSocksAddress,
		"External Tor SOCKS5 proxy address")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")
	cmd.Flags().DurationP("timeout", "t", config.DefaultDialTimeout,
		"Timeout for each stream dial, TLS connect and HTTP request")
	cmd.Flags().IntP("workers", "w", 0,
		"Maximum concurrent blocking operations (0 = number of CPUs)")
	cmd.Flags().Bool("journal", false,
		"Record handle lifecycle events in the journal")
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getConfigFlag retrieves the settings file path from the command or its parent.
func getConfigFlag(cmd *cobra.Command) string {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		path, err = cmd.Root().PersistentFlags().GetString("config")
		if err != nil {
			return ""
		}
	}
	return path
}

// buildConfig loads the settings file and applies any flags the user set
// explicitly on top of it.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(getConfigFlag(cmd))
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("embedded-tor") {
		if cfg.UseEmbeddedTor, err = flags.GetBool("embedded-tor"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("socks") {
		if cfg.SocksAddress, err = flags.GetString("socks"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("tor-timeout") {
		if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("timeout") {
		if cfg.DialTimeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("workers") {
		if cfg.Workers, err = flags.GetInt("workers"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("journal") {
		if cfg.EnableJournal, err = flags.GetBool("journal"); err != nil {
			return nil, err
		}
	}
	if getVerboseFlag(cmd) {
		cfg.Verbose = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func setupLogger(verbose bool) *slog.Logger {
	return log.NewSecureLogger(os.Stderr, verbose)
}

// openSession builds a session from cmd's settings. The returned cleanup
// closes the session and the journal.
func openSession(cmd *cobra.Command) (*session.Session, func(), error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := setupLogger(cfg.Verbose)
	slog.SetDefault(logger)

	opts := []session.Option{session.WithLogger(logger)}
	var j *journal.Journal
	if cfg.EnableJournal {
		j, err = journal.Open(cfg.JournalDir, journal.DefaultOptions())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open journal: %w", err)
		}
		opts = append(opts, session.WithJournal(j))
	}

	s := session.NewFromConfig(cfg, opts...)
	logger.Info("session created",
		"embeddedTor", cfg.UseEmbeddedTor,
		"socksAddress", cfg.SocksAddress,
		"journal", cfg.EnableJournal,
	)

	cleanup := func() {
		if err := s.Close(); err != nil {
			logger.Warn("failed to close session", "error", err)
		}
		if j != nil {
			if err := j.Close(); err != nil {
				logger.Warn("failed to close journal", "error", err)
			}
		}
	}
	return s, cleanup, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM. onSignal
// runs once when a signal arrives, before the context is cancelled.
func signalContext(parent context.Context, logger *slog.Logger, onSignal func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			if onSignal != nil {
				onSignal()
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
