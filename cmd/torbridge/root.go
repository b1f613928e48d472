package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for torbridge.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "torbridge",
		Short: "Tor circuits, streams and HTTP behind a blocking bridge",
		Long: `torbridge manages Tor circuits and streams through the same session
the libtorbridge C library uses.

By default it connects to an existing Tor SOCKS proxy at 127.0.0.1:9050.
Use --embedded-tor to start a private Tor daemon instead.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Settings file path (default: .torbridge in current or home directory)")

	cmd.AddCommand(NewDialCmd())
	cmd.AddCommand(NewFetchCmd())
	cmd.AddCommand(NewJournalCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
