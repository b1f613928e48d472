package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nao1215/torbridge/internal/config"
	"github.com/nao1215/torbridge/internal/journal"
	"github.com/spf13/cobra"
)

// NewJournalCmd creates the journal command.
func NewJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Report circuits and streams that were never closed",
		Long: `Journal reads the handle journal and prints a Markdown report of the
circuits and streams a session opened but never closed.

The journal is only written when enabled with "journal: true" in the
settings file, TORBRIDGE_CONFIG for the C library, or --journal.

Examples:
  # Report on the most recent session
  torbridge journal

  # List recorded sessions
  torbridge journal --list

  # Report on a specific session
  torbridge journal --session 5f0c...`,
		Args: cobra.NoArgs,
		RunE: runJournalCmd,
	}

	cmd.Flags().String("session", "", "Session id (default: most recent session)")
	cmd.Flags().String("dir", "", "Journal directory (default: from settings)")
	cmd.Flags().BoolP("list", "l", false, "List sessions instead of reporting")

	return cmd
}

func runJournalCmd(cmd *cobra.Command, _ []string) error {
	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return err
	}
	if dir == "" {
		cfg, err := config.Load(getConfigFlag(cmd))
		if err != nil {
			return err
		}
		dir = cfg.JournalDir
	}
	sessionID, err := cmd.Flags().GetString("session")
	if err != nil {
		return err
	}
	list, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}

	opts := journal.DefaultOptions()
	opts.CreateIfNotExists = false
	j, err := journal.Open(dir, opts)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer j.Close()

	if list {
		return listSessions(cmd.Context(), j, cmd.OutOrStdout())
	}
	return reportSession(cmd.Context(), j, cmd.OutOrStdout(), sessionID)
}

func listSessions(ctx context.Context, j *journal.Journal, out io.Writer) error {
	sessions, err := j.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions recorded.")
		return nil
	}
	for _, info := range sessions {
		fmt.Fprintf(out, "%s  %s  %d events\n",
			info.ID, info.Started.Format("2006-01-02 15:04:05"), info.Events)
	}
	return nil
}

func reportSession(ctx context.Context, j *journal.Journal, out io.Writer, sessionID string) error {
	if sessionID == "" {
		id, err := j.LastSession(ctx)
		if err != nil {
			if errors.Is(err, journal.ErrNoSessions) {
				return errors.New("no sessions recorded (enable the journal in the settings file)")
			}
			return err
		}
		sessionID = id
	}

	sessions, err := j.Sessions(ctx)
	if err != nil {
		return err
	}
	var info *journal.SessionInfo
	for i := range sessions {
		if sessions[i].ID == sessionID {
			info = &sessions[i]
			break
		}
	}
	if info == nil {
		return fmt.Errorf("session not found: %s", sessionID)
	}

	leaks, err := j.Leaks(ctx, sessionID)
	if err != nil {
		return err
	}
	return journal.WriteMarkdown(out, *info, leaks)
}
