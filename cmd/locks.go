package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var listLocksCmd = &cobra.Command{
	Use:   "list-locks",
	Short: "Show who holds the migration lock",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			holders, err := s.locker.ListHolders(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(holders) == 0 {
				fmt.Fprintln(out, "The lock is free.")
				return nil
			}
			for _, h := range holders {
				_, _ = yellow.Fprintf(out, "Locked by %s since %s (%s ago)\n",
					h.LockedBy, h.Granted.Local().Format(time.RFC3339), time.Since(h.Granted).Round(time.Second))
			}
			return nil
		})
	},
}

var releaseLocksCmd = &cobra.Command{
	Use:   "release-locks",
	Short: "Forcibly release the migration lock",
	Long: `Forcibly release the migration lock, whoever holds it.

Only use this when the holder is known to be gone, such as a deploy that was
killed mid-run. Releasing a lock a live run still holds lets two runs
interleave.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			holders, err := s.locker.ListHolders(ctx)
			if err != nil {
				return err
			}
			if err := s.locker.ForceRelease(ctx); err != nil {
				return err
			}
			for _, h := range holders {
				_, _ = green.Fprintf(cmd.OutOrStdout(), "✓ Released the lock held by %s\n", h.LockedBy)
			}
			if len(holders) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "The lock was already free.")
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(listLocksCmd)
	rootCmd.AddCommand(releaseLocksCmd)
}
