package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lockplane/changeplane/internal/migrator"
)

var (
	rollbackTag   string
	rollbackDate  string
	rollbackCount int
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back executed changesets",
	Long: `Roll back executed changesets, latest first, using each changeset's declared
rollback or the automatic inverse of its statements.

Exactly one boundary is required: everything executed after a tag, after a
date, or the last N changesets.`,
	Example: `  # Undo everything applied after the v1.4 tag
  changeplane rollback --tag v1.4

  # Undo the last two changesets
  changeplane rollback --count 2

  # Undo everything applied after a point in time
  changeplane rollback --date 2026-03-01T12:00:00Z`,
	Args: cobra.NoArgs,
	RunE: runRollback,
}

func init() {
	rootCmd.AddCommand(rollbackCmd)

	rollbackCmd.Flags().StringVar(&rollbackTag, "tag", "", "Roll back everything executed after this tag")
	rollbackCmd.Flags().StringVar(&rollbackDate, "date", "", "Roll back everything executed after this time (RFC 3339 or YYYY-MM-DD)")
	rollbackCmd.Flags().IntVar(&rollbackCount, "count", 0, "Roll back the last N changesets")
	rollbackCmd.MarkFlagsMutuallyExclusive("tag", "date", "count")
	rollbackCmd.MarkFlagsOneRequired("tag", "date", "count")
}

func runRollback(cmd *cobra.Command, args []string) error {
	req := migrator.RollbackRequest{ToTag: rollbackTag, Count: rollbackCount}
	if rollbackDate != "" {
		date, err := parseDate(rollbackDate)
		if err != nil {
			return err
		}
		req.ToDate = date
	}

	return withSession(cmd, func(ctx context.Context, s *session) error {
		log, err := loadChangeLog(s.env)
		if err != nil {
			return err
		}
		req.Contexts = s.env.Contexts
		req.Labels = s.env.Labels

		result, err := s.migrator.Rollback(ctx, log, req)
		printRunResult(cmd.OutOrStdout(), "rolled back", result)
		return err
	})
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: use RFC 3339 or YYYY-MM-DD", value)
}
