package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lockplane/changeplane/internal/change"
)

var (
	statusJSON bool
	statusAll  bool
	verifyJSON bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which changesets are pending and why the others are skipped",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that executed changesets are reflected in the database schema",
	Args:  cobra.NoArgs,
	RunE:  runVerify,
}

var tagCmd = &cobra.Command{
	Use:   "tag TAG",
	Short: "Tag the most recently executed changeset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			if err := s.migrator.Tag(ctx, args[0]); err != nil {
				return err
			}
			_, _ = green.Fprintf(cmd.OutOrStdout(), "✓ Tagged the ledger as %s\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(tagCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the status as JSON")
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "Include changesets that already ran")
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "Print the results as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		log, err := loadChangeLog(s.env)
		if err != nil {
			return err
		}
		statuses, err := s.migrator.Status(ctx, log, s.request())
		if err != nil {
			return err
		}
		if statusJSON {
			return printJSON(cmd.OutOrStdout(), statuses)
		}

		out := cmd.OutOrStdout()
		pending := 0
		tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
		for _, st := range statuses {
			switch {
			case st.Pending:
				pending++
				_, _ = yellow.Fprintf(tw, "pending\t%s\t%s\n", st.ChangeSet, st.Reason)
			case st.Drifted:
				_, _ = red.Fprintf(tw, "changed\t%s\t%s\n", st.ChangeSet, st.Reason)
			case statusAll || !st.Ran:
				state := "skipped"
				if st.Ran {
					state = string(st.ExecType)
				}
				_, _ = faint.Fprintf(tw, "%s\t%s\t%s\n", state, st.ChangeSet, st.Reason)
			}
		}
		_ = tw.Flush()
		fmt.Fprintf(out, "%d of %d changeset(s) pending\n", pending, len(statuses))
		return nil
	})
}

func runVerify(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		log, err := loadChangeLog(s.env)
		if err != nil {
			return err
		}
		results, err := s.migrator.Verify(ctx, log)
		if err != nil {
			return err
		}
		if verifyJSON {
			return printJSON(cmd.OutOrStdout(), results)
		}

		out := cmd.OutOrStdout()
		failed := 0
		for _, r := range results {
			switch r.Status {
			case change.Applied:
				_, _ = green.Fprintf(out, "✓ %s\n", r.ChangeSet)
			case change.CannotVerify, change.Unknown:
				_, _ = faint.Fprintf(out, "? %s: %s\n", r.ChangeSet, r.Status)
			default:
				failed++
				_, _ = red.Fprintf(out, "✗ %s: %s\n", r.ChangeSet, r.Status)
			}
			for _, msg := range r.Messages {
				fmt.Fprintf(out, "    %s\n", msg)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d changeset(s) are not reflected in the database", failed)
		}
		return nil
	})
}
