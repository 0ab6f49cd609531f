package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lockplane/changeplane/internal/migrator"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Apply every pending changeset",
	Long: `Apply every pending changeset of the changelog, in changelog order.

Changesets that already ran are skipped unless they are marked runAlways, or
runOnChange and were edited. Contexts and labels narrow the selection.`,
	Example: `  # Apply everything pending
  changeplane update

  # Only changesets for the prod context
  changeplane update --contexts prod`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpdate(cmd, func(req *migrator.Request) {})
	},
}

var updateCountCmd = &cobra.Command{
	Use:   "update-count N",
	Short: "Apply the next N pending changesets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("count must be a positive integer, got %q", args[0])
		}
		return runUpdate(cmd, func(req *migrator.Request) { req.Count = n })
	},
}

var updateToTagCmd = &cobra.Command{
	Use:   "update-to-tag TAG",
	Short: "Apply pending changesets up to and including the one that sets TAG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpdate(cmd, func(req *migrator.Request) { req.ToTag = args[0] })
	},
}

var (
	updateSQLStrict bool
	updateSQLJSON   bool
)

var updateSQLCmd = &cobra.Command{
	Use:   "update-sql",
	Short: "Print the SQL an update would run, without running it",
	Long: `Print the SQL an update would run, without running it.

Statements whose SQL depends on the live schema (such as SQLite table
rebuilds) cannot be rendered ahead of time; they are reported as warnings,
or fail the command with --strict.`,
	Args: cobra.NoArgs,
	RunE: runUpdateSQL,
}

func init() {
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(updateCountCmd)
	rootCmd.AddCommand(updateToTagCmd)
	rootCmd.AddCommand(updateSQLCmd)

	updateSQLCmd.Flags().BoolVar(&updateSQLStrict, "strict", false, "Fail on statements that cannot be previewed")
	updateSQLCmd.Flags().BoolVar(&updateSQLJSON, "json", false, "Print the preview as JSON")
}

func runUpdate(cmd *cobra.Command, configure func(*migrator.Request)) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		log, err := loadChangeLog(s.env)
		if err != nil {
			return err
		}
		req := s.request()
		configure(&req)

		result, err := s.migrator.Update(ctx, log, req)
		printRunResult(cmd.OutOrStdout(), "applied", result)
		return err
	})
}

func runUpdateSQL(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		log, err := loadChangeLog(s.env)
		if err != nil {
			return err
		}
		m := s.migrator
		if updateSQLStrict {
			if m, err = s.strictMigrator(); err != nil {
				return err
			}
		}

		preview, err := m.Preview(ctx, log, s.request())
		if err != nil {
			return err
		}
		if updateSQLJSON {
			return printJSON(cmd.OutOrStdout(), preview)
		}
		printWarnings(cmd.ErrOrStderr(), preview.Warnings)
		fmt.Fprint(cmd.OutOrStdout(), preview.Script)
		return nil
	})
}
