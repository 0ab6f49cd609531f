package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lockplane/changeplane/database"
	"github.com/lockplane/changeplane/internal/catalog"
	"github.com/lockplane/changeplane/internal/changelog"
	"github.com/lockplane/changeplane/internal/connection"
	"github.com/lockplane/changeplane/internal/logic"
)

var validateDialect string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the changelog without connecting to the database",
	Long: `Load the changelog, check changeset identities are unique, and validate every
statement (and its rollback) against the target dialect. Nothing connects to
the database.`,
	Example: `  # Validate against the dialect of the configured database URL
  changeplane validate

  # Validate a changelog for SQLite
  changeplane validate --dialect sqlite --changelog db/changelog.yaml`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateDialect, "dialect", "", "Dialect to validate for (default: detected from the database URL)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	env, err := resolveEnvironment()
	if err != nil {
		return err
	}
	dialectName := validateDialect
	if dialectName == "" {
		dialectName = env.Dialect
	}
	var dialect database.Dialect
	if dialectName != "" {
		dialect, err = connection.DialectByName(dialectName)
	} else {
		var target connection.Target
		target, err = connection.Resolve(env.DatabaseURL, "", env.Driver)
		dialect = target.Dialect
	}
	if err != nil {
		return fmt.Errorf("%w (pass --dialect to validate offline)", err)
	}

	log, err := loadChangeLog(env)
	if err != nil {
		return err
	}
	if err := log.Validate(); err != nil {
		return err
	}
	dispatcher, err := catalog.NewDispatcher()
	if err != nil {
		return err
	}

	verr, noRollback, err := validateChangeLog(dispatcher, dialect, log)
	if err != nil {
		return err
	}
	for _, desc := range noRollback {
		_, _ = yellow.Fprintf(cmd.ErrOrStderr(), "⚠ %s cannot be rolled back automatically\n", desc)
	}
	if err := verr.ErrOrNil(); err != nil {
		return err
	}
	_, _ = green.Fprintf(cmd.OutOrStdout(), "✓ %d changeset(s) are valid for %s\n", len(log.ChangeSets()), dialect.Name())
	return nil
}

// validateChangeLog validates every statement and rollback statement of the
// changesets that apply to dialect. noRollback lists the statements with
// neither a declared rollback nor an automatic inverse.
func validateChangeLog(dispatcher *logic.Dispatcher, dialect database.Dialect, log *changelog.ChangeLog) (verr *logic.ValidationError, noRollback []string, err error) {
	verr = &logic.ValidationError{}
	for _, cs := range log.ChangeSets() {
		if cs.Ignored() || !changelog.MatchesDbms(cs.Dbms, dialect.Name()) {
			continue
		}
		for _, rollback := range []bool{false, true} {
			env := &logic.Environment{Dialect: dialect, ChangeSet: cs, Rollback: rollback}
			stmts := cs.Statements
			if rollback {
				var missing []string
				stmts, missing = cs.RollbackStatements()
				for _, desc := range missing {
					noRollback = append(noRollback, fmt.Sprintf("%s: %s", cs, desc))
				}
			}
			for _, stmt := range stmts {
				errs, err := dispatcher.Validate(stmt, env)
				if err != nil {
					return nil, nil, err
				}
				verr.Append(cs.String(), stmt, errs)
			}
		}
	}
	return verr, noRollback, nil
}
