package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagEnv         string
	flagChangelog   string
	flagContexts    []string
	flagLabels      string
	flagVerbose     bool
	flagLockTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "changeplane",
	Short: "Changelog-driven database schema migrations",
	Long: `Changeplane applies changelogs of schema changesets to PostgreSQL, SQLite and
libSQL databases, records what ran in a ledger table, and holds a
distributed lock while it works.`,
	Version:       getVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if flagVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagEnv, "env", "", "Environment from changeplane.toml (default: default_environment or \"local\")")
	flags.StringVar(&flagChangelog, "changelog", "", "Path to the root changelog file")
	flags.StringSliceVar(&flagContexts, "contexts", nil, "Run contexts, comma separated")
	flags.StringVar(&flagLabels, "labels", "", "Label expression selecting changesets")
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "Log at debug level")
	flags.DurationVar(&flagLockTimeout, "lock-timeout", 0, "How long to wait for the lock (default from config, 5m)")
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}
