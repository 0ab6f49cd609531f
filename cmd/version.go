package cmd

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var versionShort bool

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print only the module version")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the changeplane version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		info := readBuild()
		if versionShort {
			fmt.Fprintln(cmd.OutOrStdout(), info.Version)
			return
		}
		fmt.Fprintln(cmd.OutOrStdout(), info)
	},
}

// build is what the binary knows about where it came from
type build struct {
	Version  string
	Revision string
	Time     string
	Dirty    bool
}

func readBuild() build {
	b := build{Version: "dev"}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		b.Version = v
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			b.Revision = s.Value
		case "vcs.modified":
			b.Dirty = s.Value == "true"
		case "vcs.time":
			b.Time = s.Value
		}
	}
	return b
}

func (b build) String() string {
	out := b.Version
	if b.Revision != "" {
		rev := b.Revision
		if len(rev) > 12 {
			rev = rev[:12]
		}
		if b.Dirty {
			rev += "-dirty"
		}
		out += " " + rev
	}
	if b.Time != "" {
		out += " (" + b.Time + ")"
	}
	return out
}

// getVersion is shown by --version and recorded in the ledger
func getVersion() string {
	return readBuild().String()
}
