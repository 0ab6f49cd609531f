package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lockplane/changeplane/internal/changelog"
)

var calculateChecksumCmd = &cobra.Command{
	Use:   "calculate-checksum PATH::ID::AUTHOR",
	Short: "Print the checksum of one changeset",
	Long: `Print the checksum the ledger would record for a changeset. Use it to fill
validCheckSums after a deliberate edit to a changeset that already ran.`,
	Example: `  changeplane calculate-checksum db/changelog.yaml::create-users::alice`,
	Args:    cobra.ExactArgs(1),
	RunE:    runCalculateChecksum,
}

func init() {
	rootCmd.AddCommand(calculateChecksumCmd)
}

func runCalculateChecksum(cmd *cobra.Command, args []string) error {
	id, err := parseIdentity(args[0])
	if err != nil {
		return err
	}
	env, err := resolveEnvironment()
	if err != nil {
		return err
	}
	log, err := loadChangeLog(env)
	if err != nil {
		return err
	}
	cs, ok := log.Find(id)
	if !ok {
		return fmt.Errorf("changeset %s is not in %s", id, env.Changelog)
	}
	sum, err := cs.Checksum()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), sum)
	return nil
}

func parseIdentity(s string) (changelog.Identity, error) {
	parts := strings.Split(s, "::")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return changelog.Identity{}, fmt.Errorf("invalid changeset identity %q: expected PATH::ID::AUTHOR", s)
	}
	return changelog.NewIdentity(parts[1], parts[2], parts[0]), nil
}
