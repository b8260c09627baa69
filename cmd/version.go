package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// set at build time
var (
	commit  string
	version string
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Get latest build tag",
	Args:  noArgs("version"),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "version: %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\n", commit)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
