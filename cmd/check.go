package cmd

import (
	"github.com/spf13/cobra"
	command "github.com/threefoldtech/shipgate/internal/cmd"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the scanner, the sonar server and the deploy host are reachable",
	Args:  noArgs("check"),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return command.Check(cmd.Context(), conf, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
