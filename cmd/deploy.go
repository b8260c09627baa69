package cmd

import (
	"github.com/spf13/cobra"
	"github.com/threefoldtech/shipgate/internal/stages"
)

// deployCmd represents the deploy command
var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Pull the branch on the deploy host and rebuild the service, bypassing the scan and the quality gate",
	Args:  noArgs("deploy"),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd, []string{stages.Deploy}, "")
	},
}

func init() {
	rootCmd.AddCommand(deployCmd)
	addReportFlags(deployCmd)
}
