package cmd

import (
	"github.com/spf13/cobra"
	"github.com/threefoldtech/shipgate/internal/stages"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Check out the workspace and run the static analysis scanner",
	Args:  noArgs("scan"),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd, []string{stages.Checkout, stages.Scan}, "")
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	addReportFlags(scanCmd)
}
