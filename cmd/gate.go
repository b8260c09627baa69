package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/threefoldtech/shipgate/internal/stages"
)

// gateCmd represents the gate command
var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Wait for the quality gate of an analysis",
	Long: "Wait for the quality gate of an analysis. The task is read from the scanner report\n" +
		"left in the workspace unless --task is given. Not available in the scanner gate mode,\n" +
		"where the verdict is the exit code of the scan itself.",
	Args: noArgs("gate"),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID, err := cmd.Flags().GetString("task")
		if err != nil {
			return fmt.Errorf("error in task id: %w", err)
		}
		return runStages(cmd, []string{stages.Gate}, taskID)
	},
}

func init() {
	rootCmd.AddCommand(gateCmd)
	addReportFlags(gateCmd)
	gateCmd.Flags().StringP("task", "t", "", "analysis task id to wait for")
}
