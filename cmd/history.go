package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	command "github.com/threefoldtech/shipgate/internal/cmd"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the latest runs",
	Args:  noArgs("history"),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return fmt.Errorf("invalid limit: %w", err)
		}
		if limit <= 0 {
			return fmt.Errorf("limit should be positive, got %d", limit)
		}

		all, err := cmd.Flags().GetBool("all")
		if err != nil {
			return err
		}

		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return command.History(cmd.Context(), conf, limit, all, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "n", 10, "number of runs to list")
	historyCmd.Flags().Bool("all", false, "list the runs of every project")
}
