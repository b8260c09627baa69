package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	command "github.com/threefoldtech/shipgate/internal/cmd"
)

// webhookCmd represents the webhook command
var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Receive and log quality gate webhook deliveries until interrupted",
	Args:  noArgs("webhook"),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return command.Webhook(cmd.Context(), conf, log.Logger)
	},
}

func init() {
	rootCmd.AddCommand(webhookCmd)
}
