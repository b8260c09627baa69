package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	command "github.com/threefoldtech/shipgate/internal/cmd"
)

// dockerfileCmd represents the dockerfile command
var dockerfileCmd = &cobra.Command{
	Use:   "dockerfile",
	Short: "Render or check the container build file of the service",
}

var dockerfileRenderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the build file",
	Args:  noArgs("render"),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := cmd.Flags().GetString("output")
		if err != nil {
			return fmt.Errorf("error in output file: %w", err)
		}

		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return command.RenderDockerfile(conf, path, cmd.OutOrStdout())
	},
}

var dockerfileCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check a build file exposes the service port and starts the server",
	Args:  noArgs("check"),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := cmd.Flags().GetString("file")
		if err != nil {
			return fmt.Errorf("error in build file: %w", err)
		}

		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if err := command.CheckDockerfile(conf, path); err != nil {
			return err
		}
		log.Info().Str("file", path).Msg("build file is valid")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dockerfileCmd)
	dockerfileCmd.AddCommand(dockerfileRenderCmd)
	dockerfileCmd.AddCommand(dockerfileCheckCmd)

	dockerfileRenderCmd.Flags().StringP("output", "o", "", "file to write, stdout when empty")
	dockerfileCheckCmd.Flags().StringP("file", "f", "Dockerfile", "build file to check")
}
