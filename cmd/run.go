package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	command "github.com/threefoldtech/shipgate/internal/cmd"
	"github.com/threefoldtech/shipgate/pkg/pipeline"
	"golang.org/x/sys/unix"
)

const (
	ymlExt  = ".yml"
	yamlExt = ".yaml"
	jsonExt = ".json"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the whole pipeline: checkout, scan, quality gate and deploy",
	Args:  noArgs("run"),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd, nil, "")
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	addReportFlags(runCmd)
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "write the run report to a file [yaml, yml, json]")
	cmd.Flags().StringP("format", "f", command.FormatTable, "format the report is printed in [table, yaml, json]")
}

// runStages runs the selected stages with the report flags of cmd
func runStages(cmd *cobra.Command, selected []string, taskID string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("error in output file: %w", err)
	}

	if err := checkOutput(outputPath); err != nil {
		return err
	}

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("error in report format: %w", err)
	}

	switch format {
	case command.FormatTable, pipeline.FormatJSON, pipeline.FormatYAML:
	default:
		return fmt.Errorf("unsupported report format '%s', should be [table, yaml, json]", format)
	}

	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	_, err = command.Run(cmd.Context(), conf, command.RunOptions{
		Stages: selected,
		TaskID: taskID,
		Output: outputPath,
		Format: format,
	}, cmd.OutOrStdout(), log.Logger)
	return err
}

func checkOutput(outputPath string) error {
	if outputPath == "" {
		return nil
	}

	ext := filepath.Ext(outputPath)
	if ext != jsonExt && ext != yamlExt && ext != ymlExt {
		return fmt.Errorf("unsupported output file format '%s', should be [yaml, yml, json]", outputPath)
	}

	_, err := os.Stat(outputPath)
	// check if output file is writable
	if !errors.Is(err, os.ErrNotExist) && unix.Access(outputPath, unix.W_OK) != nil {
		return fmt.Errorf("output path '%s' is not writable", outputPath)
	}
	return nil
}
