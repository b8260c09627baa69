// Package cmd for parsing command line arguments
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/threefoldtech/shipgate/internal/config"
	"github.com/threefoldtech/shipgate/internal/parser"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "shipgate",
	Short:         "Scan, gate and deploy a containerised service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		debug, err := cmd.Flags().GetBool("debug")
		if err != nil {
			return fmt.Errorf("invalid log debug mode input '%v' with error: %w", debug, err)
		}

		logLevel := zerolog.InfoLevel
		if debug {
			logLevel = zerolog.DebugLevel
		}

		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(logLevel).
			With().
			Timestamp().
			Logger()
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Send()
		stop()
		os.Exit(1)
	}
}

func init() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Logger()

	rootCmd.PersistentFlags().BoolP("debug", "d", false, "show debug level logs")
	rootCmd.PersistentFlags().StringP("config", "c", "shipgate.yaml", "path to configuration file [yaml, yml, json]")
	rootCmd.PersistentFlags().StringP("env", "e", "", "path to an env file with secrets")
}

// noArgs rejects extra arguments the way every command of the tool does
func noArgs(name string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 {
			return fmt.Errorf("'%s' and %v cannot be used together, please use one command at a time", name, args)
		}
		return nil
	}
}

// loadConfig reads the configuration file and env overrides named by the flags
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("error in configuration file: %w", err)
	}

	if configPath == "" {
		return config.Config{}, fmt.Errorf("required configuration file path is empty")
	}

	envPath, err := cmd.Flags().GetString("env")
	if err != nil {
		return config.Config{}, fmt.Errorf("error in env file: %w", err)
	}

	conf, err := parser.Load(configPath, envPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration file '%s' with error: %w", configPath, err)
	}
	return conf, nil
}
