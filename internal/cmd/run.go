// Package cmd for handling commands
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/threefoldtech/shipgate/internal/config"
	"github.com/threefoldtech/shipgate/internal/gate"
	"github.com/threefoldtech/shipgate/internal/history"
	"github.com/threefoldtech/shipgate/internal/notify"
	"github.com/threefoldtech/shipgate/internal/stages"
	"github.com/threefoldtech/shipgate/pkg/pipeline"
)

// FormatTable prints reports as a table
const FormatTable = "table"

// ErrGateWithoutScan is returned for a gate run apart from the scan in the scanner gate mode,
// where the scan exit code is the only verdict
var ErrGateWithoutScan = errors.New("the scanner gate mode has no verdict without a scan in the same run")

// RunOptions of a pipeline invocation
type RunOptions struct {
	// Stages to run, every stage when empty
	Stages []string
	// TaskID makes the gate wait for an existing analysis instead of a fresh scan
	TaskID string
	// Output is a yaml or json file the report is written to
	Output string
	// Format the report is printed in
	Format string
	// Notifier overrides the notifier built from the configuration
	Notifier notify.Notifier
	// RunnerOptions are passed to the stages runner
	RunnerOptions []stages.Option
}

// Run runs the pipeline, or some of its stages, records the report and notifies about it.
// Failing to record or notify never changes the outcome of the run.
func Run(ctx context.Context, conf config.Config, opts RunOptions, out io.Writer, logger zerolog.Logger) (pipeline.Report, error) {
	gateOnly := runs(opts.Stages, stages.Gate) && !runs(opts.Stages, stages.Scan)
	if gateOnly && conf.Gate.Mode == config.GateModeScanner {
		return pipeline.Report{}, ErrGateWithoutScan
	}

	runnerOpts := opts.RunnerOptions

	if conf.Gate.Mode == config.GateModeWebhook && runs(opts.Stages, stages.Gate) {
		listener := gate.NewListener(conf.Project.Key, conf.Gate.WebhookSecret, logger.With().Str("source", "webhook").Logger())
		if err := listener.Start(conf.Gate.WebhookListen); err != nil {
			return pipeline.Report{}, err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := listener.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("webhook listener shutdown error")
			}
		}()
		runnerOpts = append([]stages.Option{stages.WithSource(listener)}, runnerOpts...)
	}

	runner, err := stages.New(conf, logger, runnerOpts...)
	if err != nil {
		return pipeline.Report{}, err
	}

	selected, err := selectStages(runner, opts.Stages)
	if err != nil {
		return pipeline.Report{}, err
	}

	if gateOnly {
		if opts.TaskID != "" {
			runner.SetTask(opts.TaskID)
		} else if err := runner.LoadTask(); err != nil {
			return pipeline.Report{}, errors.Wrap(err, "no task given and no report from a previous scan")
		}
	}

	report, runErr := pipeline.New(conf.Project.Key, logger, selected...).Run(ctx)

	record(conf, report, logger)

	notifier := opts.Notifier
	if notifier == nil {
		notifier = newNotifier(conf, logger)
	}
	if err := notifier.Notify(report); err != nil {
		logger.Error().Err(err).Msg("failed to send notification")
	}

	if opts.Output != "" {
		if err := writeReport(report, opts.Output); err != nil {
			logger.Error().Err(err).Str("output", opts.Output).Msg("failed to write report")
		}
	}

	if err := printReport(out, report, opts.Format); err != nil {
		logger.Error().Err(err).Msg("failed to print report")
	}

	return report, runErr
}

func runs(selected []string, name string) bool {
	if len(selected) == 0 {
		return true
	}
	for _, s := range selected {
		if s == name {
			return true
		}
	}
	return false
}

func selectStages(runner *stages.Runner, names []string) ([]pipeline.Stage, error) {
	all := runner.Stages()
	if len(names) == 0 {
		return all, nil
	}

	known := map[string]bool{}
	for _, stage := range all {
		known[stage.Name] = true
	}
	for _, name := range names {
		if !known[name] {
			return nil, errors.Errorf("unknown stage '%s'", name)
		}
	}

	// stages keep the pipeline order whatever order they were asked in
	selected := make([]pipeline.Stage, 0, len(names))
	for _, stage := range all {
		if runs(names, stage.Name) {
			selected = append(selected, stage)
		}
	}
	return selected, nil
}

func record(conf config.Config, report pipeline.Report, logger zerolog.Logger) {
	if conf.History.Disabled || conf.History.Path == "" {
		return
	}

	store, err := history.Open(conf.History.Path)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open history")
		return
	}
	defer store.Close()

	if err := store.Save(context.Background(), report); err != nil {
		logger.Error().Err(err).Msg("failed to record run")
	}
}

func newNotifier(conf config.Config, logger zerolog.Logger) notify.Notifier {
	telegram := conf.Notify.Telegram
	if telegram.Token == "" {
		return notify.Nop{}
	}

	notifier, err := notify.NewTelegram(telegram.Token, telegram.ChatID, logger)
	if err != nil {
		logger.Error().Err(err).Msg("telegram notifications disabled")
		return notify.Nop{}
	}
	return notifier
}

func writeReport(report pipeline.Report, path string) error {
	format := pipeline.FormatYAML
	if filepath.Ext(path) == ".json" {
		format = pipeline.FormatJSON
	}

	content, err := report.Marshal(format)
	if err != nil {
		return err
	}
	return os.WriteFile(path, content, 0644)
}

func printReport(out io.Writer, report pipeline.Report, format string) error {
	if format == "" || format == FormatTable {
		_, err := fmt.Fprintln(out, report.Table())
		return err
	}

	content, err := report.Marshal(format)
	if err != nil {
		return err
	}
	_, err = out.Write(content)
	return err
}
