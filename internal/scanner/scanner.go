// Package scanner invokes the static analysis scanner against a workspace
package scanner

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/threefoldtech/shipgate/internal/logwriter"
)

// DefaultReportTaskPath is where the scanner writes its task report, relative to the workspace
const DefaultReportTaskPath = ".scannerwork/report-task.txt"

// Options of a scanner invocation
type Options struct {
	Binary      string
	WorkDir     string
	ProjectKey  string
	ProjectName string
	Sources     string
	HostURL     string
	Token       string
	Revision    string
	// WaitGate makes the scanner itself block until the quality gate is computed
	WaitGate    bool
	GateTimeout time.Duration
	ExtraArgs   []string
	// ReportTaskPath overrides DefaultReportTaskPath
	ReportTaskPath string
}

// ExitError is returned when the scanner exits with a non zero code
type ExitError struct {
	Code int
	Tail []string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("scanner exited with code %d", e.Code)
}

// Scanner runs the scanner binary
type Scanner struct {
	opts   Options
	logger zerolog.Logger
}

// New creates a scanner for the given options
func New(opts Options, logger zerolog.Logger) *Scanner {
	return &Scanner{
		opts:   opts,
		logger: logger,
	}
}

// Args returns the command line arguments passed to the scanner binary
func Args(opts Options) []string {
	args := []string{
		fmt.Sprintf("-Dsonar.projectKey=%s", opts.ProjectKey),
		fmt.Sprintf("-Dsonar.sources=%s", opts.Sources),
		fmt.Sprintf("-Dsonar.host.url=%s", opts.HostURL),
		fmt.Sprintf("-Dsonar.token=%s", opts.Token),
	}

	if opts.ProjectName != "" {
		args = append(args, fmt.Sprintf("-Dsonar.projectName=%s", opts.ProjectName))
	}

	if opts.Revision != "" {
		args = append(args, fmt.Sprintf("-Dsonar.scm.revision=%s", opts.Revision))
	}

	if opts.WaitGate {
		args = append(args, "-Dsonar.qualitygate.wait=true")
		if opts.GateTimeout > 0 {
			seconds := int(math.Ceil(opts.GateTimeout.Seconds()))
			args = append(args, fmt.Sprintf("-Dsonar.qualitygate.timeout=%d", seconds))
		}
	}

	return append(args, opts.ExtraArgs...)
}

// ReportTaskPath returns the absolute location of the report written by the scanner
func (s *Scanner) ReportTaskPath() string {
	path := s.opts.ReportTaskPath
	if path == "" {
		path = DefaultReportTaskPath
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.opts.WorkDir, path)
}

// Run invokes the scanner and returns the task it submitted to the server.
// A non zero exit is returned as *ExitError.
func (s *Scanner) Run(ctx context.Context) (ReportTask, error) {
	args := Args(s.opts)

	s.logger.Info().
		Str("binary", s.opts.Binary).
		Str("workdir", s.opts.WorkDir).
		Str("args", strings.Join(redact(args), " ")).
		Msg("running scanner")

	stdout := logwriter.New(s.logger, zerolog.InfoLevel, "stdout")
	stderr := logwriter.New(s.logger, zerolog.WarnLevel, "stderr")

	cmd := exec.CommandContext(ctx, s.opts.Binary, args...)
	cmd.Dir = s.opts.WorkDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	stdout.Flush()
	stderr.Flush()

	if err != nil {
		if ctx.Err() != nil {
			return ReportTask{}, ctx.Err()
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return ReportTask{}, &ExitError{Code: exitErr.ExitCode(), Tail: append(stdout.Tail(), stderr.Tail()...)}
		}
		return ReportTask{}, errors.Wrapf(err, "failed to run scanner '%s'", s.opts.Binary)
	}

	task, err := ReadReportTask(s.ReportTaskPath())
	if err != nil {
		return ReportTask{}, err
	}

	s.logger.Info().
		Str("task", task.CeTaskID).
		Str("dashboard", task.DashboardURL).
		Msg("analysis submitted")

	return task, nil
}

// redact hides the token in logged command lines
func redact(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if strings.HasPrefix(arg, "-Dsonar.token=") || strings.HasPrefix(arg, "-Dsonar.login=") {
			key, _, _ := strings.Cut(arg, "=")
			arg = key + "=****"
		}
		out[i] = arg
	}
	return out
}
