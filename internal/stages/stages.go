// Package stages wires the pipeline stages to the tools they drive
package stages

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/threefoldtech/shipgate/internal/config"
	"github.com/threefoldtech/shipgate/internal/deploy"
	"github.com/threefoldtech/shipgate/internal/gate"
	"github.com/threefoldtech/shipgate/internal/remote"
	"github.com/threefoldtech/shipgate/internal/scanner"
	"github.com/threefoldtech/shipgate/internal/sonar"
	"github.com/threefoldtech/shipgate/internal/workspace"
	"github.com/threefoldtech/shipgate/pkg/pipeline"
)

// Stage names in run order
const (
	Checkout = "checkout"
	Scan     = "scan"
	Gate     = "gate"
	Deploy   = "deploy"
)

// ErrNoTask is returned when the gate runs without a submitted analysis
var ErrNoTask = errors.New("no analysis task to wait for")

// Session is an open connection to the deploy host
type Session interface {
	deploy.Executor
	Close() error
}

// Dialer opens a session to the deploy host
type Dialer func(ctx context.Context) (Session, error)

// Option configures a Runner
type Option func(*Runner)

// WithSource overrides the gate verdict source picked from the gate mode
func WithSource(source gate.Source) Option {
	return func(r *Runner) {
		r.source = source
	}
}

// WithDialer overrides how the deploy host is reached
func WithDialer(dialer Dialer) Option {
	return func(r *Runner) {
		r.dial = dialer
	}
}

// Runner holds what stages hand over to each other during a run
type Runner struct {
	conf   config.Config
	logger zerolog.Logger
	source gate.Source
	dial   Dialer

	head workspace.Head
	task scanner.ReportTask
}

// New creates a runner for conf. The webhook gate mode needs a started listener passed WithSource.
func New(conf config.Config, logger zerolog.Logger, opts ...Option) (*Runner, error) {
	r := &Runner{
		conf:   conf,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.source == nil {
		switch conf.Gate.Mode {
		case config.GateModePoll:
			client := sonar.NewClient(conf.Scanner.HostURL, conf.Scanner.Token)
			r.source = gate.NewPoller(client, conf.Gate.PollInterval, logger.With().Str("source", "poll").Logger())
		case config.GateModeScanner:
			r.source = gate.Passthrough{}
		default:
			return nil, errors.Errorf("gate mode %q needs a verdict source", conf.Gate.Mode)
		}
	}

	if r.dial == nil {
		r.dial = r.sshDialer
	}

	return r, nil
}

// Stages returns every stage of a full run
func (r *Runner) Stages() []pipeline.Stage {
	return []pipeline.Stage{
		{Name: Checkout, Run: r.Checkout},
		{Name: Scan, Run: r.Scan},
		{Name: Gate, Run: r.Gate},
		{Name: Deploy, Run: r.Deploy},
	}
}

// Head of the checked out workspace
func (r *Runner) Head() workspace.Head {
	return r.head
}

// Task submitted by the scan
func (r *Runner) Task() scanner.ReportTask {
	return r.task
}

// SetTask sets the analysis task the gate waits for, used when the gate runs alone
func (r *Runner) SetTask(taskID string) {
	r.task = scanner.ReportTask{CeTaskID: taskID}
}

// LoadTask reads the task from the report left in the workspace by a previous scan
func (r *Runner) LoadTask() error {
	task, err := scanner.ReadReportTask(r.reportTaskPath())
	if err != nil {
		return err
	}
	r.task = task
	return nil
}

// Checkout brings the workspace to the head of the configured branch
func (r *Runner) Checkout(ctx context.Context, details pipeline.Details) error {
	logger := zerolog.Ctx(ctx)
	repo := r.conf.Repository

	if repo.Skip {
		head, err := workspace.Open(repo.Workspace)
		if err != nil {
			logger.Warn().Err(err).Msg("workspace is not a git checkout, the analysis will have no revision")
			details["workspace"] = repo.Workspace
			return nil
		}
		r.head = head
	} else {
		head, err := workspace.Sync(ctx, workspace.Options{
			URL:    repo.URL,
			Branch: repo.Branch,
			Path:   repo.Workspace,
		}, *logger)
		if err != nil {
			return err
		}
		r.head = head
	}

	details["workspace"] = repo.Workspace
	details["branch"] = r.head.Branch
	details["commit"] = r.head.Commit

	logger.Info().Str("commit", r.head.Short()).Str("message", r.head.Message).Msg("workspace ready")
	return nil
}

// Scan runs the scanner against the workspace
func (r *Runner) Scan(ctx context.Context, details pipeline.Details) error {
	conf := r.conf

	s := scanner.New(scanner.Options{
		Binary:         conf.Scanner.Binary,
		WorkDir:        conf.Repository.Workspace,
		ProjectKey:     conf.Project.Key,
		ProjectName:    conf.Project.Name,
		Sources:        conf.Scanner.Sources,
		HostURL:        conf.Scanner.HostURL,
		Token:          conf.Scanner.Token,
		Revision:       r.head.Commit,
		WaitGate:       conf.Scanner.WaitGate,
		GateTimeout:    conf.Gate.Timeout,
		ExtraArgs:      conf.Scanner.ExtraArgs,
		ReportTaskPath: conf.Scanner.ReportTaskPath,
	}, *zerolog.Ctx(ctx))

	task, err := s.Run(ctx)
	if err != nil {
		return err
	}
	r.task = task

	details["task"] = task.CeTaskID
	if task.DashboardURL != "" {
		details["dashboard"] = task.DashboardURL
	}
	return nil
}

// Gate blocks until the quality gate of the submitted analysis is known
func (r *Runner) Gate(ctx context.Context, details pipeline.Details) error {
	if r.task.CeTaskID == "" {
		return ErrNoTask
	}

	details["mode"] = r.conf.Gate.Mode

	waiter := gate.NewWaiter(r.source, r.conf.Gate.Timeout, *zerolog.Ctx(ctx))
	verdict, err := waiter.Wait(ctx, r.task.CeTaskID)
	if verdict.Status != "" {
		details["gate"] = verdict.Status
	}
	if verdict.AnalysisID != "" {
		details["analysis"] = verdict.AnalysisID
	}
	return err
}

// Deploy pulls the branch on the deploy host and rebuilds the service
func (r *Runner) Deploy(ctx context.Context, details pipeline.Details) error {
	conf := r.conf.Deploy
	details["host"] = conf.Host
	details["service"] = conf.Service

	session, err := r.dial(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	deployer := deploy.NewDeployer(session, deploy.Target{
		Directory:     conf.Directory,
		Branch:        conf.Branch,
		Service:       conf.Service,
		ComposeBinary: conf.ComposeBinary,
	}, conf.CommandTimeout, *zerolog.Ctx(ctx))

	return deployer.Deploy(ctx)
}

func (r *Runner) sshDialer(ctx context.Context) (Session, error) {
	conf := r.conf.Deploy
	client, err := remote.Dial(ctx, remote.Options{
		Host:                  conf.Host,
		Port:                  conf.Port,
		User:                  conf.User,
		IdentityFile:          conf.IdentityFile,
		KnownHosts:            conf.KnownHosts,
		InsecureIgnoreHostKey: conf.InsecureIgnoreHostKey,
		ConnectRetries:        conf.ConnectRetries,
	}, *zerolog.Ctx(ctx))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *Runner) reportTaskPath() string {
	path := r.conf.Scanner.ReportTaskPath
	if path == "" {
		path = scanner.DefaultReportTaskPath
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.conf.Repository.Workspace, path)
}
