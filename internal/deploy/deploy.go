// Package deploy updates the checkout on the target host and rebuilds the compose service
package deploy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Executor runs one shell command on the target host
type Executor interface {
	Run(ctx context.Context, command string) error
}

// Target of a deploy
type Target struct {
	Directory     string
	Branch        string
	Service       string
	ComposeBinary string
}

// CommandError is the failing step of a deploy
type CommandError struct {
	Step    int
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("deploy step %d (%s) failed: %s", e.Step, e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Commands returns the remote commands of a deploy in the order they run
func Commands(target Target) []string {
	dir := quote(target.Directory)
	branch := quote(target.Branch)
	service := quote(target.Service)
	compose := target.ComposeBinary

	// every command runs in its own session so the directory is repeated
	cd := fmt.Sprintf("cd %s && ", dir)

	return []string{
		fmt.Sprintf("cd %s && git checkout %s", dir, branch),
		cd + fmt.Sprintf("git pull origin %s", branch),
		cd + fmt.Sprintf("%s stop %s", compose, service),
		cd + fmt.Sprintf("%s rm -f %s", compose, service),
		cd + fmt.Sprintf("%s up -d --build %s", compose, service),
	}
}

// Deployer runs the deploy commands through an executor
type Deployer struct {
	executor       Executor
	target         Target
	commandTimeout time.Duration
	logger         zerolog.Logger
}

// NewDeployer creates a deployer, a zero commandTimeout means no per command limit
func NewDeployer(executor Executor, target Target, commandTimeout time.Duration, logger zerolog.Logger) *Deployer {
	return &Deployer{
		executor:       executor,
		target:         target,
		commandTimeout: commandTimeout,
		logger:         logger,
	}
}

// Deploy runs every command in order and stops at the first failure
func (d *Deployer) Deploy(ctx context.Context) error {
	commands := Commands(d.target)

	for i, command := range commands {
		step := i + 1
		d.logger.Info().Int("step", step).Int("steps", len(commands)).Str("command", command).Msg("deploy step")

		if err := d.run(ctx, command); err != nil {
			return &CommandError{Step: step, Command: command, Err: err}
		}
	}

	d.logger.Info().Str("service", d.target.Service).Msg("service rebuilt")
	return nil
}

func (d *Deployer) run(ctx context.Context, command string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "deploy interrupted")
	}

	if d.commandTimeout == 0 {
		return d.executor.Run(ctx, command)
	}

	ctx, cancel := context.WithTimeout(ctx, d.commandTimeout)
	defer cancel()
	return d.executor.Run(ctx, command)
}

// quote a word for a posix shell
func quote(s string) string {
	if s != "" && strings.IndexFunc(s, unsafe) == -1 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func unsafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("-_./:@%+=,", r):
		return false
	}
	return true
}
