// Package pipeline runs a fixed list of stages one after another and stops at the first failure
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StageError is returned by Run when a stage fails
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage '%s' failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Pipeline is an ordered list of stages
type Pipeline struct {
	project string
	stages  []Stage
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates a pipeline for a project
func New(project string, logger zerolog.Logger, stages ...Stage) *Pipeline {
	return &Pipeline{
		project: project,
		stages:  stages,
		logger:  logger,
		now:     time.Now,
	}
}

// Stages returns the names of the stages in run order
func (p *Pipeline) Stages() []string {
	names := make([]string, 0, len(p.stages))
	for _, stage := range p.stages {
		names = append(names, stage.Name)
	}
	return names
}

// Run executes the stages in order. The first failing stage aborts the run,
// the stages after it are reported as skipped and never started.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	report := Report{
		ID:        uuid.New(),
		Project:   p.project,
		StartedAt: p.now(),
		Status:    StatusSucceeded,
		Stages:    make([]StageResult, 0, len(p.stages)),
	}

	logger := p.logger.With().Str("run", report.ID.String()).Logger()
	logger.Info().Str("project", p.project).Strs("stages", p.Stages()).Msg("pipeline started")

	var runErr error
	for _, stage := range p.stages {
		if runErr != nil {
			report.Stages = append(report.Stages, StageResult{Name: stage.Name, Status: StatusSkipped})
			continue
		}

		result, err := p.runStage(ctx, logger, stage)
		report.Stages = append(report.Stages, result)

		if err != nil {
			report.Status = result.Status
			runErr = &StageError{Stage: stage.Name, Err: err}
		}
	}

	report.FinishedAt = p.now()

	event := logger.Info()
	if runErr != nil {
		event = logger.Error().Err(runErr)
	}
	event.Str("status", string(report.Status)).Dur("took", report.Duration()).Msg("pipeline finished")

	return report, runErr
}

func (p *Pipeline) runStage(ctx context.Context, logger zerolog.Logger, stage Stage) (StageResult, error) {
	result := StageResult{
		Name:      stage.Name,
		StartedAt: p.now(),
		Details:   Details{},
	}

	logger = logger.With().Str("stage", stage.Name).Logger()

	// a cancelled run never starts another stage
	if err := ctx.Err(); err != nil {
		result.Status = StatusAborted
		result.Error = err.Error()
		logger.Warn().Err(err).Msg("stage aborted before start")
		return result, err
	}

	logger.Info().Msg("stage started")

	err := stage.Run(logger.WithContext(ctx), result.Details)
	result.Duration = p.now().Sub(result.StartedAt)

	switch {
	case err == nil:
		result.Status = StatusSucceeded
		logger.Info().Dur("took", result.Duration).Msg("stage succeeded")
	case errors.Is(err, context.Canceled):
		result.Status = StatusAborted
		result.Error = err.Error()
		logger.Warn().Err(err).Msg("stage aborted")
	default:
		result.Status = StatusFailed
		result.Error = err.Error()
		logger.Error().Err(err).Dur("took", result.Duration).Msg("stage failed")
	}

	if len(result.Details) == 0 {
		result.Details = nil
	}

	return result, err
}
