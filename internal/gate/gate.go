// Package gate waits for the quality gate verdict of an analysis
package gate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/threefoldtech/shipgate/internal/sonar"
)

var (
	// ErrGateTimeout is returned when no verdict arrived before the deadline
	ErrGateTimeout = errors.New("timed out waiting for the quality gate")
	// ErrGateFailed is returned when the quality gate did not pass
	ErrGateFailed = errors.New("quality gate failed")
	// ErrAnalysisFailed is returned when the server could not process the analysis report
	ErrAnalysisFailed = errors.New("analysis failed on the server")
)

// Verdict of a quality gate for one analysis task
type Verdict struct {
	TaskID     string
	AnalysisID string
	Status     string
	Conditions []sonar.Condition
}

// Passed reports whether the deploy may go on. WARN is a legacy passing status and
// NONE means the project has no gate at all.
func (v Verdict) Passed() bool {
	switch v.Status {
	case sonar.GateOK, sonar.GateWarn, sonar.GateNone:
		return true
	default:
		return false
	}
}

// FailedConditions describes the conditions that broke the gate
func (v Verdict) FailedConditions() string {
	var failed []string
	for _, c := range v.Conditions {
		if c.Status != sonar.GateError {
			continue
		}
		failed = append(failed, fmt.Sprintf("%s %s %s (actual %s)", c.MetricKey, c.Comparator, c.ErrorThreshold, c.ActualValue))
	}
	return strings.Join(failed, ", ")
}

// Source delivers the verdict of an analysis task
type Source interface {
	Await(ctx context.Context, taskID string) (Verdict, error)
}

// Waiter bounds a source with the gate timeout and turns a failing verdict into an error
type Waiter struct {
	source  Source
	timeout time.Duration
	logger  zerolog.Logger
}

// NewWaiter creates a waiter
func NewWaiter(source Source, timeout time.Duration, logger zerolog.Logger) *Waiter {
	return &Waiter{
		source:  source,
		timeout: timeout,
		logger:  logger,
	}
}

// Wait blocks until the verdict of taskID is known or the timeout expires
func (w *Waiter) Wait(ctx context.Context, taskID string) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	w.logger.Info().Str("task", taskID).Dur("timeout", w.timeout).Msg("waiting for quality gate")

	verdict, err := w.source.Await(ctx, taskID)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Verdict{}, errors.Wrapf(ErrGateTimeout, "task %s after %s", taskID, w.timeout)
		}
		return Verdict{}, err
	}

	logger := w.logger.With().Str("task", taskID).Str("status", verdict.Status).Logger()

	if !verdict.Passed() {
		logger.Error().Str("conditions", verdict.FailedConditions()).Msg("quality gate failed")
		return verdict, errors.Wrapf(ErrGateFailed, "status %s: %s", verdict.Status, verdict.FailedConditions())
	}

	if verdict.Status == sonar.GateNone {
		logger.Warn().Msg("project has no quality gate")
	} else {
		logger.Info().Msg("quality gate passed")
	}

	return verdict, nil
}
