package gate

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/threefoldtech/shipgate/internal/sonar"
)

var errTaskPending = errors.New("analysis task is not finished yet")

// TaskClient is the part of the sonar api the poller needs
type TaskClient interface {
	Task(ctx context.Context, id string) (sonar.Task, error)
	ProjectStatus(ctx context.Context, analysisID string) (sonar.ProjectStatus, error)
}

// Poller asks the server for the task status until it is done, then fetches the gate
type Poller struct {
	client   TaskClient
	interval time.Duration
	logger   zerolog.Logger
}

// NewPoller creates a polling source
func NewPoller(client TaskClient, interval time.Duration, logger zerolog.Logger) *Poller {
	return &Poller{
		client:   client,
		interval: interval,
		logger:   logger,
	}
}

// Await implements Source, polling stops only when ctx is done
func (p *Poller) Await(ctx context.Context, taskID string) (Verdict, error) {
	var task sonar.Task
	trial := 1

	err := retry.Do(ctx, retry.NewConstant(p.interval), func(ctx context.Context) error {
		if trial != 1 {
			p.logger.Debug().Str("task", taskID).Int("trial", trial).Msg("polling analysis task")
		}
		trial++

		var err error
		task, err = p.client.Task(ctx, taskID)
		if err != nil {
			if temporary(err) {
				p.logger.Debug().Err(err).Str("task", taskID).Msg("couldn't get task")
				return retry.RetryableError(err)
			}
			return err
		}

		if !task.Terminal() {
			return retry.RetryableError(errTaskPending)
		}
		return nil
	})
	if err != nil {
		return Verdict{}, err
	}

	if task.Status != sonar.TaskSuccess {
		return Verdict{}, errors.Wrapf(ErrAnalysisFailed, "task %s is %s: %s", taskID, task.Status, task.ErrorMessage)
	}

	status, err := p.client.ProjectStatus(ctx, task.AnalysisID)
	if err != nil {
		return Verdict{}, err
	}

	return Verdict{
		TaskID:     taskID,
		AnalysisID: task.AnalysisID,
		Status:     status.Status,
		Conditions: status.Conditions,
	}, nil
}

// temporary errors are transport failures and 5xx or 429 replies
func temporary(err error) bool {
	var statusErr *sonar.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}
