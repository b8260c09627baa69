package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status of a stage or a whole run
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusAborted   Status = "aborted"
)

// Details are free form key/value facts a stage reports about itself, e.g. a commit or a dashboard url
type Details map[string]string

// StageFunc does the work of a stage, a non nil error fails the stage and the run
type StageFunc func(ctx context.Context, details Details) error

// Stage is a named step of the pipeline
type Stage struct {
	Name string
	Run  StageFunc
}

// StageResult is the outcome of one stage
type StageResult struct {
	Name      string        `json:"name" yaml:"name"`
	Status    Status        `json:"status" yaml:"status"`
	StartedAt time.Time     `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
	Details   Details       `json:"details,omitempty" yaml:"details,omitempty"`
}

// Report is the record of a pipeline run
type Report struct {
	ID         uuid.UUID     `json:"id" yaml:"id"`
	Project    string        `json:"project" yaml:"project"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
	Status     Status        `json:"status" yaml:"status"`
	Stages     []StageResult `json:"stages" yaml:"stages"`
}

// Duration of the whole run
func (r Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// FailedStage returns the stage that ended the run, if any
func (r Report) FailedStage() (StageResult, bool) {
	for _, stage := range r.Stages {
		if stage.Status == StatusFailed || stage.Status == StatusAborted {
			return stage, true
		}
	}
	return StageResult{}, false
}

// Detail looks up a detail reported by any stage
func (r Report) Detail(key string) string {
	for _, stage := range r.Stages {
		if v, ok := stage.Details[key]; ok {
			return v
		}
	}
	return ""
}
