// Package history keeps the reports of past runs in a sqlite file
package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/threefoldtech/shipgate/pkg/pipeline"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// ErrNotFound is returned for an unknown run id
var ErrNotFound = errors.New("run not found")

// Store of run reports
type Store struct {
	db *sqlx.DB
}

type dbRun struct {
	ID         string    `db:"id"`
	Project    string    `db:"project"`
	Status     string    `db:"status"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
}

type dbStage struct {
	RunID     string       `db:"run_id"`
	Position  int          `db:"position"`
	Name      string       `db:"name"`
	Status    string       `db:"status"`
	StartedAt sql.NullTime `db:"started_at"`
	Duration  int64        `db:"duration"`
	Error     string       `db:"error"`
	Details   details      `db:"details"`
}

// details are stored as a json object
type details map[string]string

func (d *details) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T", v)
	}

	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	if len(m) == 0 {
		m = nil
	}
	*d = m
	return nil
}

func (d details) Value() (driver.Value, error) {
	if len(d) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(d))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Open opens or creates the store at path and applies pending migrations
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite", fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path))
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't open history %s", path)
	}

	db.SetMaxOpenConns(1)

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "couldn't set migrations dialect")
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "couldn't apply migrations")
	}

	return &Store{db: db}, nil
}

// Close the store
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores a report with its stages
func (s *Store) Save(ctx context.Context, report pipeline.Report) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	run := dbRun{
		ID:         report.ID.String(),
		Project:    report.Project,
		Status:     string(report.Status),
		StartedAt:  report.StartedAt.UTC(),
		FinishedAt: report.FinishedAt.UTC(),
	}

	_, err = tx.NamedExecContext(ctx, `INSERT INTO runs (id, project, status, started_at, finished_at)
		VALUES (:id, :project, :status, :started_at, :finished_at)`, run)
	if err != nil {
		return errors.Wrapf(err, "inserting run %s", report.ID)
	}

	for i, stage := range report.Stages {
		row := dbStage{
			RunID:    run.ID,
			Position: i,
			Name:     stage.Name,
			Status:   string(stage.Status),
			Duration: int64(stage.Duration),
			Error:    stage.Error,
			Details:  details(stage.Details),
		}
		if !stage.StartedAt.IsZero() {
			row.StartedAt = sql.NullTime{Time: stage.StartedAt.UTC(), Valid: true}
		}

		_, err = tx.NamedExecContext(ctx, `INSERT INTO stages (run_id, position, name, status, started_at, duration, error, details)
			VALUES (:run_id, :position, :name, :status, :started_at, :duration, :error, :details)`, row)
		if err != nil {
			return errors.Wrapf(err, "inserting stage %s of run %s", stage.Name, report.ID)
		}
	}

	return tx.Commit()
}

// List returns the latest limit runs of project, newest first. An empty project lists every project.
func (s *Store) List(ctx context.Context, project string, limit int) ([]pipeline.Report, error) {
	query := `SELECT id, project, status, started_at, finished_at FROM runs`
	args := []interface{}{}
	if project != "" {
		query += ` WHERE project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	var runs []dbRun
	if err := s.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, errors.Wrap(err, "listing runs")
	}

	reports := make([]pipeline.Report, 0, len(runs))
	for _, run := range runs {
		report, err := s.withStages(ctx, run)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Get returns the run with id
func (s *Store) Get(ctx context.Context, id uuid.UUID) (pipeline.Report, error) {
	var run dbRun
	err := s.db.GetContext(ctx, &run, `SELECT id, project, status, started_at, finished_at FROM runs WHERE id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return pipeline.Report{}, errors.Wrapf(ErrNotFound, "%s", id)
	}
	if err != nil {
		return pipeline.Report{}, errors.Wrapf(err, "getting run %s", id)
	}
	return s.withStages(ctx, run)
}

func (s *Store) withStages(ctx context.Context, run dbRun) (pipeline.Report, error) {
	id, err := uuid.Parse(run.ID)
	if err != nil {
		return pipeline.Report{}, errors.Wrapf(err, "invalid run id %s", run.ID)
	}

	var stages []dbStage
	err = s.db.SelectContext(ctx, &stages, `SELECT run_id, position, name, status, started_at, duration, error, details
		FROM stages WHERE run_id = ? ORDER BY position`, run.ID)
	if err != nil {
		return pipeline.Report{}, errors.Wrapf(err, "listing stages of run %s", run.ID)
	}

	report := pipeline.Report{
		ID:         id,
		Project:    run.Project,
		Status:     pipeline.Status(run.Status),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Stages:     make([]pipeline.StageResult, 0, len(stages)),
	}
	for _, stage := range stages {
		result := pipeline.StageResult{
			Name:     stage.Name,
			Status:   pipeline.Status(stage.Status),
			Duration: time.Duration(stage.Duration),
			Error:    stage.Error,
			Details:  pipeline.Details(stage.Details),
		}
		if stage.StartedAt.Valid {
			result.StartedAt = stage.StartedAt.Time
		}
		report.Stages = append(report.Stages, result)
	}
	return report, nil
}
