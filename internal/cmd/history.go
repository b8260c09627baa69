package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/threefoldtech/shipgate/internal/config"
	"github.com/threefoldtech/shipgate/internal/history"
	"github.com/threefoldtech/shipgate/pkg/pipeline"
)

// History prints the latest runs of the project
func History(ctx context.Context, conf config.Config, limit int, all bool, out io.Writer) error {
	if conf.History.Path == "" {
		return errors.New("history path is not configured")
	}

	store, err := history.Open(conf.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	project := conf.Project.Key
	if all {
		project = ""
	}

	reports, err := store.List(ctx, project, limit)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, historyTable(reports))
	return nil
}

func historyTable(reports []pipeline.Report) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"ID", "Project", "Started", "Status", "Took", "Commit", "Failed Stage"})

	for _, report := range reports {
		commit := report.Detail("commit")
		if len(commit) > 8 {
			commit = commit[:8]
		}

		failed := ""
		if stage, ok := report.FailedStage(); ok {
			failed = stage.Name
		}

		t.AppendRow(table.Row{
			report.ID,
			report.Project,
			report.StartedAt.Local().Format(time.DateTime),
			report.Status,
			report.Duration().Round(time.Second),
			commit,
			failed,
		})
	}

	t.SetStyle(table.StyleLight)
	return t.Render()
}
