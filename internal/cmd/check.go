package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/threefoldtech/shipgate/internal/config"
	"github.com/threefoldtech/shipgate/internal/preflight"
	"github.com/threefoldtech/shipgate/internal/sonar"
)

// Check probes the scanner, the sonar server and the deploy host concurrently
func Check(ctx context.Context, conf config.Config, out io.Writer) error {
	client := sonar.NewClient(conf.Scanner.HostURL, conf.Scanner.Token)
	results, err := preflight.Run(ctx, preflight.Probes(conf, client, 10*time.Second))

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Check", "Result", "Took"})
	for _, result := range results {
		status := "ok"
		if result.Err != nil {
			status = result.Err.Error()
		}
		t.AppendRow(table.Row{result.Name, status, result.Duration.Round(time.Millisecond)})
	}
	t.SetStyle(table.StyleLight)

	fmt.Fprintln(out, t.Render())
	return err
}
