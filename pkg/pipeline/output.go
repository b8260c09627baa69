package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

// Output formats of a report
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Marshal encodes the report as json or yaml
func (r Report) Marshal(format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(r, "", "  ")
	case FormatYAML, "yml":
		return yaml.Marshal(r)
	default:
		return nil, fmt.Errorf("unsupported report format '%s', should be [yaml, yml, json]", format)
	}
}

// Table renders the stages of the report as a human readable table
func (r Report) Table() string {
	t := table.NewWriter()

	t.SetTitle(fmt.Sprintf("%s run %s: %s", r.Project, r.ID, r.Status))
	t.AppendHeader(table.Row{"Stage", "Status", "Took", "Error"})

	for _, stage := range r.Stages {
		took := "-"
		if stage.Status != StatusSkipped {
			took = stage.Duration.Round(time.Millisecond).String()
		}

		t.AppendRow(table.Row{stage.Name, stage.Status, took, stage.Error})
	}

	t.AppendFooter(table.Row{"", "total", r.Duration().Round(time.Millisecond).String(), ""})
	t.SetStyle(table.StyleLight)
	return t.Render()
}
