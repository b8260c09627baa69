package scanner

import (
	"os"

	env "github.com/hashicorp/go-envparse"
	"github.com/pkg/errors"
)

// ReportTask is the content of the report-task.txt file the scanner leaves behind
type ReportTask struct {
	ProjectKey    string
	ServerURL     string
	ServerVersion string
	DashboardURL  string
	CeTaskID      string
	CeTaskURL     string
}

// ReadReportTask parses the key=value report written by the scanner
func ReadReportTask(path string) (ReportTask, error) {
	file, err := os.Open(path)
	if err != nil {
		return ReportTask{}, errors.Wrapf(err, "failed to open scanner report '%s'", path)
	}
	defer file.Close()

	values, err := env.Parse(file)
	if err != nil {
		return ReportTask{}, errors.Wrapf(err, "failed to parse scanner report '%s'", path)
	}

	task := ReportTask{
		ProjectKey:    values["projectKey"],
		ServerURL:     values["serverUrl"],
		ServerVersion: values["serverVersion"],
		DashboardURL:  values["dashboardUrl"],
		CeTaskID:      values["ceTaskId"],
		CeTaskURL:     values["ceTaskUrl"],
	}

	if task.CeTaskID == "" {
		return ReportTask{}, errors.Errorf("scanner report '%s' has no ceTaskId", path)
	}

	return task, nil
}
