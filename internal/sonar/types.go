package sonar

// Compute engine task statuses
const (
	TaskPending    = "PENDING"
	TaskInProgress = "IN_PROGRESS"
	TaskSuccess    = "SUCCESS"
	TaskFailed     = "FAILED"
	TaskCanceled   = "CANCELED"
)

// Quality gate statuses
const (
	GateOK    = "OK"
	GateWarn  = "WARN"
	GateError = "ERROR"
	GateNone  = "NONE"
)

// SystemStatus of the server
type SystemStatus struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// Task is a compute engine task processing an analysis report
type Task struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	ComponentKey string `json:"componentKey"`
	Status       string `json:"status"`
	AnalysisID   string `json:"analysisId"`
	ErrorMessage string `json:"errorMessage"`
}

// Terminal reports whether the task will not change status anymore
func (t Task) Terminal() bool {
	return t.Status == TaskSuccess || t.Status == TaskFailed || t.Status == TaskCanceled
}

type taskResponse struct {
	Task Task `json:"task"`
}

// Condition of a quality gate
type Condition struct {
	Status         string `json:"status"`
	MetricKey      string `json:"metricKey"`
	Comparator     string `json:"comparator"`
	ErrorThreshold string `json:"errorThreshold"`
	ActualValue    string `json:"actualValue"`
}

// ProjectStatus is the quality gate verdict of an analysis
type ProjectStatus struct {
	Status     string      `json:"status"`
	Conditions []Condition `json:"conditions"`
}

type projectStatusResponse struct {
	ProjectStatus ProjectStatus `json:"projectStatus"`
}

// ErrorReply is the error body of the web api
type ErrorReply struct {
	Errors []struct {
		Msg string `json:"msg"`
	} `json:"errors"`
}
