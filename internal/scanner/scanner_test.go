package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reportTask = `projectKey=influencer-agent
serverUrl=https://sonar.example.com
serverVersion=10.4.1.88267
dashboardUrl=https://sonar.example.com/dashboard?id=influencer-agent
ceTaskId=AY9x3vLqT7XU0aNd2PoR
ceTaskUrl=https://sonar.example.com/api/ce/task?id=AY9x3vLqT7XU0aNd2PoR
`

// fakeScanner writes a shell script that records its arguments and exits with code
func fakeScanner(t *testing.T, dir string, code int, writeReport bool) string {
	t.Helper()

	script := "#!/bin/sh\n" +
		"for a in \"$@\"; do echo \"$a\" >> args.txt; done\n" +
		"echo 'INFO: EXECUTION STARTED'\n" +
		"echo 'WARN: something on stderr' 1>&2\n"
	if writeReport {
		script += "mkdir -p .scannerwork\ncat > .scannerwork/report-task.txt <<'EOF'\n" + reportTask + "EOF\n"
	}
	script += "exit " + string(rune('0'+code)) + "\n"

	path := filepath.Join(dir, "sonar-scanner")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestArgs(t *testing.T) {
	opts := Options{
		ProjectKey: "influencer-agent",
		Sources:    ".",
		HostURL:    "https://sonar.example.com",
		Token:      "squ_secret",
	}

	t.Run("fixed flags", func(t *testing.T) {
		assert.Equal(t, []string{
			"-Dsonar.projectKey=influencer-agent",
			"-Dsonar.sources=.",
			"-Dsonar.host.url=https://sonar.example.com",
			"-Dsonar.token=squ_secret",
		}, Args(opts))
	})

	t.Run("synchronous gate wait", func(t *testing.T) {
		opts := opts
		opts.WaitGate = true
		opts.GateTimeout = 5 * time.Minute
		opts.Revision = "4f1c2a9"
		opts.ExtraArgs = []string{"-Dsonar.python.version=3.11"}

		args := Args(opts)
		assert.Contains(t, args, "-Dsonar.qualitygate.wait=true")
		assert.Contains(t, args, "-Dsonar.qualitygate.timeout=300")
		assert.Contains(t, args, "-Dsonar.scm.revision=4f1c2a9")
		assert.Equal(t, "-Dsonar.python.version=3.11", args[len(args)-1])
	})

	t.Run("token is redacted", func(t *testing.T) {
		redacted := strings.Join(redact(Args(opts)), " ")
		assert.NotContains(t, redacted, "squ_secret")
		assert.Contains(t, redacted, "-Dsonar.token=****")
	})
}

func TestRun(t *testing.T) {
	t.Run("success returns the submitted task", func(t *testing.T) {
		dir := t.TempDir()
		s := New(Options{
			Binary:     fakeScanner(t, dir, 0, true),
			WorkDir:    dir,
			ProjectKey: "influencer-agent",
			Sources:    ".",
			HostURL:    "https://sonar.example.com",
			Token:      "squ_secret",
		}, zerolog.Nop())

		task, err := s.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "AY9x3vLqT7XU0aNd2PoR", task.CeTaskID)
		assert.Equal(t, "https://sonar.example.com", task.ServerURL)

		args, err := os.ReadFile(filepath.Join(dir, "args.txt"))
		require.NoError(t, err)
		assert.Contains(t, string(args), "-Dsonar.projectKey=influencer-agent")
	})

	t.Run("non zero exit fails", func(t *testing.T) {
		dir := t.TempDir()
		s := New(Options{Binary: fakeScanner(t, dir, 2, false), WorkDir: dir}, zerolog.Nop())

		_, err := s.Run(context.Background())
		require.Error(t, err)

		var exitErr *ExitError
		require.True(t, errors.As(err, &exitErr))
		assert.Equal(t, 2, exitErr.Code)
		assert.Contains(t, exitErr.Tail, "INFO: EXECUTION STARTED")
	})

	t.Run("missing report", func(t *testing.T) {
		dir := t.TempDir()
		s := New(Options{Binary: fakeScanner(t, dir, 0, false), WorkDir: dir}, zerolog.Nop())

		_, err := s.Run(context.Background())
		assert.Error(t, err)
	})

	t.Run("missing binary", func(t *testing.T) {
		dir := t.TempDir()
		s := New(Options{Binary: filepath.Join(dir, "nope"), WorkDir: dir}, zerolog.Nop())

		_, err := s.Run(context.Background())
		assert.Error(t, err)
	})
}

func TestReadReportTask(t *testing.T) {
	t.Run("valid report", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report-task.txt")
		require.NoError(t, os.WriteFile(path, []byte(reportTask), 0644))

		task, err := ReadReportTask(path)
		require.NoError(t, err)
		assert.Equal(t, "influencer-agent", task.ProjectKey)
		assert.Equal(t, "https://sonar.example.com/dashboard?id=influencer-agent", task.DashboardURL)
	})

	t.Run("no task id", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report-task.txt")
		require.NoError(t, os.WriteFile(path, []byte("projectKey=x\n"), 0644))

		_, err := ReadReportTask(path)
		assert.Error(t, err)
	})
}
