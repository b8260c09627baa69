package stages_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/threefoldtech/shipgate/internal/config"
	"github.com/threefoldtech/shipgate/internal/deploy"
	"github.com/threefoldtech/shipgate/internal/gate"
	"github.com/threefoldtech/shipgate/internal/mocks"
	"github.com/threefoldtech/shipgate/internal/sonar"
	"github.com/threefoldtech/shipgate/internal/stages"
	"github.com/threefoldtech/shipgate/pkg/pipeline"
)

const (
	taskID     = "AY9x3vLqT7XU0aNd2PoR"
	reportTask = "projectKey=influencer-agent\n" +
		"dashboardUrl=https://sonar.example.com/dashboard?id=influencer-agent\n" +
		"ceTaskId=" + taskID + "\n"
)

type session struct {
	*mocks.MockExecutor
	closed bool
}

func (s *session) Close() error {
	s.closed = true
	return nil
}

func testConfig(t *testing.T, scannerExit string) config.Config {
	t.Helper()

	dir := t.TempDir()
	script := "#!/bin/sh\nmkdir -p .scannerwork\ncat > .scannerwork/report-task.txt <<'EOF'\n" + reportTask + "EOF\nexit " + scannerExit + "\n"
	binary := filepath.Join(t.TempDir(), "sonar-scanner")
	require.NoError(t, os.WriteFile(binary, []byte(script), 0755))

	conf := config.Default()
	conf.Project.Key = "influencer-agent"
	conf.Repository.Skip = true
	conf.Repository.Workspace = dir
	conf.Scanner.Binary = binary
	conf.Scanner.HostURL = "https://sonar.example.com"
	conf.Scanner.Token = "squ_token"
	conf.Deploy.Host = "deploy.example.com"
	conf.Deploy.User = "ubuntu"
	conf.Deploy.Directory = "/home/ubuntu/Projects/influencer-agent"
	conf.Deploy.Service = "influencer-agent"
	return conf
}

func TestRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	logger := zerolog.Nop()

	t.Run("every stage runs in order", func(t *testing.T) {
		conf := testConfig(t, "0")
		source := mocks.NewMockSource(ctrl)
		sess := &session{MockExecutor: mocks.NewMockExecutor(ctrl)}

		source.EXPECT().Await(gomock.Any(), taskID).Return(gate.Verdict{TaskID: taskID, AnalysisID: "analysis", Status: sonar.GateOK}, nil)

		var calls []*gomock.Call
		for _, command := range deploy.Commands(deploy.Target{
			Directory:     conf.Deploy.Directory,
			Branch:        conf.Deploy.Branch,
			Service:       conf.Deploy.Service,
			ComposeBinary: conf.Deploy.ComposeBinary,
		}) {
			calls = append(calls, sess.EXPECT().Run(gomock.Any(), command).Return(nil))
		}
		gomock.InOrder(calls...)

		runner, err := stages.New(conf, logger,
			stages.WithSource(source),
			stages.WithDialer(func(ctx context.Context) (stages.Session, error) { return sess, nil }),
		)
		require.NoError(t, err)

		report, err := pipeline.New(conf.Project.Key, logger, runner.Stages()...).Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, pipeline.StatusSucceeded, report.Status)
		require.Len(t, report.Stages, 4)
		assert.Equal(t, taskID, report.Detail("task"))
		assert.Equal(t, "https://sonar.example.com/dashboard?id=influencer-agent", report.Detail("dashboard"))
		assert.Equal(t, sonar.GateOK, report.Detail("gate"))
		assert.Equal(t, "influencer-agent", report.Detail("service"))
		assert.True(t, sess.closed)
	})

	t.Run("failed gate never deploys", func(t *testing.T) {
		conf := testConfig(t, "0")
		source := mocks.NewMockSource(ctrl)
		source.EXPECT().Await(gomock.Any(), taskID).Return(gate.Verdict{TaskID: taskID, Status: sonar.GateError}, nil)

		dialed := false
		runner, err := stages.New(conf, logger,
			stages.WithSource(source),
			stages.WithDialer(func(ctx context.Context) (stages.Session, error) {
				dialed = true
				return nil, errors.New("unexpected dial")
			}),
		)
		require.NoError(t, err)

		report, err := pipeline.New(conf.Project.Key, logger, runner.Stages()...).Run(context.Background())
		assert.ErrorIs(t, err, gate.ErrGateFailed)
		assert.False(t, dialed)
		assert.Equal(t, pipeline.StatusFailed, report.Status)
		assert.Equal(t, pipeline.StatusFailed, report.Stages[2].Status)
		assert.Equal(t, pipeline.StatusSkipped, report.Stages[3].Status)
	})

	t.Run("failed scan skips the gate", func(t *testing.T) {
		conf := testConfig(t, "2")
		source := mocks.NewMockSource(ctrl)

		runner, err := stages.New(conf, logger, stages.WithSource(source))
		require.NoError(t, err)

		report, err := pipeline.New(conf.Project.Key, logger, runner.Stages()...).Run(context.Background())
		assert.Error(t, err)
		assert.Equal(t, pipeline.StatusFailed, report.Stages[1].Status)
		assert.Equal(t, pipeline.StatusSkipped, report.Stages[2].Status)
	})

	t.Run("dial failure fails the deploy", func(t *testing.T) {
		conf := testConfig(t, "0")

		runner, err := stages.New(conf, logger, stages.WithDialer(func(ctx context.Context) (stages.Session, error) {
			return nil, errors.New("connection refused")
		}))
		require.NoError(t, err)

		err = runner.Deploy(context.Background(), pipeline.Details{})
		assert.ErrorContains(t, err, "connection refused")
	})
}

func TestGate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	t.Run("no task", func(t *testing.T) {
		runner, err := stages.New(testConfig(t, "0"), zerolog.Nop(), stages.WithSource(mocks.NewMockSource(ctrl)))
		require.NoError(t, err)

		err = runner.Gate(context.Background(), pipeline.Details{})
		assert.ErrorIs(t, err, stages.ErrNoTask)
	})

	t.Run("task from a previous scan", func(t *testing.T) {
		conf := testConfig(t, "0")
		dir := filepath.Join(conf.Repository.Workspace, ".scannerwork")
		require.NoError(t, os.MkdirAll(dir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "report-task.txt"), []byte(reportTask), 0644))

		source := mocks.NewMockSource(ctrl)
		source.EXPECT().Await(gomock.Any(), taskID).Return(gate.Verdict{TaskID: taskID, Status: sonar.GateNone}, nil)

		runner, err := stages.New(conf, zerolog.Nop(), stages.WithSource(source))
		require.NoError(t, err)
		require.NoError(t, runner.LoadTask())

		details := pipeline.Details{}
		require.NoError(t, runner.Gate(context.Background(), details))
		assert.Equal(t, sonar.GateNone, details["gate"])
	})

	t.Run("scanner mode passes through", func(t *testing.T) {
		conf := testConfig(t, "0")
		conf.Gate.Mode = config.GateModeScanner

		runner, err := stages.New(conf, zerolog.Nop())
		require.NoError(t, err)
		runner.SetTask(taskID)

		assert.NoError(t, runner.Gate(context.Background(), pipeline.Details{}))
	})

	t.Run("webhook mode needs a listener", func(t *testing.T) {
		conf := testConfig(t, "0")
		conf.Gate.Mode = config.GateModeWebhook

		_, err := stages.New(conf, zerolog.Nop())
		assert.Error(t, err)
	})
}
