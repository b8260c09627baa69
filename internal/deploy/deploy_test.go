package deploy_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/threefoldtech/shipgate/internal/deploy"
	"github.com/threefoldtech/shipgate/internal/mocks"
)

var target = deploy.Target{
	Directory:     "/home/ubuntu/Projects/influencer-agent",
	Branch:        "main",
	Service:       "influencer-agent",
	ComposeBinary: "docker compose",
}

func TestCommands(t *testing.T) {
	assert.Equal(t, []string{
		"cd /home/ubuntu/Projects/influencer-agent && git checkout main",
		"cd /home/ubuntu/Projects/influencer-agent && git pull origin main",
		"cd /home/ubuntu/Projects/influencer-agent && docker compose stop influencer-agent",
		"cd /home/ubuntu/Projects/influencer-agent && docker compose rm -f influencer-agent",
		"cd /home/ubuntu/Projects/influencer-agent && docker compose up -d --build influencer-agent",
	}, deploy.Commands(target))

	t.Run("quoted", func(t *testing.T) {
		commands := deploy.Commands(deploy.Target{
			Directory:     "/srv/my app",
			Branch:        "release/1.0",
			Service:       "api",
			ComposeBinary: "docker-compose",
		})
		assert.Equal(t, "cd '/srv/my app' && git checkout release/1.0", commands[0])
		assert.Equal(t, "cd '/srv/my app' && docker-compose up -d --build api", commands[4])
	})
}

func TestDeploy(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	executor := mocks.NewMockExecutor(ctrl)
	deployer := deploy.NewDeployer(executor, target, time.Minute, zerolog.Nop())
	commands := deploy.Commands(target)

	t.Run("runs every command in order", func(t *testing.T) {
		calls := make([]*gomock.Call, 0, len(commands))
		for _, command := range commands {
			calls = append(calls, executor.EXPECT().Run(gomock.Any(), command).Return(nil))
		}
		gomock.InOrder(calls...)

		assert.NoError(t, deployer.Deploy(context.Background()))
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		gomock.InOrder(
			executor.EXPECT().Run(gomock.Any(), commands[0]).Return(nil),
			executor.EXPECT().Run(gomock.Any(), commands[1]).Return(errors.New("exit 1")),
		)

		err := deployer.Deploy(context.Background())
		var cmdErr *deploy.CommandError
		require.True(t, errors.As(err, &cmdErr))
		assert.Equal(t, 2, cmdErr.Step)
		assert.Equal(t, commands[1], cmdErr.Command)
	})

	t.Run("commands get a deadline", func(t *testing.T) {
		executor.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ string) error {
			_, ok := ctx.Deadline()
			assert.True(t, ok)
			return nil
		}).Times(len(commands))

		assert.NoError(t, deployer.Deploy(context.Background()))
	})

	t.Run("cancelled before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := deployer.Deploy(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
