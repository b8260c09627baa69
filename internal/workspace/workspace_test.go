package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initOrigin(t *testing.T) (string, *git.Repository) {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
	})
	require.NoError(t, err)
	return dir, repo
}

func commitFile(t *testing.T, dir string, repo *git.Repository, name, content, message string) plumbing.Hash {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))

	wt, err := repo.Worktree()
	require.NoError(t, err)

	_, err = wt.Add(name)
	require.NoError(t, err)

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: "ci", Email: "ci@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return hash
}

func TestSync(t *testing.T) {
	originDir, origin := initOrigin(t)
	first := commitFile(t, originDir, origin, "main.py", "app = None\n", "initial commit\n\nbody")

	workspace := filepath.Join(t.TempDir(), "checkout")
	opts := Options{URL: originDir, Branch: "main", Path: workspace}

	t.Run("clone", func(t *testing.T) {
		head, err := Sync(context.Background(), opts, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, first.String(), head.Commit)
		assert.Equal(t, "main", head.Branch)
		assert.Equal(t, "initial commit", head.Message)
		assert.Equal(t, "ci", head.Author)
		assert.Len(t, head.Short(), 8)

		url, err := RemoteURL(workspace)
		require.NoError(t, err)
		assert.Equal(t, originDir, url)
	})

	t.Run("fetch and reset", func(t *testing.T) {
		second := commitFile(t, originDir, origin, "main.py", "app = 1\n", "second commit")

		// local edits are discarded
		require.NoError(t, os.WriteFile(filepath.Join(workspace, "main.py"), []byte("dirty"), 0644))

		head, err := Sync(context.Background(), opts, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, second.String(), head.Commit)

		content, err := os.ReadFile(filepath.Join(workspace, "main.py"))
		require.NoError(t, err)
		assert.Equal(t, "app = 1\n", string(content))

		opened, err := Open(workspace)
		require.NoError(t, err)
		assert.Equal(t, head, opened)
	})

	t.Run("already up to date", func(t *testing.T) {
		_, err := Sync(context.Background(), opts, zerolog.Nop())
		assert.NoError(t, err)
	})

	t.Run("clone of another repository", func(t *testing.T) {
		other := opts
		other.URL = "https://example.com/other.git"

		_, err := Sync(context.Background(), other, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("unknown branch", func(t *testing.T) {
		other := opts
		other.Branch = "missing"

		_, err := Sync(context.Background(), other, zerolog.Nop())
		assert.Error(t, err)
	})
}

func TestOpenNotARepository(t *testing.T) {
	_, err := Open(t.TempDir())
	assert.Error(t, err)

	_, err = RemoteURL(t.TempDir())
	assert.Error(t, err)
}
