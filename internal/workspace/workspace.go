// Package workspace prepares the checkout the pipeline scans
package workspace

import (
	"context"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/threefoldtech/shipgate/internal/logwriter"
)

const remoteName = "origin"

// Head is the commit the workspace is at
type Head struct {
	Branch  string    `json:"branch" yaml:"branch"`
	Commit  string    `json:"commit" yaml:"commit"`
	Author  string    `json:"author" yaml:"author"`
	Message string    `json:"message" yaml:"message"`
	When    time.Time `json:"when" yaml:"when"`
}

// Short commit hash
func (h Head) Short() string {
	if len(h.Commit) < 8 {
		return h.Commit
	}
	return h.Commit[:8]
}

// Options of a checkout
type Options struct {
	URL    string
	Branch string
	Path   string
}

// Sync clones the repository into the workspace, or fetches it and hard resets the
// branch to the remote one when the workspace is already a clone
func Sync(ctx context.Context, opts Options, logger zerolog.Logger) (Head, error) {
	logger = logger.With().Str("workspace", opts.Path).Str("branch", opts.Branch).Logger()
	progress := logwriter.New(logger, zerolog.DebugLevel, "git")
	defer progress.Flush()

	repo, err := git.PlainOpen(opts.Path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		logger.Info().Str("url", opts.URL).Msg("cloning repository")

		repo, err = git.PlainCloneContext(ctx, opts.Path, false, &git.CloneOptions{
			URL:           opts.URL,
			RemoteName:    remoteName,
			ReferenceName: plumbing.NewBranchReferenceName(opts.Branch),
			SingleBranch:  true,
			Progress:      progress,
		})
		if err != nil {
			return Head{}, errors.Wrapf(err, "failed to clone %s", opts.URL)
		}
		return head(repo)
	}
	if err != nil {
		return Head{}, errors.Wrap(err, "failed to open repository")
	}

	url, err := remoteURL(repo)
	if err != nil {
		return Head{}, err
	}
	if opts.URL != "" && url != opts.URL {
		return Head{}, errors.Errorf("workspace is a clone of %s, not %s", url, opts.URL)
	}

	logger.Info().Str("url", url).Msg("fetching repository")

	refSpec := gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", opts.Branch, remoteName, opts.Branch))
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Progress:   progress,
		Force:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return Head{}, errors.Wrap(err, "failed to fetch")
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName(remoteName, opts.Branch), true)
	if err != nil {
		return Head{}, errors.Wrapf(err, "branch %s not found on %s", opts.Branch, remoteName)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return Head{}, errors.Wrap(err, "failed to get worktree")
	}

	branch := plumbing.NewBranchReferenceName(opts.Branch)
	_, err = repo.Reference(branch, false)
	create := errors.Is(err, plumbing.ErrReferenceNotFound)

	checkout := &git.CheckoutOptions{Branch: branch, Force: true, Create: create}
	if create {
		checkout.Hash = remoteRef.Hash()
	}
	if err := wt.Checkout(checkout); err != nil {
		return Head{}, errors.Wrapf(err, "failed to checkout %s", opts.Branch)
	}

	if err := wt.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
		return Head{}, errors.Wrapf(err, "failed to reset to %s", remoteRef.Hash())
	}

	return head(repo)
}

// Open returns the head of an existing checkout without touching it
func Open(path string) (Head, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return Head{}, errors.Wrap(err, "failed to open repository")
	}
	return head(repo)
}

// RemoteURL returns the origin url of the repository at path
func RemoteURL(path string) (string, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to open repository")
	}
	return remoteURL(repo)
}

func remoteURL(repo *git.Repository) (string, error) {
	repoConfig, err := repo.Config()
	if err != nil {
		return "", errors.Wrap(err, "failed to get repository config")
	}

	remote, ok := repoConfig.Remotes[remoteName]
	if !ok {
		return "", errors.New("no repository remote origin found")
	}

	if len(remote.URLs) == 0 {
		return "", errors.New("no remote origin urls found")
	}
	return remote.URLs[0], nil
}

func head(repo *git.Repository) (Head, error) {
	ref, err := repo.Head()
	if err != nil {
		return Head{}, errors.Wrap(err, "failed to get HEAD")
	}

	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return Head{}, errors.Wrapf(err, "failed to get commit %s", ref.Hash())
	}

	h := Head{
		Commit:  commit.Hash.String(),
		Author:  commit.Author.Name,
		Message: firstLine(commit.Message),
		When:    commit.Author.When,
	}
	if ref.Name().IsBranch() {
		h.Branch = ref.Name().Short()
	}
	return h, nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
