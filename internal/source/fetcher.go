package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/rs/zerolog"
)

// ErrRefNotFound is returned when the repository exists but the requested
// ref does not resolve to a branch, tag or commit.
var ErrRefNotFound = errors.New("ref not found")

// FetchError reports a checkout that failed for reasons other than a
// missing ref, such as an unreachable remote.
type FetchError struct {
	RepoURL string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.RepoURL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Workspace is a checked-out source tree in the scratch area.
type Workspace struct {
	// Root is the directory containing the working tree.
	Root string
	// Commit is the full hash the checkout resolved to.
	Commit string
}

// Remove deletes the workspace from disk.
func (w *Workspace) Remove() error {
	if err := os.RemoveAll(w.Root); err != nil {
		return fmt.Errorf("failed to remove workspace: %w", err)
	}
	return nil
}

// Fetcher checks out app sources into scratch workspaces.
type Fetcher struct {
	timeout time.Duration
	depth   int
	retries int
	logger  zerolog.Logger
}

// NewFetcher creates a source fetcher. A depth of 0 clones full history;
// retries is the number of additional attempts after a transport failure.
func NewFetcher(timeout time.Duration, depth, retries int, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		timeout: timeout,
		depth:   depth,
		retries: retries,
		logger:  logger.With().Str("component", "source").Logger(),
	}
}

// Fetch clones repoURL into dir and checks out ref. An empty ref means
// the remote HEAD. Missing refs fail immediately; transport failures are
// retried up to the configured count.
func (f *Fetcher) Fetch(ctx context.Context, repoURL, ref, dir string) (*Workspace, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			f.logger.Warn().
				Str("repo", repoURL).
				Int("attempt", attempt+1).
				Err(lastErr).
				Msg("Retrying source fetch")
		}

		workspace, err := f.fetchOnce(ctx, repoURL, ref, dir)
		if err == nil {
			f.logger.Info().
				Str("repo", repoURL).
				Str("ref", ref).
				Str("commit", workspace.Commit).
				Msg("Source fetched")
			return workspace, nil
		}

		if errors.Is(err, ErrRefNotFound) {
			os.RemoveAll(dir)
			return nil, err
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	os.RemoveAll(dir)
	return nil, &FetchError{RepoURL: repoURL, Err: lastErr}
}

func (f *Fetcher) fetchOnce(ctx context.Context, repoURL, ref, dir string) (*Workspace, error) {
	if ref == "" {
		repo, err := f.clone(ctx, repoURL, dir, "")
		if err != nil {
			return nil, err
		}
		return workspaceAt(repo, dir)
	}

	// Try the ref as a branch first, then as a tag.
	for _, name := range []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(ref),
		plumbing.NewTagReferenceName(ref),
	} {
		repo, err := f.clone(ctx, repoURL, dir, name)
		if err == nil {
			return workspaceAt(repo, dir)
		}
		if !isRefNotFound(err) {
			return nil, err
		}
	}

	// Fall back to treating the ref as a revision (commit hash or
	// abbreviation). Revision lookup needs full history.
	return f.fetchRevision(ctx, repoURL, ref, dir)
}

func (f *Fetcher) clone(ctx context.Context, repoURL, dir string, refName plumbing.ReferenceName) (*git.Repository, error) {
	if err := resetDir(dir); err != nil {
		return nil, err
	}

	opts := &git.CloneOptions{
		URL:   repoURL,
		Depth: f.depth,
	}
	if refName != "" {
		opts.ReferenceName = refName
		opts.SingleBranch = true
	}

	return git.PlainCloneContext(ctx, dir, false, opts)
}

func (f *Fetcher) fetchRevision(ctx context.Context, repoURL, ref, dir string) (*Workspace, error) {
	if err := resetDir(dir); err != nil {
		return nil, err
	}

	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: repoURL})
	if err != nil {
		return nil, err
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRefNotFound, ref)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to open worktree: %w", err)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Hash: *hash}); err != nil {
		return nil, fmt.Errorf("failed to checkout %s: %w", ref, err)
	}

	return &Workspace{Root: dir, Commit: hash.String()}, nil
}

func workspaceAt(repo *git.Repository, dir string) (*Workspace, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return &Workspace{Root: dir, Commit: head.Hash().String()}, nil
}

func isRefNotFound(err error) bool {
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return true
	}
	var noMatch git.NoMatchingRefSpecError
	return errors.As(err, &noMatch)
}

func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clean workspace dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create workspace dir: %w", err)
	}
	return nil
}
