// Package gitguard snapshots a target repository before mutation and can
// hard-reset it when a unit fails. All crate mutation in a run is bracketed
// by a snapshot and either a commit or a reset.
package gitguard

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	git2go "github.com/libgit2/git2go/v34"
)

// ErrNotARepo means the target directory is not inside a git repository.
// Rollback is unavailable then; callers must surface that rather than
// silently continue with a no-op guard.
var ErrNotARepo = errors.New("target is not a git repository")

const (
	committerName  = "oxidize"
	committerEmail = "oxidize@localhost"
)

// Guard wraps a libgit2 repository for snapshot/commit/reset.
type Guard struct {
	repo   *git2go.Repository
	logger *slog.Logger
}

// Open opens the repository containing path. Returns ErrNotARepo when no
// repository is found at or above path.
func Open(path string, logger *slog.Logger) (*Guard, error) {
	if logger == nil {
		logger = slog.Default()
	}

	repo, err := git2go.OpenRepositoryExtended(path, 0, "")
	if err != nil {
		gitErr := new(git2go.GitError)
		if errors.As(err, &gitErr) && gitErr.Code == git2go.ErrorCodeNotFound {
			return nil, ErrNotARepo
		}

		return nil, fmt.Errorf("open repository: %w", err)
	}

	return &Guard{repo: repo, logger: logger}, nil
}

// Free releases the repository resources.
func (g *Guard) Free() {
	if g.repo != nil {
		g.repo.Free()
		g.repo = nil
	}
}

// Snapshot returns the current HEAD commit hash. An unborn HEAD (fresh
// repository with no commits) yields an initial commit of the current tree so
// there is always a hash to roll back to.
func (g *Guard) Snapshot() (string, error) {
	unborn, err := g.repo.IsHeadUnborn()
	if err != nil {
		return "", fmt.Errorf("inspect HEAD: %w", err)
	}

	if unborn {
		return g.CommitAll("initial snapshot")
	}

	ref, err := g.repo.Head()
	if err != nil {
		return "", fmt.Errorf("get HEAD: %w", err)
	}
	defer ref.Free()

	return ref.Target().String(), nil
}

// CommitAll stages every change (including new files) and commits, returning
// the new commit hash. Used to advance the known-good commit after a unit
// builds successfully.
func (g *Guard) CommitAll(message string) (string, error) {
	idx, err := g.repo.Index()
	if err != nil {
		return "", fmt.Errorf("open index: %w", err)
	}
	defer idx.Free()

	err = idx.AddAll([]string{"."}, git2go.IndexAddDefault, nil)
	if err != nil {
		return "", fmt.Errorf("stage changes: %w", err)
	}

	treeOid, err := idx.WriteTree()
	if err != nil {
		return "", fmt.Errorf("write tree: %w", err)
	}

	err = idx.Write()
	if err != nil {
		return "", fmt.Errorf("write index: %w", err)
	}

	tree, err := g.repo.LookupTree(treeOid)
	if err != nil {
		return "", fmt.Errorf("lookup tree: %w", err)
	}
	defer tree.Free()

	sig := &git2go.Signature{
		Name:  committerName,
		Email: committerEmail,
		When:  time.Now(),
	}

	var parents []*git2go.Commit

	unborn, err := g.repo.IsHeadUnborn()
	if err != nil {
		return "", fmt.Errorf("inspect HEAD: %w", err)
	}

	if !unborn {
		headRef, headErr := g.repo.Head()
		if headErr != nil {
			return "", fmt.Errorf("get HEAD: %w", headErr)
		}
		defer headRef.Free()

		parent, lookupErr := g.repo.LookupCommit(headRef.Target())
		if lookupErr != nil {
			return "", fmt.Errorf("lookup HEAD commit: %w", lookupErr)
		}
		defer parent.Free()

		parents = append(parents, parent)
	}

	oid, err := g.repo.CreateCommit("HEAD", sig, sig, message, tree, parents...)
	if err != nil {
		return "", fmt.Errorf("create commit: %w", err)
	}

	return oid.String(), nil
}

// ResetTo hard-resets the working tree to the given commit and removes
// untracked files, so the crate is byte-identical to the snapshot. Reports
// success rather than returning an error: a failed rollback disables the
// guard for the run but must not abort it.
func (g *Guard) ResetTo(hash string) bool {
	oid, err := git2go.NewOid(hash)
	if err != nil {
		g.logger.Error("rollback failed: bad commit hash", "hash", hash, "error", err)

		return false
	}

	commit, err := g.repo.LookupCommit(oid)
	if err != nil {
		g.logger.Error("rollback failed: commit not found", "hash", hash, "error", err)

		return false
	}
	defer commit.Free()

	checkout := git2go.CheckoutOptions{
		Strategy: git2go.CheckoutForce | git2go.CheckoutRemoveUntracked,
	}

	err = g.repo.ResetToCommit(commit, git2go.ResetHard, &checkout)
	if err != nil {
		g.logger.Error("rollback failed: reset", "hash", hash, "error", err)

		return false
	}

	return true
}
