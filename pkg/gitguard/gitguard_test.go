package gitguard

import (
	"os"
	"path/filepath"
	"testing"

	git2go "github.com/libgit2/git2go/v34"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	repo, err := git2go.InitRepository(dir, false)
	require.NoError(t, err)

	repo.Free()

	return dir
}

func TestOpen_NotARepo(t *testing.T) {
	t.Parallel()

	_, err := Open(t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrNotARepo)
}

func TestSnapshotCommitReset(t *testing.T) {
	t.Parallel()

	dir := initRepo(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.rs"), []byte("fn a() {}\n"), 0o644))

	guard, err := Open(dir, nil)
	require.NoError(t, err)
	defer guard.Free()

	// First snapshot on an unborn HEAD creates the baseline commit.
	baseline, err := guard.Snapshot()
	require.NoError(t, err)
	require.NotEmpty(t, baseline)

	// Mutate tracked and untracked state, commit, then reset to baseline.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.rs"), []byte("fn a() {}\nfn b() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.rs"), []byte("fn c() {}\n"), 0o644))

	good, err := guard.CommitAll("translate b and c")
	require.NoError(t, err)
	assert.NotEqual(t, baseline, good)

	head, err := guard.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, good, head)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.rs"), []byte("fn broken( {\n"), 0o644))

	require.True(t, guard.ResetTo(baseline))

	content, err := os.ReadFile(filepath.Join(dir, "lib.rs"))
	require.NoError(t, err)
	assert.Equal(t, "fn a() {}\n", string(content))

	_, err = os.Stat(filepath.Join(dir, "extra.rs"))
	assert.True(t, os.IsNotExist(err), "files from later commits are removed")

	_, err = os.Stat(filepath.Join(dir, "broken.rs"))
	assert.True(t, os.IsNotExist(err), "untracked files are removed")
}

func TestResetTo_BadHash(t *testing.T) {
	t.Parallel()

	dir := initRepo(t)

	guard, err := Open(dir, nil)
	require.NoError(t, err)
	defer guard.Free()

	assert.False(t, guard.ResetTo("not-a-hash"))
	assert.False(t, guard.ResetTo("0000000000000000000000000000000000000000"))
}
