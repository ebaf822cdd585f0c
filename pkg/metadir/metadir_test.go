package metadir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsure_CreatesMetadataDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	dir, err := Ensure(root)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, Dir(root), dir)
}

func TestPath_JoinsUnderMetadataDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	path := Path(root, SymbolsFile)
	assert.Equal(t, filepath.Join(root, ".oxidize", "c2rust", "symbols.jsonl"), path)
}

func TestDefaultCrateDir_IsSibling(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "myproj")
	require.NoError(t, os.MkdirAll(root, 0o755))

	crate := DefaultCrateDir(root)
	assert.Equal(t, filepath.Join(filepath.Dir(root), "myproj_rs"), crate)
}
