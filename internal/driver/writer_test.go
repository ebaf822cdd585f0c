package driver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSkeleton_BinaryCrate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := &crateWriter{crateDir: dir, crateName: "mycrate", hasMain: true}

	require.NoError(t, w.EnsureSkeleton())

	for _, path := range []string{"Cargo.toml", "src/lib.rs", "src/bin/mycrate.rs"} {
		_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(path)))
		assert.NoError(t, err, path)
	}

	result, err := w.Precheck()
	require.NoError(t, err)
	assert.True(t, result.OK, result.Reason)
}

func TestEnsureSkeleton_LeavesExistingCrateAlone(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte("# custom\n"), 0o644))

	w := &crateWriter{crateDir: dir, crateName: "mycrate"}
	require.NoError(t, w.EnsureSkeleton())

	content, err := os.ReadFile(filepath.Join(dir, "Cargo.toml"))
	require.NoError(t, err)
	assert.Equal(t, "# custom\n", string(content))
}

func TestWrite_RegistersModuleChain(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := &crateWriter{crateDir: dir, crateName: "mycrate"}
	require.NoError(t, w.EnsureSkeleton())

	preview, err := w.Write(&Plan{
		Module:        "net/parser",
		RustSignature: "pub fn parse()",
		Code:          "pub fn parse() {}",
	})
	require.NoError(t, err)
	assert.Contains(t, preview, "+pub fn parse() {}")

	libContent, err := os.ReadFile(filepath.Join(dir, "src", "lib.rs"))
	require.NoError(t, err)
	assert.Contains(t, string(libContent), "pub mod net;")

	modContent, err := os.ReadFile(filepath.Join(dir, "src", "net", "mod.rs"))
	require.NoError(t, err)
	assert.Contains(t, string(modContent), "pub mod parser;")

	fileContent, err := os.ReadFile(filepath.Join(dir, "src", "net", "parser.rs"))
	require.NoError(t, err)
	assert.Contains(t, string(fileContent), "pub fn parse() {}")
}

func TestWrite_AppendsAndDeclaresOnce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := &crateWriter{crateDir: dir, crateName: "mycrate"}
	require.NoError(t, w.EnsureSkeleton())

	_, err := w.Write(&Plan{Module: "util", RustSignature: "pub fn a()", Code: "pub fn a() {}"})
	require.NoError(t, err)

	_, err = w.Write(&Plan{Module: "util", RustSignature: "pub fn b()", Code: "pub fn b() {}"})
	require.NoError(t, err)

	fileContent, err := os.ReadFile(filepath.Join(dir, "src", "util.rs"))
	require.NoError(t, err)
	assert.Contains(t, string(fileContent), "pub fn a() {}")
	assert.Contains(t, string(fileContent), "pub fn b() {}")

	libContent, err := os.ReadFile(filepath.Join(dir, "src", "lib.rs"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(libContent), "pub mod util;"))
}

func TestRevert_RemovesFailedAttempt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := &crateWriter{crateDir: dir, crateName: "mycrate"}
	require.NoError(t, w.EnsureSkeleton())

	libBefore, err := os.ReadFile(filepath.Join(dir, "src", "lib.rs"))
	require.NoError(t, err)

	_, err = w.Write(&Plan{Module: "util", RustSignature: "pub fn broken()", Code: "pub fn broken( {}"})
	require.NoError(t, err)

	require.NoError(t, w.Revert())

	_, statErr := os.Stat(filepath.Join(dir, "src", "util.rs"))
	assert.True(t, os.IsNotExist(statErr), "a reverted module file must be removed")

	libAfter, err := os.ReadFile(filepath.Join(dir, "src", "lib.rs"))
	require.NoError(t, err)
	assert.Equal(t, string(libBefore), string(libAfter), "the mod declaration must be rolled back too")
}

func TestRevert_AfterAcceptLeavesCommittedCode(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := &crateWriter{crateDir: dir, crateName: "mycrate"}
	require.NoError(t, w.EnsureSkeleton())

	_, err := w.Write(&Plan{Module: "util", RustSignature: "pub fn a()", Code: "pub fn a() {}"})
	require.NoError(t, err)
	w.Accept()

	require.NoError(t, w.Revert())

	content, err := os.ReadFile(filepath.Join(dir, "src", "util.rs"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "pub fn a() {}")
}

func TestRevert_RestoresPriorModuleContents(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := &crateWriter{crateDir: dir, crateName: "mycrate"}
	require.NoError(t, w.EnsureSkeleton())

	_, err := w.Write(&Plan{Module: "util", RustSignature: "pub fn a()", Code: "pub fn a() {}"})
	require.NoError(t, err)
	w.Accept()

	_, err = w.Write(&Plan{Module: "util", RustSignature: "pub fn b()", Code: "pub fn b( {}"})
	require.NoError(t, err)

	require.NoError(t, w.Revert())

	content, err := os.ReadFile(filepath.Join(dir, "src", "util.rs"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "pub fn a() {}")
	assert.NotContains(t, string(content), "pub fn b(")
}

func TestProgress_ParkAndResume(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	rs, err := LoadRunState(root)
	require.NoError(t, err)

	rs.Park(7, "parse", "build kept failing")
	rs.Park(7, "parse", "build kept failing again")
	require.NoError(t, rs.Save(root))

	reloaded, err := LoadRunState(root)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.AttemptCount(7), "attempts accumulate across parks")
	require.Len(t, reloaded.Parked, 1, "re-parking replaces the entry")
	assert.Equal(t, "build kept failing again", reloaded.Parked[0].Reason)

	reloaded.Unpark(7)
	assert.Empty(t, reloaded.Parked)
	assert.Equal(t, 2, reloaded.AttemptCount(7), "unparking keeps the history")
}

func TestProgress_MarkConverted(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	p, err := LoadProgress(root)
	require.NoError(t, err)

	p.MarkConverted(3, "abc123")
	p.MarkConverted(3, "abc123")
	require.NoError(t, p.Save(root))

	reloaded, err := LoadProgress(root)
	require.NoError(t, err)
	assert.True(t, reloaded.IsConverted(3))
	assert.False(t, reloaded.IsConverted(4))
	assert.Equal(t, []int{3}, reloaded.Converted)
}
