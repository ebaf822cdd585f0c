package driver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/oxidize/internal/checkpoint"
	"github.com/Sumatoshi-tech/oxidize/internal/config"
	"github.com/Sumatoshi-tech/oxidize/pkg/metadir"
	"github.com/Sumatoshi-tech/oxidize/pkg/planner"
	"github.com/Sumatoshi-tech/oxidize/pkg/symbols"
	"github.com/Sumatoshi-tech/oxidize/pkg/validate"
)

type fakeOracle struct {
	calls  int
	answer string
}

func (f *fakeOracle) Generate(_ context.Context, _ string) (string, error) {
	f.calls++

	return f.answer, nil
}

// flakyBuilder fails the first failUntil checks with a diagnostic, then
// reports a healthy build.
type flakyBuilder struct {
	calls     int
	failUntil int
}

func (b *flakyBuilder) Check(_ context.Context) (validate.BuildResult, error) {
	b.calls++

	if b.calls <= b.failUntil {
		return validate.BuildResult{
			System:      validate.BuildCargo,
			Diagnostics: []string{"error[E0308]: mismatched types"},
		}, nil
	}

	return validate.BuildResult{OK: true, System: validate.BuildCargo}, nil
}

func testRun() config.RunConfig {
	return config.RunConfig{
		ConsecutiveFailureThreshold: 3,
		FunctionRetries:             2,
		LLMRetries:                  1,
		BuildTimeoutSeconds:         5,
		CheckpointInterval:          1,
	}
}

// testProject lays out a scanned single-function project plus an empty crate.
func testProject(t *testing.T) (string, string, *symbols.Index, *symbols.SymbolMap) {
	t.Helper()

	root := t.TempDir()
	crate := filepath.Join(root, "crate_rs")

	require.NoError(t, os.WriteFile(filepath.Join(root, "calc.c"),
		[]byte("int helper(int v) {\n    return v * 2;\n}\n"), 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(crate, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(crate, "Cargo.toml"),
		[]byte("[package]\nname = \"crate_rs\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(crate, "src", "lib.rs"), []byte(""), 0o644))

	idx := symbols.NewIndex([]symbols.Record{{
		ID: 1, Kind: symbols.KindFunction, Name: "helper", QualifiedName: "helper",
		File: "calc.c", StartLine: 1, EndLine: 3, Language: "C",
	}})

	sm, err := symbols.LoadSymbolMap(metadir.Path(root, metadir.SymbolMapFile))
	require.NoError(t, err)

	return root, crate, idx, sm
}

func steps() []planner.Step {
	return []planner.Step{{Step: 1, IDs: []int{1}}}
}

func TestRun_ResumeSkipsConvertedWithoutOracle(t *testing.T) {
	t.Parallel()

	root, crate, idx, sm := testProject(t)

	progress, err := LoadProgress(root)
	require.NoError(t, err)
	progress.MarkConverted(1, "")
	require.NoError(t, progress.Save(root))

	fake := &fakeOracle{}

	d, err := New(Options{
		Root: root, CrateDir: crate, CrateName: "crate_rs",
		Run: testRun(), Resume: true,
	}, idx, sm, fake, nil, nil)
	require.NoError(t, err)

	summary, err := d.Run(context.Background(), steps(), nil)
	require.NoError(t, err)

	assert.Empty(t, summary.Committed)
	assert.Empty(t, summary.Parked)
	require.Len(t, summary.Skipped, 1)
	assert.Equal(t, 0, fake.calls, "a done unit must not reach the oracle")
}

func TestRun_ParksAfterThresholdAndRecordsReason(t *testing.T) {
	t.Parallel()

	root, crate, idx, sm := testProject(t)

	fake := &fakeOracle{answer: "this is not a translation plan"}

	d, err := New(Options{
		Root: root, CrateDir: crate, CrateName: "crate_rs",
		Run: testRun(), Resume: true,
	}, idx, sm, fake, nil, nil)
	require.NoError(t, err)

	summary, err := d.Run(context.Background(), steps(), nil)
	require.NoError(t, err)

	require.Len(t, summary.Parked, 1)
	assert.Equal(t, 3, fake.calls, "one oracle call per attempt up to the threshold")

	runState, err := LoadRunState(root)
	require.NoError(t, err)
	require.Len(t, runState.Parked, 1)
	assert.Equal(t, 1, runState.Parked[0].Attempts)
	assert.NotEmpty(t, runState.Parked[0].Reason)
}

func TestRun_RestartBudgetExhausted(t *testing.T) {
	t.Parallel()

	root, crate, idx, sm := testProject(t)

	fake := &fakeOracle{answer: "still not a plan"}
	opts := Options{
		Root: root, CrateDir: crate, CrateName: "crate_rs",
		Run: testRun(), Resume: true,
	}

	// Exhaust the restart budget: FunctionRetries is 2.
	for range 2 {
		d, newErr := New(opts, idx, sm, fake, nil, nil)
		require.NoError(t, newErr)

		_, runErr := d.Run(context.Background(), steps(), nil)
		require.NoError(t, runErr)
	}

	callsBefore := fake.calls

	d, err := New(opts, idx, sm, fake, nil, nil)
	require.NoError(t, err)

	summary, err := d.Run(context.Background(), steps(), nil)
	require.NoError(t, err)

	require.Len(t, summary.Parked, 1)
	assert.Contains(t, summary.Parked[0].Reason, "restart budget")
	assert.Equal(t, callsBefore, fake.calls, "a unit out of restarts must not reach the oracle")
}

func TestRun_RetryReplacesFailedAttempt(t *testing.T) {
	t.Parallel()

	root, crate, idx, sm := testProject(t)

	fake := &fakeOracle{answer: `{"module": "calc", "rust_signature": "pub fn helper(v: i32) -> i32", "code": "pub fn helper(v: i32) -> i32 {\n    v * 2\n}"}`}

	d, err := New(Options{
		Root: root, CrateDir: crate, CrateName: "crate_rs",
		Run: testRun(), Resume: true,
	}, idx, sm, fake, nil, nil)
	require.NoError(t, err)

	builder := &flakyBuilder{failUntil: 1}
	d.builder = builder

	summary, err := d.Run(context.Background(), steps(), nil)
	require.NoError(t, err)

	require.Len(t, summary.Committed, 1)
	assert.Equal(t, 2, builder.calls)

	content, err := os.ReadFile(filepath.Join(crate, "src", "calc.rs"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(content), "pub fn helper"),
		"the failed attempt's definition must not remain in the module")

	lib, err := os.ReadFile(filepath.Join(crate, "src", "lib.rs"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(lib), "pub mod calc;"))
}

func TestRun_ParkedAttemptLeavesNoCodeBehind(t *testing.T) {
	t.Parallel()

	root, crate, idx, sm := testProject(t)

	fake := &fakeOracle{answer: `{"module": "calc", "rust_signature": "pub fn helper(v: i32) -> i32", "code": "pub fn helper(v: i32) -> i32 {\n    v * 2\n}"}`}

	d, err := New(Options{
		Root: root, CrateDir: crate, CrateName: "crate_rs",
		Run: testRun(), Resume: true,
	}, idx, sm, fake, nil, nil)
	require.NoError(t, err)

	// Never builds: the unit parks after the threshold.
	d.builder = &flakyBuilder{failUntil: 1 << 30}

	summary, err := d.Run(context.Background(), steps(), nil)
	require.NoError(t, err)
	require.Len(t, summary.Parked, 1)

	_, statErr := os.Stat(filepath.Join(crate, "src", "calc.rs"))
	assert.True(t, os.IsNotExist(statErr), "a parked unit's last attempt must be reverted")
}

func TestNew_ResumeRejectsForeignCheckpoint(t *testing.T) {
	t.Parallel()

	root, crate, idx, sm := testProject(t)

	// A checkpoint persisted by a run with different parameters.
	foreign := checkpoint.NewStore[driverState](
		metadir.Path(root, metadir.DriverCheckpointFile), "another-key", 1)
	require.NoError(t, foreign.Save(driverState{ProcessedUnits: []int{1}}, symbols.Now()))

	_, err := New(Options{
		Root: root, CrateDir: crate, CrateName: "crate_rs",
		Run: testRun(), Resume: true,
	}, idx, sm, &fakeOracle{}, nil, nil)
	require.ErrorIs(t, err, checkpoint.ErrKeyMismatch)
}

func TestNew_ResetProgressIgnoresForeignCheckpoint(t *testing.T) {
	t.Parallel()

	root, crate, idx, sm := testProject(t)

	foreign := checkpoint.NewStore[driverState](
		metadir.Path(root, metadir.DriverCheckpointFile), "another-key", 1)
	require.NoError(t, foreign.Save(driverState{ProcessedUnits: []int{1}}, symbols.Now()))

	_, err := New(Options{
		Root: root, CrateDir: crate, CrateName: "crate_rs",
		Run: testRun(), Resume: false,
	}, idx, sm, &fakeOracle{}, nil, nil)
	require.NoError(t, err, "a fresh run never consults the old checkpoint")
}

func TestRun_DryRunCommitsWithoutWrites(t *testing.T) {
	t.Parallel()

	root, crate, idx, sm := testProject(t)

	fake := &fakeOracle{answer: `{"module": "calc", "rust_signature": "pub fn helper(v: i32) -> i32", "code": "pub fn helper(v: i32) -> i32 { v * 2 }"}`}

	d, err := New(Options{
		Root: root, CrateDir: crate, CrateName: "crate_rs",
		Run: testRun(), Resume: true, DryRun: true,
	}, idx, sm, fake, nil, nil)
	require.NoError(t, err)

	summary, err := d.Run(context.Background(), steps(), nil)
	require.NoError(t, err)

	require.Len(t, summary.Committed, 1)
	assert.Equal(t, 1, fake.calls)

	_, statErr := os.Stat(filepath.Join(crate, "src", "calc.rs"))
	assert.True(t, os.IsNotExist(statErr), "dry run must not write code")
}

func TestRun_MissingLibEntryAbortsBeforeAnyWrite(t *testing.T) {
	t.Parallel()

	root, crate, idx, sm := testProject(t)
	require.NoError(t, os.Remove(filepath.Join(crate, "src", "lib.rs")))

	fake := &fakeOracle{answer: "irrelevant"}

	d, err := New(Options{
		Root: root, CrateDir: crate, CrateName: "crate_rs",
		Run: testRun(), Resume: true,
	}, idx, sm, fake, nil, nil)
	require.NoError(t, err)

	_, err = d.Run(context.Background(), steps(), nil)
	require.ErrorIs(t, err, ErrStructure)
	assert.Equal(t, 0, fake.calls)
}
