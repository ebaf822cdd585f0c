package replacer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/oxidize/pkg/collector"
	"github.com/Sumatoshi-tech/oxidize/pkg/metadir"
	"github.com/Sumatoshi-tech/oxidize/pkg/symbols"
)

type scriptedOracle struct {
	calls   int
	answers []string
}

func (s *scriptedOracle) Generate(_ context.Context, _ string) (string, error) {
	answer := s.answers[s.calls%len(s.answers)]
	s.calls++

	return answer, nil
}

const twoFuncs = `int crc(int v) {
    return v ^ 0xEDB88320;
}

int process(int v) {
    return crc(v) + 1;
}
`

func setupProject(t *testing.T) (string, *symbols.Index, *collector.Collector) {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "crc.c"), []byte(twoFuncs), 0o644))

	records := []symbols.Record{
		{
			ID: 1, Kind: symbols.KindFunction, Name: "crc", QualifiedName: "crc",
			File: "crc.c", StartLine: 1, EndLine: 3,
		},
		{
			ID: 2, Kind: symbols.KindFunction, Name: "process", QualifiedName: "process",
			Refs: []string{"crc"}, File: "crc.c", StartLine: 5, EndLine: 7,
		},
	}

	idx := symbols.NewIndex(records)

	sm, err := symbols.LoadSymbolMap(filepath.Join(root, "sm.jsonl"))
	require.NoError(t, err)

	return root, idx, collector.New(root, idx, sm)
}

func TestParseVerdict(t *testing.T) {
	t.Parallel()

	v, err := parseVerdict(`{"replace": true, "library": "crc32fast", "routine": "Hasher::update", "reason": "standard CRC32"}`)
	require.NoError(t, err)
	assert.True(t, v.Replace)
	assert.Equal(t, "crc32fast", v.Library)

	v, err = parseVerdict("```json\n{\"replace\": false, \"library\": \"\", \"routine\": \"\", \"reason\": \"bespoke logic\"}\n```")
	require.NoError(t, err)
	assert.False(t, v.Replace)

	_, err = parseVerdict(`{"replace": true, "library": "", "routine": "", "reason": ""}`)
	assert.ErrorIs(t, err, errMalformedVerdict)

	_, err = parseVerdict("no json at all")
	assert.ErrorIs(t, err, errMalformedVerdict)
}

func TestCatalog_WithoutDisabled(t *testing.T) {
	t.Parallel()

	cat, err := LoadCatalog("")
	require.NoError(t, err)
	require.NotEmpty(t, cat.Libraries)

	filtered := cat.WithoutDisabled([]string{"regex", "rand"})
	assert.Len(t, filtered.Libraries, len(cat.Libraries)-2)

	for _, lib := range filtered.Libraries {
		assert.NotEqual(t, "regex", lib.Name)
		assert.NotEqual(t, "rand", lib.Name)
	}
}

func TestLoadCatalog_YAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`libraries:
  - name: nom
    description: parser combinators
    routines: [tag, take_while]
`), 0o644))

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, cat.Libraries, 1)
	assert.Equal(t, "nom", cat.Libraries[0].Name)
	assert.Equal(t, []string{"tag", "take_while"}, cat.Libraries[0].Routines)
}

func TestRun_PrunesAcceptedSubtreeAndPersists(t *testing.T) {
	t.Parallel()

	root, idx, coll := setupProject(t)

	// Bottom-up order is crc first; accept it, decline process.
	oracle := &scriptedOracle{answers: []string{
		`{"replace": true, "library": "crc32fast", "routine": "hash", "reason": "standard CRC32"}`,
		`{"replace": false, "library": "", "routine": "", "reason": "application logic"}`,
	}}

	rep, err := New(Options{Root: root, LLMRetries: 1, CheckpointInterval: 1}, idx, coll, oracle, nil)
	require.NoError(t, err)

	result, err := rep.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Decisions, 1)
	assert.Equal(t, 1, result.Decisions[0].ID)
	assert.Equal(t, "crc32fast", result.Decisions[0].Replacement.Library)
	assert.Equal(t, []int{1}, result.PrunedIDs)
	assert.Equal(t, 2, oracle.calls)

	loaded, err := LoadResult(root)
	require.NoError(t, err)
	assert.Equal(t, result.PrunedIDs, loaded.PrunedIDs)

	loaded.Apply(idx)

	rec, ok := idx.Get(1)
	require.True(t, ok)
	require.NotNil(t, rec.LibReplacement)
	assert.Equal(t, "crc32fast", rec.LibReplacement.Library)
}

func TestRun_ResumesFromCheckpoint(t *testing.T) {
	t.Parallel()

	root, idx, coll := setupProject(t)

	decline := `{"replace": false, "library": "", "routine": "", "reason": "no match"}`
	oracle := &scriptedOracle{answers: []string{decline}}

	opts := Options{Root: root, LLMRetries: 1, CheckpointInterval: 1}

	rep, err := New(opts, idx, coll, oracle, nil)
	require.NoError(t, err)

	_, err = rep.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, oracle.calls)

	// A second pass under the same key re-evaluates nothing.
	rep, err = New(opts, idx, coll, oracle, nil)
	require.NoError(t, err)

	_, err = rep.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, oracle.calls)
}

func TestRun_DisallowedLibraryKeepsUnit(t *testing.T) {
	t.Parallel()

	root, idx, coll := setupProject(t)

	oracle := &scriptedOracle{answers: []string{
		`{"replace": true, "library": "regex", "routine": "is_match", "reason": "pattern"}`,
	}}

	rep, err := New(Options{
		Root: root, LLMRetries: 1, CheckpointInterval: 1,
		DisabledLibraries: []string{"regex"},
	}, idx, coll, oracle, nil)
	require.NoError(t, err)

	result, err := rep.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Decisions)
	assert.Empty(t, result.PrunedIDs)

	_, statErr := os.Stat(metadir.Path(root, metadir.ReplacementsFile))
	assert.NoError(t, statErr, "an empty result is still persisted")
}
