package collector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/oxidize/pkg/symbols"
)

const source = `int helper(int v) {
    return v * 2;
}

int compute(int v) {
    return helper(v) + strlen("x");
}
`

func setup(t *testing.T) (string, *symbols.Index, *symbols.SymbolMap) {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "calc.c"), []byte(source), 0o644))

	records := []symbols.Record{
		{
			ID: 1, Kind: symbols.KindFunction, Name: "helper", QualifiedName: "helper",
			File: "calc.c", StartLine: 1, EndLine: 3,
		},
		{
			ID: 2, Kind: symbols.KindFunction, Name: "compute", QualifiedName: "compute",
			Refs: []string{"helper", "strlen"},
			File: "calc.c", StartLine: 5, EndLine: 7,
		},
	}

	sm, err := symbols.LoadSymbolMap(filepath.Join(root, "symbol_map.jsonl"))
	require.NoError(t, err)

	return root, symbols.NewIndex(records), sm
}

func TestCollect_PendingAndExternalRefs(t *testing.T) {
	t.Parallel()

	root, idx, sm := setup(t)

	cctx, err := New(root, idx, sm).Collect(2, nil)
	require.NoError(t, err)

	assert.Contains(t, cctx.Source, "compute")
	require.Len(t, cctx.Refs, 2)

	helper := cctx.Refs[0]
	assert.Equal(t, RefPending, helper.Status)
	assert.Equal(t, "calc.c", helper.File)
	assert.Contains(t, helper.Source, "return v * 2;")

	strlen := cctx.Refs[1]
	assert.Equal(t, RefExternal, strlen.Status,
		"unresolvable names are external, status unknown")
}

func TestCollect_TranslatedRefWinsOverScan(t *testing.T) {
	t.Parallel()

	root, idx, sm := setup(t)

	require.NoError(t, sm.Append(symbols.MapEntry{
		Original: "helper", Module: "calc", RustSymbol: "helper",
		File: "calc.c", StartLine: 1,
	}))

	cctx, err := New(root, idx, sm).Collect(2, nil)
	require.NoError(t, err)

	helper := cctx.Refs[0]
	assert.Equal(t, RefTranslated, helper.Status)
	assert.Equal(t, "calc", helper.Module)
	assert.False(t, helper.Ambiguous)
}

func TestCollect_GroupExcludesSelf(t *testing.T) {
	t.Parallel()

	root, idx, sm := setup(t)

	cctx, err := New(root, idx, sm).Collect(2, []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, cctx.GroupIDs)
}

func TestSpan_ClampsAndErrors(t *testing.T) {
	t.Parallel()

	root, idx, sm := setup(t)
	coll := New(root, idx, sm)

	text, err := coll.Span("calc.c", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "int helper(int v) {\n    return v * 2;", text)

	// End lines past EOF clamp instead of failing.
	_, err = coll.Span("calc.c", 5, 9999)
	require.NoError(t, err)

	_, err = coll.Span("missing.c", 1, 2)
	assert.Error(t, err)
}
