package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/oxidize/pkg/metadir"
	"github.com/Sumatoshi-tech/oxidize/pkg/symbols"
)

const sampleC = `
struct point {
    int x;
    int y;
};

typedef unsigned int uid_t;

int helper(int v) {
    return v * 2;
}

int main(int argc, char **argv) {
    struct point p;
    return helper(argc);
}
`

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()

	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscoverFiles_SortedAndFiltered(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "b.c", "int b(void) { return 0; }\n")
	writeFile(t, root, "a.c", "int a(void) { return 0; }\n")
	writeFile(t, root, "notes.txt", "not source\n")
	writeFile(t, root, ".git/ignored.c", "int g(void) { return 0; }\n")
	writeFile(t, root, "vendor/lib.c", "int v(void) { return 0; }\n")

	files, err := DiscoverFiles(root, Filter{})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, filepath.Join(root, "a.c"), files[0])
	assert.Equal(t, filepath.Join(root, "b.c"), files[1])
}

func TestDiscoverFiles_ExcludeGlob(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "keep.c", "int k(void) { return 0; }\n")
	writeFile(t, root, "skip_test.c", "int s(void) { return 0; }\n")

	files, err := DiscoverFiles(root, Filter{Exclude: []string{"*_test.c"}})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, files[0], "keep.c")
}

func TestParseFile_FunctionsTypesAndRefs(t *testing.T) {
	t.Parallel()

	records, err := ParseFile(context.Background(), "sample.c", []byte(sampleC))
	require.NoError(t, err)

	byName := map[string]symbols.Record{}
	for _, rec := range records {
		byName[rec.Name] = rec
	}

	mainRec, ok := byName["main"]
	require.True(t, ok)
	assert.True(t, mainRec.IsFunction())
	assert.Contains(t, mainRec.Refs, "helper")
	assert.Equal(t, "int", mainRec.ReturnType)
	require.Len(t, mainRec.Params, 2)
	assert.Equal(t, "argc", mainRec.Params[0].Name)

	point, ok := byName["point"]
	require.True(t, ok)
	assert.Equal(t, symbols.KindStruct, point.Kind)

	uid, ok := byName["uid_t"]
	require.True(t, ok)
	assert.Equal(t, symbols.KindTypedef, uid.Kind)

	helper, ok := byName["helper"]
	require.True(t, ok)
	assert.Positive(t, helper.StartLine)
	assert.GreaterOrEqual(t, helper.EndLine, helper.StartLine)
}

func TestScan_AssignsSequentialIDs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "one.c", "int one(void) { return 1; }\n")
	writeFile(t, root, "two.c", "int two(void) { return one(); }\nint one(void);\n")

	records, meta, err := New(root, Filter{}, nil).Scan(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, records)

	for i, rec := range records {
		assert.Equal(t, i+1, rec.ID)
		assert.NotEmpty(t, rec.CreatedAt)
	}

	assert.Equal(t, 2, meta.FilesScanned)
	assert.Equal(t, 3, meta.LinesScanned)
	assert.Positive(t, meta.Functions)
}

func TestScan_SkipsBinaryFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "one.c", "int one(void) { return 1; }\n")
	writeFile(t, root, "blob.c", "int bad(void) { return '\x00'; }\n")

	records, meta, err := New(root, Filter{}, nil).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, meta.FilesScanned)
	assert.Equal(t, 1, meta.FilesSkipped)
	require.Len(t, records, 1)
	assert.Equal(t, "one", records[0].Name)
}

func TestWriteScan_PersistsSymbolsAndMeta(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "one.c", "int one(void) { return 1; }\n")

	records, meta, err := New(root, Filter{}, nil).Scan(context.Background())
	require.NoError(t, err)
	require.NoError(t, WriteScan(root, records, meta))

	loaded, err := symbols.ReadRecords(metadir.Path(root, metadir.SymbolsFile))
	require.NoError(t, err)
	assert.Len(t, loaded, len(records))
}
