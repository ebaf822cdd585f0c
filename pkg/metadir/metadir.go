// Package metadir resolves the on-disk metadata layout for a scanned project.
package metadir

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the metadata directory, relative to the scanned project root.
const DirName = ".oxidize/c2rust"

// Metadata file names inside the metadata directory.
const (
	SymbolsFile            = "symbols.jsonl"
	MetaFile               = "meta.json"
	OrderFile              = "translation_order.jsonl"
	SymbolMapFile          = "symbol_map.jsonl"
	ProgressFile           = "progress.json"
	ConfigFile             = "config.json"
	RunStateFile           = "run_state.json"
	DriverCheckpointFile   = "driver_checkpoint.json"
	ReplacerCheckpointFile = "library_replacer_checkpoint.json"
	ReplacementsFile       = "replacements.json"
)

// Dir returns the metadata directory for the given project root.
func Dir(root string) string {
	return filepath.Join(root, filepath.FromSlash(DirName))
}

// Path returns the full path of a metadata file for the given project root.
func Path(root, name string) string {
	return filepath.Join(Dir(root), name)
}

// Ensure creates the metadata directory if missing and returns its path.
func Ensure(root string) (string, error) {
	dir := Dir(root)

	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return "", fmt.Errorf("create metadata dir: %w", err)
	}

	return dir, nil
}

// DefaultCrateDir returns the default target crate directory for a project:
// a sibling directory named "<base>_rs".
func DefaultCrateDir(root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}

	return filepath.Join(filepath.Dir(abs), filepath.Base(abs)+"_rs")
}
