// Package validate checks the generated crate: layout invariants before any
// write, and build health after each generation.
package validate

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Layout paths enforced on the target crate.
const (
	libEntry  = "src/lib.rs"
	mainEntry = "src/main.rs"
	binDir    = "src/bin"
)

// StructureResult is the outcome of a layout check.
type StructureResult struct {
	OK     bool
	Reason string
}

// CheckStructure enforces the crate layout invariants on a file listing
// (slash-separated paths relative to the crate root):
//   - src/lib.rs must exist;
//   - when the original project has a program entry point, src/bin/<crate>.rs
//     must exist and src/main.rs must not;
//   - when it has none, neither src/main.rs nor any src/bin/ file may exist.
//
// The check runs before code is written so a malformed layout is rejected
// early instead of silently repaired.
func CheckStructure(files []string, crateName string, hasMain bool) StructureResult {
	set := make(map[string]bool, len(files))

	binFiles := []string{}

	for _, f := range files {
		f = path.Clean(filepath.ToSlash(f))
		set[f] = true

		if strings.HasPrefix(f, binDir+"/") {
			binFiles = append(binFiles, f)
		}
	}

	sort.Strings(binFiles)

	if !set[libEntry] {
		return StructureResult{Reason: fmt.Sprintf("missing library entry point %s", libEntry)}
	}

	if hasMain {
		binEntry := path.Join(binDir, crateName+".rs")
		if !set[binEntry] {
			return StructureResult{Reason: fmt.Sprintf("missing binary entry point %s", binEntry)}
		}

		if set[mainEntry] {
			return StructureResult{Reason: fmt.Sprintf("%s must not exist alongside %s", mainEntry, binEntry)}
		}

		return StructureResult{OK: true}
	}

	if set[mainEntry] {
		return StructureResult{Reason: fmt.Sprintf("%s must not exist: the source project has no program entry point", mainEntry)}
	}

	if len(binFiles) > 0 {
		return StructureResult{Reason: fmt.Sprintf("unexpected binary entries under %s: %s", binDir, strings.Join(binFiles, ", "))}
	}

	return StructureResult{OK: true}
}

// CheckCrateDir lists the Rust sources of an on-disk crate and runs
// CheckStructure against them. A missing crate directory is a failure with a
// reason, not an error.
func CheckCrateDir(crateDir, crateName string, hasMain bool) (StructureResult, error) {
	info, err := os.Stat(crateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return StructureResult{Reason: fmt.Sprintf("crate directory %s does not exist", crateDir)}, nil
		}

		return StructureResult{}, fmt.Errorf("stat crate dir: %w", err)
	}

	if !info.IsDir() {
		return StructureResult{Reason: fmt.Sprintf("%s is not a directory", crateDir)}, nil
	}

	var files []string

	binDirSeen := false

	walkErr := filepath.WalkDir(crateDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if d.Name() == "target" || d.Name() == ".git" {
				return filepath.SkipDir
			}

			if rel, relErr := filepath.Rel(crateDir, p); relErr == nil && filepath.ToSlash(rel) == binDir {
				binDirSeen = true
			}

			return nil
		}

		if strings.HasSuffix(p, ".rs") {
			rel, relErr := filepath.Rel(crateDir, p)
			if relErr != nil {
				return relErr
			}

			files = append(files, filepath.ToSlash(rel))
		}

		return nil
	})
	if walkErr != nil {
		return StructureResult{}, fmt.Errorf("walk crate dir: %w", walkErr)
	}

	result := CheckStructure(files, crateName, hasMain)

	// The directory itself is a binary-entry marker, even when empty.
	if result.OK && !hasMain && binDirSeen {
		return StructureResult{Reason: fmt.Sprintf("%s must not exist: the source project has no program entry point", binDir)}, nil
	}

	return result, nil
}
