package scanner

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/src-d/enry/v2"
)

// sourceExts are the recognized C/C++ source and header extensions.
var sourceExts = map[string]bool{
	".c":   true,
	".cc":  true,
	".cpp": true,
	".cxx": true,
	".h":   true,
	".hh":  true,
	".hpp": true,
	".hxx": true,
}

// headerExts are the recognized header extensions.
var headerExts = map[string]bool{
	".h":   true,
	".hh":  true,
	".hpp": true,
	".hxx": true,
}

// skipDirs are directory names never descended into.
var skipDirs = map[string]bool{
	".git":     true,
	".oxidize": true,
	"target":   true,
}

// IsHeader reports whether path has a recognized header extension.
func IsHeader(path string) bool {
	return headerExts[strings.ToLower(filepath.Ext(path))]
}

// Filter narrows the set of files a walk returns.
type Filter struct {
	// Include holds glob patterns matched against slash-separated paths
	// relative to the walk root. Empty means include everything.
	Include []string

	// Exclude holds glob patterns; a match drops the file even when included.
	Exclude []string

	// MaxFiles caps the number of returned files. Zero or negative means
	// no cap.
	MaxFiles int
}

func (f *Filter) admit(rel string) bool {
	if len(f.Include) > 0 {
		matched := false

		for _, pattern := range f.Include {
			if ok, _ := filepath.Match(pattern, rel); ok {
				matched = true
				break
			}
		}

		if !matched {
			return false
		}
	}

	for _, pattern := range f.Exclude {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return false
		}
	}

	return true
}

// DiscoverFiles walks root and returns the recognized source files in
// deterministic (sorted) order. Vendored trees are skipped via enry so that
// bundled third-party sources do not pollute the symbol graph.
func DiscoverFiles(root string, filter Filter) ([]string, error) {
	var files []string

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}

		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if skipDirs[d.Name()] || (rel != "." && enry.IsVendor(rel+"/")) {
				return filepath.SkipDir
			}

			return nil
		}

		if !sourceExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		if enry.IsVendor(rel) || !filter.admit(rel) {
			return nil
		}

		files = append(files, path)

		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk %s: %w", root, walkErr)
	}

	sort.Strings(files)

	if filter.MaxFiles > 0 && len(files) > filter.MaxFiles {
		files = files[:filter.MaxFiles]
	}

	return files, nil
}
