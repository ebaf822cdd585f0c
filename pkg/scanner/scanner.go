// Package scanner walks a C/C++ tree and extracts function and type records
// with source spans and reference lists.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Sumatoshi-tech/oxidize/pkg/metadir"
	"github.com/Sumatoshi-tech/oxidize/pkg/persist"
	"github.com/Sumatoshi-tech/oxidize/pkg/symbols"
	"github.com/Sumatoshi-tech/oxidize/pkg/textutil"
)

// SchemaVersion identifies the symbols.jsonl record layout.
const SchemaVersion = 1

// Meta summarizes one scan, persisted as meta.json next to symbols.jsonl.
type Meta struct {
	Functions     int    `json:"functions"`
	Types         int    `json:"types"`
	FilesScanned  int    `json:"files_scanned"`
	FilesSkipped  int    `json:"files_skipped"`
	LinesScanned  int    `json:"lines_scanned"`
	GeneratedAt   string `json:"generated_at"`
	SchemaVersion int    `json:"schema_version"`
	SourceRoot    string `json:"source_root"`
}

// Scanner scans a source tree into symbol records.
type Scanner struct {
	root   string
	filter Filter
	logger *slog.Logger
}

// New creates a Scanner for the given root directory.
func New(root string, filter Filter, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scanner{root: root, filter: filter, logger: logger}
}

// Scan parses every recognized source file under the root and returns the
// records with sequential ids plus the scan summary. A malformed or
// unreadable file is skipped with a diagnostic; the scan as a whole never
// aborts on one bad file.
func (s *Scanner) Scan(ctx context.Context) ([]symbols.Record, Meta, error) {
	files, err := DiscoverFiles(s.root, s.filter)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("discover source files: %w", err)
	}

	s.logger.Info("scanning source tree", "root", s.root, "files", len(files))

	now := symbols.Now()
	meta := Meta{
		GeneratedAt:   now,
		SchemaVersion: SchemaVersion,
		SourceRoot:    s.root,
	}

	var records []symbols.Record

	nextID := 1

	for _, file := range files {
		if ctx.Err() != nil {
			return nil, Meta{}, ctx.Err()
		}

		content, readErr := os.ReadFile(file)
		if readErr != nil {
			s.logger.Warn("skipping unreadable file", "file", file, "error", readErr)
			meta.FilesSkipped++

			continue
		}

		if textutil.IsBinary(content) {
			s.logger.Warn("skipping binary file", "file", file)
			meta.FilesSkipped++

			continue
		}

		rel := file
		if r, relErr := filepath.Rel(s.root, file); relErr == nil {
			rel = filepath.ToSlash(r)
		}

		fileRecords, parseErr := ParseFile(ctx, rel, content)
		if parseErr != nil {
			s.logger.Warn("skipping malformed file", "file", file, "error", parseErr)
			meta.FilesSkipped++

			continue
		}

		for i := range fileRecords {
			fileRecords[i].ID = nextID
			nextID++

			fileRecords[i].CreatedAt = now
			fileRecords[i].UpdatedAt = now

			if fileRecords[i].IsFunction() {
				meta.Functions++
			} else {
				meta.Types++
			}
		}

		records = append(records, fileRecords...)
		meta.FilesScanned++
		meta.LinesScanned += textutil.CountLines(content)
	}

	return records, meta, nil
}

// WriteScan persists a scan: symbols.jsonl plus meta.json under the project's
// metadata directory. A fresh scan fully replaces prior records.
func WriteScan(root string, records []symbols.Record, meta Meta) error {
	_, err := metadir.Ensure(root)
	if err != nil {
		return err
	}

	err = symbols.WriteRecords(metadir.Path(root, metadir.SymbolsFile), records)
	if err != nil {
		return fmt.Errorf("write symbols: %w", err)
	}

	err = persist.SaveJSON(metadir.Path(root, metadir.MetaFile), &meta)
	if err != nil {
		return fmt.Errorf("write scan meta: %w", err)
	}

	return nil
}
