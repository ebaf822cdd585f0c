// Package collector assembles the context a translation prompt needs for one
// unit: the unit's own source text plus the status of everything it
// references. It only ever reads; nothing here mutates project state.
package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sumatoshi-tech/oxidize/pkg/cache"
	"github.com/Sumatoshi-tech/oxidize/pkg/symbols"
)

// RefStatus classifies one reference of the unit under translation.
type RefStatus string

const (
	// RefTranslated means the referenced symbol already has a generated
	// counterpart recorded in the symbol map.
	RefTranslated RefStatus = "translated"

	// RefPending means the referenced symbol is in-project but not yet
	// translated; its original source is supplied instead.
	RefPending RefStatus = "pending"

	// RefExternal means the referenced name resolves to nothing in-project,
	// typically a libc or third-party routine.
	RefExternal RefStatus = "external"
)

// Ref describes one resolved reference for prompt assembly.
type Ref struct {
	Name   string
	Status RefStatus

	// Set when Status is RefTranslated.
	Module     string
	RustSymbol string
	Ambiguous  bool

	// Set when Status is RefPending.
	File      string
	StartLine int
	EndLine   int
	Source    string

	// Set when the referenced symbol has a recorded library replacement.
	Replacement *symbols.Replacement
}

// Context is everything the driver needs to build a translation prompt for
// one unit.
type Context struct {
	Record *symbols.Record
	Source string
	Refs   []Ref

	// GroupIDs lists the other members of the unit's cycle, if any. Their
	// sources are supplied as pending refs even before translation.
	GroupIDs []int
}

// Collector resolves unit context against a scan index and the symbol map.
type Collector struct {
	root string
	idx  *symbols.Index
	sm   *symbols.SymbolMap

	// cache of file contents split into lines, keyed by record File.
	lines *cache.FileCache
}

// New creates a Collector reading sources under root.
func New(root string, idx *symbols.Index, sm *symbols.SymbolMap) *Collector {
	return &Collector{
		root:  root,
		idx:   idx,
		sm:    sm,
		lines: cache.NewFileCache(cache.DefaultFileCacheSize),
	}
}

// Collect gathers the context for the unit with the given id. group lists
// the other ids sharing the unit's scheduling step, so mutually recursive
// members can see each other's original source.
func (c *Collector) Collect(id int, group []int) (*Context, error) {
	rec, ok := c.idx.Get(id)
	if !ok {
		return nil, fmt.Errorf("collect context: unknown id %d", id)
	}

	source, err := c.Span(rec.File, rec.StartLine, rec.EndLine)
	if err != nil {
		return nil, fmt.Errorf("read source of %s: %w", rec.DisplayName(), err)
	}

	cctx := &Context{
		Record: rec,
		Source: source,
	}

	for _, gid := range group {
		if gid != id {
			cctx.GroupIDs = append(cctx.GroupIDs, gid)
		}
	}

	for _, name := range rec.Refs {
		cctx.Refs = append(cctx.Refs, c.resolveRef(rec, name))
	}

	return cctx, nil
}

// resolveRef classifies one referenced name. The symbol map wins over the
// scan index: a translated symbol is referenced through its generated form
// even when the original declaration is still visible in the scan.
func (c *Collector) resolveRef(from *symbols.Record, name string) Ref {
	ref := Ref{Name: name}

	if entry, ambiguous, ok := c.sm.Lookup(name); ok {
		ref.Status = RefTranslated
		ref.Module = entry.Module
		ref.RustSymbol = entry.RustSymbol
		ref.Ambiguous = ambiguous

		return ref
	}

	targetID, ok := c.idx.Resolve(name)
	if !ok || targetID == from.ID {
		ref.Status = RefExternal

		return ref
	}

	target, ok := c.idx.Get(targetID)
	if !ok {
		ref.Status = RefExternal

		return ref
	}

	ref.Status = RefPending
	ref.File = target.File
	ref.StartLine = target.StartLine
	ref.EndLine = target.EndLine

	if target.LibReplacement != nil {
		ref.Replacement = target.LibReplacement
	}

	source, err := c.Span(target.File, target.StartLine, target.EndLine)
	if err == nil {
		ref.Source = source
	}

	return ref
}

// Span returns the source text of the inclusive 1-based line range of file.
// file is relative to the collector's root, as stored on records.
func (c *Collector) Span(file string, startLine, endLine int) (string, error) {
	lines, err := c.fileLines(file)
	if err != nil {
		return "", err
	}

	if startLine < 1 {
		startLine = 1
	}

	if endLine > len(lines) {
		endLine = len(lines)
	}

	if startLine > endLine {
		return "", fmt.Errorf("empty span %s:%d-%d", file, startLine, endLine)
	}

	return strings.Join(lines[startLine-1:endLine], "\n"), nil
}

func (c *Collector) fileLines(file string) ([]string, error) {
	if lines := c.lines.Get(file); lines != nil {
		return lines, nil
	}

	content, err := os.ReadFile(filepath.Join(c.root, filepath.FromSlash(file)))
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
	c.lines.Put(file, lines)

	return lines, nil
}
