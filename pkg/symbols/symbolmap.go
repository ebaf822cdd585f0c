package symbols

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MapEntry records one successfully translated unit: the original symbol and
// where its generated counterpart lives. The map file is append-only JSONL;
// several entries for the same name are legal (overloads, shadowing).
type MapEntry struct {
	Original   string `json:"original"`
	Module     string `json:"module"`
	RustSymbol string `json:"rust_symbol"`

	// Source position of the original declaration, kept to tell same-name
	// symbols apart.
	File      string `json:"file,omitempty"`
	StartLine int    `json:"start_line,omitempty"`

	UpdatedAt string `json:"updated_at"`
}

// SymbolMap is the persisted original-symbol to generated-symbol mapping.
// Entries only ever grow within and across runs.
type SymbolMap struct {
	path    string
	entries []MapEntry
	byName  map[string][]int // name -> entry positions, oldest first
}

// LoadSymbolMap loads the symbol map at path. A missing file yields an empty
// map; malformed lines are skipped.
func LoadSymbolMap(path string) (*SymbolMap, error) {
	sm := &SymbolMap{
		path:   path,
		byName: make(map[string][]int),
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sm, nil
		}

		return nil, fmt.Errorf("open symbol map: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry MapEntry

		unmarshalErr := json.Unmarshal(line, &entry)
		if unmarshalErr != nil || entry.Original == "" {
			continue
		}

		sm.index(entry)
	}

	err = scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("read symbol map: %w", err)
	}

	return sm, nil
}

func (sm *SymbolMap) index(entry MapEntry) {
	sm.entries = append(sm.entries, entry)
	pos := len(sm.entries) - 1
	sm.byName[entry.Original] = append(sm.byName[entry.Original], pos)
}

// Len returns the number of recorded entries.
func (sm *SymbolMap) Len() int {
	return len(sm.entries)
}

// Append records a new entry in memory and appends it to the map file.
func (sm *SymbolMap) Append(entry MapEntry) error {
	if entry.UpdatedAt == "" {
		entry.UpdatedAt = Now()
	}

	data, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("encode symbol map entry: %w", err)
	}

	mkdirErr := os.MkdirAll(filepath.Dir(sm.path), 0o755)
	if mkdirErr != nil {
		return fmt.Errorf("create symbol map dir: %w", mkdirErr)
	}

	file, err := os.OpenFile(sm.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open symbol map for append: %w", err)
	}
	defer file.Close()

	_, err = file.Write(append(data, '\n'))
	if err != nil {
		return fmt.Errorf("append symbol map entry: %w", err)
	}

	sm.index(entry)

	return nil
}

// Lookup returns the most recent entry for the given original name.
// ambiguous is true when several entries share the name; the returned entry
// is then a best-effort hint, not an authoritative resolution.
func (sm *SymbolMap) Lookup(name string) (entry MapEntry, ambiguous, ok bool) {
	positions := sm.byName[name]
	if len(positions) == 0 {
		return MapEntry{}, false, false
	}

	return sm.entries[positions[len(positions)-1]], len(positions) > 1, true
}

// Has reports whether any entry exists for the given original name.
func (sm *SymbolMap) Has(name string) bool {
	return len(sm.byName[name]) > 0
}

// HasRecord reports whether the exact declaration behind rec was already
// translated, matching on name plus source position so that same-name
// declarations at different locations are not conflated.
func (sm *SymbolMap) HasRecord(rec *Record) bool {
	for _, name := range []string{rec.QualifiedName, rec.Name} {
		if name == "" {
			continue
		}

		for _, pos := range sm.byName[name] {
			entry := sm.entries[pos]
			if entry.File == "" {
				// Legacy entry without position: match by name alone.
				return true
			}

			if entry.File == rec.File && entry.StartLine == rec.StartLine {
				return true
			}
		}
	}

	return false
}
