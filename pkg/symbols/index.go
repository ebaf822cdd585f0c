package symbols

import "sort"

// Index is the in-memory view over one scan: id lookup and name resolution.
// It is built once per run from symbols.jsonl and never mutated afterwards.
type Index struct {
	records  []Record
	byID     map[int]int    // id -> position in records
	nameToID map[string]int // name and qualified name -> id, first record wins
}

// NewIndex builds an index over the given records. When several records share
// a name (overloads, duplicated header declarations), the record with the
// lowest id claims the name.
func NewIndex(records []Record) *Index {
	idx := &Index{
		records:  records,
		byID:     make(map[int]int, len(records)),
		nameToID: make(map[string]int, len(records)*2),
	}

	order := make([]int, len(records))
	for i := range records {
		order[i] = i
	}

	sort.Slice(order, func(a, b int) bool {
		return records[order[a]].ID < records[order[b]].ID
	})

	for _, pos := range order {
		rec := &records[pos]

		if _, exists := idx.byID[rec.ID]; !exists {
			idx.byID[rec.ID] = pos
		}

		if rec.Name != "" {
			if _, exists := idx.nameToID[rec.Name]; !exists {
				idx.nameToID[rec.Name] = rec.ID
			}
		}

		if rec.QualifiedName != "" {
			if _, exists := idx.nameToID[rec.QualifiedName]; !exists {
				idx.nameToID[rec.QualifiedName] = rec.ID
			}
		}
	}

	return idx
}

// Len returns the number of indexed records.
func (x *Index) Len() int {
	return len(x.records)
}

// Get returns the record with the given id.
func (x *Index) Get(id int) (*Record, bool) {
	pos, ok := x.byID[id]
	if !ok {
		return nil, false
	}

	return &x.records[pos], true
}

// Resolve maps a symbol name (plain or qualified) to a record id.
// Names outside the scan resolve to false: they are external symbols.
func (x *Index) Resolve(name string) (int, bool) {
	id, ok := x.nameToID[name]
	return id, ok
}

// IDs returns all record ids in ascending order.
func (x *Index) IDs() []int {
	ids := make([]int, 0, len(x.byID))
	for id := range x.byID {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	return ids
}

// FunctionIDs returns ids of function records in ascending order.
func (x *Index) FunctionIDs() []int {
	var ids []int

	for id, pos := range x.byID {
		if x.records[pos].IsFunction() {
			ids = append(ids, id)
		}
	}

	sort.Ints(ids)

	return ids
}

// InternalRefs resolves a record's refs to in-project record ids, dropping
// self-references and duplicates while preserving first-seen order.
// References to names outside the scan are not returned; they are library
// calls and impose no scheduling constraint.
func (x *Index) InternalRefs(rec *Record) []int {
	var ids []int

	seen := make(map[int]bool)

	for _, ref := range rec.Refs {
		id, ok := x.Resolve(ref)
		if !ok || id == rec.ID || seen[id] {
			continue
		}

		seen[id] = true
		ids = append(ids, id)
	}

	return ids
}

// HasMain reports whether the scan contains a program entry point, which
// decides the generated crate's binary/library layout.
func (x *Index) HasMain() bool {
	for _, rec := range x.records {
		if rec.IsFunction() && rec.Name == "main" {
			return true
		}
	}

	return false
}

// Roots returns ids of function records that no other in-project function
// references. Ordered ascending.
func (x *Index) Roots() []int {
	referenced := make(map[int]bool)

	for _, id := range x.FunctionIDs() {
		rec, _ := x.Get(id)
		for _, ref := range x.InternalRefs(rec) {
			referenced[ref] = true
		}
	}

	var roots []int

	for _, id := range x.FunctionIDs() {
		if !referenced[id] {
			roots = append(roots, id)
		}
	}

	return roots
}
