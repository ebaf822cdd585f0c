// Package symbols holds the scanned symbol model: function and type records,
// the in-memory index over them, and the persisted translated-symbol map.
package symbols

import (
	"strconv"
	"time"
)

// Kind discriminates record kinds inside symbols.jsonl.
type Kind string

// Record kinds emitted by the scanner.
const (
	KindFunction  Kind = "function"
	KindStruct    Kind = "struct"
	KindClass     Kind = "class"
	KindUnion     Kind = "union"
	KindEnum      Kind = "enum"
	KindTypedef   Kind = "typedef"
	KindTypeAlias Kind = "type_alias"
)

// TimeFormat is the timestamp layout used in persisted metadata.
const TimeFormat = "2006-01-02T15:04:05"

// Param describes a single function parameter.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Replacement records library-replacement metadata attached to a record by
// the library replacer pre-pass.
type Replacement struct {
	Library string `json:"library"`
	Routine string `json:"routine,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Record is one scanned declaration: a function definition or a type
// declaration. Records are immutable after creation within one scan; a fresh
// scan fully replaces prior records.
type Record struct {
	ID            int    `json:"id"`
	Kind          Kind   `json:"kind"`
	Name          string `json:"name"`
	QualifiedName string `json:"qualified_name"`

	// Function-only fields.
	Signature  string  `json:"signature,omitempty"`
	ReturnType string  `json:"return_type,omitempty"`
	Params     []Param `json:"params,omitempty"`

	// Refs lists referenced symbols (callees and used types) by name.
	// Names are not resolved to ids at scan time.
	Refs []string `json:"refs,omitempty"`

	// Type-only field: the aliased type for typedef/type_alias records.
	UnderlyingType string `json:"underlying_type,omitempty"`

	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
	Language  string `json:"language"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`

	LibReplacement *Replacement `json:"lib_replacement,omitempty"`
}

// IsFunction reports whether the record is a function definition.
func (r *Record) IsFunction() bool {
	return r.Kind == KindFunction
}

// DisplayName returns the qualified name when present, else the plain name,
// else a synthetic label derived from the id.
func (r *Record) DisplayName() string {
	if r.QualifiedName != "" {
		return r.QualifiedName
	}

	if r.Name != "" {
		return r.Name
	}

	return "sym_" + strconv.Itoa(r.ID)
}

// Now returns the current timestamp in the persisted metadata layout.
func Now() string {
	return time.Now().Format(TimeFormat)
}
