package replacer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Library is one catalog entry the oracle may propose as a replacement.
type Library struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Routines    []string `yaml:"routines,omitempty"`
}

// Catalog lists the crates eligible for replacing translated subtrees.
type Catalog struct {
	Libraries []Library `yaml:"libraries"`
}

// defaultCatalog covers the crates most C utility code maps onto.
var defaultCatalog = Catalog{
	Libraries: []Library{
		{Name: "std", Description: "Rust standard library collections, strings, and I/O"},
		{Name: "libc", Description: "raw C ABI bindings for code that must stay C-shaped"},
		{Name: "regex", Description: "regular expression matching"},
		{Name: "serde_json", Description: "JSON parsing and serialization"},
		{Name: "flate2", Description: "zlib/gzip compression"},
		{Name: "sha2", Description: "SHA-2 family hashing"},
		{Name: "crc32fast", Description: "CRC32 checksums"},
		{Name: "rand", Description: "random number generation"},
		{Name: "chrono", Description: "date and time handling"},
		{Name: "clap", Description: "command line argument parsing"},
	},
}

// LoadCatalog reads a YAML catalog from path. An empty path yields the
// built-in default catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		cat := defaultCatalog

		return &cat, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var cat Catalog

	err = yaml.Unmarshal(data, &cat)
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if len(cat.Libraries) == 0 {
		return nil, fmt.Errorf("catalog %s lists no libraries", path)
	}

	return &cat, nil
}

// WithoutDisabled returns a copy of the catalog with the named libraries
// removed.
func (c *Catalog) WithoutDisabled(disabled []string) *Catalog {
	banned := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		banned[name] = true
	}

	out := &Catalog{}

	for _, lib := range c.Libraries {
		if !banned[lib.Name] {
			out.Libraries = append(out.Libraries, lib)
		}
	}

	return out
}
