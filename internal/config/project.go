package config

import (
	"errors"

	"github.com/Sumatoshi-tech/oxidize/pkg/metadir"
	"github.com/Sumatoshi-tech/oxidize/pkg/persist"
)

// ProjectConfig is the per-project configuration stored in the metadata
// directory. It accumulates operator guidance across runs.
type ProjectConfig struct {
	// RootSymbols pins the translation entry points. Empty means every
	// unreferenced function is a root.
	RootSymbols []string `json:"root_symbols,omitempty"`

	// DisabledLibraries lists crates the library replacer must not propose.
	DisabledLibraries []string `json:"disabled_libraries,omitempty"`

	// AdditionalNotes is free-form guidance appended to every prompt.
	AdditionalNotes string `json:"additional_notes,omitempty"`
}

// LoadProject reads the project config under root's metadata directory.
// A missing file yields the zero config.
func LoadProject(root string) (*ProjectConfig, error) {
	var cfg ProjectConfig

	err := persist.LoadJSON(metadir.Path(root, metadir.ConfigFile), &cfg)
	if err != nil {
		if errors.Is(err, persist.ErrNotFound) {
			return &cfg, nil
		}

		return nil, err
	}

	return &cfg, nil
}

// SaveProject persists the project config atomically.
func SaveProject(root string, cfg *ProjectConfig) error {
	_, err := metadir.Ensure(root)
	if err != nil {
		return err
	}

	return persist.SaveJSON(metadir.Path(root, metadir.ConfigFile), cfg)
}
