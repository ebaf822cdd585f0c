// Package commands implements CLI command handlers for oxidize.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/oxidize/internal/config"
	"github.com/Sumatoshi-tech/oxidize/internal/replacer"
	"github.com/Sumatoshi-tech/oxidize/pkg/levenshtein"
	"github.com/Sumatoshi-tech/oxidize/pkg/metadir"
	"github.com/Sumatoshi-tech/oxidize/pkg/planner"
	"github.com/Sumatoshi-tech/oxidize/pkg/symbols"
)

// setupLogger configures the process logger from the persistent flags.
func setupLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	return logger
}

// loadConfig reads the oxidize configuration honoring the --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	return config.LoadConfig(path)
}

// loadIndex builds the symbol index from a prior scan under root.
func loadIndex(root string) (*symbols.Index, error) {
	records, err := symbols.ReadRecords(metadir.Path(root, metadir.SymbolsFile))
	if err != nil {
		return nil, fmt.Errorf("load scan (run `oxidize scan` first): %w", err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("scan under %s is empty", root)
	}

	return symbols.NewIndex(records), nil
}

// loadSymbolMap opens the append-only symbol map under root.
func loadSymbolMap(root string) (*symbols.SymbolMap, error) {
	return symbols.LoadSymbolMap(metadir.Path(root, metadir.SymbolMapFile))
}

// loadPruned merges the ids pruned by a prior library-replacement pass with
// the units unreachable from the project's pinned root symbols.
func loadPruned(root string, idx *symbols.Index, project *config.ProjectConfig, replacements *replacer.Result) (map[int]bool, error) {
	pruned := replacements.PrunedSet()

	rootIDs, err := resolveRoots(idx, project.RootSymbols)
	if err != nil {
		return nil, err
	}

	for id := range planner.Restrict(idx, rootIDs) {
		pruned[id] = true
	}

	return pruned, nil
}

// resolveRoots maps pinned root symbol names to scan ids. An unknown name is
// an error; when a scanned name is close enough it is suggested.
func resolveRoots(idx *symbols.Index, names []string) ([]int, error) {
	ids := make([]int, 0, len(names))

	for _, name := range names {
		id, ok := idx.Resolve(name)
		if !ok {
			if hint := nearestName(idx, name); hint != "" {
				return nil, fmt.Errorf("unknown root symbol %q (did you mean %q?)", name, hint)
			}

			return nil, fmt.Errorf("unknown root symbol %q", name)
		}

		ids = append(ids, id)
	}

	return ids, nil
}

// maxSuggestionDistance bounds how far a name may be from a scanned symbol
// before suggesting it stops being helpful.
const maxSuggestionDistance = 3

func nearestName(idx *symbols.Index, name string) string {
	var lctx levenshtein.Context

	best := ""
	bestDist := maxSuggestionDistance + 1

	for _, id := range idx.FunctionIDs() {
		rec, ok := idx.Get(id)
		if !ok {
			continue
		}

		dist := lctx.Distance(name, rec.Name)
		if dist < bestDist {
			best = rec.Name
			bestDist = dist
		}
	}

	return best
}
