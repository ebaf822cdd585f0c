// Package replacer is the optional pre-pass that walks the call graph
// bottom-up and asks the oracle whether whole subtrees can be replaced by
// existing library routines instead of being translated.
package replacer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Sumatoshi-tech/oxidize/internal/checkpoint"
	"github.com/Sumatoshi-tech/oxidize/pkg/collector"
	"github.com/Sumatoshi-tech/oxidize/pkg/metadir"
	"github.com/Sumatoshi-tech/oxidize/pkg/oracle"
	"github.com/Sumatoshi-tech/oxidize/pkg/persist"
	"github.com/Sumatoshi-tech/oxidize/pkg/planner"
	"github.com/Sumatoshi-tech/oxidize/pkg/symbols"
)

// Decision is the oracle's verdict on one subtree.
type Decision struct {
	ID          int                  `json:"id"`
	Name        string               `json:"name"`
	Replace     bool                 `json:"replace"`
	Replacement *symbols.Replacement `json:"replacement,omitempty"`
}

// Result is the pass outcome: replacement decisions plus the ids excluded
// from the translation order.
type Result struct {
	Decisions []Decision `json:"decisions"`
	PrunedIDs []int      `json:"pruned_ids"`
	UpdatedAt string     `json:"updated_at"`
}

// state is the checkpointed evaluation progress.
type state struct {
	EvalCounter     int        `json:"eval_counter"`
	ProcessedUnits  []int      `json:"processed_units"`
	PrunedUnits     []int      `json:"pruned_units"`
	SelectedResults []Decision `json:"selected_results"`
}

// Options configures the replacement pass.
type Options struct {
	Root               string
	CatalogPath        string
	DisabledLibraries  []string
	LLMRetries         int
	CheckpointInterval int
}

// Replacer runs the checkpointed bottom-up evaluation.
type Replacer struct {
	opts    Options
	idx     *symbols.Index
	coll    *collector.Collector
	oracle  oracle.Oracle
	catalog *Catalog
	store   *checkpoint.Store[state]
	logger  *slog.Logger
}

// New assembles a Replacer.
func New(opts Options, idx *symbols.Index, coll *collector.Collector, o oracle.Oracle, logger *slog.Logger) (*Replacer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	catalog, err := LoadCatalog(opts.CatalogPath)
	if err != nil {
		return nil, err
	}

	catalog = catalog.WithoutDisabled(opts.DisabledLibraries)

	key, err := checkpoint.Key(struct {
		Root     string   `json:"root"`
		Catalog  string   `json:"catalog"`
		Disabled []string `json:"disabled"`
	}{opts.Root, opts.CatalogPath, opts.DisabledLibraries})
	if err != nil {
		return nil, err
	}

	return &Replacer{
		opts:    opts,
		idx:     idx,
		coll:    coll,
		oracle:  o,
		catalog: catalog,
		store: checkpoint.NewStore[state](
			metadir.Path(opts.Root, metadir.ReplacerCheckpointFile),
			key,
			opts.CheckpointInterval,
		),
		logger: logger,
	}, nil
}

// Run evaluates every function bottom-up (callees before callers). A prior
// checkpoint with a matching key resumes the walk; a foreign one is ignored.
func (r *Replacer) Run(ctx context.Context) (*Result, error) {
	st, resumed, err := r.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load replacer checkpoint: %w", err)
	}

	if resumed {
		r.logger.Info("resuming library replacement",
			"evaluated", st.EvalCounter, "pruned", len(st.PrunedUnits))
	}

	processed := make(map[int]bool, len(st.ProcessedUnits))
	for _, id := range st.ProcessedUnits {
		processed[id] = true
	}

	pruned := make(map[int]bool, len(st.PrunedUnits))
	for _, id := range st.PrunedUnits {
		pruned[id] = true
	}

	order := planner.Flatten(planner.Plan(r.idx, nil))

	for _, id := range order {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if processed[id] || pruned[id] {
			continue
		}

		rec, ok := r.idx.Get(id)
		if !ok {
			continue
		}

		decision, evalErr := r.evaluate(ctx, rec)
		if evalErr != nil {
			// One failed evaluation never blocks the pass; the unit is
			// simply translated normally.
			r.logger.Warn("replacement evaluation failed", "unit", rec.DisplayName(), "error", evalErr)

			decision = Decision{ID: id, Name: rec.DisplayName()}
		}

		st.EvalCounter++

		processed[id] = true
		st.ProcessedUnits = append(st.ProcessedUnits, id)

		if decision.Replace {
			st.SelectedResults = append(st.SelectedResults, decision)

			for _, sub := range r.subtree(id) {
				if !pruned[sub] {
					pruned[sub] = true
					st.PrunedUnits = append(st.PrunedUnits, sub)
				}
			}
		}

		tickErr := r.store.Tick(st, symbols.Now())
		if tickErr != nil {
			r.logger.Warn("replacer checkpoint save failed", "error", tickErr)
		}
	}

	err = r.store.Save(st, symbols.Now())
	if err != nil {
		r.logger.Warn("final replacer checkpoint save failed", "error", err)
	}

	result := &Result{
		Decisions: st.SelectedResults,
		PrunedIDs: append([]int(nil), st.PrunedUnits...),
		UpdatedAt: symbols.Now(),
	}
	sort.Ints(result.PrunedIDs)

	err = persist.SaveJSON(metadir.Path(r.opts.Root, metadir.ReplacementsFile), result)
	if err != nil {
		return nil, fmt.Errorf("write replacements: %w", err)
	}

	return result, nil
}

// subtree returns id plus every function it transitively references. The
// walk is purely structural; whether callers outside the subtree still need
// a member is the oracle's problem to weigh in its verdict.
func (r *Replacer) subtree(id int) []int {
	visited := map[int]bool{id: true}
	stack := []int{id}

	var out []int

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, cur)

		rec, ok := r.idx.Get(cur)
		if !ok {
			continue
		}

		for _, ref := range r.idx.InternalRefs(rec) {
			child, childOK := r.idx.Get(ref)
			if !childOK || !child.IsFunction() || visited[ref] {
				continue
			}

			visited[ref] = true
			stack = append(stack, ref)
		}
	}

	sort.Ints(out)

	return out
}

// verdict is the oracle answer shape for one evaluation.
type verdict struct {
	Replace bool   `json:"replace"`
	Library string `json:"library"`
	Routine string `json:"routine"`
	Reason  string `json:"reason"`
}

var errMalformedVerdict = errors.New("oracle answer is not a valid replacement verdict")

func (r *Replacer) evaluate(ctx context.Context, rec *symbols.Record) (Decision, error) {
	source, err := r.coll.Span(rec.File, rec.StartLine, rec.EndLine)
	if err != nil {
		return Decision{}, fmt.Errorf("read source: %w", err)
	}

	prompt := r.buildPrompt(rec, source)

	answer, err := oracle.GenerateWithRetry(ctx, r.oracle, prompt, r.opts.LLMRetries, r.logger)
	if err != nil {
		return Decision{}, err
	}

	v, err := parseVerdict(answer)
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{ID: rec.ID, Name: rec.DisplayName(), Replace: v.Replace}

	if v.Replace {
		if !r.allowed(v.Library) {
			r.logger.Info("proposed library not in catalog, keeping unit",
				"unit", rec.DisplayName(), "library", v.Library)

			decision.Replace = false

			return decision, nil
		}

		decision.Replacement = &symbols.Replacement{
			Library: v.Library,
			Routine: v.Routine,
			Reason:  v.Reason,
		}
	}

	return decision, nil
}

func (r *Replacer) allowed(library string) bool {
	for _, lib := range r.catalog.Libraries {
		if lib.Name == library {
			return true
		}
	}

	return false
}

func (r *Replacer) buildPrompt(rec *symbols.Record, source string) string {
	var b strings.Builder

	b.WriteString("Decide whether this function's behavior is fully covered by a routine " +
		"from one of the allowed Rust libraries. Only answer yes for well-known, " +
		"semantically equivalent routines.\n\nAllowed libraries:\n")

	for _, lib := range r.catalog.Libraries {
		fmt.Fprintf(&b, "- %s: %s\n", lib.Name, lib.Description)
	}

	fmt.Fprintf(&b, "\nFunction %s (%s:%d):\n```\n%s\n```\n",
		rec.DisplayName(), rec.File, rec.StartLine, source)

	b.WriteString("\nAnswer with a single JSON object, no prose: " +
		`{"replace": <bool>, "library": "<name or empty>", ` +
		`"routine": "<routine or empty>", "reason": "<short reason>"}` + "\n")

	return b.String()
}

func parseVerdict(answer string) (*verdict, error) {
	trimmed := strings.TrimSpace(answer)

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.Index(trimmed, "\n"); idx >= 0 {
			trimmed = trimmed[idx+1:]
		}

		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	}

	var v verdict

	err := json.Unmarshal([]byte(strings.TrimSpace(trimmed)), &v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedVerdict, err)
	}

	if v.Replace && (v.Library == "" || v.Routine == "") {
		return nil, fmt.Errorf("%w: replace=true without library/routine", errMalformedVerdict)
	}

	return &v, nil
}

// LoadResult reads a prior pass result under root. Missing means no pass ran;
// callers get an empty result, not an error.
func LoadResult(root string) (*Result, error) {
	var result Result

	err := persist.LoadJSON(metadir.Path(root, metadir.ReplacementsFile), &result)
	if err != nil {
		if errors.Is(err, persist.ErrNotFound) {
			return &Result{}, nil
		}

		return nil, err
	}

	return &result, nil
}

// Apply stamps the replacement decisions onto the scan records so context
// collection can steer callers toward the library routine instead of a
// translation that will never exist.
func (r *Result) Apply(idx *symbols.Index) {
	for _, decision := range r.Decisions {
		if decision.Replacement == nil {
			continue
		}

		if rec, ok := idx.Get(decision.ID); ok {
			rec.LibReplacement = decision.Replacement
		}
	}
}

// PrunedSet converts the result's pruned list to the set form the planner
// consumes.
func (r *Result) PrunedSet() map[int]bool {
	set := make(map[int]bool, len(r.PrunedIDs))
	for _, id := range r.PrunedIDs {
		set[id] = true
	}

	return set
}
