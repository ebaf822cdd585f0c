// Package driver runs the per-unit translation loop: collect context, invoke
// the oracle, write code, validate, commit or roll back.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/oxidize/internal/checkpoint"
	"github.com/Sumatoshi-tech/oxidize/internal/config"
	"github.com/Sumatoshi-tech/oxidize/pkg/collector"
	"github.com/Sumatoshi-tech/oxidize/pkg/gitguard"
	"github.com/Sumatoshi-tech/oxidize/pkg/metadir"
	"github.com/Sumatoshi-tech/oxidize/pkg/oracle"
	"github.com/Sumatoshi-tech/oxidize/pkg/planner"
	"github.com/Sumatoshi-tech/oxidize/pkg/symbols"
	"github.com/Sumatoshi-tech/oxidize/pkg/validate"
)

// State is a unit's position in the translation lifecycle.
type State string

const (
	StatePending    State = "pending"
	StateGenerating State = "generating"
	StateValidating State = "validating"
	StateCommitted  State = "committed"
	StateRetrying   State = "retrying"
	StateFailed     State = "failed"
)

// ErrStructure aborts the run before any write when the crate layout is
// invalid. Continuing would scatter code over a malformed tree.
var ErrStructure = errors.New("target crate structure is invalid")

// Options configures one translation run.
type Options struct {
	Root      string
	CrateDir  string
	CrateName string

	Run    config.RunConfig
	Notes  string
	Resume bool
	DryRun bool
}

// UnitResult is the terminal outcome of one unit within a run.
type UnitResult struct {
	ID     int
	Name   string
	State  State
	Reason string
}

// Summary is the run-end report input.
type Summary struct {
	Committed []UnitResult
	Parked    []UnitResult
	Skipped   []UnitResult
	Pruned    []int
}

// driverState is the checkpointed driver progress, bound to the run key.
type driverState struct {
	ProcessedUnits []int `json:"processed_units"`
}

// buildChecker validates the crate build after a write; swapped in tests.
type buildChecker interface {
	Check(ctx context.Context) (validate.BuildResult, error)
}

// Driver executes the translation order unit by unit.
type Driver struct {
	opts    Options
	idx     *symbols.Index
	sm      *symbols.SymbolMap
	coll    *collector.Collector
	oracle  oracle.Oracle
	guard   *gitguard.Guard // nil when the target is not a repository
	builder buildChecker
	writer  *crateWriter
	metrics *Metrics
	logger  *slog.Logger

	progress *Progress
	runState *RunState
	store    *checkpoint.Store[driverState]
}

// New assembles a Driver. guard may be nil; the run then proceeds
// forward-only with rollback disabled.
func New(opts Options, idx *symbols.Index, sm *symbols.SymbolMap, o oracle.Oracle, guard *gitguard.Guard, logger *slog.Logger) (*Driver, error) {
	if logger == nil {
		logger = slog.Default()
	}

	progress, err := LoadProgress(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	runState, err := LoadRunState(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("load run state: %w", err)
	}

	if !opts.Resume {
		progress = newProgress()
		runState = newRunState()
	}

	key, err := checkpoint.Key(struct {
		Root      string `json:"root"`
		CrateDir  string `json:"crate_dir"`
		Threshold int    `json:"threshold"`
		Retries   int    `json:"retries"`
	}{opts.Root, opts.CrateDir, opts.Run.ConsecutiveFailureThreshold, opts.Run.FunctionRetries})
	if err != nil {
		return nil, err
	}

	d := &Driver{
		opts:   opts,
		idx:    idx,
		sm:     sm,
		coll:   collector.New(opts.Root, idx, sm),
		oracle: o,
		guard:  guard,
		builder: validate.NewBuilder(opts.CrateDir,
			time.Duration(opts.Run.BuildTimeoutSeconds)*time.Second),
		writer: &crateWriter{
			crateDir:  opts.CrateDir,
			crateName: opts.CrateName,
			hasMain:   idx.HasMain(),
		},
		metrics:  NewMetrics(),
		logger:   logger,
		progress: progress,
		runState: runState,
		store: checkpoint.NewStore[driverState](
			metadir.Path(opts.Root, metadir.DriverCheckpointFile),
			key,
			opts.Run.CheckpointInterval,
		),
	}

	if opts.Resume {
		state, ok, loadErr := d.store.LoadStrict()
		if loadErr != nil {
			if errors.Is(loadErr, checkpoint.ErrKeyMismatch) {
				return nil, fmt.Errorf("resume: %w (use --reset-progress to discard prior state)", loadErr)
			}

			return nil, loadErr
		}

		if ok {
			for _, id := range state.ProcessedUnits {
				if !d.progress.IsConverted(id) {
					d.progress.MarkConverted(id, "")
				}
			}
		}
	}

	d.metrics.Serve(opts.Run.MetricsAddr, logger)

	return d, nil
}

// Run processes every step of the order. Per-unit failures never abort the
// run; only a failed structural precheck does.
func (d *Driver) Run(ctx context.Context, steps []planner.Step, pruned []int) (*Summary, error) {
	defer d.metrics.Close()

	if !d.opts.DryRun {
		err := d.writer.EnsureSkeleton()
		if err != nil {
			return nil, err
		}

		structure, err := d.writer.Precheck()
		if err != nil {
			return nil, err
		}

		if !structure.OK {
			return nil, fmt.Errorf("%w: %s", ErrStructure, structure.Reason)
		}
	}

	if d.guard == nil {
		d.logger.Warn("target is not a git repository: rollback disabled, continuing forward-only")
	} else if d.runState.LastGoodCommit == "" {
		hash, snapErr := d.guard.Snapshot()
		if snapErr != nil {
			return nil, fmt.Errorf("snapshot baseline: %w", snapErr)
		}

		d.runState.LastGoodCommit = hash
	}

	summary := &Summary{Pruned: pruned}

	for _, step := range steps {
		for _, id := range step.IDs {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}

			result := d.runUnit(ctx, id, step.IDs)

			switch result.State {
			case StateCommitted:
				summary.Committed = append(summary.Committed, result)
			case StateFailed:
				summary.Parked = append(summary.Parked, result)
			default:
				summary.Skipped = append(summary.Skipped, result)
			}
		}
	}

	d.flush()

	return summary, nil
}

// runUnit drives one unit to a terminal state.
func (d *Driver) runUnit(ctx context.Context, id int, group []int) UnitResult {
	rec, ok := d.idx.Get(id)
	if !ok {
		return UnitResult{ID: id, State: StateFailed, Reason: "unknown id"}
	}

	result := UnitResult{ID: id, Name: rec.DisplayName()}

	if d.progress.IsConverted(id) || d.sm.HasRecord(rec) {
		d.metrics.UnitsSkipped.Inc()
		result.State = StatePending
		result.Reason = "already translated"

		return result
	}

	if d.opts.Run.FunctionRetries > 0 && d.runState.AttemptCount(id) >= d.opts.Run.FunctionRetries {
		result.State = StateFailed
		result.Reason = "restart budget exhausted"

		return result
	}

	d.progress.Current = id

	cctx, err := d.coll.Collect(id, group)
	if err != nil {
		d.logger.Warn("context collection failed", "unit", rec.DisplayName(), "error", err)
		result.State = StateFailed
		result.Reason = err.Error()
		d.park(rec, result.Reason)

		return result
	}

	group = cctx.GroupIDs

	var members []groupMember

	for _, gid := range group {
		grec, gok := d.idx.Get(gid)
		if !gok {
			continue
		}

		source, spanErr := d.coll.Span(grec.File, grec.StartLine, grec.EndLine)
		if spanErr == nil {
			members = append(members, groupMember{name: grec.DisplayName(), source: source})
		}
	}

	var diagnostics []string

	consecutive := 0

	for {
		state, diags := d.attempt(ctx, rec, cctx, members, diagnostics)
		if state == StateCommitted {
			result.State = StateCommitted

			return result
		}

		if ctx.Err() != nil {
			d.discardAttempt(rec)

			result.State = StateFailed
			result.Reason = ctx.Err().Error()

			return result
		}

		consecutive++
		diagnostics = diags

		d.logger.Info("unit attempt failed",
			"unit", rec.DisplayName(),
			"consecutive", consecutive,
			"threshold", d.opts.Run.ConsecutiveFailureThreshold)

		if consecutive >= d.opts.Run.ConsecutiveFailureThreshold {
			reason := "consecutive fix failures exceeded threshold"
			if len(diags) > 0 {
				reason = fmt.Sprintf("%s; last: %s", reason, diags[0])
			}

			d.park(rec, reason)
			d.discardAttempt(rec)
			d.rollback()

			result.State = StateFailed
			result.Reason = reason

			return result
		}
	}
}

// discardAttempt removes a failed attempt's writes from the crate so they
// cannot pile up under the next attempt or the next unit.
func (d *Driver) discardAttempt(rec *symbols.Record) {
	err := d.writer.Revert()
	if err != nil {
		d.logger.Warn("failed attempt revert failed",
			"unit", rec.DisplayName(), "error", err)
	}
}

// attempt is one Pending -> Generating -> Validating pass. It returns the
// resulting state plus diagnostics for the next attempt on failure.
func (d *Driver) attempt(ctx context.Context, rec *symbols.Record, cctx *collector.Context, members []groupMember, diagnostics []string) (State, []string) {
	prompt := buildPrompt(promptInput{
		ctx:         cctx,
		crateName:   d.opts.CrateName,
		notes:       d.opts.Notes,
		diagnostics: diagnostics,
		groupSource: members,
	})

	d.metrics.OracleCalls.Inc()

	answer, err := oracle.GenerateWithRetry(ctx, d.oracle, prompt, d.opts.Run.LLMRetries, d.logger)
	if err != nil {
		return StateRetrying, []string{"oracle failure: " + err.Error()}
	}

	plan, err := ParsePlan(answer)
	if err != nil {
		return StateRetrying, []string{err.Error()}
	}

	if d.opts.DryRun {
		d.logger.Info("dry run: would write unit",
			"unit", rec.DisplayName(), "module", plan.Module)
		fmt.Print(Preview("", plan.Code))

		return StateCommitted, nil
	}

	// A prior attempt of this unit may have left its code in the module
	// files; restore them before writing the new candidate.
	err = d.writer.Revert()
	if err != nil {
		return StateRetrying, []string{"revert failure: " + err.Error()}
	}

	preview, err := d.writer.Write(plan)
	if err != nil {
		return StateRetrying, []string{"write failure: " + err.Error()}
	}

	d.logger.Debug("wrote unit", "unit", rec.DisplayName(), "module", plan.Module, "diff", preview)

	start := time.Now()

	build, err := d.builder.Check(ctx)

	d.metrics.BuildDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		return StateRetrying, []string{"build invocation failure: " + err.Error()}
	}

	if !build.OK {
		d.metrics.BuildFailures.Inc()

		return StateRetrying, build.Diagnostics
	}

	d.writer.Accept()
	d.commit(rec, plan)

	return StateCommitted, nil
}

// commit records a successful unit: symbol map entry, progress, good commit.
func (d *Driver) commit(rec *symbols.Record, plan *Plan) {
	commitHash := ""

	if d.guard != nil {
		hash, err := d.guard.CommitAll(fmt.Sprintf("translate %s", rec.DisplayName()))
		if err != nil {
			d.logger.Warn("commit failed, continuing without snapshot", "unit", rec.DisplayName(), "error", err)
		} else {
			commitHash = hash
			d.runState.LastGoodCommit = hash
		}
	}

	err := d.sm.Append(symbols.MapEntry{
		Original:   rec.QualifiedName,
		Module:     plan.Module,
		RustSymbol: rustSymbolFrom(plan),
		File:       rec.File,
		StartLine:  rec.StartLine,
	})
	if err != nil {
		d.logger.Warn("symbol map append failed", "unit", rec.DisplayName(), "error", err)
	}

	d.progress.MarkConverted(rec.ID, commitHash)
	d.runState.Unpark(rec.ID)
	d.metrics.UnitsCommitted.Inc()

	d.persistProgress()
}

func (d *Driver) park(rec *symbols.Record, reason string) {
	d.runState.Park(rec.ID, rec.DisplayName(), reason)
	d.metrics.UnitsParked.Inc()
	d.persistProgress()
}

func (d *Driver) rollback() {
	if d.guard == nil || d.runState.LastGoodCommit == "" {
		return
	}

	if !d.guard.ResetTo(d.runState.LastGoodCommit) {
		d.logger.Error("rollback unavailable for the rest of the run")
		d.guard = nil
	}
}

// persistProgress writes progress, run state, and the interval checkpoint.
// Persistence failures degrade resume fidelity but never abort the run.
func (d *Driver) persistProgress() {
	err := d.progress.Save(d.opts.Root)
	if err != nil {
		d.logger.Warn("progress save failed", "error", err)
	}

	err = d.runState.Save(d.opts.Root)
	if err != nil {
		d.logger.Warn("run state save failed", "error", err)
	}

	err = d.store.Tick(driverState{ProcessedUnits: d.progress.Converted}, symbols.Now())
	if err != nil {
		d.logger.Warn("checkpoint save failed", "error", err)
	}
}

// flush forces a final checkpoint at run end regardless of interval.
func (d *Driver) flush() {
	d.progress.Current = 0
	d.persistProgress()

	err := d.store.Save(driverState{ProcessedUnits: d.progress.Converted}, symbols.Now())
	if err != nil {
		d.logger.Warn("final checkpoint save failed", "error", err)
	}
}

// rustSymbolFrom extracts the item name from the plan signature, falling back
// to the whole signature when it cannot be isolated.
func rustSymbolFrom(plan *Plan) string {
	sig := plan.RustSignature

	for {
		trimmed := sig

		for _, prefix := range []string{"pub ", "unsafe ", "async ", `extern "C" `} {
			trimmed = strings.TrimPrefix(trimmed, prefix)
		}

		if trimmed == sig {
			break
		}

		sig = trimmed
	}

	rest, ok := strings.CutPrefix(sig, "fn ")
	if !ok {
		return plan.RustSignature
	}

	if i := strings.IndexAny(rest, "(< "); i > 0 {
		return rest[:i]
	}

	return rest
}
