package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/oxidize/internal/config"
	"github.com/Sumatoshi-tech/oxidize/internal/driver"
	"github.com/Sumatoshi-tech/oxidize/internal/replacer"
	"github.com/Sumatoshi-tech/oxidize/pkg/gitguard"
	"github.com/Sumatoshi-tech/oxidize/pkg/metadir"
	"github.com/Sumatoshi-tech/oxidize/pkg/oracle"
	"github.com/Sumatoshi-tech/oxidize/pkg/planner"
)

// NewRunCommand creates the run subcommand.
func NewRunCommand() *cobra.Command {
	var (
		root          string
		crateDir      string
		resume        bool
		resetProgress bool
		dryRun        bool
		threshold     int
		fnRetries     int
		llmRetries    int
		metricsAddr   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Translate units in planned order",
		Long: `Run drives the translation: for each unit in order it collects context,
asks the oracle for Rust code, writes it into the target crate, and validates
the build. Failing units are retried with diagnostics fed back, then parked
and rolled back once the failure threshold is hit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := setupLogger(cmd)

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			applyOverride(&cfg.Run.ConsecutiveFailureThreshold, threshold)
			applyOverride(&cfg.Run.FunctionRetries, fnRetries)
			applyOverride(&cfg.Run.LLMRetries, llmRetries)

			if metricsAddr != "" {
				cfg.Run.MetricsAddr = metricsAddr
			}

			if crateDir == "" {
				crateDir = cfg.Run.CrateDir
			}

			if crateDir == "" {
				crateDir = metadir.DefaultCrateDir(root)
			}

			if resetProgress {
				err = clearProgress(root)
				if err != nil {
					return err
				}

				resume = false
			}

			idx, err := loadIndex(root)
			if err != nil {
				return err
			}

			sm, err := loadSymbolMap(root)
			if err != nil {
				return err
			}

			project, err := config.LoadProject(root)
			if err != nil {
				return err
			}

			replacements, err := replacer.LoadResult(root)
			if err != nil {
				return err
			}

			replacements.Apply(idx)

			pruned, err := loadPruned(root, idx, project, replacements)
			if err != nil {
				return err
			}

			steps, err := planner.Ensure(
				metadir.Path(root, metadir.OrderFile),
				idx,
				pruned,
				false,
			)
			if err != nil {
				return err
			}

			client, err := oracle.NewClient(oracle.Config{
				APIKey:  cfg.Oracle.APIKey,
				BaseURL: cfg.Oracle.BaseURL,
				Model:   cfg.Oracle.Model,
			}, logger)
			if err != nil {
				return err
			}

			guard, err := gitguard.Open(crateDir, logger)
			if err != nil {
				if !errors.Is(err, gitguard.ErrNotARepo) {
					return err
				}

				guard = nil
			} else {
				defer guard.Free()
			}

			d, err := driver.New(driver.Options{
				Root:      root,
				CrateDir:  crateDir,
				CrateName: crateName(crateDir),
				Run:       cfg.Run,
				Notes:     project.AdditionalNotes,
				Resume:    resume,
				DryRun:    dryRun,
			}, idx, sm, client, guard, logger)
			if err != nil {
				return err
			}

			start := time.Now()

			summary, err := d.Run(cmd.Context(), steps, replacements.PrunedIDs)
			if summary != nil {
				driver.WriteReport(os.Stdout, summary, time.Since(start))
			}

			return err
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "source project root")
	cmd.Flags().StringVar(&crateDir, "crate-dir", "", "target crate directory (default: sibling <root>_rs)")
	cmd.Flags().BoolVar(&resume, "resume", true, "resume from prior progress")
	cmd.Flags().BoolVar(&resetProgress, "reset-progress", false, "discard prior progress before running")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "generate but write nothing")
	cmd.Flags().IntVar(&threshold, "failure-threshold", 0, "override consecutive failure threshold")
	cmd.Flags().IntVar(&fnRetries, "function-retries", 0, "override per-unit restart budget")
	cmd.Flags().IntVar(&llmRetries, "llm-retries", 0, "override oracle retries per call")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose run metrics on this address")

	return cmd
}

func applyOverride(target *int, value int) {
	if value > 0 {
		*target = value
	}
}

func crateName(crateDir string) string {
	return filepath.Base(filepath.Clean(crateDir))
}

func clearProgress(root string) error {
	for _, name := range []string{
		metadir.ProgressFile,
		metadir.RunStateFile,
		metadir.DriverCheckpointFile,
	} {
		err := os.Remove(metadir.Path(root, name))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reset progress: %w", err)
		}
	}

	return nil
}
