package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/oxidize/internal/config"
	"github.com/Sumatoshi-tech/oxidize/internal/replacer"
	"github.com/Sumatoshi-tech/oxidize/pkg/collector"
	"github.com/Sumatoshi-tech/oxidize/pkg/oracle"
)

// NewReplaceCommand creates the replace subcommand.
func NewReplaceCommand() *cobra.Command {
	var (
		root    string
		catalog string
	)

	cmd := &cobra.Command{
		Use:   "replace",
		Short: "Evaluate call-graph subtrees for library replacement",
		Long: `Replace walks the call graph bottom-up and asks the oracle whether each
function is equivalent to a known library routine. Accepted subtrees are
pruned from the translation order and recorded in the replacement mapping.
The pass checkpoints per evaluation and resumes where it left off.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := setupLogger(cmd)

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
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

			client, err := oracle.NewClient(oracle.Config{
				APIKey:  cfg.Oracle.APIKey,
				BaseURL: cfg.Oracle.BaseURL,
				Model:   cfg.Oracle.Model,
			}, logger)
			if err != nil {
				return err
			}

			rep, err := replacer.New(replacer.Options{
				Root:               root,
				CatalogPath:        catalog,
				DisabledLibraries:  project.DisabledLibraries,
				LLMRetries:         cfg.Run.LLMRetries,
				CheckpointInterval: cfg.Run.CheckpointInterval,
			}, idx, collector.New(root, idx, sm), client, logger)
			if err != nil {
				return err
			}

			result, err := rep.Run(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "Library replacement: %d subtrees replaced, %d units pruned\n",
				len(result.Decisions), len(result.PrunedIDs))

			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "source project root")
	cmd.Flags().StringVar(&catalog, "catalog", "", "YAML library catalog (default: built-in)")

	return cmd
}
