package commands

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/oxidize/internal/config"
	"github.com/Sumatoshi-tech/oxidize/internal/replacer"
	"github.com/Sumatoshi-tech/oxidize/pkg/metadir"
	"github.com/Sumatoshi-tech/oxidize/pkg/planner"
)

// NewPlanCommand creates the plan subcommand.
func NewPlanCommand() *cobra.Command {
	var (
		root  string
		force bool
		show  bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute the dependency-respecting translation order",
		Long: `Plan builds the translation order from the scanned call graph: callees
before callers, cycles collapsed into shared steps. Units pruned by a prior
library-replacement pass are excluded. The order is persisted and reused by
later runs unless --force recomputes it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogger(cmd)

			idx, err := loadIndex(root)
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

			pruned, err := loadPruned(root, idx, project, replacements)
			if err != nil {
				return err
			}

			steps, err := planner.Ensure(
				metadir.Path(root, metadir.OrderFile),
				idx,
				pruned,
				force,
			)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "Translation order: %d steps, %d units\n",
				len(steps), len(planner.Flatten(steps)))

			if show {
				tbl := table.NewWriter()
				tbl.SetOutputMirror(os.Stdout)
				tbl.SetStyle(table.StyleLight)
				tbl.AppendHeader(table.Row{"Step", "Units", "Cycle"})

				for _, step := range steps {
					names := make([]string, 0, len(step.IDs))

					for _, id := range step.IDs {
						if rec, ok := idx.Get(id); ok {
							names = append(names, rec.DisplayName())
						}
					}

					tbl.AppendRow(table.Row{step.Step, names, step.Group})
				}

				tbl.Render()
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "source project root")
	cmd.Flags().BoolVar(&force, "force", false, "recompute even when a valid order exists")
	cmd.Flags().BoolVar(&show, "show", false, "print the full order")

	return cmd
}
