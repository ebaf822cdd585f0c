package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/oxidize/internal/driver"
	"github.com/Sumatoshi-tech/oxidize/pkg/metadir"
	"github.com/Sumatoshi-tech/oxidize/pkg/persist"
	"github.com/Sumatoshi-tech/oxidize/pkg/scanner"
)

// NewStatusCommand creates the status subcommand.
func NewStatusCommand() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show scan and translation progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogger(cmd)

			var meta scanner.Meta

			err := persist.LoadJSON(metadir.Path(root, metadir.MetaFile), &meta)
			if err != nil {
				if errors.Is(err, persist.ErrNotFound) {
					fmt.Fprintln(os.Stdout, "No scan found. Run `oxidize scan` first.")

					return nil
				}

				return err
			}

			progress, err := driver.LoadProgress(root)
			if err != nil {
				return err
			}

			runState, err := driver.LoadRunState(root)
			if err != nil {
				return err
			}

			sm, err := loadSymbolMap(root)
			if err != nil {
				return err
			}

			green := color.New(color.FgGreen).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()

			fmt.Fprintf(os.Stdout, "Scan of %s at %s: %d functions, %d types\n",
				meta.SourceRoot, meta.GeneratedAt, meta.Functions, meta.Types)
			fmt.Fprintf(os.Stdout, "Translated: %s of %d functions, %s parked, %d symbol map entries\n",
				green(len(progress.Converted)), meta.Functions, red(len(runState.Parked)), sm.Len())

			if runState.LastGoodCommit != "" {
				fmt.Fprintf(os.Stdout, "Last good commit: %s\n", runState.LastGoodCommit)
			}

			if len(runState.Parked) > 0 {
				tbl := table.NewWriter()
				tbl.SetOutputMirror(os.Stdout)
				tbl.SetStyle(table.StyleLight)
				tbl.SetTitle("Parked units")
				tbl.AppendHeader(table.Row{"ID", "Unit", "Attempts", "Reason"})

				for _, unit := range runState.Parked {
					tbl.AppendRow(table.Row{unit.ID, unit.Name, unit.Attempts, unit.Reason})
				}

				tbl.Render()
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "source project root")

	return cmd
}
