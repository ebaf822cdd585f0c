package commands

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/oxidize/pkg/collector"
	"github.com/Sumatoshi-tech/oxidize/pkg/symbols"
)

// NewCollectCommand creates the collect subcommand.
func NewCollectCommand() *cobra.Command {
	var (
		root   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Show the scanned type declarations",
		Long: `Collect lists the struct, union, enum, and typedef declarations from the
scan, grouped by header. With --output the declarations' source text is
written to a file usable as shared prompt context.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogger(cmd)

			idx, err := loadIndex(root)
			if err != nil {
				return err
			}

			sm, err := loadSymbolMap(root)
			if err != nil {
				return err
			}

			var types []*symbols.Record

			for _, id := range idx.IDs() {
				rec, _ := idx.Get(id)
				if !rec.IsFunction() {
					types = append(types, rec)
				}
			}

			sort.Slice(types, func(a, b int) bool {
				if types[a].File != types[b].File {
					return types[a].File < types[b].File
				}

				return types[a].StartLine < types[b].StartLine
			})

			tbl := table.NewWriter()
			tbl.SetOutputMirror(os.Stdout)
			tbl.SetStyle(table.StyleLight)
			tbl.AppendHeader(table.Row{"Kind", "Name", "File", "Line"})

			for _, rec := range types {
				tbl.AppendRow(table.Row{rec.Kind, rec.DisplayName(), rec.File, rec.StartLine})
			}

			tbl.AppendFooter(table.Row{"", fmt.Sprintf("Total: %d types", len(types)), "", ""})
			tbl.Render()

			if output == "" {
				return nil
			}

			coll := collector.New(root, idx, sm)

			var b strings.Builder

			for _, rec := range types {
				source, spanErr := coll.Span(rec.File, rec.StartLine, rec.EndLine)
				if spanErr != nil {
					continue
				}

				fmt.Fprintf(&b, "// %s %s (%s:%d)\n%s\n\n", rec.Kind, rec.DisplayName(), rec.File, rec.StartLine, source)
			}

			err = os.WriteFile(output, []byte(b.String()), 0o644)
			if err != nil {
				return fmt.Errorf("write type context: %w", err)
			}

			fmt.Fprintf(os.Stdout, "Wrote type context to %s\n", output)

			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "source project root")
	cmd.Flags().StringVar(&output, "output", "", "write declaration sources to this file")

	return cmd
}
