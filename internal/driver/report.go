package driver

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

// WriteReport renders the run-end report: committed, parked, and pruned units
// with reasons.
func WriteReport(w io.Writer, summary *Summary, elapsed time.Duration) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(w, "Run finished in %s: %s committed, %s parked, %s skipped, %s pruned\n",
		humanize.RelTime(time.Now().Add(-elapsed), time.Now(), "", ""),
		green(len(summary.Committed)),
		red(len(summary.Parked)),
		yellow(len(summary.Skipped)),
		yellow(len(summary.Pruned)))

	if len(summary.Committed) > 0 {
		tbl := table.NewWriter()
		tbl.SetOutputMirror(w)
		tbl.SetStyle(table.StyleLight)
		tbl.SetTitle("Committed")
		tbl.AppendHeader(table.Row{"ID", "Unit"})

		for _, unit := range summary.Committed {
			tbl.AppendRow(table.Row{unit.ID, unit.Name})
		}

		tbl.AppendFooter(table.Row{"", fmt.Sprintf("Total: %d units", len(summary.Committed))})
		tbl.Render()
	}

	if len(summary.Parked) > 0 {
		tbl := table.NewWriter()
		tbl.SetOutputMirror(w)
		tbl.SetStyle(table.StyleLight)
		tbl.SetTitle("Parked")
		tbl.AppendHeader(table.Row{"ID", "Unit", "Reason"})

		for _, unit := range summary.Parked {
			tbl.AppendRow(table.Row{unit.ID, unit.Name, unit.Reason})
		}

		tbl.Render()
	}

	if len(summary.Pruned) > 0 {
		fmt.Fprintf(w, "Pruned by library replacement: %v\n", summary.Pruned)
	}
}
