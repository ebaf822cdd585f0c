package commands

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/oxidize/pkg/scanner"
)

// NewScanCommand creates the scan subcommand.
func NewScanCommand() *cobra.Command {
	var (
		root     string
		include  []string
		exclude  []string
		maxFiles int
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan C/C++ sources into the symbol graph",
		Long: `Scan walks the source tree, parses every recognized C/C++ file, and
writes the symbol records and scan summary under the project's metadata
directory. A fresh scan fully replaces prior records.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := setupLogger(cmd)

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if len(include) == 0 {
				include = cfg.Scan.Include
			}

			if len(exclude) == 0 {
				exclude = cfg.Scan.Exclude
			}

			if maxFiles == 0 {
				maxFiles = cfg.Scan.MaxFiles
			}

			filter := scanner.Filter{Include: include, Exclude: exclude, MaxFiles: maxFiles}

			records, meta, err := scanner.New(root, filter, logger).Scan(cmd.Context())
			if err != nil {
				return err
			}

			err = scanner.WriteScan(root, records, meta)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "Scanned %s across %d files (%d skipped): %s functions, %s types\n",
				root, meta.FilesScanned, meta.FilesSkipped,
				humanize.Comma(int64(meta.Functions)), humanize.Comma(int64(meta.Types)))

			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "source project root")
	cmd.Flags().StringSliceVar(&include, "include", nil, "glob patterns of files to include")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "glob patterns of files to exclude")
	cmd.Flags().IntVar(&maxFiles, "max-files", 0, "cap on scanned files (0 = no cap)")

	return cmd
}
