package main

import (
	"bytes"
	"fmt"
	"time"

	"github.com/moby/sys/atomicwriter"
	"github.com/spf13/cobra"

	"github.com/ashureev/intake-bot/internal/store"
)

func newExportCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all submissions as CSV",
		Long: `Export all submissions as CSV.

Without --output a timestamped file is written to the current directory.
Use "-o -" to write to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := store.OpenRecords(a.dataFile, a.logger(cmd))
			if err != nil {
				return err
			}
			subs, err := records.All(cmd.Context())
			if err != nil {
				return fmt.Errorf("read records: %w", err)
			}

			if output == "-" {
				return store.WriteCSV(cmd.OutOrStdout(), subs)
			}
			if output == "" {
				output = store.ExportFileName(time.Now())
			}
			var buf bytes.Buffer
			if err := store.WriteCSV(&buf, subs); err != nil {
				return err
			}
			if err := atomicwriter.WriteFile(output, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d submissions to %s\n", len(subs), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (- for stdout)")
	return cmd
}
