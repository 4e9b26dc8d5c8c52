package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/intake-bot/internal/store"
)

type statsOutput struct {
	Submissions int        `json:"submissions"`
	Submitters  int        `json:"submitters"`
	Blocked     int        `json:"blocked"`
	Latest      *time.Time `json:"latest,omitempty"`
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show submission and block list totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := a.logger(cmd)

			records, err := store.OpenRecords(a.dataFile, logger)
			if err != nil {
				return err
			}
			blocks, err := store.OpenBlocklist(ctx, a.blockedFile, logger)
			if err != nil {
				return err
			}

			var s statsOutput
			if s.Submissions, err = records.Count(ctx); err != nil {
				return fmt.Errorf("read records: %w", err)
			}
			users, err := records.UserIDs(ctx)
			if err != nil {
				return fmt.Errorf("read records: %w", err)
			}
			s.Submitters = len(users)
			s.Blocked = blocks.Len()
			if latest, ok, err := records.Latest(ctx); err != nil {
				return fmt.Errorf("read records: %w", err)
			} else if ok {
				s.Latest = &latest
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			}
			fmt.Fprintf(out, "Submissions: %d\n", s.Submissions)
			fmt.Fprintf(out, "Submitters:  %d\n", s.Submitters)
			fmt.Fprintf(out, "Blocked:     %d\n", s.Blocked)
			if s.Latest != nil {
				fmt.Fprintf(out, "Latest:      %s\n", s.Latest.Local().Format("02.01.2006 15:04"))
			}
			return nil
		},
	}
}
