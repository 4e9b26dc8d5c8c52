package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashureev/intake-bot/internal/flow"
)

func newGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the conversation graph in Graphviz format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := flow.SurveyGraph()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), g.Dot())
			return err
		},
	}
}
