// Package main provides intakectl, an operator tool that works on the intake
// bot's data files directly: statistics, CSV export and the block list.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// app holds global flags shared by all subcommands.
type app struct {
	dataFile    string
	blockedFile string
	jsonOutput  bool
	verbose     bool
}

func (a *app) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "intakectl",
		Short: "Inspect and administer intake bot data",
		Long: `intakectl reads and edits the intake bot's record log and block list.

It works on the same files the server uses and is safe to run while the
server is up: every access takes the file lock.

Examples:
  intakectl stats                     # Show totals
  intakectl export -o report.csv      # Export all submissions as CSV
  intakectl block 123456789 --by ops  # Block a user
  intakectl blocked --json            # List blocked users as JSON
  intakectl graph | dot -Tsvg         # Render the conversation graph`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	root.PersistentFlags().StringVar(&a.dataFile, "data", envOr("DATA_FILE", "./data/data.json"), "Path to the record log")
	root.PersistentFlags().StringVar(&a.blockedFile, "blocked", envOr("BLOCKED_FILE", "./data/blocked.json"), "Path to the block list")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Output in JSON format")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		newStatsCmd(a),
		newExportCmd(a),
		newBlockCmd(a),
		newUnblockCmd(a),
		newBlockedCmd(a),
		newGraphCmd(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}
