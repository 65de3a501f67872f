package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitecrawl/internal/config"
	sclog "github.com/nao1215/sitecrawl/internal/log"
)

// NewRootCmd creates the root command for sitecrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitecrawl",
		Short: "Polite single-site web crawler",
		Long: `sitecrawl crawls the pages of one website, starting from a seed URL.

It stays on the seed's host, obeys robots.txt, waits between requests and
stops after a page budget. For every page it records the title, the first
paragraph and the links found, and writes them to a JSON results file.
Every run is also stored in a local history database so that later runs
can be compared.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON lines")
	cmd.PersistentFlags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getBoolFlag retrieves a bool flag from the command or its parents.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// getDBDir returns the --db-dir value.
func getDBDir(cmd *cobra.Command) string {
	dir, err := cmd.Flags().GetString("db-dir")
	if err != nil || dir == "" {
		return config.XDGDataDir()
	}
	return dir
}

// newLogger creates the redacting logger selected by --verbose and
// --log-json. Logs go to stderr so that stdout carries only results.
func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose := getBoolFlag(cmd, "verbose")
	if getBoolFlag(cmd, "log-json") {
		return sclog.NewSecureJSONLogger(cmd.ErrOrStderr(), verbose)
	}
	return sclog.NewSecureLogger(cmd.ErrOrStderr(), verbose)
}
