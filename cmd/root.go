// Package cmd is the crawltpl command-line interface, built with cobra.
package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version string

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "crawltpl",
	Short: "Run declarative web-scraping templates",
	Long: `crawltpl runs a YAML crawl template against a live site: it resolves the
entrypoint URL, walks the template's selector/accessor/transform pipelines
over the fetched DOM, and prints the captured record as JSON.

Getting started:
  crawltpl run --template listing.yaml --param crawl_name=horror

For documentation on the template format, see SPEC_FULL.md in this repo.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.SetFlags(0)
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

// getVersion returns the version string, preferring the build-time
// injected value and falling back to a VERSION file for local runs.
func getVersion() string {
	if version != "" {
		return version
	}
	_, filename, _, ok := runtime.Caller(0)
	if ok {
		sourceDir := filepath.Dir(filename)
		projectRoot := filepath.Dir(sourceDir)
		versionPath := filepath.Join(projectRoot, "VERSION")
		content, err := os.ReadFile(versionPath)
		if err == nil {
			return "v" + strings.TrimSpace(string(content)) + "-dev"
		}
	}
	return "unknown (build with: go build -ldflags \"-X 'github.com/crawltpl/crawltpl/cmd.version=vX.Y.Z'\")"
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		log.Printf("crawltpl version: %s\n", getVersion())
	},
}

// Execute runs the root command, exiting non-zero on failure.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
