package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/crawltpl/crawltpl/engine"
	"github.com/crawltpl/crawltpl/internal/httpx"
	"github.com/crawltpl/crawltpl/template"
	"github.com/crawltpl/crawltpl/utils/fileutil"
)

var (
	runTemplatePath string
	runParams       []string
	runOut          string
	runTimeout      time.Duration
	runAllowDomains []string
	runCacheDir     string
	runIgnoreRobots bool
	runUserAgent    string
)

// dynamicRecord is the record type used by the CLI, which has no
// compile-time knowledge of a template's capture names: it binds the
// engine's raw variable-store snapshot straight through to JSON. Programs
// embedding the engine package directly should instead bind into their
// own bind.Binder struct via engine.Run, for compile-time field safety.
type dynamicRecord map[string][]string

func (d *dynamicRecord) BindCrawlVars(vars map[string][]string) error {
	*d = vars
	return nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a crawl template and print the captured record as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runTemplatePath == "" {
			return fmt.Errorf("--template is required")
		}

		templatePath, err := fileutil.ExpandPath(runTemplatePath)
		if err != nil {
			return fmt.Errorf("resolving --template path: %w", err)
		}
		yamlText, err := os.ReadFile(templatePath)
		if err != nil {
			return fmt.Errorf("reading template %s: %w", templatePath, err)
		}

		tpl, err := template.Load(yamlText)
		if err != nil {
			return fmt.Errorf("loading template: %w", err)
		}
		if issues := template.Lint(tpl); len(issues) > 0 && verbose {
			fmt.Fprintln(os.Stderr, "template warnings:")
			fmt.Fprintln(os.Stderr, template.FormatIssues(issues))
		}

		params, err := parseParams(runParams)
		if err != nil {
			return err
		}

		cacheDir := runCacheDir
		if cacheDir != "" {
			cacheDir, err = fileutil.ExpandPath(cacheDir)
			if err != nil {
				return fmt.Errorf("resolving --cache-dir path: %w", err)
			}
		}

		ctx := context.Background()
		if runTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, runTimeout)
			defer cancel()
		}

		httpOpts := httpx.Options{
			AllowedDomains:  runAllowDomains,
			CacheDir:        cacheDir,
			IgnoreRobotsTxt: runIgnoreRobots,
			UserAgent:       runUserAgent,
			Verbose:         verbose,
		}

		record, err := engine.Run[dynamicRecord](ctx, tpl, params, engine.WithHTTPOptions(httpOpts), engine.WithVerbose(verbose))
		if err != nil {
			return fmt.Errorf("crawl failed: %w", err)
		}

		encoded, err := encodeRecord(record)
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}

		if runOut == "" || runOut == "-" {
			fmt.Println(string(encoded))
			return nil
		}
		outPath, err := fileutil.ExpandPath(runOut)
		if err != nil {
			return fmt.Errorf("resolving --out path: %w", err)
		}
		return os.WriteFile(outPath, encoded, 0644)
	},
}

func parseParams(raw []string) (map[string][]string, error) {
	params := map[string][]string{}
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --param %q, expected name=value", kv)
		}
		params[name] = append(params[name], value)
	}
	return params, nil
}

// encodeRecord pretty-prints when stdout is a terminal and compacts
// otherwise, so piping crawltpl's output into another tool gets dense
// JSON while an interactive run stays readable.
func encodeRecord(record dynamicRecord) ([]byte, error) {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		return json.MarshalIndent(record, "", "  ")
	}
	return json.Marshal(record)
}

func init() {
	runCmd.Flags().StringVar(&runTemplatePath, "template", "", "path to the YAML crawl template")
	runCmd.Flags().StringArrayVar(&runParams, "param", nil, "caller parameter as name=value (repeatable)")
	runCmd.Flags().StringVar(&runOut, "out", "-", "output file path, or - for stdout")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "overall crawl timeout (0 = no timeout)")
	runCmd.Flags().StringArrayVar(&runAllowDomains, "allow-domain", nil, "restrict fetches to this domain (repeatable, default: unrestricted)")
	runCmd.Flags().StringVar(&runCacheDir, "cache-dir", "", "cache fetched responses under this directory")
	runCmd.Flags().BoolVar(&runIgnoreRobots, "ignore-robots", false, "do not enforce robots.txt")
	runCmd.Flags().StringVar(&runUserAgent, "user-agent", "", "override the HTTP User-Agent header")
}
