// Package engine executes a loaded template: it owns the runtime
// variable store for one crawl, drives the HTTP fetch/DOM-walk pipeline
// workflow by workflow, and binds the final captures into the caller's
// record type. See spec §4.D and §5.
package engine

import (
	"context"
	"fmt"
	"log"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/crawltpl/crawltpl/bind"
	"github.com/crawltpl/crawltpl/crawlerr"
	"github.com/crawltpl/crawltpl/internal/httpx"
	"github.com/crawltpl/crawltpl/script"
	"github.com/crawltpl/crawltpl/template"
)

// fetcher is the narrow transport dependency Run needs, satisfied by
// *httpx.Fetcher in production and by a fake in tests.
type fetcher interface {
	Fetch(url string) (*goquery.Document, error)
}

type runConfig struct {
	httpOpts httpx.Options
	fetcher  fetcher
	verbose  bool
}

// Option configures a Run call.
type Option func(*runConfig)

// WithHTTPOptions sets the transport options used to build the Fetcher,
// when one is not supplied directly with WithFetcher.
func WithHTTPOptions(opts httpx.Options) Option {
	return func(c *runConfig) { c.httpOpts = opts }
}

// WithFetcher injects a transport, bypassing httpx entirely. Intended for
// tests that need to control responses without a real HTTP server.
func WithFetcher(f fetcher) Option {
	return func(c *runConfig) { c.fetcher = f }
}

// WithVerbose turns on per-fetch debug logging.
func WithVerbose(v bool) Option {
	return func(c *runConfig) { c.verbose = v }
}

var entrypointPlaceholder = regexp.MustCompile(`\$\{([a-zA-Z0-9_]+)\}`)

// Run executes every workflow in tpl in order and binds the resulting
// captures into a freshly constructed T. params seeds the variable store
// alongside the template's own env block, with params winning on key
// conflict (SPEC_FULL.md open question #1).
//
// T is named via its pointer type PT so Run can construct a zero value
// without requiring T itself to implement bind.Binder on a non-pointer
// receiver, e.g. engine.Run[MovieRecord](ctx, tpl, params).
func Run[T any, PT interface {
	*T
	bind.Binder
}](ctx context.Context, tpl *template.Template, params map[string][]string, opts ...Option) (T, error) {
	var zero T

	cfg := runConfig{httpOpts: httpx.Options{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.fetcher == nil {
		cfg.httpOpts.Verbose = cfg.verbose
		cfg.fetcher = httpx.New(cfg.httpOpts)
	}

	store := NewStore(tpl.Parameters)
	for k, v := range params {
		store.Set(k, v)
	}

	entrypointURL, err := resolveEntrypoint(tpl.EntrypointPattern, store)
	if err != nil {
		return zero, err
	}

	for i, wf := range tpl.Workflows {
		var urls []string
		if wf.URLKey == "" {
			urls = []string{entrypointURL}
		} else {
			vals, ok := store.Resolve(wf.URLKey)
			if !ok {
				continue
			}
			urls = vals
		}

		for _, url := range urls {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			if cfg.verbose {
				log.Printf("engine: workflow %d fetching %s", i, url)
			}
			doc, err := cfg.fetcher.Fetch(url)
			if err != nil {
				return zero, err
			}
			if err := ctx.Err(); err != nil {
				return zero, err
			}

			roots := []*goquery.Selection{doc.Selection}
			for _, node := range wf.Nodes {
				if err := walk(node, roots, store); err != nil {
					return zero, err
				}
			}
		}
	}

	rec := PT(&zero)
	if err := rec.BindCrawlVars(store.Snapshot()); err != nil {
		return zero, err
	}
	return zero, nil
}

// walk descends the node tree rooted at node, capturing value-mode nodes
// into store and recursing into element-mode children against the
// elements their own script matched.
func walk(node *template.WorkflowNode, roots []*goquery.Selection, store *Store) error {
	switch node.Script.Mode() {
	case script.ModeElement:
		elems, err := node.Script.EvaluateElements(roots, store)
		if err != nil {
			return annotate(err, node.Name)
		}
		if len(elems) == 0 {
			return nil
		}
		for _, child := range node.Children {
			if err := walk(child, elems, store); err != nil {
				return err
			}
		}
		return nil

	case script.ModeValue:
		vals, err := node.Script.EvaluateValues(roots, store)
		if err != nil {
			return annotate(err, node.Name)
		}
		store.Capture(node.Name, vals)
		return nil

	default:
		return crawlerr.New(crawlerr.KindScriptParse, "node '"+node.Name+"' has an unsupported script mode for execution")
	}
}

func annotate(err error, name string) error {
	if ce, ok := err.(*crawlerr.Error); ok && ce.Node == "" {
		return ce.WithNode(name)
	}
	return err
}

// resolveEntrypoint substitutes every ${name} placeholder in pattern with
// the single value store holds for name, per spec §4.D step 1. Each
// referenced name must resolve to exactly one captured value.
func resolveEntrypoint(pattern string, store *Store) (string, error) {
	var outerErr error
	result := entrypointPlaceholder.ReplaceAllStringFunc(pattern, func(match string) string {
		if outerErr != nil {
			return ""
		}
		name := entrypointPlaceholder.FindStringSubmatch(match)[1]
		values, ok := store.Resolve(name)
		if !ok {
			outerErr = crawlerr.New(crawlerr.KindDynNotInitialised, "entrypoint parameter was never supplied").WithNode(name)
			return ""
		}
		if len(values) == 0 {
			outerErr = crawlerr.New(crawlerr.KindDynNoValidData, "entrypoint parameter has no value").WithNode(name)
			return ""
		}
		if len(values) > 1 {
			outerErr = crawlerr.New(crawlerr.KindMultipleEntrypointParameter,
				fmt.Sprintf("entrypoint parameter has %d values, exactly one is required", len(values))).WithNode(name)
			return ""
		}
		return values[0]
	})
	if outerErr != nil {
		return "", outerErr
	}
	return result, nil
}
