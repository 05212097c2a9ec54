// Package httpx is the transport layer of a crawl: it owns the single
// colly.Collector used for every fetch in a run and translates its
// callback-based API into the plain blocking Fetch call the engine needs
// at its two suspension points (spec §5's "response head" and "body
// read").
package httpx

import (
	"bytes"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/crawltpl/crawltpl/crawlerr"
)

// RetryPolicy controls how a transient failure is retried before Fetch
// gives up and returns an HTTPError. Its shape mirrors the exponential
// backoff the teacher codebase's retry package uses for rate-limited API
// calls, applied here to transient transport failures instead.
type RetryPolicy struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Factor      float64
}

// DefaultRetryPolicy retries a handful of times with capped exponential
// backoff, enough to ride out a flaky connection without turning a single
// dead host into a multi-minute hang.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:  3,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     8 * time.Second,
	Factor:      2.0,
}

// Options configures the Fetcher's Collector.
type Options struct {
	// AllowedDomains restricts fetches to the given hosts. Empty means
	// unrestricted, appropriate for templates whose request: true nodes
	// may hop across domains.
	AllowedDomains []string

	// CacheDir, when non-empty, turns on colly's on-disk response cache,
	// so re-running a template during development does not re-fetch
	// unchanged pages.
	CacheDir string

	// IgnoreRobotsTxt is forwarded to colly.IgnoreRobotsTxt. colly's
	// collector does not check robots.txt by default, and New does not
	// turn the check on, so robots.txt is not enforced whether or not
	// this is set.
	IgnoreRobotsTxt bool

	// UserAgent overrides colly's default identification string.
	UserAgent string

	Retry RetryPolicy

	// Verbose turns on per-request debug logging.
	Verbose bool
}

// Fetcher performs one crawl's worth of HTTP fetches through a single
// colly.Collector, as spec §5's single-threaded-cooperative model
// requires: there is no concurrency within a run, so one collector
// suffices and needs no locking.
type Fetcher struct {
	c    *colly.Collector
	opts Options
}

// New builds a Fetcher. A Fetcher is single-use per crawl run, matching
// the lifetime of the engine.Store it runs alongside.
func New(opts Options) *Fetcher {
	collyOpts := []colly.CollectorOption{colly.Async(false)}
	if len(opts.AllowedDomains) > 0 {
		collyOpts = append(collyOpts, colly.AllowedDomains(opts.AllowedDomains...))
	}
	if opts.CacheDir != "" {
		collyOpts = append(collyOpts, colly.CacheDir(opts.CacheDir))
	}
	if opts.IgnoreRobotsTxt {
		collyOpts = append(collyOpts, colly.IgnoreRobotsTxt())
	}
	if opts.UserAgent != "" {
		collyOpts = append(collyOpts, colly.UserAgent(opts.UserAgent))
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy
	}

	return &Fetcher{c: colly.NewCollector(collyOpts...), opts: opts}
}

// Fetch retrieves url and parses the response body as HTML, retrying
// transient failures (transport errors and 5xx responses) per the
// configured RetryPolicy. A client (4xx) error is not retried: it surfaces
// immediately as an HTTPError, since retrying a genuine 404 only wastes
// the backoff budget.
func (f *Fetcher) Fetch(url string) (*goquery.Document, error) {
	var body []byte
	var statusCode int
	var fetchErr error

	wait := f.opts.Retry.InitialWait
	for attempt := 0; ; attempt++ {
		body, statusCode, fetchErr = f.fetchOnce(url)
		if fetchErr == nil {
			break
		}
		if !f.retryable(statusCode, fetchErr) || attempt >= f.opts.Retry.MaxRetries {
			return nil, crawlerr.Wrap(crawlerr.KindHTTPError, fetchErr, fmt.Sprintf("fetching %s", url))
		}
		if f.opts.Verbose {
			log.Printf("httpx: retrying %s after error (attempt %d/%d): %v", url, attempt+1, f.opts.Retry.MaxRetries, fetchErr)
		}
		time.Sleep(wait)
		wait = time.Duration(math.Min(float64(wait)*f.opts.Retry.Factor, float64(f.opts.Retry.MaxWait)))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, crawlerr.Wrap(crawlerr.KindHTTPError, err, "parsing HTML response from "+url)
	}
	return doc, nil
}

func (f *Fetcher) fetchOnce(url string) (body []byte, status int, err error) {
	col := f.c.Clone()

	col.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
		status = r.StatusCode
	})
	col.OnError(func(r *colly.Response, visitErr error) {
		err = visitErr
		if r != nil {
			status = r.StatusCode
		}
	})

	if f.opts.Verbose {
		log.Printf("httpx: fetching %s", url)
	}

	if visitErr := col.Visit(url); visitErr != nil && err == nil {
		err = visitErr
	}
	col.Wait()

	return body, status, err
}

// retryable reports whether a failed fetch is worth retrying: network
// errors and server-side (5xx) responses are, client-side (4xx) responses
// are not.
func (f *Fetcher) retryable(status int, err error) bool {
	if status == 0 {
		return err != nil
	}
	return status >= http.StatusInternalServerError
}
