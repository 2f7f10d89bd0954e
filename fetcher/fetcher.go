package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// ErrNetwork classifies every failure to obtain a page: unreachable host,
// timeout or a non-success status.
var ErrNetwork = errors.New("network fault")

// Error describes a failed fetch.
type Error struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() []error { return []error{ErrNetwork, e.Err} }

// Options configure the underlying collector.
type Options struct {
	UserAgent string
	Timeout   time.Duration // per request; 0 keeps colly's default
	Transport http.RoundTripper
	Log       *zap.Logger
}

// Fetcher downloads product pages. It is safe for concurrent use: each
// Fetch runs on its own clone of the configured collector, sharing the
// HTTP backend.
type Fetcher struct {
	colly *colly.Collector
	log   *zap.Logger
}

// New builds a Fetcher backed by a colly collector.
func New(opts Options) *Fetcher {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	options := []colly.CollectorOption{
		// The same product page is fetched on every run.
		colly.AllowURLRevisit(),
	}
	if opts.UserAgent != "" {
		options = append(options, colly.UserAgent(opts.UserAgent))
	}

	c := colly.NewCollector(options...)
	c.DisableCookies()
	if opts.Timeout > 0 {
		c.SetRequestTimeout(opts.Timeout)
	}
	if opts.Transport != nil {
		c.WithTransport(opts.Transport)
	}

	return &Fetcher{colly: c, log: log}
}

// Fetch returns the raw markup of url. Failures are *Error values wrapping
// ErrNetwork; nothing is retried.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{URL: url, Err: err}
	}

	var (
		body   []byte
		status int
	)
	c := f.colly.Clone()
	c.OnRequest(func(r *colly.Request) {
		f.log.Debug("visiting", zap.String("url", r.URL.String()))
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		status = r.StatusCode
	})

	if err := c.Request(http.MethodGet, url, nil, nil, nil); err != nil {
		f.log.Debug("fetch failed", zap.String("url", url), zap.Int("status", status), zap.Error(err))
		return nil, &Error{URL: url, StatusCode: status, Err: err}
	}
	f.log.Debug("fetched", zap.String("url", url), zap.Int("status", status), zap.Int("bytes", len(body)))
	return body, nil
}
