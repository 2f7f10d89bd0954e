package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"pricewatch/logger"
)

// PageFetcher is the contract of the page source: URL in, markup out.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FieldExtractor pulls the product name and price out of page markup.
type FieldExtractor interface {
	Extract(markup []byte) (name string, price float64, err error)
}

// Stage names the step of a unit of work that failed.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
)

// Error wraps the upstream fault of one product with the stage it came from.
type Error struct {
	URL   string
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Collector fans fetch+extract out over a list of product URLs.
type Collector struct {
	fetcher   PageFetcher
	extractor FieldExtractor
	workers   int // 0 means GOMAXPROCS
	log       *zap.Logger
}

// New returns a Collector running at most workers units at once.
func New(f PageFetcher, x FieldExtractor, workers int, log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{fetcher: f, extractor: x, workers: workers, log: log}
}

// CollectAll fetches and extracts every URL and returns the results in
// input order. A failing product does not stop the others - its error is
// logged and kept in its Result. The returned error is only set when ctx
// was cancelled during the run.
func (c *Collector) CollectAll(ctx context.Context, urls []string) (*Snapshot, error) {
	log := logger.FromContext(ctx, c.log)
	snap := NewSnapshot(time.Now())

	mapper := iter.Mapper[string, Result]{MaxGoroutines: c.workers}
	snap.Results = mapper.Map(urls, func(url *string) Result {
		return c.collect(ctx, *url)
	})

	for _, r := range snap.Failed() {
		log.Warn("product collection failed", zap.String("url", r.URL), zap.Error(r.Err))
	}
	log.Info("collection finished",
		zap.Int("products", len(urls)),
		zap.Int("failed", len(snap.Failed())),
		zap.Duration("took", time.Since(snap.CollectedAt)),
	)
	return snap, ctx.Err()
}

func (c *Collector) collect(ctx context.Context, url string) Result {
	markup, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return Result{URL: url, Err: &Error{URL: url, Stage: StageFetch, Err: err}}
	}
	name, price, err := c.extractor.Extract(markup)
	if err != nil {
		return Result{URL: url, Err: &Error{URL: url, Stage: StageExtract, Err: err}}
	}
	return Result{URL: url, Name: name, Price: price}
}
