package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pricewatch/collector"
	"pricewatch/logger"
	"pricewatch/metrics"
	"pricewatch/notifier"
	"pricewatch/storage"
)

// Batcher collects name and price for a list of product URLs.
type Batcher interface {
	CollectAll(ctx context.Context, urls []string) (*collector.Snapshot, error)
}

// Mailer delivers an alert email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Recorder receives run statistics. *metrics.Collector implements it.
type Recorder interface {
	RecordRun(took time.Duration)
	RecordObservation()
	RecordNewMinimum()
	RecordFailure(kind string)
}

// Options select what a run tracks and who hears about price drops.
type Options struct {
	URLs      []string
	Recipient string // empty disables alerts
}

// Tracker ties a collection run to the price store: every successful
// result is checked against the recorded minimum, persisted, and alerted
// on when it is a new minimum. It is the only writer of its store.
type Tracker struct {
	store   storage.Store
	batch   Batcher
	mailer  Mailer
	metrics Recorder
	opts    Options
	log     *zap.Logger
}

// New returns a Tracker. mailer and rec may be nil.
func New(store storage.Store, batch Batcher, mailer Mailer, rec Recorder, opts Options, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Tracker{store: store, batch: batch, mailer: mailer, metrics: rec, opts: opts, log: log}
}

// RunOnce performs one collection run. Per-product failures are logged and
// listed in the report; they never abort the other products. The returned
// error is only set when the collection itself was interrupted, in which
// case whatever was collected is still persisted.
func (t *Tracker) RunOnce(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString()}
	log := logger.WithRun(t.log, report.RunID)

	snap, collectErr := t.batch.CollectAll(logger.WithContext(ctx, log), t.opts.URLs)
	if snap == nil {
		return report, collectErr
	}
	report.CollectedAt = snap.CollectedAt

	// Results already in hand are persisted even if ctx is done by now.
	storeCtx := context.WithoutCancel(ctx)
	owners := make(map[string]string) // folded table name -> first product name
	for _, r := range snap.Results {
		if !r.OK() {
			t.fail(report, r.URL, "", r.Err)
			continue
		}
		t.record(storeCtx, log, report, r, owners)
	}

	t.metrics.RecordRun(time.Since(start))
	log.Info("run finished",
		zap.Int("persisted", len(report.Persisted)),
		zap.Int("new_minimums", len(report.NewMinimums)),
		zap.Int("failures", len(report.Failures)),
		zap.Duration("took", time.Since(start)),
	)
	return report, collectErr
}

func (t *Tracker) record(ctx context.Context, log *zap.Logger, report *Report, r collector.Result, owners map[string]string) {
	table := storage.SanitizeTableName(r.Name)
	plog := logger.WithProduct(log, r.URL).With(zap.String("product", r.Name))

	// SQLite folds ASCII case in table names, so distinct products can land
	// in one table after sanitizing.
	key := strings.ToLower(table)
	if owner, seen := owners[key]; !seen || table == "" {
		owners[key] = r.Name
	} else if owner != r.Name {
		plog.Warn("product shares a table with another product",
			zap.String("table", table), zap.String("other_product", owner))
	}

	// Checked before inserting so the new price is compared against history only.
	check, err := t.store.IsNewMinimum(ctx, table, r.Price)
	if err != nil {
		plog.Error("minimum check failed", zap.Error(err))
		t.fail(report, r.URL, table, err)
		return
	}
	obs, err := t.store.Insert(ctx, table, r.Price)
	if err != nil {
		plog.Error("insert failed", zap.Error(err))
		t.fail(report, r.URL, table, err)
		return
	}
	t.metrics.RecordObservation()
	report.Persisted = append(report.Persisted, Persisted{URL: r.URL, Table: table, Observation: obs})
	plog.Debug("price recorded", zap.Float64("price", r.Price), zap.Stringer("outcome", check.Outcome))

	if !check.IsNew() {
		return
	}
	alert := Alert{Product: r.Name, URL: r.URL, Price: r.Price, Previous: check.Previous}
	report.NewMinimums = append(report.NewMinimums, alert)
	t.metrics.RecordNewMinimum()
	plog.Info("new minimum price", zap.Float64("price", r.Price), zap.Float64("previous", check.Previous))

	if t.mailer == nil || t.opts.Recipient == "" {
		return
	}
	subject, body := alert.Message()
	if err := t.mailer.Send(ctx, t.opts.Recipient, subject, body); err != nil {
		plog.Error("alert not delivered", zap.Error(err))
		t.fail(report, r.URL, table, err)
	}
}

func (t *Tracker) fail(report *Report, url, table string, err error) {
	kind := failureKind(err)
	t.metrics.RecordFailure(kind)
	report.Failures = append(report.Failures, Failure{URL: url, Table: table, Kind: kind, Err: err})
}

func failureKind(err error) string {
	var cerr *collector.Error
	switch {
	case errors.As(err, &cerr) && cerr.Stage == collector.StageFetch:
		return metrics.KindNetwork
	case errors.As(err, &cerr) && cerr.Stage == collector.StageExtract:
		return metrics.KindExtraction
	case errors.Is(err, notifier.ErrDelivery):
		return metrics.KindDelivery
	default:
		return metrics.KindStorage
	}
}

// Run performs a run immediately and then one every interval until ctx is
// cancelled.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	t.log.Info("scheduler started", zap.Duration("interval", interval), zap.Int("products", len(t.opts.URLs)))
	t.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			t.log.Info("scheduler stopping", zap.Error(ctx.Err()))
			return nil
		case <-ticker.C:
			t.runLogged(ctx)
		}
	}
}

func (t *Tracker) runLogged(ctx context.Context) {
	if _, err := t.RunOnce(ctx); err != nil {
		t.log.Warn("run interrupted", zap.Error(err))
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordRun(time.Duration) {}
func (nopRecorder) RecordObservation()      {}
func (nopRecorder) RecordNewMinimum()       {}
func (nopRecorder) RecordFailure(string)    {}
