package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"pricewatch/collector"
	"pricewatch/extractor"
	"pricewatch/fetcher"
	"pricewatch/metrics"
	"pricewatch/notifier"
	"pricewatch/storage"
	"pricewatch/tracker"
)

// tracker builds the collection pipeline on top of the env's store.
func (e *env) tracker() (*tracker.Tracker, *metrics.Collector, error) {
	cfg := e.cfg

	f := fetcher.New(fetcher.Options{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.RequestTimeout,
		Log:       e.log,
	})
	x := extractor.New(extractor.Selectors{
		Name:           cfg.Selectors.Name,
		Price:          cfg.Selectors.Price,
		CurrencySuffix: cfg.Selectors.CurrencySuffix,
	})
	c := collector.New(f, x, cfg.Workers, e.log)

	var mailer tracker.Mailer
	if cfg.AlertsEnabled() {
		n, err := notifier.New(notifier.Config{
			ServerAddress:    cfg.SMTP.ServerAddress,
			Port:             cfg.SMTP.Port,
			SenderAddress:    cfg.SMTP.SenderAddress,
			SenderCredential: cfg.SMTP.SenderCredential,
			Timeout:          cfg.SMTP.Timeout,
		}, e.log)
		if err != nil {
			return nil, nil, fmt.Errorf("set up notifier: %w", err)
		}
		mailer = n
	}

	m := metrics.New()
	tr := tracker.New(e.store, c, mailer, m, tracker.Options{
		URLs:      cfg.Products,
		Recipient: cfg.NotifyTo,
	}, e.log)
	return tr, m, nil
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return nil
}

func printReport(w io.Writer, r *tracker.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "run %s: %d persisted, %d new minimums, %d failures\n",
		r.RunID, len(r.Persisted), len(r.NewMinimums), len(r.Failures))
	for _, p := range r.Persisted {
		fmt.Fprintf(tw, "ok\t%s\t%.2f\t%s\n", p.Table, p.Observation.Price, p.Observation.Timestamp)
	}
	for _, a := range r.NewMinimums {
		fmt.Fprintf(tw, "low\t%s\t%.2f\twas %.2f\n", a.Product, a.Price, a.Previous)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(tw, "fail\t%s\t%s\t%v\n", f.URL, f.Kind, f.Err)
	}
}

func printHistory(w io.Writer, history []storage.Observation) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tPRICE\tTIMESTAMP")
	for _, o := range history {
		fmt.Fprintf(tw, "%d\t%.2f\t%s\n", o.ID, o.Price, o.Timestamp)
	}
}
