package tracker

import (
	"fmt"
	"time"

	"pricewatch/storage"
)

// Report summarizes one run.
type Report struct {
	RunID       string
	CollectedAt time.Time
	Persisted   []Persisted
	NewMinimums []Alert
	Failures    []Failure
}

// Persisted is an observation written during the run.
type Persisted struct {
	URL         string
	Table       string
	Observation storage.Observation
}

// Alert is a product whose price fell below every recorded price.
type Alert struct {
	Product  string
	URL      string
	Price    float64
	Previous float64
}

// Message renders the alert as an email subject and plain-text body.
func (a Alert) Message() (subject, body string) {
	subject = fmt.Sprintf("Price drop: %s", a.Product)
	body = fmt.Sprintf("%s now costs %.2f (previous minimum %.2f).\n\n%s\n",
		a.Product, a.Price, a.Previous, a.URL)
	return subject, body
}

// Failure is a product whose update was abandoned for this run, or whose
// alert could not be delivered.
type Failure struct {
	URL   string
	Table string // empty when the product never reached the store
	Kind  string // one of the metrics.Kind* values
	Err   error
}

// AllFailed reports whether nothing at all was persisted although products
// were configured.
func (r *Report) AllFailed() bool {
	return len(r.Persisted) == 0 && len(r.Failures) > 0
}
