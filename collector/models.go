package collector

import "time"

// Result is the outcome for one product URL.
type Result struct {
	URL   string  // product page
	Name  string  // extracted product name
	Price float64 // extracted price
	Err   error   // nil on success; a *Error otherwise
}

// OK reports whether name and price were obtained.
func (r Result) OK() bool { return r.Err == nil }

// Snapshot is the result of a single collection cycle, in input order.
// All results share the same collection timestamp.
type Snapshot struct {
	CollectedAt time.Time
	Results     []Result
}

// NewSnapshot creates an empty snapshot with the supplied time.
func NewSnapshot(ts time.Time) *Snapshot {
	return &Snapshot{CollectedAt: ts}
}

// Succeeded returns the results that carry a name and price.
func (s *Snapshot) Succeeded() []Result {
	var out []Result
	for _, r := range s.Results {
		if r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// Failed returns the results that carry an error.
func (s *Snapshot) Failed() []Result {
	var out []Result
	for _, r := range s.Results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}
