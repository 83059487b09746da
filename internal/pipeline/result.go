package pipeline

import "time"

// Outcome classifies a finished site run.
type Outcome int

const (
	Success Outcome = iota
	PartialSuccess
	Failure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case PartialSuccess:
		return "partial"
	default:
		return "failure"
	}
}

// OK reports whether the run produced at least the NIDM file.
func (o Outcome) OK() bool {
	return o == Success || o == PartialSuccess
}

// Result is the outcome of one site run.
type Result struct {
	Site    string
	Outcome Outcome
	Reason  string
	Skipped bool
	Elapsed time.Duration
	Err     error
}

// Options tunes a site run.
type Options struct {
	// Force removes existing outputs and reprocesses the site.
	Force bool
}
