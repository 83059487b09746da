package batch

import (
	"time"

	"abide2nidm/internal/pipeline"
	"abide2nidm/internal/sites"
)

// Summary is everything a finished batch knows about itself.
type Summary struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	OutputRoot  string
	SummaryPath string
	Workers     int
	Isolation   string
	Forced      bool
	Sites       []string
	// Results are in completion order.
	Results []pipeline.Result
	// Verifications are in site list order.
	Verifications []sites.Verification
}

// Elapsed is the batch wall-clock time.
func (s *Summary) Elapsed() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// ByStatus returns the verifications with status, in list order.
func (s *Summary) ByStatus(status sites.Status) []sites.Verification {
	var out []sites.Verification
	for _, v := range s.Verifications {
		if v.Status == status {
			out = append(out, v)
		}
	}
	return out
}

// Complete lists sites with both outputs.
func (s *Summary) Complete() []sites.Verification { return s.ByStatus(sites.StatusComplete) }

// Partial lists sites with only the NIDM output.
func (s *Summary) Partial() []sites.Verification { return s.ByStatus(sites.StatusPartial) }

// Missing lists sites without a NIDM output.
func (s *Summary) Missing() []sites.Verification { return s.ByStatus(sites.StatusMissing) }

// Result returns the worker result for site, if any was collected.
func (s *Summary) Result(site string) (pipeline.Result, bool) {
	for _, r := range s.Results {
		if r.Site == site {
			return r, true
		}
	}
	return pipeline.Result{}, false
}
