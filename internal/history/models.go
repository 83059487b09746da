package history

import "time"

// Run is one persisted batch run.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	Workers     int
	Isolation   string
	Forced      bool
	Total       int
	Complete    int
	Partial     int
	Missing     int
	SummaryPath string
	Sites       []SiteRecord
}

// Duration is the wall-clock time of the run.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// SiteRecord is one site's result within a run. Position is the site's
// index in the batch list.
type SiteRecord struct {
	Position int
	Site     string
	Success  bool
	Elapsed  time.Duration
	Status   string
}
