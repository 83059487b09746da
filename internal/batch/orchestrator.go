package batch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"abide2nidm/internal/config"
	"abide2nidm/internal/history"
	"abide2nidm/internal/logging"
	"abide2nidm/internal/pipeline"
	"abide2nidm/internal/services"
	"abide2nidm/internal/sites"
)

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, run history.Run) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder stores each finished run through r.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithWorkers overrides the configured pool size.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithRunMetadata records how sites are isolated and whether outputs were
// forced, for the history record only.
func WithRunMetadata(isolation string, forced bool) Option {
	return func(o *Orchestrator) {
		o.isolation = isolation
		o.forced = forced
	}
}

// WithClock replaces time.Now (primarily for tests).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator runs a batch of sites through a SiteRunner.
type Orchestrator struct {
	cfg       *config.Config
	runner    SiteRunner
	logger    *slog.Logger
	recorder  Recorder
	workers   int
	isolation string
	forced    bool
	now       func() time.Time
}

// New constructs an orchestrator.
func New(cfg *config.Config, runner SiteRunner, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		runner:    runner,
		logger:    logging.NewComponentLogger(logger, "batch"),
		workers:   cfg.Batch.Workers,
		isolation: cfg.Batch.Isolation,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.workers <= 0 {
		o.workers = 1
	}
	return o
}

// Run processes every site in the configured sites file. Only batch
// preconditions (unreadable site list, held lock, output directories) are
// returned as errors; per-site failures land in the Summary.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	list, err := sites.LoadList(o.cfg.Paths.SitesFile)
	if err != nil {
		logging.ErrorWithContext(o.logger, "site list unavailable", "batch_sites_missing",
			logging.String("path", o.cfg.Paths.SitesFile),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "create the sites file or set paths.sites_file"),
		)
		return nil, err
	}
	return o.RunSites(ctx, list)
}

// RunSites processes list under the batch lock.
func (o *Orchestrator) RunSites(ctx context.Context, list []string) (*Summary, error) {
	if err := o.cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "batch", "prepare", "create output directories", err)
	}
	lock, err := AcquireLock(o.cfg.LockPath())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logging.WarnWithContext(o.logger, "failed to release batch lock", "batch_lock_release_failed",
				logging.String("path", lock.Path()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "next batch may need the lock file removed"),
			)
		}
	}()

	summary := &Summary{
		RunID:       uuid.NewString(),
		StartedAt:   o.now(),
		OutputRoot:  o.cfg.Paths.OutputRoot,
		SummaryPath: o.cfg.SummaryPath(),
		Workers:     min(o.workers, max(len(list), 1)),
		Isolation:   o.isolation,
		Forced:      o.forced,
		Sites:       list,
	}
	ctx = services.WithRunID(ctx, summary.RunID)
	logger := logging.WithContext(ctx, o.logger)

	logger.Info("batch started",
		logging.Int("sites", len(list)),
		logging.Int("workers", summary.Workers),
		logging.String("isolation", o.isolation),
		logging.String(logging.FieldEventType, "batch_start"),
	)

	for result := range o.dispatch(ctx, logger, list, summary.Workers) {
		summary.Results = append(summary.Results, result)
		status := "ok"
		if !result.Outcome.OK() {
			status = "failed"
		}
		logger.Info("site unit finished",
			logging.Site(result.Site),
			logging.String("status", status),
			logging.String("outcome", result.Outcome.String()),
			logging.Duration("elapsed", result.Elapsed),
			logging.Int("done", len(summary.Results)),
			logging.Int("total", len(list)),
		)
	}

	summary.Verifications = sites.VerifyAll(o.cfg, list)
	summary.FinishedAt = o.now()
	o.report(ctx, logger, summary)
	return summary, nil
}

// dispatch fans list out to n workers and streams results in completion
// order. The returned channel closes after every site has a result.
func (o *Orchestrator) dispatch(ctx context.Context, logger *slog.Logger, list []string, n int) <-chan pipeline.Result {
	jobs := make(chan string)
	results := make(chan pipeline.Result, len(list))

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			for site := range jobs {
				results <- o.runOne(ctx, logger, site)
			}
		}()
	}

	go func() {
		for _, site := range list {
			jobs <- site
		}
		close(jobs)
	}()
	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

// runOne contains every failure of a single unit, including panics.
func (o *Orchestrator) runOne(ctx context.Context, logger *slog.Logger, site string) (result pipeline.Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("site unit panicked: %v", r)
			logging.ErrorWithContext(logger, "site unit panicked", "site_panic",
				logging.Site(site),
				logging.Error(err),
				logging.String("stack", string(debug.Stack())),
			)
			result = pipeline.Result{Site: site, Outcome: pipeline.Failure, Reason: err.Error(), Err: err, Elapsed: time.Since(start)}
		}
	}()
	if err := ctx.Err(); err != nil {
		err = services.Wrap(services.ErrTransient, "batch", "dispatch", "batch cancelled before site started", err)
		return pipeline.Result{Site: site, Outcome: pipeline.Failure, Reason: err.Error(), Err: err}
	}
	result = o.runner.RunSite(ctx, site)
	result.Site = site
	return result
}

func (o *Orchestrator) report(ctx context.Context, logger *slog.Logger, summary *Summary) {
	complete, partial, missing := summary.Complete(), summary.Partial(), summary.Missing()
	for _, v := range complete {
		logger.Info("site complete",
			logging.Site(v.Layout.Site),
			logging.String("nidm", filepath.Base(v.Layout.NIDM)),
			logging.String("phenotype", filepath.Base(v.Layout.Phenotype)),
		)
	}
	for _, v := range partial {
		logging.WarnWithContext(logger, "site partial", "site_partial",
			logging.Site(v.Layout.Site),
			logging.String("nidm", filepath.Base(v.Layout.NIDM)),
			logging.String(logging.FieldErrorHint, "inspect the site log for the phenotype merge failure"),
			logging.String(logging.FieldImpact, "phenotype file missing"),
		)
	}
	for _, v := range missing {
		attrs := []logging.Attr{logging.Site(v.Layout.Site)}
		if r, ok := summary.Result(v.Layout.Site); ok && r.Reason != "" {
			attrs = append(attrs, logging.String("reason", r.Reason), logging.String(logging.FieldErrorHint, services.FailureHint(r.Err)))
		}
		logging.ErrorWithContext(logger, "site missing output", "site_missing", attrs...)
	}

	if err := WriteReport(summary.SummaryPath, o.cfg.Dataset.Name, summary); err != nil {
		logging.ErrorWithContext(logger, "summary write failed", "summary_write_failed",
			logging.String("path", summary.SummaryPath),
			logging.Error(err),
		)
	}

	logger.Info("batch finished",
		logging.Int("total", len(summary.Verifications)),
		logging.Int("complete", len(complete)),
		logging.Int("partial", len(partial)),
		logging.Int("missing", len(missing)),
		logging.Duration("elapsed", summary.Elapsed()),
		logging.String("summary", summary.SummaryPath),
		logging.String(logging.FieldEventType, "batch_complete"),
	)

	if o.recorder == nil {
		return
	}
	record := history.Run{
		ID:          summary.RunID,
		StartedAt:   summary.StartedAt,
		FinishedAt:  summary.FinishedAt,
		Workers:     summary.Workers,
		Isolation:   summary.Isolation,
		Forced:      summary.Forced,
		Total:       len(summary.Verifications),
		Complete:    len(complete),
		Partial:     len(partial),
		Missing:     len(missing),
		SummaryPath: summary.SummaryPath,
	}
	for i, v := range summary.Verifications {
		r, _ := summary.Result(v.Layout.Site)
		record.Sites = append(record.Sites, history.SiteRecord{
			Position: i,
			Site:     v.Layout.Site,
			Success:  r.Outcome.OK() && r.Site != "",
			Elapsed:  r.Elapsed,
			Status:   string(v.Status),
		})
	}
	// Record with a fresh context so a cancelled batch still leaves history.
	if err := o.recorder.RecordRun(context.WithoutCancel(ctx), record); err != nil {
		logging.WarnWithContext(logger, "history record failed", "history_record_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run missing from abide2nidm history"),
		)
	}
}
