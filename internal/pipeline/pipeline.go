package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"abide2nidm/internal/config"
	"abide2nidm/internal/fileutil"
	"abide2nidm/internal/logging"
	"abide2nidm/internal/nidmtools"
	"abide2nidm/internal/services"
	"abide2nidm/internal/sites"
)

// PhenotypeDegradedWarning is logged when the merge fails after conversion.
const PhenotypeDegradedWarning = "phenotype integration failed, but NIDM file is available"

// Converter is the subset of the tool client the pipeline drives.
type Converter interface {
	Convert(ctx context.Context, req nidmtools.ConvertRequest) error
	MergePhenotype(ctx context.Context, req nidmtools.MergeRequest) error
}

// Pipeline processes single sites.
type Pipeline struct {
	cfg    *config.Config
	tools  Converter
	logger *slog.Logger
}

// New constructs a pipeline. The logger is expected to carry the site tag
// already (see Execute); a nil logger discards output.
func New(cfg *config.Config, tools Converter, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		tools:  tools,
		logger: logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Run processes site and never panics on tool failure; every error is folded
// into the returned Result.
func (p *Pipeline) Run(ctx context.Context, site string, opts Options) Result {
	start := time.Now()
	result := p.run(ctx, site, opts)
	result.Site = site
	result.Elapsed = time.Since(start)
	p.logResult(ctx, result)
	return result
}

func (p *Pipeline) run(ctx context.Context, site string, opts Options) Result {
	layout := sites.NewLayout(p.cfg, site)
	logger := logging.WithContext(ctx, p.logger)

	if !fileutil.IsDir(layout.InputDir) {
		return failure(services.Wrap(services.ErrNotFound, "validate", "site directory", fmt.Sprintf("missing input %s", layout.InputDir), nil))
	}
	for _, input := range []string{p.cfg.Paths.MappingFile, p.cfg.Paths.CophenotypeCSV} {
		if !fileutil.IsFile(input) {
			return failure(services.Wrap(services.ErrNotFound, "validate", "inputs", fmt.Sprintf("missing input %s", input), nil))
		}
	}

	existing := existingOutputs(layout)
	if len(existing) > 0 && !opts.Force {
		for _, path := range existing {
			logger.Info("output already exists; skipping site",
				logging.String("path", path),
				logging.String(logging.FieldEventType, "site_skipped"),
			)
		}
		return Result{Outcome: Success, Skipped: true}
	}
	if opts.Force {
		for _, path := range existing {
			if err := fileutil.RemoveIfExists(path); err != nil {
				return failure(services.Wrap(services.ErrCopy, "prepare", "remove output", path, err))
			}
			logger.Info("removed existing output", logging.String("path", path))
		}
	}
	if err := os.MkdirAll(p.cfg.Paths.OutputRoot, 0o755); err != nil {
		return failure(services.Wrap(services.ErrConfiguration, "prepare", "output root", p.cfg.Paths.OutputRoot, err))
	}

	convertCtx := services.WithStage(ctx, "convert")
	logging.WithContext(convertCtx, p.logger).Info("converting site", logging.String("output", layout.NIDM))
	if err := p.tools.Convert(convertCtx, nidmtools.ConvertRequest{
		SiteDir: layout.InputDir,
		Output:  layout.NIDM,
		Mapping: p.cfg.Paths.MappingFile,
	}); err != nil {
		// A converter that dies mid-write must not leave a NIDM file that
		// disk verification would count as processed.
		if rmErr := fileutil.RemoveIfExists(layout.NIDM); rmErr != nil {
			logging.WarnWithContext(logging.WithContext(convertCtx, p.logger), "partial NIDM output not removed", "partial_output",
				logging.String("path", layout.NIDM),
				logging.Error(rmErr),
				logging.String(logging.FieldImpact, "verification may count the site as processed"),
			)
		}
		return failure(err)
	}

	if err := fileutil.CopyFileVerified(layout.NIDM, layout.Phenotype); err != nil {
		return failure(services.Wrap(services.ErrCopy, "copy", "phenotype", layout.Phenotype, err))
	}
	logging.WithContext(services.WithStage(ctx, "copy"), p.logger).Info("phenotype copy written", logging.String("path", layout.Phenotype))

	mergeCtx := services.WithStage(ctx, "merge")
	if err := p.tools.MergePhenotype(mergeCtx, nidmtools.MergeRequest{
		CSV:     p.cfg.Paths.CophenotypeCSV,
		Mapping: p.cfg.Paths.MappingFile,
		Target:  layout.Phenotype,
		LogDir:  p.cfg.Paths.LogDir,
	}); err != nil {
		logging.WarnWithContext(logging.WithContext(mergeCtx, p.logger), PhenotypeDegradedWarning, "phenotype_degraded",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.FailureHint(err)),
			logging.String(logging.FieldImpact, "phenotype file holds the unmerged NIDM copy"),
		)
		return Result{Outcome: PartialSuccess, Reason: err.Error(), Err: err}
	}
	return Result{Outcome: Success}
}

func existingOutputs(layout sites.Layout) []string {
	var out []string
	for _, path := range []string{layout.NIDM, layout.Phenotype} {
		if fileutil.IsFile(path) {
			out = append(out, path)
		}
	}
	return out
}

func failure(err error) Result {
	return Result{Outcome: Failure, Reason: err.Error(), Err: err}
}

func (p *Pipeline) logResult(ctx context.Context, r Result) {
	logger := logging.WithContext(ctx, p.logger)
	attrs := []logging.Attr{
		logging.String("outcome", r.Outcome.String()),
		logging.Bool("skipped", r.Skipped),
		logging.Duration("elapsed", r.Elapsed),
		logging.String(logging.FieldEventType, "site_finished"),
	}
	if r.Outcome == Failure {
		attrs = append(attrs,
			logging.String("reason", r.Reason),
			logging.String(logging.FieldErrorHint, services.FailureHint(r.Err)),
		)
		logging.ErrorWithContext(logger, "site processing failed", "site_finished", attrs...)
		return
	}
	logger.Info("site processing finished", logging.Args(attrs...)...)
}

// Execute runs site with its own per-site log file teed into shared, using
// the configured converters. Extra tool options are passed to the client.
func Execute(ctx context.Context, cfg *config.Config, shared *slog.Logger, site string, opts Options, toolOpts ...nidmtools.Option) Result {
	if shared == nil {
		shared = logging.NewNop()
	}
	logger, closer, err := logging.NewSiteLogger(shared, cfg, site)
	if err != nil {
		logging.WarnWithContext(shared, "site log unavailable; using shared stream only", "site_log_unavailable",
			logging.Site(site),
			logging.Error(err),
			logging.String(logging.FieldImpact, "per-site log file not written"),
		)
		logger = shared.With(logging.Site(site))
		closer = io.NopCloser(nil)
	}
	defer closer.Close()

	client, err := nidmtools.New(cfg, append([]nidmtools.Option{nidmtools.WithLogger(logger)}, toolOpts...)...)
	if err != nil {
		return Result{Site: site, Outcome: Failure, Reason: err.Error(), Err: err}
	}
	return New(cfg, client, logger).Run(ctx, site, opts)
}
