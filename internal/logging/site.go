package logging

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"

	"abide2nidm/internal/config"
)

// SiteLogPath returns the per-site log file for a site identifier.
func SiteLogPath(cfg *config.Config, site string) string {
	return filepath.Join(cfg.Paths.LogDir, site+"_processing.log")
}

// NewSiteLogger builds the logger owned by one site-processing unit. Records
// go to the shared stream (base) and to the site's own log file, tagged with
// the site identifier. Close the returned closer when the unit finishes.
func NewSiteLogger(base *slog.Logger, cfg *config.Config, site string) (*slog.Logger, io.Closer, error) {
	file, err := openLogFile(SiteLogPath(cfg, site))
	if err != nil {
		return nil, nil, err
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(cfg.Logging.Level))
	fileHandler, err := newHandler(cfg.Logging.Format, file, levelVar, false)
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}

	var baseHandler slog.Handler
	if base != nil {
		baseHandler = base.Handler()
	}
	logger := slog.New(TeeHandler(baseHandler, fileHandler)).With(Site(site))
	return logger, file, nil
}

// TeeHandler creates a handler that duplicates log output to every non-nil handler.
func TeeHandler(handlers ...slog.Handler) slog.Handler {
	filtered := make([]slog.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	switch len(filtered) {
	case 0:
		return NoopHandler{}
	case 1:
		return filtered[0]
	default:
		return teeHandler(filtered)
	}
}

type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range t {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(teeHandler, len(t))
	for i, h := range t {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	next := make(teeHandler, len(t))
	for i, h := range t {
		next[i] = h.WithGroup(name)
	}
	return next
}
