package phenotype

import (
	"bytes"
	"log/slog"
	"os"
	"strings"

	"abide2nidm/internal/config"
	"abide2nidm/internal/fileutil"
	"abide2nidm/internal/logging"
	"abide2nidm/internal/services"
	"abide2nidm/internal/sites"
)

// HeaderFix reports what FixHeaders did to one table.
type HeaderFix struct {
	Path    string
	Fixed   bool
	Backup  string
	Changed []string
}

// FixHeaders trims whitespace from the header cells of the table at path.
// When any cell changes, the original is first copied to path+".bak" and only
// the header line is rewritten; data rows and the header's line terminator
// are preserved byte-for-byte.
func FixHeaders(path string) (HeaderFix, error) {
	result := HeaderFix{Path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		return result, services.Wrap(services.ErrNotFound, "headers", "read", path, err)
	}
	if len(data) == 0 {
		return result, nil
	}

	headerEnd := bytes.IndexByte(data, '\n')
	var rest []byte
	header := data
	if headerEnd >= 0 {
		header = data[:headerEnd]
		rest = data[headerEnd:]
	}
	terminator := ""
	if bytes.HasSuffix(header, []byte("\r")) {
		header = header[:len(header)-1]
		terminator = "\r"
	}

	cells := strings.Split(string(header), "\t")
	for i, cell := range cells {
		trimmed := strings.TrimSpace(cell)
		if trimmed != cell {
			result.Changed = append(result.Changed, cell)
			cells[i] = trimmed
		}
	}
	if len(result.Changed) == 0 {
		return result, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return result, services.Wrap(services.ErrNotFound, "headers", "stat", path, err)
	}
	backup, err := fileutil.Backup(path)
	if err != nil {
		return result, services.Wrap(services.ErrCopy, "headers", "backup", path, err)
	}
	result.Backup = backup

	var buf bytes.Buffer
	buf.Grow(len(data))
	buf.WriteString(strings.Join(cells, "\t"))
	buf.WriteString(terminator)
	buf.Write(rest)
	if err := fileutil.WriteFileAtomic(path, buf.Bytes(), info.Mode().Perm()); err != nil {
		return result, services.Wrap(services.ErrCopy, "headers", "rewrite", path, err)
	}
	result.Fixed = true
	return result, nil
}

// FixSummary aggregates one normalization pass.
type FixSummary struct {
	Checked int
	Fixed   []HeaderFix
	Missing []string
	Failed  map[string]error
}

// FixPaths runs FixHeaders over explicit table paths.
func FixPaths(logger *slog.Logger, paths []string) FixSummary {
	summary := FixSummary{Failed: map[string]error{}}
	for _, path := range paths {
		fixOne(logger, &summary, path, path)
	}
	return summary
}

// FixAllSites runs FixHeaders on the participant table of every prefixed site
// directory under the dataset root.
func FixAllSites(cfg *config.Config, logger *slog.Logger) (FixSummary, error) {
	found, err := sites.Discover(cfg.Paths.DatasetRoot, cfg.Dataset.SitePrefix)
	if err != nil {
		return FixSummary{}, err
	}
	summary := FixSummary{Failed: map[string]error{}}
	for _, site := range found {
		layout := sites.NewLayout(cfg, site)
		if !fileutil.IsFile(layout.Participants) {
			logging.WarnWithContext(logger, "participants table missing", "headers_missing_table",
				logging.Site(site),
				logging.String("path", layout.Participants),
				logging.String(logging.FieldImpact, "site skipped by header normalization"),
			)
			summary.Missing = append(summary.Missing, site)
			continue
		}
		fixOne(logger, &summary, site, layout.Participants)
	}
	return summary, nil
}

func fixOne(logger *slog.Logger, summary *FixSummary, label, path string) {
	if logger == nil {
		logger = logging.NewNop()
	}
	summary.Checked++
	fix, err := FixHeaders(path)
	if err != nil {
		logging.ErrorWithContext(logger, "header normalization failed", "headers_failed",
			logging.String("target", label),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.FailureHint(err)),
		)
		summary.Failed[label] = err
		return
	}
	if !fix.Fixed {
		logger.Debug("headers already clean", logging.String("target", label))
		return
	}
	logger.Info("headers normalized",
		logging.String("target", label),
		logging.String("backup", fix.Backup),
		logging.Int("columns_fixed", len(fix.Changed)),
		logging.String(logging.FieldEventType, "headers_fixed"),
	)
	summary.Fixed = append(summary.Fixed, fix)
}
