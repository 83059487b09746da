package batch

import (
	"fmt"
	"path/filepath"
	"strings"

	"abide2nidm/internal/fileutil"
)

const reportRule = "=================================================="

// RenderReport formats the plain-text summary file. title is the dataset
// name, e.g. "ABIDE2".
func RenderReport(title string, s *Summary) string {
	var b strings.Builder
	elapsed := s.Elapsed().Seconds()
	complete, partial, missing := s.Complete(), s.Partial(), s.Missing()

	fmt.Fprintf(&b, "%s Processing Summary\n", title)
	b.WriteString(reportRule + "\n")
	fmt.Fprintf(&b, "Processing completed at: %s\n", s.FinishedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Run ID: %s\n", s.RunID)
	fmt.Fprintf(&b, "Total time: %.2f seconds (%.1f minutes)\n", elapsed, elapsed/60)
	fmt.Fprintf(&b, "Output directory: %s\n", s.OutputRoot)
	b.WriteString("\nStatistics:\n")
	fmt.Fprintf(&b, "  Total sites: %d\n", len(s.Verifications))
	fmt.Fprintf(&b, "  Complete (both files): %d\n", len(complete))
	fmt.Fprintf(&b, "  Partial (NIDM only): %d\n", len(partial))
	fmt.Fprintf(&b, "  Missing (no output): %d\n", len(missing))

	b.WriteString("\nComplete sites (NIDM + phenotype):\n")
	for _, v := range complete {
		fmt.Fprintf(&b, "  %s -> %s, %s\n", v.Layout.Site, filepath.Base(v.Layout.NIDM), filepath.Base(v.Layout.Phenotype))
	}
	b.WriteString("\nPartial sites (NIDM only):\n")
	for _, v := range partial {
		fmt.Fprintf(&b, "  %s -> %s\n", v.Layout.Site, filepath.Base(v.Layout.NIDM))
	}
	b.WriteString("\nFailed/missing sites:\n")
	for _, v := range missing {
		fmt.Fprintf(&b, "  %s\n", v.Layout.Site)
	}
	return b.String()
}

// WriteReport renders the summary and writes it to path.
func WriteReport(path, title string, s *Summary) error {
	if err := fileutil.WriteFileAtomic(path, []byte(RenderReport(title, s)), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
