package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"abide2nidm/internal/config"
	"abide2nidm/internal/sites"
)

// WriteText writes content to path, creating parent directories.
func WriteText(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteSiteTable creates the site directory and its participants table.
func WriteSiteTable(t testing.TB, cfg *config.Config, site, content string) string {
	t.Helper()
	path := sites.NewLayout(cfg, site).Participants
	WriteText(t, path, content)
	return path
}

// WriteOutputs creates the NIDM and, when phenotype is set, the phenotype
// output for site as if a previous run had produced them.
func WriteOutputs(t testing.TB, cfg *config.Config, site string, phenotype bool) sites.Layout {
	t.Helper()
	layout := sites.NewLayout(cfg, site)
	WriteText(t, layout.NIDM, "nidm\n")
	if phenotype {
		WriteText(t, layout.Phenotype, "nidm\n")
	}
	return layout
}
