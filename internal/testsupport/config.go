package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"abide2nidm/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The mapping file and cophenotype CSV exist so pipeline input validation
// passes; sites and tools are added through options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DatasetRoot = filepath.Join(base, "dataset")
	cfgVal.Paths.OutputRoot = filepath.Join(base, "out")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.MappingFile = filepath.Join(base, "mapping.json")
	cfgVal.Paths.CophenotypeCSV = filepath.Join(base, "cophenotype.csv")
	cfgVal.Paths.SitesFile = filepath.Join(base, "sites.txt")
	cfgVal.Tools.TimeoutSeconds = 30
	cfgVal.Batch.Workers = 2
	cfgVal.Batch.Isolation = config.IsolationInProcess
	cfgVal.Batch.SiteTimeoutSeconds = 60

	WriteText(t, cfgVal.Paths.MappingFile, "{}\n")
	WriteText(t, cfgVal.Paths.CophenotypeCSV, "participant_id,site_id\n")
	if err := os.MkdirAll(cfgVal.Paths.DatasetRoot, 0o755); err != nil {
		t.Fatalf("mkdir dataset root: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithSites creates a site directory with a minimal participants table for
// each name.
func WithSites(names ...string) ConfigOption {
	return func(b *configBuilder) {
		for _, name := range names {
			WriteSiteTable(b.t, b.cfg, name, "participant_id\tsex\n1\t1\n")
		}
	}
}

// WithSitesFile writes the batch site list.
func WithSitesFile(lines ...string) ConfigOption {
	return func(b *configBuilder) {
		content := ""
		for _, line := range lines {
			content += line + "\n"
		}
		WriteText(b.t, b.cfg.Paths.SitesFile, content)
	}
}

// StubConverterScript writes its -o argument; StubMergerScript exits 0.
const (
	StubConverterScript = `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift ;;
  esac
  shift
done
echo "converting to $out"
printf '@prefix nidm: <http://purl.org/nidash/nidm#> .\n' > "$out"
`
	StubMergerScript = "#!/bin/sh\necho merged\nexit 0\n"
)

// WithConverterScripts writes the given shell bodies as the BIDS converter
// and CSV merger and points the config at them. Empty bodies fall back to
// the stubs above.
func WithConverterScripts(converter, merger string) ConfigOption {
	return func(b *configBuilder) {
		if converter == "" {
			converter = StubConverterScript
		}
		if merger == "" {
			merger = StubMergerScript
		}
		binDir := filepath.Join(b.baseDir, "tools")
		b.cfg.Tools.BIDSConverter = writeScript(b.t, binDir, "bidsmri2nidm", converter)
		b.cfg.Tools.CSVConverter = writeScript(b.t, binDir, "csv2nidm", merger)
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the configured converters are
// stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{b.cfg.Tools.BIDSConverter, b.cfg.Tools.CSVConverter}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			writeScript(b.t, binDir, name, "#!/bin/sh\nexit 0\n")
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

func writeScript(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte(body), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
