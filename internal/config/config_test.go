package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"abide2nidm/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantOutput := filepath.Join(tempHome, ".local", "share", "abide2nidm", "nidm_outputs", "abide2")
	if cfg.Paths.OutputRoot != wantOutput {
		t.Fatalf("unexpected output root: got %q want %q", cfg.Paths.OutputRoot, wantOutput)
	}
	if cfg.Paths.DatasetRoot != filepath.Join(tempHome, "datasets", "abide2") {
		t.Fatalf("unexpected dataset root: %q", cfg.Paths.DatasetRoot)
	}
	if cfg.Batch.Workers != 4 {
		t.Fatalf("expected 4 workers by default, got %d", cfg.Batch.Workers)
	}
	if cfg.Batch.Isolation != config.IsolationProcess {
		t.Fatalf("expected process isolation by default, got %q", cfg.Batch.Isolation)
	}
	if cfg.Tools.TimeoutSeconds != 3600 {
		t.Fatalf("expected 3600s tool timeout, got %d", cfg.Tools.TimeoutSeconds)
	}
	if !cfg.Tools.NoConcepts {
		t.Fatal("expected no_concepts enabled by default")
	}
	if cfg.Dataset.SitePrefix != "ABIDEII-" {
		t.Fatalf("unexpected site prefix %q", cfg.Dataset.SitePrefix)
	}
	if got := filepath.Base(cfg.SummaryPath()); got != "abide2_processing_summary.txt" {
		t.Fatalf("unexpected summary file name %q", got)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	dataset := filepath.Join(tempHome, "data")
	custom := config.Default()
	custom.Paths.DatasetRoot = dataset
	custom.Paths.OutputRoot = "~/out"
	custom.Batch.Workers = 8
	custom.Batch.Isolation = " InProcess "
	custom.Logging.Format = "JSON"

	encoded, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	configPath := filepath.Join(tempHome, "config.toml")
	if err := os.WriteFile(configPath, encoded, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if cfg.Paths.DatasetRoot != dataset {
		t.Fatalf("unexpected dataset root %q", cfg.Paths.DatasetRoot)
	}
	if cfg.Paths.OutputRoot != filepath.Join(tempHome, "out") {
		t.Fatalf("expected tilde expansion, got %q", cfg.Paths.OutputRoot)
	}
	if cfg.Batch.Workers != 8 {
		t.Fatalf("expected 8 workers, got %d", cfg.Batch.Workers)
	}
	if cfg.Batch.Isolation != config.IsolationInProcess {
		t.Fatalf("expected normalized isolation, got %q", cfg.Batch.Isolation)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json format, got %q", cfg.Logging.Format)
	}
}

func TestEnvironmentOverridesFileValues(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	dataset := filepath.Join(tempHome, "env-data")
	t.Setenv("ABIDE2NIDM_DATASET_ROOT", dataset)
	t.Setenv("ABIDE2NIDM_WORKERS", "2")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.DatasetRoot != dataset {
		t.Fatalf("expected env dataset root, got %q", cfg.Paths.DatasetRoot)
	}
	if cfg.Batch.Workers != 2 {
		t.Fatalf("expected env workers, got %d", cfg.Batch.Workers)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"negative workers", func(c *config.Config) { c.Batch.Workers = -1 }, "batch.workers"},
		{"unknown isolation", func(c *config.Config) { c.Batch.Isolation = "threads" }, "batch.isolation"},
		{"bad timeout", func(c *config.Config) { c.Tools.TimeoutSeconds = -5 }, "tools.timeout_seconds"},
		{"participants path", func(c *config.Config) { c.Dataset.ParticipantsFile = "sub/participants.tsv" }, "dataset.participants_file"},
		{"same roots", func(c *config.Config) { c.Paths.OutputRoot = c.Paths.DatasetRoot }, "paths.output_root"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	path := filepath.Join(tempHome, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Dataset.RepresentativeSite != "ABIDEII-BNI_1" {
		t.Fatalf("unexpected representative site %q", cfg.Dataset.RepresentativeSite)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutputRoot = filepath.Join(base, "out", "abide2")
	cfg.Paths.LogDir = filepath.Join(base, "logs", "abide2")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.OutputRoot, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s, err=%v", dir, err)
		}
	}
}
