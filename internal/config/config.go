package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains every filesystem location the harness reads or writes.
type Paths struct {
	DatasetRoot    string `toml:"dataset_root"`
	OutputRoot     string `toml:"output_root"`
	LogDir         string `toml:"log_dir"`
	MappingFile    string `toml:"mapping_file"`
	CophenotypeCSV string `toml:"cophenotype_csv"`
	SitesFile      string `toml:"sites_file"`
}

// Dataset describes how sites are named and laid out under the dataset root.
type Dataset struct {
	Name               string `toml:"name"`
	SitePrefix         string `toml:"site_prefix"`
	ParticipantsFile   string `toml:"participants_file"`
	RepresentativeSite string `toml:"representative_site"`
}

// Tools configures the external NIDM converters.
type Tools struct {
	BIDSConverter  string `toml:"bids_converter"`
	CSVConverter   string `toml:"csv_converter"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	NoConcepts     bool   `toml:"no_concepts"`
}

// Batch configures multi-site orchestration.
type Batch struct {
	Workers            int    `toml:"workers"`
	Isolation          string `toml:"isolation"`
	SiteTimeoutSeconds int    `toml:"site_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Isolation modes for batch workers.
const (
	IsolationProcess   = "process"
	IsolationInProcess = "inprocess"
)

// Config encapsulates all configuration values for abide2nidm.
//
// Configuration sections by subsystem:
//   - Paths: dataset, output, log, mapping, cophenotype and site-list locations
//   - Dataset: site naming and participant table layout
//   - Tools: external converter commands and timeouts
//   - Batch: worker pool size and isolation mode
//   - Logging: log format, level, and retention
type Config struct {
	Paths   Paths   `toml:"paths"`
	Dataset Dataset `toml:"dataset"`
	Tools   Tools   `toml:"tools"`
	Batch   Batch   `toml:"batch"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/abide2nidm/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("abide2nidm.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the output and log directories. The dataset
// root is never created; it must already exist.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputRoot, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ToolTimeout returns the wall-clock ceiling for one external converter run.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Tools.TimeoutSeconds) * time.Second
}

// SiteTimeout returns the wall-clock ceiling for one isolated site process.
func (c *Config) SiteTimeout() time.Duration {
	return time.Duration(c.Batch.SiteTimeoutSeconds) * time.Second
}

// SummaryPath is where the batch summary report is written.
func (c *Config) SummaryPath() string {
	return filepath.Join(c.Paths.LogDir, strings.ToLower(c.Dataset.Name)+"_processing_summary.txt")
}

// SharedLogPath is the log file shared by every unit of a batch run.
func (c *Config) SharedLogPath() string {
	return filepath.Join(c.Paths.LogDir, strings.ToLower(c.Dataset.Name)+"_processing_all.log")
}

// HistoryPath is the SQLite database recording batch runs.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.LogDir, "history.db")
}

// LockPath is the lock file guarding against concurrent batch runs.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "abide2nidm.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
