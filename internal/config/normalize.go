package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	c.applyEnv()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDataset()
	c.normalizeTools()
	c.normalizeBatch()
	c.normalizeLogging()
	return nil
}

// applyEnv lets the environment override file values for the locations that
// differ between cluster accounts.
func (c *Config) applyEnv() {
	if value, ok := os.LookupEnv("ABIDE2NIDM_DATASET_ROOT"); ok && strings.TrimSpace(value) != "" {
		c.Paths.DatasetRoot = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("ABIDE2NIDM_OUTPUT_ROOT"); ok && strings.TrimSpace(value) != "" {
		c.Paths.OutputRoot = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("ABIDE2NIDM_LOG_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.LogDir = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("ABIDE2NIDM_WORKERS"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			c.Batch.Workers = n
		}
	}
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		key      string
		value    *string
		fallback string
	}{
		{"paths.dataset_root", &c.Paths.DatasetRoot, defaultDatasetRoot},
		{"paths.output_root", &c.Paths.OutputRoot, defaultOutputRoot},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.mapping_file", &c.Paths.MappingFile, defaultMappingFile},
		{"paths.cophenotype_csv", &c.Paths.CophenotypeCSV, defaultCophenotypeCSV},
		{"paths.sites_file", &c.Paths.SitesFile, defaultSitesFile},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeDataset() {
	c.Dataset.Name = strings.TrimSpace(c.Dataset.Name)
	if c.Dataset.Name == "" {
		c.Dataset.Name = defaultDatasetName
	}
	// The prefix may legitimately be empty when site ids carry no prefix.
	c.Dataset.SitePrefix = strings.TrimSpace(c.Dataset.SitePrefix)
	c.Dataset.ParticipantsFile = strings.TrimSpace(c.Dataset.ParticipantsFile)
	if c.Dataset.ParticipantsFile == "" {
		c.Dataset.ParticipantsFile = defaultParticipantsFile
	}
	c.Dataset.RepresentativeSite = strings.TrimSpace(c.Dataset.RepresentativeSite)
	if c.Dataset.RepresentativeSite == "" {
		c.Dataset.RepresentativeSite = defaultRepresentativeSite
	}
}

func (c *Config) normalizeTools() {
	c.Tools.BIDSConverter = strings.TrimSpace(c.Tools.BIDSConverter)
	if c.Tools.BIDSConverter == "" {
		c.Tools.BIDSConverter = defaultBIDSConverter
	}
	c.Tools.CSVConverter = strings.TrimSpace(c.Tools.CSVConverter)
	if c.Tools.CSVConverter == "" {
		c.Tools.CSVConverter = defaultCSVConverter
	}
	if strings.HasPrefix(c.Tools.BIDSConverter, "~") {
		if expanded, err := expandPath(c.Tools.BIDSConverter); err == nil {
			c.Tools.BIDSConverter = expanded
		}
	}
	if strings.HasPrefix(c.Tools.CSVConverter, "~") {
		if expanded, err := expandPath(c.Tools.CSVConverter); err == nil {
			c.Tools.CSVConverter = expanded
		}
	}
	if c.Tools.TimeoutSeconds == 0 {
		c.Tools.TimeoutSeconds = defaultToolTimeout
	}
}

func (c *Config) normalizeBatch() {
	if c.Batch.Workers == 0 {
		c.Batch.Workers = defaultWorkers
	}
	c.Batch.Isolation = strings.ToLower(strings.TrimSpace(c.Batch.Isolation))
	if c.Batch.Isolation == "" {
		c.Batch.Isolation = defaultIsolation
	}
	if c.Batch.SiteTimeoutSeconds == 0 {
		c.Batch.SiteTimeoutSeconds = defaultSiteTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
