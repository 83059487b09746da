package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.OutputRoot == c.Paths.DatasetRoot {
		return errors.New("paths.output_root must differ from paths.dataset_root")
	}
	if strings.ContainsAny(c.Dataset.ParticipantsFile, `/\`) {
		return errors.New("dataset.participants_file must be a file name, not a path")
	}
	return nil
}

func (c *Config) validateTools() error {
	if c.Tools.TimeoutSeconds <= 0 {
		return errors.New("tools.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateBatch() error {
	if err := ensurePositiveMap(map[string]int{
		"batch.workers":              c.Batch.Workers,
		"batch.site_timeout_seconds": c.Batch.SiteTimeoutSeconds,
	}); err != nil {
		return err
	}
	switch c.Batch.Isolation {
	case IsolationProcess, IsolationInProcess:
	default:
		return fmt.Errorf("batch.isolation must be %q or %q, got %q", IsolationProcess, IsolationInProcess, c.Batch.Isolation)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
