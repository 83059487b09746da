// Package config loads, normalizes, and validates the TOML configuration that
// locates the dataset, outputs, logs, and external converters.
//
// Every component receives a *Config constructed once by the CLI; nothing in
// the repository reads literal filesystem paths.
package config
