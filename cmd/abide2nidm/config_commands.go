package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"abide2nidm/internal/config"
	"abide2nidm/internal/fileutil"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the abide2nidm TOML configuration",
		Long: `Inspect or create the abide2nidm TOML configuration.

The file has five sections:
  [dataset]  dataset name, site directory prefix and participants table name
  [paths]    dataset root, NIDM output root, logs, mapping JSON, cophenotype CSV, site list
  [tools]    bidsmri2nidm and csv2nidm commands, per-tool timeout, -no_concepts
  [batch]    worker count, inprocess or process isolation, per-site timeout
  [logging]  console or json format, level, log retention`,
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigShowCommand(ctx))
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample abide2nidm.toml",
		Example: `  abide2nidm config init
  abide2nidm config init --path ./abide2nidm.toml --overwrite`,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := sampleTarget(targetPath)
			if err != nil {
				return err
			}
			if err := refuseExisting(target, overwrite); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Next: point [paths] dataset_root at the ABIDE II BIDS tree, then run 'abide2nidm preflight'.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination file (default ~/.config/abide2nidm/config.toml)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func sampleTarget(flagValue string) (string, error) {
	if strings.TrimSpace(flagValue) == "" {
		target, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return target, nil
	}
	target, err := config.ExpandPath(flagValue)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return target, nil
}

func refuseExisting(target string, overwrite bool) error {
	if overwrite {
		return nil
	}
	_, err := os.Stat(target)
	switch {
	case err == nil:
		return fmt.Errorf("%s already exists; pass --overwrite to replace it", target)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("check config path: %w", err)
	}
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and report the resolved batch inputs",
		Long: `Load the configuration, apply environment overrides and validate it.

Each input path is marked present or missing. Missing inputs are reported
but do not fail validation; use 'abide2nidm preflight' for a full readiness check.`,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", ctx.configPath)
			if !ctx.configExists {
				fmt.Fprintln(out, "No file at that path; built-in defaults were used")
			}
			fmt.Fprintln(out, renderTable("Inputs", []string{"Setting", "Value", "State"}, inputRows(cfg), []columnAlignment{alignLeft, alignLeft, alignLeft}))
			fmt.Fprintln(out, renderTable("Batch", []string{"Setting", "Value"}, [][]string{
				{"dataset", cfg.Dataset.Name},
				{"output_root", cfg.Paths.OutputRoot},
				{"bids_converter", cfg.Tools.BIDSConverter},
				{"csv_converter", cfg.Tools.CSVConverter},
				{"tool timeout", cfg.ToolTimeout().String()},
				{"workers", strconv.Itoa(cfg.Batch.Workers) + " (" + cfg.Batch.Isolation + ")"},
			}, []columnAlignment{alignLeft, alignLeft}))
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func inputRows(cfg *config.Config) [][]string {
	state := func(ok bool) string {
		if ok {
			return "present"
		}
		return "missing"
	}
	return [][]string{
		{"dataset_root", cfg.Paths.DatasetRoot, state(fileutil.IsDir(cfg.Paths.DatasetRoot))},
		{"sites_file", cfg.Paths.SitesFile, state(fileutil.IsFile(cfg.Paths.SitesFile))},
		{"mapping_file", cfg.Paths.MappingFile, state(fileutil.IsFile(cfg.Paths.MappingFile))},
		{"cophenotype_csv", cfg.Paths.CophenotypeCSV, state(fileutil.IsFile(cfg.Paths.CophenotypeCSV))},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Long:  "Print the configuration after defaults, environment overrides and path expansion.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return writeConfigTOML(cmd.OutOrStdout(), cfg)
		},
	}
}

func writeConfigTOML(w io.Writer, cfg *config.Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = w.Write(data)
	return err
}
