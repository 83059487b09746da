package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"abide2nidm/internal/config"
	"abide2nidm/internal/logging"
	"abide2nidm/internal/phenotype"
	"abide2nidm/internal/sites"
	"abide2nidm/internal/varmap"
)

func newCophenoCommand(ctx *commandContext) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "copheno",
		Short: "Combine every site's participants table into one CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closer, err := ctx.newLogger()
			if err != nil {
				return err
			}
			defer closer.Close()

			target := cfg.Paths.CophenotypeCSV
			if strings.TrimSpace(outPath) != "" {
				if target, err = config.ExpandPath(outPath); err != nil {
					return fmt.Errorf("resolve output path: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			combined, err := phenotype.Combine(cfg, logger)
			if err != nil {
				if errors.Is(err, phenotype.ErrNoData) && combined != nil {
					printSiteFailures(out, combined.Failed)
				}
				return err
			}
			if err := combined.WriteCSV(target); err != nil {
				return err
			}

			stats := combined.Stats()
			attrs := []logging.Attr{
				logging.String("path", target),
				logging.Int("participants", stats.Participants),
				logging.Int("sites", len(combined.Succeeded)),
			}
			if stats.Age != nil {
				attrs = append(attrs,
					logging.Float64("age_mean", stats.Age.Mean),
					logging.Float64("age_std", stats.Age.Std),
				)
			}
			logger.Info("cophenotype written", logging.Args(attrs...)...)

			fmt.Fprintf(out, "Wrote %s\n", target)
			fmt.Fprintf(out, "Sites combined: %d (%s)\n", len(combined.Succeeded), strings.Join(combined.Succeeded, ", "))
			printSiteFailures(out, combined.Failed)
			fmt.Fprintln(out, renderCophenoStats(stats))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Destination CSV (default paths.cophenotype_csv)")
	return cmd
}

func printSiteFailures(out io.Writer, failed []phenotype.SiteFailure) {
	if len(failed) == 0 {
		return
	}
	fmt.Fprintf(out, "Sites failed: %d\n", len(failed))
	for _, f := range failed {
		fmt.Fprintf(out, "  %s: %v\n", f.Site, f.Err)
	}
}

func renderCophenoStats(stats phenotype.Stats) string {
	var b strings.Builder
	b.WriteString(renderTable("Cophenotype", []string{"Measure", "Value"}, [][]string{
		{"Participants", strconv.Itoa(stats.Participants)},
		{"Columns", strconv.Itoa(stats.Columns)},
		{"Unique sites", strconv.Itoa(stats.UniqueSites)},
	}, []columnAlignment{alignLeft, alignRight}))

	for _, group := range []struct {
		title  string
		counts []phenotype.ValueCount
	}{
		{"dx_group", stats.DxGroup},
		{"sex", stats.Sex},
	} {
		if len(group.counts) == 0 {
			continue
		}
		rows := make([][]string, 0, len(group.counts))
		for _, vc := range group.counts {
			rows = append(rows, []string{vc.Value, strconv.Itoa(vc.Count)})
		}
		b.WriteString("\n")
		b.WriteString(renderTable(group.title, []string{"Value", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	}

	if age := stats.Age; age != nil {
		b.WriteString("\n")
		b.WriteString(renderTable("age_at_scan", []string{"Count", "Mean", "Std", "Min", "Max"}, [][]string{{
			strconv.Itoa(age.Count),
			formatFloat(age.Mean),
			formatFloat(age.Std),
			formatFloat(age.Min),
			formatFloat(age.Max),
		}}, []columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight}))
	}
	return b.String()
}

func newMappingCommand(ctx *commandContext) *cobra.Command {
	var sourcePath string
	var outPath string

	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Generate the variable-to-term mapping from a participants table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			source := sites.NewLayout(cfg, cfg.Dataset.RepresentativeSite).Participants
			if strings.TrimSpace(sourcePath) != "" {
				if source, err = config.ExpandPath(sourcePath); err != nil {
					return fmt.Errorf("resolve source path: %w", err)
				}
			}
			target := cfg.Paths.MappingFile
			if strings.TrimSpace(outPath) != "" {
				if target, err = config.ExpandPath(outPath); err != nil {
					return fmt.Errorf("resolve output path: %w", err)
				}
			}

			mapping, err := varmap.FromTable(cfg.Dataset.Name, source)
			if err != nil {
				return err
			}
			if err := varmap.Write(mapping, target); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Read %d columns from %s\n", mapping.Len(), source)
			fmt.Fprintf(out, "Wrote mapping to %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourcePath, "source", "", "Participants table to read (default: representative site)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Destination JSON (default paths.mapping_file)")
	return cmd
}

func newFixHeadersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "fix-headers [<tsv>...]",
		Short: "Trim whitespace from participants table headers",
		Long:  "Trim whitespace from participants table headers. Without arguments every site under the dataset root is checked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closer, err := ctx.newLogger()
			if err != nil {
				return err
			}
			defer closer.Close()

			var summary phenotype.FixSummary
			if len(args) == 0 {
				summary, err = phenotype.FixAllSites(cfg, logger)
				if err != nil {
					return err
				}
			} else {
				paths := make([]string, 0, len(args))
				for _, arg := range args {
					path, err := config.ExpandPath(arg)
					if err != nil {
						return fmt.Errorf("resolve %q: %w", arg, err)
					}
					paths = append(paths, path)
				}
				summary = phenotype.FixPaths(logger, paths)
			}

			out := cmd.OutOrStdout()
			for _, fix := range summary.Fixed {
				fmt.Fprintf(out, "Fixed %s (%d columns: %s)\n", fix.Path, len(fix.Changed), quoteAll(fix.Changed))
				fmt.Fprintf(out, "  backup: %s\n", filepath.Base(fix.Backup))
			}
			for _, site := range summary.Missing {
				fmt.Fprintf(out, "Missing table: %s\n", site)
			}
			failedKeys := make([]string, 0, len(summary.Failed))
			for key := range summary.Failed {
				failedKeys = append(failedKeys, key)
			}
			sort.Strings(failedKeys)
			for _, key := range failedKeys {
				fmt.Fprintf(out, "Failed %s: %v\n", key, summary.Failed[key])
			}
			fmt.Fprintf(out, "Checked %d tables, fixed %d\n", summary.Checked, len(summary.Fixed))
			if len(summary.Failed) > 0 {
				return fmt.Errorf("%d tables could not be normalized", len(summary.Failed))
			}
			return nil
		},
	}
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return strings.Join(quoted, ", ")
}
