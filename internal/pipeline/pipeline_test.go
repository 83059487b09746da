package pipeline_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"abide2nidm/internal/config"
	"abide2nidm/internal/fileutil"
	"abide2nidm/internal/logging"
	"abide2nidm/internal/nidmtools"
	"abide2nidm/internal/pipeline"
	"abide2nidm/internal/services"
	"abide2nidm/internal/sites"
	"abide2nidm/internal/testsupport"
)

type fakeTools struct {
	convertErr   error
	mergeErr     error
	writeOutput  bool
	mergeAppends bool
	partialWrite bool
	convertCalls int
	mergeCalls   int
	lastConvert  nidmtools.ConvertRequest
	lastMerge    nidmtools.MergeRequest
}

func (f *fakeTools) Convert(_ context.Context, req nidmtools.ConvertRequest) error {
	f.convertCalls++
	f.lastConvert = req
	if f.partialWrite {
		if err := os.WriteFile(req.Output, []byte("@prefix nidm: <http://purl"), 0o644); err != nil {
			return err
		}
	}
	if f.convertErr != nil {
		return f.convertErr
	}
	if f.writeOutput {
		return os.WriteFile(req.Output, []byte("@prefix nidm: <http://purl.org/nidash/nidm#> .\n"), 0o644)
	}
	return nil
}

func (f *fakeTools) MergePhenotype(_ context.Context, req nidmtools.MergeRequest) error {
	f.mergeCalls++
	f.lastMerge = req
	if f.mergeErr != nil {
		return f.mergeErr
	}
	if f.mergeAppends {
		file, err := os.OpenFile(req.Target, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = file.WriteString("nidm:phenotype true .\n")
		return err
	}
	return nil
}

const site = "ABIDEII-KKI_1"

func TestRunSuccessProducesBothOutputs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSites(site))
	tools := &fakeTools{writeOutput: true, mergeAppends: true}

	result := pipeline.New(cfg, tools, logging.NewNop()).Run(context.Background(), site, pipeline.Options{})
	if result.Outcome != pipeline.Success || result.Skipped {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Site != site || result.Elapsed <= 0 {
		t.Fatalf("expected site and elapsed populated, got %+v", result)
	}
	layout := sites.NewLayout(cfg, site)
	if tools.lastConvert.SiteDir != layout.InputDir || tools.lastConvert.Output != layout.NIDM {
		t.Fatalf("unexpected convert request %+v", tools.lastConvert)
	}
	if tools.lastMerge.Target != layout.Phenotype || tools.lastMerge.CSV != cfg.Paths.CophenotypeCSV || tools.lastMerge.LogDir != cfg.Paths.LogDir {
		t.Fatalf("unexpected merge request %+v", tools.lastMerge)
	}
	if sites.Verify(cfg, site).Status != sites.StatusComplete {
		t.Fatal("expected both outputs on disk")
	}
}

func TestRunSkipsWhenOutputExists(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSites(site))
	testsupport.WriteOutputs(t, cfg, site, false)
	tools := &fakeTools{writeOutput: true}

	result := pipeline.New(cfg, tools, logging.NewNop()).Run(context.Background(), site, pipeline.Options{})
	if result.Outcome != pipeline.Success || !result.Skipped {
		t.Fatalf("expected skipped success, got %+v", result)
	}
	if tools.convertCalls != 0 || tools.mergeCalls != 0 {
		t.Fatalf("expected no tool invocation, got convert=%d merge=%d", tools.convertCalls, tools.mergeCalls)
	}
}

func TestRunForceReprocesses(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSites(site))
	layout := testsupport.WriteOutputs(t, cfg, site, true)
	tools := &fakeTools{writeOutput: true}

	result := pipeline.New(cfg, tools, logging.NewNop()).Run(context.Background(), site, pipeline.Options{Force: true})
	if result.Outcome != pipeline.Success || result.Skipped {
		t.Fatalf("expected processed success, got %+v", result)
	}
	if tools.convertCalls != 1 {
		t.Fatalf("expected converter invoked once, got %d", tools.convertCalls)
	}
	data, err := os.ReadFile(layout.NIDM)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "@prefix") {
		t.Fatalf("expected regenerated output, got %q", data)
	}
}

func TestRunConverterFailureLeavesNoPhenotype(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSites(site))
	convertErr := services.Wrap(services.ErrExternalTool, "convert", "bidsmri2nidm", "tool failed", errors.New("exit status 1"))
	tools := &fakeTools{convertErr: convertErr}

	result := pipeline.New(cfg, tools, logging.NewNop()).Run(context.Background(), site, pipeline.Options{})
	if result.Outcome != pipeline.Failure || result.Outcome.OK() {
		t.Fatalf("expected failure, got %+v", result)
	}
	if !errors.Is(result.Err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", result.Err)
	}
	if fileutil.IsFile(sites.NewLayout(cfg, site).Phenotype) {
		t.Fatal("phenotype file must not exist after converter failure")
	}
	if tools.mergeCalls != 0 {
		t.Fatal("merge must not run after converter failure")
	}
}

func TestRunConverterFailureRemovesPartialOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSites(site))
	tools := &fakeTools{
		partialWrite: true,
		convertErr:   services.Wrap(services.ErrExternalTool, "convert", "bidsmri2nidm", "tool failed", errors.New("signal: killed")),
	}

	result := pipeline.New(cfg, tools, logging.NewNop()).Run(context.Background(), site, pipeline.Options{})
	if result.Outcome != pipeline.Failure {
		t.Fatalf("expected failure, got %+v", result)
	}
	if fileutil.IsFile(sites.NewLayout(cfg, site).NIDM) {
		t.Fatal("partial NIDM output left on disk after converter failure")
	}
	if v := sites.Verify(cfg, site); v.Status != sites.StatusMissing {
		t.Fatalf("expected site to verify as missing, got %+v", v)
	}
}

func TestRunLogsCarryRunIDAndStage(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSites(site))
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := services.WithRunID(context.Background(), "run-1")

	result := pipeline.New(cfg, &fakeTools{writeOutput: true}, logger).Run(ctx, site, pipeline.Options{})
	if result.Outcome != pipeline.Success {
		t.Fatalf("expected success, got %+v", result)
	}

	stages := map[string]string{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		if entry[logging.FieldRunID] != "run-1" {
			t.Fatalf("expected run_id on every line, got %v", entry)
		}
		msg, _ := entry["msg"].(string)
		stage, _ := entry[logging.FieldStage].(string)
		stages[msg] = stage
	}
	if stages["converting site"] != "convert" || stages["phenotype copy written"] != "copy" {
		t.Fatalf("unexpected stage tags %v", stages)
	}
	if stages["site processing finished"] != "" {
		t.Fatalf("summary line should carry no stage, got %q", stages["site processing finished"])
	}
}

func TestRunMergeFailureDegradesToPartial(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSites(site))
	tools := &fakeTools{
		writeOutput: true,
		mergeErr:    services.Wrap(services.ErrTimeout, "merge", "csv2nidm", "timed out", nil),
	}

	result := pipeline.New(cfg, tools, logging.NewNop()).Run(context.Background(), site, pipeline.Options{})
	if result.Outcome != pipeline.PartialSuccess || !result.Outcome.OK() {
		t.Fatalf("expected partial success, got %+v", result)
	}
	layout := sites.NewLayout(cfg, site)
	nidm, err := os.ReadFile(layout.NIDM)
	if err != nil {
		t.Fatal(err)
	}
	pheno, err := os.ReadFile(layout.Phenotype)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(nidm, pheno) {
		t.Fatal("phenotype file should equal the pre-merge NIDM bytes")
	}
}

func TestRunMissingInputs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, cfg *config.Config)
	}{
		{"site directory", func(t *testing.T, cfg *config.Config) {
			if err := os.RemoveAll(sites.NewLayout(cfg, site).InputDir); err != nil {
				t.Fatal(err)
			}
		}},
		{"mapping file", func(t *testing.T, cfg *config.Config) {
			if err := os.Remove(cfg.Paths.MappingFile); err != nil {
				t.Fatal(err)
			}
		}},
		{"cophenotype csv", func(t *testing.T, cfg *config.Config) {
			if err := os.Remove(cfg.Paths.CophenotypeCSV); err != nil {
				t.Fatal(err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t, testsupport.WithSites(site))
			tt.mutate(t, cfg)
			tools := &fakeTools{writeOutput: true}

			result := pipeline.New(cfg, tools, logging.NewNop()).Run(context.Background(), site, pipeline.Options{})
			if result.Outcome != pipeline.Failure || !errors.Is(result.Err, services.ErrNotFound) {
				t.Fatalf("expected not found failure, got %+v", result)
			}
			if !strings.Contains(result.Reason, "missing input") {
				t.Fatalf("expected missing input reason, got %q", result.Reason)
			}
			if tools.convertCalls != 0 {
				t.Fatal("converter must not run with missing inputs")
			}
		})
	}
}

func TestExecuteWithScriptsWritesSiteLog(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithSites(site),
		testsupport.WithConverterScripts("", "#!/bin/sh\necho 'csv2nidm: bad mapping' >&2\nexit 2\n"),
	)

	result := pipeline.Execute(context.Background(), cfg, logging.NewNop(), site, pipeline.Options{})
	if result.Outcome != pipeline.PartialSuccess {
		t.Fatalf("expected partial success from failing merger, got %+v", result)
	}
	if sites.Verify(cfg, site).Status != sites.StatusComplete {
		t.Fatal("expected NIDM and pre-merge phenotype copy on disk")
	}

	logData, err := os.ReadFile(sites.NewLayout(cfg, site).Log)
	if err != nil {
		t.Fatalf("read site log: %v", err)
	}
	text := string(logData)
	for _, fragment := range []string{"converting to", "csv2nidm: bad mapping", pipeline.PhenotypeDegradedWarning} {
		if !strings.Contains(text, fragment) {
			t.Fatalf("expected %q in site log:\n%s", fragment, text)
		}
	}
}

func TestOutcomeString(t *testing.T) {
	if pipeline.Success.String() != "success" || pipeline.PartialSuccess.String() != "partial" || pipeline.Failure.String() != "failure" {
		t.Fatal("unexpected outcome labels")
	}
}
