package preflight

import (
	"context"

	"abide2nidm/internal/config"
	"abide2nidm/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// MinFreeBytes is the free-space floor for the output root.
const MinFreeBytes uint64 = 1 << 30

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryReadable("Dataset root", cfg.Paths.DatasetRoot))
	results = append(results, CheckDirectoryAccess("Output root", cfg.Paths.OutputRoot))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))

	results = append(results, CheckFile("Mapping file", cfg.Paths.MappingFile))
	results = append(results, CheckFile("Cophenotype CSV", cfg.Paths.CophenotypeCSV))
	results = append(results, CheckFile("Sites file", cfg.Paths.SitesFile))

	for _, status := range CheckSystemDeps(ctx, cfg) {
		results = append(results, FromStatus(status))
	}

	results = append(results, CheckFreeSpace("Output free space", cfg.Paths.OutputRoot, MinFreeBytes))
	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// FromStatus converts a dependency status into a preflight result.
func FromStatus(status deps.Status) Result {
	if status.Available {
		return Result{Name: status.Name, Passed: true, Detail: status.Path}
	}
	if status.Optional {
		return Result{Name: status.Name, Passed: true, Detail: status.Detail + " (optional)"}
	}
	return Result{Name: status.Name, Detail: status.Detail}
}
