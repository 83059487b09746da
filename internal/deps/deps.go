// Package deps reports whether the external converters the pipeline shells
// out to can be resolved.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"abide2nidm/internal/config"
)

// Requirement defines an external command the harness relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Path        string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// ConverterRequirements lists the converters named by cfg.
func ConverterRequirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "BIDS converter",
			Command:     cfg.Tools.BIDSConverter,
			Description: "Converts a site directory to NIDM Turtle",
		},
		{
			Name:        "CSV converter",
			Command:     cfg.Tools.CSVConverter,
			Description: "Merges the cophenotype table into the phenotype copy",
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Path = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Missing returns the required statuses that are unavailable.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			out = append(out, s)
		}
	}
	return out
}
