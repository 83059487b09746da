// Package pipeline runs the per-site conversion: validate inputs, honour
// existing outputs, convert the site to NIDM, fan the result out to a
// phenotype copy and merge the cophenotype table into that copy.
//
// A merge failure degrades the run to PartialSuccess instead of failing it;
// the NIDM file stays usable on its own.
package pipeline
