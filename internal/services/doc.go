// Package services defines shared helpers used by the pipeline, the batch
// orchestrator and the converter clients.
//
// It provides error markers plus the Wrap helper so failures carry a stage
// and operation and can be classified with errors.Is, and context helpers
// that stamp run IDs, site identifiers and stage names for logging.
package services
