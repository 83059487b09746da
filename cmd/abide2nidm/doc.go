// Package main hosts the abide2nidm CLI entrypoint and command graph.
//
// The Cobra-based command tree covers single-site conversion (invoke), the
// multi-site batch (run), cophenotype aggregation, mapping generation, header
// normalization, preflight checks, run history, and configuration
// scaffolding. It centralizes configuration resolution and logger setup so
// subcommands only wire internal packages together.
//
// Keep this package lean: add behavior to the internal packages first, then
// surface it through a command or flag here.
package main
