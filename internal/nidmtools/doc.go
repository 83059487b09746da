// Package nidmtools wraps the external NIDM converters: the BIDS to NIDM
// converter that produces a site's Turtle file and the CSV merger that folds
// the cophenotype table into a copy of it. Only the exit-code contract of
// each tool is relied upon.
package nidmtools
