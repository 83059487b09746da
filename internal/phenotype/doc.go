// Package phenotype reads the per-site participant tables, repairs
// whitespace in their headers and combines them into the study-wide
// cophenotype table.
//
// Tables are tab-separated with a header row. Reads try a fixed list of
// encodings in order; the first that decodes and parses wins.
package phenotype
