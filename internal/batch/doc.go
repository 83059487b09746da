// Package batch drives the multi-site run: it loads the site list, takes the
// batch lock, fans sites out to a fixed-size worker pool, then verifies what
// landed on disk and reports it.
//
// Each site runs through a SiteRunner, either as a child "invoke" process or
// in a goroutine. Verification always reads the output root after every
// worker has finished, so the report reflects disk state rather than what
// workers claimed.
package batch
