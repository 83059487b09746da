// Package logging assembles structured slog loggers for the batch harness.
//
// It owns the console/JSON handlers, the shared batch stream, and per-site
// loggers that tee every record into the site's own log file so concurrent
// site units never interleave within one file. Components receive a
// *slog.Logger explicitly; nothing here installs a global default.
package logging
