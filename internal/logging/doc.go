// Package logging assembles structured slog loggers and formatting helpers used
// across digidup.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and stamps every record with the run identifier so a log file
// shared by many invocations can be split per run. The package also provides
// a no-op logger for tests and wiring code that cannot fail.
//
// Loggers are constructed once per command and passed down explicitly; no
// package-level logger exists.
package logging
