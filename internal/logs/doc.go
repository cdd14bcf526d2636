// Package logs reads back digidup's persistent log file.
//
// Every record carries the run_id of the invocation that wrote it, in either
// the console (run_id=...) or JSON ("run_id":"...") format. Tail selects the
// last lines of the file, optionally restricted to one run, and can keep
// following the file as a concurrent run appends to it.
package logs
