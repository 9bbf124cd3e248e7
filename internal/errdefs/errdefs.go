// Package errdefs defines the error taxonomy shared by the pipeline
// services. Every error is fatal for the step it occurs in; the types
// exist so callers can tell a malformed archive from a failed subprocess
// without parsing message strings.
package errdefs

import "fmt"

// FormatError reports a TOC parse failure. Check names the validation
// that failed, e.g. "magic" or "version".
type FormatError struct {
	Check  string
	Detail string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("toc format error: %s check failed: %s", e.Check, e.Detail)
}

// IOError reports a file or directory access failure with path context.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io error, path: %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ProcessError reports a subprocess spawn failure or non-zero exit.
// ExitCode is -1 when the process never ran.
type ProcessError struct {
	Program  string
	ExitCode int
	Output   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Err != nil && e.ExitCode < 0 {
		return fmt.Sprintf("%s spawn error: %v", e.Program, e.Err)
	}
	return fmt.Sprintf("%s failed, status code: %d\noutput: %s", e.Program, e.ExitCode, e.Output)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// DBError reports a connection, query or execute failure.
type DBError struct {
	Op  string
	Err error
}

func (e *DBError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Op, e.Err)
}

func (e *DBError) Unwrap() error { return e.Err }

// ValidationError reports a precondition violation detected before any
// state was mutated, e.g. a destination database that already exists.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }
