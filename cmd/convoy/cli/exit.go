// Copyright 2026 The Convoy Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError signals a non-zero exit code without printing an extra
// error message. A command returning ExitError has already written
// its own report; main exits with the code and stays quiet.
//
// "convoy run" uses this: a failed pipeline run prints its result
// and exits 1, which is an outcome, not an unexpected error.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. Main checks for this interface on
// returned errors.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// UsageError marks an error as a command-line usage mistake (unknown
// command, bad flag, missing argument). Main prints it and exits 2
// instead of 1.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }
