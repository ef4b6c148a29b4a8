// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package dump

import (
	"fmt"
)

type constError string

func (err constError) Error() string {
	return string(err)
}

const ErrTool = constError("external tool failed")

// ToolError is a dump tool that couldn't be started or exited with a
// non-zero status. Output holds what it printed.
type ToolError struct {
	Tool     string
	ExitCode int
	Output   string
	err      error
}

func (e ToolError) Error() string {
	return fmt.Sprintf("%v: %v (exit code %d): %v", ErrTool, e.Tool, e.ExitCode, e.err)
}

func (e ToolError) Unwrap() []error {
	return []error{ErrTool, e.err}
}

type IOError struct {
	path string
	err  error
}

func (e IOError) Error() string {
	return fmt.Sprintf("I/O error on %v: %v", e.path, e.err)
}

func (e IOError) Unwrap() error {
	return e.err
}
