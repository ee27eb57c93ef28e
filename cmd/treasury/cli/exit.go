// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError makes the binary exit with Code without printing an error
// line. The command has already written its own output; "find" uses it
// to exit 1 when nothing is stored.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}
