// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package facility

import (
	"errors"
	"fmt"
	"strings"
)

// InputError reports a problem with the input tables or the parameters.
type InputError struct {
	Table   string `json:"table"`
	Column  string `json:"column,omitempty"`
	Row     string `json:"row,omitempty"`
	Message string `json:"message"`
}

func (e *InputError) Error() string {
	var b strings.Builder

	b.WriteString(e.Table)

	if e.Column != "" {
		b.WriteString(".")
		b.WriteString(e.Column)
	}

	if e.Row != "" {
		fmt.Fprintf(&b, " (row %s)", e.Row)
	}

	b.WriteString(": ")
	b.WriteString(e.Message)

	return b.String()
}

// SolverErrorType classifies solver failures.
type SolverErrorType int

const (
	// SolverErrorUnknown unclassified failure.
	SolverErrorUnknown SolverErrorType = iota
	// SolverErrorBackend the backend failed or was aborted.
	SolverErrorBackend
	// SolverErrorNoSolution the time limit expired before any feasible solution.
	SolverErrorNoSolution
	// SolverErrorUnbounded the relaxation is unbounded.
	SolverErrorUnbounded
)

func (t SolverErrorType) String() string {
	switch t {
	case SolverErrorBackend:
		return "backend"
	case SolverErrorNoSolution:
		return "no_solution"
	case SolverErrorUnbounded:
		return "unbounded"
	default:
		return "unknown"
	}
}

// SolverError reports that the solver did not produce a usable answer. It is
// never used for proven infeasibility.
type SolverError struct {
	Type    SolverErrorType
	Message string
	Err     error
}

func (e *SolverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *SolverError) Unwrap() error {
	return e.Err
}

// IsInputError reports whether err comes from the input tables or parameters.
func IsInputError(err error) bool {
	var inErr *InputError

	return errors.As(err, &inErr)
}

// IsSolverError reports whether err is a SolverError of any type.
func IsSolverError(err error) bool {
	var solverErr *SolverError

	return errors.As(err, &solverErr)
}

// IsNoSolutionError reports whether the time limit expired without a solution.
func IsNoSolutionError(err error) bool {
	var solverErr *SolverError
	if errors.As(err, &solverErr) {
		return solverErr.Type == SolverErrorNoSolution
	}

	return false
}

// InputErrors returns every InputError contained in err.
func InputErrors(err error) []*InputError {
	var out []*InputError

	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}

		if inErr, ok := err.(*InputError); ok {
			out = append(out, inErr)

			return
		}

		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				walk(e)
			}

			return
		}

		walk(errors.Unwrap(err))
	}
	walk(err)

	return out
}
