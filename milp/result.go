// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package milp

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Status is the outcome of a solve.
type Status int

const (
	StatusUnknown Status = iota
	StatusOptimal
	StatusInfeasible
	StatusUnbounded
	StatusTimeLimit
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusTimeLimit:
		return "time_limit"
	default:
		return "unknown"
	}
}

// Result holds the outcome of a solve. Values is nil when no feasible
// solution was found.
type Result struct {
	Status     Status
	Values     []float64
	Objective  float64
	BestBound  float64
	Nodes      int
	Cuts       int
	Iterations int
	Elapsed    time.Duration
}

// IsOptimal returns true if the model was solved to optimality.
func (r *Result) IsOptimal() bool { return r.Status == StatusOptimal }

// IsInfeasible returns true if the model was proven infeasible.
func (r *Result) IsInfeasible() bool { return r.Status == StatusInfeasible }

// IsTimeLimit returns true if the time limit stopped the search.
func (r *Result) IsTimeLimit() bool { return r.Status == StatusTimeLimit }

// HasSolution returns true if a feasible solution is available.
func (r *Result) HasSolution() bool { return r.Values != nil }

// Value returns the value of v in the solution, zero if there is none.
func (r *Result) Value(v Var) float64 {
	if r.Values == nil || int(v) >= len(r.Values) {
		return 0
	}

	return r.Values[v]
}

// Gap returns the relative distance between the solution and the best bound.
func (r *Result) Gap() float64 {
	if !r.HasSolution() {
		return math.Inf(1)
	}

	if r.IsOptimal() {
		return 0
	}

	return math.Abs(r.Objective-r.BestBound) / math.Max(1, math.Abs(r.Objective))
}

func (r *Result) String() string {
	if !r.HasSolution() {
		return fmt.Sprintf("%s after %d nodes in %v", r.Status, r.Nodes, r.Elapsed)
	}

	return fmt.Sprintf("%s objective=%.2f bound=%.2f gap=%.4f%% nodes=%d cuts=%d in %v",
		r.Status, r.Objective, r.BestBound, 100*r.Gap(), r.Nodes, r.Cuts, r.Elapsed)
}

// Progress is reported periodically while searching.
type Progress struct {
	Nodes        int
	Cuts         int
	Incumbent    float64
	HasIncumbent bool
	BestBound    float64
	Elapsed      time.Duration
}

// Options tune a solve.
type Options struct {
	// TimeLimit bounds the search; zero means no limit.
	TimeLimit time.Duration
	// RelGap and AbsGap control when a node cannot improve the incumbent.
	RelGap float64
	AbsGap float64
	// Progress, if set, is called every ProgressEvery nodes.
	Progress      func(Progress)
	ProgressEvery int
}

const (
	DefaultRelGap        = 1e-9
	DefaultAbsGap        = 1e-6
	DefaultProgressEvery = 64
)

func (o Options) withDefaults() Options {
	if o.RelGap <= 0 {
		o.RelGap = DefaultRelGap
	}

	if o.AbsGap <= 0 {
		o.AbsGap = DefaultAbsGap
	}

	if o.ProgressEvery <= 0 {
		o.ProgressEvery = DefaultProgressEvery
	}

	return o
}

// Solver optimizes a Model. Implementations must not retain the model or
// share search state between calls.
type Solver interface {
	Solve(ctx context.Context, m *Model, opts Options) (*Result, error)
}
