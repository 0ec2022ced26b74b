// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package facility

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/urbanlogistics/depot/milp"
)

// Optimizer runs the whole pipeline: validation, range filtering, model
// construction, solving and extraction. It keeps no state between calls.
type Optimizer struct {
	solver   milp.Solver
	progress func(milp.Progress)
	logf     func(format string, args ...any)
}

// Option customizes an Optimizer.
type Option func(*Optimizer)

// WithSolver replaces the bundled branch-and-bound backend.
func WithSolver(s milp.Solver) Option {
	return func(o *Optimizer) { o.solver = s }
}

// WithProgress receives solver progress reports.
func WithProgress(fn func(milp.Progress)) Option {
	return func(o *Optimizer) { o.progress = fn }
}

// WithLogger redirects the phase summaries, log.Printf by default.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(o *Optimizer) { o.logf = logf }
}

// NewOptimizer returns an optimizer using the bundled solver unless
// WithSolver says otherwise.
func NewOptimizer(opts ...Option) *Optimizer {
	o := &Optimizer{
		solver: milp.NewBranchAndBound(),
		logf:   log.Printf,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Optimize solves one instance. Proven infeasibility is a Solution with
// StatusInfeasible and no error; invalid input returns InputError and
// solver trouble returns SolverError.
func (o *Optimizer) Optimize(ctx context.Context, demand []DemandPoint, sites []CandidateSite, params Params) (*Solution, error) {
	started := time.Now()

	if err := errors.Join(params.Validate(), ValidateDemand(demand), ValidateSites(sites)); err != nil {
		return nil, err
	}

	adm, err := Admissible(demand, sites, params)
	if err != nil {
		return nil, err
	}

	unserved := unservedPoints(adm, demand, params)
	if len(unserved) > 0 && params.Unservable == UnservableReject {
		errs := make([]error, len(unserved))
		for n, u := range unserved {
			errs[n] = &InputError{Table: TableDemand, Row: u.CustomerID, Message: u.Reason}
		}

		return nil, errors.Join(errs...)
	}

	f := BuildModel(demand, sites, adm, params)
	stats := Stats{
		DemandPoints:    len(demand),
		CandidateSites:  len(sites),
		AdmissiblePairs: len(adm.Pairs),
		Variables:       f.Model.NumVars(),
		Constraints:     f.Model.NumRows(),
		LazyConstraints: f.Model.NumLazyRows(),
	}

	o.logf("Model built: %d demand points (%d unservable), %d sites, %d pairs, %d variables, %d constraints",
		len(demand), len(unserved), len(sites), len(adm.Pairs), stats.Variables, stats.Constraints)

	if !greedyStart(f, demand, sites, params) {
		o.logf("Greedy start failed, solving without incumbent")
	}

	res, err := o.solver.Solve(ctx, f.Model, milp.Options{TimeLimit: params.TimeLimit, Progress: o.progress})
	if err != nil {
		return nil, &SolverError{Type: SolverErrorBackend, Message: "solving model", Err: err}
	}

	stats.Nodes, stats.Cuts, stats.Iterations = res.Nodes, res.Cuts, res.Iterations
	stats.Elapsed = time.Since(started)

	var sol *Solution

	switch {
	case res.IsOptimal():
		sol = Extract(f, res, demand, sites, params)
		sol.Status = StatusOptimal
	case res.IsTimeLimit() && res.HasSolution():
		sol = Extract(f, res, demand, sites, params)
		sol.Status = StatusTimeLimited
	case res.IsTimeLimit():
		return nil, &SolverError{
			Type:    SolverErrorNoSolution,
			Message: fmt.Sprintf("time limit of %s reached without a feasible solution", params.TimeLimit),
		}
	case res.IsInfeasible():
		sol = &Solution{Status: StatusInfeasible}
	case res.Status == milp.StatusUnbounded:
		return nil, &SolverError{Type: SolverErrorUnbounded, Message: "relaxation is unbounded"}
	default:
		return nil, &SolverError{Type: SolverErrorUnknown, Message: fmt.Sprintf("unexpected solver status %s", res.Status)}
	}

	sol.Unserved = unserved
	sol.Stats = stats

	if sol.HasPlan() {
		o.logf("Solved (%s): total cost %.2f, %d sites opened, %d assignments, gap %.4f%%, %d nodes in %s",
			sol.Status, sol.Objective, len(sol.Sites), len(sol.Assignments), 100*sol.Gap, res.Nodes, stats.Elapsed)
	} else {
		o.logf("No feasible plan: %s after %d nodes", sol.Status, res.Nodes)
	}

	return sol, nil
}
