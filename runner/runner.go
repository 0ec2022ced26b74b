// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

// Package runner executes optimization calls as recorded runs: it times
// them, feeds the metrics and stores every outcome in the run history.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/urbanlogistics/depot/facility"
	"github.com/urbanlogistics/depot/metrics"
	"github.com/urbanlogistics/depot/store"
)

// statusRejected labels calls refused for invalid input. They are not stored.
const statusRejected = "rejected"

type Runner struct {
	optimizer *facility.Optimizer
	history   store.RunRepository
	mirrors   []store.RunRepository
}

// New returns a runner saving into history and, best effort, into every
// mirror. history may be nil to skip persistence.
func New(optimizer *facility.Optimizer, history store.RunRepository, mirrors ...store.RunRepository) *Runner {
	return &Runner{optimizer: optimizer, history: history, mirrors: mirrors}
}

// Run optimizes one instance. Input errors return a nil run. Solver errors
// return the failed run, already saved, together with the error.
func (r *Runner) Run(ctx context.Context, demand []facility.DemandPoint, sites []facility.CandidateSite,
	params facility.Params,
) (*store.Run, error) {
	metrics.SolvesInFlight.Inc()
	defer metrics.SolvesInFlight.Dec()

	started := time.Now()
	run := store.NewRun(params)

	sol, err := r.optimizer.Optimize(ctx, demand, sites, params)
	elapsed := time.Since(started)

	if facility.IsInputError(err) {
		metrics.ObserveSolve(statusRejected, elapsed.Seconds(), 0)

		return nil, err
	}

	run.Solution = sol
	if err != nil {
		run.Error = err.Error()
	}

	nodes := 0
	if sol != nil {
		nodes = sol.Stats.Nodes
	}

	metrics.ObserveSolve(string(run.Status()), elapsed.Seconds(), nodes)

	if r.history != nil {
		if saveErr := r.history.SaveRun(run); saveErr != nil {
			return run, errors.Join(err, fmt.Errorf("saving run %s: %w", run.ID, saveErr))
		}
	}

	for _, m := range r.mirrors {
		if mirrorErr := m.SaveRun(run); mirrorErr != nil {
			log.Printf("Failed to mirror run %s: %v", run.ID, mirrorErr)
		}
	}

	return run, err
}
