// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package milp

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"
)

const (
	integralityTol = 1e-6
	feasibilityTol = 1e-6
)

const (
	DefaultCutRounds    = 4
	DefaultCutsPerRound = 64
)

// errTimeLimit stops a relaxation once the search deadline has passed.
var errTimeLimit = errors.New("milp: time limit reached")

// BranchAndBound is a depth-first LP-based branch-and-bound backend. Lazy
// rows violated by an integral relaxation are always activated; at the
// root, violated lazy rows are also added as cuts for a few rounds before
// branching. Activated rows stay for the rest of the search. The value
// holds only configuration, so it can be shared by concurrent solves.
type BranchAndBound struct {
	// MaxPivots bounds the simplex pivots of a single relaxation; zero picks
	// a limit from the relaxation size.
	MaxPivots int
	// CutRounds bounds how often the root relaxation is re-solved with
	// violated lazy rows; zero means DefaultCutRounds, negative disables it.
	CutRounds int
	// CutsPerRound caps the lazy rows activated at once, most violated
	// first; zero means DefaultCutsPerRound.
	CutsPerRound int
}

// NewBranchAndBound returns the bundled backend.
func NewBranchAndBound() *BranchAndBound {
	return &BranchAndBound{}
}

type boundChange struct {
	v            Var
	lower, upper float64
}

type node struct {
	changes []boundChange
	bound   float64
}

type engine struct {
	m    *Model
	opts Options

	maxPivots    int
	cutRounds    int
	cutsPerRound int

	started  time.Time
	deadline time.Time

	active     []bool
	activeRows []*Row

	incumbent []float64
	incObj    float64

	stack []*node

	nodes  int
	cuts   int
	pivots int
}

// Solve runs the search until optimality, infeasibility, the time limit or
// the context deadline. Context cancellation aborts with the context error.
func (s *BranchAndBound) Solve(ctx context.Context, m *Model, opts Options) (*Result, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model: %w", err)
	}

	e := &engine{
		m:       m,
		opts:    opts.withDefaults(),
		started: time.Now(),
		active:  make([]bool, m.NumRows()),
		incObj:  math.Inf(1),

		maxPivots:    s.MaxPivots,
		cutRounds:    s.CutRounds,
		cutsPerRound: s.CutsPerRound,
	}

	if e.cutRounds == 0 {
		e.cutRounds = DefaultCutRounds
	}

	if e.cutsPerRound <= 0 {
		e.cutsPerRound = DefaultCutsPerRound
	}

	if opts.TimeLimit > 0 {
		e.deadline = e.started.Add(opts.TimeLimit)
	}

	for i := range m.rows {
		if !m.rows[i].Lazy {
			e.activate(i)
		}
	}

	if start, ok := m.Start(); ok {
		if err := m.Check(start, feasibilityTol); err == nil {
			e.incumbent, e.incObj = start, m.Objective(start)
		}
	}

	return e.search(ctx)
}

func (e *engine) activate(i int) {
	e.active[i] = true
	e.activeRows = append(e.activeRows, &e.m.rows[i])
}

func (e *engine) cutoff() float64 {
	if e.incumbent == nil {
		return math.Inf(1)
	}

	return e.incObj - math.Max(e.opts.AbsGap, e.opts.RelGap*math.Abs(e.incObj))
}

func (e *engine) timeUp() bool {
	return !e.deadline.IsZero() && !time.Now().Before(e.deadline)
}

// interrupted reports whether the search has to stop now.
func (e *engine) interrupted(ctx context.Context) error {
	if e.timeUp() {
		return errTimeLimit
	}

	return ctx.Err()
}

// stopped turns an aborted search into its outcome: the time limit and a
// context deadline keep the incumbent, anything else is an error.
func (e *engine) stopped(err error) (*Result, error) {
	if errors.Is(err, errTimeLimit) || errors.Is(err, context.DeadlineExceeded) {
		return e.result(StatusTimeLimit), nil
	}

	return nil, err
}

func (e *engine) search(ctx context.Context) (*Result, error) {
	e.stack = append(e.stack, &node{bound: math.Inf(-1)})

	for len(e.stack) > 0 {
		if err := e.interrupted(ctx); err != nil {
			return e.stopped(err)
		}

		nd := e.stack[len(e.stack)-1]
		e.stack = e.stack[:len(e.stack)-1]

		if nd.bound >= e.cutoff() {
			continue
		}

		e.nodes++

		unbounded, err := e.process(ctx, nd)
		if err != nil {
			// unfinished, so its bound still limits the best bound
			e.stack = append(e.stack, nd)

			return e.stopped(err)
		}

		if unbounded {
			return e.result(StatusUnbounded), nil
		}

		if e.opts.Progress != nil && e.nodes%e.opts.ProgressEvery == 0 {
			e.opts.Progress(e.progress())
		}
	}

	if e.incumbent == nil {
		return e.result(StatusInfeasible), nil
	}

	if e.timeUp() {
		return e.result(StatusTimeLimit), nil
	}

	return e.result(StatusOptimal), nil
}

// process solves the relaxation of a node, separating lazy rows until none
// is violated, then either records an incumbent or pushes two children.
func (e *engine) process(ctx context.Context, nd *node) (bool, error) {
	lower := append([]float64(nil), e.m.lower...)
	upper := append([]float64(nil), e.m.upper...)

	for _, c := range nd.changes {
		lower[c.v], upper[c.v] = c.lower, c.upper
	}

	maxRounds := 0
	if len(nd.changes) == 0 {
		maxRounds = e.cutRounds
	}

	interrupt := func() error { return e.interrupted(ctx) }

	for rounds := 0; ; {
		limit := e.maxPivots
		if limit <= 0 {
			limit = 50*(len(e.activeRows)+len(lower)) + 1000
		}

		lp, err := solveLP(lpProblem{
			cost:  e.m.cost,
			lower: lower,
			upper: upper,
			rows:  e.activeRows,
		}, lpLimits{maxPivots: limit, interrupt: interrupt})
		e.pivots += lp.pivots

		if err != nil {
			return false, fmt.Errorf("solving relaxation at node %d: %w", e.nodes, err)
		}

		switch lp.status {
		case lpInfeasible:
			return false, nil
		case lpUnbounded:
			return true, nil
		}

		if lp.objective >= e.cutoff() {
			return false, nil
		}

		j := e.branchVar(lp.x)
		if j < 0 || rounds < maxRounds {
			if e.separate(lp.x) > 0 {
				if j >= 0 {
					rounds++
				}

				continue
			}
		}

		if j < 0 {
			e.offer(lp.x)

			return false, nil
		}

		v := lp.x[j]
		fl := math.Floor(v)
		down := e.child(nd, boundChange{v: Var(j), lower: lower[j], upper: fl}, lp.objective)
		up := e.child(nd, boundChange{v: Var(j), lower: fl + 1, upper: upper[j]}, lp.objective)

		if v-fl >= 0.5 {
			e.stack = append(e.stack, down, up)
		} else {
			e.stack = append(e.stack, up, down)
		}

		return false, nil
	}
}

func (e *engine) child(parent *node, c boundChange, bound float64) *node {
	changes := make([]boundChange, len(parent.changes), len(parent.changes)+1)
	copy(changes, parent.changes)

	return &node{changes: append(changes, c), bound: bound}
}

// separate activates the lazy rows violated by x, at most cutsPerRound of
// them, most violated first, and returns how many.
func (e *engine) separate(x []float64) int {
	type violation struct {
		row int
		by  float64
	}

	var found []violation

	for i := range e.m.rows {
		if e.active[i] {
			continue
		}

		r := &e.m.rows[i]
		if by := r.Violation(x); by > feasibilityTol*(1+math.Abs(r.RHS)) {
			found = append(found, violation{row: i, by: by})
		}
	}

	if len(found) > e.cutsPerRound {
		slices.SortStableFunc(found, func(a, b violation) int { return cmp.Compare(b.by, a.by) })
		found = found[:e.cutsPerRound]
	}

	for _, v := range found {
		e.activate(v.row)
	}

	e.cuts += len(found)

	return len(found)
}

// branchVar returns the fractional integer variable with the highest
// priority, most fractional first, or -1 if x is integral.
func (e *engine) branchVar(x []float64) int {
	best, bestPrio, bestFrac := -1, 0, 0.0

	for j, v := range x {
		if !e.m.integer[j] {
			continue
		}

		frac := math.Min(v-math.Floor(v), math.Ceil(v)-v)
		if frac <= integralityTol {
			continue
		}

		prio := e.m.priority[j]
		if best < 0 || prio > bestPrio || (prio == bestPrio && frac > bestFrac) {
			best, bestPrio, bestFrac = j, prio, frac
		}
	}

	return best
}

// offer rounds an integral relaxation and keeps it if it improves the incumbent.
func (e *engine) offer(x []float64) {
	sol := make([]float64, len(x))
	for j, v := range x {
		if e.m.integer[j] {
			v = math.Round(v)
		}

		sol[j] = v
	}

	if e.m.Check(sol, feasibilityTol) != nil {
		return
	}

	if obj := e.m.Objective(sol); obj < e.incObj {
		e.incumbent, e.incObj = sol, obj
	}
}

func (e *engine) bestBound() float64 {
	bound := e.incObj
	for _, nd := range e.stack {
		bound = math.Min(bound, nd.bound)
	}

	return bound
}

func (e *engine) progress() Progress {
	return Progress{
		Nodes:        e.nodes,
		Cuts:         e.cuts,
		Incumbent:    e.incObj,
		HasIncumbent: e.incumbent != nil,
		BestBound:    e.bestBound(),
		Elapsed:      time.Since(e.started),
	}
}

func (e *engine) result(status Status) *Result {
	r := &Result{
		Status:     status,
		Nodes:      e.nodes,
		Cuts:       e.cuts,
		Iterations: e.pivots,
		Elapsed:    time.Since(e.started),
		BestBound:  e.bestBound(),
	}

	if e.incumbent != nil && status != StatusUnbounded {
		r.Values = e.incumbent
		r.Objective = e.incObj
	}

	if status == StatusOptimal {
		r.BestBound = e.incObj
	}

	return r
}
