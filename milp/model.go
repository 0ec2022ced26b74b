// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

// Package milp holds a backend-neutral mixed-integer linear program and the
// Solver interface used to optimize it, together with a pure Go
// branch-and-bound backend.
package milp

import (
	"errors"
	"fmt"
	"math"
)

// Sense is the relation between a row's activity and its right-hand side.
type Sense int

const (
	LessEqual Sense = iota
	Equal
	GreaterEqual
)

func (s Sense) String() string {
	switch s {
	case LessEqual:
		return "<="
	case Equal:
		return "="
	case GreaterEqual:
		return ">="
	default:
		return fmt.Sprintf("Sense(%d)", int(s))
	}
}

// Var identifies a column of a Model.
type Var int

// Term is a coefficient applied to a variable.
type Term struct {
	Var  Var
	Coef float64
}

// Row is a linear constraint. Lazy rows are part of the model but a backend
// may hold them back until a candidate solution violates them.
type Row struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
	Lazy  bool
}

// Activity returns the left-hand side of the row evaluated at x.
func (r *Row) Activity(x []float64) float64 {
	var sum float64
	for _, t := range r.Terms {
		sum += t.Coef * x[t.Var]
	}

	return sum
}

// Violation returns how much x violates the row, zero when satisfied.
func (r *Row) Violation(x []float64) float64 {
	act := r.Activity(x)

	switch r.Sense {
	case LessEqual:
		return math.Max(0, act-r.RHS)
	case GreaterEqual:
		return math.Max(0, r.RHS-act)
	default:
		return math.Abs(act - r.RHS)
	}
}

// Model is a minimization problem over bounded variables. It is built once
// per solve and must not be modified while a Solver is using it.
type Model struct {
	Name string

	names    []string
	cost     []float64
	lower    []float64
	upper    []float64
	integer  []bool
	priority []int
	rows     []Row
	start    map[Var]float64
}

// NewModel returns an empty model.
func NewModel(name string) *Model {
	return &Model{Name: name}
}

// AddVar appends a variable with the given bounds and objective coefficient.
func (m *Model) AddVar(name string, lower, upper, cost float64, integer bool) Var {
	m.names = append(m.names, name)
	m.cost = append(m.cost, cost)
	m.lower = append(m.lower, lower)
	m.upper = append(m.upper, upper)
	m.integer = append(m.integer, integer)
	m.priority = append(m.priority, 0)

	return Var(len(m.names) - 1)
}

// AddBinary appends a {0,1} variable.
func (m *Model) AddBinary(name string, cost float64) Var {
	return m.AddVar(name, 0, 1, cost, true)
}

// AddRow appends a constraint and returns its index.
func (m *Model) AddRow(r Row) int {
	m.rows = append(m.rows, r)

	return len(m.rows) - 1
}

// SetPriority sets the branching priority of v. Higher priorities are
// branched on first.
func (m *Model) SetPriority(v Var, priority int) {
	m.priority[v] = priority
}

// SetStart records a value of v for the MIP start. Variables without a start
// value default to their lower bound.
func (m *Model) SetStart(v Var, value float64) {
	if m.start == nil {
		m.start = make(map[Var]float64)
	}

	m.start[v] = value
}

// Start returns the full MIP start vector, if any value was set.
func (m *Model) Start() ([]float64, bool) {
	if len(m.start) == 0 {
		return nil, false
	}

	x := make([]float64, len(m.names))
	copy(x, m.lower)

	for v, val := range m.start {
		x[v] = val
	}

	return x, true
}

func (m *Model) NumVars() int { return len(m.names) }

func (m *Model) NumRows() int { return len(m.rows) }

// NumLazyRows returns how many rows are flagged lazy.
func (m *Model) NumLazyRows() int {
	n := 0
	for i := range m.rows {
		if m.rows[i].Lazy {
			n++
		}
	}

	return n
}

func (m *Model) VarName(v Var) string { return m.names[v] }

func (m *Model) Cost(v Var) float64 { return m.cost[v] }

func (m *Model) Bounds(v Var) (float64, float64) { return m.lower[v], m.upper[v] }

func (m *Model) IsInteger(v Var) bool { return m.integer[v] }

// Row returns a pointer to the i-th row.
func (m *Model) Row(i int) *Row { return &m.rows[i] }

// Objective evaluates the objective at x.
func (m *Model) Objective(x []float64) float64 {
	var sum float64
	for j, c := range m.cost {
		sum += c * x[j]
	}

	return sum
}

// Validate checks the model is well formed.
func (m *Model) Validate() error {
	var errs []error

	for j := range m.names {
		switch {
		case math.IsNaN(m.cost[j]) || math.IsInf(m.cost[j], 0):
			errs = append(errs, fmt.Errorf("variable %q has non-finite cost", m.names[j]))
		case math.IsNaN(m.lower[j]) || math.IsInf(m.lower[j], 0):
			errs = append(errs, fmt.Errorf("variable %q needs a finite lower bound", m.names[j]))
		case math.IsNaN(m.upper[j]) || m.upper[j] < m.lower[j]:
			errs = append(errs, fmt.Errorf("variable %q has bounds [%v, %v]", m.names[j], m.lower[j], m.upper[j]))
		}
	}

	for i := range m.rows {
		r := &m.rows[i]
		if math.IsNaN(r.RHS) || math.IsInf(r.RHS, 0) {
			errs = append(errs, fmt.Errorf("row %q has non-finite rhs", r.Name))
		}

		for _, t := range r.Terms {
			if t.Var < 0 || int(t.Var) >= len(m.names) {
				errs = append(errs, fmt.Errorf("row %q references unknown variable %d", r.Name, t.Var))
			} else if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
				errs = append(errs, fmt.Errorf("row %q has non-finite coefficient for %q", r.Name, m.names[t.Var]))
			}
		}
	}

	for v := range m.start {
		if v < 0 || int(v) >= len(m.names) {
			errs = append(errs, fmt.Errorf("start references unknown variable %d", v))
		}
	}

	return errors.Join(errs...)
}

// Check verifies that x satisfies bounds, integrality and every row,
// lazy ones included, within tol.
func (m *Model) Check(x []float64, tol float64) error {
	if len(x) != len(m.names) {
		return fmt.Errorf("solution has %d values, model has %d variables", len(x), len(m.names))
	}

	for j, v := range x {
		if v < m.lower[j]-tol || v > m.upper[j]+tol {
			return fmt.Errorf("variable %q = %v outside [%v, %v]", m.names[j], v, m.lower[j], m.upper[j])
		}

		if m.integer[j] && math.Abs(v-math.Round(v)) > tol {
			return fmt.Errorf("variable %q = %v is not integral", m.names[j], v)
		}
	}

	for i := range m.rows {
		r := &m.rows[i]
		if viol := r.Violation(x); viol > tol*(1+math.Abs(r.RHS)) {
			return fmt.Errorf("row %q violated by %v", r.Name, viol)
		}
	}

	return nil
}
