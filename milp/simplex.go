// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package milp

import (
	"errors"
	"math"
)

// ErrIterationLimit is returned when an LP relaxation needs more pivots than allowed.
var ErrIterationLimit = errors.New("milp: simplex iteration limit reached")

const (
	pivotTol   = 1e-9
	ratioTie   = 1e-12
	blandAfter = 50

	// pollEvery is how many pivots pass between interrupt checks.
	pollEvery = 16
	// refreshEvery is how many pivots pass between recomputing basic values
	// and reduced costs from the basis inverse.
	refreshEvery = 128
)

type lpStatus int

const (
	lpOptimal lpStatus = iota
	lpInfeasible
	lpUnbounded
)

// lpProblem is a relaxation: minimize cost·x over rows with lower <= x <= upper.
type lpProblem struct {
	cost  []float64
	lower []float64
	upper []float64
	rows  []*Row
}

// lpLimits bounds one relaxation. A non-nil error from interrupt aborts the
// solve and is returned as is.
type lpLimits struct {
	maxPivots int
	interrupt func() error
}

type lpSolution struct {
	status    lpStatus
	x         []float64
	objective float64
	pivots    int
}

// column is a sparse constraint column.
type column struct {
	rows []int
	vals []float64
}

func (c *column) add(row int, v float64) {
	c.rows = append(c.rows, row)
	c.vals = append(c.vals, v)
}

func (c *column) dot(v []float64) float64 {
	var sum float64
	for k, i := range c.rows {
		sum += v[i] * c.vals[k]
	}

	return sum
}

// simplex is a revised bounded-variable primal simplex over sparse columns
// with an explicit dense basis inverse. Nonbasic columns sit at zero or at
// their upper bound, basic values are kept in xB. Each pivot costs
// O(m² + nnz), so a relaxation with thousands of columns stays cheap as
// long as few rows are active.
type simplex struct {
	m, n     int
	cols     []column
	b        []float64
	binv     []float64 // m rows of m columns
	xB       []float64
	basis    []int
	position []int // row of a basic column, -1 otherwise
	ub       []float64
	atUpper  []bool
	cost     []float64
	d        []float64 // reduced costs
	alpha    []float64 // entering column in terms of the basis
	y        []float64 // duals
	optTol   float64
	pivots   int
	lim      lpLimits
}

// solveLP runs a two phase bounded primal simplex. Variables are shifted so
// every lower bound becomes zero.
func solveLP(p lpProblem, lim lpLimits) (lpSolution, error) {
	nStruct := len(p.cost)
	shiftedUB := make([]float64, nStruct)

	for j := range nStruct {
		u := p.upper[j] - p.lower[j]
		if u < -1e-9 {
			return lpSolution{status: lpInfeasible}, nil
		}

		shiftedUB[j] = math.Max(u, 0)
	}

	mRows := len(p.rows)
	rhs := make([]float64, mRows)
	sign := make([]float64, mRows)
	senses := make([]Sense, mRows)
	nSlack, nArt := 0, 0

	for i, r := range p.rows {
		b := r.RHS
		for _, term := range r.Terms {
			b -= term.Coef * p.lower[term.Var]
		}

		sign[i], senses[i] = 1, r.Sense
		if b < 0 {
			sign[i], b = -1, -b

			switch r.Sense {
			case LessEqual:
				senses[i] = GreaterEqual
			case GreaterEqual:
				senses[i] = LessEqual
			}
		}

		rhs[i] = b

		switch senses[i] {
		case LessEqual:
			nSlack++
		case GreaterEqual:
			nSlack++
			nArt++
		default:
			nArt++
		}
	}

	n := nStruct + nSlack + nArt
	s := &simplex{
		m:        mRows,
		n:        n,
		cols:     make([]column, n),
		b:        rhs,
		binv:     make([]float64, mRows*mRows),
		xB:       append([]float64(nil), rhs...),
		basis:    make([]int, mRows),
		position: make([]int, n),
		ub:       make([]float64, n),
		atUpper:  make([]bool, n),
		d:        make([]float64, n),
		alpha:    make([]float64, mRows),
		y:        make([]float64, mRows),
		lim:      lim,
	}

	for j := range s.position {
		s.position[j] = -1
	}

	copy(s.ub, shiftedUB)

	for j := nStruct; j < n; j++ {
		s.ub[j] = math.Inf(1)
	}

	isArt := make([]bool, n)
	slack, art := nStruct, nStruct+nSlack

	for i, r := range p.rows {
		for _, term := range r.Terms {
			s.cols[term.Var].add(i, sign[i]*term.Coef)
		}

		s.binv[i*mRows+i] = 1

		switch senses[i] {
		case LessEqual:
			s.cols[slack].add(i, 1)
			s.setBasic(i, slack)
			slack++
		case GreaterEqual:
			s.cols[slack].add(i, -1)
			slack++
			s.cols[art].add(i, 1)
			isArt[art] = true
			s.setBasic(i, art)
			art++
		default:
			s.cols[art].add(i, 1)
			isArt[art] = true
			s.setBasic(i, art)
			art++
		}
	}

	rhsScale := 1.0
	for _, b := range rhs {
		rhsScale = math.Max(rhsScale, b)
	}

	if nArt > 0 {
		phase1 := make([]float64, n)
		for j := range n {
			if isArt[j] {
				phase1[j] = 1
			}
		}

		s.optTol = 1e-9
		s.price(phase1)

		status, err := s.run()
		if err != nil {
			return lpSolution{pivots: s.pivots}, err
		}

		if status == lpUnbounded {
			return lpSolution{pivots: s.pivots}, errors.New("milp: phase one reported unbounded")
		}

		var infeasibility float64
		for i, j := range s.basis {
			if isArt[j] {
				infeasibility += s.xB[i]
			}
		}

		if infeasibility > 1e-9*rhsScale {
			return lpSolution{status: lpInfeasible, pivots: s.pivots}, nil
		}

		for j := range n {
			if isArt[j] {
				s.ub[j] = 0
			}
		}
	}

	phase2 := make([]float64, n)
	costScale := 1.0

	for j, c := range p.cost {
		phase2[j] = c
		costScale = math.Max(costScale, math.Abs(c))
	}

	s.optTol = 1e-9 * costScale
	s.price(phase2)

	status, err := s.run()
	if err != nil {
		return lpSolution{pivots: s.pivots}, err
	}

	if status == lpUnbounded {
		return lpSolution{status: lpUnbounded, pivots: s.pivots}, nil
	}

	x := make([]float64, nStruct)
	for j := range nStruct {
		var v float64

		switch {
		case s.position[j] >= 0:
			v = math.Min(math.Max(s.xB[s.position[j]], 0), s.ub[j])
		case s.atUpper[j]:
			v = s.ub[j]
		}

		x[j] = p.lower[j] + v
	}

	var obj float64
	for j, c := range p.cost {
		obj += c * x[j]
	}

	return lpSolution{status: lpOptimal, x: x, objective: obj, pivots: s.pivots}, nil
}

func (s *simplex) setBasic(i, j int) {
	s.basis[i] = j
	s.position[j] = i
}

// price sets the cost vector and computes duals and reduced costs for the
// current basis.
func (s *simplex) price(c []float64) {
	s.cost = c
	clear(s.y)

	for i, b := range s.basis {
		cb := c[b]
		if cb == 0 {
			continue
		}

		for k, v := range s.binv[i*s.m : (i+1)*s.m] {
			if v != 0 {
				s.y[k] += cb * v
			}
		}
	}

	for j := range s.n {
		if s.position[j] >= 0 {
			s.d[j] = 0

			continue
		}

		s.d[j] = c[j] - s.cols[j].dot(s.y)
	}
}

// refresh recomputes basic values and reduced costs from the basis inverse,
// dropping the drift of incremental updates.
func (s *simplex) refresh() {
	r := append([]float64(nil), s.b...)

	for j := range s.n {
		if s.position[j] >= 0 || !s.atUpper[j] {
			continue
		}

		c := &s.cols[j]
		for k, i := range c.rows {
			r[i] -= c.vals[k] * s.ub[j]
		}
	}

	for i := range s.m {
		var v float64
		for k, a := range s.binv[i*s.m : (i+1)*s.m] {
			if a != 0 {
				v += a * r[k]
			}
		}

		s.xB[i] = v
	}

	s.price(s.cost)
}

// ftran expresses column q in terms of the basis.
func (s *simplex) ftran(q int) {
	clear(s.alpha)

	c := &s.cols[q]
	for k, row := range c.rows {
		v := c.vals[k]
		for i := range s.m {
			if a := s.binv[i*s.m+row]; a != 0 {
				s.alpha[i] += a * v
			}
		}
	}
}

// entering picks an improving nonbasic column and the direction it moves.
func (s *simplex) entering(bland bool) (int, float64) {
	best, dir, score := -1, 0.0, 0.0

	for j := range s.n {
		if s.position[j] >= 0 || s.ub[j] <= 0 {
			continue
		}

		dj := s.d[j]

		var sc, move float64

		switch {
		case !s.atUpper[j] && dj < -s.optTol:
			sc, move = -dj, 1
		case s.atUpper[j] && dj > s.optTol:
			sc, move = dj, -1
		default:
			continue
		}

		if bland {
			return j, move
		}

		if sc > score {
			best, dir, score = j, move, sc
		}
	}

	return best, dir
}

func (s *simplex) run() (lpStatus, error) {
	degenerate := 0

	for {
		if s.pivots >= s.lim.maxPivots {
			return 0, ErrIterationLimit
		}

		if s.lim.interrupt != nil && s.pivots%pollEvery == 0 {
			if err := s.lim.interrupt(); err != nil {
				return 0, err
			}
		}

		if s.pivots > 0 && s.pivots%refreshEvery == 0 {
			s.refresh()
		}

		q, dir := s.entering(degenerate > blandAfter)
		if q < 0 {
			return lpOptimal, nil
		}

		s.ftran(q)

		theta := s.ub[q]
		leave := -1
		leaveToUpper := false

		for i := range s.m {
			alpha := dir * s.alpha[i]

			var ratio float64

			b := s.basis[i]

			switch {
			case alpha > pivotTol:
				ratio = math.Max(s.xB[i], 0) / alpha
			case alpha < -pivotTol && !math.IsInf(s.ub[b], 1):
				ratio = math.Max(s.ub[b]-s.xB[i], 0) / -alpha
			default:
				continue
			}

			if ratio < theta-ratioTie || (leave >= 0 && math.Abs(ratio-theta) <= ratioTie && b < s.basis[leave]) {
				theta, leave, leaveToUpper = ratio, i, alpha < 0
			}
		}

		if math.IsInf(theta, 1) {
			return lpUnbounded, nil
		}

		if theta <= ratioTie {
			degenerate++
		} else {
			degenerate = 0
		}

		s.pivots++

		if leave < 0 {
			for i, a := range s.alpha {
				if a != 0 {
					s.xB[i] -= dir * theta * a
				}
			}

			s.atUpper[q] = !s.atUpper[q]

			continue
		}

		entering := dir * theta
		if s.atUpper[q] {
			entering += s.ub[q]
		}

		for i, a := range s.alpha {
			if i != leave && a != 0 {
				s.xB[i] -= dir * theta * a
			}
		}

		out := s.basis[leave]
		s.position[out] = -1
		s.atUpper[out] = leaveToUpper
		s.xB[leave] = entering
		s.atUpper[q] = false
		s.setBasic(leave, q)
		s.pivot(leave, q)
	}
}

// pivot updates the basis inverse and the reduced costs after q replaced
// the column basic in row r. alpha still holds column q before the change.
func (s *simplex) pivot(r, q int) {
	pr := s.binv[r*s.m : (r+1)*s.m]
	inv := 1 / s.alpha[r]

	for k := range pr {
		pr[k] *= inv
	}

	for i, f := range s.alpha {
		if i == r || f == 0 {
			continue
		}

		row := s.binv[i*s.m : (i+1)*s.m]
		for k, v := range pr {
			if v != 0 {
				row[k] -= f * v
			}
		}
	}

	if dq := s.d[q]; dq != 0 {
		for j := range s.n {
			if s.position[j] >= 0 || s.ub[j] <= 0 {
				continue
			}

			if a := s.cols[j].dot(pr); a != 0 {
				s.d[j] -= dq * a
			}
		}
	}

	s.d[q] = 0
}
