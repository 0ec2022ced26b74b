// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package facility

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urbanlogistics/depot/milp"
)

type stubSolver struct {
	result *milp.Result
	err    error
	opts   milp.Options
}

func (s *stubSolver) Solve(_ context.Context, _ *milp.Model, opts milp.Options) (*milp.Result, error) {
	s.opts = opts

	return s.result, s.err
}

func TestOptimize_ThreePointScenario(t *testing.T) {
	demand, sites := threePointInstance()

	sol, err := NewOptimizer(quiet(t)).Optimize(context.Background(), demand, sites, testParams())
	require.NoError(t, err)

	assert.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 10000+1*5*10+3*5*10, sol.Objective, 1e-6)
	assert.InDelta(t, 10000, sol.RentCost, 1e-9)
	assert.InDelta(t, 200, sol.TransportCost, 1e-6)
	assert.Zero(t, sol.Gap)

	require.Len(t, sol.Sites, 1)
	assert.Equal(t, "D-100", sol.Sites[0].ID)
	assert.Equal(t, 20, sol.Sites[0].AssignedOrders)
	assert.Equal(t, 2, sol.Sites[0].AssignedPoints)
	assert.InDelta(t, 0.02, sol.Sites[0].Utilization(), 1e-12)

	require.Len(t, sol.Assignments, 2)
	assert.Equal(t, "c1", sol.Assignments[0].CustomerID)
	assert.Equal(t, "D-100", sol.Assignments[0].AssignedSiteID)
	assert.InDelta(t, 1, sol.Assignments[0].DistanceKm, 1e-9)
	assert.Equal(t, "c2", sol.Assignments[1].CustomerID)
	assert.InDelta(t, 3, sol.Assignments[1].DistanceKm, 1e-9)

	assert.Equal(t, []UnservedPoint{{CustomerID: "c3", Reason: "no candidate site within 8.0 km"}}, sol.Unserved)
	assert.Equal(t, 3, sol.Stats.DemandPoints)
	assert.Equal(t, 2, sol.Stats.AdmissiblePairs)
}

func TestOptimize_CapacityForcesLargeSite(t *testing.T) {
	var demand []DemandPoint
	for i := range 10 {
		demand = append(demand, DemandPoint{ID: string(rune('a' + i)), Lat: north(0.2 * float64(i)), DailyOrders: 10})
	}

	sites := []CandidateSite{
		{ID: "small", Lat: north(0.5), RentCost: 100, Capacity: 5},
		{ID: "large", Lat: north(1.5), RentCost: 5000, Capacity: 1000},
	}

	sol, err := NewOptimizer(quiet(t)).Optimize(context.Background(), demand, sites, testParams())
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)

	require.Len(t, sol.Sites, 1)
	assert.Equal(t, "large", sol.Sites[0].ID)
	assert.Equal(t, 100, sol.Sites[0].AssignedOrders)

	require.Len(t, sol.Assignments, 10)
	for _, a := range sol.Assignments {
		assert.Equal(t, "large", a.AssignedSiteID)
	}
}

func TestOptimize_Infeasible(t *testing.T) {
	tests := []struct {
		name     string
		demand   []DemandPoint
		sites    []CandidateSite
		maxSites int
	}{
		{
			name: "capacity",
			demand: []DemandPoint{
				{ID: "a", DailyOrders: 60},
				{ID: "b", Lat: north(1), DailyOrders: 60},
			},
			sites:    []CandidateSite{{ID: "s", RentCost: 1, Capacity: 100}},
			maxSites: 5,
		},
		{
			name: "cardinality",
			demand: []DemandPoint{
				{ID: "a", DailyOrders: 10},
				{ID: "b", Lat: north(50), DailyOrders: 10},
			},
			sites: []CandidateSite{
				{ID: "s1", Lat: north(1), RentCost: 1, Capacity: 100},
				{ID: "s2", Lat: north(49), RentCost: 1, Capacity: 100},
			},
			maxSites: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := testParams()
			params.MaxSitesToOpen = tt.maxSites

			sol, err := NewOptimizer(quiet(t)).Optimize(context.Background(), tt.demand, tt.sites, params)
			require.NoError(t, err)
			assert.Equal(t, StatusInfeasible, sol.Status)
			assert.False(t, sol.HasPlan())
			assert.Empty(t, sol.Sites)
			assert.Empty(t, sol.Assignments)
		})
	}
}

func TestOptimize_PlanInvariants(t *testing.T) {
	demand, sites := randomInstance(42, 16, 6)

	for _, k := range []int{1, 2, 3} {
		params := testParams()
		params.MaxSitesToOpen = k

		sol, err := NewOptimizer(quiet(t)).Optimize(context.Background(), demand, sites, params)
		require.NoError(t, err)
		require.Equal(t, StatusOptimal, sol.Status, "k=%d", k)

		assert.LessOrEqual(t, len(sol.Sites), k)

		opened := make(map[string]SelectedSite)
		for _, s := range sol.Sites {
			opened[s.ID] = s
		}

		served := make(map[string]int)
		load := make(map[string]int)
		orders := make(map[string]int)

		for _, d := range demand {
			orders[d.ID] = d.DailyOrders
		}

		var total float64
		for _, a := range sol.Assignments {
			served[a.CustomerID]++
			load[a.AssignedSiteID] += orders[a.CustomerID]
			total += a.TransportCost

			assert.Contains(t, opened, a.AssignedSiteID)
			assert.LessOrEqual(t, a.DistanceKm, params.MaxRangeKm)
		}

		for _, d := range demand {
			assert.Equal(t, 1, served[d.ID], "customer %s", d.ID)
		}

		for id, s := range opened {
			assert.LessOrEqual(t, load[id], s.Capacity)
			assert.Equal(t, load[id], s.AssignedOrders)
			total += s.RentCost
		}

		assert.InDelta(t, sol.Objective, total, 1e-6*math.Max(1, total))
	}
}

func TestOptimize_ObjectiveMonotoneInSiteCap(t *testing.T) {
	demand, sites := randomInstance(17, 14, 5)
	prev := math.Inf(1)

	for k := 1; k <= 4; k++ {
		params := testParams()
		params.MaxSitesToOpen = k

		sol, err := NewOptimizer(quiet(t)).Optimize(context.Background(), demand, sites, params)
		require.NoError(t, err)
		require.Equal(t, StatusOptimal, sol.Status)

		assert.LessOrEqual(t, sol.Objective, prev+1e-6*math.Max(1, prev), "k=%d", k)
		prev = sol.Objective
	}
}

// enumerate returns the optimum of a small instance by trying every
// assignment of demand points to admissible sites. Sites without customers
// stay closed.
func enumerate(demand []DemandPoint, sites []CandidateSite, params Params) (float64, bool) {
	adm := FilterPairs(demand, sites, params.MaxRangeKm)
	best, found := math.Inf(1), false
	choice := make([]int, len(demand))

	var rec func(i int)
	rec = func(i int) {
		if i < len(demand) {
			for _, k := range adm.ByDemand[i] {
				choice[i] = k
				rec(i + 1)
			}

			return
		}

		load := make([]int, len(sites))
		used := make([]bool, len(sites))
		cost := 0.0

		for n, k := range choice {
			p := adm.Pairs[k]
			load[p.Site] += demand[n].DailyOrders
			used[p.Site] = true
			cost += TransportCost(p.DistanceKm, demand[n].DailyOrders, params)
		}

		opened := 0
		for j := range sites {
			if !used[j] {
				continue
			}

			if load[j] > sites[j].Capacity {
				return
			}

			opened++
			cost += sites[j].RentCost
		}

		if opened <= params.MaxSitesToOpen && cost < best {
			best, found = cost, true
		}
	}
	rec(0)

	return best, found
}

func TestOptimize_MatchesEnumeration(t *testing.T) {
	for _, seed := range []uint64{2, 8, 13, 21} {
		demand, sites := randomInstance(seed, 6, 3)
		params := testParams()
		params.MaxSitesToOpen = 2

		want, ok := enumerate(demand, sites, params)
		require.True(t, ok)

		sol, err := NewOptimizer(quiet(t)).Optimize(context.Background(), demand, sites, params)
		require.NoError(t, err)
		require.Equal(t, StatusOptimal, sol.Status)
		assert.InDelta(t, want, sol.Objective, 1e-6*want, "seed %d", seed)
	}
}

func TestOptimize_RejectUnservable(t *testing.T) {
	demand, sites := threePointInstance()
	params := testParams()
	params.Unservable = UnservableReject

	_, err := NewOptimizer(quiet(t)).Optimize(context.Background(), demand, sites, params)
	require.Error(t, err)
	assert.True(t, IsInputError(err))

	errs := InputErrors(err)
	require.Len(t, errs, 1)
	assert.Equal(t, "c3", errs[0].Row)
	assert.Equal(t, TableDemand, errs[0].Table)
}

func TestOptimize_InvalidInput(t *testing.T) {
	demand := []DemandPoint{
		{ID: "a", Lat: 41, Lon: 29, DailyOrders: 1},
		{ID: "a", Lat: 41, Lon: 29, DailyOrders: -1},
	}
	sites := []CandidateSite{{ID: "s", Lat: 91, Lon: 29, Capacity: 0}}
	params := testParams()
	params.MaxRangeKm = 0

	_, err := NewOptimizer(quiet(t)).Optimize(context.Background(), demand, sites, params)
	require.Error(t, err)
	assert.True(t, IsInputError(err))
	assert.False(t, IsSolverError(err))

	var columns []string
	for _, e := range InputErrors(err) {
		columns = append(columns, e.Table+"."+e.Column)
	}

	assert.ElementsMatch(t, []string{
		"params.max_range_km",
		"demand.id",
		"demand.daily_orders",
		"sites.lat",
		"sites.capacity",
	}, columns)
}

func TestOptimize_SolverOutcomes(t *testing.T) {
	demand, sites := threePointInstance()

	t.Run("time limited with incumbent", func(t *testing.T) {
		stub := &stubSolver{result: &milp.Result{Status: milp.StatusTimeLimit, BestBound: 9000}}

		params := testParams()
		sol, err := NewOptimizer(quiet(t), WithSolver(&startSolver{stub})).Optimize(context.Background(), demand, sites, params)
		require.NoError(t, err)
		assert.Equal(t, StatusTimeLimited, sol.Status)
		assert.True(t, sol.HasPlan())
		assert.Len(t, sol.Sites, 1)
		assert.Equal(t, params.TimeLimit, stub.opts.TimeLimit)
	})

	t.Run("time limited without incumbent", func(t *testing.T) {
		stub := &stubSolver{result: &milp.Result{Status: milp.StatusTimeLimit}}

		_, err := NewOptimizer(quiet(t), WithSolver(stub)).Optimize(context.Background(), demand, sites, testParams())
		require.Error(t, err)
		assert.True(t, IsNoSolutionError(err))
		assert.True(t, IsSolverError(err))
	})

	t.Run("backend failure", func(t *testing.T) {
		boom := errors.New("boom")
		stub := &stubSolver{err: boom}

		_, err := NewOptimizer(quiet(t), WithSolver(stub)).Optimize(context.Background(), demand, sites, testParams())
		require.Error(t, err)
		assert.True(t, IsSolverError(err))
		assert.False(t, IsNoSolutionError(err))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := NewOptimizer(quiet(t)).Optimize(ctx, demand, sites, testParams())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

// startSolver answers with the MIP start under the wrapped stub's status.
type startSolver struct {
	stub *stubSolver
}

func (s *startSolver) Solve(_ context.Context, m *milp.Model, opts milp.Options) (*milp.Result, error) {
	s.stub.opts = opts

	start, ok := m.Start()
	if !ok {
		return nil, errors.New("no start")
	}

	res := *s.stub.result
	res.Values = start
	res.Objective = m.Objective(start)

	return &res, nil
}

func TestOptimize_TimeLimitBeforeRootKeepsFiniteGap(t *testing.T) {
	demand, sites := threePointInstance()

	stub := &stubSolver{result: &milp.Result{Status: milp.StatusTimeLimit, BestBound: math.Inf(-1)}}

	sol, err := NewOptimizer(quiet(t), WithSolver(&startSolver{stub})).Optimize(context.Background(), demand, sites, testParams())
	require.NoError(t, err)
	require.Equal(t, StatusTimeLimited, sol.Status)
	assert.Zero(t, sol.BestBound)
	assert.InDelta(t, 1.0, sol.Gap, 1e-12)
}
