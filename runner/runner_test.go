// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urbanlogistics/depot/facility"
	"github.com/urbanlogistics/depot/milp"
	"github.com/urbanlogistics/depot/store"
)

type failingSolver struct{}

func (failingSolver) Solve(context.Context, *milp.Model, milp.Options) (*milp.Result, error) {
	return nil, errors.New("backend crashed")
}

// MockRunRepository records saved runs and optionally fails.
type MockRunRepository struct {
	saved []*store.Run
	err   error
}

func (m *MockRunRepository) CreateSchema() error { return nil }
func (m *MockRunRepository) SaveRun(run *store.Run) error {
	if m.err != nil {
		return m.err
	}

	m.saved = append(m.saved, run)

	return nil
}
func (m *MockRunRepository) ListRuns(int) ([]*store.RunSummary, error) { return nil, nil }
func (m *MockRunRepository) GetRun(string) (*store.Run, error)         { return nil, store.ErrRunNotFound }

func setupHistory(t *testing.T) store.RunRepository {
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := store.NewSQLRunRepository(db)
	require.NoError(t, repo.CreateSchema())

	return repo
}

func instance() ([]facility.DemandPoint, []facility.CandidateSite) {
	demand := []facility.DemandPoint{
		{ID: "c1", Lat: 41.00, Lon: 29.00, DailyOrders: 10},
		{ID: "c2", Lat: 41.02, Lon: 29.01, DailyOrders: 20},
	}
	sites := []facility.CandidateSite{
		{ID: "D-100", Lat: 41.01, Lon: 29.00, RentCost: 20000, Capacity: 1000, SetupCost: 150000},
	}

	return demand, sites
}

func params() facility.Params {
	p := facility.DefaultParams()
	p.TimeLimit = 10 * time.Second

	return p
}

func quiet(t *testing.T) facility.Option { return facility.WithLogger(t.Logf) }

func TestRun_SavesOptimalRun(t *testing.T) {
	history := setupHistory(t)
	mirror := &MockRunRepository{}
	r := New(facility.NewOptimizer(quiet(t)), history, mirror)

	demand, sites := instance()

	run, err := r.Run(context.Background(), demand, sites, params())
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, facility.StatusOptimal, run.Status())

	stored, err := history.GetRun(run.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Solution)
	assert.InDelta(t, run.Solution.Objective, stored.Solution.Objective, 1e-6)
	assert.Len(t, stored.Solution.Assignments, 2)

	require.Len(t, mirror.saved, 1)
	assert.Equal(t, run.ID, mirror.saved[0].ID)
}

func TestRun_InputErrorIsNotStored(t *testing.T) {
	history := &MockRunRepository{}
	r := New(facility.NewOptimizer(quiet(t)), history)

	demand, sites := instance()
	sites[0].Capacity = 0

	run, err := r.Run(context.Background(), demand, sites, params())
	require.Error(t, err)
	assert.Nil(t, run)
	assert.True(t, facility.IsInputError(err))
	assert.Empty(t, history.saved)
}

func TestRun_SolverErrorIsStoredAsFailed(t *testing.T) {
	history := setupHistory(t)
	r := New(facility.NewOptimizer(quiet(t), facility.WithSolver(failingSolver{})), history)

	demand, sites := instance()

	run, err := r.Run(context.Background(), demand, sites, params())
	require.Error(t, err)
	assert.True(t, facility.IsSolverError(err))
	require.NotNil(t, run)

	stored, getErr := history.GetRun(run.ID)
	require.NoError(t, getErr)
	assert.Equal(t, facility.StatusFailed, stored.Status())
	assert.Contains(t, stored.Error, "backend crashed")
}

func TestRun_MirrorFailureIsNotFatal(t *testing.T) {
	mirror := &MockRunRepository{err: errors.New("connection refused")}
	r := New(facility.NewOptimizer(quiet(t)), nil, mirror)

	demand, sites := instance()

	run, err := r.Run(context.Background(), demand, sites, params())
	require.NoError(t, err)
	assert.Equal(t, facility.StatusOptimal, run.Status())
}

func TestRun_HistoryFailureIsReported(t *testing.T) {
	history := &MockRunRepository{err: errors.New("disk full")}
	r := New(facility.NewOptimizer(quiet(t)), history)

	demand, sites := instance()

	run, err := r.Run(context.Background(), demand, sites, params())
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRun_SolverAndHistoryFailuresAreBothReported(t *testing.T) {
	history := &MockRunRepository{err: errors.New("disk full")}
	r := New(facility.NewOptimizer(quiet(t), facility.WithSolver(failingSolver{})), history)

	demand, sites := instance()

	run, err := r.Run(context.Background(), demand, sites, params())
	require.Error(t, err)
	require.NotNil(t, run)
	assert.True(t, facility.IsSolverError(err))
	assert.Contains(t, err.Error(), "backend crashed")
	assert.Contains(t, err.Error(), "disk full")
}
