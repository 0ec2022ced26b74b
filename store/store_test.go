// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urbanlogistics/depot/facility"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db
}

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDriver(t *testing.T) {
	assert.Equal(t, DriverDuckDB, Driver(""))
	assert.Equal(t, DriverDuckDB, Driver("/tmp/depot.duckdb"))
	assert.Equal(t, DriverPostgres, Driver("postgres://user@localhost/depot"))
	assert.Equal(t, DriverPostgres, Driver("postgresql://localhost/depot?sslmode=disable"))
}

func TestLoadDemandCSV(t *testing.T) {
	db := setupTestDB(t)
	path := writeFile(t, "demand.csv", "ID, Lat ,LON,Daily Orders,district\n"+
		"c1,40.99,29.08,12,Kadıköy\n"+
		"c2, 41.01 ,29.10,30,Üsküdar\n")

	points, err := LoadDemandCSV(db, path)
	require.NoError(t, err)

	expected := []facility.DemandPoint{
		{ID: "c1", Lat: 40.99, Lon: 29.08, DailyOrders: 12},
		{ID: "c2", Lat: 41.01, Lon: 29.10, DailyOrders: 30},
	}
	if diff := cmp.Diff(expected, points); diff != "" {
		t.Errorf("LoadDemandCSV() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDemandCSV_MissingColumn(t *testing.T) {
	db := setupTestDB(t)
	path := writeFile(t, "demand.csv", "id,lat,lon\nc1,40.99,29.08\n")

	_, err := LoadDemandCSV(db, path)
	require.Error(t, err)

	inputErrs := facility.InputErrors(err)
	require.Len(t, inputErrs, 1)
	assert.Equal(t, facility.TableDemand, inputErrs[0].Table)
	assert.Equal(t, "daily_orders", inputErrs[0].Column)
	assert.Equal(t, "missing column", inputErrs[0].Message)
}

func TestLoadDemandCSV_BadValues(t *testing.T) {
	db := setupTestDB(t)
	path := writeFile(t, "demand.csv", "id,lat,lon,daily_orders\n"+
		"c1,north,29.08,12\n"+
		"c2,41.01,29.10,2.5\n"+
		",41.02,29.11,\n")

	_, err := LoadDemandCSV(db, path)
	require.Error(t, err)
	assert.True(t, facility.IsInputError(err))

	got := make(map[string]string)
	for _, e := range facility.InputErrors(err) {
		got[e.Row+"/"+e.Column] = e.Message
	}

	assert.Equal(t, map[string]string{
		"c1/lat":          `not a number: "north"`,
		"c2/daily_orders": `not an integer: "2.5"`,
		"#3/daily_orders": "missing value",
	}, got)
}

func TestLoadDemandCSV_MissingFile(t *testing.T) {
	db := setupTestDB(t)

	_, err := LoadDemandCSV(db, filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.True(t, facility.IsInputError(err))
}

func TestLoadSitesCSV(t *testing.T) {
	db := setupTestDB(t)
	path := writeFile(t, "sites.csv", "Site ID,lat,lon,Rent Cost,capacity,setup_cost\n"+
		"D-100,40.98,29.05,45000,2000,150000\n")

	sites, err := LoadSitesCSV(db, path)
	require.NoError(t, err)

	expected := []facility.CandidateSite{
		{ID: "D-100", Lat: 40.98, Lon: 29.05, RentCost: 45000, Capacity: 2000, SetupCost: 150000},
	}
	if diff := cmp.Diff(expected, sites); diff != "" {
		t.Errorf("LoadSitesCSV() mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveAndExportInputs(t *testing.T) {
	db := setupTestDB(t)
	dir := t.TempDir()

	points := []facility.DemandPoint{{ID: "c1", Lat: 41, Lon: 29, DailyOrders: 7}}
	sites := []facility.CandidateSite{{ID: "D-100", Lat: 41.01, Lon: 29.02, RentCost: 30000, Capacity: 1000, SetupCost: 200000}}

	require.NoError(t, SaveDemand(db, points))
	require.NoError(t, SaveSites(db, sites))
	require.NoError(t, ExportDemandCSV(db, filepath.Join(dir, "demand.csv")))
	require.NoError(t, ExportSitesCSV(db, filepath.Join(dir, "sites.csv")))

	reloaded, err := LoadDemandCSV(db, filepath.Join(dir, "demand.csv"))
	require.NoError(t, err)
	assert.Equal(t, points, reloaded)

	reloadedSites, err := LoadSitesCSV(db, filepath.Join(dir, "sites.csv"))
	require.NoError(t, err)
	assert.Equal(t, sites, reloadedSites)
}

func sampleRun() *Run {
	run := NewRun(facility.DefaultParams())
	run.CreatedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run.Solution = &facility.Solution{
		Status:        facility.StatusOptimal,
		Objective:     10200,
		BestBound:     10200,
		RentCost:      10000,
		TransportCost: 200,
		Sites: []facility.SelectedSite{{
			CandidateSite:  facility.CandidateSite{ID: "D-100", Lat: 41, Lon: 29, RentCost: 10000, Capacity: 1000, SetupCost: 150000},
			AssignedPoints: 2,
			AssignedOrders: 20,
		}},
		Assignments: []facility.Assignment{
			{CustomerID: "c1", AssignedSiteID: "D-100", DistanceKm: 1, DailyOrders: 10, TransportCost: 50},
			{CustomerID: "c2", AssignedSiteID: "D-100", DistanceKm: 3, DailyOrders: 10, TransportCost: 150},
		},
		Unserved: []facility.UnservedPoint{{CustomerID: "c3", Reason: "no candidate site within 8.0 km"}},
		Stats:    facility.Stats{DemandPoints: 3, CandidateSites: 1, AdmissiblePairs: 2, Nodes: 1, Elapsed: 12 * time.Millisecond},
	}

	return run
}

func TestSQLRunRepository_SaveAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLRunRepository(db)
	require.NoError(t, repo.CreateSchema())

	run := sampleRun()
	require.NoError(t, repo.SaveRun(run))

	got, err := repo.GetRun(run.ID)
	require.NoError(t, err)

	assert.True(t, run.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, run.Params.MaxRangeKm, got.Params.MaxRangeKm)
	assert.Equal(t, run.Params.MaxSitesToOpen, got.Params.MaxSitesToOpen)
	assert.Equal(t, run.Params.TimeLimit, got.Params.TimeLimit)

	require.NotNil(t, got.Solution)
	assert.Equal(t, facility.StatusOptimal, got.Solution.Status)
	assert.InDelta(t, 10200, got.Solution.Objective, 1e-9)
	assert.Equal(t, run.Solution.Sites, got.Solution.Sites)
	assert.Equal(t, run.Solution.Assignments, got.Solution.Assignments)
	assert.Equal(t, run.Solution.Unserved, got.Solution.Unserved)
	assert.Equal(t, 2, got.Solution.Stats.AdmissiblePairs)
}

func TestSQLRunRepository_FailedRun(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLRunRepository(db)
	require.NoError(t, repo.CreateSchema())

	run := NewRun(facility.DefaultParams())
	run.Error = "solver failed: time limit reached before any feasible solution"
	require.NoError(t, repo.SaveRun(run))

	got, err := repo.GetRun(run.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Solution)
	assert.Equal(t, facility.StatusFailed, got.Status())
	assert.Equal(t, run.Error, got.Error)

	summaries, err := repo.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Nil(t, summaries[0].Objective)
	assert.Equal(t, facility.StatusFailed, summaries[0].Status)
}

func TestSQLRunRepository_GetUnknown(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLRunRepository(db)
	require.NoError(t, repo.CreateSchema())

	_, err := repo.GetRun("missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestSQLRunRepository_ListRuns(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLRunRepository(db)
	require.NoError(t, repo.CreateSchema())

	older := sampleRun()
	newer := sampleRun()
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)
	newer.Solution.Status = facility.StatusInfeasible
	newer.Solution.Sites = nil
	newer.Solution.Assignments = nil
	newer.Solution.Unserved = nil

	require.NoError(t, repo.SaveRun(older))
	require.NoError(t, repo.SaveRun(newer))

	summaries, err := repo.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, newer.ID, summaries[0].ID)
	assert.Equal(t, facility.StatusInfeasible, summaries[0].Status)
	assert.Nil(t, summaries[0].Objective)

	assert.Equal(t, older.ID, summaries[1].ID)
	require.NotNil(t, summaries[1].Objective)
	assert.InDelta(t, 10200, *summaries[1].Objective, 1e-9)
	assert.Equal(t, 1, summaries[1].SitesOpened)
	assert.Equal(t, 2, summaries[1].Assignments)
	assert.Equal(t, 1, summaries[1].Unserved)

	limited, err := repo.ListRuns(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestExportRunCSV(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLRunRepository(db)
	require.NoError(t, repo.CreateSchema())

	run := sampleRun()
	require.NoError(t, repo.SaveRun(run))

	dir := t.TempDir()
	files, err := ExportRunCSV(db, run.ID, dir)
	require.NoError(t, err)
	require.Len(t, files, 3)

	sites, err := os.ReadFile(filepath.Join(dir, SelectedSitesFile))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(sites)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "site_id,lat,lon,rent_cost,capacity,setup_cost,assigned_orders,is_selected", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "D-100,"))

	assignments, err := os.ReadFile(filepath.Join(dir, CustomerAssignmentsFile))
	require.NoError(t, err)

	lines = strings.Split(strings.TrimSpace(string(assignments)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "customer_id,assigned_site_id,distance_km", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "c1,D-100,"))
	assert.True(t, strings.HasPrefix(lines[2], "c2,D-100,"))
}
