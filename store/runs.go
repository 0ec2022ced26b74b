// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/urbanlogistics/depot/facility"
)

// ErrRunNotFound is returned by GetRun for unknown identifiers.
var ErrRunNotFound = errors.New("run not found")

// Run is one optimization call: its parameters and either a solution or the
// error that prevented one.
type Run struct {
	ID        string
	CreatedAt time.Time
	Params    facility.Params
	Solution  *facility.Solution
	Error     string
}

// NewRun stamps a fresh identifier and creation time.
func NewRun(params facility.Params) *Run {
	return &Run{ID: uuid.NewString(), CreatedAt: time.Now().UTC(), Params: params}
}

// Status returns the run status, failed when there is no solution.
func (r *Run) Status() facility.Status {
	if r.Solution == nil {
		return facility.StatusFailed
	}

	return r.Solution.Status
}

// RunSummary is a row of the run history.
type RunSummary struct {
	ID          string          `json:"run_id"`
	CreatedAt   time.Time       `json:"created_at"`
	Status      facility.Status `json:"status"`
	Objective   *float64        `json:"objective,omitempty"`
	SitesOpened int             `json:"sites_opened"`
	Assignments int             `json:"assignments"`
	Unserved    int             `json:"unserved"`
	Elapsed     time.Duration   `json:"elapsed"`
}

// RunRepository defines the interface for run history operations.
type RunRepository interface {
	// CreateSchema creates the database schema.
	CreateSchema() error
	// SaveRun stores a run with its selected sites, assignments and unserved points.
	SaveRun(run *Run) error
	// ListRuns returns the most recent runs first.
	ListRuns(limit int) ([]*RunSummary, error)
	// GetRun loads a full run.
	GetRun(id string) (*Run, error)
}

type sqlRunRepository struct {
	db *sql.DB
}

// NewSQLRunRepository returns a repository over DuckDB or Postgres.
func NewSQLRunRepository(db *sql.DB) RunRepository {
	return &sqlRunRepository{db: db}
}

func (r *sqlRunRepository) CreateSchema() error {
	return execAll(r.db,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id VARCHAR PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			status VARCHAR NOT NULL,
			objective DOUBLE PRECISION,
			best_bound DOUBLE PRECISION,
			gap DOUBLE PRECISION,
			rent_cost DOUBLE PRECISION,
			transport_cost DOUBLE PRECISION,
			max_range_km DOUBLE PRECISION NOT NULL,
			cost_per_km DOUBLE PRECISION NOT NULL,
			max_stores_to_open INTEGER NOT NULL,
			time_limit_ms BIGINT NOT NULL,
			demand_points INTEGER,
			candidate_sites INTEGER,
			admissible_pairs INTEGER,
			nodes BIGINT,
			cuts BIGINT,
			elapsed_ms BIGINT,
			error VARCHAR
		)`,
		`CREATE TABLE IF NOT EXISTS selected_sites (
			run_id VARCHAR NOT NULL,
			seq INTEGER NOT NULL,
			site_id VARCHAR NOT NULL,
			lat DOUBLE PRECISION,
			lon DOUBLE PRECISION,
			rent_cost DOUBLE PRECISION,
			capacity INTEGER,
			setup_cost DOUBLE PRECISION,
			assigned_points INTEGER,
			assigned_orders INTEGER,
			is_selected INTEGER,
			PRIMARY KEY (run_id, site_id)
		)`,
		`CREATE TABLE IF NOT EXISTS customer_assignments (
			run_id VARCHAR NOT NULL,
			seq INTEGER NOT NULL,
			customer_id VARCHAR NOT NULL,
			assigned_site_id VARCHAR NOT NULL,
			distance_km DOUBLE PRECISION,
			daily_orders INTEGER,
			transport_cost DOUBLE PRECISION,
			PRIMARY KEY (run_id, customer_id)
		)`,
		`CREATE TABLE IF NOT EXISTS unserved_points (
			run_id VARCHAR NOT NULL,
			customer_id VARCHAR NOT NULL,
			reason VARCHAR,
			PRIMARY KEY (run_id, customer_id)
		)`,
	)
}

func nullFloat(v float64, valid bool) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: valid}
}

func nve(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *sqlRunRepository) SaveRun(run *Run) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction for run %s: %w", run.ID, err)
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Printf("failed to rollback transaction for run %s: %v", run.ID, err)
		}
	}()

	sol := run.Solution
	plan := sol != nil && sol.HasPlan()

	var stats facility.Stats
	if sol != nil {
		stats = sol.Stats
	} else {
		sol = &facility.Solution{}
	}

	_, err = tx.Exec(`
		INSERT INTO runs (
			run_id, created_at, status, objective, best_bound, gap, rent_cost, transport_cost,
			max_range_km, cost_per_km, max_stores_to_open, time_limit_ms,
			demand_points, candidate_sites, admissible_pairs, nodes, cuts, elapsed_ms, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		run.ID, run.CreatedAt, string(run.Status()),
		nullFloat(sol.Objective, plan), nullFloat(sol.BestBound, plan), nullFloat(sol.Gap, plan),
		nullFloat(sol.RentCost, plan), nullFloat(sol.TransportCost, plan),
		run.Params.MaxRangeKm, run.Params.CostPerKm, run.Params.MaxSitesToOpen, run.Params.TimeLimit.Milliseconds(),
		stats.DemandPoints, stats.CandidateSites, stats.AdmissiblePairs, stats.Nodes, stats.Cuts,
		stats.Elapsed.Milliseconds(), nve(run.Error),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	if len(sol.Sites) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO selected_sites (
				run_id, seq, site_id, lat, lon, rent_cost, capacity, setup_cost,
				assigned_points, assigned_orders, is_selected
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)`)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer stmt.Close()

		for i, s := range sol.Sites {
			if _, err := stmt.Exec(run.ID, i, s.ID, s.Lat, s.Lon, s.RentCost, s.Capacity, s.SetupCost,
				s.AssignedPoints, s.AssignedOrders); err != nil {
				return fmt.Errorf("inserting site %s: %w", s.ID, err)
			}
		}
	}

	if len(sol.Assignments) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO customer_assignments (
				run_id, seq, customer_id, assigned_site_id, distance_km, daily_orders, transport_cost
			) VALUES ($1, $2, $3, $4, $5, $6, $7)`)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer stmt.Close()

		for i, a := range sol.Assignments {
			if _, err := stmt.Exec(run.ID, i, a.CustomerID, a.AssignedSiteID, a.DistanceKm,
				a.DailyOrders, a.TransportCost); err != nil {
				return fmt.Errorf("inserting assignment of %s: %w", a.CustomerID, err)
			}
		}
	}

	for _, u := range sol.Unserved {
		if _, err := tx.Exec("INSERT INTO unserved_points (run_id, customer_id, reason) VALUES ($1, $2, $3)",
			run.ID, u.CustomerID, u.Reason); err != nil {
			return fmt.Errorf("inserting unserved point %s: %w", u.CustomerID, err)
		}
	}

	return tx.Commit()
}

func (r *sqlRunRepository) ListRuns(limit int) ([]*RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(`
		SELECT r.run_id, r.created_at, r.status, r.objective, COALESCE(r.elapsed_ms, 0),
			(SELECT COUNT(*) FROM selected_sites s WHERE s.run_id = r.run_id),
			(SELECT COUNT(*) FROM customer_assignments a WHERE a.run_id = r.run_id),
			(SELECT COUNT(*) FROM unserved_points u WHERE u.run_id = r.run_id)
		FROM runs r
		ORDER BY r.created_at DESC, r.run_id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []*RunSummary

	for rows.Next() {
		var (
			s         RunSummary
			status    string
			objective sql.NullFloat64
			elapsedMs int64
		)

		if err := rows.Scan(&s.ID, &s.CreatedAt, &status, &objective, &elapsedMs,
			&s.SitesOpened, &s.Assignments, &s.Unserved); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}

		s.Status = facility.Status(status)
		s.Elapsed = time.Duration(elapsedMs) * time.Millisecond

		if objective.Valid {
			s.Objective = &objective.Float64
		}

		out = append(out, &s)
	}

	return out, rows.Err()
}

func (r *sqlRunRepository) GetRun(id string) (*Run, error) {
	var (
		run                                          = &Run{ID: id}
		status                                       string
		objective, bound, gap, rentCost, transport   sql.NullFloat64
		timeLimitMs, nodes, cuts, elapsedMs          sql.NullInt64
		demandPoints, candidateSites, admissiblePair sql.NullInt64
		errMsg                                       sql.NullString
	)

	err := r.db.QueryRow(`
		SELECT created_at, status, objective, best_bound, gap, rent_cost, transport_cost,
			max_range_km, cost_per_km, max_stores_to_open, time_limit_ms,
			demand_points, candidate_sites, admissible_pairs, nodes, cuts, elapsed_ms, error
		FROM runs WHERE run_id = $1`, id).Scan(
		&run.CreatedAt, &status, &objective, &bound, &gap, &rentCost, &transport,
		&run.Params.MaxRangeKm, &run.Params.CostPerKm, &run.Params.MaxSitesToOpen, &timeLimitMs,
		&demandPoints, &candidateSites, &admissiblePair, &nodes, &cuts, &elapsedMs, &errMsg,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}

	run.Params.TimeLimit = time.Duration(timeLimitMs.Int64) * time.Millisecond
	run.Error = errMsg.String

	if facility.Status(status) == facility.StatusFailed {
		return run, nil
	}

	sol := &facility.Solution{
		Status:        facility.Status(status),
		Objective:     objective.Float64,
		BestBound:     bound.Float64,
		Gap:           gap.Float64,
		RentCost:      rentCost.Float64,
		TransportCost: transport.Float64,
		Stats: facility.Stats{
			DemandPoints:    int(demandPoints.Int64),
			CandidateSites:  int(candidateSites.Int64),
			AdmissiblePairs: int(admissiblePair.Int64),
			Nodes:           int(nodes.Int64),
			Cuts:            int(cuts.Int64),
			Elapsed:         time.Duration(elapsedMs.Int64) * time.Millisecond,
		},
	}

	if sol.Sites, err = r.loadSites(id); err != nil {
		return nil, err
	}

	if sol.Assignments, err = r.loadAssignments(id); err != nil {
		return nil, err
	}

	if sol.Unserved, err = r.loadUnserved(id); err != nil {
		return nil, err
	}

	run.Solution = sol

	return run, nil
}

func (r *sqlRunRepository) loadSites(id string) ([]facility.SelectedSite, error) {
	rows, err := r.db.Query(`
		SELECT site_id, lat, lon, rent_cost, capacity, setup_cost, assigned_points, assigned_orders
		FROM selected_sites WHERE run_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("loading sites of run %s: %w", id, err)
	}
	defer rows.Close()

	var out []facility.SelectedSite

	for rows.Next() {
		var s facility.SelectedSite
		if err := rows.Scan(&s.ID, &s.Lat, &s.Lon, &s.RentCost, &s.Capacity, &s.SetupCost,
			&s.AssignedPoints, &s.AssignedOrders); err != nil {
			return nil, fmt.Errorf("scanning site: %w", err)
		}

		out = append(out, s)
	}

	return out, rows.Err()
}

func (r *sqlRunRepository) loadAssignments(id string) ([]facility.Assignment, error) {
	rows, err := r.db.Query(`
		SELECT customer_id, assigned_site_id, distance_km, daily_orders, transport_cost
		FROM customer_assignments WHERE run_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("loading assignments of run %s: %w", id, err)
	}
	defer rows.Close()

	var out []facility.Assignment

	for rows.Next() {
		var a facility.Assignment
		if err := rows.Scan(&a.CustomerID, &a.AssignedSiteID, &a.DistanceKm, &a.DailyOrders, &a.TransportCost); err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}

		out = append(out, a)
	}

	return out, rows.Err()
}

func (r *sqlRunRepository) loadUnserved(id string) ([]facility.UnservedPoint, error) {
	rows, err := r.db.Query(
		"SELECT customer_id, reason FROM unserved_points WHERE run_id = $1 ORDER BY customer_id", id)
	if err != nil {
		return nil, fmt.Errorf("loading unserved points of run %s: %w", id, err)
	}
	defer rows.Close()

	var out []facility.UnservedPoint

	for rows.Next() {
		var u facility.UnservedPoint
		if err := rows.Scan(&u.CustomerID, &u.Reason); err != nil {
			return nil, fmt.Errorf("scanning unserved point: %w", err)
		}

		out = append(out, u)
	}

	return out, rows.Err()
}

// Output file names written by ExportRunCSV.
const (
	SelectedSitesFile       = "selected_sites.csv"
	CustomerAssignmentsFile = "customer_assignments.csv"
	UnservedPointsFile      = "unserved_points.csv"
)

// ExportRunCSV writes the output tables of a run into dir. It needs the
// DuckDB working database.
func ExportRunCSV(db *sql.DB, runID, dir string) ([]string, error) {
	id := quoteLiteral(runID)
	exports := []struct {
		file, query string
	}{
		{SelectedSitesFile, `SELECT site_id, lat, lon, rent_cost, capacity, setup_cost, assigned_orders, is_selected
			FROM selected_sites WHERE run_id = ` + id + ` ORDER BY seq`},
		{CustomerAssignmentsFile, `SELECT customer_id, assigned_site_id, distance_km
			FROM customer_assignments WHERE run_id = ` + id + ` ORDER BY seq`},
		{UnservedPointsFile, `SELECT customer_id, reason
			FROM unserved_points WHERE run_id = ` + id + ` ORDER BY customer_id`},
	}

	var written []string

	for _, e := range exports {
		path := filepath.Join(dir, e.file)
		if err := copyTo(db, e.query, path); err != nil {
			return written, err
		}

		written = append(written, path)
	}

	return written, nil
}
