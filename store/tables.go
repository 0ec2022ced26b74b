// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"strings"

	"github.com/urbanlogistics/depot/facility"
	"github.com/urbanlogistics/depot/utils/textutils"
)

var (
	DemandColumns = []string{"id", "lat", "lon", "daily_orders"}
	SiteColumns   = []string{"site_id", "lat", "lon", "rent_cost", "capacity", "setup_cost"}
)

const (
	demandStaging = "input_demand"
	sitesStaging  = "input_sites"
)

// stageCSV loads a CSV file as text columns into a DuckDB table and returns
// the actual column name for each required column, matching headers after
// normalization.
func stageCSV(db *sql.DB, table, staging, path string, required []string) (map[string]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &facility.InputError{Table: table, Message: fmt.Sprintf("reading %s: %v", path, err)}
	}

	_, err := db.Exec(fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto(%s, header = true, all_varchar = true)",
		staging, quoteLiteral(path)))
	if err != nil {
		return nil, &facility.InputError{Table: table, Message: fmt.Sprintf("parsing %s: %v", path, err)}
	}

	rows, err := db.Query(
		"SELECT column_name FROM information_schema.columns WHERE table_name = $1 ORDER BY ordinal_position",
		staging)
	if err != nil {
		return nil, fmt.Errorf("listing columns of %s: %w", staging, err)
	}
	defer rows.Close()

	actual := make(map[string]string)

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning column name: %w", err)
		}

		normalized := textutils.NormalizeColumn(name)
		if _, dup := actual[normalized]; dup {
			return nil, &facility.InputError{Table: table, Column: normalized, Message: "column appears more than once"}
		}

		actual[normalized] = name
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	var errs []error

	for _, col := range required {
		if _, ok := actual[col]; !ok {
			errs = append(errs, &facility.InputError{Table: table, Column: col, Message: "missing column"})
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return actual, nil
}

// selectList renders the identifier column as text and every other column
// as raw text plus its DOUBLE cast.
func selectList(columns map[string]string, required []string) string {
	parts := []string{fmt.Sprintf("TRIM(%s)", quoteIdent(columns[required[0]]))}
	for _, col := range required[1:] {
		q := quoteIdent(columns[col])
		parts = append(parts, q, fmt.Sprintf("TRY_CAST(TRIM(%s) AS DOUBLE)", q))
	}

	return strings.Join(parts, ", ")
}

type numericCell struct {
	raw   sql.NullString
	value sql.NullFloat64
}

func (c *numericCell) float(table, column, row string) (float64, error) {
	if !c.value.Valid {
		if !c.raw.Valid || strings.TrimSpace(c.raw.String) == "" {
			return 0, &facility.InputError{Table: table, Column: column, Row: row, Message: "missing value"}
		}

		return 0, &facility.InputError{Table: table, Column: column, Row: row,
			Message: fmt.Sprintf("not a number: %q", c.raw.String)}
	}

	return c.value.Float64, nil
}

func (c *numericCell) int(table, column, row string) (int, error) {
	v, err := c.float(table, column, row)
	if err != nil {
		return 0, err
	}

	if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, &facility.InputError{Table: table, Column: column, Row: row,
			Message: fmt.Sprintf("not an integer: %q", c.raw.String)}
	}

	return int(v), nil
}

// readStaged scans the staged table, handing the identifier, a label for
// error messages and the numeric cells of every row to fn.
func readStaged(db *sql.DB, table, staging string, columns map[string]string, required []string,
	fn func(id, row string, cells []numericCell) error,
) error {
	rows, err := db.Query(fmt.Sprintf("SELECT %s FROM %s", selectList(columns, required), staging))
	if err != nil {
		return fmt.Errorf("reading %s: %w", staging, err)
	}
	defer rows.Close()

	var errs []error

	n := 0
	for rows.Next() {
		n++

		var id sql.NullString

		cells := make([]numericCell, len(required)-1)
		dest := []any{&id}

		for i := range cells {
			dest = append(dest, &cells[i].raw, &cells[i].value)
		}

		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scanning %s: %w", staging, err)
		}

		row := id.String
		if !id.Valid || row == "" {
			row = fmt.Sprintf("#%d", n)
		}

		if err := fn(id.String, row, cells); err != nil {
			errs = append(errs, err)
		}
	}

	if err := rows.Err(); err != nil {
		return err
	}

	return errors.Join(errs...)
}

// LoadDemandCSV reads the demand table. Extra columns are ignored.
func LoadDemandCSV(db *sql.DB, path string) ([]facility.DemandPoint, error) {
	columns, err := stageCSV(db, facility.TableDemand, demandStaging, path, DemandColumns)
	if err != nil {
		return nil, err
	}

	var points []facility.DemandPoint

	err = readStaged(db, facility.TableDemand, demandStaging, columns, DemandColumns,
		func(id, row string, cells []numericCell) error {
			lat, errLat := cells[0].float(facility.TableDemand, "lat", row)
			lon, errLon := cells[1].float(facility.TableDemand, "lon", row)
			orders, errOrders := cells[2].int(facility.TableDemand, "daily_orders", row)

			if err := errors.Join(errLat, errLon, errOrders); err != nil {
				return err
			}

			points = append(points, facility.DemandPoint{ID: id, Lat: lat, Lon: lon, DailyOrders: orders})

			return nil
		})
	if err != nil {
		return nil, err
	}

	log.Printf("Loaded %d demand points from %s", len(points), path)

	return points, nil
}

// LoadSitesCSV reads the candidate sites table. Extra columns are ignored.
func LoadSitesCSV(db *sql.DB, path string) ([]facility.CandidateSite, error) {
	columns, err := stageCSV(db, facility.TableSites, sitesStaging, path, SiteColumns)
	if err != nil {
		return nil, err
	}

	var sites []facility.CandidateSite

	err = readStaged(db, facility.TableSites, sitesStaging, columns, SiteColumns,
		func(id, row string, cells []numericCell) error {
			lat, errLat := cells[0].float(facility.TableSites, "lat", row)
			lon, errLon := cells[1].float(facility.TableSites, "lon", row)
			rent, errRent := cells[2].float(facility.TableSites, "rent_cost", row)
			capacity, errCap := cells[3].int(facility.TableSites, "capacity", row)
			setup, errSetup := cells[4].float(facility.TableSites, "setup_cost", row)

			if err := errors.Join(errLat, errLon, errRent, errCap, errSetup); err != nil {
				return err
			}

			sites = append(sites, facility.CandidateSite{
				ID: id, Lat: lat, Lon: lon, RentCost: rent, Capacity: capacity, SetupCost: setup,
			})

			return nil
		})
	if err != nil {
		return nil, err
	}

	log.Printf("Loaded %d candidate sites from %s", len(sites), path)

	return sites, nil
}

// SaveDemand replaces the staged demand table with points.
func SaveDemand(db *sql.DB, points []facility.DemandPoint) error {
	return replaceTable(db, demandStaging,
		"id VARCHAR, lat DOUBLE, lon DOUBLE, daily_orders BIGINT",
		"INSERT INTO "+demandStaging+" VALUES ($1, $2, $3, $4)",
		len(points), func(i int) []any {
			p := points[i]

			return []any{p.ID, p.Lat, p.Lon, p.DailyOrders}
		})
}

// SaveSites replaces the staged sites table with sites.
func SaveSites(db *sql.DB, sites []facility.CandidateSite) error {
	return replaceTable(db, sitesStaging,
		"site_id VARCHAR, lat DOUBLE, lon DOUBLE, rent_cost DOUBLE, capacity BIGINT, setup_cost DOUBLE",
		"INSERT INTO "+sitesStaging+" VALUES ($1, $2, $3, $4, $5, $6)",
		len(sites), func(i int) []any {
			s := sites[i]

			return []any{s.ID, s.Lat, s.Lon, s.RentCost, s.Capacity, s.SetupCost}
		})
}

func replaceTable(db *sql.DB, table, columns, insert string, n int, row func(i int) []any) error {
	if err := execAll(db, fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", table, columns)); err != nil {
		return fmt.Errorf("creating %s: %w", table, err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction for %s: %w", table, err)
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Printf("failed to rollback transaction for %s: %v", table, err)
		}
	}()

	stmt, err := tx.Prepare(insert)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for i := range n {
		if _, err := stmt.Exec(row(i)...); err != nil {
			return fmt.Errorf("inserting into %s: %w", table, err)
		}
	}

	return tx.Commit()
}

// ExportDemandCSV writes the staged demand table to path.
func ExportDemandCSV(db *sql.DB, path string) error {
	return copyTo(db, "SELECT * FROM "+demandStaging, path)
}

// ExportSitesCSV writes the staged sites table to path.
func ExportSitesCSV(db *sql.DB, path string) error {
	return copyTo(db, "SELECT * FROM "+sitesStaging, path)
}

func copyTo(db *sql.DB, query, path string) error {
	_, err := db.Exec(fmt.Sprintf("COPY (%s) TO %s (HEADER, DELIMITER ',')", query, quoteLiteral(path)))
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}
