// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package facility

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/urbanlogistics/depot/spatial"
)

const (
	TableDemand = "demand"
	TableSites  = "sites"
	TableParams = "params"
)

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// validateCoordinates checks a latitude/longitude pair of a row.
func validateCoordinates(table, row string, lat, lon float64) []error {
	var errs []error

	if !(spatial.Point{Lat: lat}).Valid() {
		errs = append(errs, &InputError{Table: table, Column: "lat", Row: row,
			Message: fmt.Sprintf("latitude must be between -90 and 90 (got %v)", lat)})
	}

	if !(spatial.Point{Lng: lon}).Valid() {
		errs = append(errs, &InputError{Table: table, Column: "lon", Row: row,
			Message: fmt.Sprintf("longitude must be between -180 and 180 (got %v)", lon)})
	}

	return errs
}

// ValidateDemand checks identifiers, coordinates and order volumes.
func ValidateDemand(points []DemandPoint) error {
	var errs []error

	seen := make(map[string]int, len(points))

	for i, p := range points {
		row := p.ID
		if strings.TrimSpace(p.ID) == "" {
			row = fmt.Sprintf("#%d", i+1)
			errs = append(errs, &InputError{Table: TableDemand, Column: "id", Row: row, Message: "missing identifier"})
		} else if first, dup := seen[p.ID]; dup {
			errs = append(errs, &InputError{Table: TableDemand, Column: "id", Row: row,
				Message: fmt.Sprintf("duplicate identifier (first seen at row %d)", first+1)})
		} else {
			seen[p.ID] = i
		}

		errs = append(errs, validateCoordinates(TableDemand, row, p.Lat, p.Lon)...)

		if p.DailyOrders < 0 {
			errs = append(errs, &InputError{Table: TableDemand, Column: "daily_orders", Row: row,
				Message: fmt.Sprintf("must be non-negative (got %d)", p.DailyOrders)})
		}
	}

	return errors.Join(errs...)
}

// ValidateSites checks identifiers, coordinates, costs and capacities.
func ValidateSites(sites []CandidateSite) error {
	var errs []error

	seen := make(map[string]int, len(sites))

	for i, s := range sites {
		row := s.ID
		if strings.TrimSpace(s.ID) == "" {
			row = fmt.Sprintf("#%d", i+1)
			errs = append(errs, &InputError{Table: TableSites, Column: "site_id", Row: row, Message: "missing identifier"})
		} else if first, dup := seen[s.ID]; dup {
			errs = append(errs, &InputError{Table: TableSites, Column: "site_id", Row: row,
				Message: fmt.Sprintf("duplicate identifier (first seen at row %d)", first+1)})
		} else {
			seen[s.ID] = i
		}

		errs = append(errs, validateCoordinates(TableSites, row, s.Lat, s.Lon)...)

		if !finite(s.RentCost) || s.RentCost < 0 {
			errs = append(errs, &InputError{Table: TableSites, Column: "rent_cost", Row: row,
				Message: fmt.Sprintf("must be a non-negative number (got %v)", s.RentCost)})
		}

		if s.Capacity <= 0 {
			errs = append(errs, &InputError{Table: TableSites, Column: "capacity", Row: row,
				Message: fmt.Sprintf("must be positive (got %d)", s.Capacity)})
		}

		if !finite(s.SetupCost) || s.SetupCost < 0 {
			errs = append(errs, &InputError{Table: TableSites, Column: "setup_cost", Row: row,
				Message: fmt.Sprintf("must be a non-negative number (got %v)", s.SetupCost)})
		}
	}

	return errors.Join(errs...)
}

// Validate checks the parameter ranges.
func (p Params) Validate() error {
	var errs []error

	if !finite(p.MaxRangeKm) || p.MaxRangeKm <= 0 {
		errs = append(errs, &InputError{Table: TableParams, Column: "max_range_km",
			Message: fmt.Sprintf("must be positive (got %v)", p.MaxRangeKm)})
	}

	if !finite(p.CostPerKm) || p.CostPerKm < 0 {
		errs = append(errs, &InputError{Table: TableParams, Column: "cost_per_km",
			Message: fmt.Sprintf("must be non-negative (got %v)", p.CostPerKm)})
	}

	if p.MaxSitesToOpen < 1 {
		errs = append(errs, &InputError{Table: TableParams, Column: "max_stores_to_open",
			Message: fmt.Sprintf("must be at least 1 (got %d)", p.MaxSitesToOpen)})
	}

	if p.TimeLimit <= 0 {
		errs = append(errs, &InputError{Table: TableParams, Column: "time_limit",
			Message: fmt.Sprintf("must be positive (got %s)", p.TimeLimit)})
	}

	switch p.Unservable {
	case UnservableReport, UnservableReject:
	default:
		errs = append(errs, &InputError{Table: TableParams, Column: "unservable",
			Message: fmt.Sprintf("must be %q or %q (got %q)", UnservableReport, UnservableReject, p.Unservable)})
	}

	return errors.Join(errs...)
}
