// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

// Package facility decides which candidate sites to open and which site
// serves each demand point, minimizing rent plus distance weighted
// transport cost under a service radius, site capacities and a cap on the
// number of opened sites.
package facility

import (
	"fmt"
	"time"

	"github.com/urbanlogistics/depot/spatial"
)

// DemandPoint is a customer location with its daily order volume.
type DemandPoint struct {
	ID          string  `json:"id"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DailyOrders int     `json:"daily_orders"`
}

// Point returns the location of the demand point.
func (d DemandPoint) Point() spatial.Point { return spatial.Point{Lat: d.Lat, Lng: d.Lon} }

// CandidateSite is a location where a facility may be opened.
type CandidateSite struct {
	ID        string  `json:"site_id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	RentCost  float64 `json:"rent_cost"`
	Capacity  int     `json:"capacity"`
	SetupCost float64 `json:"setup_cost"`
}

// Point returns the location of the site.
func (s CandidateSite) Point() spatial.Point { return spatial.Point{Lat: s.Lat, Lng: s.Lon} }

// UnservablePolicy decides what happens to demand points with no candidate
// site in range.
type UnservablePolicy string

const (
	// UnservableReport leaves them out of the model and lists them in the solution.
	UnservableReport UnservablePolicy = "report"
	// UnservableReject fails the call with an InputError.
	UnservableReject UnservablePolicy = "reject"
)

// Params configures one optimization call. It is a value: callers build it
// once and pass copies around.
type Params struct {
	MaxRangeKm     float64          `yaml:"max_range_km"`
	CostPerKm      float64          `yaml:"cost_per_km"`
	MaxSitesToOpen int              `yaml:"max_stores_to_open"`
	TimeLimit      time.Duration    `yaml:"time_limit"`
	SpatialIndex   bool             `yaml:"spatial_index"`
	Unservable     UnservablePolicy `yaml:"unservable"`
}

const (
	DefaultMaxRangeKm     = 8.0
	DefaultCostPerKm      = 5.0
	DefaultMaxSitesToOpen = 5
	DefaultTimeLimit      = 60 * time.Second
)

// DefaultParams returns the reference configuration.
func DefaultParams() Params {
	return Params{
		MaxRangeKm:     DefaultMaxRangeKm,
		CostPerKm:      DefaultCostPerKm,
		MaxSitesToOpen: DefaultMaxSitesToOpen,
		TimeLimit:      DefaultTimeLimit,
		SpatialIndex:   true,
		Unservable:     UnservableReport,
	}
}

func (p Params) String() string {
	return fmt.Sprintf("range=%.1fkm cost_per_km=%.2f max_sites=%d time_limit=%s",
		p.MaxRangeKm, p.CostPerKm, p.MaxSitesToOpen, p.TimeLimit)
}

// Status tags every solution.
type Status string

const (
	StatusOptimal     Status = "optimal"
	StatusTimeLimited Status = "time_limited"
	StatusInfeasible  Status = "infeasible"
	StatusFailed      Status = "failed"
)

// SelectedSite is an opened site with the load assigned to it.
type SelectedSite struct {
	CandidateSite
	AssignedPoints int `json:"assigned_points"`
	AssignedOrders int `json:"assigned_orders"`
}

// Utilization returns assigned orders over capacity.
func (s SelectedSite) Utilization() float64 {
	return float64(s.AssignedOrders) / float64(s.Capacity)
}

// Assignment links a demand point to the site that serves it.
type Assignment struct {
	CustomerID     string  `json:"customer_id"`
	AssignedSiteID string  `json:"assigned_site_id"`
	DistanceKm     float64 `json:"distance_km"`
	DailyOrders    int     `json:"daily_orders"`
	TransportCost  float64 `json:"transport_cost"`
}

// UnservedPoint is a demand point that no candidate site can reach.
type UnservedPoint struct {
	CustomerID string `json:"customer_id"`
	Reason     string `json:"reason"`
}

// Stats describes the size and effort of a solve.
type Stats struct {
	DemandPoints    int           `json:"demand_points"`
	CandidateSites  int           `json:"candidate_sites"`
	AdmissiblePairs int           `json:"admissible_pairs"`
	Variables       int           `json:"variables"`
	Constraints     int           `json:"constraints"`
	LazyConstraints int           `json:"lazy_constraints"`
	Nodes           int           `json:"nodes"`
	Cuts            int           `json:"cuts"`
	Iterations      int           `json:"iterations"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Solution is the outcome of an optimization call. Sites and Assignments are
// empty unless Status is optimal or time limited.
type Solution struct {
	Status        Status          `json:"status"`
	Objective     float64         `json:"objective"`
	BestBound     float64         `json:"best_bound"`
	Gap           float64         `json:"gap"`
	RentCost      float64         `json:"rent_cost"`
	TransportCost float64         `json:"transport_cost"`
	Sites         []SelectedSite  `json:"selected_sites"`
	Assignments   []Assignment    `json:"assignments"`
	Unserved      []UnservedPoint `json:"unserved"`
	Stats         Stats           `json:"stats"`
}

// HasPlan reports whether the solution carries selected sites and assignments.
func (s *Solution) HasPlan() bool {
	return s.Status == StatusOptimal || s.Status == StatusTimeLimited
}
