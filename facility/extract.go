// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package facility

import (
	"fmt"
	"math"

	"github.com/urbanlogistics/depot/milp"
)

const selectedThreshold = 0.5

// Extract reads the selected sites and the assignments out of a solver
// result. Values above 0.5 count as selected.
func Extract(f *Formulation, res *milp.Result, demand []DemandPoint, sites []CandidateSite, params Params) *Solution {
	sol := &Solution{
		Objective: res.Objective,
		BestBound: res.BestBound,
	}

	// every cost is non-negative, so zero bounds an unexplored search
	if math.IsInf(sol.BestBound, 0) || math.IsNaN(sol.BestBound) || sol.BestBound < 0 {
		sol.BestBound = 0
	}

	if !res.IsOptimal() {
		sol.Gap = math.Abs(sol.Objective-sol.BestBound) / math.Max(1, math.Abs(sol.Objective))
	}

	load := make([]int, len(sites))
	points := make([]int, len(sites))

	for k, p := range f.Admissible.Pairs {
		if res.Value(f.Assign[k]) <= selectedThreshold {
			continue
		}

		d := demand[p.Demand]
		cost := TransportCost(p.DistanceKm, d.DailyOrders, params)
		sol.Assignments = append(sol.Assignments, Assignment{
			CustomerID:     d.ID,
			AssignedSiteID: sites[p.Site].ID,
			DistanceKm:     p.DistanceKm,
			DailyOrders:    d.DailyOrders,
			TransportCost:  cost,
		})
		sol.TransportCost += cost
		load[p.Site] += d.DailyOrders
		points[p.Site]++
	}

	for j, s := range sites {
		if res.Value(f.Open[j]) <= selectedThreshold {
			continue
		}

		sol.Sites = append(sol.Sites, SelectedSite{
			CandidateSite:  s,
			AssignedPoints: points[j],
			AssignedOrders: load[j],
		})
		sol.RentCost += s.RentCost
	}

	return sol
}

// unservedPoints lists the demand points without admissible sites.
func unservedPoints(adm *AdmissibleSet, demand []DemandPoint, params Params) []UnservedPoint {
	var out []UnservedPoint
	for _, i := range adm.Unservable() {
		out = append(out, UnservedPoint{
			CustomerID: demand[i].ID,
			Reason:     fmt.Sprintf("no candidate site within %.1f km", params.MaxRangeKm),
		})
	}

	return out
}
