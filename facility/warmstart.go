// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package facility

import (
	"math"
	"slices"
)

// openRule picks which site a stuck demand point opens.
type openRule int

const (
	// openCheapest opens the site with the lowest rent plus transport cost.
	openCheapest openRule = iota
	// openLargest opens the site with the most capacity, cheapest on ties.
	// It gets through tight caps on opened sites where openCheapest
	// spends the cap on small sites.
	openLargest
	// openWidest opens the site that can take the most orders still
	// waiting within its range, cheapest on ties.
	openWidest
)

type greedyPlan struct {
	opened []bool
	chosen []int
	cost   float64
}

// greedyStart builds a feasible plan to hand to the solver as a MIP start.
// Every opening rule is tried and the cheapest plan wins. It returns false
// when no rule gets through.
func greedyStart(f *Formulation, demand []DemandPoint, sites []CandidateSite, params Params) bool {
	var best *greedyPlan

	for _, rule := range []openRule{openCheapest, openLargest, openWidest} {
		plan, ok := greedyPass(f.Admissible, demand, sites, params, rule)
		if ok && (best == nil || plan.cost < best.cost) {
			best = plan
		}
	}

	if best == nil {
		return false
	}

	for j, open := range best.opened {
		if open {
			f.Model.SetStart(f.Open[j], 1)
		}
	}

	for _, k := range best.chosen {
		f.Model.SetStart(f.Assign[k], 1)
	}

	return true
}

// greedyPass assigns demand points with the fewest options first. Each joins
// the cheapest opened site with room, or opens a site picked by rule while
// the cap on opened sites allows it.
func greedyPass(adm *AdmissibleSet, demand []DemandPoint, sites []CandidateSite, params Params, rule openRule) (*greedyPlan, bool) {
	order := make([]int, 0, len(demand))
	for i, pairs := range adm.ByDemand {
		if len(pairs) > 0 {
			order = append(order, i)
		}
	}

	slices.SortStableFunc(order, func(a, b int) int {
		if la, lb := len(adm.ByDemand[a]), len(adm.ByDemand[b]); la != lb {
			return la - lb
		}

		return demand[b].DailyOrders - demand[a].DailyOrders
	})

	plan := &greedyPlan{
		opened: make([]bool, len(sites)),
		chosen: make([]int, 0, len(order)),
	}
	remaining := make([]int, len(sites))
	nOpened := 0

	// orders still waiting within range of each site
	reach := make([]int, len(sites))
	for _, i := range order {
		for _, k := range adm.ByDemand[i] {
			reach[adm.Pairs[k].Site] += demand[i].DailyOrders
		}
	}

	for _, i := range order {
		orders := demand[i].DailyOrders
		best, bestCost := -1, math.Inf(1)

		for _, k := range adm.ByDemand[i] {
			p := adm.Pairs[k]
			if plan.opened[p.Site] && remaining[p.Site] >= orders {
				if c := TransportCost(p.DistanceKm, orders, params); c < bestCost {
					best, bestCost = k, c
				}
			}
		}

		if best < 0 && nOpened < params.MaxSitesToOpen {
			bestScore := -1

			for _, k := range adm.ByDemand[i] {
				p := adm.Pairs[k]
				site := sites[p.Site]

				if plan.opened[p.Site] || site.Capacity < orders {
					continue
				}

				c := site.RentCost + TransportCost(p.DistanceKm, orders, params)

				var score int

				switch rule {
				case openCheapest:
					if c < bestCost {
						best, bestCost = k, c
					}

					continue
				case openLargest:
					score = site.Capacity
				case openWidest:
					score = min(site.Capacity, reach[p.Site])
				}

				if score > bestScore || (score == bestScore && c < bestCost) {
					best, bestCost, bestScore = k, c, score
				}
			}

			if best >= 0 {
				j := adm.Pairs[best].Site
				plan.opened[j] = true
				remaining[j] = sites[j].Capacity
				plan.cost += sites[j].RentCost
				nOpened++
			}
		}

		if best < 0 {
			return nil, false
		}

		for _, k := range adm.ByDemand[i] {
			reach[adm.Pairs[k].Site] -= orders
		}

		p := adm.Pairs[best]
		remaining[p.Site] -= orders
		plan.cost += TransportCost(p.DistanceKm, orders, params)
		plan.chosen = append(plan.chosen, best)
	}

	return plan, true
}
