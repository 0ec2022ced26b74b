// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package facility

import (
	"fmt"

	"github.com/urbanlogistics/depot/spatial"
)

// Pair is a demand point and a site within service range of each other.
type Pair struct {
	Demand     int
	Site       int
	DistanceKm float64
}

type pairKey struct {
	demand, site int
}

// AdmissibleSet holds every admissible pair, ordered by demand point and
// then by site, with adjacency in both directions.
type AdmissibleSet struct {
	Pairs    []Pair
	ByDemand [][]int
	BySite   [][]int
	lookup   map[pairKey]int
}

func newAdmissibleSet(nDemand, nSites int) *AdmissibleSet {
	return &AdmissibleSet{
		ByDemand: make([][]int, nDemand),
		BySite:   make([][]int, nSites),
		lookup:   make(map[pairKey]int),
	}
}

func (a *AdmissibleSet) add(demand, site int, distance float64) {
	k := len(a.Pairs)
	a.Pairs = append(a.Pairs, Pair{Demand: demand, Site: site, DistanceKm: distance})
	a.ByDemand[demand] = append(a.ByDemand[demand], k)
	a.BySite[site] = append(a.BySite[site], k)
	a.lookup[pairKey{demand, site}] = k
}

// Distance returns the distance of an admissible pair.
func (a *AdmissibleSet) Distance(demand, site int) (float64, bool) {
	k, ok := a.lookup[pairKey{demand, site}]
	if !ok {
		return 0, false
	}

	return a.Pairs[k].DistanceKm, true
}

// Contains reports whether the pair is admissible.
func (a *AdmissibleSet) Contains(demand, site int) bool {
	_, ok := a.lookup[pairKey{demand, site}]

	return ok
}

// Unservable returns the demand points without any admissible site.
func (a *AdmissibleSet) Unservable() []int {
	var out []int
	for i, pairs := range a.ByDemand {
		if len(pairs) == 0 {
			out = append(out, i)
		}
	}

	return out
}

// FilterPairs computes every demand to site distance and keeps the pairs at
// most maxRangeKm apart.
func FilterPairs(demand []DemandPoint, sites []CandidateSite, maxRangeKm float64) *AdmissibleSet {
	a := newAdmissibleSet(len(demand), len(sites))

	for i, d := range demand {
		p := d.Point()
		for j, s := range sites {
			if dist := spatial.HaversineKm(p, s.Point()); dist <= maxRangeKm {
				a.add(i, j, dist)
			}
		}
	}

	return a
}

// FilterPairsIndexed returns the same set as FilterPairs, looking up sites
// through an H3 index instead of scanning all of them.
func FilterPairsIndexed(demand []DemandPoint, sites []CandidateSite, maxRangeKm float64) (*AdmissibleSet, error) {
	points := make([]spatial.Point, len(sites))
	for j, s := range sites {
		points[j] = s.Point()
	}

	idx, err := spatial.NewIndex(points, maxRangeKm)
	if err != nil {
		return nil, fmt.Errorf("indexing sites: %w", err)
	}

	a := newAdmissibleSet(len(demand), len(sites))

	for i, d := range demand {
		near, err := idx.Within(d.Point())
		if err != nil {
			return nil, fmt.Errorf("demand %s: %w", d.ID, err)
		}

		for _, n := range near {
			a.add(i, n.Index, n.DistanceKm)
		}
	}

	return a, nil
}

// Admissible runs the filter selected by params.
func Admissible(demand []DemandPoint, sites []CandidateSite, params Params) (*AdmissibleSet, error) {
	if !params.SpatialIndex {
		return FilterPairs(demand, sites, params.MaxRangeKm), nil
	}

	a, err := FilterPairsIndexed(demand, sites, params.MaxRangeKm)
	if err != nil {
		return nil, fmt.Errorf("filtering admissible pairs: %w", err)
	}

	return a, nil
}
