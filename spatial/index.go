// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package spatial

import (
	"fmt"
	"math"
	"slices"

	"github.com/uber/h3-go/v4"
)

// avgEdgeKm is the average H3 hexagon edge length in kilometers, by resolution.
var avgEdgeKm = [...]float64{
	1281.256011, 483.0568391, 182.5129565, 68.97922179,
	26.07175968, 9.854090990, 3.724532667, 1.406475763,
	0.531414010, 0.200786148,
}

const maxDiskK = 12

// Neighbor is a point of the index found within the query radius.
type Neighbor struct {
	Index      int
	DistanceKm float64
}

// Index buckets points into H3 cells so radius queries only inspect the
// cells of a grid disk around the query point. Results are always confirmed
// with HaversineKm, so the cells only prune work and never decide admission.
type Index struct {
	points     []Point
	radiusKm   float64
	resolution int
	k          int
	cells      map[h3.Cell][]int
}

// ResolutionFor returns the finest resolution whose grid disk covering
// radiusKm stays small, together with the disk radius in cells.
func ResolutionFor(radiusKm float64) (int, int) {
	best, bestK := 0, diskK(radiusKm, 0)

	for res := range avgEdgeKm {
		k := diskK(radiusKm, res)
		if k > maxDiskK {
			break
		}

		best, bestK = res, k
	}

	return best, bestK
}

func diskK(radiusKm float64, res int) int {
	return int(math.Ceil(math.Max(radiusKm, 0)/avgEdgeKm[res])) + 1
}

// NewIndex builds an index over points for queries of the given radius.
func NewIndex(points []Point, radiusKm float64) (*Index, error) {
	if radiusKm < 0 || math.IsNaN(radiusKm) || math.IsInf(radiusKm, 0) {
		return nil, fmt.Errorf("invalid radius %v", radiusKm)
	}

	res, k := ResolutionFor(radiusKm)
	idx := &Index{
		points:     points,
		radiusKm:   radiusKm,
		resolution: res,
		k:          k,
		cells:      make(map[h3.Cell][]int),
	}

	for i, p := range points {
		cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), res)
		if err != nil {
			return nil, fmt.Errorf("indexing point %d %s: %w", i, p, err)
		}

		idx.cells[cell] = append(idx.cells[cell], i)
	}

	return idx, nil
}

// Resolution returns the H3 resolution used for bucketing.
func (idx *Index) Resolution() int { return idx.resolution }

// Len returns the number of indexed points.
func (idx *Index) Len() int { return len(idx.points) }

// Candidates returns the indexes of every point bucketed in the grid disk
// around p, in ascending order. It is a superset of the points within the
// radius.
func (idx *Index) Candidates(p Point) ([]int, error) {
	origin, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), idx.resolution)
	if err != nil {
		return nil, fmt.Errorf("locating %s: %w", p, err)
	}

	disk, err := h3.GridDisk(origin, idx.k)
	if err != nil {
		return nil, fmt.Errorf("expanding disk around %s: %w", p, err)
	}

	var out []int
	for _, cell := range disk {
		out = append(out, idx.cells[cell]...)
	}

	slices.Sort(out)

	return slices.Compact(out), nil
}

// Within returns the indexed points at most the index radius away from p,
// ordered by point index.
func (idx *Index) Within(p Point) ([]Neighbor, error) {
	candidates, err := idx.Candidates(p)
	if err != nil {
		return nil, err
	}

	var out []Neighbor
	for _, i := range candidates {
		d := HaversineKm(p, idx.points[i])
		if d <= idx.radiusKm {
			out = append(out, Neighbor{Index: i, DistanceKm: d})
		}
	}

	return out, nil
}
