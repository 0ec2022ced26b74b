// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package facility

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/urbanlogistics/depot/spatial"
)

const kmPerDegree = spatial.EarthRadiusKm * math.Pi / 180

// north returns the latitude lying km kilometers north of the equator.
func north(km float64) float64 { return km / kmPerDegree }

func quiet(t *testing.T) Option {
	return WithLogger(t.Logf)
}

func testParams() Params {
	p := DefaultParams()
	p.TimeLimit = 30 * time.Second

	return p
}

// threePointInstance has one site at the origin and three customers 1, 3
// and 20 km north of it, ten orders each.
func threePointInstance() ([]DemandPoint, []CandidateSite) {
	demand := []DemandPoint{
		{ID: "c1", Lat: north(1), DailyOrders: 10},
		{ID: "c2", Lat: north(3), DailyOrders: 10},
		{ID: "c3", Lat: north(20), DailyOrders: 10},
	}
	sites := []CandidateSite{
		{ID: "D-100", RentCost: 10000, Capacity: 1000, SetupCost: 150000},
	}

	return demand, sites
}

// randomInstance places demand within 4 km of a central high-capacity site
// so every cap on opened sites stays feasible.
func randomInstance(seed uint64, nDemand, nSites int) ([]DemandPoint, []CandidateSite) {
	rng := rand.New(rand.NewPCG(seed, seed*31+7))
	offset := func() float64 { return north(rng.Float64()*8 - 4) }

	demand := make([]DemandPoint, nDemand)
	for i := range demand {
		demand[i] = DemandPoint{
			ID:          fmt.Sprintf("c%d", i+1),
			Lat:         41 + offset(),
			Lon:         29 + offset(),
			DailyOrders: 5 + rng.IntN(26),
		}
	}

	sites := make([]CandidateSite, nSites)
	sites[0] = CandidateSite{ID: "D-100", Lat: 41, Lon: 29, RentCost: 60000, Capacity: 1000, SetupCost: 200000}

	for j := 1; j < nSites; j++ {
		sites[j] = CandidateSite{
			ID:        fmt.Sprintf("D-%d", 100+j),
			Lat:       41 + offset(),
			Lon:       29 + offset(),
			RentCost:  float64(2000 + rng.IntN(40)*100),
			Capacity:  []int{60, 90, 120}[rng.IntN(3)],
			SetupCost: 150000,
		}
	}

	return demand, sites
}
