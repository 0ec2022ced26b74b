// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package facility

import (
	"github.com/urbanlogistics/depot/milp"
)

// Formulation is the MILP built for one call together with the variable
// handles needed to read a solution back.
type Formulation struct {
	Model      *milp.Model
	Open       []milp.Var
	Assign     []milp.Var
	Admissible *AdmissibleSet
}

// TransportCost returns the cost of serving demand point i from site j at
// the given distance.
func TransportCost(distanceKm float64, orders int, params Params) float64 {
	return distanceKm * params.CostPerKm * float64(orders)
}

// BuildModel creates the binary program: one Open variable per site, one
// Assign variable per admissible pair, coverage for every servable demand
// point, linking per pair, capacity per site and the cardinality cap.
func BuildModel(demand []DemandPoint, sites []CandidateSite, adm *AdmissibleSet, params Params) *Formulation {
	m := milp.NewModel("facility_location")
	f := &Formulation{
		Model:      m,
		Open:       make([]milp.Var, len(sites)),
		Assign:     make([]milp.Var, len(adm.Pairs)),
		Admissible: adm,
	}

	for j, s := range sites {
		f.Open[j] = m.AddBinary("open_"+s.ID, s.RentCost)
		m.SetPriority(f.Open[j], 1)
	}

	for k, p := range adm.Pairs {
		d := demand[p.Demand]
		f.Assign[k] = m.AddBinary("assign_"+d.ID+"_"+sites[p.Site].ID,
			TransportCost(p.DistanceKm, d.DailyOrders, params))
	}

	for i, pairs := range adm.ByDemand {
		if len(pairs) == 0 {
			continue
		}

		terms := make([]milp.Term, len(pairs))
		for n, k := range pairs {
			terms[n] = milp.Term{Var: f.Assign[k], Coef: 1}
		}

		m.AddRow(milp.Row{Name: "cover_" + demand[i].ID, Terms: terms, Sense: milp.Equal, RHS: 1})
	}

	for k, p := range adm.Pairs {
		m.AddRow(milp.Row{
			Name:  "link_" + demand[p.Demand].ID + "_" + sites[p.Site].ID,
			Terms: []milp.Term{{Var: f.Assign[k], Coef: 1}, {Var: f.Open[p.Site], Coef: -1}},
			Sense: milp.LessEqual,
			Lazy:  true,
		})
	}

	for j, s := range sites {
		terms := make([]milp.Term, 0, len(adm.BySite[j])+1)
		for _, k := range adm.BySite[j] {
			terms = append(terms, milp.Term{Var: f.Assign[k], Coef: float64(demand[adm.Pairs[k].Demand].DailyOrders)})
		}

		terms = append(terms, milp.Term{Var: f.Open[j], Coef: -float64(s.Capacity)})
		m.AddRow(milp.Row{Name: "capacity_" + s.ID, Terms: terms, Sense: milp.LessEqual})
	}

	open := make([]milp.Term, len(sites))
	for j := range sites {
		open[j] = milp.Term{Var: f.Open[j], Coef: 1}
	}

	m.AddRow(milp.Row{Name: "max_sites", Terms: open, Sense: milp.LessEqual, RHS: float64(params.MaxSitesToOpen)})

	return f
}
