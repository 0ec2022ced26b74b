// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/urbanlogistics/depot/facility"
	"github.com/urbanlogistics/depot/store"
)

// Synthetic instances are drawn around the Asian side of Istanbul.
const (
	seedCenterLat = 40.99
	seedCenterLon = 29.08
	seedSpread    = 0.03
)

var (
	seedCapacities = []int{1000, 1500, 2000, 3000}
	seedSetupCosts = []float64{150000, 200000}
)

type seedOptions struct {
	OutDir   string
	Demand   int
	Clusters int
	Sites    int
	Seed     uint64
}

// generateDemand places demand points in Gaussian clusters whose centers lie
// within seedSpread degrees of the reference center.
func generateDemand(rng *rand.Rand, n, clusters int) []facility.DemandPoint {
	type center struct{ lat, lon float64 }

	centers := make([]center, clusters)
	for i := range centers {
		centers[i] = center{
			lat: seedCenterLat + (2*rng.Float64()-1)*seedSpread,
			lon: seedCenterLon + (2*rng.Float64()-1)*seedSpread,
		}
	}

	std := seedSpread * 0.4
	points := make([]facility.DemandPoint, n)

	for i := range points {
		c := centers[i%clusters]
		points[i] = facility.DemandPoint{
			ID:          strconv.Itoa(i + 1),
			Lat:         c.lat + rng.NormFloat64()*std,
			Lon:         c.lon + rng.NormFloat64()*std,
			DailyOrders: 5 + rng.IntN(45),
		}
	}

	return points
}

// generateSites spreads candidate sites uniformly over the bounding box of
// the demand. Rent grows near the center and with capacity.
func generateSites(rng *rand.Rand, n int, demand []facility.DemandPoint) []facility.CandidateSite {
	minLat, maxLat := math.Inf(1), math.Inf(-1)
	minLon, maxLon := math.Inf(1), math.Inf(-1)

	for _, d := range demand {
		minLat, maxLat = min(minLat, d.Lat), max(maxLat, d.Lat)
		minLon, maxLon = min(minLon, d.Lon), max(maxLon, d.Lon)
	}

	sites := make([]facility.CandidateSite, n)

	for i := range sites {
		lat := minLat + rng.Float64()*(maxLat-minLat)
		lon := minLon + rng.Float64()*(maxLon-minLon)
		capacity := seedCapacities[rng.IntN(len(seedCapacities))]

		dist := math.Hypot(lat-seedCenterLat, lon-seedCenterLon)
		rent := 20000 + 500/(dist+0.01) + float64(capacity)*5

		sites[i] = facility.CandidateSite{
			ID:        fmt.Sprintf("D-%d", i+100),
			Lat:       lat,
			Lon:       lon,
			RentCost:  math.Round(rent/100) * 100,
			Capacity:  capacity,
			SetupCost: seedSetupCosts[rng.IntN(len(seedSetupCosts))],
		}
	}

	return sites
}

// generateInstance draws the demand points and candidate sites of opts.Seed.
func generateInstance(opts *seedOptions) ([]facility.DemandPoint, []facility.CandidateSite) {
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	demand := generateDemand(rng, opts.Demand, opts.Clusters)

	return demand, generateSites(rng, opts.Sites, demand)
}

func newSeedCmd() *cobra.Command {
	opts := &seedOptions{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Writes a synthetic demand and candidate site instance as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			return seedInstance(cfg.Store.Path, opts)
		},
	}

	cmd.Flags().StringVar(&opts.OutDir, "out", "data", "Output directory")
	cmd.Flags().IntVar(&opts.Demand, "demand", 300, "Number of demand points")
	cmd.Flags().IntVar(&opts.Clusters, "clusters", 6, "Number of demand clusters")
	cmd.Flags().IntVar(&opts.Sites, "sites", 30, "Number of candidate sites")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 42, "Random seed")

	return cmd
}

func init() {
	rootCmd.AddCommand(newSeedCmd())
}

func seedInstance(dbPath string, opts *seedOptions) error {
	if opts.Demand < 1 || opts.Clusters < 1 || opts.Sites < 1 {
		return fmt.Errorf("demand, clusters and sites must be positive")
	}

	demand, sites := generateInstance(opts)

	db, err := store.OpenState(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.SaveDemand(db, demand); err != nil {
		return fmt.Errorf("saving demand: %w", err)
	}

	if err := store.SaveSites(db, sites); err != nil {
		return fmt.Errorf("saving sites: %w", err)
	}

	if err := os.MkdirAll(opts.OutDir, 0o750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	demandPath := filepath.Join(opts.OutDir, "demand_points.csv")
	if err := store.ExportDemandCSV(db, demandPath); err != nil {
		return err
	}

	sitesPath := filepath.Join(opts.OutDir, "candidate_sites.csv")
	if err := store.ExportSitesCSV(db, sitesPath); err != nil {
		return err
	}

	log.Printf("Generated %d demand points in %d clusters and %d candidate sites: %s, %s",
		len(demand), opts.Clusters, len(sites), demandPath, sitesPath)

	return nil
}
