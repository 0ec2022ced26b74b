// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/urbanlogistics/depot/config"
	"github.com/urbanlogistics/depot/facility"
	"github.com/urbanlogistics/depot/milp"
	"github.com/urbanlogistics/depot/runner"
	"github.com/urbanlogistics/depot/store"
)

type solveOptions struct {
	DemandPath       string
	SitesPath        string
	OutDir           string
	ResultsDSN       string
	MaxStores        int
	MaxRangeKm       float64
	CostPerKm        float64
	TimeLimit        time.Duration
	NoSpatialIndex   bool
	RejectUnservable bool
}

var solveOpts = &solveOptions{}

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve a siting instance from demand and candidate site CSV files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		applySolveFlags(cmd, &cfg)

		if err := cfg.Optimizer.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		return solve(ctx, cfg, solveOpts.DemandPath, solveOpts.SitesPath, solveOpts.OutDir)
	},
}

// applySolveFlags overrides the configuration with the flags given explicitly.
func applySolveFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("max-stores") {
		cfg.Optimizer.MaxSitesToOpen = solveOpts.MaxStores
	}

	if flags.Changed("max-range") {
		cfg.Optimizer.MaxRangeKm = solveOpts.MaxRangeKm
	}

	if flags.Changed("cost-per-km") {
		cfg.Optimizer.CostPerKm = solveOpts.CostPerKm
	}

	if flags.Changed("time-limit") {
		cfg.Optimizer.TimeLimit = solveOpts.TimeLimit
	}

	if flags.Changed("results-dsn") {
		cfg.Store.ResultsDSN = solveOpts.ResultsDSN
	}

	if solveOpts.NoSpatialIndex {
		cfg.Optimizer.SpatialIndex = false
	}

	if solveOpts.RejectUnservable {
		cfg.Optimizer.Unservable = facility.UnservableReject
	}
}

func solve(ctx context.Context, cfg config.Config, demandPath, sitesPath, outDir string) error {
	db, err := store.OpenState(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	history := store.NewSQLRunRepository(db)
	if err := history.CreateSchema(); err != nil {
		return fmt.Errorf("creating run history schema: %w", err)
	}

	var mirrors []store.RunRepository

	if cfg.Store.ResultsDSN != "" {
		mirrorDB, err := store.Open(cfg.Store.ResultsDSN)
		if err != nil {
			return fmt.Errorf("opening results database: %w", err)
		}
		defer mirrorDB.Close()

		mirror := store.NewSQLRunRepository(mirrorDB)
		if err := mirror.CreateSchema(); err != nil {
			return fmt.Errorf("creating results schema: %w", err)
		}

		mirrors = append(mirrors, mirror)
	}

	demand, errDemand := store.LoadDemandCSV(db, demandPath)
	sites, errSites := store.LoadSitesCSV(db, sitesPath)

	if err := errors.Join(errDemand, errSites); err != nil {
		return err
	}

	log.Printf("Solving with %s", cfg.Optimizer)

	progress := newSolveProgress()
	optimizer := facility.NewOptimizer(facility.WithProgress(progress.report))

	run, err := runner.New(optimizer, history, mirrors...).Run(ctx, demand, sites, cfg.Optimizer)

	progress.finish()

	if err != nil {
		return err
	}

	printSolution(run)

	if !run.Solution.HasPlan() {
		return nil
	}

	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	files, err := store.ExportRunCSV(db, run.ID, outDir)
	if err != nil {
		return err
	}

	log.Printf("Run %s written to %s", run.ID, strings.Join(files, ", "))

	return nil
}

// solveProgress shows a spinner on terminals and a periodic log line
// otherwise.
type solveProgress struct {
	mu      sync.Mutex
	bar     *progressbar.ProgressBar
	lastLog time.Time
}

func newSolveProgress() *solveProgress {
	p := &solveProgress{lastLog: time.Now()}

	if isatty.IsTerminal(os.Stderr.Fd()) {
		p.bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Searching"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
		)
	}

	return p
}

func (p *solveProgress) report(pr milp.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	incumbent := "none"
	if pr.HasIncumbent {
		incumbent = fmt.Sprintf("%.2f", pr.Incumbent)
	}

	desc := fmt.Sprintf("Searching: incumbent %s, bound %.2f, %d cuts", incumbent, pr.BestBound, pr.Cuts)

	if p.bar != nil {
		p.bar.Describe(desc)
		_ = p.bar.Set(pr.Nodes)

		return
	}

	if time.Since(p.lastLog) >= 5*time.Second {
		log.Printf("%s after %d nodes (%s)", desc, pr.Nodes, pr.Elapsed.Round(time.Millisecond))
		p.lastLog = time.Now()
	}
}

func (p *solveProgress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func printSolution(run *store.Run) {
	sol := run.Solution

	fmt.Printf("Run %s: %s\n", run.ID, sol.Status)

	if !sol.HasPlan() {
		fmt.Println("No plan satisfies range, capacity and the cap on opened sites.")
		printUnserved(sol.Unserved)

		return
	}

	fmt.Printf("Total cost %.2f (rent %.2f + transport %.2f)", sol.Objective, sol.RentCost, sol.TransportCost)

	if sol.Status == facility.StatusTimeLimited {
		fmt.Printf(", best bound %.2f, gap %.2f%%", sol.BestBound, 100*sol.Gap)
	}

	fmt.Println()

	a, b, c, d, e := strings.Repeat("─", 10), strings.Repeat("─", 12), strings.Repeat("─", 9), strings.Repeat("─", 9), strings.Repeat("─", 6)
	fmt.Printf("╭─%-10s─┬─%12s─┬─%9s─┬─%9s─┬─%6s─╮\n", a, b, c, d, e)
	fmt.Printf("│ %-10s │ %12s │ %9s │ %9s │ %6s │\n", "Site", "Rent", "Customers", "Orders", "Load")
	fmt.Printf("├─%-10s─┼─%12s─┼─%9s─┼─%9s─┼─%6s─┤\n", a, b, c, d, e)

	for _, s := range sol.Sites {
		fmt.Printf("│ %-10s │ %12.2f │ %9d │ %9d │ %5.1f%% │\n",
			s.ID, s.RentCost, s.AssignedPoints, s.AssignedOrders, 100*s.Utilization())
	}

	fmt.Printf("╰─%-10s─┴─%12s─┴─%9s─┴─%9s─┴─%6s─╯\n", a, b, c, d, e)

	printUnserved(sol.Unserved)
}

func printUnserved(unserved []facility.UnservedPoint) {
	if len(unserved) == 0 {
		return
	}

	fmt.Printf("%d demand points cannot be served:\n", len(unserved))

	for _, u := range unserved {
		fmt.Printf("  %s: %s\n", u.CustomerID, u.Reason)
	}
}

func init() {
	rootCmd.AddCommand(solveCmd)

	flags := solveCmd.Flags()
	flags.StringVar(&solveOpts.DemandPath, "demand", "demand_points.csv", "Demand points CSV (id, lat, lon, daily_orders)")
	flags.StringVar(&solveOpts.SitesPath, "sites", "candidate_sites.csv",
		"Candidate sites CSV (site_id, lat, lon, rent_cost, capacity, setup_cost)")
	flags.StringVar(&solveOpts.OutDir, "out", "results", "Directory for selected_sites.csv and customer_assignments.csv")
	flags.StringVar(&solveOpts.ResultsDSN, "results-dsn", "", "postgres:// URL where every run is also recorded")
	flags.IntVar(&solveOpts.MaxStores, "max-stores", facility.DefaultMaxSitesToOpen, "Maximum number of sites to open")
	flags.Float64Var(&solveOpts.MaxRangeKm, "max-range", facility.DefaultMaxRangeKm, "Service radius in kilometers")
	flags.Float64Var(&solveOpts.CostPerKm, "cost-per-km", facility.DefaultCostPerKm, "Transport cost per order per kilometer")
	flags.DurationVar(&solveOpts.TimeLimit, "time-limit", facility.DefaultTimeLimit, "Solver time limit")
	flags.BoolVar(&solveOpts.NoSpatialIndex, "no-spatial-index", false, "Compute every demand to site distance")
	flags.BoolVar(&solveOpts.RejectUnservable, "reject-unservable", false,
		"Fail when a demand point has no candidate site in range")
}
