// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/urbanlogistics/depot/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run history",
}

var runsListLimit int

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		db, err := store.OpenState(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := store.NewSQLRunRepository(db)
		if err := repo.CreateSchema(); err != nil {
			return fmt.Errorf("creating run history schema: %w", err)
		}

		runs, err := repo.ListRuns(runsListLimit)
		if err != nil {
			return err
		}

		a, b, c, d, e := strings.Repeat("─", 36), strings.Repeat("─", 19), strings.Repeat("─", 12),
			strings.Repeat("─", 14), strings.Repeat("─", 5)
		fmt.Printf("╭─%-36s─┬─%-19s─┬─%-12s─┬─%14s─┬─%5s─╮\n", a, b, c, d, e)
		fmt.Printf("│ %-36s │ %-19s │ %-12s │ %14s │ %5s │\n", "Run", "Created", "Status", "Cost", "Sites")
		fmt.Printf("├─%-36s─┼─%-19s─┼─%-12s─┼─%14s─┼─%5s─┤\n", a, b, c, d, e)

		for _, r := range runs {
			cost := "-"
			if r.Objective != nil {
				cost = fmt.Sprintf("%.2f", *r.Objective)
			}

			fmt.Printf("│ %-36s │ %-19s │ %-12s │ %14s │ %5d │\n",
				r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Status, cost, r.SitesOpened)
		}

		fmt.Printf("╰─%-36s─┴─%-19s─┴─%-12s─┴─%14s─┴─%5s─╯\n", a, b, c, d, e)

		return nil
	},
}

var runsExportOut string

var runsExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Write the output tables of a run as CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		db, err := store.OpenState(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := store.NewSQLRunRepository(db)
		if err := repo.CreateSchema(); err != nil {
			return fmt.Errorf("creating run history schema: %w", err)
		}

		run, err := repo.GetRun(args[0])
		if err != nil {
			return err
		}

		if run.Solution == nil || !run.Solution.HasPlan() {
			return fmt.Errorf("run %s has no plan to export (status %s)", run.ID, run.Status())
		}

		if err := os.MkdirAll(runsExportOut, 0o750); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}

		files, err := store.ExportRunCSV(db, run.ID, runsExportOut)
		if err != nil {
			return err
		}

		log.Printf("Run %s written to %s", run.ID, strings.Join(files, ", "))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsExportCmd)
	runsListCmd.Flags().IntVar(&runsListLimit, "limit", 20, "Number of runs to list")
	runsExportCmd.Flags().StringVar(&runsExportOut, "out", "results", "Output directory")
}
