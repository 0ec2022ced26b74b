// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/urbanlogistics/depot/facility"
	"github.com/urbanlogistics/depot/runner"
	"github.com/urbanlogistics/depot/server"
	"github.com/urbanlogistics/depot/store"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the optimization API and the run history over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = serveAddr
		}

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

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		r := runner.New(facility.NewOptimizer(), history, mirrors...)

		return server.NewServer(cfg, r, history).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:8080", "Listen address")
}
