// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/urbanlogistics/depot/config"
)

type logWriter struct {
	writer io.Writer
}

func (w *logWriter) Write(bytes []byte) (int, error) {
	return fmt.Fprintf(w.writer, "%s %s", time.Now().Format("2006-01-02 15:04:05"), string(bytes))
}

func init() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{writer: os.Stderr})

	rootCmd.PersistentFlags().StringVar(&rootOptions.ConfigPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&rootOptions.DbPath, "db-path", config.DefaultPath,
		"Directory holding the working database and run history")
}

var rootCmd = &cobra.Command{
	Use:   "depot",
	Short: "capacitated facility siting for last-mile depots",
	Long: `
depot picks which candidate warehouse sites to open and which site serves
each customer location, minimizing rent plus distance weighted transport
cost under a service radius, site capacities and a cap on opened sites.
`,
	SilenceUsage: true,
}

var rootOptions struct {
	ConfigPath string
	DbPath     string
}

// loadConfig reads --config and applies the root level overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(rootOptions.ConfigPath)
	if err != nil {
		return cfg, err
	}

	if cmd.Flags().Changed("db-path") || cfg.Store.Path == "" {
		cfg.Store.Path = rootOptions.DbPath
	}

	return cfg, nil
}

var Version = "dev"

func Execute(version string) {
	Version = version
	rootCmd.Version = version

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
