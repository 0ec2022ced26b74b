// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

// Package config reads the YAML configuration shared by the CLI and the
// HTTP server.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urbanlogistics/depot/facility"
	"gopkg.in/yaml.v3"
)

// Config is loaded once and then treated as a value. Command line flags
// override individual fields after Load.
type Config struct {
	Optimizer facility.Params `yaml:"optimizer"`
	Store     Store           `yaml:"store"`
	Server    Server          `yaml:"server"`
}

// Store locates the working database and the optional results mirror.
type Store struct {
	// Path is the directory holding the DuckDB file.
	Path string `yaml:"path"`
	// ResultsDSN is a postgres:// URL where runs are copied after each solve.
	ResultsDSN string `yaml:"results_dsn"`
}

type Server struct {
	Addr                string  `yaml:"addr"`
	RatePerSecond       float64 `yaml:"rate_per_second"`
	Burst               int     `yaml:"burst"`
	MaxConcurrentSolves int     `yaml:"max_concurrent_solves"`
	// MaxTimeLimit caps the time limit a request may ask for.
	MaxTimeLimit time.Duration `yaml:"max_time_limit"`
}

const DefaultPath = "./db"

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Optimizer: facility.DefaultParams(),
		Store:     Store{Path: DefaultPath},
		Server: Server{
			Addr:                "localhost:8080",
			RatePerSecond:       2,
			Burst:               4,
			MaxConcurrentSolves: 2,
			MaxTimeLimit:        5 * time.Minute,
		},
	}
}

// Load reads path over the defaults: keys missing from the file keep their
// default value. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	var errs []error

	if err := c.Optimizer.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path must not be empty"))
	}

	if c.Server.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("server.rate_per_second must not be negative, got %v", c.Server.RatePerSecond))
	}

	if c.Server.Burst < 1 {
		errs = append(errs, fmt.Errorf("server.burst must be at least 1, got %d", c.Server.Burst))
	}

	if c.Server.MaxConcurrentSolves < 1 {
		errs = append(errs, fmt.Errorf("server.max_concurrent_solves must be at least 1, got %d", c.Server.MaxConcurrentSolves))
	}

	if c.Server.MaxTimeLimit <= 0 {
		errs = append(errs, fmt.Errorf("server.max_time_limit must be positive, got %s", c.Server.MaxTimeLimit))
	}

	return errors.Join(errs...)
}
