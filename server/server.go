// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the optimizer and the run history over HTTP.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urbanlogistics/depot/config"
	"github.com/urbanlogistics/depot/metrics"
	"github.com/urbanlogistics/depot/runner"
	"github.com/urbanlogistics/depot/store"
	"golang.org/x/time/rate"
)

type Server struct {
	cfg      config.Config
	runner   *runner.Runner
	history  store.RunRepository
	limiter  *rate.Limiter
	solves   chan struct{}
	shutdown time.Duration
}

func NewServer(cfg config.Config, r *runner.Runner, history store.RunRepository) *Server {
	limit := rate.Limit(cfg.Server.RatePerSecond)
	if cfg.Server.RatePerSecond == 0 {
		limit = rate.Inf
	}

	return &Server{
		cfg:      cfg,
		runner:   r,
		history:  history,
		limiter:  rate.NewLimiter(limit, cfg.Server.Burst),
		solves:   make(chan struct{}, cfg.Server.MaxConcurrentSolves),
		shutdown: 10 * time.Second,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	metrics.RegisterDefault()

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), observe())

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.POST("/optimize", s.rateLimit(), s.optimize)
	api.GET("/runs", s.listRuns)
	api.GET("/runs/:id", s.getRun)

	return r
}

// Run serves until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		log.Printf("API listening on %s", s.cfg.Server.Addr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		status := strconv.Itoa(c.Writer.Status())
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded, retry later"})

			return
		}

		c.Next()
	}
}

func (s *Server) health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}
