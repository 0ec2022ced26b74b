// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urbanlogistics/depot/facility"
	"github.com/urbanlogistics/depot/store"
)

// OptimizeRequest carries both tables inline. Missing parameters take the
// configured defaults.
type OptimizeRequest struct {
	Demand           []facility.DemandPoint   `json:"demand"`
	Sites            []facility.CandidateSite `json:"sites"`
	MaxRangeKm       *float64                 `json:"max_range_km"`
	CostPerKm        *float64                 `json:"cost_per_km"`
	MaxStoresToOpen  *int                     `json:"max_stores_to_open"`
	TimeLimitSeconds *float64                 `json:"time_limit_seconds"`
	SpatialIndex     *bool                    `json:"spatial_index"`
	Unservable       *string                  `json:"unservable"`
}

// params overlays the request on defaults.
func (req *OptimizeRequest) params(defaults facility.Params) facility.Params {
	p := defaults

	if req.MaxRangeKm != nil {
		p.MaxRangeKm = *req.MaxRangeKm
	}

	if req.CostPerKm != nil {
		p.CostPerKm = *req.CostPerKm
	}

	if req.MaxStoresToOpen != nil {
		p.MaxSitesToOpen = *req.MaxStoresToOpen
	}

	if req.TimeLimitSeconds != nil {
		p.TimeLimit = time.Duration(*req.TimeLimitSeconds * float64(time.Second))
	}

	if req.SpatialIndex != nil {
		p.SpatialIndex = *req.SpatialIndex
	}

	if req.Unservable != nil {
		p.Unservable = facility.UnservablePolicy(*req.Unservable)
	}

	return p
}

type ParamsResponse struct {
	MaxRangeKm       float64 `json:"max_range_km"`
	CostPerKm        float64 `json:"cost_per_km"`
	MaxStoresToOpen  int     `json:"max_stores_to_open"`
	TimeLimitSeconds float64 `json:"time_limit_seconds"`
}

func paramsResponse(p facility.Params) ParamsResponse {
	return ParamsResponse{
		MaxRangeKm:       p.MaxRangeKm,
		CostPerKm:        p.CostPerKm,
		MaxStoresToOpen:  p.MaxSitesToOpen,
		TimeLimitSeconds: p.TimeLimit.Seconds(),
	}
}

// RunResponse is a stored run. Solution fields are inlined.
type RunResponse struct {
	RunID     string         `json:"run_id"`
	CreatedAt time.Time      `json:"created_at"`
	Params    ParamsResponse `json:"params"`
	Error     string         `json:"error,omitempty"`
	*facility.Solution
}

func runResponse(run *store.Run) RunResponse {
	sol := run.Solution
	if sol == nil {
		sol = &facility.Solution{Status: facility.StatusFailed}
	}

	return RunResponse{
		RunID:     run.ID,
		CreatedAt: run.CreatedAt,
		Params:    paramsResponse(run.Params),
		Error:     run.Error,
		Solution:  sol,
	}
}

func (s *Server) optimize(ctx *gin.Context) {
	var req OptimizeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})

		return
	}

	params := req.params(s.cfg.Optimizer)
	if params.TimeLimit > s.cfg.Server.MaxTimeLimit {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("time limit %s exceeds the server maximum of %s", params.TimeLimit, s.cfg.Server.MaxTimeLimit),
		})

		return
	}

	select {
	case s.solves <- struct{}{}:
		defer func() { <-s.solves }()
	case <-ctx.Request.Context().Done():
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "request canceled while waiting for a solver slot"})

		return
	}

	run, err := s.runner.Run(ctx.Request.Context(), req.Demand, req.Sites, params)
	if err != nil {
		s.optimizeError(ctx, run, err)

		return
	}

	ctx.JSON(http.StatusOK, runResponse(run))
}

func (s *Server) optimizeError(ctx *gin.Context, run *store.Run, err error) {
	if facility.IsInputError(err) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": facility.InputErrors(err)})

		return
	}

	body := gin.H{"error": err.Error()}
	if run != nil {
		body["run_id"] = run.ID
		body["status"] = run.Status()
	}

	ctx.JSON(http.StatusInternalServerError, body)
}

func (s *Server) listRuns(ctx *gin.Context) {
	limit := 20

	if v := ctx.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit parameter"})

			return
		}

		limit = n
	}

	runs, err := s.history.ListRuns(limit)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	if runs == nil {
		runs = []*store.RunSummary{}
	}

	ctx.JSON(http.StatusOK, runs)
}

func (s *Server) getRun(ctx *gin.Context) {
	run, err := s.history.GetRun(ctx.Param("id"))
	if errors.Is(err, store.ErrRunNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

		return
	}

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, runResponse(run))
}
