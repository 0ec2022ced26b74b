// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urbanlogistics/depot/config"
	"github.com/urbanlogistics/depot/facility"
	"github.com/urbanlogistics/depot/runner"
	"github.com/urbanlogistics/depot/store"
)

func setupServerTest(t *testing.T, mutate func(*config.Config)) *gin.Engine {
	gin.SetMode(gin.TestMode)

	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	history := store.NewSQLRunRepository(db)
	require.NoError(t, history.CreateSchema())

	cfg := config.Default()
	cfg.Optimizer.TimeLimit = 10 * time.Second
	cfg.Server.RatePerSecond = 0

	if mutate != nil {
		mutate(&cfg)
	}

	r := runner.New(facility.NewOptimizer(facility.WithLogger(t.Logf)), history)

	return NewServer(cfg, r, history).Router()
}

const threePointBody = `{
	"demand": [
		{"id": "c1", "lat": 41.000, "lon": 29.0, "daily_orders": 10},
		{"id": "c2", "lat": 41.020, "lon": 29.0, "daily_orders": 10},
		{"id": "c3", "lat": 42.000, "lon": 29.0, "daily_orders": 10}
	],
	"sites": [
		{"site_id": "D-100", "lat": 41.01, "lon": 29.0, "rent_cost": 10000, "capacity": 1000, "setup_cost": 150000}
	],
	"max_stores_to_open": 2
}`

func post(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	return w
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)

	return w
}

func TestOptimizeAPI(t *testing.T) {
	router := setupServerTest(t, nil)

	w := post(router, "/api/optimize", threePointBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		RunID       string                   `json:"run_id"`
		Status      facility.Status          `json:"status"`
		Objective   float64                  `json:"objective"`
		Sites       []facility.SelectedSite  `json:"selected_sites"`
		Assignments []facility.Assignment    `json:"assignments"`
		Unserved    []facility.UnservedPoint `json:"unserved"`
		Params      ParamsResponse           `json:"params"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, facility.StatusOptimal, resp.Status)
	require.Len(t, resp.Sites, 1)
	assert.Equal(t, "D-100", resp.Sites[0].ID)
	assert.Len(t, resp.Assignments, 2)
	require.Len(t, resp.Unserved, 1)
	assert.Equal(t, "c3", resp.Unserved[0].CustomerID)
	assert.Equal(t, 2, resp.Params.MaxStoresToOpen)
	assert.InDelta(t, 8.0, resp.Params.MaxRangeKm, 0)

	w = get(router, "/api/runs/"+resp.RunID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"optimal"`)

	w = get(router, "/api/runs")
	require.Equal(t, http.StatusOK, w.Code)

	var runs []store.RunSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, resp.RunID, runs[0].ID)
	assert.Equal(t, 1, runs[0].SitesOpened)
}

func TestOptimizeAPI_InvalidInput(t *testing.T) {
	router := setupServerTest(t, nil)

	body := strings.Replace(threePointBody, `"capacity": 1000`, `"capacity": 0`, 1)

	w := post(router, "/api/optimize", body)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Error   string                `json:"error"`
		Details []facility.InputError `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Details, 1)
	assert.Equal(t, facility.TableSites, resp.Details[0].Table)
	assert.Equal(t, "capacity", resp.Details[0].Column)
}

func TestOptimizeAPI_MalformedJSON(t *testing.T) {
	router := setupServerTest(t, nil)

	w := post(router, "/api/optimize", `{"demand": [`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOptimizeAPI_TimeLimitTooLarge(t *testing.T) {
	router := setupServerTest(t, nil)

	body := strings.Replace(threePointBody, `"max_stores_to_open": 2`, `"time_limit_seconds": 86400`, 1)

	w := post(router, "/api/optimize", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "exceeds the server maximum")
}

func TestOptimizeAPI_Infeasible(t *testing.T) {
	router := setupServerTest(t, nil)

	body := strings.Replace(threePointBody, `"capacity": 1000`, `"capacity": 15`, 1)

	w := post(router, "/api/optimize", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"infeasible"`)
}

func TestOptimizeAPI_RateLimited(t *testing.T) {
	router := setupServerTest(t, func(cfg *config.Config) {
		cfg.Server.RatePerSecond = 0.001
		cfg.Server.Burst = 1
	})

	w := post(router, "/api/optimize", threePointBody)
	require.Equal(t, http.StatusOK, w.Code)

	w = post(router, "/api/optimize", threePointBody)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// reads are not limited
	w = get(router, "/api/runs")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetRunAPI_NotFound(t *testing.T) {
	router := setupServerTest(t, nil)

	w := get(router, "/api/runs/does-not-exist")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRunsAPI_InvalidLimit(t *testing.T) {
	router := setupServerTest(t, nil)

	w := get(router, "/api/runs?limit=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = get(router, "/api/runs")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	router := setupServerTest(t, nil)

	w := get(router, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	post(router, "/api/optimize", threePointBody)

	w = get(router, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "depot_solves_total")
	assert.Contains(t, w.Body.String(), `http_requests_total{method="POST",path="/api/optimize"`)
}
