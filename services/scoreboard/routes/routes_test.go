// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/gauntlet/pkg/extensions"
	"github.com/AleutianAI/gauntlet/services/scoreboard/observability"
	"github.com/AleutianAI/gauntlet/services/scoreboard/ratelimit"
	"github.com/AleutianAI/gauntlet/services/scoreboard/storage"
	"github.com/AleutianAI/gauntlet/services/scoreboard/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	chain, err := storage.NewChain(nil, []storage.Tier{memory.New()})
	require.NoError(t, err)

	router := gin.New()
	SetupRoutes(router, Deps{
		Chain:              chain,
		Scores:             storage.NewScoreStore(chain, metrics),
		Progress:           storage.NewProgressStore(chain, metrics),
		Limiter:            ratelimit.NewFixedWindow(100, ratelimit.DefaultWindow),
		Metrics:            metrics,
		Identity:           &extensions.AnonymousProvider{},
		RateLimitPerWindow: 100,
		TopLimit:           100,
	})
	return router
}

func TestSetupRoutes_RegistersAll(t *testing.T) {
	router := newTestRouter(t)

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/scores"},
		{"GET", "/v1/scores"},
		{"GET", "/v1/progress"},
		{"POST", "/v1/progress"},
		{"GET", "/v1/scoreboard/metrics"},
	}

	routes := router.Routes()
	for _, want := range expected {
		found := false
		for _, r := range routes {
			if r.Method == want.method && r.Path == want.path {
				found = true
				break
			}
		}
		assert.True(t, found, "route %s %s should be registered", want.method, want.path)
	}
}

// TestUnsupportedMethod verifies 405 with an Allow header naming the
// supported methods, instead of gin's default 404.
func TestUnsupportedMethod(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		method    string
		path      string
		wantAllow string
	}{
		{http.MethodDelete, "/v1/scores", "GET, POST"},
		{http.MethodPut, "/v1/progress", "GET, POST"},
		{http.MethodPost, "/v1/scoreboard/metrics", "GET"},
		{http.MethodDelete, "/health", "GET"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
			assert.Equal(t, tt.wantAllow, w.Header().Get("Allow"))
		})
	}
}

func TestUnknownPathIs404(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPrometheusEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
