// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/gauntlet/pkg/extensions"
	"github.com/AleutianAI/gauntlet/services/scoreboard/middleware"
	"github.com/AleutianAI/gauntlet/services/scoreboard/observability"
	"github.com/AleutianAI/gauntlet/services/scoreboard/ratelimit"
	"github.com/AleutianAI/gauntlet/services/scoreboard/storage"
	"github.com/AleutianAI/gauntlet/services/scoreboard/storage/memory"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

// downTier is a storage.Tier whose every operation fails, simulating a
// total backend outage.
type downTier struct{}

func (downTier) Name() string     { return "down" }
func (downTier) Configured() bool { return true }
func (downTier) PutScore(context.Context, storage.ScoreEntry) error {
	return errors.New("backend down")
}
func (downTier) TopScores(context.Context, string, int) ([]storage.ScoreEntry, error) {
	return nil, errors.New("backend down")
}
func (downTier) GetProgress(context.Context, string) (*storage.ProgressRecord, error) {
	return nil, errors.New("backend down")
}
func (downTier) PutProgress(context.Context, string, *storage.ProgressRecord) error {
	return errors.New("backend down")
}

// brokenLimiter simulates a limiter failure; handlers must fail open.
type brokenLimiter struct{}

func (brokenLimiter) Allow(string) (bool, error) {
	return false, errors.New("limiter state corrupted")
}

type testEnv struct {
	router  *gin.Engine
	metrics *observability.Metrics
}

type envConfig struct {
	tier    storage.Tier
	limiter ratelimit.Limiter
	limit   int
}

func newTestEnv(t *testing.T, cfg envConfig) *testEnv {
	t.Helper()

	if cfg.tier == nil {
		cfg.tier = memory.New()
	}
	if cfg.limit == 0 {
		cfg.limit = 100
	}
	if cfg.limiter == nil {
		cfg.limiter = ratelimit.NewFixedWindow(cfg.limit, ratelimit.DefaultWindow)
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	chain, err := storage.NewChain(nil, []storage.Tier{cfg.tier})
	require.NoError(t, err)

	scores := storage.NewScoreStore(chain, metrics)
	progress := storage.NewProgressStore(chain, metrics)
	provider := &extensions.StaticProvider{Tokens: map[string]extensions.Identity{
		"ada-token": {Key: "ada@example.com", DisplayName: "Ada"},
	}}

	router := gin.New()
	identity := middleware.IdentityMiddleware(provider)
	router.POST("/v1/scores", identity, SubmitScore(scores, cfg.limiter, cfg.limit, metrics))
	router.GET("/v1/scores", TopScores(scores, storage.DefaultTopLimit))
	router.GET("/v1/progress", identity, GetProgress(progress))
	router.POST("/v1/progress", identity, UpdateProgress(progress))
	router.GET("/v1/scoreboard/metrics", ScoreboardMetrics(metrics, cfg.limit))
	router.GET("/health", Health(chain))

	return &testEnv{router: router, metrics: metrics}
}

func (e *testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// ============================================================================
// SubmitScore
// ============================================================================

func TestSubmitScore_Anonymous(t *testing.T) {
	env := newTestEnv(t, envConfig{})

	w := env.do(http.MethodPost, "/v1/scores", "",
		`{"levelId":"l1","score":95,"displayName":"guest"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "memory", body["storedIn"])

	entry := body["entry"].(map[string]any)
	assert.Equal(t, "guest", entry["displayName"])
	assert.Equal(t, 95.0, entry["score"])
	assert.NotEmpty(t, entry["timestamp"], "response carries the assigned timestamp")
}

// TestSubmitScore_IdentityNameWins verifies a verified identity
// overrides any caller-supplied display name.
func TestSubmitScore_IdentityNameWins(t *testing.T) {
	env := newTestEnv(t, envConfig{})

	w := env.do(http.MethodPost, "/v1/scores", "ada-token",
		`{"levelId":"l1","score":95,"displayName":"impostor"}`)

	require.Equal(t, http.StatusOK, w.Code)
	entry := decodeBody(t, w)["entry"].(map[string]any)
	assert.Equal(t, "Ada", entry["displayName"])
}

func TestSubmitScore_ZeroScoreIsValid(t *testing.T) {
	env := newTestEnv(t, envConfig{})

	w := env.do(http.MethodPost, "/v1/scores", "",
		`{"levelId":"l1","score":0,"displayName":"guest"}`)

	assert.Equal(t, http.StatusOK, w.Code, "an explicit zero score is a valid submission")
}

func TestSubmitScore_BadRequests(t *testing.T) {
	env := newTestEnv(t, envConfig{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"levelId":`},
		{"missing levelId", `{"score":95,"displayName":"guest"}`},
		{"missing score", `{"levelId":"l1","displayName":"guest"}`},
		{"negative score", `{"levelId":"l1","score":-1,"displayName":"guest"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/v1/scores", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestSubmitScore_AnonymousWithoutNameIs401(t *testing.T) {
	env := newTestEnv(t, envConfig{})

	w := env.do(http.MethodPost, "/v1/scores", "",
		`{"levelId":"l1","score":95}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubmitScore_InvalidTokenIs401(t *testing.T) {
	env := newTestEnv(t, envConfig{})

	w := env.do(http.MethodPost, "/v1/scores", "bogus-token",
		`{"levelId":"l1","score":95,"displayName":"guest"}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestSubmitScore_RateLimited verifies the 121st-style scenario at a
// small limit: submissions over quota answer 429 with the limit in
// the message, and are counted.
func TestSubmitScore_RateLimited(t *testing.T) {
	env := newTestEnv(t, envConfig{limit: 2})

	for i := 0; i < 2; i++ {
		w := env.do(http.MethodPost, "/v1/scores", "",
			fmt.Sprintf(`{"levelId":"l1","score":%d,"displayName":"guest"}`, i))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := env.do(http.MethodPost, "/v1/scores", "",
		`{"levelId":"l1","score":99,"displayName":"guest"}`)

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate limit exceeded: 2 per hour")

	// The denied run must not appear on the board.
	list := env.do(http.MethodGet, "/v1/scores?levelId=l1", "", "")
	assert.NotContains(t, list.Body.String(), "99")
}

// TestSubmitScore_RejectionsConsumeNoQuota verifies validation and
// auth failures never touch the limiter.
func TestSubmitScore_RejectionsConsumeNoQuota(t *testing.T) {
	env := newTestEnv(t, envConfig{limit: 1})

	for i := 0; i < 5; i++ {
		w := env.do(http.MethodPost, "/v1/scores", "", `{"score":95}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
	}

	w := env.do(http.MethodPost, "/v1/scores", "",
		`{"levelId":"l1","score":95,"displayName":"guest"}`)
	assert.Equal(t, http.StatusOK, w.Code, "quota should be untouched by rejected requests")
}

// TestSubmitScore_LimiterFailureFailsOpen verifies a broken limiter
// lets the write through.
func TestSubmitScore_LimiterFailureFailsOpen(t *testing.T) {
	env := newTestEnv(t, envConfig{limiter: brokenLimiter{}})

	w := env.do(http.MethodPost, "/v1/scores", "",
		`{"levelId":"l1","score":95,"displayName":"guest"}`)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubmitScore_AllTiersDownIs500(t *testing.T) {
	env := newTestEnv(t, envConfig{tier: downTier{}})

	w := env.do(http.MethodPost, "/v1/scores", "",
		`{"levelId":"l1","score":95,"displayName":"guest"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// ============================================================================
// TopScores
// ============================================================================

func TestTopScores_Ranked(t *testing.T) {
	env := newTestEnv(t, envConfig{})
	for _, body := range []string{
		`{"levelId":"l1","score":80,"displayName":"ada"}`,
		`{"levelId":"l1","score":95,"displayName":"bob"}`,
		`{"levelId":"l2","score":99,"displayName":"carol"}`,
	} {
		require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/v1/scores", "", body).Code)
	}

	w := env.do(http.MethodGet, "/v1/scores?levelId=l1", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var ranked []storage.RankedEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ranked))
	require.Len(t, ranked, 2)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, "bob", ranked[0].DisplayName)
	assert.Equal(t, "ada", ranked[1].DisplayName)
}

func TestTopScores_MissingLevelID(t *testing.T) {
	env := newTestEnv(t, envConfig{})

	for _, path := range []string{
		"/v1/scores",
		"/v1/scores?levelId=",
		"/v1/scores?levelId=l1&levelId=l2",
	} {
		w := env.do(http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusBadRequest, w.Code, "path %s", path)
	}
}

func TestTopScores_EmptyLevel(t *testing.T) {
	env := newTestEnv(t, envConfig{})

	w := env.do(http.MethodGet, "/v1/scores?levelId=never-played", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

// TestTopScores_AllTiersDownDegradesToEmpty verifies a read with no
// reachable tier answers 200 with an empty board, not an error.
func TestTopScores_AllTiersDownDegradesToEmpty(t *testing.T) {
	env := newTestEnv(t, envConfig{tier: downTier{}})

	w := env.do(http.MethodGet, "/v1/scores?levelId=l1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

// ============================================================================
// Health and metrics endpoints
// ============================================================================

func TestHealth(t *testing.T) {
	env := newTestEnv(t, envConfig{})

	w := env.do(http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "ok", body["status"])
	tiers := body["tiers"].(map[string]any)
	assert.Equal(t, true, tiers["memory"])
}

func TestScoreboardMetrics(t *testing.T) {
	env := newTestEnv(t, envConfig{limit: 7})

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/v1/scores", "",
		`{"levelId":"l1","score":1,"displayName":"guest"}`).Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/v1/progress", "ada-token",
		`{"completedLevels":["l1"]}`).Code)

	w := env.do(http.MethodGet, "/v1/scoreboard/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, 2.0, body["writesTotal"], "both stores feed the same counter")
	assert.Equal(t, 7.0, body["rateLimitPerWindow"])
}
