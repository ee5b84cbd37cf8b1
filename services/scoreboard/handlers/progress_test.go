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
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/gauntlet/services/scoreboard/storage"
)

func decodeProgress(t *testing.T, data []byte) storage.ProgressRecord {
	t.Helper()
	var rec storage.ProgressRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	return rec
}

func TestGetProgress_RequiresIdentity(t *testing.T) {
	env := newTestEnv(t, envConfig{})

	w := env.do(http.MethodGet, "/v1/progress", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetProgress_NewUserIsEmpty(t *testing.T) {
	env := newTestEnv(t, envConfig{})

	w := env.do(http.MethodGet, "/v1/progress", "ada-token", "")
	require.Equal(t, http.StatusOK, w.Code)

	rec := decodeProgress(t, w.Body.Bytes())
	assert.Empty(t, rec.CompletedLevels)
	assert.Empty(t, rec.LevelScores)
}

func TestUpdateProgress_RequiresIdentity(t *testing.T) {
	env := newTestEnv(t, envConfig{})

	w := env.do(http.MethodPost, "/v1/progress", "", `{"completedLevels":["l1"]}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateProgress_MalformedBody(t *testing.T) {
	env := newTestEnv(t, envConfig{})

	w := env.do(http.MethodPost, "/v1/progress", "ada-token", `{"levelScores":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestUpdateProgress_MergeFlow drives the canonical merge scenario
// over HTTP: l1 at 80, then a worse run at 60, stays 80.
func TestUpdateProgress_MergeFlow(t *testing.T) {
	env := newTestEnv(t, envConfig{})

	w := env.do(http.MethodPost, "/v1/progress", "ada-token",
		`{"completedLevels":["l1"],"levelScores":{"l1":80}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodPost, "/v1/progress", "ada-token",
		`{"completedLevels":["l2"],"levelScores":{"l1":60,"l2":40}}`)
	require.Equal(t, http.StatusOK, w.Code)

	rec := decodeProgress(t, w.Body.Bytes())
	assert.ElementsMatch(t, []string{"l1", "l2"}, rec.CompletedLevels)
	assert.Equal(t, 80.0, rec.LevelScores["l1"], "a worse retry must not lower the best")
	assert.Equal(t, 40.0, rec.LevelScores["l2"])

	// The merged state is what a later fetch sees.
	w = env.do(http.MethodGet, "/v1/progress", "ada-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	fetched := decodeProgress(t, w.Body.Bytes())
	assert.Equal(t, rec, fetched)
}

// TestUpdateProgress_ResubmitIsIdempotent verifies a client retrying
// the same snapshot lands on identical state.
func TestUpdateProgress_ResubmitIsIdempotent(t *testing.T) {
	env := newTestEnv(t, envConfig{})
	body := `{"completedLevels":["l1"],"levelScores":{"l1":80}}`

	first := env.do(http.MethodPost, "/v1/progress", "ada-token", body)
	require.Equal(t, http.StatusOK, first.Code)
	second := env.do(http.MethodPost, "/v1/progress", "ada-token", body)
	require.Equal(t, http.StatusOK, second.Code)

	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestUpdateProgress_EmptyDelta(t *testing.T) {
	env := newTestEnv(t, envConfig{})

	w := env.do(http.MethodPost, "/v1/progress", "ada-token", `{}`)
	require.Equal(t, http.StatusOK, w.Code)

	rec := decodeProgress(t, w.Body.Bytes())
	assert.Empty(t, rec.CompletedLevels)
}

func TestUpdateProgress_AllTiersDownIs500(t *testing.T) {
	env := newTestEnv(t, envConfig{tier: downTier{}})

	w := env.do(http.MethodPost, "/v1/progress", "ada-token",
		`{"completedLevels":["l1"]}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
