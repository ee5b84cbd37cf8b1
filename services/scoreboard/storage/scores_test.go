// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRecorder implements WriteRecorder for tests.
type countingRecorder struct {
	mu     sync.Mutex
	writes []string
}

func (r *countingRecorder) RecordWrite(store, tier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, store+"/"+tier)
}

func newScoreStore(t *testing.T, tiers ...Tier) (*ScoreStore, *countingRecorder) {
	t.Helper()
	if len(tiers) == 0 {
		tiers = []Tier{newFakeTier("memory")}
	}
	recorder := &countingRecorder{}
	return NewScoreStore(mustChain(t, tiers), recorder), recorder
}

// ============================================================================
// Submit
// ============================================================================

func TestSubmit_Valid(t *testing.T) {
	store, recorder := newScoreStore(t)

	entry, tier, err := store.Submit(context.Background(), ScoreEntry{
		DisplayName: "ada",
		LevelID:     "l1",
		Score:       95,
	})
	require.NoError(t, err)

	assert.Equal(t, "memory", tier)
	assert.False(t, entry.Timestamp.IsZero(), "service should stamp the accepted time")
	assert.Equal(t, time.UTC, entry.Timestamp.Location())
	assert.Equal(t, []string{"scores/memory"}, recorder.writes)
}

func TestSubmit_ZeroScoreIsValid(t *testing.T) {
	store, _ := newScoreStore(t)

	_, _, err := store.Submit(context.Background(), ScoreEntry{
		DisplayName: "ada",
		LevelID:     "l1",
		Score:       0,
	})
	assert.NoError(t, err)
}

func TestSubmit_Validation(t *testing.T) {
	store, recorder := newScoreStore(t)

	tests := []struct {
		name  string
		entry ScoreEntry
	}{
		{"missing level", ScoreEntry{DisplayName: "ada", Score: 1}},
		{"missing name", ScoreEntry{LevelID: "l1", Score: 1}},
		{"negative score", ScoreEntry{DisplayName: "ada", LevelID: "l1", Score: -1}},
		{"nan score", ScoreEntry{DisplayName: "ada", LevelID: "l1", Score: math.NaN()}},
		{"inf score", ScoreEntry{DisplayName: "ada", LevelID: "l1", Score: math.Inf(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := store.Submit(context.Background(), tt.entry)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	assert.Empty(t, recorder.writes, "rejected submissions must not count as writes")
}

// TestSubmit_NoDeduplication verifies repeat submissions all land.
func TestSubmit_NoDeduplication(t *testing.T) {
	tier := newFakeTier("memory")
	store, _ := newScoreStore(t, tier)

	for i := 0; i < 3; i++ {
		_, _, err := store.Submit(context.Background(), ScoreEntry{
			DisplayName: "ada", LevelID: "l1", Score: 50,
		})
		require.NoError(t, err)
	}

	assert.Len(t, tier.scores, 3)
}

func TestSubmit_WriteFailureDoesNotCount(t *testing.T) {
	tier := newFakeTier("memory")
	tier.failWith = context.DeadlineExceeded
	store, recorder := newScoreStore(t, tier)

	_, _, err := store.Submit(context.Background(), ScoreEntry{
		DisplayName: "ada", LevelID: "l1", Score: 1,
	})
	require.ErrorIs(t, err, ErrAllTiersFailed)
	assert.Empty(t, recorder.writes)
}

// ============================================================================
// TopScores
// ============================================================================

func submitAll(t *testing.T, store *ScoreStore, levelID string, names []string, scores []float64) {
	t.Helper()
	require.Equal(t, len(names), len(scores))
	for i := range names {
		_, _, err := store.Submit(context.Background(), ScoreEntry{
			DisplayName: names[i],
			LevelID:     levelID,
			Score:       scores[i],
		})
		require.NoError(t, err)
	}
}

func TestTopScores_OrderedDescending(t *testing.T) {
	store, _ := newScoreStore(t)
	submitAll(t, store, "l1",
		[]string{"ada", "bob", "carol"},
		[]float64{50, 95, 80})

	ranked, tier, err := store.TopScores(context.Background(), "l1", 10)
	require.NoError(t, err)

	assert.Equal(t, "memory", tier)
	require.Len(t, ranked, 3)
	assert.Equal(t, "bob", ranked[0].DisplayName)
	assert.Equal(t, "carol", ranked[1].DisplayName)
	assert.Equal(t, "ada", ranked[2].DisplayName)
	for i, r := range ranked {
		assert.Equal(t, i+1, r.Rank, "ranks should number from 1")
	}
}

// TestTopScores_TiesKeepArrivalOrder verifies stable tie-breaking:
// the earlier submission of an equal score ranks first.
func TestTopScores_TiesKeepArrivalOrder(t *testing.T) {
	store, _ := newScoreStore(t)
	submitAll(t, store, "l1",
		[]string{"first", "second", "third"},
		[]float64{80, 80, 80})

	ranked, _, err := store.TopScores(context.Background(), "l1", 10)
	require.NoError(t, err)

	require.Len(t, ranked, 3)
	assert.Equal(t, "first", ranked[0].DisplayName)
	assert.Equal(t, "second", ranked[1].DisplayName)
	assert.Equal(t, "third", ranked[2].DisplayName)
}

func TestTopScores_Limit(t *testing.T) {
	store, _ := newScoreStore(t)
	submitAll(t, store, "l1",
		[]string{"a", "b", "c", "d"},
		[]float64{10, 40, 30, 20})

	ranked, _, err := store.TopScores(context.Background(), "l1", 2)
	require.NoError(t, err)

	require.Len(t, ranked, 2)
	assert.Equal(t, 40.0, ranked[0].Score)
	assert.Equal(t, 30.0, ranked[1].Score)
}

func TestTopScores_UnknownLevelIsEmpty(t *testing.T) {
	store, _ := newScoreStore(t)

	ranked, _, err := store.TopScores(context.Background(), "never-played", 10)
	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestTopScores_RequiresLevelID(t *testing.T) {
	store, _ := newScoreStore(t)

	_, _, err := store.TopScores(context.Background(), "", 10)
	assert.ErrorIs(t, err, ErrValidation)
}

// TestTopScores_LaterHigherScoreWins is the 80-then-95 scenario: a
// second, better run outranks the first.
func TestTopScores_LaterHigherScoreWins(t *testing.T) {
	store, _ := newScoreStore(t)
	submitAll(t, store, "l1",
		[]string{"ada", "ada"},
		[]float64{80, 95})

	ranked, _, err := store.TopScores(context.Background(), "l1", 10)
	require.NoError(t, err)

	require.Len(t, ranked, 2, "both runs stay on the board")
	assert.Equal(t, 95.0, ranked[0].Score)
	assert.Equal(t, 80.0, ranked[1].Score)
}
