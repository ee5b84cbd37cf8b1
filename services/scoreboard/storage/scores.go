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
	"fmt"
	"math"
	"sort"
	"time"
)

// DefaultTopLimit is how many ranked entries a leaderboard query
// returns when the caller does not say otherwise.
const DefaultTopLimit = 100

// WriteRecorder counts successful writes. The observability package
// provides the process-wide implementation; a nil recorder disables
// counting.
type WriteRecorder interface {
	RecordWrite(store, tier string)
}

// ScoreStore appends immutable score entries and serves ranked views.
//
// Every accepted submission is recorded: no deduplication and no limit
// on entries per user or level.
type ScoreStore struct {
	chain    *Chain
	recorder WriteRecorder
	now      func() time.Time
}

// NewScoreStore creates a score store over the given chain.
// recorder may be nil.
func NewScoreStore(chain *Chain, recorder WriteRecorder) *ScoreStore {
	return &ScoreStore{
		chain:    chain,
		recorder: recorder,
		now:      time.Now,
	}
}

// Submit validates and records one score entry.
//
// Validation failures return ErrValidation before any backend is
// touched. On success the returned entry carries the timestamp the
// service assigned, and the tier name reports where the write landed.
// The write counter is incremented only after a tier accepted the
// write.
func (s *ScoreStore) Submit(ctx context.Context, entry ScoreEntry) (ScoreEntry, string, error) {
	if entry.LevelID == "" {
		return ScoreEntry{}, "", fmt.Errorf("levelId is required: %w", ErrValidation)
	}
	if entry.DisplayName == "" {
		return ScoreEntry{}, "", fmt.Errorf("displayName is required: %w", ErrValidation)
	}
	if math.IsNaN(entry.Score) || math.IsInf(entry.Score, 0) {
		return ScoreEntry{}, "", fmt.Errorf("score must be a finite number: %w", ErrValidation)
	}
	if entry.Score < 0 {
		return ScoreEntry{}, "", fmt.Errorf("score must not be negative: %w", ErrValidation)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}

	tier, err := s.chain.PutScore(ctx, entry)
	if err != nil {
		return ScoreEntry{}, "", err
	}
	if s.recorder != nil {
		s.recorder.RecordWrite("scores", tier)
	}
	return entry, tier, nil
}

// TopScores returns up to limit ranked entries for a level, rank 1
// being the highest score. Equal scores keep arrival order. A limit
// <= 0 means DefaultTopLimit.
//
// The view is best-effort: it reflects the single tier that served the
// read, so an entry written during a durable-tier outage will not
// appear once that tier recovers.
func (s *ScoreStore) TopScores(ctx context.Context, levelID string, limit int) ([]RankedEntry, string, error) {
	if levelID == "" {
		return nil, "", fmt.Errorf("levelId is required: %w", ErrValidation)
	}
	if limit <= 0 {
		limit = DefaultTopLimit
	}

	entries, tier, err := s.chain.TopScores(ctx, levelID, limit)
	if err != nil {
		return nil, "", err
	}

	// Tiers return entries ordered, but rank assignment must never
	// depend on it. The stable sort preserves each tier's arrival
	// order for equal scores.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	ranked := make([]RankedEntry, len(entries))
	for i, e := range entries {
		ranked[i] = RankedEntry{
			Rank:        i + 1,
			DisplayName: e.DisplayName,
			Score:       e.Score,
			Timestamp:   e.Timestamp,
		}
	}
	return ranked, tier, nil
}
