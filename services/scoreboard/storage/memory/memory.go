// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memory implements the volatile in-process storage tier.
//
// This is the chain's tier of last resort: always configured, never
// fails, and loses everything on process restart. It exists so a write
// still lands somewhere when both durable tiers are down.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/AleutianAI/gauntlet/services/scoreboard/storage"
)

// TierName is the name this tier reports in storedIn tags.
const TierName = "memory"

// Tier holds scores and progress in process memory.
//
// State is an explicit object with a lifecycle, created at process
// start and injected into the chain, never a package-level map. Tests
// get fresh state by constructing a new Tier.
//
// # Thread Safety
//
// All state is guarded by a single mutex; critical sections are the
// minimal read-or-write of one key.
type Tier struct {
	mu       sync.Mutex
	scores   map[string][]storage.ScoreEntry
	progress map[string]*storage.ProgressRecord
}

// New creates an empty in-memory tier.
func New() *Tier {
	return &Tier{
		scores:   make(map[string][]storage.ScoreEntry),
		progress: make(map[string]*storage.ProgressRecord),
	}
}

// Name implements storage.Tier.
func (t *Tier) Name() string { return TierName }

// Configured implements storage.Tier. The volatile tier is always
// available.
func (t *Tier) Configured() bool { return true }

// PutScore appends the entry, preserving arrival order per level.
func (t *Tier) PutScore(ctx context.Context, entry storage.ScoreEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scores[entry.LevelID] = append(t.scores[entry.LevelID], entry)
	return nil
}

// TopScores returns up to limit entries sorted by score descending.
// The stable sort keeps arrival order for equal scores.
func (t *Tier) TopScores(ctx context.Context, levelID string, limit int) ([]storage.ScoreEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	stored := t.scores[levelID]
	entries := make([]storage.ScoreEntry, len(stored))
	copy(entries, stored)
	t.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// GetProgress returns a copy of the stored record, or
// storage.ErrNotFound.
func (t *Tier) GetProgress(ctx context.Context, userKey string) (*storage.ProgressRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.progress[userKey]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec.Clone(), nil
}

// PutProgress stores a copy of the record.
func (t *Tier) PutProgress(ctx context.Context, userKey string, rec *storage.ProgressRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress[userKey] = rec.Clone()
	return nil
}

var _ storage.Tier = (*Tier)(nil)
