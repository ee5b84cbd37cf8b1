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
	"sync"
)

// ProgressStore holds one mutable record per user key, updated only
// through Merge.
//
// Concurrent merges for the same user key are serialized with a
// per-key lock so the read-merge-write sequence is atomic per key;
// without it two simultaneous merges could read the same base record
// and one delta would be lost.
type ProgressStore struct {
	chain    *Chain
	recorder WriteRecorder

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewProgressStore creates a progress store over the given chain.
// recorder may be nil.
func NewProgressStore(chain *Chain, recorder WriteRecorder) *ProgressStore {
	return &ProgressStore{
		chain:    chain,
		recorder: recorder,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Get returns the user's record, or an empty record if none exists.
func (s *ProgressStore) Get(ctx context.Context, userKey string) (*ProgressRecord, string, error) {
	if userKey == "" {
		return nil, "", fmt.Errorf("user key is required: %w", ErrValidation)
	}
	return s.chain.GetProgress(ctx, userKey)
}

// Merge folds a partial update into the user's stored record and
// writes the result back through the chain.
//
// The merge rules (set union for completed levels, per-key max for
// level scores) make Merge idempotent and commutative for disjoint
// deltas, so a client resubmitting the same snapshot after a network
// retry converges to the same state.
func (s *ProgressStore) Merge(ctx context.Context, userKey string, delta ProgressDelta) (*ProgressRecord, string, error) {
	if userKey == "" {
		return nil, "", fmt.Errorf("user key is required: %w", ErrValidation)
	}

	lock := s.keyLock(userKey)
	lock.Lock()
	defer lock.Unlock()

	existing, _, err := s.chain.GetProgress(ctx, userKey)
	if err != nil {
		return nil, "", err
	}

	merged := existing.Merge(delta)

	tier, err := s.chain.PutProgress(ctx, userKey, merged)
	if err != nil {
		return nil, "", err
	}
	if s.recorder != nil {
		s.recorder.RecordWrite("progress", tier)
	}
	return merged, tier, nil
}

// keyLock returns the mutex for a user key, creating it lazily.
// Locks are never evicted; the set of active users is bounded by the
// identity provider, unlike rate-limit buckets.
func (s *ProgressStore) keyLock(userKey string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userKey]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userKey] = lock
	}
	return lock
}
