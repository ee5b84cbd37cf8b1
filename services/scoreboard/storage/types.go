// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage implements the tiered persistence model for the
// scoreboard service.
//
// Data lives in an ordered chain of backend tiers with differing
// durability:
//
//	Durable (Postgres) → Warm (BadgerDB) → Volatile (in-process)
//
// A logical operation lands in exactly one tier: the chain tries each
// tier in priority order and the first one that completes without error
// wins. Tiers are never merged within a single read or write. This
// trades cross-tier consistency for availability; durability is
// monotonic best-effort.
package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// SchemaVersion is the current version of the stored JSON envelopes.
//
// Key-value tiers persist untyped JSON, so every stored record carries a
// version field that is validated on read. Records with an unknown
// version are rejected rather than guessed at.
const SchemaVersion = 1

// ScoreEntry is a single immutable leaderboard submission.
//
// Identity is implicit: there is no primary key beyond insertion, and
// multiple entries per (user, level) may coexist. The store never
// deduplicates at write time.
type ScoreEntry struct {
	// DisplayName is the name shown on the leaderboard. Either the
	// verified identity's name or a caller-supplied name for anonymous
	// submissions.
	DisplayName string `json:"displayName"`

	// LevelID identifies the level this score belongs to. Never empty.
	LevelID string `json:"levelId"`

	// Score is the submitted score. Finite and >= 0.
	Score float64 `json:"score"`

	// Timestamp is when the service accepted the submission (UTC).
	Timestamp time.Time `json:"timestamp"`
}

// RankedEntry is the read-time projection of a ScoreEntry.
//
// Rank is 1-based: rank 1 is the highest score for the level. Entries
// with equal scores keep arrival order, earlier arrivals ranking first.
type RankedEntry struct {
	Rank        int       `json:"rank"`
	DisplayName string    `json:"displayName"`
	Score       float64   `json:"score"`
	Timestamp   time.Time `json:"timestamp"`
}

// ProgressRecord is the per-user progress state.
//
// The record is mutable but only ever updated through Merge, which
// guarantees two invariants for the record's lifetime:
//
//   - CompletedLevels only grows.
//   - LevelScores[k] is monotonically non-decreasing.
type ProgressRecord struct {
	// CompletedLevels is the set of finished level IDs, represented as
	// a sorted-on-marshal slice for stable JSON output.
	CompletedLevels []string `json:"completedLevels"`

	// LevelScores maps level ID to the best score seen for that level.
	LevelScores map[string]float64 `json:"levelScores"`
}

// NewProgressRecord returns an empty record with allocated fields.
func NewProgressRecord() *ProgressRecord {
	return &ProgressRecord{
		CompletedLevels: []string{},
		LevelScores:     map[string]float64{},
	}
}

// Clone returns a deep copy of the record.
//
// Tiers that hold records in process memory must hand out copies so a
// caller can never mutate stored state behind the tier's back.
func (r *ProgressRecord) Clone() *ProgressRecord {
	if r == nil {
		return NewProgressRecord()
	}
	out := &ProgressRecord{
		CompletedLevels: make([]string, len(r.CompletedLevels)),
		LevelScores:     make(map[string]float64, len(r.LevelScores)),
	}
	copy(out.CompletedLevels, r.CompletedLevels)
	for k, v := range r.LevelScores {
		out.LevelScores[k] = v
	}
	return out
}

// ProgressDelta is a partial progress update submitted by a client.
//
// Nil fields mean "no change"; the merge only touches keys the delta
// names. A client may resubmit the same delta after a network retry,
// so applying a delta must be idempotent.
type ProgressDelta struct {
	CompletedLevels []string           `json:"completedLevels,omitempty"`
	LevelScores     map[string]float64 `json:"levelScores,omitempty"`
}

// Merge folds a delta into the record and returns the merged result.
//
// Rules:
//
//   - CompletedLevels: set union, order-irrelevant.
//   - LevelScores: per-key max; keys absent from the delta keep their
//     existing value (merge-max).
//
// The merge is idempotent and commutative for deltas touching disjoint
// level keys. The receiver is not mutated.
func (r *ProgressRecord) Merge(delta ProgressDelta) *ProgressRecord {
	out := r.Clone()

	seen := make(map[string]bool, len(out.CompletedLevels))
	for _, id := range out.CompletedLevels {
		seen[id] = true
	}
	for _, id := range delta.CompletedLevels {
		if id != "" && !seen[id] {
			seen[id] = true
			out.CompletedLevels = append(out.CompletedLevels, id)
		}
	}

	for k, v := range delta.LevelScores {
		// A key the record has never seen starts at 0, so a negative
		// incoming score can never create a negative best.
		existing := out.LevelScores[k]
		if v > existing {
			existing = v
		}
		out.LevelScores[k] = existing
	}
	return out
}

// =============================================================================
// Versioned JSON envelopes
// =============================================================================

// scoreEnvelope is the on-disk shape of a ScoreEntry in key-value tiers.
type scoreEnvelope struct {
	Version int        `json:"v"`
	Entry   ScoreEntry `json:"entry"`
}

// progressEnvelope is the on-disk shape of a ProgressRecord in
// key-value tiers.
type progressEnvelope struct {
	Version int             `json:"v"`
	Record  *ProgressRecord `json:"record"`
}

// EncodeScoreEntry marshals an entry into its versioned envelope.
func EncodeScoreEntry(entry ScoreEntry) ([]byte, error) {
	return json.Marshal(scoreEnvelope{Version: SchemaVersion, Entry: entry})
}

// DecodeScoreEntry unmarshals a versioned envelope and validates the
// schema version.
func DecodeScoreEntry(data []byte) (ScoreEntry, error) {
	var env scoreEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ScoreEntry{}, fmt.Errorf("decode score entry: %w", err)
	}
	if env.Version != SchemaVersion {
		return ScoreEntry{}, fmt.Errorf("decode score entry: unsupported schema version %d", env.Version)
	}
	return env.Entry, nil
}

// EncodeProgress marshals a record into its versioned envelope.
func EncodeProgress(rec *ProgressRecord) ([]byte, error) {
	return json.Marshal(progressEnvelope{Version: SchemaVersion, Record: rec})
}

// DecodeProgress unmarshals a versioned envelope and validates the
// schema version. A nil stored record decodes to an empty one.
func DecodeProgress(data []byte) (*ProgressRecord, error) {
	var env progressEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode progress record: %w", err)
	}
	if env.Version != SchemaVersion {
		return nil, fmt.Errorf("decode progress record: unsupported schema version %d", env.Version)
	}
	if env.Record == nil {
		return NewProgressRecord(), nil
	}
	if env.Record.CompletedLevels == nil {
		env.Record.CompletedLevels = []string{}
	}
	if env.Record.LevelScores == nil {
		env.Record.LevelScores = map[string]float64{}
	}
	return env.Record, nil
}
