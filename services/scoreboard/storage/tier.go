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

import "context"

// Tier is one backend in the fallback chain.
//
// Every tier exposes the same narrow capability surface; the chain
// iterates tiers in priority order instead of branching per backend at
// each call site. Implementations live in the subpackages postgres,
// badgerstore, and memory.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Tier interface {
	// Name returns the tier name reported to callers in storedIn tags
	// and used as a metrics label. Stable, lowercase.
	Name() string

	// Configured reports whether the tier has what it needs to serve
	// requests (credentials, data directory). Unconfigured tiers are
	// skipped by the chain, not attempted.
	Configured() bool

	// PutScore appends one immutable score entry for a level.
	PutScore(ctx context.Context, entry ScoreEntry) error

	// TopScores returns up to limit entries for a level, sorted by
	// score descending with earlier-arriving entries first on ties.
	// A level with no entries yields an empty slice, not an error.
	TopScores(ctx context.Context, levelID string, limit int) ([]ScoreEntry, error)

	// GetProgress returns the stored record for a user key, or
	// ErrNotFound if the user has none.
	GetProgress(ctx context.Context, userKey string) (*ProgressRecord, error)

	// PutProgress replaces the stored record for a user key.
	PutProgress(ctx context.Context, userKey string, rec *ProgressRecord) error
}

// ChainMetrics receives operational signals from the fallback chain.
// The observability package provides the Prometheus-backed
// implementation; a nil ChainMetrics disables recording.
type ChainMetrics interface {
	// RecordTierError counts a single tier's failed operation.
	RecordTierError(tier, op string)

	// RecordFallbackDepth records how many tiers were tried before one
	// served the operation (1 = primary tier served it).
	RecordFallbackDepth(op string, depth int)
}
