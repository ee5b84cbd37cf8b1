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
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTierTimeout bounds a single tier attempt so a hung backend
// cannot stall the whole chain.
const DefaultTierTimeout = 3 * time.Second

// Chain walks an ordered list of tiers until one serves the operation.
//
// Rules, in order:
//
//   - Unconfigured tiers are skipped, not attempted.
//   - The first tier that completes without error short-circuits the
//     chain; its result is tagged with the tier's name.
//   - Tiers are tried strictly sequentially, never in parallel, so a
//     single logical write can never land in two tiers.
//   - Each attempt runs under a bounded per-tier timeout.
//   - If every tier errors or is unconfigured: writes return
//     ErrAllTiersFailed; reads degrade to an empty result, since every
//     tier is equally "no data".
//
// # Thread Safety
//
// Safe for concurrent use; the Chain itself holds no mutable state.
type Chain struct {
	tiers       []Tier
	tierTimeout time.Duration
	logger      *slog.Logger
	metrics     ChainMetrics
}

// ChainOption customizes a Chain.
type ChainOption func(*Chain)

// WithTierTimeout overrides the per-tier attempt timeout.
func WithTierTimeout(d time.Duration) ChainOption {
	return func(c *Chain) {
		if d > 0 {
			c.tierTimeout = d
		}
	}
}

// WithChainMetrics attaches operational metrics recording.
func WithChainMetrics(m ChainMetrics) ChainOption {
	return func(c *Chain) { c.metrics = m }
}

// NewChain builds a fallback chain over tiers in priority order
// (most durable first).
//
// Inputs:
//
//	logger - Logger for per-tier failures. Uses slog.Default() if nil.
//	tiers - Ordered tiers. At least one is required.
//
// Outputs:
//
//	*Chain - Ready-to-use chain.
//	error - Non-nil if no tiers were given.
func NewChain(logger *slog.Logger, tiers []Tier, opts ...ChainOption) (*Chain, error) {
	if len(tiers) == 0 {
		return nil, errors.New("at least one storage tier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chain{
		tiers:       tiers,
		tierTimeout: DefaultTierTimeout,
		logger:      logger.With(slog.String("component", "storage_chain")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Tiers returns the chain's tiers in priority order.
func (c *Chain) Tiers() []Tier { return c.tiers }

// PutScore writes one score entry into the first tier that accepts it
// and returns that tier's name.
func (c *Chain) PutScore(ctx context.Context, entry ScoreEntry) (string, error) {
	tier, err := c.attemptWrite(ctx, "put_score", entry.LevelID, func(ctx context.Context, t Tier) error {
		return t.PutScore(ctx, entry)
	})
	if err != nil {
		return "", err
	}
	return tier, nil
}

// PutProgress writes a progress record into the first tier that
// accepts it and returns that tier's name.
func (c *Chain) PutProgress(ctx context.Context, userKey string, rec *ProgressRecord) (string, error) {
	tier, err := c.attemptWrite(ctx, "put_progress", userKey, func(ctx context.Context, t Tier) error {
		return t.PutProgress(ctx, userKey, rec)
	})
	if err != nil {
		return "", err
	}
	return tier, nil
}

// TopScores reads a level's entries from the most durable reachable
// tier. Exhausting the chain degrades to an empty result.
func (c *Chain) TopScores(ctx context.Context, levelID string, limit int) ([]ScoreEntry, string, error) {
	var entries []ScoreEntry
	tier, err := c.attemptRead(ctx, "top_scores", levelID, func(ctx context.Context, t Tier) error {
		var err error
		entries, err = t.TopScores(ctx, levelID, limit)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	if tier == "" {
		return []ScoreEntry{}, "", nil
	}
	return entries, tier, nil
}

// GetProgress reads a user's record from the most durable reachable
// tier. A tier answering ErrNotFound is a successful read of an empty
// record, not a reason to fall through. Exhausting the chain degrades
// to an empty record.
func (c *Chain) GetProgress(ctx context.Context, userKey string) (*ProgressRecord, string, error) {
	var rec *ProgressRecord
	tier, err := c.attemptRead(ctx, "get_progress", userKey, func(ctx context.Context, t Tier) error {
		var err error
		rec, err = t.GetProgress(ctx, userKey)
		if errors.Is(err, ErrNotFound) {
			rec = NewProgressRecord()
			return nil
		}
		return err
	})
	if err != nil {
		return nil, "", err
	}
	if tier == "" || rec == nil {
		return NewProgressRecord(), tier, nil
	}
	return rec, tier, nil
}

// attemptWrite walks the chain for a write operation. Exhaustion is a
// hard error: the write is lost, which pages an operator.
func (c *Chain) attemptWrite(ctx context.Context, op, key string, fn func(context.Context, Tier) error) (string, error) {
	tier, tried, lastErr := c.walk(ctx, op, key, fn)
	if tier != "" {
		return tier, nil
	}
	c.logger.Error("write lost: every storage tier failed or is unconfigured",
		slog.String("op", op),
		slog.String("key", key),
		slog.Int("tiers_tried", tried),
		slog.Any("last_error", lastErr))
	return "", fmt.Errorf("%s %q: %w", op, key, ErrAllTiersFailed)
}

// attemptRead walks the chain for a read operation. Exhaustion returns
// no tier and no error; callers treat that as an empty result.
func (c *Chain) attemptRead(ctx context.Context, op, key string, fn func(context.Context, Tier) error) (string, error) {
	tier, _, lastErr := c.walk(ctx, op, key, fn)
	if tier == "" && lastErr != nil {
		c.logger.Warn("read degraded to empty result: every storage tier failed or is unconfigured",
			slog.String("op", op),
			slog.String("key", key),
			slog.Any("last_error", lastErr))
	}
	return tier, nil
}

// walk tries each configured tier in order under the per-tier timeout.
// Returns the serving tier's name (empty if none), the number of tiers
// attempted, and the last tier error seen.
func (c *Chain) walk(ctx context.Context, op, key string, fn func(context.Context, Tier) error) (string, int, error) {
	var lastErr error
	tried := 0
	for _, t := range c.tiers {
		if !t.Configured() {
			continue
		}
		tried++
		err := c.attemptOne(ctx, t, fn)
		if err == nil {
			if c.metrics != nil {
				c.metrics.RecordFallbackDepth(op, tried)
			}
			return t.Name(), tried, nil
		}
		lastErr = newTierError(t.Name(), op, key, err)
		if c.metrics != nil {
			c.metrics.RecordTierError(t.Name(), op)
		}
		c.logger.Warn("storage tier failed, falling through",
			slog.String("tier", t.Name()),
			slog.String("op", op),
			slog.String("key", key),
			slog.Any("error", err))
	}
	return "", tried, lastErr
}

func (c *Chain) attemptOne(ctx context.Context, t Tier, fn func(context.Context, Tier) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.tierTimeout)
	defer cancel()
	return fn(attemptCtx, t)
}
