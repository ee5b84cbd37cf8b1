// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badgerstore implements the key-sorted storage tier on
// BadgerDB.
//
// BadgerDB gives low-latency embedded storage with lexicographically
// sorted keys. Score entries are written under
//
//	score:<levelID>:<20-digit sequence>
//
// so a prefix scan over one level returns entries in arrival order,
// which is exactly the tie-break the ranked view needs. Progress
// records live under progress:user:<key>. Values are versioned JSON
// envelopes validated on read.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/gauntlet/services/scoreboard/storage"
)

// TierName is the name this tier reports in storedIn tags.
const TierName = "badger"

// scoreSeqKey is the Badger sequence backing arrival-order keys.
var scoreSeqKey = []byte("seq:score")

// Config holds configuration for the Badger tier.
type Config struct {
	// Dir is the directory for BadgerDB files. An empty Dir with
	// InMemory false means the tier is unconfigured and will be
	// skipped by the chain.
	Dir string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// Default: true for production, false for testing.
	SyncWrites bool

	// Logger is the logger for BadgerDB operations.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before
	// GC. Default: 0.5.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults: synchronous writes and a
// 5-minute GC interval.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration optimized for testing: no disk
// I/O, no sync, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
		GCInterval: 0,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Tier is the Badger-backed storage tier.
//
// A zero Tier (from Unconfigured) reports Configured() == false and is
// skipped by the chain.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB transactions provide isolation and
// the sequence is internally synchronized.
type Tier struct {
	db       *badger.DB
	seq      *badger.Sequence
	gcRunner *gcRunner
}

// Unconfigured returns a tier that the chain skips. Used when no data
// directory is configured.
func Unconfigured() *Tier {
	return &Tier{}
}

// Open creates the Badger tier with the given configuration.
//
// Inputs:
//
//	cfg - Tier configuration. Dir is required unless InMemory is true.
//
// Outputs:
//
//	*Tier - The opened tier. Caller must call Close() when done.
//	error - Non-nil if the database cannot be opened.
func Open(cfg Config) (*Tier, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("dir is required for a persistent badger tier")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	seq, err := db.GetSequence(scoreSeqKey, 128)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open score sequence: %w", err)
	}

	t := &Tier{db: db, seq: seq}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		t.gcRunner = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		t.gcRunner.Start()
	}
	return t, nil
}

// Close releases the sequence, stops GC, and closes the database.
// Safe on an unconfigured tier.
func (t *Tier) Close() error {
	if t.db == nil {
		return nil
	}
	if t.gcRunner != nil {
		t.gcRunner.Stop()
	}
	if t.seq != nil {
		if err := t.seq.Release(); err != nil {
			t.db.Close()
			return fmt.Errorf("release score sequence: %w", err)
		}
	}
	return t.db.Close()
}

// Name implements storage.Tier.
func (t *Tier) Name() string { return TierName }

// Configured implements storage.Tier.
func (t *Tier) Configured() bool { return t.db != nil }

func scoreKey(levelID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("score:%s:%020d", levelID, seq))
}

func scorePrefix(levelID string) []byte {
	return []byte(fmt.Sprintf("score:%s:", levelID))
}

func progressKey(userKey string) []byte {
	return []byte("progress:user:" + userKey)
}

// PutScore appends the entry under an arrival-ordered key.
func (t *Tier) PutScore(ctx context.Context, entry storage.ScoreEntry) error {
	if t.db == nil {
		return errors.New("badger tier is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := storage.EncodeScoreEntry(entry)
	if err != nil {
		return err
	}
	seq, err := t.seq.Next()
	if err != nil {
		return fmt.Errorf("next score sequence: %w", err)
	}
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Set(scoreKey(entry.LevelID, seq), value)
	})
}

// TopScores scans the level's key range and returns up to limit
// entries sorted by score descending, arrival order on ties.
func (t *Tier) TopScores(ctx context.Context, levelID string, limit int) ([]storage.ScoreEntry, error) {
	if t.db == nil {
		return nil, errors.New("badger tier is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := []storage.ScoreEntry{}
	err := t.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = scorePrefix(levelID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				entry, err := storage.DecodeScoreEntry(val)
				if err != nil {
					return err
				}
				entries = append(entries, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Key order is arrival order, so a stable sort gives the
	// earlier-arrival-wins tie-break.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// GetProgress reads and validates the stored envelope, or returns
// storage.ErrNotFound.
func (t *Tier) GetProgress(ctx context.Context, userKey string) (*storage.ProgressRecord, error) {
	if t.db == nil {
		return nil, errors.New("badger tier is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec *storage.ProgressRecord
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(progressKey(userKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rec, err = storage.DecodeProgress(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// PutProgress replaces the stored record.
func (t *Tier) PutProgress(ctx context.Context, userKey string, rec *storage.ProgressRecord) error {
	if t.db == nil {
		return errors.New("badger tier is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := storage.EncodeProgress(rec)
	if err != nil {
		return err
	}
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Set(progressKey(userKey), value)
	})
}

var _ storage.Tier = (*Tier)(nil)

// =============================================================================
// Value log GC
// =============================================================================

// gcRunner runs periodic value log garbage collection.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *slog.Logger
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
}

// Start begins periodic garbage collection.
func (r *gcRunner) Start() {
	go r.run()
}

// Stop signals the GC goroutine to stop and waits for it to finish.
func (r *gcRunner) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.runGC()
		}
	}
}

func (r *gcRunner) runGC() {
	// RunValueLogGC returns ErrNoRewrite when no GC was needed.
	err := r.db.RunValueLogGC(r.ratio)
	if err == nil {
		if r.logger != nil {
			r.logger.Debug("badger value log GC completed")
		}
	} else if !errors.Is(err, badger.ErrNoRewrite) {
		if r.logger != nil {
			r.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
		}
	}
}
