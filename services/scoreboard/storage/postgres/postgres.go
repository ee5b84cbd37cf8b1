// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package postgres implements the durable relational storage tier.
//
// This is the chain's primary tier. Scores are append-only rows with a
// serial id, which doubles as the arrival-order tie-break for ranked
// reads. Progress records are stored as versioned JSONB envelopes, one
// row per user key.
//
// The tier is unconfigured when no database URL is set; the chain
// skips it entirely instead of attempting connections that can never
// succeed.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // v5 stdlib adapter

	"github.com/AleutianAI/gauntlet/services/scoreboard/storage"
)

// TierName is the name this tier reports in storedIn tags.
const TierName = "postgres"

// Tier is the Postgres-backed storage tier.
//
// A zero Tier (from Unconfigured) reports Configured() == false and is
// skipped by the chain.
//
// # Thread Safety
//
// Safe for concurrent use; database/sql pools connections internally.
type Tier struct {
	db *sql.DB
}

// Unconfigured returns a tier that the chain skips. Used when no
// database URL is configured.
func Unconfigured() *Tier {
	return &Tier{}
}

// Open connects to Postgres and ensures the schema exists.
//
// Inputs:
//
//	ctx - Context bounding connection and schema setup.
//	databaseURL - Postgres connection string. Must be non-empty.
//
// Outputs:
//
//	*Tier - The connected tier. Caller must call Close() when done.
//	error - Non-nil if the database is unreachable or schema setup fails.
func Open(ctx context.Context, databaseURL string) (*Tier, error) {
	if databaseURL == "" {
		return nil, errors.New("database URL is required")
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	t := &Tier{db: db}
	if err := t.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return t, nil
}

// NewWithDB wraps an existing database handle. Schema setup is the
// caller's responsibility. Intended for tests.
func NewWithDB(db *sql.DB) *Tier {
	return &Tier{db: db}
}

// Close closes the connection pool. Safe on an unconfigured tier.
func (t *Tier) Close() error {
	if t.db == nil {
		return nil
	}
	return t.db.Close()
}

// Name implements storage.Tier.
func (t *Tier) Name() string { return TierName }

// Configured implements storage.Tier.
func (t *Tier) Configured() bool { return t.db != nil }

// Ping reports whether the database is currently reachable.
func (t *Tier) Ping(ctx context.Context) error {
	if t.db == nil {
		return errors.New("postgres tier is not configured")
	}
	return t.db.PingContext(ctx)
}

func (t *Tier) ensureSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS scores (
            id BIGSERIAL PRIMARY KEY,
            display_name TEXT NOT NULL,
            level_id TEXT NOT NULL,
            score DOUBLE PRECISION NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_scores_level_score ON scores(level_id, score DESC, id ASC);`,
		`CREATE TABLE IF NOT EXISTS progress (
            user_key TEXT PRIMARY KEY,
            record JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	}
	for _, query := range queries {
		if _, err := t.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("ensure scoreboard schema: %w", err)
		}
	}
	return nil
}

// PutScore appends one score row.
func (t *Tier) PutScore(ctx context.Context, entry storage.ScoreEntry) error {
	if t.db == nil {
		return errors.New("postgres tier is not configured")
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO scores (display_name, level_id, score, created_at) VALUES ($1, $2, $3, $4)`,
		entry.DisplayName, entry.LevelID, entry.Score, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert score: %w", err)
	}
	return nil
}

// TopScores returns up to limit entries ordered by score descending,
// serial id ascending. The id order is insertion order, which gives
// the earlier-arrival-wins tie-break.
func (t *Tier) TopScores(ctx context.Context, levelID string, limit int) ([]storage.ScoreEntry, error) {
	if t.db == nil {
		return nil, errors.New("postgres tier is not configured")
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT display_name, level_id, score, created_at
           FROM scores WHERE level_id = $1
           ORDER BY score DESC, id ASC LIMIT $2`,
		levelID, limit)
	if err != nil {
		return nil, fmt.Errorf("query top scores: %w", err)
	}
	defer rows.Close()

	entries := []storage.ScoreEntry{}
	for rows.Next() {
		var e storage.ScoreEntry
		if err := rows.Scan(&e.DisplayName, &e.LevelID, &e.Score, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan score row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score rows: %w", err)
	}
	return entries, nil
}

// GetProgress reads and validates the stored envelope, or returns
// storage.ErrNotFound.
func (t *Tier) GetProgress(ctx context.Context, userKey string) (*storage.ProgressRecord, error) {
	if t.db == nil {
		return nil, errors.New("postgres tier is not configured")
	}
	var raw []byte
	err := t.db.QueryRowContext(ctx,
		`SELECT record FROM progress WHERE user_key = $1`, userKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	return storage.DecodeProgress(raw)
}

// PutProgress upserts the user's record.
func (t *Tier) PutProgress(ctx context.Context, userKey string, rec *storage.ProgressRecord) error {
	if t.db == nil {
		return errors.New("postgres tier is not configured")
	}
	raw, err := storage.EncodeProgress(rec)
	if err != nil {
		return err
	}
	_, err = t.db.ExecContext(ctx,
		`INSERT INTO progress (user_key, record, updated_at) VALUES ($1, $2, NOW())
           ON CONFLICT (user_key) DO UPDATE SET record = EXCLUDED.record, updated_at = NOW()`,
		userKey, raw)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

var _ storage.Tier = (*Tier)(nil)
