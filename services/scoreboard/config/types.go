// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import "time"

// ScoreboardConfig holds the service configuration.
//
// Values come from an optional YAML file (GAUNTLET_CONFIG path) with
// environment variables taking precedence. Every field has a working
// default so the service boots with zero configuration, running on
// the volatile tier only.
type ScoreboardConfig struct {
	// Port is the HTTP listen port.
	Port string `yaml:"port"`

	// RateLimitPerWindow is the number of submissions a single client
	// may make inside one rate-limit window.
	RateLimitPerWindow int `yaml:"rate_limit_per_window"`

	// RateLimitWindow is the rolling window length.
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`

	// RateLimitSweepInterval is how often stale rate buckets are
	// evicted. Zero means once per window.
	RateLimitSweepInterval time.Duration `yaml:"rate_limit_sweep_interval"`

	// TopLimit is the maximum number of ranked entries a leaderboard
	// query returns.
	TopLimit int `yaml:"top_limit"`

	// TierTimeout bounds a single storage tier attempt.
	TierTimeout time.Duration `yaml:"tier_timeout"`

	// DatabaseURL is the Postgres connection string for the durable
	// relational tier. Empty means the tier is unconfigured.
	DatabaseURL string `yaml:"database_url"`

	// BadgerDir is the data directory for the key-sorted tier. Empty
	// means the tier is unconfigured.
	BadgerDir string `yaml:"badger_dir"`

	// JWTSecret signs the identity tokens the game frontend mints.
	// Empty means all requests are anonymous.
	JWTSecret string `yaml:"jwt_secret"`
}

// DefaultConfig returns the zero-configuration defaults.
func DefaultConfig() ScoreboardConfig {
	return ScoreboardConfig{
		Port:               "12230",
		RateLimitPerWindow: 120,
		RateLimitWindow:    time.Hour,
		TopLimit:           100,
		TierTimeout:        3 * time.Second,
	}
}
