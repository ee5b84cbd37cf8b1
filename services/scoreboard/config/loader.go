// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the scoreboard service configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// Global is a singleton instance
	Global ScoreboardConfig
	once   sync.Once
)

// Load ensures the config is loaded into the Global variable.
func Load() error {
	var err error
	once.Do(func() {
		Global, err = loadInternal()
	})
	return err
}

func loadInternal() (ScoreboardConfig, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("GAUNTLET_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read the config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse the config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg. Env always wins
// over file values, matching how the services are deployed in
// containers.
func applyEnv(cfg *ScoreboardConfig) {
	if v := os.Getenv("SCOREBOARD_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("GAUNTLET_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("GAUNTLET_BADGER_DIR"); v != "" {
		cfg.BadgerDir = v
	}
	if v := os.Getenv("GAUNTLET_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("GAUNTLET_RATE_LIMIT_PER_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitPerWindow = n
		}
	}
	if v := os.Getenv("GAUNTLET_RATE_LIMIT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.RateLimitWindow = d
		}
	}
	if v := os.Getenv("GAUNTLET_TIER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.TierTimeout = d
		}
	}
	if v := os.Getenv("GAUNTLET_TOP_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TopLimit = n
		}
	}
}
