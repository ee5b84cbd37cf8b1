// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the scoreboard HTTP handlers.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/gauntlet/services/scoreboard/middleware"
	"github.com/AleutianAI/gauntlet/services/scoreboard/observability"
	"github.com/AleutianAI/gauntlet/services/scoreboard/ratelimit"
	"github.com/AleutianAI/gauntlet/services/scoreboard/storage"
)

// SubmitScoreRequest is the score submission body.
//
// Score is a pointer so a missing field is distinguishable from an
// explicit zero; a zero score is a valid submission.
type SubmitScoreRequest struct {
	LevelID     string   `json:"levelId"`
	Score       *float64 `json:"score"`
	DisplayName string   `json:"displayName"`
}

// SubmitScore handles POST /v1/scores.
//
// Order matters: auth and validation are answered before the rate
// limiter is consulted or any backend is touched, and a denied
// submission consumes no quota elsewhere.
func SubmitScore(scores *storage.ScoreStore, limiter ratelimit.Limiter, limit int, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubmitScoreRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing required fields"})
			return
		}
		if req.LevelID == "" || req.Score == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing required fields"})
			return
		}

		displayName := req.DisplayName
		if identity := middleware.GetIdentity(c); identity != nil {
			// A verified identity always wins over a caller-supplied
			// name; anonymous writers must bring their own.
			displayName = identity.DisplayName
		}
		if displayName == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		clientKey := c.ClientIP()
		allowed, err := limiter.Allow(clientKey)
		if err != nil {
			// Fail open: a broken limiter must never block a write.
			slog.Error("rate limiter failed, allowing request",
				slog.String("client", clientKey),
				slog.Any("error", err))
			allowed = true
		}
		if !allowed {
			if metrics != nil {
				metrics.RecordRateLimited()
			}
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": rateLimitMessage(limit),
			})
			return
		}

		entry, tier, err := scores.Submit(c.Request.Context(), storage.ScoreEntry{
			DisplayName: displayName,
			LevelID:     req.LevelID,
			Score:       *req.Score,
		})
		if err != nil {
			if errors.Is(err, storage.ErrValidation) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			slog.Error("score submission failed on every tier",
				slog.String("request_id", middleware.GetRequestID(c)),
				slog.String("level_id", req.LevelID),
				slog.Any("error", err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store score"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"entry": entry, "storedIn": tier})
	}
}

// TopScores handles GET /v1/scores?levelId=<id>.
func TopScores(scores *storage.ScoreStore, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		levelIDs := c.Request.URL.Query()["levelId"]
		if len(levelIDs) != 1 || levelIDs[0] == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing levelId query parameter"})
			return
		}

		ranked, tier, err := scores.TopScores(c.Request.Context(), levelIDs[0], limit)
		if err != nil {
			slog.Error("leaderboard query failed",
				slog.String("level_id", levelIDs[0]),
				slog.Any("error", err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query leaderboard"})
			return
		}
		if tier == "" {
			slog.Warn("leaderboard query served empty result, no tier reachable",
				slog.String("level_id", levelIDs[0]))
		}

		c.JSON(http.StatusOK, ranked)
	}
}

func rateLimitMessage(limit int) string {
	return fmt.Sprintf("rate limit exceeded: %d per hour", limit)
}
