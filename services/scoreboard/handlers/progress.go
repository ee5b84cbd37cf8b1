// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/gauntlet/services/scoreboard/middleware"
	"github.com/AleutianAI/gauntlet/services/scoreboard/storage"
)

// GetProgress handles GET /v1/progress. Requires a verified identity.
func GetProgress(progress *storage.ProgressStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := middleware.GetIdentity(c)
		if identity == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		rec, _, err := progress.Get(c.Request.Context(), identity.Key)
		if err != nil {
			slog.Error("progress fetch failed",
				slog.String("user_key", identity.Key),
				slog.Any("error", err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch progress"})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// UpdateProgress handles POST /v1/progress. Requires a verified
// identity. The response is the full merged record, so a client can
// reconcile its local state after a retry without a second fetch.
func UpdateProgress(progress *storage.ProgressStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := middleware.GetIdentity(c)
		if identity == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var delta storage.ProgressDelta
		if err := c.ShouldBindJSON(&delta); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed progress body"})
			return
		}
		for level, score := range delta.LevelScores {
			if math.IsNaN(score) || math.IsInf(score, 0) {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "levelScores[" + level + "] must be a finite number",
				})
				return
			}
		}

		merged, tier, err := progress.Merge(c.Request.Context(), identity.Key, delta)
		if err != nil {
			slog.Error("progress merge failed on every tier",
				slog.String("user_key", identity.Key),
				slog.Any("error", err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store progress"})
			return
		}

		slog.Debug("progress merged",
			slog.String("user_key", identity.Key),
			slog.String("tier", tier))
		c.JSON(http.StatusOK, merged)
	}
}
