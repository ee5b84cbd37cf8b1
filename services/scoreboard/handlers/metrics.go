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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/gauntlet/services/scoreboard/observability"
)

// ScoreboardMetrics handles GET /v1/scoreboard/metrics.
//
// This is the lightweight JSON counter for the game's own reporting
// page; full operational metrics live on the Prometheus /metrics
// endpoint.
func ScoreboardMetrics(metrics *observability.Metrics, rateLimitPerWindow int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"writesTotal":        metrics.WritesCount(),
			"rateLimitPerWindow": rateLimitPerWindow,
		})
	}
}
