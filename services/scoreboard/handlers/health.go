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

	"github.com/AleutianAI/gauntlet/services/scoreboard/storage"
)

// Health handles GET /health.
//
// Reports which storage tiers are configured so an operator can tell
// at a glance whether the service is running durably or on the
// volatile tier alone. The service is healthy as long as it can
// answer: the chain always has the volatile tier.
func Health(chain *storage.Chain) gin.HandlerFunc {
	return func(c *gin.Context) {
		tiers := gin.H{}
		for _, t := range chain.Tiers() {
			tiers[t.Name()] = t.Configured()
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"tiers":  tiers,
		})
	}
}

// MethodNotAllowed answers unsupported methods with 405 and an Allow
// header listing what the path supports.
func MethodNotAllowed() gin.HandlerFunc {
	allowed := map[string]string{
		"/v1/scores":             "GET, POST",
		"/v1/progress":           "GET, POST",
		"/v1/scoreboard/metrics": "GET",
		"/health":                "GET",
		"/metrics":               "GET",
	}
	return func(c *gin.Context) {
		if methods, ok := allowed[c.Request.URL.Path]; ok {
			c.Header("Allow", methods)
		}
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	}
}
