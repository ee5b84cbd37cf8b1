// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/gauntlet/pkg/extensions"
	"github.com/AleutianAI/gauntlet/services/scoreboard/handlers"
	"github.com/AleutianAI/gauntlet/services/scoreboard/middleware"
	"github.com/AleutianAI/gauntlet/services/scoreboard/observability"
	"github.com/AleutianAI/gauntlet/services/scoreboard/ratelimit"
	"github.com/AleutianAI/gauntlet/services/scoreboard/storage"
)

// Deps carries everything the route table needs. main assembles one
// after the storage chain and middleware stack are built.
type Deps struct {
	Chain    *storage.Chain
	Scores   *storage.ScoreStore
	Progress *storage.ProgressStore
	Limiter  ratelimit.Limiter
	Metrics  *observability.Metrics
	Identity extensions.IdentityProvider

	RateLimitPerWindow int
	TopLimit           int
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	router.HandleMethodNotAllowed = true
	router.NoMethod(handlers.MethodNotAllowed())
	router.Use(middleware.RequestID())

	router.GET("/health", handlers.Health(deps.Chain))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	identity := middleware.IdentityMiddleware(deps.Identity)

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/scores", identity,
			handlers.SubmitScore(deps.Scores, deps.Limiter, deps.RateLimitPerWindow, deps.Metrics))
		v1.GET("/scores", handlers.TopScores(deps.Scores, deps.TopLimit))
		v1.GET("/progress", identity, handlers.GetProgress(deps.Progress))
		v1.POST("/progress", identity, handlers.UpdateProgress(deps.Progress))
		v1.GET("/scoreboard/metrics", handlers.ScoreboardMetrics(deps.Metrics, deps.RateLimitPerWindow))
	}
}
