// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the scoreboard
// service.
//
// # Identity Flow
//
// The identity middleware extracts a bearer token from the
// Authorization header, verifies it using the configured
// IdentityProvider, and stores the resulting Identity in the Gin
// context for downstream handlers.
//
//	Request
//	   │
//	   ▼
//	IdentityMiddleware
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   ├─► provider.Verify(ctx, token)
//	   │
//	   └─► Store Identity in context (nil for anonymous)
//	           │
//	           ▼
//	       Handler (retrieves via GetIdentity)
//
// A missing token is not rejected here: score submission accepts
// anonymous writers with a caller-supplied display name. Handlers
// that require a verified identity answer 401 themselves. A token
// that is present but fails verification is rejected with 401.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/gauntlet/pkg/extensions"
)

// identityKey is the context key for storing the verified Identity.
const identityKey = "gauntlet_identity"

// SetIdentity stores the verified identity in the Gin context.
// A nil identity marks the request as anonymous.
func SetIdentity(c *gin.Context, id *extensions.Identity) {
	c.Set(identityKey, id)
}

// GetIdentity retrieves the verified identity from the Gin context.
// Returns nil for anonymous requests.
func GetIdentity(c *gin.Context) *extensions.Identity {
	if v, exists := c.Get(identityKey); exists {
		if id, ok := v.(*extensions.Identity); ok {
			return id
		}
	}
	return nil
}

// IdentityMiddleware creates a Gin middleware that resolves the
// request's identity.
//
// # Inputs
//
//   - provider: IdentityProvider to verify tokens. Must not be nil.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware function ready for use with Gin.
func IdentityMiddleware(provider extensions.IdentityProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)

		identity, err := provider.Verify(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, extensions.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "invalid credentials",
				})
				return
			}
			// Provider failure (network, misconfiguration). The
			// request proceeds as anonymous rather than failing
			// closed; identity-requiring handlers still answer 401.
			identity = nil
		}

		SetIdentity(c, identity)
		c.Next()
	}
}

// extractBearerToken extracts the token from the Authorization header.
// Returns empty string if the header is missing or malformed. The
// "Bearer" prefix is case-insensitive per RFC 7235.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
