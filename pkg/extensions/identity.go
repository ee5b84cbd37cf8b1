// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extensions defines the identity extension point for the
// scoreboard service.
//
// The service itself is not an identity provider. It accepts a bearer
// token minted by the game's auth frontend and asks an
// IdentityProvider to verify it. A request without a valid token is
// anonymous, not an error: anonymous writers may still submit scores
// under a caller-supplied display name, while progress endpoints
// require a verified identity.
package extensions

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned when a presented token is invalid.
// Implementations should wrap this error with additional context.
var ErrUnauthorized = errors.New("unauthorized")

// Identity is a verified user identity.
//
// Required fields (always populated):
//   - Key: Stable identifier used as the progress-record key.
//   - DisplayName: Name shown on the leaderboard.
type Identity struct {
	// Key is the stable user key. Prefer an email or subject claim
	// over the display name, which users can change.
	Key string

	// DisplayName is the verified name shown on leaderboards.
	DisplayName string
}

// IdentityProvider verifies bearer tokens.
//
// Implementations must be safe for concurrent use.
//
// Contract:
//   - (identity, nil): token verified.
//   - (nil, nil): no token presented; the request is anonymous.
//   - (nil, err): token presented but invalid; err wraps
//     ErrUnauthorized.
type IdentityProvider interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// =============================================================================
// JWT provider
// =============================================================================

// JWTIdentityProvider verifies HS256-signed JWTs carrying the user's
// display name. This matches the tokens the game frontend mints at
// login.
type JWTIdentityProvider struct {
	secret []byte
}

// NewJWTIdentityProvider creates a provider with the given signing
// secret.
func NewJWTIdentityProvider(secret []byte) (*JWTIdentityProvider, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret must not be empty")
	}
	return &JWTIdentityProvider{secret: secret}, nil
}

// Verify parses and validates the token. Empty tokens are anonymous.
func (p *JWTIdentityProvider) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, nil
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("invalid token: %w", ErrUnauthorized)
	}

	sub, _ := claims["sub"].(string)
	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)

	// The user key prefers the stable identifiers; display name is
	// the last resort.
	key := email
	if key == "" {
		key = sub
	}
	if key == "" {
		key = name
	}
	if key == "" {
		return nil, fmt.Errorf("token carries no identity claims: %w", ErrUnauthorized)
	}
	if name == "" {
		name = key
	}
	return &Identity{Key: key, DisplayName: name}, nil
}

// =============================================================================
// Anonymous provider
// =============================================================================

// AnonymousProvider never verifies anyone. Used when no signing secret
// is configured: the service still serves anonymous score submissions
// but every identity-requiring endpoint answers 401.
type AnonymousProvider struct{}

// Verify treats every request as anonymous.
func (AnonymousProvider) Verify(ctx context.Context, token string) (*Identity, error) {
	return nil, nil
}

// =============================================================================
// Static provider (tests)
// =============================================================================

// StaticProvider verifies tokens against a fixed map. Intended for
// tests.
type StaticProvider struct {
	// Tokens maps bearer token to identity.
	Tokens map[string]Identity
}

// Verify looks the token up in the map.
func (p *StaticProvider) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, nil
	}
	if id, ok := p.Tokens[token]; ok {
		return &id, nil
	}
	return nil, fmt.Errorf("unknown token: %w", ErrUnauthorized)
}

var (
	_ IdentityProvider = (*JWTIdentityProvider)(nil)
	_ IdentityProvider = AnonymousProvider{}
	_ IdentityProvider = (*StaticProvider)(nil)
)
