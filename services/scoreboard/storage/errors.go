// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"errors"
	"fmt"
)

// ErrValidation marks a malformed or missing required field. Surfaced
// to callers as 400 and never retried.
var ErrValidation = errors.New("validation failed")

// ErrAllTiersFailed is the terminal chain failure: every tier either
// errored or was unconfigured. For writes this is the only case where
// data is truly lost, so callers log it at a severity that pages an
// operator.
var ErrAllTiersFailed = errors.New("all storage tiers failed")

// ErrNotFound is returned by tiers when a keyed record does not exist.
// The stores translate it into an empty result; it never reaches a
// caller as an error.
var ErrNotFound = errors.New("record not found")

// TierError wraps a single tier's failure with enough context to
// diagnose an outage: which tier, which operation, and which key.
// The chain swallows these per-tier and falls through to the next
// tier; only the last tier's error escalates.
type TierError struct {
	Tier string
	Op   string
	Key  string
	Err  error
}

func (e *TierError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("tier %s: %s: %v", e.Tier, e.Op, e.Err)
	}
	return fmt.Sprintf("tier %s: %s %q: %v", e.Tier, e.Op, e.Key, e.Err)
}

func (e *TierError) Unwrap() error { return e.Err }

// newTierError wraps err unless it is already a TierError.
func newTierError(tier, op, key string, err error) *TierError {
	var te *TierError
	if errors.As(err, &te) {
		return te
	}
	return &TierError{Tier: tier, Op: op, Key: key, Err: err}
}
