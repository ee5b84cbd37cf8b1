// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Behavior against a live database is covered by the integration
// environment; these tests pin down the unconfigured stand-in the
// chain relies on when no database URL is set.

func TestUnconfigured(t *testing.T) {
	tier := Unconfigured()

	assert.Equal(t, "postgres", tier.Name())
	assert.False(t, tier.Configured())
	assert.NoError(t, tier.Close(), "closing an unconfigured tier should be a no-op")
}

func TestOpen_RequiresDatabaseURL(t *testing.T) {
	_, err := Open(context.Background(), "")
	require.Error(t, err)
}
