// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Voicebridge Contributors

package provider_test

import (
	"testing"
	"time"

	"github.com/voicebridge-dev/voicebridge/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthTrackerStartsHealthy(t *testing.T) {
	h, err := provider.NewHealthTracker(provider.DefaultHealthCooldown)
	require.NoError(t, err)
	assert.True(t, h.IsHealthy())
	assert.Zero(t, h.FailureCount())
}

func TestHealthTrackerRejectsNonPositiveCooldown(t *testing.T) {
	_, err := provider.NewHealthTracker(0)
	require.Error(t, err)
	_, err = provider.NewHealthTracker(-time.Second)
	require.Error(t, err)
}

func TestHealthTrackerFailureAndRecovery(t *testing.T) {
	h, err := provider.NewHealthTracker(30 * time.Second)
	require.NoError(t, err)

	now := time.Now()
	h.SetNowFunc(func() time.Time { return now })

	h.RecordFailure()
	assert.False(t, h.IsHealthy())
	assert.Equal(t, int64(1), h.FailureCount())

	// Still inside the cooldown window.
	now = now.Add(10 * time.Second)
	assert.False(t, h.IsHealthy())

	// Cooldown elapsed: eligible for retry.
	now = now.Add(25 * time.Second)
	assert.True(t, h.IsHealthy())
}

func TestHealthTrackerSuccessResets(t *testing.T) {
	h, err := provider.NewHealthTracker(time.Hour)
	require.NoError(t, err)

	h.RecordFailure()
	assert.False(t, h.IsHealthy())

	h.RecordSuccess()
	assert.True(t, h.IsHealthy())
	assert.Equal(t, int64(1), h.FailureCount(), "cumulative count survives recovery")
}
