package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dominikletica/aaviondb/internal/cachestore"
)

func newTestManager(t *testing.T) *Manager {
	cache := cachestore.New(t.TempDir(), true, 60, nil)
	return New(cache, Config{RateLimit: 2, GlobalLimit: 10, Window: time.Minute, FailedLimit: 2, FailedBlock: time.Minute, DDOSLockdown: time.Minute})
}

func TestPreflightAllowsUntilLimit(t *testing.T) {
	m := newTestManager(t)
	d := m.Preflight("c1")
	require.True(t, d.Allowed)
	m.RegisterAttempt("c1")
	m.RegisterAttempt("c1")
	d = m.Preflight("c1")
	require.False(t, d.Allowed)
	require.Equal(t, "client_rate", d.Reason)
}

func TestRegisterFailureTriggersBlock(t *testing.T) {
	m := newTestManager(t)
	m.RegisterFailure("c1")
	m.RegisterFailure("c1")
	d := m.Preflight("c1")
	require.False(t, d.Allowed)
	require.Equal(t, "failed_block", d.Reason)
}

func TestRegisterSuccessClearsFailures(t *testing.T) {
	m := newTestManager(t)
	m.RegisterFailure("c1")
	m.RegisterSuccess("c1")
	m.RegisterFailure("c1")
	d := m.Preflight("c1")
	require.True(t, d.Allowed)
}

func TestLockdownBlocksEveryone(t *testing.T) {
	m := newTestManager(t)
	m.Lockdown(time.Minute)
	d := m.Preflight("anyone")
	require.False(t, d.Allowed)
	require.Equal(t, "lockdown", d.Reason)
}

func TestPurgeLiftsLockdown(t *testing.T) {
	m := newTestManager(t)
	m.Lockdown(time.Minute)
	require.NoError(t, m.Purge())
	d := m.Preflight("anyone")
	require.True(t, d.Allowed)
}
