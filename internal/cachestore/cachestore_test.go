package cachestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	s := New(t.TempDir(), true, 60, nil)
	require.NoError(t, s.Put("k1", map[string]any{"a": int64(1)}, PutOptions{Tags: []string{"tagA"}}))
	got, ok := s.Get("k1")
	require.True(t, ok)
	require.Equal(t, map[string]any{"a": float64(1)}, got)
}

func TestDisabledStoreSkipsPutUnlessForced(t *testing.T) {
	s := New(t.TempDir(), false, 60, nil)
	require.NoError(t, s.Put("k1", "v", PutOptions{}))
	_, ok := s.Get("k1")
	require.False(t, ok)

	require.NoError(t, s.Put("k2", "v", PutOptions{Force: true}))
	s.SetEnabled(true)
	got, ok := s.Get("k2")
	require.True(t, ok)
	require.Equal(t, "v", got)
}

func TestExpiryRemovesEntry(t *testing.T) {
	s := New(t.TempDir(), true, 60, nil)
	base := time.Now()
	s.now = func() time.Time { return base }
	require.NoError(t, s.Put("k1", "v", PutOptions{TTL: time.Second}))
	s.now = func() time.Time { return base.Add(2 * time.Second) }
	_, ok := s.Get("k1")
	require.False(t, ok)
}

func TestInvalidateByTag(t *testing.T) {
	s := New(t.TempDir(), true, 60, nil)
	require.NoError(t, s.Put("k1", "v1", PutOptions{Tags: []string{"group"}}))
	require.NoError(t, s.Put("k2", "v2", PutOptions{Tags: []string{"group"}}))
	require.NoError(t, s.Put("k3", "v3", PutOptions{Tags: []string{"other"}}))
	require.NoError(t, s.InvalidateByTag("group"))
	_, ok := s.Get("k1")
	require.False(t, ok)
	_, ok = s.Get("k3")
	require.True(t, ok)
}

func TestStatistics(t *testing.T) {
	s := New(t.TempDir(), true, 60, nil)
	require.NoError(t, s.Put("k1", "v1", PutOptions{Tags: []string{"a"}}))
	require.NoError(t, s.Put("k2", "v2", PutOptions{Tags: []string{"a", "b"}}))
	stats, err := s.Statistics()
	require.NoError(t, err)
	require.Equal(t, 2, stats.Entries)
	require.Equal(t, 2, stats.Tags["a"])
	require.Equal(t, 1, stats.Tags["b"])
}
