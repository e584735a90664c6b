package jsonpath

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetNested(t *testing.T) {
	v := map[string]any{
		"stats": map[string]any{"agility": int64(12)},
		"tags":  []any{"a", "b"},
	}
	got, ok := Get(v, "stats.agility")
	require.True(t, ok)
	require.Equal(t, int64(12), got)

	got, ok = Get(v, "tags[1]")
	require.True(t, ok)
	require.Equal(t, "b", got)

	_, ok = Get(v, "missing.path")
	require.False(t, ok)
}

func TestSetAndDelete(t *testing.T) {
	v := map[string]any{"a": int64(1)}
	updated, err := Set(v, "b.c", "hello")
	require.NoError(t, err)
	got, ok := Get(updated, "b.c")
	require.True(t, ok)
	require.Equal(t, "hello", got)

	deleted, err := Delete(updated, "a")
	require.NoError(t, err)
	_, ok = Get(deleted, "a")
	require.False(t, ok)
}
