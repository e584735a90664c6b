package brainfs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dominikletica/aaviondb/internal/cachestore"
	"github.com/dominikletica/aaviondb/internal/eventbus"
)

func TestWatcherInvalidatesOnBrainWrite(t *testing.T) {
	dir := t.TempDir()
	cache := cachestore.New(filepath.Join(dir, "cache"), true, 300, nil)
	require.NoError(t, cache.Put("export:demo:context-unified", "cached", cachestore.PutOptions{Tags: []string{"demo"}, Force: true}))

	bus := eventbus.New(nil)
	w, err := New(cache, bus)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Watch(dir))

	var invalidated []string
	bus.Subscribe("brainfs.invalidated", func(ev eventbus.Event) {
		if slug, ok := ev.Data["slug"].(string); ok {
			invalidated = append(invalidated, slug)
		}
	})
	go w.Start()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo.brain"), []byte("{}"), 0o644))

	require.Eventually(t, func() bool {
		_, found := cache.Get("export:demo:context-unified")
		return !found
	}, 2*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(invalidated) > 0
	}, 2*time.Second, 20*time.Millisecond)
}
