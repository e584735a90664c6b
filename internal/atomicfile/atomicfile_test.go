package atomicfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dominikletica/aaviondb/internal/codec"
	"github.com/dominikletica/aaviondb/internal/eventbus"
)

func TestWriteThenReadBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "brain.json")
	v := map[string]any{"a": int64(1), "b": []any{"x", "y"}}
	enc, err := codec.Encode(v)
	require.NoError(t, err)

	w := NewWriter(nil)
	require.NoError(t, w.Write(path, enc))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, enc, got)
	require.NotNil(t, w.LastWrite())
	require.Nil(t, w.LastFailure())
}

func TestReadAndDecodeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "brain.json")
	v := map[string]any{"meta": map[string]any{"slug": "default"}}
	enc, err := codec.Encode(v)
	require.NoError(t, err)
	require.NoError(t, NewWriter(nil).Write(path, enc))

	decoded, err := ReadAndDecode(path)
	require.NoError(t, err)
	require.True(t, codec.DeepEqual(v, decoded))
}

func TestWriteEmitsCompletedEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "brain.json")
	enc, err := codec.Encode(map[string]any{"a": int64(1)})
	require.NoError(t, err)

	bus := eventbus.New(nil)
	var events []string
	bus.Subscribe("brain.write.**", func(ev eventbus.Event) { events = append(events, ev.Name) })

	require.NoError(t, NewWriter(bus).Write(path, enc))
	require.Equal(t, []string{"brain.write.completed"}, events)
}
