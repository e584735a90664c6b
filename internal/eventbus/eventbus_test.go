package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExactMatch(t *testing.T) {
	b := New(nil)
	var got []string
	b.Subscribe("brain.entity.saved", func(e Event) { got = append(got, e.Name) })
	b.Emit("brain.entity.saved", nil)
	b.Emit("brain.entity.archived", nil)
	require.Equal(t, []string{"brain.entity.saved"}, got)
}

func TestSingleSegmentWildcard(t *testing.T) {
	b := New(nil)
	var got []string
	b.Subscribe("brain.entity.*", func(e Event) { got = append(got, e.Name) })
	b.Emit("brain.entity.saved", nil)
	b.Emit("brain.entity.archived", nil)
	b.Emit("brain.entity.saved.extra", nil)
	require.Equal(t, []string{"brain.entity.saved", "brain.entity.archived"}, got)
}

func TestDoubleStarWildcard(t *testing.T) {
	b := New(nil)
	var got []string
	b.Subscribe("brain.**", func(e Event) { got = append(got, e.Name) })
	b.Emit("brain.entity.saved", nil)
	b.Emit("brain.compacted", nil)
	b.Emit("command.executed", nil)
	require.Equal(t, []string{"brain.entity.saved", "brain.compacted"}, got)
}

func TestListenerPanicDoesNotAbortChain(t *testing.T) {
	b := New(nil)
	var secondCalled bool
	b.Subscribe("x", func(Event) { panic("boom") })
	b.Subscribe("x", func(Event) { secondCalled = true })
	require.NotPanics(t, func() { b.Emit("x", nil) })
	require.True(t, secondCalled)
}
