package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dominikletica/aaviondb/internal/aerr"
	"github.com/dominikletica/aaviondb/internal/brainstore"
	"github.com/dominikletica/aaviondb/internal/dispatch"
	"github.com/dominikletica/aaviondb/internal/eventbus"
	"github.com/dominikletica/aaviondb/internal/pathlocator"
)

func newTestStore(t *testing.T) *brainstore.Store {
	loc := pathlocator.New(t.TempDir())
	require.NoError(t, loc.EnsureDefaultDirectories())
	return brainstore.New(loc, eventbus.New(nil))
}

func TestRunOnceNoTasks(t *testing.T) {
	store := newTestStore(t)
	d := dispatch.New(nil)
	r := New(store, d, Options{})
	entry, err := r.RunOnce()
	require.NoError(t, err)
	require.Empty(t, entry.Results)
}

func TestRunOnceRecordsSuccessAndFailure(t *testing.T) {
	store := newTestStore(t)
	d := dispatch.New(nil)
	d.Register("ok_task", func(map[string]any) (any, error) { return "done", nil }, dispatch.Meta{})
	d.Register("bad_task", func(map[string]any) (any, error) {
		return nil, aerr.New(aerr.KindHandlerException, "boom")
	}, dispatch.Meta{})

	_, err := store.UpsertSchedulerTask("good", "ok_task")
	require.NoError(t, err)
	_, err = store.UpsertSchedulerTask("bad", "bad_task")
	require.NoError(t, err)

	r := New(store, d, Options{MaxWorkers: 2})
	entry, err := r.RunOnce()
	require.NoError(t, err)
	require.Len(t, entry.Results, 2)

	byTask := map[string]string{}
	for _, res := range entry.Results {
		byTask[res.Command] = res.Status
	}
	require.Equal(t, "ok", byTask["ok_task"])
	require.Equal(t, "error", byTask["bad_task"])

	tasks, err := store.ListSchedulerTasks()
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		require.NotNil(t, task.LastRunAt)
	}
}

func TestRunOnceContinuesAfterPanic(t *testing.T) {
	store := newTestStore(t)
	d := dispatch.New(nil)
	d.Register("panicky", func(map[string]any) (any, error) { panic("kaboom") }, dispatch.Meta{})
	d.Register("fine", func(map[string]any) (any, error) { return "ok", nil }, dispatch.Meta{})
	_, err := store.UpsertSchedulerTask("p", "panicky")
	require.NoError(t, err)
	_, err = store.UpsertSchedulerTask("f", "fine")
	require.NoError(t, err)

	r := New(store, d, Options{})
	entry, err := r.RunOnce()
	require.NoError(t, err)
	require.Len(t, entry.Results, 2)
}
