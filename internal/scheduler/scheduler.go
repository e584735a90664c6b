// Package scheduler executes system.brain.scheduler.tasks through the
// command dispatcher, bounded by a worker pool (spec.md §3.6 and
// SPEC_FULL.md's supplemental scheduler module). The cron trigger
// mechanism itself is out of scope (spec.md §1 Non-goals) — this
// package only knows how to run one "round" of every registered task
// when asked.
package scheduler

import (
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/dominikletica/aaviondb/internal/brainstore"
	"github.com/dominikletica/aaviondb/internal/dispatch"
)

// Runner ties the brain store's scheduler state to the dispatcher.
type Runner struct {
	store      *brainstore.Store
	dispatcher *dispatch.Dispatcher
	now        func() time.Time
	maxWorkers int
}

// Options configures a Runner.
type Options struct {
	MaxWorkers int // default 4
}

// New constructs a Runner.
func New(store *brainstore.Store, dispatcher *dispatch.Dispatcher, opts Options) *Runner {
	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = 4
	}
	return &Runner{store: store, dispatcher: dispatcher, now: time.Now, maxWorkers: workers}
}

// RunOnce executes every registered scheduler task once, bounded by
// maxWorkers concurrent dispatches, and appends one log entry
// recording all outcomes (spec.md §5: "best-effort; a failing task's
// outcome is recorded and the run continues with the next task").
func (r *Runner) RunOnce() (*brainstore.SchedulerLogEntry, error) {
	tasks, err := r.store.ListSchedulerTasks()
	if err != nil {
		return nil, err
	}
	start := r.now()
	results := make([]brainstore.SchedulerRunResult, len(tasks))

	p := pool.New().WithMaxGoroutines(r.maxWorkers)
	for i, task := range tasks {
		i, task := i, task
		p.Go(func() {
			results[i] = r.runTask(task)
		})
	}
	p.Wait()

	entry := brainstore.SchedulerLogEntry{
		Timestamp:  start,
		DurationMs: time.Since(start).Milliseconds(),
		Results:    results,
	}
	if err := r.store.RecordSchedulerRun(entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *Runner) runTask(task *brainstore.SchedulerTask) (result brainstore.SchedulerRunResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = brainstore.SchedulerRunResult{Slug: task.Slug, Command: task.Command, Status: "error", Message: "task panicked"}
		}
	}()
	start := r.now()
	action, params := r.dispatcher.Parse(task.Command)
	resp := r.dispatcher.Dispatch(action, params)
	status := "ok"
	message := ""
	if resp.Status != "ok" {
		status = "error"
		message = resp.Message
	}
	return brainstore.SchedulerRunResult{
		Slug: task.Slug, Command: task.Command, Status: status, Message: message,
		DurationMs: time.Since(start).Milliseconds(), Response: resp.Data,
	}
}
