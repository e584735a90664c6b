package brainstore

import "github.com/dominikletica/aaviondb/internal/aerr"

// SchedulerLogCap bounds scheduler.log to the most recent N runs
// (spec.md §3.6, default 100).
const SchedulerLogCap = 100

// ListSchedulerTasks returns every registered scheduler task, sorted by
// slug.
func (s *Store) ListSchedulerTasks() ([]*SchedulerTask, error) {
	b, err := s.loadReadOnly("system", true)
	if err != nil {
		return nil, err
	}
	if b.Scheduler == nil {
		return nil, nil
	}
	var out []*SchedulerTask
	for _, k := range sortedKeys(b.Scheduler.Tasks) {
		out = append(out, b.Scheduler.Tasks[k])
	}
	return out, nil
}

// UpsertSchedulerTask creates or replaces a scheduler task's command.
func (s *Store) UpsertSchedulerTask(slug, command string) (*SchedulerTask, error) {
	var task *SchedulerTask
	_, err := s.withBrain("system", true, func(b *Brain) error {
		if b.Scheduler == nil {
			b.Scheduler = &Scheduler{Tasks: map[string]*SchedulerTask{}}
		}
		now := s.now()
		existing, ok := b.Scheduler.Tasks[slug]
		if ok {
			existing.Command = command
			existing.UpdatedAt = now
			task = existing
			return nil
		}
		task = &SchedulerTask{Slug: slug, Command: command, CreatedAt: now, UpdatedAt: now}
		b.Scheduler.Tasks[slug] = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteSchedulerTask removes a scheduler task.
func (s *Store) DeleteSchedulerTask(slug string) error {
	_, err := s.withBrain("system", true, func(b *Brain) error {
		if b.Scheduler == nil || b.Scheduler.Tasks[slug] == nil {
			return aerr.New(aerr.KindNotFound, "scheduler task %q not found", slug)
		}
		delete(b.Scheduler.Tasks, slug)
		return nil
	})
	return err
}

// RecordSchedulerRun appends one bounded log entry and updates each
// involved task's last_run_at/last_status/last_message.
func (s *Store) RecordSchedulerRun(entry SchedulerLogEntry) error {
	_, err := s.withBrain("system", true, func(b *Brain) error {
		if b.Scheduler == nil {
			b.Scheduler = &Scheduler{Tasks: map[string]*SchedulerTask{}}
		}
		b.Scheduler.Log = append(b.Scheduler.Log, entry)
		if len(b.Scheduler.Log) > SchedulerLogCap {
			b.Scheduler.Log = b.Scheduler.Log[len(b.Scheduler.Log)-SchedulerLogCap:]
		}
		for _, r := range entry.Results {
			task, ok := b.Scheduler.Tasks[r.Slug]
			if !ok {
				continue
			}
			when := entry.Timestamp
			task.LastRunAt = &when
			task.LastStatus = r.Status
			task.LastMessage = r.Message
		}
		return nil
	})
	return err
}
