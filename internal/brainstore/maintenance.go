package brainstore

import "github.com/dominikletica/aaviondb/internal/aerr"

// PurgePlan describes what purgeInactiveEntityVersions would do (or
// did) for one entity.
type PurgePlan struct {
	Project        string   `json:"project"`
	Entity         string   `json:"entity"`
	KeptVersions   []string `json:"kept_versions"`
	DeletedVersions []string `json:"deleted_versions"`
}

// PurgeInactiveEntityVersions keeps the active version and the `keep`
// newest-by-version-number versions per entity, deleting the rest along
// with their commit-index entries. With dryRun, no mutation occurs and
// the returned plan describes what would happen.
func (s *Store) PurgeInactiveEntityVersions(brainSlug, project, entitySlug string, keep int, dryRun bool) ([]PurgePlan, error) {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return nil, err
	}
	if keep < 0 {
		keep = 0
	}
	var plans []PurgePlan
	runner := func(b *Brain) error {
		p, ok := b.Projects[project]
		if !ok {
			return aerr.New(aerr.KindNotFound, "project %q not found", project)
		}
		var entities []string
		if entitySlug != "" {
			entities = []string{entitySlug}
		} else {
			entities = sortedKeys(p.Entities)
		}
		for _, slug := range entities {
			e, ok := p.Entities[slug]
			if !ok {
				continue
			}
			keys := sortedVersionKeys(e.Versions)
			keptSet := map[string]bool{}
			if e.ActiveVersion != "" {
				keptSet[e.ActiveVersion] = true
			}
			kept := 0
			for i := len(keys) - 1; i >= 0 && kept < keep; i-- {
				if !keptSet[keys[i]] {
					keptSet[keys[i]] = true
					kept++
				}
			}
			plan := PurgePlan{Project: project, Entity: slug}
			for _, k := range keys {
				if keptSet[k] {
					plan.KeptVersions = append(plan.KeptVersions, k)
				} else {
					plan.DeletedVersions = append(plan.DeletedVersions, k)
					if !dryRun {
						if rec := e.Versions[k]; rec != nil {
							delete(b.Commits, rec.Commit)
						}
						delete(e.Versions, k)
					}
				}
			}
			plans = append(plans, plan)
		}
		return nil
	}
	if dryRun {
		b, err := s.loadReadOnly(bs, false)
		if err != nil {
			return nil, err
		}
		if err := runner(b); err != nil {
			return nil, err
		}
		return plans, nil
	}
	if _, err := s.withBrain(bs, false, runner); err != nil {
		return nil, err
	}
	deleted := 0
	for _, plan := range plans {
		deleted += len(plan.DeletedVersions)
	}
	s.bus.Emit("brain.entity.cleanup", map[string]any{
		"brain": bs, "project": project, "entity": entitySlug, "deleted_versions": deleted,
	})
	return plans, nil
}

// CompactBrain rebuilds the commits index exactly from surviving
// version records and reorders each entity's versions map into
// ascending integer order (map ordering itself isn't observable in Go,
// but this documents and enforces the canonical key set per spec.md
// §4.4 so nothing beyond surviving records lingers in commits).
func (s *Store) CompactBrain(brainSlug, project string, dryRun bool) error {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return err
	}
	if dryRun {
		return nil
	}
	_, err = s.withBrain(bs, false, func(b *Brain) error {
		projects := []string{project}
		if project == "" {
			projects = sortedKeys(b.Projects)
		}
		for _, slug := range projects {
			p, ok := b.Projects[slug]
			if !ok {
				continue
			}
			for hash, c := range b.Commits {
				if c.Project == slug {
					delete(b.Commits, hash)
				}
			}
			for entitySlug, e := range p.Entities {
				for vk, v := range e.Versions {
					b.Commits[v.Commit] = &CommitEntry{
						Project: slug, Entity: entitySlug, Version: vk, Hash: v.Hash,
						Timestamp: v.CommittedAt, Merge: v.Merge, Fieldset: e.Fieldset,
						FieldsetVersion: v.FieldsetVersion, SourceReference: v.SourceReference,
						FieldsetRef: v.FieldsetRef,
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.bus.Emit("brain.compacted", map[string]any{"brain": bs, "project": project})
	return nil
}

// RepairBrain fixes up each entity per spec.md §4.4's repairBrain rules.
func (s *Store) RepairBrain(brainSlug, project string, dryRun bool) error {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return err
	}
	if dryRun {
		return nil
	}
	_, err = s.withBrain(bs, false, func(b *Brain) error {
		now := s.now()
		projects := []string{project}
		if project == "" {
			projects = sortedKeys(b.Projects)
		}
		for _, slug := range projects {
			p, ok := b.Projects[slug]
			if !ok {
				continue
			}
			for _, e := range p.Entities {
				if len(e.Versions) == 0 {
					e.ActiveVersion = ""
					e.Status = "inactive"
					continue
				}
				if e.ActiveVersion == "" || e.Versions[e.ActiveVersion] == nil {
					candidate := ""
					for vk, v := range e.Versions {
						if v.Status == "active" {
							candidate = vk
							break
						}
					}
					if candidate == "" {
						keys := sortedVersionKeys(e.Versions)
						candidate = keys[len(keys)-1]
					}
					e.ActiveVersion = candidate
				}
				for vk, v := range e.Versions {
					v.Status = "inactive"
					if vk == e.ActiveVersion {
						v.Status = "active"
					}
					if v.CommittedAt.IsZero() {
						v.CommittedAt = now
					}
				}
				if e.CreatedAt.IsZero() {
					e.CreatedAt = now
				}
				if e.UpdatedAt.IsZero() {
					e.UpdatedAt = now
				}
				if e.ActiveVersion != "" {
					e.Status = "active"
				} else {
					e.Status = "inactive"
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.bus.Emit("brain.repaired", map[string]any{"brain": bs, "project": project})
	return nil
}
