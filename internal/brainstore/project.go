package brainstore

import (
	"github.com/dominikletica/aaviondb/internal/aerr"
	"github.com/dominikletica/aaviondb/internal/pathlocator"
)

// ListProjects returns every project in the active (or named) brain,
// sorted by slug.
func (s *Store) ListProjects(brainSlug string) ([]*Project, error) {
	slug, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return nil, err
	}
	b, err := s.loadReadOnly(slug, false)
	if err != nil {
		return nil, err
	}
	out := make([]*Project, 0, len(b.Projects))
	for _, k := range sortedKeys(b.Projects) {
		out = append(out, b.Projects[k])
	}
	return out, nil
}

// CreateProject adds a new project stub to the active brain.
func (s *Store) CreateProject(brainSlug, slug, title, description string) (*Project, error) {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return nil, err
	}
	slug = pathlocator.SanitizeSlug(slug)
	var created *Project
	_, err = s.withBrain(bs, false, func(b *Brain) error {
		if _, exists := b.Projects[slug]; exists {
			return aerr.New(aerr.KindInvalidParameter, "project %q already exists", slug)
		}
		now := s.now()
		p := &Project{
			Slug: slug, Title: title, Description: description, Status: "active",
			CreatedAt: now, UpdatedAt: now,
			Entities: map[string]*Entity{}, Hierarchy: newHierarchy(),
		}
		b.Projects[slug] = p
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.bus.Emit("brain.project.created", map[string]any{"brain": bs, "project": slug})
	return created, nil
}

// UpdateProjectMetadata updates title/description in place.
func (s *Store) UpdateProjectMetadata(brainSlug, slug string, title, description *string) error {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return err
	}
	slug = pathlocator.SanitizeSlug(slug)
	_, err = s.withBrain(bs, false, func(b *Brain) error {
		p, ok := b.Projects[slug]
		if !ok {
			return aerr.New(aerr.KindNotFound, "project %q not found", slug)
		}
		if title != nil {
			p.Title = *title
		}
		if description != nil {
			p.Description = *description
		}
		p.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return err
	}
	s.bus.Emit("brain.project.updated", map[string]any{"brain": bs, "project": slug})
	return nil
}

// ArchiveProject flips a project's status to archived and deactivates
// every one of its entities (spec.md §4.4).
func (s *Store) ArchiveProject(brainSlug, slug string) error {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return err
	}
	slug = pathlocator.SanitizeSlug(slug)
	_, err = s.withBrain(bs, false, func(b *Brain) error {
		p, ok := b.Projects[slug]
		if !ok {
			return aerr.New(aerr.KindNotFound, "project %q not found", slug)
		}
		now := s.now()
		p.Status = "archived"
		p.ArchivedAt = &now
		p.UpdatedAt = now
		for _, e := range p.Entities {
			deactivateEntityInPlace(e, now)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.bus.Emit("brain.project.archived", map[string]any{"brain": bs, "project": slug})
	return nil
}

// RestoreProjectOptions configures RestoreProject.
type RestoreProjectOptions struct {
	ReactivateEntities bool
}

// RestoreProject flips a project back to active. When
// ReactivateEntities is set, each inactive entity's last-known-active
// version (or else its newest version) is reactivated; entities with no
// versions produce a warning instead of an error.
func (s *Store) RestoreProject(brainSlug, slug string, opts RestoreProjectOptions) ([]string, error) {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return nil, err
	}
	slug = pathlocator.SanitizeSlug(slug)
	var warnings []string
	_, err = s.withBrain(bs, false, func(b *Brain) error {
		p, ok := b.Projects[slug]
		if !ok {
			return aerr.New(aerr.KindNotFound, "project %q not found", slug)
		}
		now := s.now()
		p.Status = "active"
		p.ArchivedAt = nil
		p.UpdatedAt = now
		if opts.ReactivateEntities {
			for _, k := range sortedKeys(p.Entities) {
				e := p.Entities[k]
				if len(e.Versions) == 0 {
					warnings = append(warnings, "entity "+k+" has no versions to reactivate")
					continue
				}
				candidate := e.ActiveVersion
				if candidate == "" || e.Versions[candidate] == nil {
					keys := sortedVersionKeys(e.Versions)
					candidate = keys[len(keys)-1]
				}
				for vk, v := range e.Versions {
					v.Status = "inactive"
					if vk == candidate {
						v.Status = "active"
					}
				}
				e.ActiveVersion = candidate
				e.Status = "active"
				e.ArchivedAt = nil
				e.UpdatedAt = now
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.bus.Emit("brain.project.restored", map[string]any{"brain": bs, "project": slug})
	return warnings, nil
}

// DeleteProject removes a project outright, optionally purging its
// commit-index entries from the brain's global commits map.
func (s *Store) DeleteProject(brainSlug, slug string, purgeCommits bool) error {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return err
	}
	slug = pathlocator.SanitizeSlug(slug)
	_, err = s.withBrain(bs, false, func(b *Brain) error {
		if _, ok := b.Projects[slug]; !ok {
			return aerr.New(aerr.KindNotFound, "project %q not found", slug)
		}
		delete(b.Projects, slug)
		if purgeCommits {
			for hash, c := range b.Commits {
				if c.Project == slug {
					delete(b.Commits, hash)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.bus.Emit("brain.project.deleted", map[string]any{"brain": bs, "project": slug})
	return nil
}

// ProjectReport summarizes a project, optionally including its entities.
type ProjectReport struct {
	Project       *Project  `json:"project"`
	EntityCount   int       `json:"entity_count"`
	VersionCount  int       `json:"version_count"`
	Entities      []*Entity `json:"entities,omitempty"`
}

// ProjectReportFor builds a ProjectReport for slug.
func (s *Store) ProjectReportFor(brainSlug, slug string, includeEntities bool) (*ProjectReport, error) {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return nil, err
	}
	slug = pathlocator.SanitizeSlug(slug)
	b, err := s.loadReadOnly(bs, false)
	if err != nil {
		return nil, err
	}
	p, ok := b.Projects[slug]
	if !ok {
		return nil, aerr.New(aerr.KindNotFound, "project %q not found", slug)
	}
	report := &ProjectReport{Project: p, EntityCount: len(p.Entities)}
	for _, e := range p.Entities {
		report.VersionCount += len(e.Versions)
	}
	if includeEntities {
		for _, k := range sortedKeys(p.Entities) {
			report.Entities = append(report.Entities, p.Entities[k])
		}
	}
	return report, nil
}
