package brainstore

import "github.com/dominikletica/aaviondb/internal/aerr"

// GetProject is a read-only project lookup (no RMW lock), used by
// collaborators that need to enumerate a project's shape (export,
// resolver) without mutating it.
func (s *Store) GetProject(brainSlug, project string) (*Project, error) {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return nil, err
	}
	b, err := s.loadReadOnly(bs, false)
	if err != nil {
		return nil, err
	}
	p, ok := b.Projects[project]
	if !ok {
		return nil, aerr.New(aerr.KindNotFound, "project %q not found", project)
	}
	return p, nil
}

// GetEntity is a read-only entity lookup.
func (s *Store) GetEntity(brainSlug, project, entity string) (*Entity, error) {
	p, err := s.GetProject(brainSlug, project)
	if err != nil {
		return nil, err
	}
	e, ok := p.Entities[entity]
	if !ok {
		return nil, aerr.New(aerr.KindNotFound, "entity %q not found in project %q", entity, project)
	}
	return e, nil
}

// GetVersionByRef resolves ref ("" | "@N" | "#hash" | bare numeric)
// against an entity and returns the matching VersionRecord.
func (s *Store) GetVersionByRef(brainSlug, project, entity, ref string) (*VersionRecord, error) {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return nil, err
	}
	b, err := s.loadReadOnly(bs, false)
	if err != nil {
		return nil, err
	}
	p, ok := b.Projects[project]
	if !ok {
		return nil, aerr.New(aerr.KindNotFound, "project %q not found", project)
	}
	e, ok := p.Entities[entity]
	if !ok {
		return nil, aerr.New(aerr.KindNotFound, "entity %q not found in project %q", entity, project)
	}
	vk, err := ResolveEntityVersionKey(b, project, entity, e, ref)
	if err != nil {
		return nil, err
	}
	return e.Versions[vk], nil
}
