package brainstore

import (
	"time"

	"github.com/dominikletica/aaviondb/internal/aerr"
	"github.com/dominikletica/aaviondb/internal/auth"
	"github.com/dominikletica/aaviondb/internal/codec"
	"github.com/dominikletica/aaviondb/internal/pathlocator"
	"github.com/dominikletica/aaviondb/internal/resolver"
	"github.com/dominikletica/aaviondb/internal/schema"
)

// FieldsetsProject is the reserved project holding schema definitions
// (spec.md §4.4 step 8).
const FieldsetsProject = "fieldsets"

// SaveEntityOptions mirrors spec.md §4.4's saveEntity options bag.
type SaveEntityOptions struct {
	Merge             any // nil/true = merge (default), false or "replace" = replace
	SourceReference   string
	Fieldset          *string // explicit binding; nil = unspecified
	FieldsetReference string
	FieldsetProvided  bool
	ParentPath        []string
}

// SaveEntityResult summarizes the committed version.
type SaveEntityResult struct {
	Project  string `json:"project"`
	Entity   string `json:"entity"`
	Version  string `json:"version"`
	Commit   string `json:"commit"`
	Merge    bool   `json:"merge"`
	Fieldset string `json:"fieldset,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func isMergeMode(m any) bool {
	switch v := m.(type) {
	case nil:
		return true
	case bool:
		return v
	case string:
		return v != "replace"
	default:
		return true
	}
}

// SaveEntity implements the canonical 12-step algorithm of spec.md §4.4.
func (s *Store) SaveEntity(binding auth.Binding, brainSlug, project, entity string, payload map[string]any, meta map[string]any, opts SaveEntityOptions) (*SaveEntityResult, error) {
	// Step 1: scope check.
	if !binding.Scope.CanWrite(project) {
		return nil, aerr.New(aerr.KindScopeDenied, "scope does not permit writes to project %q", project)
	}
	// Step 2: slug normalization (empty rejected upstream by dispatcher
	// parameter validation; here we just sanitize).
	project = pathlocator.SanitizeSlug(project)
	entity = pathlocator.SanitizeSlug(entity)

	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return nil, err
	}

	var result *SaveEntityResult
	_, err = s.withBrain(bs, false, func(b *Brain) error {
		now := s.now()
		// Step 3: project/entity stubs.
		p, ok := b.Projects[project]
		if !ok {
			p = &Project{Slug: project, Title: project, Status: "active", CreatedAt: now, UpdatedAt: now,
				Entities: map[string]*Entity{}, Hierarchy: newHierarchy()}
			b.Projects[project] = p
		}
		e, ok := p.Entities[entity]
		if !ok {
			e = &Entity{Slug: entity, Status: "active", CreatedAt: now, UpdatedAt: now, Versions: map[string]*VersionRecord{}}
			p.Entities[entity] = e
		}

		var warnings []string
		// Step 4: parent path.
		if opts.ParentPath != nil {
			maxDepth := intConfig(b.Config, "hierarchy.max_depth", MaxHierarchyDepth)
			parent, w, err := resolveParentPath(p, entity, opts.ParentPath, maxDepth)
			if err != nil {
				return err
			}
			warnings = append(warnings, w...)
			if err := setParent(&p.Hierarchy, entity, parent); err != nil {
				warnings = append(warnings, err.Error())
			}
		}

		// Step 5/6: merge mode + merge source.
		merge := isMergeMode(opts.Merge)
		var source map[string]any
		if opts.SourceReference != "" {
			vk, err := ResolveEntityVersionKey(b, project, entity, e, opts.SourceReference)
			if err != nil {
				return aerr.New(aerr.KindInvalidReference, "unknown merge source %q", opts.SourceReference)
			}
			source = e.Versions[vk].Payload
		} else if e.ActiveVersion != "" {
			if v, ok := e.Versions[e.ActiveVersion]; ok {
				source = v.Payload
			}
		}
		if source == nil {
			source = map[string]any{}
		}

		// Step 7: merge rule.
		var merged map[string]any
		if merge {
			merged = mergePayload(source, payload)
		} else {
			merged = map[string]any{}
			for k, v := range payload {
				merged[k] = v
			}
		}

		fieldset := ""
		fieldsetVersion := ""

		if project == FieldsetsProject {
			// Step 8.
			if err := schema.AssertValidSchema(merged); err != nil {
				return err
			}
			e.Fieldset = ""
			e.FieldsetVersion = ""
		} else {
			// Step 9: fieldset binding.
			desiredFieldset := e.Fieldset
			if opts.FieldsetProvided {
				if opts.Fieldset == nil {
					desiredFieldset = ""
				} else {
					desiredFieldset = *opts.Fieldset
				}
			}
			fieldset = desiredFieldset
			if fieldset != "" {
				fsProject, ok := b.Projects[FieldsetsProject]
				if !ok {
					return aerr.New(aerr.KindNotFound, "fieldset project not found")
				}
				fsEntity, ok := fsProject.Entities[fieldset]
				if !ok {
					return aerr.New(aerr.KindNotFound, "fieldset %q not found", fieldset)
				}
				ref := opts.FieldsetReference
				if ref == "" && e.FieldsetVersion != "" {
					ref = "@" + e.FieldsetVersion
				}
				vk, err := ResolveEntityVersionKey(b, FieldsetsProject, fieldset, fsEntity, ref)
				if err != nil {
					return aerr.New(aerr.KindNotFound, "unknown fieldset %q", fieldset)
				}
				fieldsetVersion = vk
				schemaDoc := fsEntity.Versions[vk].Payload
				normalized, err := schema.ApplySchema(merged, schemaDoc, schema.Context{
					Project: project, Entity: entity, Params: meta,
				})
				if err != nil {
					return err
				}
				merged = normalized
			}
			e.Fieldset = fieldset
			e.FieldsetVersion = fieldsetVersion
		}

		// Step 10: strip resolved shortcode wrappers back to their bare
		// instruction form before hashing, so re-saving previously
		// resolved content doesn't perturb the version hash.
		merged = stripResolvedWrappers(merged)

		// Step 11: allocate version, compute hashes, commit.
		versionKey := nextVersionKey(e.Versions)
		hash, err := codec.Hash(merged)
		if err != nil {
			return err
		}
		descriptor := map[string]any{
			"project": project, "entity": entity, "version": versionKey,
			"hash": hash, "payload": merged, "meta": meta,
			"timestamp": now.Format(time.RFC3339Nano), "merge": merge,
			"fieldset": fieldset, "fieldset_version": fieldsetVersion,
			"source_reference": opts.SourceReference, "fieldset_reference": opts.FieldsetReference,
		}
		commitHash, err := codec.Hash(descriptor)
		if err != nil {
			return err
		}

		for _, v := range e.Versions {
			v.Status = "inactive"
		}
		record := &VersionRecord{
			Version: versionKey, Hash: hash, Commit: commitHash, CommittedAt: now,
			Status: "active", Payload: merged, Meta: meta, Merge: merge,
			FieldsetVersion: fieldsetVersion, SourceReference: opts.SourceReference, FieldsetRef: opts.FieldsetReference,
		}
		e.Versions[versionKey] = record
		e.ActiveVersion = versionKey
		e.UpdatedAt = now
		p.UpdatedAt = now

		b.Commits[commitHash] = &CommitEntry{
			Project: project, Entity: entity, Version: versionKey, Hash: hash, Timestamp: now,
			Merge: merge, Fieldset: fieldset, FieldsetVersion: fieldsetVersion,
			SourceReference: opts.SourceReference, FieldsetRef: opts.FieldsetReference,
		}

		result = &SaveEntityResult{
			Project: project, Entity: entity, Version: versionKey, Commit: commitHash,
			Merge: merge, Fieldset: fieldset, Warnings: warnings,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.bus.Emit("brain.entity.saved", map[string]any{
		"project": result.Project, "entity": result.Entity, "version": result.Version,
		"commit": result.Commit, "merge": result.Merge, "fieldset": result.Fieldset,
	})
	return result, nil
}

// stripResolvedWrappers walks payload and, for every string value,
// strips any "[kind …]<resolved-text>[/kind]" wrapper back to its bare
// "[kind …]" instruction form via resolver.StripResolvedWrapper
// (spec.md §4.4 step 10 / §4.12, Testable Property #10).
func stripResolvedWrappers(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = stripResolvedWrappersValue(v)
	}
	return out
}

func stripResolvedWrappersValue(v any) any {
	switch t := v.(type) {
	case string:
		return resolver.StripResolvedWrapper(t)
	case map[string]any:
		return stripResolvedWrappers(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = stripResolvedWrappersValue(item)
		}
		return out
	default:
		return v
	}
}

func deactivateEntityInPlace(e *Entity, now time.Time) {
	for _, v := range e.Versions {
		v.Status = "inactive"
	}
	e.Status = "inactive"
	e.UpdatedAt = now
}

// ArchiveEntity marks an entity archived (status=archived) and records
// ArchivedAt.
func (s *Store) ArchiveEntity(brainSlug, project, entitySlug string) error {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return err
	}
	_, err = s.withBrain(bs, false, func(b *Brain) error {
		e, err := lookupEntity(b, project, entitySlug)
		if err != nil {
			return err
		}
		now := s.now()
		e.Status = "archived"
		e.ArchivedAt = &now
		e.UpdatedAt = now
		return nil
	})
	if err != nil {
		return err
	}
	s.bus.Emit("brain.entity.archived", map[string]any{"brain": bs, "project": project, "entity": entitySlug})
	return nil
}

// DeactivateEntityOptions configures DeactivateEntity.
type DeactivateEntityOptions struct {
	Recursive bool
}

// DeactivateEntity marks status=inactive. Without Recursive, children
// are promoted to root level (spec.md §3.3).
func (s *Store) DeactivateEntity(brainSlug, project, entitySlug string, opts DeactivateEntityOptions) error {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return err
	}
	_, err = s.withBrain(bs, false, func(b *Brain) error {
		p, e, err := lookupProjectEntity(b, project, entitySlug)
		if err != nil {
			return err
		}
		now := s.now()
		if opts.Recursive {
			for _, slug := range subtreeOf(&p.Hierarchy, entitySlug) {
				if child, ok := p.Entities[slug]; ok {
					deactivateEntityInPlace(child, now)
				}
			}
		} else {
			deactivateEntityInPlace(e, now)
			promoteChildren(&p.Hierarchy, entitySlug)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.bus.Emit("brain.entity.deactivated", map[string]any{"brain": bs, "project": project, "entity": entitySlug})
	return nil
}

// DeleteEntityOptions configures DeleteEntity.
type DeleteEntityOptions struct {
	Recursive bool
}

// DeleteEntity removes an entity (and, if Recursive, its whole subtree)
// along with its commits index entries when purgeCommits is set.
func (s *Store) DeleteEntity(brainSlug, project, entitySlug string, purgeCommits bool, opts DeleteEntityOptions) error {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return err
	}
	_, err = s.withBrain(bs, false, func(b *Brain) error {
		p, _, err := lookupProjectEntity(b, project, entitySlug)
		if err != nil {
			return err
		}
		targets := []string{entitySlug}
		if opts.Recursive {
			targets = subtreeOf(&p.Hierarchy, entitySlug)
		} else {
			promoteChildren(&p.Hierarchy, entitySlug)
		}
		for _, slug := range targets {
			delete(p.Entities, slug)
			removeChildLink(&p.Hierarchy, slug)
			delete(p.Hierarchy.Children, slug)
			if purgeCommits {
				for hash, c := range b.Commits {
					if c.Project == project && c.Entity == slug {
						delete(b.Commits, hash)
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.bus.Emit("brain.entity.deleted", map[string]any{"brain": bs, "project": project, "entity": entitySlug})
	return nil
}

// DeleteEntityVersion resolves ref and removes that version record and
// its commit entry. If the removed version was active, the highest
// remaining version number becomes active; if none remain, the entity
// becomes inactive (spec.md §4.4 "Version deletion and restore").
func (s *Store) DeleteEntityVersion(brainSlug, project, entitySlug, ref string) error {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return err
	}
	_, err = s.withBrain(bs, false, func(b *Brain) error {
		_, e, err := lookupProjectEntity(b, project, entitySlug)
		if err != nil {
			return err
		}
		vk, err := ResolveEntityVersionKey(b, project, entitySlug, e, ref)
		if err != nil {
			return err
		}
		record := e.Versions[vk]
		delete(e.Versions, vk)
		if record != nil {
			delete(b.Commits, record.Commit)
		}
		if e.ActiveVersion == vk {
			keys := sortedVersionKeys(e.Versions)
			if len(keys) == 0 {
				e.ActiveVersion = ""
				e.Status = "inactive"
			} else {
				next := keys[len(keys)-1]
				for vk2, v := range e.Versions {
					v.Status = "inactive"
					if vk2 == next {
						v.Status = "active"
					}
				}
				e.ActiveVersion = next
			}
		}
		e.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return err
	}
	s.bus.Emit("brain.entity.version.deleted", map[string]any{"brain": bs, "project": project, "entity": entitySlug, "version": ref})
	return nil
}

// RestoreEntityVersion sets the referenced version active, all others
// of that entity inactive, and the entity itself active.
func (s *Store) RestoreEntityVersion(brainSlug, project, entitySlug, ref string) error {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return err
	}
	_, err = s.withBrain(bs, false, func(b *Brain) error {
		_, e, err := lookupProjectEntity(b, project, entitySlug)
		if err != nil {
			return err
		}
		vk, err := ResolveEntityVersionKey(b, project, entitySlug, e, ref)
		if err != nil {
			return err
		}
		for vk2, v := range e.Versions {
			v.Status = "inactive"
			if vk2 == vk {
				v.Status = "active"
			}
		}
		e.ActiveVersion = vk
		e.Status = "active"
		e.ArchivedAt = nil
		e.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return err
	}
	s.bus.Emit("brain.entity.restored", map[string]any{"brain": bs, "project": project, "entity": entitySlug, "version": ref})
	return nil
}

// ListEntities lists entities in a project, optionally filtered by
// hierarchy path (the direct children of the last path segment).
func (s *Store) ListEntities(brainSlug, project string, pathSegments []string) ([]*Entity, error) {
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
	if len(pathSegments) == 0 {
		out := make([]*Entity, 0, len(p.Entities))
		for _, k := range sortedKeys(p.Entities) {
			out = append(out, p.Entities[k])
		}
		return out, nil
	}
	parent := pathSegments[len(pathSegments)-1]
	children := p.Hierarchy.Children[parent]
	out := make([]*Entity, 0, len(children))
	for _, c := range children {
		if e, ok := p.Entities[c]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListEntityVersions returns every version record for an entity,
// ordered ascending by version number.
func (s *Store) ListEntityVersions(brainSlug, project, entitySlug string) ([]*VersionRecord, error) {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return nil, err
	}
	b, err := s.loadReadOnly(bs, false)
	if err != nil {
		return nil, err
	}
	_, e, err := lookupProjectEntity(b, project, entitySlug)
	if err != nil {
		return nil, err
	}
	keys := sortedVersionKeys(e.Versions)
	out := make([]*VersionRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, e.Versions[k])
	}
	return out, nil
}

// ListProjectCommits returns commit entries for a project (optionally
// filtered to a single entity).
func (s *Store) ListProjectCommits(brainSlug, project, entitySlug string) ([]*CommitEntry, error) {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return nil, err
	}
	b, err := s.loadReadOnly(bs, false)
	if err != nil {
		return nil, err
	}
	out := []*CommitEntry{}
	for _, h := range sortedKeys(b.Commits) {
		c := b.Commits[h]
		if c.Project != project {
			continue
		}
		if entitySlug != "" && c.Entity != entitySlug {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// EntityReport summarizes an entity for reporting commands.
type EntityReport struct {
	Entity       *Entity `json:"entity"`
	VersionCount int     `json:"version_count"`
}

// EntityReportFor builds an EntityReport.
func (s *Store) EntityReportFor(brainSlug, project, entitySlug string) (*EntityReport, error) {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return nil, err
	}
	b, err := s.loadReadOnly(bs, false)
	if err != nil {
		return nil, err
	}
	_, e, err := lookupProjectEntity(b, project, entitySlug)
	if err != nil {
		return nil, err
	}
	return &EntityReport{Entity: e, VersionCount: len(e.Versions)}, nil
}

func lookupEntity(b *Brain, project, entitySlug string) (*Entity, error) {
	_, e, err := lookupProjectEntity(b, project, entitySlug)
	return e, err
}

func lookupProjectEntity(b *Brain, project, entitySlug string) (*Project, *Entity, error) {
	p, ok := b.Projects[project]
	if !ok {
		return nil, nil, aerr.New(aerr.KindNotFound, "project %q not found", project)
	}
	e, ok := p.Entities[entitySlug]
	if !ok {
		return nil, nil, aerr.New(aerr.KindNotFound, "entity %q not found", entitySlug)
	}
	return p, e, nil
}
