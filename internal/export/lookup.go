package export

import (
	"path/filepath"

	"github.com/dominikletica/aaviondb/internal/brainstore"
	"github.com/dominikletica/aaviondb/internal/filter"
	"github.com/dominikletica/aaviondb/internal/jsonpath"
	"github.com/dominikletica/aaviondb/internal/resolver"
)

// storeLookup adapts *brainstore.Store to resolver.Lookup.
type storeLookup struct {
	store     *brainstore.Store
	brainSlug string
}

func (l *storeLookup) ResolveRef(project, entity, ref string) (*resolver.Record, error) {
	v, err := l.store.GetVersionByRef(l.brainSlug, project, entity, ref)
	if err != nil {
		return nil, err
	}
	return &resolver.Record{Project: project, Entity: entity, Version: v.Version, Commit: v.Commit, Payload: v.Payload}, nil
}

func (l *storeLookup) Query(q resolver.Query) ([]*resolver.Record, error) {
	projects := q.Projects
	if len(projects) == 0 && q.Project != "" {
		projects = []string{q.Project}
	}
	conds, err := filter.ParseWhere(q.Where)
	if err != nil {
		return nil, err
	}
	var out []*resolver.Record
	for _, projSlug := range projects {
		proj, err := l.store.GetProject(l.brainSlug, projSlug)
		if err != nil {
			continue
		}
		for eSlug, ent := range proj.Entities {
			if ent.ActiveVersion == "" {
				continue
			}
			v := ent.Versions[ent.ActiveVersion]
			if v == nil {
				continue
			}
			if !matchesWhere(conds, v.Payload) {
				continue
			}
			out = append(out, &resolver.Record{Project: projSlug, Entity: eSlug, Version: v.Version, Commit: v.Commit, Payload: v.Payload})
		}
	}
	return out, nil
}

func matchesWhere(conds []filter.Condition, payload map[string]any) bool {
	for _, c := range conds {
		val, _ := jsonpath.Get(payload, c.Field)
		ok, err := filter.EvalCondition(c, val)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func (l *storeLookup) RelativePath(fromProject, fromEntity, toProject, toEntity string) (string, error) {
	fromSegs, err := l.store.EntityPathSegments(l.brainSlug, fromProject, fromEntity)
	if err != nil {
		fromSegs = []string{fromEntity}
	}
	toSegs, err := l.store.EntityPathSegments(l.brainSlug, toProject, toEntity)
	if err != nil {
		toSegs = []string{toEntity}
	}
	up := len(fromSegs) - 1
	parts := make([]string, 0, up+len(toSegs))
	for i := 0; i < up; i++ {
		parts = append(parts, "..")
	}
	parts = append(parts, toSegs...)
	return filepath.Join(parts...), nil
}
