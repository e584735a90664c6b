// Package export implements the export engine (spec.md §4.13, C13):
// preset-driven selection, transform, and rendering of brain content
// to json/jsonl/markdown/text.
//
// Grounded on internal/brainstore for storage access, internal/preset
// for preset shape/registry, internal/filter for selection/transform
// predicates, and internal/resolver for shortcode expansion.
package export

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/dominikletica/aaviondb/internal/aerr"
	"github.com/dominikletica/aaviondb/internal/brainstore"
	"github.com/dominikletica/aaviondb/internal/filter"
	"github.com/dominikletica/aaviondb/internal/jsonpath"
	"github.com/dominikletica/aaviondb/internal/pathlocator"
	"github.com/dominikletica/aaviondb/internal/preset"
	"github.com/dominikletica/aaviondb/internal/resolver"
)

// Request is the export engine's input (spec.md §4.13).
type Request struct {
	BrainSlug    string
	ProjectSpec  string // "*" | "a,b,c" | "" (use preset selection)
	Preset       string
	Selectors    []string // entity@N / entity#H style, mutually exclusive with wildcard/preset/CSV
	Format       string
	Path         string
	Save         *bool
	Response     *bool
	NestChildren *bool
	Params       map[string]any
	Description  string
	Usage        string
}

// Result is the materialized export output (spec.md §4.13 step 7/10).
type Result struct {
	Content    string         `json:"content,omitempty"`
	Projects   []string       `json:"projects"`
	Entities   []EntityRecord `json:"entities"`
	Index      map[string][]string `json:"index"`
	Stats      Stats          `json:"stats"`
	Meta       map[string]any `json:"meta"`
	Guide      string         `json:"guide,omitempty"`
	Policies   map[string]any `json:"policies"`
	Warnings   []string       `json:"warnings"`
	SavedPath  string         `json:"saved_path,omitempty"`
}

// EntityRecord is one flattened entity entry in Result.Entities.
type EntityRecord struct {
	Project string         `json:"project"`
	Entity  string         `json:"entity"`
	Version string         `json:"version"`
	Payload map[string]any `json:"payload"`
	Depth   int            `json:"-"` // hierarchy depth, drives ${entity.heading_prefix}/${entity.indent}
}

// Stats summarizes counts over the exported set.
type Stats struct {
	Projects int `json:"projects"`
	Entities int `json:"entities"`
	Versions int `json:"versions"`
}

// Engine ties the brain store and preset registry together to run
// exports.
type Engine struct {
	store   *brainstore.Store
	presets *preset.Registry
	now     func() time.Time
}

// New constructs an Engine.
func New(store *brainstore.Store, presets *preset.Registry) *Engine {
	return &Engine{store: store, presets: presets, now: time.Now}
}

// Run executes a full export per spec.md §4.13's 10 steps.
func (en *Engine) Run(req Request) (*Result, error) {
	if err := validateArgCombination(req); err != nil {
		return nil, err
	}

	presetSlug := req.Preset
	if presetSlug == "" {
		presetSlug = "context-unified"
	}
	p, err := en.presets.Get(presetSlug)
	if err != nil {
		return nil, err
	}

	dest := p.Settings.Destination
	if req.Format != "" {
		dest.Format = req.Format
	}
	if req.Path != "" {
		dest.Path = req.Path
	}
	if req.Save != nil {
		dest.Save = *req.Save
	}
	if req.Response != nil {
		dest.Response = *req.Response
	}
	if req.NestChildren != nil {
		dest.NestChildren = *req.NestChildren
	}

	params, err := resolveParams(p, req.Params)
	if err != nil {
		return nil, err
	}

	projectSlugs, err := en.resolveProjectSet(req, p, params)
	if err != nil {
		return nil, err
	}

	var warnings []string
	var records []EntityRecord
	entityFilterDefs, err := normalizeDefs(p.Selection.Entities)
	if err != nil {
		return nil, err
	}
	payloadFilterDefs, err := normalizeDefs(p.Selection.PayloadFilters)
	if err != nil {
		return nil, err
	}

	lu := &storeLookup{store: en.store, brainSlug: req.BrainSlug}

	for _, projSlug := range projectSlugs {
		proj, err := en.store.GetProject(req.BrainSlug, projSlug)
		if err != nil {
			warnings = append(warnings, "project "+projSlug+" not found, skipped")
			continue
		}
		entitySlugs := sortedEntityKeys(proj)
		for _, eSlug := range entitySlugs {
			ent := proj.Entities[eSlug]
			pathSegs, _ := en.store.EntityPathSegments(req.BrainSlug, projSlug, eSlug)
			subject := filter.Subject{Project: projSlug, Entity: eSlug, Status: ent.Status, Fieldset: ent.Fieldset, PathSegs: pathSegs}
			fctx := filter.Context{Project: projSlug, Entity: eSlug, Params: params}
			ok, err := filter.MatchAll(entityFilterDefs, subject, fctx)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}

			versionKeys := selectorsForEntity(req.Selectors, eSlug)
			if len(versionKeys) == 0 {
				versionKeys = []string{""}
			}
			for _, ref := range versionKeys {
				vrec, err := en.store.GetVersionByRef(req.BrainSlug, projSlug, eSlug, ref)
				if err != nil {
					if p.Settings.Options.MissingPayload == "skip" {
						warnings = append(warnings, "missing payload for "+projSlug+"/"+eSlug+", skipped")
						continue
					}
					warnings = append(warnings, "missing payload for "+projSlug+"/"+eSlug+", emitted empty")
					records = append(records, EntityRecord{Project: projSlug, Entity: eSlug, Payload: map[string]any{}, Depth: len(pathSegs)})
					continue
				}
				payloadSubject := subject
				payloadSubject.Payload = vrec.Payload
				ok, err := filter.MatchAll(payloadFilterDefs, payloadSubject, fctx)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
				transformed := applyTransform(vrec.Payload, p.Settings.Transform)
				expanded, werr := expandResolverShortcodes(transformed, projSlug, eSlug, lu, params)
				warnings = append(warnings, werr...)
				records = append(records, EntityRecord{Project: projSlug, Entity: eSlug, Version: vrec.Version, Payload: expanded, Depth: len(pathSegs)})
			}
		}
	}

	result := materialize(projectSlugs, records, warnings, req, p)
	content, rerr := render(result, p, dest)
	if rerr != nil {
		return nil, rerr
	}
	if dest.Response {
		result.Content = content
	}
	if dest.Save {
		savedPath, err := en.save(req.BrainSlug, dest, content)
		if err != nil {
			return nil, err
		}
		result.SavedPath = savedPath
	}
	return result, nil
}

func validateArgCombination(req Request) error {
	hasWildcard := req.ProjectSpec == "*"
	hasPreset := req.Preset != ""
	hasSelectors := len(req.Selectors) > 0
	multiProject := strings.Contains(req.ProjectSpec, ",")

	if hasWildcard && hasSelectors {
		return aerr.New(aerr.KindInvalidParameter, "wildcard project selection forbids entity selectors")
	}
	if hasPreset && hasSelectors {
		return aerr.New(aerr.KindInvalidParameter, "preset forbids entity selectors")
	}
	if multiProject && hasSelectors {
		return aerr.New(aerr.KindInvalidParameter, "multiple CSV project slugs forbid entity selectors")
	}
	return nil
}

func resolveParams(p *preset.Preset, provided map[string]any) (map[string]any, error) {
	out := map[string]any{}
	for k, v := range provided {
		out[k] = v
	}
	for name, v := range p.Settings.Variables {
		if _, ok := out[name]; !ok {
			if v.Required {
				return nil, aerr.New(aerr.KindInvalidParameter, "missing required variable %q", name)
			}
			if v.Default != nil {
				out[name] = v.Default
			}
		}
	}
	return out, nil
}

func (en *Engine) resolveProjectSet(req Request, p *preset.Preset, params map[string]any) ([]string, error) {
	if req.ProjectSpec == "*" {
		all, err := en.store.ListProjects(req.BrainSlug)
		if err != nil {
			return nil, err
		}
		var slugs []string
		for _, proj := range all {
			slugs = append(slugs, proj.Slug)
		}
		sort.Strings(slugs)
		return slugs, nil
	}
	if req.ProjectSpec != "" {
		var slugs []string
		for _, s := range strings.Split(req.ProjectSpec, ",") {
			slugs = append(slugs, pathlocator.SanitizeSlug(strings.TrimSpace(s)))
		}
		return slugs, nil
	}
	var slugs []string
	for _, raw := range p.Selection.Projects {
		expanded := filter.Expand(raw, filter.Context{Params: params})
		if expanded == "${project}" || expanded == "" {
			continue
		}
		slugs = append(slugs, expanded)
	}
	if len(slugs) == 0 {
		all, err := en.store.ListProjects(req.BrainSlug)
		if err != nil {
			return nil, err
		}
		for _, proj := range all {
			slugs = append(slugs, proj.Slug)
		}
		sort.Strings(slugs)
	}
	return slugs, nil
}

func normalizeDefs(raw []preset.FilterDef) ([]filter.Def, error) {
	out := make([]filter.Def, len(raw))
	for i, fd := range raw {
		out[i] = filter.Def{Type: fd.Type, Config: fd.Config}
	}
	return out, nil
}

func sortedEntityKeys(p *brainstore.Project) []string {
	keys := make([]string, 0, len(p.Entities))
	for k := range p.Entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// selectorsForEntity filters the request's "entity@N" / "entity#H"
// selector list down to the refs addressing entitySlug.
func selectorsForEntity(selectors []string, entitySlug string) []string {
	var refs []string
	for _, sel := range selectors {
		name := sel
		ref := ""
		if idx := strings.IndexAny(sel, "@#"); idx >= 0 {
			name = sel[:idx]
			ref = sel[idx:]
		}
		if name == entitySlug {
			refs = append(refs, ref)
		}
	}
	return refs
}

func applyTransform(payload map[string]any, t preset.Transform) map[string]any {
	result := payload
	if len(t.Whitelist) > 0 {
		kept := map[string]any{}
		for _, path := range t.Whitelist {
			v, ok := jsonpath.Get(result, path)
			if !ok {
				continue
			}
			updated, err := jsonpath.Set(kept, path, v)
			if m, ok := updated.(map[string]any); ok && err == nil {
				kept = m
			}
		}
		result = kept
	}
	for _, path := range t.Blacklist {
		if updated, err := jsonpath.Delete(result, path); err == nil {
			if m, ok := updated.(map[string]any); ok {
				result = m
			}
		}
	}
	return result
}

func expandResolverShortcodes(payload map[string]any, project, entity string, lu resolver.Lookup, params map[string]any) (map[string]any, []string) {
	var warnings []string
	out := map[string]any{}
	for k, v := range payload {
		s, ok := v.(string)
		if ok && (strings.Contains(s, "[ref ") || strings.Contains(s, "[query ")) {
			expanded, err := resolver.Expand(s, project, entity, lu, params, nil)
			if err != nil {
				warnings = append(warnings, "resolver error in "+project+"/"+entity+"."+k+": "+err.Error())
				out[k] = v
				continue
			}
			out[k] = expanded
			continue
		}
		out[k] = v
	}
	return out, warnings
}

func materialize(projects []string, records []EntityRecord, warnings []string, req Request, p *preset.Preset) *Result {
	index := map[string][]string{}
	for _, r := range records {
		index[r.Project] = append(index[r.Project], r.Entity)
	}
	versions := 0
	for range records {
		versions++
	}
	return &Result{
		Projects: projects,
		Entities: records,
		Index:    index,
		Stats:    Stats{Projects: len(projects), Entities: len(records), Versions: versions},
		Meta: map[string]any{
			"preset":      p.Slug,
			"description": req.Description,
			"usage":       req.Usage,
		},
		Guide:    p.Meta.Usage,
		Policies: map[string]any{"references": p.Selection.IncludeReferences},
		Warnings: warnings,
	}
}

// renderEntityBlock substitutes one entity's placeholders into the
// preset's templates.entity string (spec.md §4.13 step 8): the
// rendered payload, identity fields, and the hierarchy-depth-derived
// ${entity.heading_prefix}/${entity.indent} markers used by the
// markdown presets.
func renderEntityBlock(tmpl string, r EntityRecord) (string, error) {
	payloadJSON, err := json.Marshal(r.Payload)
	if err != nil {
		return "", aerr.Wrap(aerr.KindEncoding, err, "render entity payload for %s/%s", r.Project, r.Entity)
	}
	replacer := strings.NewReplacer(
		"{record.payload}", string(payloadJSON),
		"{record.version}", r.Version,
		"{entity}", r.Entity,
		"{project}", r.Project,
		"${project}", r.Project,
		"${entity.indent}", strings.Repeat("  ", r.Depth),
		"${entity.heading_prefix}", strings.Repeat("#", r.Depth+2)+" ",
	)
	return replacer.Replace(tmpl), nil
}

// projectGroup accumulates one project's rendered entity blocks, in
// result.Entities order, for templates.project substitution.
type projectGroup struct {
	slug   string
	blocks []string
}

// render drives the preset's templates over the materialized result
// (spec.md §4.13 step 8): each entity renders through templates.entity,
// projects optionally group through templates.project, and the whole
// document renders through templates.root. JSON/JSONL output is
// re-validated after substitution since the templates are opaque
// strings the preset author controls.
func render(result *Result, p *preset.Preset, dest preset.Destination) (string, error) {
	groups := map[string]*projectGroup{}
	var groupOrder []*projectGroup
	for _, slug := range result.Projects {
		g := &projectGroup{slug: slug}
		groups[slug] = g
		groupOrder = append(groupOrder, g)
	}

	var flatBlocks []string
	for _, r := range result.Entities {
		block, err := renderEntityBlock(p.Templates.Entity, r)
		if err != nil {
			return "", err
		}
		flatBlocks = append(flatBlocks, block)
		g, ok := groups[r.Project]
		if !ok {
			g = &projectGroup{slug: r.Project}
			groups[r.Project] = g
			groupOrder = append(groupOrder, g)
		}
		g.blocks = append(g.blocks, block)
	}

	entityJoiner := ""
	if dest.Format == "jsonl" {
		entityJoiner = "\n"
	}

	var entitiesRendered string
	if p.Templates.Project != "" {
		var projectBlocks []string
		for _, g := range groupOrder {
			if len(g.blocks) == 0 {
				continue
			}
			projBlock := strings.NewReplacer(
				"{entities}", strings.Join(g.blocks, entityJoiner),
				"${project}", g.slug,
				"{project}", g.slug,
			).Replace(p.Templates.Project)
			projectBlocks = append(projectBlocks, projBlock)
		}
		entitiesRendered = strings.Join(projectBlocks, "\n\n")
	} else {
		entitiesRendered = strings.Join(flatBlocks, entityJoiner)
	}

	rootProject := ""
	if len(result.Projects) == 1 {
		rootProject = result.Projects[0]
	}
	rootReplacements := []string{
		"{entities}", entitiesRendered,
		"${project}", rootProject,
		"{project}", rootProject,
	}
	if strings.Contains(p.Templates.Root, "{projects}") {
		projectsJSON, err := renderProjectsObject(result, groupOrder)
		if err != nil {
			return "", err
		}
		rootReplacements = append(rootReplacements, "{projects}", projectsJSON)
	}
	content := strings.NewReplacer(rootReplacements...).Replace(p.Templates.Root)

	switch dest.Format {
	case "json":
		var v any
		if err := json.Unmarshal([]byte(content), &v); err != nil {
			return "", aerr.Wrap(aerr.KindEncoding, err, "rendered export failed JSON validation")
		}
	case "jsonl":
		for _, line := range strings.Split(content, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			var v any
			if err := json.Unmarshal([]byte(line), &v); err != nil {
				return "", aerr.Wrap(aerr.KindEncoding, err, "rendered export failed JSONL validation")
			}
		}
	}
	return content, nil
}

// renderProjectsObject builds the {"<project>": [payload, …]} JSON
// object backing the {projects} placeholder (context-unified's root
// template).
func renderProjectsObject(result *Result, groupOrder []*projectGroup) (string, error) {
	grouped := map[string]json.RawMessage{}
	for _, g := range groupOrder {
		payloads := make([]json.RawMessage, 0, len(g.blocks))
		for _, r := range result.Entities {
			if r.Project != g.slug {
				continue
			}
			b, err := json.Marshal(r.Payload)
			if err != nil {
				return "", aerr.Wrap(aerr.KindEncoding, err, "render project payload for %s", g.slug)
			}
			payloads = append(payloads, b)
		}
		arr, err := json.Marshal(payloads)
		if err != nil {
			return "", aerr.Wrap(aerr.KindEncoding, err, "render project array for %s", g.slug)
		}
		grouped[g.slug] = arr
	}
	projectsJSON, err := json.Marshal(grouped)
	if err != nil {
		return "", aerr.Wrap(aerr.KindEncoding, err, "render projects map")
	}
	return string(projectsJSON), nil
}

func (en *Engine) save(brainSlug string, dest preset.Destination, content string) (string, error) {
	return en.store.SaveExportFile(brainSlug, dest.Path, content)
}
