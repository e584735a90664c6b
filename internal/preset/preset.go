// Package preset implements the export preset validator and registry
// (spec.md §3.5/§4.10, C10): shape validation, the bundled read-only
// default presets, and protected-clone-on-update CRUD semantics.
//
// Grounded on the teacher's config-layer defaulting idiom
// (internal/config.go's merge-missing-keys-only pattern), applied here
// to a preset document instead of a process config file.
package preset

import (
	"fmt"
	"strings"

	"github.com/dominikletica/aaviondb/internal/aerr"
)

// Meta is a preset's {title, description, usage, tags, read_only,
// immutable} header.
type Meta struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Usage       string   `json:"usage,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	ReadOnly    bool     `json:"read_only,omitempty"`
	Immutable   bool     `json:"immutable,omitempty"`
}

// FilterDef is {type, config} or, as shorthand, a plain string meaning
// {type: "slug_equals", config: {value: str}}.
type FilterDef struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// Destination is settings.destination.
type Destination struct {
	Path         string `json:"path,omitempty"`
	Response     bool   `json:"response"`
	Save         bool   `json:"save"`
	Format       string `json:"format"` // json | jsonl | markdown | text
	NestChildren bool   `json:"nest_children"`
}

// Variable is one entry of settings.variables.
type Variable struct {
	Type        string `json:"type"` // text|int|number|float|bool|array|object|comma_list|json
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// Transform is settings.transform.
type Transform struct {
	Whitelist []string    `json:"whitelist,omitempty"`
	Blacklist []string    `json:"blacklist,omitempty"`
	Post      []FilterDef `json:"post,omitempty"`
}

// ReferencePolicy is settings.policies.references.
type ReferencePolicy struct {
	Include bool `json:"include"`
	Depth   int  `json:"depth"`
}

// CachePolicy is settings.policies.cache.
type CachePolicy struct {
	TTL          int      `json:"ttl"`
	InvalidateOn []string `json:"invalidate_on,omitempty"`
}

// Options is settings.options.
type Options struct {
	MissingPayload string `json:"missing_payload"` // empty | skip
}

// Settings groups destination/variables/transform/policies/options.
type Settings struct {
	Destination Destination         `json:"destination"`
	Variables   map[string]Variable `json:"variables,omitempty"`
	Transform   Transform           `json:"transform"`
	Policies    struct {
		References ReferencePolicy `json:"references"`
		Cache      CachePolicy     `json:"cache"`
	} `json:"policies"`
	Options Options `json:"options"`
}

// IncludeReferences is selection.include_references.
type IncludeReferences struct {
	Enabled bool     `json:"enabled"`
	Depth   int      `json:"depth"`
	Modes   []string `json:"modes,omitempty"`
}

// Selection is the preset's selection block.
type Selection struct {
	Projects          []string    `json:"projects"`
	Entities          []FilterDef `json:"entities,omitempty"`
	PayloadFilters    []FilterDef `json:"payload_filters,omitempty"`
	IncludeReferences IncludeReferences `json:"include_references,omitempty"`
}

// Templates is the preset's rendering templates.
type Templates struct {
	Root    string `json:"root"`
	Entity  string `json:"entity"`
	Project string `json:"project,omitempty"`
}

// Preset is the full definition (spec.md §4.10).
type Preset struct {
	Slug      string    `json:"-"`
	Meta      Meta      `json:"meta"`
	Settings  Settings  `json:"settings"`
	Selection Selection `json:"selection"`
	Templates Templates `json:"templates"`
}

var validFormats = map[string]bool{"json": true, "jsonl": true, "markdown": true, "text": true}
var validVariableTypes = map[string]bool{
	"text": true, "int": true, "number": true, "float": true, "bool": true,
	"array": true, "object": true, "comma_list": true, "json": true,
}
var validMissingPayload = map[string]bool{"empty": true, "skip": true}

// Validate checks a preset's shape per spec.md §4.10, filling in
// documented defaults (destination.format, selection.projects,
// options.missing_payload) where absent.
func Validate(p *Preset) error {
	if p.Templates.Root == "" {
		return aerr.New(aerr.KindInvalidPreset, "templates.root must be non-empty")
	}
	if p.Templates.Entity == "" {
		return aerr.New(aerr.KindInvalidPreset, "templates.entity must be non-empty")
	}
	if p.Settings.Destination.Format == "" {
		p.Settings.Destination.Format = "json"
	}
	if !validFormats[p.Settings.Destination.Format] {
		return aerr.New(aerr.KindInvalidPreset, "unrecognized destination.format %q", p.Settings.Destination.Format)
	}
	for name, v := range p.Settings.Variables {
		if !validVariableTypes[v.Type] {
			return aerr.New(aerr.KindInvalidPreset, "variable %q has unrecognized type %q", name, v.Type)
		}
	}
	if p.Settings.Options.MissingPayload == "" {
		p.Settings.Options.MissingPayload = "empty"
	}
	if !validMissingPayload[p.Settings.Options.MissingPayload] {
		return aerr.New(aerr.KindInvalidPreset, "unrecognized options.missing_payload %q", p.Settings.Options.MissingPayload)
	}
	if len(p.Selection.Projects) == 0 {
		p.Selection.Projects = []string{"${project}"}
	}
	for i, fd := range p.Settings.Transform.Post {
		if fd.Type == "" {
			return aerr.New(aerr.KindInvalidPreset, "transform.post[%d] missing type", i)
		}
	}
	return nil
}

// NormalizeFilterDef expands the plain-string shorthand
// ({type: "slug_equals", config: {value: str}}).
func NormalizeFilterDef(raw any) (FilterDef, error) {
	switch v := raw.(type) {
	case string:
		return FilterDef{Type: "slug_equals", Config: map[string]any{"value": v}}, nil
	case map[string]any:
		fd := FilterDef{Config: map[string]any{}}
		if t, ok := v["type"].(string); ok {
			fd.Type = t
		}
		if cfg, ok := v["config"].(map[string]any); ok {
			fd.Config = cfg
		}
		if fd.Type == "" {
			return FilterDef{}, aerr.New(aerr.KindInvalidPreset, "filter definition missing type")
		}
		return fd, nil
	default:
		return FilterDef{}, aerr.New(aerr.KindInvalidPreset, "filter definition must be a string or object")
	}
}

// Registry owns the system brain's preset map, via load/save
// callbacks the bootstrap wires to the brain store's config section
// (system.export.presets).
type Registry struct {
	load func() (map[string]*Preset, error)
	save func(map[string]*Preset) error
}

// NewRegistry constructs a Registry backed by the given load/save hooks.
func NewRegistry(load func() (map[string]*Preset, error), save func(map[string]*Preset) error) *Registry {
	return &Registry{load: load, save: save}
}

// Get returns a single preset by slug.
func (r *Registry) Get(slug string) (*Preset, error) {
	all, err := r.load()
	if err != nil {
		return nil, err
	}
	p, ok := all[slug]
	if !ok {
		return nil, aerr.New(aerr.KindNotFound, "preset %q not found", slug)
	}
	return p, nil
}

// List returns every registered preset.
func (r *Registry) List() (map[string]*Preset, error) {
	return r.load()
}

// Create registers a brand new preset.
func (r *Registry) Create(slug string, p *Preset) error {
	if err := Validate(p); err != nil {
		return err
	}
	all, err := r.load()
	if err != nil {
		return err
	}
	if _, exists := all[slug]; exists {
		return aerr.New(aerr.KindInvalidParameter, "preset %q already exists", slug)
	}
	p.Slug = slug
	all[slug] = p
	return r.save(all)
}

// Update writes changes to a preset. If the existing preset is
// protected (read_only or immutable), the write is redirected to an
// auto-named clone "<slug>-v2", "<slug>-v3", … (spec.md §3.5) and the
// clone's slug is returned.
func (r *Registry) Update(slug string, mutate func(*Preset)) (string, error) {
	all, err := r.load()
	if err != nil {
		return "", err
	}
	existing, ok := all[slug]
	if !ok {
		return "", aerr.New(aerr.KindNotFound, "preset %q not found", slug)
	}
	if existing.Meta.ReadOnly || existing.Meta.Immutable {
		clone := cloneOf(existing)
		mutate(clone)
		if err := Validate(clone); err != nil {
			return "", err
		}
		cloneSlug := nextCloneSlug(all, slug)
		clone.Slug = cloneSlug
		clone.Meta.ReadOnly = false
		clone.Meta.Immutable = false
		all[cloneSlug] = clone
		if err := r.save(all); err != nil {
			return "", err
		}
		return cloneSlug, nil
	}
	mutate(existing)
	if err := Validate(existing); err != nil {
		return "", err
	}
	return slug, r.save(all)
}

// Delete removes a preset. Only "immutable" presets refuse deletion —
// "read_only"-but-not-immutable presets may still be deleted (spec.md's
// Open Question 3 decision: read_only blocks direct update, only
// immutable blocks delete outright).
func (r *Registry) Delete(slug string) error {
	all, err := r.load()
	if err != nil {
		return err
	}
	existing, ok := all[slug]
	if !ok {
		return aerr.New(aerr.KindNotFound, "preset %q not found", slug)
	}
	if existing.Meta.Immutable {
		return aerr.New(aerr.KindInvalidParameter, "preset %q is immutable and cannot be deleted", slug)
	}
	delete(all, slug)
	return r.save(all)
}

// SeedBundled registers every bundled default preset that is currently
// missing (spec.md §3.5: "seeded on first bootstrap and re-seeded if
// missing").
func (r *Registry) SeedBundled() error {
	all, err := r.load()
	if err != nil {
		return err
	}
	changed := false
	for slug, p := range BundledPresets() {
		if _, exists := all[slug]; !exists {
			p.Slug = slug
			all[slug] = p
			changed = true
		}
	}
	if changed {
		return r.save(all)
	}
	return nil
}

func cloneOf(p *Preset) *Preset {
	cp := *p
	return &cp
}

func nextCloneSlug(all map[string]*Preset, base string) string {
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-v%d", strings.TrimSuffix(base, "-v1"), n)
		if _, exists := all[candidate]; !exists {
			return candidate
		}
	}
}
