// Package commands registers the built-in command surface against a
// bootstrapped system (spec.md §4.15 step 5: "discover modules; register
// commands"). Every handler is a thin adapter from dispatch.Handler's
// map[string]any params onto the underlying collaborator's typed API —
// the collaborators themselves hold all the real logic.
package commands

import (
	"encoding/json"

	"github.com/dominikletica/aaviondb/internal/auth"
	"github.com/dominikletica/aaviondb/internal/bootstrap"
	"github.com/dominikletica/aaviondb/internal/brainstore"
	"github.com/dominikletica/aaviondb/internal/dispatch"
	"github.com/dominikletica/aaviondb/internal/export"
	"github.com/dominikletica/aaviondb/internal/preset"
	"github.com/dominikletica/aaviondb/internal/scheduler"
)

// Register wires the standard command set onto sys.Dispatcher.
func Register(sys *bootstrap.System) error {
	reg := func(name string, h func(map[string]any) (any, error)) error {
		return sys.Dispatcher.Register(name, h, dispatch.Meta{})
	}

	store := sys.Store
	authMgr := sys.Auth
	exportEngine := export.New(store, sys.Presets)
	sched := scheduler.New(store, sys.Dispatcher, scheduler.Options{})

	handlers := map[string]func(map[string]any) (any, error){
		"brain.list": func(map[string]any) (any, error) { return store.ListBrains() },
		"brain.create": func(p map[string]any) (any, error) {
			return store.CreateBrain(str(p, "slug"), boolArg(p, "activate"))
		},
		"brain.switch": func(p map[string]any) (any, error) {
			return nil, store.SetActiveBrain(str(p, "slug"))
		},
		"brain.delete": func(p map[string]any) (any, error) {
			return nil, store.DeleteBrain(str(p, "slug"))
		},
		"brain.report": func(p map[string]any) (any, error) {
			return store.BrainReportFor(brainArg(p))
		},

		"project.list": func(p map[string]any) (any, error) {
			return store.ListProjects(brainArg(p))
		},
		"project.create": func(p map[string]any) (any, error) {
			return store.CreateProject(brainArg(p), str(p, "slug"), str(p, "title"), str(p, "description"))
		},
		"project.archive": func(p map[string]any) (any, error) {
			return nil, store.ArchiveProject(brainArg(p), str(p, "slug"))
		},
		"project.delete": func(p map[string]any) (any, error) {
			return nil, store.DeleteProject(brainArg(p), str(p, "slug"), boolArg(p, "purge_commits"))
		},

		"entity.save": func(p map[string]any) (any, error) {
			binding, err := bindingFrom(p)
			if err != nil {
				return nil, err
			}
			payload, _ := p["payload"].(map[string]any)
			meta, _ := p["meta"].(map[string]any)
			return store.SaveEntity(binding, brainArg(p), str(p, "project"), str(p, "entity"), payload, meta, brainstore.SaveEntityOptions{})
		},
		"entity.show": func(p map[string]any) (any, error) {
			return store.GetEntity(brainArg(p), str(p, "project"), str(p, "entity"))
		},
		"entity.list": func(p map[string]any) (any, error) {
			return store.ListEntities(brainArg(p), str(p, "project"), nil)
		},
		"entity.versions": func(p map[string]any) (any, error) {
			return store.ListEntityVersions(brainArg(p), str(p, "project"), str(p, "entity"))
		},
		"entity.delete": func(p map[string]any) (any, error) {
			return nil, store.DeleteEntity(brainArg(p), str(p, "project"), str(p, "entity"), boolArg(p, "purge_commits"), brainstore.DeleteEntityOptions{})
		},
		"entity.version.delete": func(p map[string]any) (any, error) {
			return nil, store.DeleteEntityVersion(brainArg(p), str(p, "project"), str(p, "entity"), str(p, "ref"))
		},
		"entity.restore": func(p map[string]any) (any, error) {
			return nil, store.RestoreEntityVersion(brainArg(p), str(p, "project"), str(p, "entity"), str(p, "ref"))
		},
		"entity.archive": func(p map[string]any) (any, error) {
			return nil, store.ArchiveEntity(brainArg(p), str(p, "project"), str(p, "entity"))
		},
		"entity.move": func(p map[string]any) (any, error) {
			return store.MoveEntity(brainArg(p), str(p, "project"), str(p, "entity"), strSliceArg(p, "target_path"))
		},

		"auth.grant": func(p map[string]any) (any, error) {
			scope := auth.Scope{Mode: auth.ScopeMode(str(p, "scope")), Projects: strSliceArg(p, "projects")}
			return authMgr.Grant(auth.GrantOptions{Scope: scope, Label: str(p, "label"), Actor: str(p, "actor")})
		},
		"auth.list": func(p map[string]any) (any, error) {
			return authMgr.List(boolArg(p, "include_revoked")), nil
		},
		"auth.revoke": func(p map[string]any) (any, error) {
			return authMgr.Revoke(str(p, "identifier"))
		},
		"auth.reset": func(map[string]any) (any, error) {
			return authMgr.Reset()
		},
		"api.serve": func(p map[string]any) (any, error) {
			return authMgr.SetApiEnabled(true, str(p, "actor"), str(p, "reason"))
		},
		"api.stop": func(p map[string]any) (any, error) {
			return authMgr.SetApiEnabled(false, str(p, "actor"), str(p, "reason"))
		},

		"preset.list": func(map[string]any) (any, error) { return sys.Presets.List() },
		"preset.get": func(p map[string]any) (any, error) { return sys.Presets.Get(str(p, "slug")) },
		"preset.create": func(p map[string]any) (any, error) {
			doc, err := presetFromPayload(p)
			if err != nil {
				return nil, err
			}
			return nil, sys.Presets.Create(str(p, "slug"), doc)
		},
		"preset.update": func(p map[string]any) (any, error) {
			doc, err := presetFromPayload(p)
			if err != nil {
				return nil, err
			}
			clone, err := sys.Presets.Update(str(p, "slug"), func(existing *preset.Preset) {
				slug := existing.Slug
				*existing = *doc
				existing.Slug = slug
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"clone": clone}, nil
		},
		"preset.delete": func(p map[string]any) (any, error) {
			return nil, sys.Presets.Delete(str(p, "slug"))
		},

		"export.run": func(p map[string]any) (any, error) {
			return exportEngine.Run(exportRequestFrom(p))
		},

		"scheduler.run": func(map[string]any) (any, error) { return sched.RunOnce() },
		"scheduler.list": func(map[string]any) (any, error) { return store.ListSchedulerTasks() },
		"scheduler.set": func(p map[string]any) (any, error) {
			return store.UpsertSchedulerTask(str(p, "slug"), str(p, "command"))
		},
		"scheduler.delete": func(p map[string]any) (any, error) {
			return nil, store.DeleteSchedulerTask(str(p, "slug"))
		},

		"system.diagnose": func(map[string]any) (any, error) { return sys.Diagnose(), nil },
	}

	for name, h := range handlers {
		if err := reg(name, h); err != nil {
			return err
		}
	}
	return nil
}

// presetFromPayload decodes the "payload" parameter (the full preset
// document, per spec.md §8 scenario S5's --payload flag) into a
// preset.Preset via the same json round-trip idiom bootstrap uses
// between typed collaborators and generic storage blocks.
func presetFromPayload(p map[string]any) (*preset.Preset, error) {
	payload, _ := p["payload"].(map[string]any)
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	doc := &preset.Preset{}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func bindingFrom(p map[string]any) (auth.Binding, error) {
	if raw, ok := p["__binding"].(auth.Binding); ok {
		return raw, nil
	}
	return auth.Binding{Scope: auth.Scope{Mode: auth.ScopeALL, Projects: []string{"*"}}}, nil
}

func exportRequestFrom(p map[string]any) export.Request {
	req := export.Request{
		BrainSlug:   brainArg(p),
		ProjectSpec: str(p, "projects"),
		Preset:      str(p, "preset"),
		Selectors:   strSliceArg(p, "selectors"),
		Format:      str(p, "format"),
		Path:        str(p, "path"),
		Params:      p,
	}
	if v, ok := p["save"].(bool); ok {
		req.Save = &v
	}
	if v, ok := p["response"].(bool); ok {
		req.Response = &v
	}
	return req
}

func brainArg(p map[string]any) string { return str(p, "brain") }

func str(p map[string]any, key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func boolArg(p map[string]any, key string) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return false
}

func strSliceArg(p map[string]any, key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

