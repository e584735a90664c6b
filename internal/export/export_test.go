package export

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dominikletica/aaviondb/internal/auth"
	"github.com/dominikletica/aaviondb/internal/brainstore"
	"github.com/dominikletica/aaviondb/internal/eventbus"
	"github.com/dominikletica/aaviondb/internal/pathlocator"
	"github.com/dominikletica/aaviondb/internal/preset"
)

func newTestEngine(t *testing.T) (*Engine, *brainstore.Store) {
	loc := pathlocator.New(t.TempDir())
	require.NoError(t, loc.EnsureDefaultDirectories())
	store := brainstore.New(loc, eventbus.New(nil))

	presetStore := map[string]*preset.Preset{}
	registry := preset.NewRegistry(
		func() (map[string]*preset.Preset, error) { return presetStore, nil },
		func(all map[string]*preset.Preset) error { presetStore = all; return nil },
	)
	require.NoError(t, registry.SeedBundled())

	return New(store, registry), store
}

func allBinding() auth.Binding {
	return auth.Binding{Scope: auth.Scope{Mode: auth.ScopeALL, Projects: []string{"*"}}}
}

func TestExportUnifiedPreset(t *testing.T) {
	engine, store := newTestEngine(t)
	_, err := store.SaveEntity(allBinding(), "", "demo", "hero", map[string]any{"name": "Aria"}, nil, brainstore.SaveEntityOptions{})
	require.NoError(t, err)

	result, err := engine.Run(Request{ProjectSpec: "demo", Preset: "context-unified"})
	require.NoError(t, err)
	require.Len(t, result.Entities, 1)
	require.Equal(t, "Aria", result.Entities[0].Payload["name"])
}

func TestExportWildcardForbidsSelectors(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.Run(Request{ProjectSpec: "*", Selectors: []string{"hero@1"}})
	require.Error(t, err)
}

func TestExportRendersEntityTemplate(t *testing.T) {
	engine, store := newTestEngine(t)
	_, err := store.SaveEntity(allBinding(), "", "demo", "hero", map[string]any{"name": "Aria"}, nil, brainstore.SaveEntityOptions{})
	require.NoError(t, err)

	result, err := engine.Run(Request{ProjectSpec: "demo", Preset: "context-markdown-slim"})
	require.NoError(t, err)
	require.Equal(t, "### hero\n{\"name\":\"Aria\"}\n", result.Content)
}

func TestExportRendersDistinctTemplatesPerPreset(t *testing.T) {
	engine, store := newTestEngine(t)
	_, err := store.SaveEntity(allBinding(), "", "demo", "hero", map[string]any{"name": "Aria"}, nil, brainstore.SaveEntityOptions{})
	require.NoError(t, err)

	slim, err := engine.Run(Request{ProjectSpec: "demo", Preset: "context-markdown-slim"})
	require.NoError(t, err)
	plain, err := engine.Run(Request{ProjectSpec: "demo", Preset: "context-text-plain"})
	require.NoError(t, err)

	require.NotEqual(t, slim.Content, plain.Content)
	require.Equal(t, "hero: {\"name\":\"Aria\"}", plain.Content)
}

func TestExportUnifiedPresetGroupsPayloadsByProject(t *testing.T) {
	engine, store := newTestEngine(t)
	_, err := store.SaveEntity(allBinding(), "", "demo", "hero", map[string]any{"name": "Aria"}, nil, brainstore.SaveEntityOptions{})
	require.NoError(t, err)

	result, err := engine.Run(Request{ProjectSpec: "demo", Preset: "context-unified"})
	require.NoError(t, err)
	require.JSONEq(t, `{"demo":[{"name":"Aria"}]}`, result.Content)
}

func TestExportSaveWritesFile(t *testing.T) {
	engine, store := newTestEngine(t)
	_, err := store.SaveEntity(allBinding(), "", "demo", "hero", map[string]any{"name": "Aria"}, nil, brainstore.SaveEntityOptions{})
	require.NoError(t, err)

	save := true
	result, err := engine.Run(Request{ProjectSpec: "demo", Preset: "context-jsonl", Save: &save})
	require.NoError(t, err)
	require.NotEmpty(t, result.SavedPath)
}
