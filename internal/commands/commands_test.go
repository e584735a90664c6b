package commands

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dominikletica/aaviondb/internal/bootstrap"
)

func newTestSystem(t *testing.T) *bootstrap.System {
	sys, err := bootstrap.Setup(bootstrap.Options{Root: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sys.Close() })
	return sys
}

func TestRegisterWiresCoreCommands(t *testing.T) {
	sys := newTestSystem(t)
	require.NoError(t, Register(sys))

	resp := sys.Dispatcher.Dispatch("project.create", map[string]any{
		"brain": "default", "slug": "demo", "title": "Demo",
	})
	require.Equal(t, "ok", resp.Status)

	resp = sys.Dispatcher.Dispatch("entity.save", map[string]any{
		"brain": "default", "project": "demo", "entity": "hero",
		"payload": map[string]any{"name": "Aria"},
	})
	require.Equal(t, "ok", resp.Status)

	resp = sys.Dispatcher.Dispatch("entity.show", map[string]any{
		"brain": "default", "project": "demo", "entity": "hero",
	})
	require.Equal(t, "ok", resp.Status)

	resp = sys.Dispatcher.Dispatch("preset.list", nil)
	require.Equal(t, "ok", resp.Status)

	resp = sys.Dispatcher.Dispatch("system.diagnose", nil)
	require.Equal(t, "ok", resp.Status)
}

func TestRegisterRejectsDuplicateCall(t *testing.T) {
	sys := newTestSystem(t)
	require.NoError(t, Register(sys))
	require.Error(t, Register(sys))
}

func TestRegisterWiresEntityVersionCommands(t *testing.T) {
	sys := newTestSystem(t)
	require.NoError(t, Register(sys))

	sys.Dispatcher.Dispatch("project.create", map[string]any{"brain": "default", "slug": "demo", "title": "Demo"})
	sys.Dispatcher.Dispatch("entity.save", map[string]any{
		"brain": "default", "project": "demo", "entity": "hero",
		"payload": map[string]any{"v": int64(1)},
	})
	sys.Dispatcher.Dispatch("entity.save", map[string]any{
		"brain": "default", "project": "demo", "entity": "hero",
		"payload": map[string]any{"v": int64(2)},
	})

	resp := sys.Dispatcher.Dispatch("entity.restore", map[string]any{
		"brain": "default", "project": "demo", "entity": "hero", "ref": "@1",
	})
	require.Equal(t, "ok", resp.Status)

	resp = sys.Dispatcher.Dispatch("entity.version.delete", map[string]any{
		"brain": "default", "project": "demo", "entity": "hero", "ref": "@2",
	})
	require.Equal(t, "ok", resp.Status)

	resp = sys.Dispatcher.Dispatch("entity.versions", map[string]any{
		"brain": "default", "project": "demo", "entity": "hero",
	})
	require.Equal(t, "ok", resp.Status)
}

func TestRegisterWiresPresetCreateAndUpdate(t *testing.T) {
	sys := newTestSystem(t)
	require.NoError(t, Register(sys))

	resp := sys.Dispatcher.Dispatch("preset.create", map[string]any{
		"slug": "custom",
		"payload": map[string]any{
			"templates": map[string]any{"root": "{entities}", "entity": "{record.payload}"},
		},
	})
	require.Equal(t, "ok", resp.Status)

	resp = sys.Dispatcher.Dispatch("preset.get", map[string]any{"slug": "custom"})
	require.Equal(t, "ok", resp.Status)

	resp = sys.Dispatcher.Dispatch("preset.update", map[string]any{
		"slug": "custom",
		"payload": map[string]any{
			"templates": map[string]any{"root": "{entities}", "entity": "updated:{record.payload}"},
		},
	})
	require.Equal(t, "ok", resp.Status)

	// Protected bundled presets redirect updates to an auto-named clone.
	resp = sys.Dispatcher.Dispatch("preset.update", map[string]any{
		"slug": "context-unified",
		"payload": map[string]any{
			"templates": map[string]any{"root": "{entities}", "entity": "{record.payload}"},
		},
	})
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, "context-unified-v2", resp.Data.(map[string]any)["clone"])
}
