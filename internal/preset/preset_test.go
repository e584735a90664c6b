package preset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newRegistry() (*Registry, map[string]*Preset) {
	store := map[string]*Preset{}
	return NewRegistry(
		func() (map[string]*Preset, error) { return store, nil },
		func(all map[string]*Preset) error { store = all; return nil },
	), store
}

func TestValidateFillsDefaults(t *testing.T) {
	p := &Preset{Templates: Templates{Root: "{entities}", Entity: "{record.payload}"}}
	require.NoError(t, Validate(p))
	require.Equal(t, "json", p.Settings.Destination.Format)
	require.Equal(t, "empty", p.Settings.Options.MissingPayload)
	require.Equal(t, []string{"${project}"}, p.Selection.Projects)
}

func TestValidateRejectsMissingTemplates(t *testing.T) {
	require.Error(t, Validate(&Preset{}))
}

func TestNormalizeFilterDefShorthand(t *testing.T) {
	fd, err := NormalizeFilterDef("hero")
	require.NoError(t, err)
	require.Equal(t, "slug_equals", fd.Type)
	require.Equal(t, "hero", fd.Config["value"])
}

func TestCreateAndGet(t *testing.T) {
	r, _ := newRegistry()
	p := &Preset{Templates: Templates{Root: "{entities}", Entity: "{record.payload}"}}
	require.NoError(t, r.Create("custom", p))

	got, err := r.Get("custom")
	require.NoError(t, err)
	require.Equal(t, "custom", got.Slug)
}

func TestUpdateProtectedPresetClones(t *testing.T) {
	r, _ := newRegistry()
	require.NoError(t, r.SeedBundled())

	cloneSlug, err := r.Update("context-unified", func(p *Preset) {
		p.Meta.Title = "My unified"
	})
	require.NoError(t, err)
	require.Equal(t, "context-unified-v2", cloneSlug)

	clone, err := r.Get(cloneSlug)
	require.NoError(t, err)
	require.False(t, clone.Meta.ReadOnly)
	require.Equal(t, "My unified", clone.Meta.Title)

	original, err := r.Get("context-unified")
	require.NoError(t, err)
	require.NotEqual(t, "My unified", original.Meta.Title)
}

func TestDeleteImmutableRefused(t *testing.T) {
	r, _ := newRegistry()
	require.NoError(t, r.SeedBundled())
	require.Error(t, r.Delete("context-jsonl"))
}

func TestDeleteNonProtectedSucceeds(t *testing.T) {
	r, _ := newRegistry()
	p := &Preset{Templates: Templates{Root: "{entities}", Entity: "{record.payload}"}}
	require.NoError(t, r.Create("custom", p))
	require.NoError(t, r.Delete("custom"))

	_, err := r.Get("custom")
	require.Error(t, err)
}

func TestSeedBundledIsIdempotent(t *testing.T) {
	r, _ := newRegistry()
	require.NoError(t, r.SeedBundled())
	all, err := r.List()
	require.NoError(t, err)
	require.Len(t, all, 6)

	require.NoError(t, r.SeedBundled())
	all, err = r.List()
	require.NoError(t, err)
	require.Len(t, all, 6)
}
