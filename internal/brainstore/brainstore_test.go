package brainstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dominikletica/aaviondb/internal/auth"
	"github.com/dominikletica/aaviondb/internal/eventbus"
	"github.com/dominikletica/aaviondb/internal/pathlocator"
)

func newTestStore(t *testing.T) *Store {
	loc := pathlocator.New(t.TempDir())
	require.NoError(t, loc.EnsureDefaultDirectories())
	return New(loc, eventbus.New(nil))
}

func allBinding() auth.Binding {
	return auth.Binding{Scope: auth.Scope{Mode: auth.ScopeALL, Projects: []string{"*"}}}
}

func TestSaveEntityCreatesFirstVersion(t *testing.T) {
	s := newTestStore(t)
	res, err := s.SaveEntity(allBinding(), "", "demo", "hero", map[string]any{"name": "Aria"}, nil, SaveEntityOptions{})
	require.NoError(t, err)
	require.Equal(t, "1", res.Version)

	versions, err := s.ListEntityVersions("", "demo", "hero")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, "Aria", versions[0].Payload["name"])
}

func TestSaveEntityMergesIntoActiveVersion(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SaveEntity(allBinding(), "", "demo", "hero", map[string]any{"name": "Aria", "role": "Pilot"}, nil, SaveEntityOptions{})
	require.NoError(t, err)
	res, err := s.SaveEntity(allBinding(), "", "demo", "hero", map[string]any{"role": nil, "rank": "Captain"}, nil, SaveEntityOptions{})
	require.NoError(t, err)
	require.Equal(t, "2", res.Version)

	versions, err := s.ListEntityVersions("", "demo", "hero")
	require.NoError(t, err)
	latest := versions[len(versions)-1].Payload
	require.Equal(t, "Aria", latest["name"])
	require.Equal(t, "Captain", latest["rank"])
	_, hasRole := latest["role"]
	require.False(t, hasRole)
}

func TestSaveEntityStripsResolvedWrapperBeforeHashing(t *testing.T) {
	s := newTestStore(t)
	bare, err := s.SaveEntity(allBinding(), "", "demo", "hero", map[string]any{
		"bio": "[ref project=demo entity=captain]",
	}, nil, SaveEntityOptions{})
	require.NoError(t, err)

	resolved, err := s.SaveEntity(allBinding(), "", "demo", "hero", map[string]any{
		"bio": "[ref project=demo entity=captain]Captain Aria[/ref]",
	}, nil, SaveEntityOptions{Merge: false})
	require.NoError(t, err)

	versions, err := s.ListEntityVersions("", "demo", "hero")
	require.NoError(t, err)
	require.Equal(t, "[ref project=demo entity=captain]", versions[len(versions)-1].Payload["bio"])

	firstRecord, err := s.GetVersionByRef("", "demo", "hero", bare.Version)
	require.NoError(t, err)
	lastRecord, err := s.GetVersionByRef("", "demo", "hero", resolved.Version)
	require.NoError(t, err)
	require.Equal(t, firstRecord.Hash, lastRecord.Hash)
}

func TestSaveEntityReplaceMode(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SaveEntity(allBinding(), "", "demo", "hero", map[string]any{"name": "Aria", "role": "Pilot"}, nil, SaveEntityOptions{})
	require.NoError(t, err)
	_, err = s.SaveEntity(allBinding(), "", "demo", "hero", map[string]any{"rank": "Captain"}, nil, SaveEntityOptions{Merge: "replace"})
	require.NoError(t, err)

	versions, err := s.ListEntityVersions("", "demo", "hero")
	require.NoError(t, err)
	latest := versions[len(versions)-1].Payload
	require.Equal(t, map[string]any{"rank": "Captain"}, latest)
}

func TestSaveEntityScopeDenied(t *testing.T) {
	s := newTestStore(t)
	binding := auth.Binding{Scope: auth.Scope{Mode: auth.ScopeRO, Projects: []string{"*"}}}
	_, err := s.SaveEntity(binding, "", "demo", "hero", map[string]any{"a": 1}, nil, SaveEntityOptions{})
	require.Error(t, err)
}

func TestDeleteEntityVersionPicksNewActive(t *testing.T) {
	s := newTestStore(t)
	s.SaveEntity(allBinding(), "", "demo", "hero", map[string]any{"v": int64(1)}, nil, SaveEntityOptions{})
	s.SaveEntity(allBinding(), "", "demo", "hero", map[string]any{"v": int64(2)}, nil, SaveEntityOptions{})
	require.NoError(t, s.DeleteEntityVersion("", "demo", "hero", "@2"))

	versions, err := s.ListEntityVersions("", "demo", "hero")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, "active", versions[0].Status)
}

func TestMoveEntityRejectsCycle(t *testing.T) {
	s := newTestStore(t)
	s.SaveEntity(allBinding(), "", "demo", "parent", map[string]any{}, nil, SaveEntityOptions{})
	s.SaveEntity(allBinding(), "", "demo", "child", map[string]any{}, nil, SaveEntityOptions{ParentPath: []string{"parent"}})

	_, err := s.MoveEntity("", "demo", "parent", []string{"child"})
	require.NoError(t, err) // warnings recorded, not a hard error per spec

	versions, err := s.ListEntities("", "demo", nil)
	require.NoError(t, err)
	require.Len(t, versions, 2)
}

func TestArchiveProjectDeactivatesEntities(t *testing.T) {
	s := newTestStore(t)
	s.SaveEntity(allBinding(), "", "demo", "hero", map[string]any{"a": 1}, nil, SaveEntityOptions{})
	require.NoError(t, s.ArchiveProject("", "demo"))

	entities, err := s.ListEntities("", "demo", nil)
	require.NoError(t, err)
	require.Equal(t, "inactive", entities[0].Status)
}

func TestCompactBrainRebuildsCommits(t *testing.T) {
	s := newTestStore(t)
	s.SaveEntity(allBinding(), "", "demo", "hero", map[string]any{"a": 1}, nil, SaveEntityOptions{})
	require.NoError(t, s.CompactBrain("", "demo", false))

	commits, err := s.ListProjectCommits("", "demo", "")
	require.NoError(t, err)
	require.Len(t, commits, 1)
}

func TestRepairBrainFixesMissingActiveVersion(t *testing.T) {
	s := newTestStore(t)
	s.SaveEntity(allBinding(), "", "demo", "hero", map[string]any{"a": 1}, nil, SaveEntityOptions{})
	require.NoError(t, s.RepairBrain("", "demo", false))

	entities, err := s.ListEntities("", "demo", nil)
	require.NoError(t, err)
	require.Equal(t, "active", entities[0].Status)
}
