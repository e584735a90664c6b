package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	records map[string]*Record // key "project.entity"
}

func (f *fakeLookup) ResolveRef(project, entity, ref string) (*Record, error) {
	r, ok := f.records[project+"."+entity]
	if !ok {
		return nil, assertErr("not found")
	}
	return r, nil
}

func (f *fakeLookup) Query(q Query) ([]*Record, error) {
	var out []*Record
	for _, r := range f.records {
		if q.Project != "" && r.Project != q.Project {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeLookup) RelativePath(fromProject, fromEntity, toProject, toEntity string) (string, error) {
	return toProject + "/" + toEntity, nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func newFakeLookup() *fakeLookup {
	return &fakeLookup{records: map[string]*Record{
		"demo.hero": {Project: "demo", Entity: "hero", Version: "1", Payload: map[string]any{"name": "Aria", "tags": []any{"a", "b"}}},
	}}
}

func TestExpandRefWholePayload(t *testing.T) {
	lu := newFakeLookup()
	out, err := Expand("[ref @demo.hero]", "demo", "other", lu, nil, nil)
	require.NoError(t, err)
	require.Contains(t, out, "[ref @demo.hero]")
	require.Contains(t, out, `"name":"Aria"`)
	require.Contains(t, out, "[/ref]")
}

func TestExpandRefFieldPath(t *testing.T) {
	lu := newFakeLookup()
	out, err := Expand("[ref @demo.hero|name]", "demo", "other", lu, nil, nil)
	require.NoError(t, err)
	require.Contains(t, out, `"Aria"`)
}

func TestExpandRefDefaultsToCallerProject(t *testing.T) {
	lu := newFakeLookup()
	out, err := Expand("[ref @hero]", "demo", "other", lu, nil, nil)
	require.NoError(t, err)
	require.Contains(t, out, "Aria")
}

func TestExpandRefCycleGuard(t *testing.T) {
	lu := newFakeLookup()
	out, err := Expand("[ref @demo.hero]", "demo", "other", lu, nil, []string{"demo.hero:"})
	require.NoError(t, err)
	require.Contains(t, out, "<cycle>")
}

func TestExpandQueryTemplate(t *testing.T) {
	lu := newFakeLookup()
	out, err := Expand(`[query project=demo|template={record.payload.name}]`, "demo", "other", lu, nil, nil)
	require.NoError(t, err)
	require.Contains(t, out, "Aria")
}

func TestStripResolvedWrapper(t *testing.T) {
	raw := "[ref @demo.hero]some resolved text[/ref]"
	require.Equal(t, "[ref @demo.hero]", StripResolvedWrapper(raw))
}

func TestParseTargetWithCommitRef(t *testing.T) {
	project, entity, ref, fields, err := parseTarget("@demo.hero#abc123", "other")
	require.NoError(t, err)
	require.Equal(t, "demo", project)
	require.Equal(t, "hero", entity)
	require.Equal(t, "#abc123", ref)
	require.Empty(t, fields)
}
