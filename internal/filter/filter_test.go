package filter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandPlaceholders(t *testing.T) {
	ctx := Context{Project: "demo", Entity: "hero", Params: map[string]any{"tag": "x"}}
	require.Equal(t, "demo/hero/x", Expand("${project}/${entity}/${param.tag}", ctx))
}

func TestMatchSlugEquals(t *testing.T) {
	defs := []Def{{Type: "slug_equals", Config: map[string]any{"value": "hero"}}}
	ok, err := MatchAll(defs, Subject{Entity: "hero"}, Context{})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = MatchAll(defs, Subject{Entity: "villain"}, Context{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMatchPayloadContains(t *testing.T) {
	defs := []Def{{Type: "payload_contains", Config: map[string]any{"path": "tags", "value": "alpha"}}}
	subject := Subject{Payload: map[string]any{"tags": []any{"alpha", "beta"}}}
	ok, err := MatchAll(defs, subject, Context{})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMatchPayloadMissing(t *testing.T) {
	defs := []Def{{Type: "payload_missing", Config: map[string]any{"path": "nope"}}}
	ok, err := MatchAll(defs, Subject{Payload: map[string]any{"a": 1}}, Context{})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMatchPathUnder(t *testing.T) {
	defs := []Def{{Type: "path_under", Config: map[string]any{"value": []any{"root"}}}}
	ok, err := MatchAll(defs, Subject{PathSegs: []string{"root", "child"}}, Context{})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestParseWhereAndEval(t *testing.T) {
	conds, err := ParseWhere(`status = "active"; version >= 2`)
	require.NoError(t, err)
	require.Len(t, conds, 2)

	ok, err := EvalCondition(conds[0], "active")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = EvalCondition(conds[1], 3)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestParseWhereInList(t *testing.T) {
	conds, err := ParseWhere(`tag in (alpha, beta)`)
	require.NoError(t, err)
	require.Len(t, conds, 1)

	ok, err := EvalCondition(conds[0], "beta")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNormalizeShorthand(t *testing.T) {
	d, err := Normalize("hero")
	require.NoError(t, err)
	require.Equal(t, "slug_equals", d.Type)
}
