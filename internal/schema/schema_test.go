package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dominikletica/aaviondb/internal/aerr"
)

func TestAssertValidSchemaAcceptsWellFormed(t *testing.T) {
	s := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
			"age":  map[string]any{"type": "integer", "default": int64(0)},
		},
	}
	require.NoError(t, AssertValidSchema(s))
}

func TestAssertValidSchemaRejectsBadType(t *testing.T) {
	s := map[string]any{"type": "widget"}
	err := AssertValidSchema(s)
	require.Error(t, err)
	require.Equal(t, aerr.KindInvalidSchemaDoc, aerr.KindOf(err))
}

func TestApplySchemaInjectsDefaults(t *testing.T) {
	s := map[string]any{
		"properties": map[string]any{
			"role":    map[string]any{"type": "string", "default": "Pilot"},
			"project": map[string]any{"type": "string", "default": "${project}"},
		},
	}
	out, err := ApplySchema(map[string]any{}, s, Context{Project: "atlas"})
	require.NoError(t, err)
	require.Equal(t, "Pilot", out["role"])
	require.Equal(t, "atlas", out["project"])
}

func TestApplySchemaRequiredMissing(t *testing.T) {
	s := map[string]any{
		"required":   []any{"name"},
		"properties": map[string]any{"name": map[string]any{"type": "string"}},
	}
	_, err := ApplySchema(map[string]any{}, s, Context{})
	require.Error(t, err)
	require.Equal(t, aerr.KindSchemaValidation, aerr.KindOf(err))
}

func TestApplySchemaTypeMismatch(t *testing.T) {
	s := map[string]any{
		"properties": map[string]any{"age": map[string]any{"type": "integer"}},
	}
	_, err := ApplySchema(map[string]any{"age": "not-a-number"}, s, Context{})
	require.Error(t, err)
}

func TestApplySchemaRejectsAdditionalProperties(t *testing.T) {
	s := map[string]any{
		"properties":           map[string]any{"name": map[string]any{"type": "string"}},
		"additionalProperties": false,
	}
	_, err := ApplySchema(map[string]any{"name": "a", "extra": true}, s, Context{})
	require.Error(t, err)
}
