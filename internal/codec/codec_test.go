package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	values := []any{
		nil,
		true,
		false,
		int64(42),
		3.14,
		"hello \"world\"",
		[]any{int64(1), int64(2), int64(3)},
		map[string]any{"b": int64(1), "a": int64(2)},
		map[string]any{
			"nested": map[string]any{"z": int64(1), "a": int64(2)},
			"list":   []any{"x", "y"},
		},
	}
	for _, v := range values {
		enc, err := Encode(v)
		require.NoError(t, err)
		dec, err := Decode(enc)
		require.NoError(t, err)
		reenc, err := Encode(dec)
		require.NoError(t, err)
		require.Equal(t, enc, reenc, "re-encoding decoded value must be byte-identical")
	}
}

func TestKeyOrderDoesNotAffectEncoding(t *testing.T) {
	a := map[string]any{"z": int64(1), "a": int64(2), "m": int64(3)}
	b := map[string]any{"a": int64(2), "m": int64(3), "z": int64(1)}
	ea, err := Encode(a)
	require.NoError(t, err)
	eb, err := Encode(b)
	require.NoError(t, err)
	require.Equal(t, ea, eb)
}

func TestHashDeterminism(t *testing.T) {
	a := map[string]any{"name": "Aria", "role": "Pilot"}
	b := map[string]any{"role": "Pilot", "name": "Aria"}
	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)
	require.Equal(t, ha, hb)
	require.Len(t, ha, 64)
}

func TestEncodeRejectsNaN(t *testing.T) {
	_, err := Encode(map[string]any{"x": 0.0 / zero()})
	require.Error(t, err)
}

func zero() float64 { return 0 }

func TestNoWhitespace(t *testing.T) {
	enc, err := Encode(map[string]any{"a": []any{int64(1), int64(2)}})
	require.NoError(t, err)
	for _, b := range enc {
		require.NotEqual(t, byte(' '), b)
		require.NotEqual(t, byte('\n'), b)
		require.NotEqual(t, byte('\t'), b)
	}
}
