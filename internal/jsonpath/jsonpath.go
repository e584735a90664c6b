// Package jsonpath provides dot-path get/set helpers shared by the
// filter, resolver, and export-transform packages, built on
// github.com/tidwall/gjson and github.com/tidwall/sjson. Payload trees
// in this codebase live as decoded Go values (map[string]any/[]any), so
// each helper here marshals through canonical JSON at the boundary
// rather than operating on gjson's own lazy-parse representation
// internally — this keeps a single source of truth for value semantics
// (internal/codec) while still getting gjson/sjson's path syntax for
// "a.b[2].c" style lookups instead of a hand-rolled walker.
package jsonpath

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dominikletica/aaviondb/internal/codec"
)

// Get resolves a dot-path (gjson syntax: "a.b.2.c" or "a.b[2].c") against
// value and returns (result, true) if the path resolved to something
// other than JSON null/missing.
func Get(value any, path string) (any, bool) {
	raw, err := codec.Encode(value)
	if err != nil {
		return nil, false
	}
	res := gjson.GetBytes(raw, normalizePath(path))
	if !res.Exists() {
		return nil, false
	}
	decoded, err := codec.Decode([]byte(res.Raw))
	if err != nil {
		// Scalar results (string/number/bool) are not valid standalone
		// JSON documents in all gjson versions' .Raw; fall back to typed
		// accessors.
		return scalarFromResult(res), true
	}
	return decoded, true
}

func scalarFromResult(res gjson.Result) any {
	switch res.Type {
	case gjson.String:
		return res.String()
	case gjson.Number:
		if res.Num == float64(int64(res.Num)) {
			return int64(res.Num)
		}
		return res.Num
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.Null:
		return nil
	default:
		return res.Value()
	}
}

// Set returns a copy of value with path set to newValue, using sjson.
func Set(value any, path string, newValue any) (any, error) {
	raw, err := codec.Encode(value)
	if err != nil {
		return nil, err
	}
	updated, err := sjson.SetBytes(raw, normalizePath(path), newValue)
	if err != nil {
		return nil, err
	}
	return codec.Decode(updated)
}

// Delete returns a copy of value with path removed.
func Delete(value any, path string) (any, error) {
	raw, err := codec.Encode(value)
	if err != nil {
		return nil, err
	}
	updated, err := sjson.DeleteBytes(raw, normalizePath(path))
	if err != nil {
		return nil, err
	}
	return codec.Decode(updated)
}

// normalizePath rewrites AavionDB's "field[N]" array-index syntax
// (spec.md §4.12 TARGET grammar) into gjson's native "field.N" form.
func normalizePath(path string) string {
	out := make([]byte, 0, len(path)+4)
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '[':
			out = append(out, '.')
		case ']':
			// skip
		default:
			out = append(out, path[i])
		}
	}
	return string(out)
}
