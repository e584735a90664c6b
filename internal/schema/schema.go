// Package schema implements the JSON-Schema-style validator and payload
// normalizer described in spec.md §4.5 (C5): assertValidSchema checks
// that a payload is itself a usable schema fragment, and ApplySchema
// validates + normalizes an entity payload against a bound schema,
// injecting defaults and expanding context placeholders.
//
// Grounded on the teacher's field-by-field assertion style in
// internal/validation (each offending field produces a path-qualified
// error rather than a single aggregate message), generalized here from
// a fixed bead/issue shape to an arbitrary schema document.
package schema

import (
	"sort"
	"strings"

	"github.com/dominikletica/aaviondb/internal/aerr"
)

// recognized top-level/nested schema keywords; anything else under a
// property definition is ignored rather than rejected, so schema authors
// can attach descriptive metadata without tripping assertValidSchema.
var recognizedTypes = map[string]bool{
	"object": true, "array": true, "string": true,
	"number": true, "integer": true, "boolean": true, "null": true,
}

// Context supplies values for placeholder expansion while applying a
// schema (spec §4.5: "placeholders ... are expanded with context
// values"). The same placeholder syntax as the filter/resolver engines
// is reused: "${project}", "${entity}", "${uid}", "${version}",
// "${param.*}".
type Context struct {
	Project string
	Entity  string
	UID     string
	Version string
	Params  map[string]any
}

func (c Context) resolve(token string) (any, bool) {
	switch {
	case token == "project":
		return c.Project, c.Project != ""
	case token == "entity":
		return c.Entity, c.Entity != ""
	case token == "uid":
		return c.UID, c.UID != ""
	case token == "version":
		return c.Version, c.Version != ""
	case strings.HasPrefix(token, "param."):
		key := strings.TrimPrefix(token, "param.")
		v, ok := c.Params[key]
		return v, ok
	default:
		return nil, false
	}
}

// AssertValidSchema validates that payload is itself a well-formed JSON
// Schema fragment: the root (and every nested "properties" entry) must
// be an object, and any "type" keyword must name a recognized JSON
// Schema primitive.
func AssertValidSchema(payload any) error {
	root, ok := payload.(map[string]any)
	if !ok {
		return aerr.New(aerr.KindInvalidSchemaDoc, "schema root must be an object")
	}
	return assertNode(root, "")
}

func assertNode(node map[string]any, path string) error {
	if t, present := node["type"]; present {
		ts, ok := t.(string)
		if !ok || !recognizedTypes[ts] {
			return aerr.New(aerr.KindInvalidSchemaDoc, "unrecognized type keyword").WithPath(joinPath(path, "type"))
		}
	}
	props, present := node["properties"]
	if !present {
		return nil
	}
	propMap, ok := props.(map[string]any)
	if !ok {
		return aerr.New(aerr.KindInvalidSchemaDoc, "properties must be an object").WithPath(joinPath(path, "properties"))
	}
	// deterministic order for reproducible error messages
	keys := make([]string, 0, len(propMap))
	for k := range propMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		child, ok := propMap[k].(map[string]any)
		if !ok {
			return aerr.New(aerr.KindInvalidSchemaDoc, "property definition must be an object").WithPath(joinPath(path, "properties", k))
		}
		if err := assertNode(child, joinPath(path, "properties", k)); err != nil {
			return err
		}
	}
	return nil
}

// ApplySchema validates payload against schema and returns a normalized
// copy with defaults injected for missing properties and "${...}"
// placeholders in those defaults expanded against ctx. Validation
// failures return a *aerr.Error of KindSchemaValidation carrying the
// offending path.
func ApplySchema(payload map[string]any, schema map[string]any, ctx Context) (map[string]any, error) {
	out := map[string]any{}
	for k, v := range payload {
		out[k] = v
	}

	required, _ := schema["required"].([]any)
	requiredSet := map[string]bool{}
	for _, r := range required {
		if s, ok := r.(string); ok {
			requiredSet[s] = true
		}
	}

	propsRaw, _ := schema["properties"].(map[string]any)
	keys := make([]string, 0, len(propsRaw))
	for k := range propsRaw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		def, ok := propsRaw[key].(map[string]any)
		if !ok {
			continue
		}
		val, present := out[key]
		if !present {
			if defVal, hasDefault := def["default"]; hasDefault {
				out[key] = expandPlaceholders(defVal, ctx)
				continue
			}
			if requiredSet[key] {
				return nil, aerr.New(aerr.KindSchemaValidation, "missing required property %q", key).WithPath(key)
			}
			continue
		}
		if wantType, ok := def["type"].(string); ok {
			if !matchesType(val, wantType) {
				return nil, aerr.New(aerr.KindSchemaValidation, "property %q expected type %s", key, wantType).WithPath(key)
			}
		}
	}

	if additionalRaw, present := schema["additionalProperties"]; present {
		if allowed, ok := additionalRaw.(bool); ok && !allowed {
			known := map[string]bool{}
			for _, k := range keys {
				known[k] = true
			}
			for k := range out {
				if !known[k] {
					return nil, aerr.New(aerr.KindSchemaValidation, "unexpected property %q", k).WithPath(k)
				}
			}
		}
	}

	return out, nil
}

func matchesType(val any, want string) bool {
	switch want {
	case "null":
		return val == nil
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "string":
		_, ok := val.(string)
		return ok
	case "integer":
		switch val.(type) {
		case int64:
			return true
		case float64:
			return val.(float64) == float64(int64(val.(float64)))
		}
		return false
	case "number":
		switch val.(type) {
		case int64, float64:
			return true
		}
		return false
	case "array":
		_, ok := val.([]any)
		return ok
	case "object":
		_, ok := val.(map[string]any)
		return ok
	default:
		return true
	}
}

// expandPlaceholders walks defVal and replaces any "${token}" string
// (whole-string match only, per the same convention the filter/resolver
// engines use) with its resolved context value. Non-matching or
// unresolved placeholders are left verbatim.
func expandPlaceholders(defVal any, ctx Context) any {
	switch v := defVal.(type) {
	case string:
		if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
			token := v[2 : len(v)-1]
			if resolved, ok := ctx.resolve(token); ok {
				return resolved
			}
		}
		return v
	case map[string]any:
		out := map[string]any{}
		for k, child := range v {
			out[k] = expandPlaceholders(child, ctx)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = expandPlaceholders(child, ctx)
		}
		return out
	default:
		return v
	}
}

func joinPath(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ".")
}
