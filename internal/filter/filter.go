// Package filter evaluates FilterDef sequences against entity
// metadata, payload trees, and resolved references (spec.md §4.11,
// C11), and parses the where-expression grammar used by resolver
// queries (§4.12).
//
// Grounded on the teacher's gjson/sjson-based path access
// (internal/jsonpath), reused here for payload dot-path lookups.
package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dominikletica/aaviondb/internal/aerr"
	"github.com/dominikletica/aaviondb/internal/jsonpath"
)

// Def is one {type, config} filter definition.
type Def struct {
	Type   string
	Config map[string]any
}

// Subject is what a Def is evaluated against.
type Subject struct {
	Project   string
	Entity    string
	Status    string
	Fieldset  string
	Payload   map[string]any
	PathSegs  []string // hierarchy path from project root to entity, inclusive
}

// Context supplies placeholder values for ${...} expansion.
type Context struct {
	Project string
	Entity  string
	UID     string
	Version string
	Params  map[string]any
	Vars    map[string]any
	Payload map[string]any
}

var placeholderPattern = regexp.MustCompile(`\$\{([a-zA-Z0-9_.]+)\}`)

// Expand substitutes ${...} placeholders in s using ctx. Arrays
// resolved from a placeholder are flattened by joining with ",".
func Expand(s string, ctx Context) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		token := match[2 : len(match)-1]
		val, ok := resolveToken(token, ctx)
		if !ok {
			return match
		}
		return stringify(val)
	})
}

func resolveToken(token string, ctx Context) (any, bool) {
	switch {
	case token == "project":
		return ctx.Project, true
	case token == "entity":
		return ctx.Entity, true
	case token == "uid":
		return ctx.UID, true
	case token == "version":
		return ctx.Version, true
	case strings.HasPrefix(token, "param."):
		v, ok := ctx.Params[strings.TrimPrefix(token, "param.")]
		return v, ok
	case strings.HasPrefix(token, "var."):
		v, ok := ctx.Vars[strings.TrimPrefix(token, "var.")]
		return v, ok
	case strings.HasPrefix(token, "payload."):
		return jsonpath.Get(ctx.Payload, strings.TrimPrefix(token, "payload."))
	default:
		return nil, false
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = stringify(e)
		}
		return strings.Join(parts, ",")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Normalize expands the plain-string shorthand form
// ({type: "slug_equals", config: {value: str}}).
func Normalize(raw any) (Def, error) {
	switch v := raw.(type) {
	case string:
		return Def{Type: "slug_equals", Config: map[string]any{"value": v}}, nil
	case map[string]any:
		d := Def{Config: map[string]any{}}
		if t, ok := v["type"].(string); ok {
			d.Type = t
		}
		if cfg, ok := v["config"].(map[string]any); ok {
			d.Config = cfg
		}
		if d.Type == "" {
			return Def{}, aerr.New(aerr.KindInvalidParameter, "filter definition missing type")
		}
		return d, nil
	default:
		return Def{}, aerr.New(aerr.KindInvalidParameter, "filter definition must be a string or object")
	}
}

// MatchAll ANDs every Def against subject; ctx supplies placeholder
// expansion for config values.
func MatchAll(defs []Def, subject Subject, ctx Context) (bool, error) {
	for _, d := range defs {
		ok, err := match(d, subject, ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func match(d Def, s Subject, ctx Context) (bool, error) {
	switch d.Type {
	case "slug_equals":
		return s.Entity == expandCfgString(d.Config, "value", ctx), nil
	case "slug_in":
		return containsStr(expandCfgList(d.Config, "values", ctx), s.Entity), nil
	case "status_equals":
		return s.Status == expandCfgString(d.Config, "value", ctx), nil
	case "has_fieldset":
		want := expandCfgString(d.Config, "value", ctx)
		if want == "" {
			return s.Fieldset != "", nil
		}
		return s.Fieldset == want, nil
	case "payload_contains":
		return payloadContains(s.Payload, d.Config, ctx)
	case "payload_equals":
		return payloadEquals(s.Payload, d.Config, ctx)
	case "payload_missing":
		path := expandCfgString(d.Config, "path", ctx)
		_, ok := jsonpath.Get(s.Payload, path)
		return !ok, nil
	case "payload_matches":
		return payloadMatches(s.Payload, d.Config, ctx)
	case "path_equals":
		want := expandCfgList(d.Config, "value", ctx)
		return equalStrSlices(s.PathSegs, want), nil
	case "path_under":
		want := expandCfgList(d.Config, "value", ctx)
		return hasPrefix(s.PathSegs, want), nil
	default:
		return false, aerr.New(aerr.KindInvalidParameter, "unrecognized filter type %q", d.Type)
	}
}

func expandCfgString(cfg map[string]any, key string, ctx Context) string {
	v, ok := cfg[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return stringify(v)
	}
	return Expand(s, ctx)
}

func expandCfgList(cfg map[string]any, key string, ctx Context) []string {
	v, ok := cfg[key]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []any:
		out := make([]string, len(t))
		for i, e := range t {
			if s, ok := e.(string); ok {
				out[i] = Expand(s, ctx)
			} else {
				out[i] = stringify(e)
			}
		}
		return out
	case string:
		return strings.Split(Expand(t, ctx), ",")
	default:
		return nil
	}
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func equalStrSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func hasPrefix(full, prefix []string) bool {
	if len(prefix) > len(full) {
		return false
	}
	for i := range prefix {
		if full[i] != prefix[i] {
			return false
		}
	}
	return true
}

func payloadContains(payload map[string]any, cfg map[string]any, ctx Context) (bool, error) {
	path := expandCfgString(cfg, "path", ctx)
	want := cfg["value"]
	if s, ok := want.(string); ok {
		want = Expand(s, ctx)
	}
	val, ok := jsonpath.Get(payload, path)
	if !ok {
		return false, nil
	}
	switch v := val.(type) {
	case string:
		ws, _ := want.(string)
		return strings.Contains(v, ws), nil
	case []any:
		for _, e := range v {
			if fmt.Sprintf("%v", e) == fmt.Sprintf("%v", want) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		ws, _ := want.(string)
		_, has := v[ws]
		return has, nil
	default:
		return false, nil
	}
}

func payloadEquals(payload map[string]any, cfg map[string]any, ctx Context) (bool, error) {
	path := expandCfgString(cfg, "path", ctx)
	want := cfg["value"]
	if s, ok := want.(string); ok {
		want = Expand(s, ctx)
	}
	val, ok := jsonpath.Get(payload, path)
	if !ok {
		return false, nil
	}
	return fmt.Sprintf("%v", val) == fmt.Sprintf("%v", want), nil
}

func payloadMatches(payload map[string]any, cfg map[string]any, ctx Context) (bool, error) {
	path := expandCfgString(cfg, "path", ctx)
	pattern := expandCfgString(cfg, "pattern", ctx)
	val, ok := jsonpath.Get(payload, path)
	if !ok {
		return false, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, aerr.Wrap(aerr.KindInvalidParameter, err, "invalid payload_matches pattern")
	}
	return re.MatchString(fmt.Sprintf("%v", val)), nil
}

// --- where-expression grammar (§4.12, resolver queries) ---

// Condition is one parsed "field op value" clause.
type Condition struct {
	Field string
	Op    string
	Value any
}

var ops = []string{"!=", ">=", "<=", "not in", "!contains", "contains", "in", "~", "=", ">", "<"}

// ParseWhere splits a where-expression into ANDed Condition clauses
// separated by ";".
func ParseWhere(expr string) ([]Condition, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	var out []Condition
	for _, clause := range strings.Split(expr, ";") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		cond, err := parseClause(clause)
		if err != nil {
			return nil, err
		}
		out = append(out, cond)
	}
	return out, nil
}

func parseClause(clause string) (Condition, error) {
	for _, op := range ops {
		idx := strings.Index(clause, op)
		if idx < 0 {
			continue
		}
		field := strings.TrimSpace(clause[:idx])
		rest := strings.TrimSpace(clause[idx+len(op):])
		if field == "" {
			continue
		}
		val, err := parseValue(rest)
		if err != nil {
			return Condition{}, err
		}
		return Condition{Field: field, Op: strings.TrimSpace(op), Value: val}, nil
	}
	return Condition{}, aerr.New(aerr.KindInvalidParameter, "cannot parse where clause %q", clause)
}

func parseValue(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")") {
		inner := raw[1 : len(raw)-1]
		var parts []string
		for _, p := range strings.Split(inner, ",") {
			parts = append(parts, parseScalarString(strings.TrimSpace(p)))
		}
		return parts, nil
	}
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		inner := raw[1 : len(raw)-1]
		var parts []string
		for _, p := range strings.Split(inner, ",") {
			parts = append(parts, parseScalarString(strings.TrimSpace(p)))
		}
		return parts, nil
	}
	return parseScalar(raw), nil
}

func parseScalarString(raw string) string {
	v := parseScalar(raw)
	return fmt.Sprintf("%v", v)
}

func parseScalar(raw string) any {
	if len(raw) >= 2 && (raw[0] == '"' && raw[len(raw)-1] == '"' || raw[0] == '\'' && raw[len(raw)-1] == '\'') {
		return raw[1 : len(raw)-1]
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	if raw == "true" {
		return true
	}
	if raw == "false" {
		return false
	}
	return raw
}

// EvalCondition evaluates a single parsed Condition against a field
// value drawn from the caller's record.
func EvalCondition(cond Condition, fieldValue any) (bool, error) {
	switch cond.Op {
	case "=":
		return fmt.Sprintf("%v", fieldValue) == fmt.Sprintf("%v", cond.Value), nil
	case "!=":
		return fmt.Sprintf("%v", fieldValue) != fmt.Sprintf("%v", cond.Value), nil
	case ">", "<", ">=", "<=":
		fv, ok1 := toFloat(fieldValue)
		cv, ok2 := toFloat(cond.Value)
		if !ok1 || !ok2 {
			return false, nil
		}
		switch cond.Op {
		case ">":
			return fv > cv, nil
		case "<":
			return fv < cv, nil
		case ">=":
			return fv >= cv, nil
		default:
			return fv <= cv, nil
		}
	case "contains":
		return strings.Contains(fmt.Sprintf("%v", fieldValue), fmt.Sprintf("%v", cond.Value)), nil
	case "!contains":
		return !strings.Contains(fmt.Sprintf("%v", fieldValue), fmt.Sprintf("%v", cond.Value)), nil
	case "in":
		list, _ := cond.Value.([]string)
		return containsStr(list, fmt.Sprintf("%v", fieldValue)), nil
	case "not in":
		list, _ := cond.Value.([]string)
		return !containsStr(list, fmt.Sprintf("%v", fieldValue)), nil
	case "~":
		re, err := regexp.Compile(fmt.Sprintf("%v", cond.Value))
		if err != nil {
			return false, aerr.Wrap(aerr.KindInvalidParameter, err, "invalid ~ regex")
		}
		return re.MatchString(fmt.Sprintf("%v", fieldValue)), nil
	default:
		return false, aerr.New(aerr.KindInvalidParameter, "unrecognized operator %q", cond.Op)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
