// Package resolver expands inline [ref …] and [query …] shortcodes
// found inside entity payloads when they are emitted (entity show,
// export) — spec.md §4.12, C12.
//
// Grounded on the teacher's gjson-backed jsonpath helpers for dot-path
// access, and on internal/filter for where-expression evaluation.
package resolver

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dominikletica/aaviondb/internal/aerr"
	"github.com/dominikletica/aaviondb/internal/filter"
	"github.com/dominikletica/aaviondb/internal/jsonpath"
)

// Record is one resolved entity version, as seen by the resolver.
type Record struct {
	Project       string
	Entity        string
	Version       string
	Commit        string
	Payload       map[string]any
	URLRelative   string
	URLAbsolute   string
}

// Lookup is the brain-store-backed data source the resolver queries
// against. A narrow interface keeps this package decoupled from
// internal/brainstore's concrete types.
type Lookup interface {
	// ResolveRef fetches a single entity version. ref is "" (active),
	// "@N", or "#hash".
	ResolveRef(project, entity, ref string) (*Record, error)
	// Query runs a filtered, sorted lookup across one or more projects.
	Query(q Query) ([]*Record, error)
	// RelativePath computes a hierarchy-relative filesystem-style path
	// from (fromProject, fromEntity) to (toProject, toEntity).
	RelativePath(fromProject, fromEntity, toProject, toEntity string) (string, error)
}

// Query is the parsed form of a [query …] shortcode.
type Query struct {
	Project  string
	Projects []string
	Where    string
	Select   string
	SortField string
	SortDir   string
	Limit    int
	Offset   int
}

// Options common to both shortcode kinds.
type Options struct {
	Format    string // json | plain | markdown | raw
	Separator string
	Template  string
}

const cyclePlaceholder = "<cycle>"

var shortcodeStart = regexp.MustCompile(`\[(ref|query)\s`)

// Expand walks text, replacing every [ref …] / [query …] shortcode with
// "[<kind> …]<resolved>[/<kind>]" in place. callerProject/callerEntity
// anchor relative TARGETs and URL helpers. stack carries the
// in-progress resolution path for cycle detection across recursive
// calls (pass nil at the top level).
func Expand(text, callerProject, callerEntity string, lu Lookup, params map[string]any, stack []string) (string, error) {
	var out strings.Builder
	rest := text
	for {
		loc := shortcodeStart.FindStringSubmatchIndex(rest)
		if loc == nil {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:loc[0]])
		kind := rest[loc[2]:loc[3]]
		body, end, ok := scanBracket(rest, loc[0])
		if !ok {
			out.WriteString(rest[loc[0]:])
			break
		}
		resolved, err := expandOne(kind, body, callerProject, callerEntity, lu, params, stack)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&out, "[%s %s]%s[/%s]", kind, body, resolved, kind)
		rest = rest[end:]
	}
	return out.String(), nil
}

// scanBracket finds the matching "]" for the "[" at text[start],
// tolerating nested "[N]" array-index brackets inside TARGET.
func scanBracket(text string, start int) (body string, end int, ok bool) {
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				inner := text[start+1 : i]
				parts := strings.SplitN(inner, " ", 2)
				if len(parts) < 2 {
					return "", 0, false
				}
				return parts[1], i + 1, true
			}
		}
	}
	return "", 0, false
}

func expandOne(kind, body, callerProject, callerEntity string, lu Lookup, params map[string]any, stack []string) (string, error) {
	switch kind {
	case "ref":
		return expandRef(body, callerProject, callerEntity, lu, params, stack)
	case "query":
		return expandQuery(body, callerProject, lu, params, stack)
	default:
		return "", aerr.New(aerr.KindInvalidParameter, "unrecognized shortcode kind %q", kind)
	}
}

// parseSegments splits a shortcode body on unescaped "|".
func parseSegments(body string) []string {
	return strings.Split(body, "|")
}

func parseOptions(segments []string, startAt int) (Options, map[string]string) {
	opts := Options{Format: "json", Separator: "\n"}
	raw := map[string]string{}
	for _, seg := range segments[startAt:] {
		seg = strings.TrimSpace(seg)
		eq := strings.Index(seg, "=")
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(seg[:eq])
		val := strings.TrimSpace(seg[eq+1:])
		val = strings.Trim(val, `"'`)
		raw[key] = val
		switch key {
		case "format":
			opts.Format = val
		case "separator":
			opts.Separator = unescapeSeparator(val)
		case "template":
			opts.Template = val
		}
	}
	return opts, raw
}

func unescapeSeparator(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}

func expandRef(body, callerProject, callerEntity string, lu Lookup, params map[string]any, stack []string) (string, error) {
	segments := parseSegments(body)
	target := strings.TrimSpace(segments[0])
	project, entity, ref, fieldPath, err := parseTarget(target, callerProject)
	if err != nil {
		return "", err
	}
	fieldSegments := fieldPath
	for _, seg := range segments[1:] {
		seg = strings.TrimSpace(seg)
		if strings.Contains(seg, "=") {
			break
		}
		fieldSegments = append(fieldSegments, seg)
	}
	opts, _ := parseOptions(segments, fieldOptionStart(segments))

	tuple := project + "." + entity + ":" + strings.Join(fieldSegments, ".")
	for _, s := range stack {
		if s == tuple {
			return cyclePlaceholder, nil
		}
	}
	nextStack := append(append([]string{}, stack...), tuple)

	rec, err := lu.ResolveRef(project, entity, ref)
	if err != nil {
		return "", err
	}
	if err := annotateURLs(rec, callerProject, callerEntity, lu); err != nil {
		return "", err
	}

	var value any = rec.Payload
	if len(fieldSegments) > 0 {
		path := strings.Join(fieldSegments, ".")
		v, ok := jsonpath.Get(rec.Payload, path)
		if !ok {
			value = nil
		} else {
			value = v
		}
	}

	if s, ok := value.(string); ok {
		nested, err := Expand(s, project, entity, lu, params, nextStack)
		if err == nil {
			value = nested
		}
	}

	return renderValue(value, []*Record{rec}, opts), nil
}

// fieldOptionStart finds the index of the first segment containing
// "=" (i.e. where options begin), so earlier segments are treated as
// additional field-path fragments.
func fieldOptionStart(segments []string) int {
	for i, seg := range segments[1:] {
		if strings.Contains(seg, "=") {
			return i + 1
		}
	}
	return len(segments)
}

func expandQuery(body, callerProject string, lu Lookup, params map[string]any, stack []string) (string, error) {
	segments := parseSegments(body)
	opts, raw := parseOptions(segments, 0)
	q := Query{Select: "payload", Project: callerProject}
	if v, ok := raw["project"]; ok {
		q.Project = filter.Expand(v, filter.Context{Project: callerProject, Params: params})
	}
	if v, ok := raw["projects"]; ok {
		for _, p := range strings.Split(v, ",") {
			q.Projects = append(q.Projects, strings.TrimSpace(p))
		}
	}
	if v, ok := raw["where"]; ok {
		q.Where = v
	}
	if v, ok := raw["select"]; ok {
		q.Select = v
	}
	if v, ok := raw["sort"]; ok {
		parts := strings.Fields(v)
		q.SortField = parts[0]
		if len(parts) > 1 {
			q.SortDir = parts[1]
		} else {
			q.SortDir = "asc"
		}
	}
	if v, ok := raw["limit"]; ok {
		q.Limit, _ = strconv.Atoi(v)
	}
	if v, ok := raw["offset"]; ok {
		q.Offset, _ = strconv.Atoi(v)
	}

	tuple := "query:" + body
	for _, s := range stack {
		if s == tuple {
			return cyclePlaceholder, nil
		}
	}

	recs, err := lu.Query(q)
	if err != nil {
		return "", err
	}
	sortRecords(recs, q)
	if q.Offset > 0 && q.Offset < len(recs) {
		recs = recs[q.Offset:]
	} else if q.Offset >= len(recs) {
		recs = nil
	}
	if q.Limit > 0 && q.Limit < len(recs) {
		recs = recs[:q.Limit]
	}

	var values []any
	for _, rec := range recs {
		v, ok := jsonpath.Get(rec.Payload, q.Select)
		if q.Select == "payload" || q.Select == "" {
			values = append(values, map[string]any(rec.Payload))
			continue
		}
		if !ok {
			values = append(values, nil)
		} else {
			values = append(values, v)
		}
	}
	return renderValue(values, recs, opts), nil
}

func sortRecords(recs []*Record, q Query) {
	if q.SortField == "" {
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		vi, _ := jsonpath.Get(recs[i].Payload, q.SortField)
		vj, _ := jsonpath.Get(recs[j].Payload, q.SortField)
		less := fmt.Sprintf("%v", vi) < fmt.Sprintf("%v", vj)
		if q.SortDir == "desc" {
			return !less
		}
		return less
	})
}

// parseTarget parses "@project.entity[@version|#commit]|field.path"
// style TARGET expressions (the leading "@project." segment is
// optional and defaults to callerProject).
func parseTarget(target, callerProject string) (project, entity, ref string, fieldSegments []string, err error) {
	if !strings.HasPrefix(target, "@") {
		return "", "", "", nil, aerr.New(aerr.KindInvalidReference, "target %q must start with @", target)
	}
	body := target[1:]
	ref = ""
	if idx := strings.IndexAny(body, "@#"); idx >= 0 {
		ref = body[idx:]
		body = body[:idx]
	}
	dotParts := strings.Split(body, ".")
	if len(dotParts) == 1 {
		project = callerProject
		entity = dotParts[0]
	} else {
		project = dotParts[0]
		entity = dotParts[1]
		fieldSegments = dotParts[2:]
	}
	if entity == "" {
		return "", "", "", nil, aerr.New(aerr.KindInvalidReference, "target %q missing entity", target)
	}
	return project, entity, ref, fieldSegments, nil
}

func annotateURLs(rec *Record, callerProject, callerEntity string, lu Lookup) error {
	if callerProject == "" || callerEntity == "" {
		return nil
	}
	rel, err := lu.RelativePath(callerProject, callerEntity, rec.Project, rec.Entity)
	if err != nil {
		return nil // URL helpers are best-effort
	}
	rec.URLRelative = rel
	rec.URLAbsolute = rec.Project + "/" + rec.Entity
	return nil
}

var templateFieldPattern = regexp.MustCompile(`\{([a-zA-Z0-9_.]+)\}`)

func renderValue(value any, recs []*Record, opts Options) string {
	if opts.Template != "" && len(recs) > 0 {
		var parts []string
		for i, rec := range recs {
			var item any = value
			if list, ok := value.([]any); ok && i < len(list) {
				item = list[i]
			}
			parts = append(parts, renderTemplate(opts.Template, item, rec))
		}
		return strings.Join(parts, opts.Separator)
	}
	switch opts.Format {
	case "plain":
		return fmt.Sprintf("%v", value)
	case "markdown":
		return fmt.Sprintf("%v", value)
	case "raw":
		if s, ok := value.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", value)
	default: // json
		enc, err := jsonEncode(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return enc
	}
}

func renderTemplate(tmpl string, value any, rec *Record) string {
	return templateFieldPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		field := match[1 : len(match)-1]
		switch {
		case field == "value":
			return fmt.Sprintf("%v", value)
		case field == "record.version":
			return rec.Version
		case field == "record.url":
			return rec.URLRelative
		case field == "record.url_relative":
			return rec.URLRelative
		case field == "record.url_absolute":
			return rec.URLAbsolute
		case strings.HasPrefix(field, "record.payload."):
			path := strings.TrimPrefix(field, "record.payload.")
			v, ok := jsonpath.Get(rec.Payload, path)
			if !ok {
				return ""
			}
			return fmt.Sprintf("%v", v)
		default:
			return match
		}
	})
}

// StripResolvedWrapper removes "[<kind> …]<resolved>[/<kind>]" back to
// its bare "[<kind> …]" instruction form, so canonical payloads stored
// on disk stay instruction-only (the brain store calls this before
// hashing).
func StripResolvedWrapper(text string) string {
	var out strings.Builder
	rest := text
	for {
		loc := shortcodeStart.FindStringSubmatchIndex(rest)
		if loc == nil {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:loc[0]])
		kind := rest[loc[2]:loc[3]]
		body, end, ok := scanBracket(rest, loc[0])
		if !ok {
			out.WriteString(rest[loc[0]:])
			break
		}
		closeTag := "[/" + kind + "]"
		closeIdx := strings.Index(rest[end:], closeTag)
		fmt.Fprintf(&out, "[%s %s]", kind, body)
		if closeIdx < 0 {
			rest = rest[end:]
			continue
		}
		rest = rest[end+closeIdx+len(closeTag):]
	}
	return out.String()
}

func jsonEncode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
