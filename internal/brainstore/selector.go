package brainstore

import (
	"strconv"
	"strings"

	"github.com/dominikletica/aaviondb/internal/aerr"
)

// ResolveEntityVersionKey normalizes a selector string to a concrete
// version-map key (spec.md §4.4 "References"):
//   - bare numeric version "3"
//   - "@<version>"
//   - "#<hash>" (looked up via the brain's commits index)
//   - "" (missing) means the entity's active version
func ResolveEntityVersionKey(b *Brain, project, entitySlug string, e *Entity, ref string) (string, error) {
	if ref == "" {
		if e.ActiveVersion == "" {
			return "", aerr.New(aerr.KindNotFound, "entity %q has no active version", entitySlug)
		}
		return e.ActiveVersion, nil
	}
	if strings.HasPrefix(ref, "#") {
		hash := strings.TrimPrefix(ref, "#")
		c, ok := b.Commits[hash]
		if !ok || c.Project != project || c.Entity != entitySlug {
			return "", aerr.New(aerr.KindNotFound, "commit %q not found for %s/%s", hash, project, entitySlug)
		}
		return c.Version, nil
	}
	numeric := strings.TrimPrefix(ref, "@")
	if _, err := strconv.Atoi(numeric); err != nil {
		return "", aerr.New(aerr.KindInvalidReference, "invalid version selector %q", ref)
	}
	if _, ok := e.Versions[numeric]; !ok {
		return "", aerr.New(aerr.KindNotFound, "version %q not found for %s/%s", numeric, project, entitySlug)
	}
	return numeric, nil
}
