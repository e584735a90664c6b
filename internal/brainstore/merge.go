package brainstore

// mergePayload applies spec.md §4.4 step 7's merge rule recursively:
// a new null removes the key, a new object merging into an existing
// object recurses, anything else (scalar or list) replaces wholesale.
// A map that becomes empty after merging is pruned from its parent.
//
// Grounded on the teacher's internal/merge/merge.go conflict-resolution
// idiom (field-by-field reconciliation against a base), generalized
// from BeadsLog's tombstone/TTL rules to this spec's simpler
// null-removes/object-merges/scalar-replaces contract.
func mergePayload(source, incoming map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range source {
		out[k] = v
	}
	for k, newVal := range incoming {
		if newVal == nil {
			delete(out, k)
			continue
		}
		if newObj, ok := newVal.(map[string]any); ok {
			if baseObj, ok := out[k].(map[string]any); ok {
				merged := mergePayload(baseObj, newObj)
				if len(merged) == 0 {
					delete(out, k)
				} else {
					out[k] = merged
				}
				continue
			}
		}
		out[k] = newVal
	}
	return out
}
