package brainstore

import "github.com/dominikletica/aaviondb/internal/aerr"

// MaxHierarchyDepth is the default truncation depth (spec.md §3.3);
// callers may override via project config ("hierarchy.max_depth").
const MaxHierarchyDepth = 10

// isDescendant reports whether candidate is a descendant of ancestor in
// h (used to refuse cycle-creating reparenting).
func isDescendant(h *Hierarchy, ancestor, candidate string) bool {
	seen := map[string]bool{}
	stack := append([]string{}, h.Children[ancestor]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		if n == candidate {
			return true
		}
		stack = append(stack, h.Children[n]...)
	}
	return false
}

// removeChildLink detaches child from its current parent's children list.
func removeChildLink(h *Hierarchy, child string) {
	parent, ok := h.Parents[child]
	if !ok {
		return
	}
	siblings := h.Children[parent]
	for i, c := range siblings {
		if c == child {
			h.Children[parent] = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	delete(h.Parents, child)
}

// setParent reassigns child's parent to parent (empty string = root),
// refusing assignments that would create a cycle. maxDepth truncates
// a too-deep parent_path resolution upstream, not this single-edge
// assignment.
func setParent(h *Hierarchy, child, parent string) error {
	if parent == "" {
		removeChildLink(h, child)
		return nil
	}
	if parent == child || isDescendant(h, child, parent) {
		return aerr.New(aerr.KindInvalidParameter, "assigning parent %q to %q would create a cycle", parent, child)
	}
	removeChildLink(h, child)
	h.Parents[child] = parent
	h.Children[parent] = append(h.Children[parent], child)
	return nil
}

// resolveParentPath walks a requested ancestor chain (root-to-leaf
// order expected to be [closest-ancestor, ..., furthest]) and returns
// the deepest valid parent segment plus any warnings, applying maxDepth
// truncation by keeping the tail segments nearest the root (spec.md
// §3.3).
func resolveParentPath(p *Project, child string, segments []string, maxDepth int) (string, []string, error) {
	var warnings []string
	if maxDepth <= 0 {
		maxDepth = MaxHierarchyDepth
	}
	if len(segments) > maxDepth {
		warnings = append(warnings, "parent_path truncated to max depth")
		segments = segments[len(segments)-maxDepth:]
	}
	parent := ""
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if _, ok := p.Entities[seg]; !ok {
			warnings = append(warnings, "parent segment "+seg+" does not exist, clamped to deepest valid ancestor")
			break
		}
		if seg == child || isDescendant(&p.Hierarchy, child, seg) {
			warnings = append(warnings, "parent segment "+seg+" would create a cycle, refused")
			break
		}
		parent = seg
	}
	return parent, warnings, nil
}

// promoteChildren detaches every child of parent up to root level
// (spec.md §3.3: deleting/deactivating an entity without recursion
// promotes its children).
func promoteChildren(h *Hierarchy, parent string) {
	children := append([]string{}, h.Children[parent]...)
	for _, c := range children {
		delete(h.Parents, c)
	}
	delete(h.Children, parent)
}

// subtreeOf returns parent and every transitive descendant of parent.
func subtreeOf(h *Hierarchy, root string) []string {
	out := []string{root}
	stack := append([]string{}, h.Children[root]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, n)
		stack = append(stack, h.Children[n]...)
	}
	return out
}

// MoveEntity reassigns an entity's parent path.
func (s *Store) MoveEntity(brainSlug, project, entity string, targetPath []string) ([]string, error) {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return nil, err
	}
	var warnings []string
	_, err = s.withBrain(bs, false, func(b *Brain) error {
		p, ok := b.Projects[project]
		if !ok {
			return aerr.New(aerr.KindNotFound, "project %q not found", project)
		}
		if _, ok := p.Entities[entity]; !ok {
			return aerr.New(aerr.KindNotFound, "entity %q not found", entity)
		}
		maxDepth := intConfig(b.Config, "hierarchy.max_depth", MaxHierarchyDepth)
		parent, w, err := resolveParentPath(p, entity, targetPath, maxDepth)
		if err != nil {
			return err
		}
		warnings = w
		if err := setParent(&p.Hierarchy, entity, parent); err != nil {
			return err
		}
		p.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.bus.Emit("brain.entity.moved", map[string]any{"brain": bs, "project": project, "entity": entity})
	return warnings, nil
}

// EntityPathSegments returns the root-to-leaf ancestor chain for
// entity, inclusive, as used by path_under/path_equals filters and the
// resolver's URL helpers.
func (s *Store) EntityPathSegments(brainSlug, project, entity string) ([]string, error) {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return nil, err
	}
	b, err := s.loadReadOnly(bs, false)
	if err != nil {
		return nil, err
	}
	p, ok := b.Projects[project]
	if !ok {
		return nil, aerr.New(aerr.KindNotFound, "project %q not found", project)
	}
	if _, ok := p.Entities[entity]; !ok {
		return nil, aerr.New(aerr.KindNotFound, "entity %q not found", entity)
	}
	var chain []string
	cur := entity
	seen := map[string]bool{}
	for {
		chain = append([]string{cur}, chain...)
		parent, ok := p.Hierarchy.Parents[cur]
		if !ok || seen[parent] {
			break
		}
		seen[parent] = true
		cur = parent
	}
	return chain, nil
}

func intConfig(cfg map[string]any, key string, def int) int {
	v, ok := cfg[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int64:
		return int(n)
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}
