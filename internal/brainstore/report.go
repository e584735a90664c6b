package brainstore

import (
	"context"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/dominikletica/aaviondb/internal/aerr"
)

// BrainReport is a human-oriented summary of a brain's contents.
type BrainReport struct {
	Slug          string `json:"slug"`
	ProjectCount  int    `json:"project_count"`
	EntityCount   int    `json:"entity_count"`
	VersionCount  int    `json:"version_count"`
	CommitCount   int    `json:"commit_count"`
	Bytes         int64  `json:"bytes"`
	HumanSize     string `json:"human_size"`
}

// BrainReportFor builds a BrainReport for the named (or active) user
// brain. Grounded on the teacher's reliance on go-humanize for
// human-readable size/time rendering throughout its report commands.
func (s *Store) BrainReportFor(slug string) (*BrainReport, error) {
	bs, err := s.resolveSlugOrActive(slug)
	if err != nil {
		return nil, err
	}
	b, err := s.loadReadOnly(bs, false)
	if err != nil {
		return nil, err
	}
	report := &BrainReport{Slug: bs, ProjectCount: len(b.Projects), CommitCount: len(b.Commits)}
	for _, p := range b.Projects {
		report.EntityCount += len(p.Entities)
		for _, e := range p.Entities {
			report.VersionCount += len(e.Versions)
		}
	}
	if info, err := os.Stat(s.loc.UserBrainPath(bs)); err == nil {
		report.Bytes = info.Size()
	}
	report.HumanSize = humanize.Bytes(uint64(report.Bytes))
	return report, nil
}

// IntegrityIssue is one consistency problem found by an integrity scan.
type IntegrityIssue struct {
	Project string `json:"project,omitempty"`
	Entity  string `json:"entity,omitempty"`
	Version string `json:"version,omitempty"`
	Reason  string `json:"reason"`
}

// IntegrityReport summarizes the issues found scanning one or more
// brains.
type IntegrityReport struct {
	Slug   string           `json:"slug"`
	Issues []IntegrityIssue `json:"issues"`
}

// IntegrityReportFor scans a single brain for the invariants of spec.md
// §3.2/§3.3: exactly one active version per entity, commits agreeing
// with their version records, hierarchy parent/children consistency.
func (s *Store) IntegrityReportFor(slug string) (*IntegrityReport, error) {
	bs, err := s.resolveSlugOrActive(slug)
	if err != nil {
		return nil, err
	}
	b, err := s.loadReadOnly(bs, false)
	if err != nil {
		return nil, err
	}
	return scanIntegrity(bs, b), nil
}

// IntegrityReport scans the system brain plus every user brain,
// reading brains concurrently (bounded fan-out) since each scan is an
// independent file read with no shared mutable state.
func (s *Store) IntegrityReport() ([]*IntegrityReport, error) {
	sys, err := s.loadReadOnly("system", true)
	if err != nil {
		return nil, err
	}

	slugs, err := s.ListBrains()
	if err != nil {
		return nil, err
	}

	reports := make([]*IntegrityReport, len(slugs))
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(8)
	for i, slug := range slugs {
		i, slug := i, slug
		g.Go(func() error {
			b, err := s.loadReadOnly(slug, false)
			if err != nil {
				return aerr.Wrap(aerr.KindStorageFailure, err, "load brain %q for integrity scan", slug)
			}
			reports[i] = scanIntegrity(slug, b)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*IntegrityReport, 0, len(reports)+1)
	out = append(out, scanIntegrity("system", sys))
	out = append(out, reports...)
	return out, nil
}

func scanIntegrity(slug string, b *Brain) *IntegrityReport {
	report := &IntegrityReport{Slug: slug}
	for pSlug, p := range b.Projects {
		for eSlug, e := range p.Entities {
			activeCount := 0
			for vk, v := range e.Versions {
				if v.Status == "active" {
					activeCount++
				}
				if c, ok := b.Commits[v.Commit]; !ok {
					report.Issues = append(report.Issues, IntegrityIssue{
						Project: pSlug, Entity: eSlug, Version: vk, Reason: "version has no matching commits entry",
					})
				} else if c.Project != pSlug || c.Entity != eSlug || c.Version != vk {
					report.Issues = append(report.Issues, IntegrityIssue{
						Project: pSlug, Entity: eSlug, Version: vk, Reason: "commit entry does not match version triple",
					})
				}
			}
			if activeCount > 1 {
				report.Issues = append(report.Issues, IntegrityIssue{
					Project: pSlug, Entity: eSlug, Reason: "more than one active version",
				})
			}
			if e.ActiveVersion != "" {
				if _, ok := e.Versions[e.ActiveVersion]; !ok {
					report.Issues = append(report.Issues, IntegrityIssue{
						Project: pSlug, Entity: eSlug, Reason: "active_version does not reference an existing version",
					})
				}
			}
		}
		for child, parent := range p.Hierarchy.Parents {
			found := false
			for _, c := range p.Hierarchy.Children[parent] {
				if c == child {
					found = true
					break
				}
			}
			if !found {
				report.Issues = append(report.Issues, IntegrityIssue{
					Project: pSlug, Entity: child, Reason: "parent/children hierarchy inconsistency",
				})
			}
		}
	}
	return report
}
