package brainstore

import (
	"os"
	"strings"

	"github.com/dominikletica/aaviondb/internal/aerr"
	"github.com/dominikletica/aaviondb/internal/pathlocator"
)

// EnsureSystemBrain loads (or creates) the system brain and applies
// overrides as a read-merge-write so newly added default config keys
// land on an existing brain without clobbering user-set values
// (spec.md §4.15 bootstrap step 3).
func (s *Store) EnsureSystemBrain(overrides map[string]any) (*Brain, error) {
	return s.withBrain("system", true, func(b *Brain) error {
		if b.Config == nil {
			b.Config = map[string]any{}
		}
		for k, v := range overrides {
			if _, exists := b.Config[k]; !exists {
				b.Config[k] = v
			}
		}
		if b.State == nil {
			b.State = &StateBlock{ActiveBrain: "default"}
		}
		if b.Auth == nil {
			b.Auth = &AuthBlock{Keys: map[string]map[string]any{}}
		}
		if b.API == nil {
			b.API = &APIBlock{}
		}
		if b.Export == nil {
			b.Export = &ExportBlock{Presets: map[string]map[string]any{}}
		}
		if b.Scheduler == nil {
			b.Scheduler = &Scheduler{Tasks: map[string]*SchedulerTask{}}
		}
		if b.Security == nil {
			b.Security = map[string]any{}
		}
		if b.Cache == nil {
			b.Cache = &CacheBlock{Active: true, TTL: 300}
		}
		if b.Meta.UUID == "" {
			b.Meta.UUID = newUUIDFunc()
		}
		return nil
	})
}

// EnsureActiveBrain returns the active user brain's slug, creating
// "default.brain" if no brain exists yet.
func (s *Store) EnsureActiveBrain() (string, error) {
	sys, err := s.loadReadOnly("system", true)
	if err != nil {
		return "", err
	}
	active := "default"
	if sys.State != nil && sys.State.ActiveBrain != "" {
		active = sys.State.ActiveBrain
	}
	path := s.loc.UserBrainPath(active)
	if _, err := os.Stat(path); err == nil {
		return active, nil
	}
	if _, err := s.CreateBrain(active, true); err != nil {
		return "", err
	}
	return active, nil
}

// ListBrains returns every user brain slug present on disk, sorted.
func (s *Store) ListBrains() ([]string, error) {
	entries, err := os.ReadDir(s.loc.UserStorageDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, aerr.Wrap(aerr.KindStorageFailure, err, "list user brains")
	}
	var slugs []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".brain") {
			continue
		}
		slugs = append(slugs, strings.TrimSuffix(e.Name(), ".brain"))
	}
	return slugs, nil
}

// CreateBrain creates a new empty user brain at slug, optionally
// activating it.
func (s *Store) CreateBrain(slug string, activate bool) (string, error) {
	slug = pathlocator.SanitizeSlug(slug)
	if pathlocator.IsReserved(slug) {
		return "", aerr.New(aerr.KindInvalidSlug, "brain slug %q is reserved", slug)
	}
	path := s.loc.UserBrainPath(slug)
	if _, err := os.Stat(path); err == nil {
		return "", aerr.New(aerr.KindInvalidParameter, "brain %q already exists", slug)
	}
	if _, err := s.withBrain(slug, false, func(b *Brain) error { return nil }); err != nil {
		return "", err
	}
	if activate {
		if err := s.SetActiveBrain(slug); err != nil {
			return "", err
		}
	}
	s.bus.Emit("brain.created", map[string]any{"slug": slug})
	return slug, nil
}

// SetActiveBrain points the system brain's state.active_brain at slug.
// slug must already exist on disk.
func (s *Store) SetActiveBrain(slug string) error {
	slug = pathlocator.SanitizeSlug(slug)
	if _, err := os.Stat(s.loc.UserBrainPath(slug)); err != nil {
		return aerr.New(aerr.KindNotFound, "brain %q not found", slug)
	}
	_, err := s.withBrain("system", true, func(b *Brain) error {
		if b.State == nil {
			b.State = &StateBlock{}
		}
		b.State.ActiveBrain = slug
		return nil
	})
	return err
}

// DeleteBrain removes a user brain file. Refuses "system" and the
// currently active brain.
func (s *Store) DeleteBrain(slug string) error {
	slug = pathlocator.SanitizeSlug(slug)
	if pathlocator.IsReserved(slug) {
		return aerr.New(aerr.KindInvalidSlug, "cannot delete the system brain")
	}
	sys, err := s.loadReadOnly("system", true)
	if err != nil {
		return err
	}
	if sys.State != nil && sys.State.ActiveBrain == slug {
		return aerr.New(aerr.KindInvalidParameter, "cannot delete the currently active brain %q", slug)
	}
	path := s.loc.UserBrainPath(slug)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return aerr.New(aerr.KindNotFound, "brain %q not found", slug)
		}
		return aerr.Wrap(aerr.KindStorageFailure, err, "delete brain file")
	}
	s.bus.Emit("brain.deleted", map[string]any{"slug": slug})
	return nil
}

// resolveSlugOrActive resolves an optional slug parameter to a concrete
// user brain slug, defaulting to the currently active brain.
func (s *Store) resolveSlugOrActive(slug string) (string, error) {
	if slug != "" {
		return pathlocator.SanitizeSlug(slug), nil
	}
	return s.EnsureActiveBrain()
}
