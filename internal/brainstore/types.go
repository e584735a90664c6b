// Package brainstore implements the brain store (spec.md C4): loading,
// mutating, and persisting the two canonical JSON documents ("brains")
// that hold every project, entity, version, and system-level
// configuration AavionDB manages.
//
// Grounded on the teacher's internal/storage/storage.go
// (Transaction-style read-modify-write locking around a single JSON
// document) and internal/merge/merge.go (recursive conflict
// resolution idiom, here reshaped into spec.md §4.4's null-removes /
// object-merges / scalar-replaces rule instead of BeadsLog's
// tombstone/TTL merge).
package brainstore

import "time"

// Meta is the {slug, uuid?, schema_version, created_at, updated_at}
// header shared by both brain variants (spec.md §3.2).
type Meta struct {
	Slug          string    `json:"slug"`
	UUID          string    `json:"uuid,omitempty"`
	SchemaVersion int       `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CommitEntry is one entry of a brain's secondary commits index.
type CommitEntry struct {
	Project          string    `json:"project"`
	Entity           string    `json:"entity"`
	Version          string    `json:"version"`
	Hash             string    `json:"hash"`
	Timestamp        time.Time `json:"timestamp"`
	Merge            bool      `json:"merge"`
	Fieldset         string    `json:"fieldset,omitempty"`
	FieldsetVersion  string    `json:"fieldset_version,omitempty"`
	SourceReference  string    `json:"source_reference,omitempty"`
	FieldsetRef      string    `json:"fieldset_reference,omitempty"`
}

// VersionRecord is one entity version (spec.md §3.3).
type VersionRecord struct {
	Version         string         `json:"version"`
	Hash            string         `json:"hash"`
	Commit          string         `json:"commit"`
	CommittedAt     time.Time      `json:"committed_at"`
	Status          string         `json:"status"` // active | inactive
	Payload         map[string]any `json:"payload"`
	Meta            map[string]any `json:"meta,omitempty"`
	Merge           bool           `json:"merge"`
	FieldsetVersion string         `json:"fieldset_version,omitempty"`
	SourceReference string         `json:"source_reference,omitempty"`
	FieldsetRef     string         `json:"fieldset_reference,omitempty"`
}

// Entity holds a slug's full version history (spec.md §3.3).
type Entity struct {
	Slug            string                    `json:"slug"`
	Status          string                    `json:"status"` // active | inactive | archived
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
	ArchivedAt      *time.Time                `json:"archived_at,omitempty"`
	ActiveVersion   string                    `json:"active_version,omitempty"`
	Fieldset        string                    `json:"fieldset,omitempty"`
	FieldsetVersion string                    `json:"fieldset_version,omitempty"`
	Versions        map[string]*VersionRecord `json:"versions"`
}

// Hierarchy is the parent/children forest over a project's entities
// (spec.md §3.3).
type Hierarchy struct {
	Parents  map[string]string   `json:"parents"`
	Children map[string][]string `json:"children"`
}

func newHierarchy() Hierarchy {
	return Hierarchy{Parents: map[string]string{}, Children: map[string][]string{}}
}

// Project holds a project's entities and hierarchy (spec.md §3.3).
type Project struct {
	Slug        string             `json:"slug"`
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Status      string             `json:"status"` // active | archived
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	ArchivedAt  *time.Time         `json:"archived_at,omitempty"`
	Entities    map[string]*Entity `json:"entities"`
	Hierarchy   Hierarchy          `json:"hierarchy"`
}

// SchedulerTask is one registered scheduler task (spec.md §3.6).
type SchedulerTask struct {
	Slug        string    `json:"slug"`
	Command     string    `json:"command"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	LastStatus  string    `json:"last_status,omitempty"`
	LastMessage string    `json:"last_message,omitempty"`
}

// SchedulerRunResult is one task's outcome within a scheduler.log entry.
type SchedulerRunResult struct {
	Slug       string `json:"slug"`
	Command    string `json:"command"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Response   any    `json:"response,omitempty"`
}

// SchedulerLogEntry is one scheduler run (spec.md §3.6).
type SchedulerLogEntry struct {
	Timestamp  time.Time             `json:"timestamp"`
	DurationMs int64                 `json:"duration_ms"`
	Results    []SchedulerRunResult  `json:"results"`
}

// Scheduler holds the system brain's scheduler state.
type Scheduler struct {
	Tasks map[string]*SchedulerTask `json:"tasks"`
	Log   []SchedulerLogEntry       `json:"log"`
}

// Brain is the shared shape of both brain variants. System-only fields
// are zero-valued/empty on user brains.
type Brain struct {
	Meta     Meta                `json:"meta"`
	Projects map[string]*Project `json:"projects"`
	Commits  map[string]*CommitEntry `json:"commits"`
	Config   map[string]any      `json:"config"`

	// System-brain-only fields below.
	State     *StateBlock      `json:"state,omitempty"`
	Auth      *AuthBlock       `json:"auth,omitempty"`
	API       *APIBlock        `json:"api,omitempty"`
	Export    *ExportBlock     `json:"export,omitempty"`
	Scheduler *Scheduler       `json:"scheduler,omitempty"`
	Security  map[string]any   `json:"security,omitempty"`
	Cache     *CacheBlock      `json:"cache,omitempty"`
}

// StateBlock carries the system brain's "state" field.
type StateBlock struct {
	ActiveBrain string `json:"active_brain"`
}

// AuthBlock mirrors auth.State's JSON shape so it round-trips through
// the brain document without internal/auth importing brainstore.
type AuthBlock struct {
	BootstrapKey    string                     `json:"bootstrap_key"`
	BootstrapActive bool                       `json:"bootstrap_active"`
	Keys            map[string]map[string]any  `json:"keys"`
	LastRotationAt  *time.Time                 `json:"last_rotation_at,omitempty"`
}

// APIBlock mirrors auth.APIState's JSON shape.
type APIBlock struct {
	Enabled        bool       `json:"enabled"`
	LastEnabledAt  *time.Time `json:"last_enabled_at,omitempty"`
	LastDisabledAt *time.Time `json:"last_disabled_at,omitempty"`
	LastRequestAt  *time.Time `json:"last_request_at,omitempty"`
	LastActor      string     `json:"last_actor,omitempty"`
	LastReason     string     `json:"last_reason,omitempty"`
}

// ExportBlock holds the system brain's preset registry.
type ExportBlock struct {
	Presets map[string]map[string]any `json:"presets"`
}

// CacheBlock holds the system brain's cache config.
type CacheBlock struct {
	Active bool `json:"active"`
	TTL    int  `json:"ttl"`
}

func newBrain(slug string, isSystem bool, now time.Time) *Brain {
	b := &Brain{
		Meta: Meta{
			Slug:          slug,
			SchemaVersion: 1,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		Projects: map[string]*Project{},
		Commits:  map[string]*CommitEntry{},
		Config:   map[string]any{},
	}
	if isSystem {
		b.Meta.UUID = newUUIDFunc()
		b.State = &StateBlock{ActiveBrain: "default"}
		b.Auth = &AuthBlock{Keys: map[string]map[string]any{}}
		b.API = &APIBlock{}
		b.Export = &ExportBlock{Presets: map[string]map[string]any{}}
		b.Scheduler = &Scheduler{Tasks: map[string]*SchedulerTask{}}
		b.Security = map[string]any{}
		b.Cache = &CacheBlock{Active: true, TTL: 300}
	}
	return b
}
