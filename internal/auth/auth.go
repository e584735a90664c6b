// Package auth implements the token/scope manager described in
// spec.md §3.4/§4.7 (C7): token generation and hashing, the bootstrap
// key lifecycle, REST admission gating, and the process-local scope
// binding that store operations consult for read/write permission.
//
// There is no direct teacher analogue for token auth (BeadsLog has no
// HTTP-facing key system); this package follows the teacher's general
// struct-table-plus-error-wrapping idiom seen throughout
// internal/rpc, applied to a new domain.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/dominikletica/aaviondb/internal/aerr"
	"github.com/dominikletica/aaviondb/internal/eventbus"
)

// ScopeMode is one of the four scope modes spec.md §3.4 defines.
type ScopeMode string

const (
	ScopeALL ScopeMode = "ALL"
	ScopeRW  ScopeMode = "RW"
	ScopeRO  ScopeMode = "RO"
	ScopeWO  ScopeMode = "WO"
)

func validMode(m ScopeMode) bool {
	switch m {
	case ScopeALL, ScopeRW, ScopeRO, ScopeWO:
		return true
	}
	return false
}

// Scope grants access to a set of projects under a mode.
type Scope struct {
	Mode     ScopeMode `json:"mode"`
	Projects []string  `json:"projects"`
}

// CanRead reports whether the scope permits reads. Every defined mode
// currently permits reads (RO exists only to forbid writes).
func (s Scope) CanRead(project string) bool {
	return s.allowsProject(project)
}

// CanWrite reports whether the scope permits writes to project. WO is
// preserved as a distinct mode at the type level per spec.md's Open
// Question 2 even though no write-only code path exists yet: it is
// treated exactly like RW here, same as ALL.
func (s Scope) CanWrite(project string) bool {
	if s.Mode == ScopeRO {
		return false
	}
	return s.allowsProject(project)
}

func (s Scope) allowsProject(project string) bool {
	for _, p := range s.Projects {
		if p == "*" || p == project {
			return true
		}
	}
	return false
}

// KeyEntry is one registered auth key (spec.md §3.4).
type KeyEntry struct {
	Hash         string    `json:"hash"`
	Status       string    `json:"status"` // active | revoked
	CreatedAt    time.Time `json:"created_at"`
	CreatedBy    string    `json:"created_by,omitempty"`
	TokenPreview string    `json:"token_preview"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	Label        string    `json:"label,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Scope        Scope     `json:"scope"`
}

// APIState mirrors spec.md §3.4's "api" block.
type APIState struct {
	Enabled        bool       `json:"enabled"`
	LastEnabledAt  *time.Time `json:"last_enabled_at,omitempty"`
	LastDisabledAt *time.Time `json:"last_disabled_at,omitempty"`
	LastRequestAt  *time.Time `json:"last_request_at,omitempty"`
	LastActor      string     `json:"last_actor,omitempty"`
	LastReason     string     `json:"last_reason,omitempty"`
}

// State is the full persisted auth document (system brain's "auth" +
// "api" fields, held together for convenience).
type State struct {
	BootstrapKeyHash string               `json:"bootstrap_key"`
	BootstrapActive  bool                 `json:"bootstrap_active"`
	Keys             map[string]*KeyEntry `json:"keys"`
	LastRotationAt   *time.Time           `json:"last_rotation_at,omitempty"`
	API              APIState             `json:"api"`
}

// Persister writes the auth state back through the brain store's
// read-modify-write path. The manager never touches the filesystem
// directly — persistence is the brain store's concern (C4).
type Persister func(*State) error

// Manager owns State and the process-local scope binding stack.
type Manager struct {
	mu        sync.Mutex
	state     *State
	persist   Persister
	keyLength int
	bus       *eventbus.Bus
	now       func() time.Time
}

// Options configures a new Manager.
type Options struct {
	KeyLength int // default 16, clamped to >= 8
	Bus       *eventbus.Bus
	Persist   Persister
}

// New constructs a Manager over an already-loaded state (the brain
// store is responsible for loading/bootstrapping the initial bootstrap
// key before calling this).
func New(state *State, opts Options) *Manager {
	if opts.KeyLength < 8 {
		opts.KeyLength = 16
	}
	bus := opts.Bus
	if bus == nil {
		bus = eventbus.New(nil)
	}
	persist := opts.Persist
	if persist == nil {
		persist = func(*State) error { return nil }
	}
	return &Manager{state: state, persist: persist, keyLength: opts.KeyLength, bus: bus, now: time.Now}
}

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// generateToken returns a cryptographically random alphanumeric token
// of the given length.
func generateToken(length int) (string, error) {
	if length < 8 {
		length = 8
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", aerr.Wrap(aerr.KindHandlerException, err, "failed to generate token")
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(out), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func isHash(identifier string) bool {
	if len(identifier) != 64 {
		return false
	}
	for _, c := range identifier {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// GrantOptions configures Grant.
type GrantOptions struct {
	Scope  Scope
	Label  string
	Length int
	Actor  string
}

// GrantResult is returned to the caller exactly once: the plaintext
// token is never stored or retrievable again.
type GrantResult struct {
	Token string    `json:"token"`
	Hash  string    `json:"hash"`
	Entry *KeyEntry `json:"meta"`
}

// Grant mints a new key under scope and persists it.
func (m *Manager) Grant(opts GrantOptions) (GrantResult, error) {
	if !validMode(opts.Scope.Mode) {
		return GrantResult{}, aerr.New(aerr.KindInvalidParameter, "invalid scope mode %q", opts.Scope.Mode)
	}
	if len(opts.Scope.Projects) == 0 {
		opts.Scope.Projects = []string{"*"}
	}
	length := opts.Length
	if length < 8 {
		length = m.keyLength
	}
	token, err := generateToken(length)
	if err != nil {
		return GrantResult{}, err
	}
	hash := hashToken(token)
	preview := token
	if len(preview) > 4 {
		preview = preview[:4]
	}
	entry := &KeyEntry{
		Hash:         hash,
		Status:       "active",
		CreatedAt:    m.now(),
		CreatedBy:    opts.Actor,
		TokenPreview: preview + "...",
		Label:        opts.Label,
		Scope:        opts.Scope,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Keys == nil {
		m.state.Keys = map[string]*KeyEntry{}
	}
	m.state.Keys[hash] = entry
	if err := m.persist(m.state); err != nil {
		return GrantResult{}, err
	}
	m.bus.Emit("auth.key.created", map[string]any{"hash": hash, "label": opts.Label})
	return GrantResult{Token: token, Hash: hash, Entry: entry}, nil
}

// List returns a copy of registered keys, sorted by hash for
// deterministic output, optionally including revoked keys.
func (m *Manager) List(includeRevoked bool) []*KeyEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*KeyEntry, 0, len(m.state.Keys))
	for _, k := range m.state.Keys {
		if !includeRevoked && k.Status != "active" {
			continue
		}
		copy := *k
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out
}

func normalizeIdentifier(identifier string) string {
	if isHash(identifier) {
		return identifier
	}
	return hashToken(identifier)
}

// Revoke marks the key matching identifier (token or hash) as revoked.
// Revoking the last active non-bootstrap key forces api.enabled = false
// and re-activates the bootstrap key (spec.md §3.4 invariant).
func (m *Manager) Revoke(identifier string) (bool, error) {
	hash := normalizeIdentifier(identifier)
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.state.Keys[hash]
	if !ok || entry.Status != "active" {
		return false, nil
	}
	entry.Status = "revoked"
	if m.activeNonBootstrapCountLocked() == 0 {
		m.state.API.Enabled = false
		m.state.BootstrapActive = true
		now := m.now()
		m.state.API.LastDisabledAt = &now
	}
	if err := m.persist(m.state); err != nil {
		return false, err
	}
	m.bus.Emit("auth.key.revoked", map[string]any{"hash": hash})
	return true, nil
}

func (m *Manager) activeNonBootstrapCountLocked() int {
	n := 0
	for hash, k := range m.state.Keys {
		if k.Status == "active" && hash != m.state.BootstrapKeyHash {
			n++
		}
	}
	return n
}

// Reset revokes every active key, disables REST, and re-enables the
// bootstrap key (spec.md §3.4: "auth reset").
func (m *Manager) Reset() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, k := range m.state.Keys {
		if k.Status == "active" {
			k.Status = "revoked"
			count++
		}
	}
	m.state.API.Enabled = false
	m.state.BootstrapActive = true
	now := m.now()
	m.state.API.LastDisabledAt = &now
	if err := m.persist(m.state); err != nil {
		return 0, err
	}
	m.bus.Emit("auth.reset", map[string]any{"revoked_count": count})
	return count, nil
}

// SetApiEnabled toggles REST admission. Enabling is a no-op (returns
// changed=false) when no active non-bootstrap key exists.
func (m *Manager) SetApiEnabled(enabled bool, actor, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if enabled == m.state.API.Enabled {
		return false, nil
	}
	if enabled && m.activeNonBootstrapCountLocked() == 0 {
		return false, nil
	}
	m.state.API.Enabled = enabled
	now := m.now()
	if enabled {
		m.state.API.LastEnabledAt = &now
	} else {
		m.state.API.LastDisabledAt = &now
	}
	m.state.API.LastActor = actor
	m.state.API.LastReason = reason
	if err := m.persist(m.state); err != nil {
		return false, err
	}
	m.bus.Emit("api.state.changed", map[string]any{"enabled": enabled, "actor": actor, "reason": reason})
	return true, nil
}

func (m *Manager) IsApiEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.API.Enabled
}

// UpdateBootstrapKey rotates the bootstrap key's hash and/or toggles
// whether it is currently active.
func (m *Manager) UpdateBootstrapKey(token string, active *bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token != "" {
		m.state.BootstrapKeyHash = hashToken(token)
		now := m.now()
		m.state.LastRotationAt = &now
	}
	if active != nil {
		m.state.BootstrapActive = *active
	}
	if err := m.persist(m.state); err != nil {
		return err
	}
	m.bus.Emit("auth.bootstrap.updated", nil)
	return nil
}

// TouchAuthKey is the post-successful-request hook: updates the key's
// last_used_at, api.last_request_at, and clears bootstrap_active.
func (m *Manager) TouchAuthKey(hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if k, ok := m.state.Keys[hash]; ok {
		k.LastUsedAt = &now
	}
	m.state.API.LastRequestAt = &now
	m.state.BootstrapActive = false
	if err := m.persist(m.state); err != nil {
		return err
	}
	m.bus.Emit("auth.key.updated", map[string]any{"hash": hash})
	return nil
}

// Binding is the process-local, per-task scope binding that store
// operations consult for permission checks (spec.md §4.7/§5).
type Binding struct {
	KeyHash string
	Scope   Scope
}

// AdmitREST implements the REST admission sequence from spec.md §4.7.
// token is the raw bearer token presented by the client, or "" if none.
func (m *Manager) AdmitREST(token string) (Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.API.Enabled {
		return Binding{}, aerr.New(aerr.KindAPIDisabled, "REST API is disabled")
	}
	if token == "" {
		return Binding{}, aerr.New(aerr.KindMissingToken, "no token presented")
	}
	hash := hashToken(token)
	entry, ok := m.state.Keys[hash]
	if !ok || entry.Status != "active" {
		return Binding{}, aerr.New(aerr.KindInvalidToken, "token not recognized")
	}
	if hash == m.state.BootstrapKeyHash {
		return Binding{}, aerr.New(aerr.KindBootstrapBlocked, "bootstrap key is not valid over REST")
	}
	if !validMode(entry.Scope.Mode) {
		return Binding{}, aerr.New(aerr.KindScopeDenied, "key scope mode %q not recognized", entry.Scope.Mode)
	}
	return Binding{KeyHash: hash, Scope: entry.Scope}, nil
}

// BootstrapBinding returns the unrestricted scope binding implicit on
// CLI/embedded entry points.
func BootstrapBinding() Binding {
	return Binding{Scope: Scope{Mode: ScopeALL, Projects: []string{"*"}}}
}
