// Package ratelimit implements the rate-limit/security manager from
// spec.md §4.8 (C8): per-client and global sliding-window request
// counters, a failed-auth-attempt counter that triggers client blocks,
// and a manual global lockdown switch. All state lives in the cache
// store (forced writes, so counters survive even with the general
// cache disabled).
//
// Grounded on the teacher's connection-admission counters in
// internal/rpc/server_core.go (atomic active-connection counter gating
// a semaphore), repurposed here from connection admission to
// request-rate admission backed by persistent cache entries instead of
// in-memory atomics, since the window must survive process restarts.
package ratelimit

import (
	"fmt"
	"time"

	"github.com/dominikletica/aaviondb/internal/cachestore"
)

// Config mirrors the security.* settings of spec.md §6.1.
type Config struct {
	RateLimit    int           // requests per client per Window
	GlobalLimit  int           // requests globally per Window
	Window       time.Duration // default 1 minute
	FailedLimit  int           // failed attempts per client per Window before block
	FailedBlock  time.Duration // block duration once FailedLimit is hit
	DDOSLockdown time.Duration // default lockdown duration
}

func defaultConfig() Config {
	return Config{
		RateLimit:    60,
		GlobalLimit:  600,
		Window:       time.Minute,
		FailedLimit:  10,
		FailedBlock:  5 * time.Minute,
		DDOSLockdown: 10 * time.Minute,
	}
}

// Manager enforces the three independent buckets described in
// spec.md §4.8.
type Manager struct {
	cache *cachestore.Store
	cfg   Config
	now   func() time.Time
}

// New constructs a Manager. A zero-value cfg falls back to defaults.
func New(cache *cachestore.Store, cfg Config) *Manager {
	if cfg.Window <= 0 {
		d := defaultConfig()
		cfg = d
	}
	return &Manager{cache: cache, cfg: cfg, now: time.Now}
}

// Decision is the result of a preflight check.
type Decision struct {
	Allowed       bool
	RetryAfterSec int
	Reason        string // "client_rate", "global_rate", "failed_block", "lockdown"
}

const lockdownKey = "security:lockdown"

func clientKey(kind, clientID string) string { return fmt.Sprintf("security:%s:%s", kind, clientID) }

type counter struct {
	WindowStart int64 `json:"window_start"`
	Count       int   `json:"count"`
}

type block struct {
	Until int64 `json:"until"`
}

// Preflight checks whether clientID may proceed right now, consulting
// lockdown, the failed-attempt block, and the per-client/global
// sliding windows in that order.
func (m *Manager) Preflight(clientID string) Decision {
	now := m.now()

	if until, ok := m.readLockdown(); ok && now.Unix() < until {
		return Decision{Allowed: false, RetryAfterSec: int(until - now.Unix()), Reason: "lockdown"}
	}

	if b, ok := m.readBlock(clientKey("blocked", clientID)); ok && now.Unix() < b.Until {
		return Decision{Allowed: false, RetryAfterSec: int(b.Until - now.Unix()), Reason: "failed_block"}
	}

	if d := m.checkWindow(clientKey("rate", clientID), m.cfg.RateLimit, "client_rate", now); !d.Allowed {
		return d
	}
	if d := m.checkWindow(clientKey("rate", "__global__"), m.cfg.GlobalLimit, "global_rate", now); !d.Allowed {
		return d
	}
	return Decision{Allowed: true}
}

// checkWindow reads (and does NOT increment) the sliding window counter
// for key, returning a blocking Decision if limit is already exceeded.
func (m *Manager) checkWindow(key string, limit int, reason string, now time.Time) Decision {
	c, ok := m.readCounter(key)
	if !ok {
		return Decision{Allowed: true}
	}
	if now.Unix()-c.WindowStart >= int64(m.cfg.Window.Seconds()) {
		return Decision{Allowed: true}
	}
	if c.Count >= limit {
		retry := int64(m.cfg.Window.Seconds()) - (now.Unix() - c.WindowStart)
		return Decision{Allowed: false, RetryAfterSec: int(retry), Reason: reason}
	}
	return Decision{Allowed: true}
}

// RegisterAttempt records one request against the per-client and
// global sliding windows, rolling the window over if expired.
func (m *Manager) RegisterAttempt(clientID string) {
	now := m.now()
	m.bumpCounter(clientKey("rate", clientID), now)
	m.bumpCounter(clientKey("rate", "__global__"), now)
}

func (m *Manager) bumpCounter(key string, now time.Time) {
	c, ok := m.readCounter(key)
	if !ok || now.Unix()-c.WindowStart >= int64(m.cfg.Window.Seconds()) {
		c = counter{WindowStart: now.Unix(), Count: 0}
	}
	c.Count++
	m.cache.Put(key, c, cachestore.PutOptions{Force: true, Tags: []string{"security"}, TTL: m.cfg.Window * 2})
}

// RegisterSuccess clears any failed-attempt counter for clientID (a
// successful auth resets the failure streak).
func (m *Manager) RegisterSuccess(clientID string) {
	m.cache.Invalidate(clientKey("failed", clientID))
}

// RegisterFailure increments the failed-attempt counter for clientID
// and, once FailedLimit is reached within the window, installs a block
// lasting FailedBlock.
func (m *Manager) RegisterFailure(clientID string) {
	now := m.now()
	key := clientKey("failed", clientID)
	c, ok := m.readCounter(key)
	if !ok || now.Unix()-c.WindowStart >= int64(m.cfg.Window.Seconds()) {
		c = counter{WindowStart: now.Unix(), Count: 0}
	}
	c.Count++
	m.cache.Put(key, c, cachestore.PutOptions{Force: true, Tags: []string{"security"}, TTL: m.cfg.Window * 2})
	if c.Count >= m.cfg.FailedLimit {
		until := now.Add(m.cfg.FailedBlock).Unix()
		m.cache.Put(clientKey("blocked", clientID), block{Until: until}, cachestore.PutOptions{
			Force: true, Tags: []string{"security"}, TTL: m.cfg.FailedBlock,
		})
	}
}

// Lockdown forces a global lockdown for the given duration (defaulting
// to cfg.DDOSLockdown). During lockdown Preflight rejects every client.
func (m *Manager) Lockdown(d time.Duration) {
	if d <= 0 {
		d = m.cfg.DDOSLockdown
	}
	until := m.now().Add(d).Unix()
	m.cache.Put(lockdownKey, block{Until: until}, cachestore.PutOptions{Force: true, Tags: []string{"security"}, TTL: d})
}

// Purge removes every security:*-tagged cache entry, lifting lockdown,
// blocks, and counters immediately.
func (m *Manager) Purge() error {
	return m.cache.InvalidateByTag("security")
}

func (m *Manager) readCounter(key string) (counter, bool) {
	v, ok := m.cache.Get(key)
	if !ok {
		return counter{}, false
	}
	return decodeCounter(v)
}

func (m *Manager) readBlock(key string) (block, bool) {
	v, ok := m.cache.Get(key)
	if !ok {
		return block{}, false
	}
	return decodeBlock(v)
}

func (m *Manager) readLockdown() (int64, bool) {
	b, ok := m.readBlock(lockdownKey)
	if !ok {
		return 0, false
	}
	return b.Until, true
}

// decodeCounter/decodeBlock tolerate the map[string]any shape the cache
// store's JSON round trip produces.
func decodeCounter(v any) (counter, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return counter{}, false
	}
	return counter{WindowStart: toInt64(m["window_start"]), Count: int(toInt64(m["count"]))}, true
}

func decodeBlock(v any) (block, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return block{}, false
	}
	return block{Until: toInt64(m["until"])}, true
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}
