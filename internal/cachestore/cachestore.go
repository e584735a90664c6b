// Package cachestore implements the filesystem JSON cache (spec.md C9):
// one file per entry, a tag index, TTL expiry, and forced writes that
// bypass the enabled flag (used by the rate-limit/security manager's
// counters, which must persist even when the general cache is
// disabled). Entries are persisted through internal/atomicfile, the
// teacher's atomic-write idiom, applied here to small single-entry
// files instead of whole brain documents.
package cachestore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dominikletica/aaviondb/internal/atomicfile"
	"github.com/dominikletica/aaviondb/internal/codec"
	"github.com/dominikletica/aaviondb/internal/eventbus"
)

// Entry is the on-disk shape of one cache file.
type Entry struct {
	Key       string   `json:"key"`
	Value     any      `json:"value"`
	Tags      []string `json:"tags"`
	ExpiresAt int64    `json:"expires_at"` // unix seconds; 0 = no expiry
}

// Statistics summarizes the cache directory's contents (spec §4.9).
type Statistics struct {
	Entries       int            `json:"entries"`
	Bytes         int64          `json:"bytes"`
	Tags          map[string]int `json:"tags"`
	ExpiredRemoved int           `json:"expired_removed"`
}

// Store is a filesystem-backed JSON cache rooted at Dir.
type Store struct {
	mu      sync.Mutex
	dir     string
	enabled bool
	ttl     time.Duration
	writer  *atomicfile.Writer
	now     func() time.Time
}

// New creates a Store rooted at dir with the given default enabled flag
// and TTL (seconds, per spec §3.6 cache config). bus may be nil; cache
// writes then emit their atomicfile events to a no-op bus.
func New(dir string, enabled bool, ttlSeconds int, bus *eventbus.Bus) *Store {
	if ttlSeconds <= 0 {
		ttlSeconds = 300
	}
	return &Store{
		dir:     dir,
		enabled: enabled,
		ttl:     time.Duration(ttlSeconds) * time.Second,
		writer:  atomicfile.NewWriter(bus),
		now:     time.Now,
	}
}

func (s *Store) SetEnabled(enabled bool) { s.mu.Lock(); s.enabled = enabled; s.mu.Unlock() }
func (s *Store) Enabled() bool           { s.mu.Lock(); defer s.mu.Unlock(); return s.enabled }

// SetTTL updates the default TTL; seconds must be > 0.
func (s *Store) SetTTL(seconds int) error {
	if seconds <= 0 {
		return errInvalidTTL
	}
	s.mu.Lock()
	s.ttl = time.Duration(seconds) * time.Second
	s.mu.Unlock()
	return nil
}

var errInvalidTTL = fmtErr("ttl must be > 0 seconds")

type simpleErr string

func (e simpleErr) Error() string { return string(e) }
func fmtErr(msg string) error     { return simpleErr(msg) }

func (s *Store) pathFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".json")
}

// Get returns the cached value for key. It misses (false) if the cache
// is disabled, the file is absent, or the entry has expired — in which
// case the expired file is lazily deleted.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	enabled := s.enabled
	s.mu.Unlock()
	if !enabled {
		return nil, false
	}
	return s.getForce(key)
}

func (s *Store) getForce(key string) (any, bool) {
	path := s.pathFor(key)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	if e.ExpiresAt != 0 && s.now().Unix() > e.ExpiresAt {
		os.Remove(path)
		return nil, false
	}
	return e.Value, true
}

// PutOptions configures a Put call.
type PutOptions struct {
	TTL   time.Duration // 0 means use the store default
	Tags  []string
	Force bool // bypass the enabled flag (used by security counters)
}

// Put stores value under key. When the cache is disabled and Force is
// false, this is a no-op (per spec §4.9).
func (s *Store) Put(key string, value any, opts PutOptions) error {
	s.mu.Lock()
	enabled := s.enabled
	ttl := s.ttl
	s.mu.Unlock()
	if !enabled && !opts.Force {
		return nil
	}
	if opts.TTL > 0 {
		ttl = opts.TTL
	}
	var expires int64
	if ttl > 0 {
		expires = s.now().Add(ttl).Unix()
	}
	e := Entry{Key: key, Value: value, Tags: opts.Tags, ExpiresAt: expires}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	decoded, err := codec.Decode(raw)
	if err != nil {
		return err
	}
	canonical, err := codec.Encode(decoded)
	if err != nil {
		return err
	}
	return s.writer.Write(s.pathFor(key), canonical)
}

// Invalidate removes the entry for key, if any.
func (s *Store) Invalidate(key string) error {
	err := os.Remove(s.pathFor(key))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// InvalidateByTag removes every entry carrying tag. Tag lookup is
// O(entries) by design (spec §4.9): each file carries its own tags, and
// a larger index would require a second, independently-corruptible
// state file.
func (s *Store) InvalidateByTag(tag string) error {
	entries, err := s.readAllEntries()
	if err != nil {
		return err
	}
	for path, e := range entries {
		for _, t := range e.Tags {
			if t == tag {
				os.Remove(path)
				break
			}
		}
	}
	return nil
}

func (s *Store) readAllEntries() (map[string]Entry, error) {
	out := map[string]Entry{}
	files, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, f.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		out[path] = e
	}
	return out, nil
}

// CleanupExpired removes every entry whose TTL has elapsed, returning
// the count removed.
func (s *Store) CleanupExpired() (int, error) {
	entries, err := s.readAllEntries()
	if err != nil {
		return 0, err
	}
	removed := 0
	now := s.now().Unix()
	for path, e := range entries {
		if e.ExpiresAt != 0 && now > e.ExpiresAt {
			os.Remove(path)
			removed++
		}
	}
	return removed, nil
}

// Statistics reports entry count, total bytes, and per-tag counts.
func (s *Store) Statistics() (Statistics, error) {
	stats := Statistics{Tags: map[string]int{}}
	files, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, err
	}
	now := s.now().Unix()
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, f.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		info, err := f.Info()
		if err == nil {
			stats.Bytes += info.Size()
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		if e.ExpiresAt != 0 && now > e.ExpiresAt {
			stats.ExpiredRemoved++
			continue
		}
		stats.Entries++
		for _, t := range e.Tags {
			stats.Tags[t]++
		}
	}
	return stats, nil
}
