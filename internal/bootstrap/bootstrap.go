// Package bootstrap implements Setup, the idempotent composition root
// described in spec.md §4.15 (C15): directories, logger, event bus,
// dispatcher, auth, rate-limit, cache, brain store, wired in dependency
// order.
//
// Grounded on the teacher's cmd/bd initialization sequence (a single
// ordered setup function composing storage, config, and the RPC
// daemon before any command runs), adapted here into a reusable
// package rather than main()-inline code since both the CLI and any
// future REST gateway need the same composed System.
package bootstrap

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dominikletica/aaviondb/internal/aerr"
	"github.com/dominikletica/aaviondb/internal/auth"
	"github.com/dominikletica/aaviondb/internal/brainfs"
	"github.com/dominikletica/aaviondb/internal/brainstore"
	"github.com/dominikletica/aaviondb/internal/cachestore"
	"github.com/dominikletica/aaviondb/internal/dispatch"
	"github.com/dominikletica/aaviondb/internal/eventbus"
	"github.com/dominikletica/aaviondb/internal/logging"
	"github.com/dominikletica/aaviondb/internal/pathlocator"
	"github.com/dominikletica/aaviondb/internal/preset"
	"github.com/dominikletica/aaviondb/internal/ratelimit"
)

// Options configures Setup.
type Options struct {
	Root       string         // brain storage root directory
	LogLevel   logging.Level
	LogPath    string         // "" = stderr only
	Overrides  map[string]any // extra system-brain config defaults
	KeyLength  int            // auth token length, default 16
	RateLimit  ratelimit.Config
}

// System is every composed collaborator, wired and ready for a CLI or
// REST entry point to drive.
type System struct {
	Locator    *pathlocator.Locator
	Logger     *logging.Logger
	Bus        *eventbus.Bus
	Store      *brainstore.Store
	Auth       *auth.Manager
	RateLimit  *ratelimit.Manager
	Cache      *cachestore.Store
	Presets    *preset.Registry
	Dispatcher *dispatch.Dispatcher
	FileWatch  *brainfs.Watcher

	mu       sync.Mutex
	complete bool
}

// Setup composes the full system. It is idempotent: a System already
// returned by a prior Setup call may be passed back in via
// Options.reuse (not exposed — callers simply call Setup once and keep
// the returned *System); calling the package-level Setup twice against
// the same Root re-runs steps 3/4 harmlessly (read-merge-write, and
// ensureActiveBrain is a no-op once default.brain exists).
func Setup(opts Options) (*System, error) {
	// Logger and bus come up first so every later step, including
	// directory preparation, can report module.initialization_failed.
	loc := pathlocator.New(opts.Root)
	logPath := opts.LogPath
	if logPath == "" {
		logPath = loc.SystemLogFile()
	}
	logger := logging.New(opts.LogLevel, logPath)
	bus := eventbus.New(logger)

	fail := func(err error, step string) error {
		bus.Emit("module.initialization_failed", map[string]any{"step": step, "error": err.Error()})
		return err
	}

	// 1. Prepare directories (C2).
	if err := loc.EnsureDefaultDirectories(); err != nil {
		return nil, fail(aerr.Wrap(aerr.KindStorageFailure, err, "prepare directories"), "prepare_directories")
	}

	// 2. Register core services.
	store := brainstore.New(loc, bus)

	// 3. ensureSystemBrain(overrides) — read-merge-write.
	if _, err := store.EnsureSystemBrain(opts.Overrides); err != nil {
		return nil, fail(aerr.Wrap(aerr.KindStorageFailure, err, "ensure system brain"), "ensure_system_brain")
	}

	// 4. ensureActiveBrain(), creating default.brain if none.
	if _, err := store.EnsureActiveBrain(); err != nil {
		return nil, fail(aerr.Wrap(aerr.KindStorageFailure, err, "ensure active brain"), "ensure_active_brain")
	}

	authManager, err := wireAuth(store, bus, opts.KeyLength)
	if err != nil {
		return nil, fail(err, "wire_auth")
	}

	cacheBlock, err := store.GetCacheBlock()
	if err != nil {
		return nil, fail(err, "load_cache_config")
	}
	cache := cachestore.New(loc.UserCacheDir(), cacheBlock.Active, cacheBlock.TTL, bus)

	rlCfg := opts.RateLimit
	rl := ratelimit.New(cache, rlCfg)

	presets := wirePresets(store)
	if err := presets.SeedBundled(); err != nil {
		return nil, fail(aerr.Wrap(aerr.KindStorageFailure, err, "seed bundled presets"), "seed_bundled_presets")
	}

	dispatcher := dispatch.New(bus)

	watcher, err := brainfs.New(cache, bus)
	if err != nil {
		return nil, fail(err, "wire_file_watcher")
	}
	for _, dir := range []string{loc.SystemStorageDir(), loc.UserStorageDir()} {
		if err := watcher.Watch(dir); err != nil {
			return nil, fail(err, "watch_storage_dir")
		}
	}
	go watcher.Start()

	sys := &System{
		Locator:    loc,
		Logger:     logger,
		Bus:        bus,
		Store:      store,
		Auth:       authManager,
		RateLimit:  rl,
		Cache:      cache,
		Presets:    presets,
		Dispatcher: dispatcher,
		FileWatch:  watcher,
	}
	sys.mu.Lock()
	sys.complete = true
	sys.mu.Unlock()

	bus.Emit("module.initialized", map[string]any{"component": "bootstrap"})
	return sys, nil
}

// wireAuth loads the persisted auth state (round-tripped through
// encoding/json since internal/auth and internal/brainstore must not
// import one another) and wires the manager's persist hook back to the
// brain store.
func wireAuth(store *brainstore.Store, bus *eventbus.Bus, keyLength int) (*auth.Manager, error) {
	authBlock, err := store.GetAuthBlock()
	if err != nil {
		return nil, err
	}
	apiBlock, err := store.GetAPIBlock()
	if err != nil {
		return nil, err
	}
	state, err := authStateFromBlocks(authBlock, apiBlock)
	if err != nil {
		return nil, err
	}
	persist := func(s *auth.State) error {
		authBlock, apiBlock, err := blocksFromAuthState(s)
		if err != nil {
			return err
		}
		if err := store.SaveAuthBlock(authBlock); err != nil {
			return err
		}
		return store.SaveAPIBlock(apiBlock)
	}
	return auth.New(state, auth.Options{KeyLength: keyLength, Bus: bus, Persist: persist}), nil
}

// authStateFromBlocks and blocksFromAuthState round-trip auth.State
// through the system brain's sibling "auth"/"api" documents via
// encoding/json, since internal/auth and internal/brainstore must not
// import one another.
func authStateFromBlocks(authBlock *brainstore.AuthBlock, apiBlock *brainstore.APIBlock) (*auth.State, error) {
	raw, err := json.Marshal(authBlock)
	if err != nil {
		return nil, aerr.Wrap(aerr.KindHandlerException, err, "encode auth block")
	}
	state := &auth.State{}
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, aerr.Wrap(aerr.KindHandlerException, err, "decode auth state")
	}
	apiRaw, err := json.Marshal(apiBlock)
	if err != nil {
		return nil, aerr.Wrap(aerr.KindHandlerException, err, "encode api block")
	}
	if err := json.Unmarshal(apiRaw, &state.API); err != nil {
		return nil, aerr.Wrap(aerr.KindHandlerException, err, "decode api state")
	}
	if state.Keys == nil {
		state.Keys = map[string]*auth.KeyEntry{}
	}
	return state, nil
}

func blocksFromAuthState(state *auth.State) (*brainstore.AuthBlock, *brainstore.APIBlock, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, nil, aerr.Wrap(aerr.KindHandlerException, err, "encode auth state")
	}
	authBlock := &brainstore.AuthBlock{}
	if err := json.Unmarshal(raw, authBlock); err != nil {
		return nil, nil, aerr.Wrap(aerr.KindHandlerException, err, "decode auth block")
	}
	if authBlock.Keys == nil {
		authBlock.Keys = map[string]map[string]any{}
	}
	apiRaw, err := json.Marshal(state.API)
	if err != nil {
		return nil, nil, aerr.Wrap(aerr.KindHandlerException, err, "encode api state")
	}
	apiBlock := &brainstore.APIBlock{}
	if err := json.Unmarshal(apiRaw, apiBlock); err != nil {
		return nil, nil, aerr.Wrap(aerr.KindHandlerException, err, "decode api block")
	}
	return authBlock, apiBlock, nil
}

// wirePresets adapts the system brain's raw preset documents to
// internal/preset.Registry via the same json round-trip idiom as auth.
func wirePresets(store *brainstore.Store) *preset.Registry {
	load := func() (map[string]*preset.Preset, error) {
		raw, err := store.GetPresets()
		if err != nil {
			return nil, err
		}
		out := map[string]*preset.Preset{}
		for slug, doc := range raw {
			encoded, err := json.Marshal(doc)
			if err != nil {
				return nil, aerr.Wrap(aerr.KindHandlerException, err, "encode preset %q", slug)
			}
			p := &preset.Preset{}
			if err := json.Unmarshal(encoded, p); err != nil {
				return nil, aerr.Wrap(aerr.KindHandlerException, err, "decode preset %q", slug)
			}
			p.Slug = slug
			out[slug] = p
		}
		return out, nil
	}
	save := func(all map[string]*preset.Preset) error {
		raw := map[string]map[string]any{}
		for slug, p := range all {
			encoded, err := json.Marshal(p)
			if err != nil {
				return aerr.Wrap(aerr.KindHandlerException, err, "encode preset %q", slug)
			}
			var doc map[string]any
			if err := json.Unmarshal(encoded, &doc); err != nil {
				return aerr.Wrap(aerr.KindHandlerException, err, "decode preset %q", slug)
			}
			raw[slug] = doc
		}
		return store.SavePresets(raw)
	}
	return preset.NewRegistry(load, save)
}

// Diagnose runs a quick health check over every composed collaborator,
// returning a flat status map suitable for a "system diagnose" command.
func (s *System) Diagnose() map[string]any {
	report := map[string]any{"ok": true, "checked_at": time.Now()}
	if _, err := s.Store.ListBrains(); err != nil {
		report["ok"] = false
		report["brainstore_error"] = err.Error()
	}
	if _, err := s.Store.GetAuthBlock(); err != nil {
		report["ok"] = false
		report["auth_error"] = err.Error()
	}
	stats, err := s.Cache.Statistics()
	if err != nil {
		report["ok"] = false
		report["cache_error"] = err.Error()
	} else {
		report["cache"] = stats
	}
	return report
}

// Close releases background resources (the file watcher, the log
// file sink). Safe to call once at process shutdown.
func (s *System) Close() error {
	if s.FileWatch != nil {
		if err := s.FileWatch.Close(); err != nil {
			return err
		}
	}
	return s.Logger.Close()
}
