package brainstore

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dominikletica/aaviondb/internal/aerr"
	"github.com/dominikletica/aaviondb/internal/atomicfile"
	"github.com/dominikletica/aaviondb/internal/codec"
	"github.com/dominikletica/aaviondb/internal/eventbus"
	"github.com/dominikletica/aaviondb/internal/pathlocator"
)

func newUUIDFunc() string { return uuid.NewString() }

// Store loads, mutates, and persists both brain variants. Every
// read-modify-write holds brainLock for the duration of the whole
// sequence (load → mutate → persist) per spec.md §5; concurrent readers
// of different operations still go through Load, which always reads
// through to disk — there is no long-lived in-memory cache to
// invalidate, trading a little I/O for the simplicity of never serving
// stale state.
type Store struct {
	loc *pathlocator.Locator
	bus *eventbus.Bus

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	writer *atomicfile.Writer
	now    func() time.Time
}

// New constructs a Store rooted at loc.
func New(loc *pathlocator.Locator, bus *eventbus.Bus) *Store {
	if bus == nil {
		bus = eventbus.New(nil)
	}
	return &Store{
		loc:    loc,
		bus:    bus,
		locks:  map[string]*sync.Mutex{},
		writer: atomicfile.NewWriter(bus),
		now:    time.Now,
	}
}

func (s *Store) lockFor(key string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}

// withBrain loads slug (brainPath), runs fn against the in-memory
// document, and persists the result, all under slug's RMW lock. When
// fn returns an error, nothing is persisted.
func (s *Store) withBrain(slug string, isSystem bool, fn func(b *Brain) error) (*Brain, error) {
	lockKey := "system"
	if !isSystem {
		lockKey = "user:" + slug
	}
	mu := s.lockFor(lockKey)
	mu.Lock()
	defer mu.Unlock()

	path := s.pathFor(slug, isSystem)
	b, err := s.load(path, slug, isSystem)
	if err != nil {
		return nil, err
	}
	if err := fn(b); err != nil {
		return nil, err
	}
	b.Meta.UpdatedAt = s.now()
	if err := s.persist(path, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) pathFor(slug string, isSystem bool) string {
	if isSystem {
		return s.loc.SystemBrainPath()
	}
	return s.loc.UserBrainPath(slug)
}

func (s *Store) load(path, slug string, isSystem bool) (*Brain, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return newBrain(slug, isSystem, s.now()), nil
		}
		return nil, aerr.Wrap(aerr.KindStorageFailure, err, "stat brain file")
	}
	decoded, err := s.writer.ReadAndDecode(path)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(decoded)
	if err != nil {
		return nil, aerr.Wrap(aerr.KindEncoding, err, "re-marshal decoded brain")
	}
	var b Brain
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, aerr.Wrap(aerr.KindStorageFailure, err, "unmarshal brain document")
	}
	if b.Projects == nil {
		b.Projects = map[string]*Project{}
	}
	if b.Commits == nil {
		b.Commits = map[string]*CommitEntry{}
	}
	if b.Config == nil {
		b.Config = map[string]any{}
	}
	for _, p := range b.Projects {
		normalizeProject(p)
	}
	return &b, nil
}

func normalizeProject(p *Project) {
	if p.Entities == nil {
		p.Entities = map[string]*Entity{}
	}
	if p.Hierarchy.Parents == nil {
		p.Hierarchy.Parents = map[string]string{}
	}
	if p.Hierarchy.Children == nil {
		p.Hierarchy.Children = map[string][]string{}
	}
	for _, e := range p.Entities {
		if e.Versions == nil {
			e.Versions = map[string]*VersionRecord{}
		}
	}
}

func (s *Store) persist(path string, b *Brain) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return aerr.Wrap(aerr.KindEncoding, err, "marshal brain document")
	}
	decoded, err := codec.Decode(raw)
	if err != nil {
		return aerr.Wrap(aerr.KindEncoding, err, "canonicalize brain document")
	}
	canonical, err := codec.Encode(decoded)
	if err != nil {
		return err
	}
	if err := s.writer.Write(path, canonical); err != nil {
		return err
	}
	return nil
}

// loadReadOnly loads slug without taking the RMW lock; callers that
// only read (reports, listings) use this to avoid serializing against
// writers unnecessarily. Per spec.md §5, readers may proceed
// concurrently with other readers.
func (s *Store) loadReadOnly(slug string, isSystem bool) (*Brain, error) {
	path := s.pathFor(slug, isSystem)
	return s.load(path, slug, isSystem)
}

// nextVersionKey returns the next decimal-string integer version key
// for an entity (spec.md §3.3: "max(existing) + 1, starting at 1").
func nextVersionKey(versions map[string]*VersionRecord) string {
	max := 0
	for k := range versions {
		n, err := strconv.Atoi(k)
		if err == nil && n > max {
			max = n
		}
	}
	return strconv.Itoa(max + 1)
}

// sortedVersionKeys returns version keys ordered ascending numerically.
func sortedVersionKeys(versions map[string]*VersionRecord) []string {
	keys := make([]string, 0, len(versions))
	for k := range versions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, _ := strconv.Atoi(keys[i])
		nj, _ := strconv.Atoi(keys[j])
		return ni < nj
	})
	return keys
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func commitKeyFmt(project, entity, version string) string {
	return fmt.Sprintf("%s/%s@%s", project, entity, version)
}
