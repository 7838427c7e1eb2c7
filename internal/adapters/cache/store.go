// Package cache stores one timestamped player snapshot per (group, format)
// on a billy filesystem and classifies each slot by age.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/okian/draftboard/internal/domain/model"
	"github.com/okian/draftboard/pkg/logger"
	"github.com/okian/draftboard/pkg/metrics"
)

const (
	recordExt = ".json"
	tempDir   = ".tmp"
)

// Store is a freshness-aware snapshot cache. Access to a single key is
// serialized; records are replaced with temp file + rename so a reader never
// observes a partial write.
type Store struct {
	fs         billy.Filesystem
	prefix     string
	freshFor   time.Duration
	staleFor   time.Duration
	maxAge     time.Duration
	maxBytes   int64
	evictBatch int
	version    int
	now        func() time.Time
	log        logger.Logger

	locks   sync.Map // record name -> *sync.Mutex
	spaceMu sync.Mutex
	fsMu    sync.Mutex // billy memfs keeps its directory tree unsynchronized

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	writes    atomic.Int64
	failures  atomic.Int64
}

// New creates a Store. Without WithFilesystem the records live in memory.
func New(opts ...Option) (*Store, error) {
	s := &Store{
		fs:         memfs.New(),
		prefix:     DefaultKeyPrefix,
		freshFor:   DefaultFreshFor,
		staleFor:   DefaultStaleFor,
		maxAge:     DefaultMaxAge,
		evictBatch: DefaultEvictBatch,
		version:    SchemaVersion,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Named("cache")
	}
	if err := s.fs.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create temp dir: %v", ErrStorageUnavailable, err)
	}
	return s, nil
}

// Classify maps an entry age to a status.
func (s *Store) Classify(age time.Duration) model.CacheStatus {
	switch {
	case age <= s.freshFor:
		return model.StatusFresh
	case age <= s.staleFor:
		return model.StatusStale
	default:
		return model.StatusExpired
	}
}

// Get returns the live entry for a key. Records that are past their expiry,
// carry another schema version or fail to decode are deleted and read as absent.
func (s *Store) Get(ctx context.Context, g model.Group, f model.Format) (*Entry, bool) {
	e := s.lookup(ctx, Key{Group: g, Format: f}, true)
	return e, e != nil
}

// Lookup returns the entry (nil when missing) together with its status.
func (s *Store) Lookup(ctx context.Context, g model.Group, f model.Format) (*Entry, model.CacheStatus) {
	e := s.lookup(ctx, Key{Group: g, Format: f}, true)
	return e, s.status(e)
}

// Status classifies a slot without counting a cache hit or miss.
func (s *Store) Status(ctx context.Context, g model.Group, f model.Format) model.CacheStatus {
	return s.status(s.lookup(ctx, Key{Group: g, Format: f}, false))
}

// NeedsRefresh reports whether a slot is stale, expired or missing.
func (s *Store) NeedsRefresh(ctx context.Context, g model.Group, f model.Format) bool {
	return s.Status(ctx, g, f).NeedsRefresh()
}

func (s *Store) status(e *Entry) model.CacheStatus {
	st := model.StatusMissing
	if e != nil {
		st = s.Classify(e.Age(s.now()))
	}
	return st
}

func (s *Store) lookup(ctx context.Context, k Key, count bool) *Entry {
	name := s.fileName(k)
	mu := s.lock(name)
	mu.Lock()
	defer mu.Unlock()

	e, err := s.read(name, k)
	if err == nil && s.now().After(e.Expiry) {
		s.removeLocked(name)
		s.recordEvictions(1)
		e, err = nil, os.ErrNotExist
	}
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
	case errors.Is(err, ErrSchemaMismatch):
		s.log.Debug(ctx, "discarding incompatible cache record", logger.String("key", k.String()), logger.Error(err))
		s.removeLocked(name)
	default:
		s.log.Warn(ctx, "cache read failed", logger.String("key", k.String()), logger.Error(err))
	}

	if count {
		if e != nil {
			s.hits.Add(1)
			metrics.RecordCacheHit(string(k.Group), string(k.Format))
		} else {
			s.misses.Add(1)
			metrics.RecordCacheMiss(string(k.Group), string(k.Format))
		}
	}
	metrics.UpdateCacheStatus(string(k.Group), string(k.Format), s.status(e).Weight())
	return e
}

// Set stores players for a key stamped with the current time. It fails only
// with ErrStorageFull or ErrStorageUnavailable.
func (s *Store) Set(ctx context.Context, g model.Group, f model.Format, players []model.Player, source model.Source) error {
	now := s.now()
	return s.write(ctx, &Entry{
		Data:      players,
		Timestamp: now,
		Expiry:    now.Add(s.maxAge),
		Source:    source,
		Group:     g,
		Format:    f,
	})
}

// SetWithEviction runs Set and, if the medium is full or failing, evicts the
// oldest records once and retries once.
func (s *Store) SetWithEviction(ctx context.Context, g model.Group, f model.Format, players []model.Player, source model.Source) error {
	err := s.Set(ctx, g, f, players, source)
	if err == nil || !(errors.Is(err, ErrStorageFull) || errors.Is(err, ErrStorageUnavailable)) {
		return err
	}

	n, evictErr := s.EvictOldest(ctx, s.evictBatch)
	s.log.Info(ctx, "evicted cache records before retry",
		logger.String("key", Key{Group: g, Format: f}.String()),
		logger.Int("evicted", n),
		logger.Error(err),
	)
	if evictErr != nil {
		s.log.Warn(ctx, "cache eviction failed", logger.Error(evictErr))
	}
	return s.Set(ctx, g, f, players, source)
}

// Restore writes an entry keeping its original timestamp. It returns false
// when the entry is already past the max age.
func (s *Store) Restore(ctx context.Context, e Entry) (bool, error) {
	if !e.Group.Valid() || !e.Format.Valid() {
		return false, fmt.Errorf("restore %s: %w", e.Key(), model.ErrInvalid)
	}
	e.Expiry = e.Timestamp.Add(s.maxAge)
	if !s.now().Before(e.Expiry) {
		return false, nil
	}
	if err := s.write(ctx, &e); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) write(ctx context.Context, e *Entry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	e.Version = s.version
	if e.Data == nil {
		e.Data = []model.Player{}
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrStorageUnavailable, err)
	}

	name := s.fileName(e.Key())
	mu := s.lock(name)
	mu.Lock()
	defer mu.Unlock()

	if s.maxBytes > 0 {
		s.spaceMu.Lock()
		defer s.spaceMu.Unlock()
		used, err := s.usage(name)
		if err != nil {
			return s.writeFailed(err)
		}
		if used+int64(len(data)) > s.maxBytes {
			return s.writeFailed(fmt.Errorf("%w: %d of %d bytes used", ErrStorageFull, used, s.maxBytes))
		}
	}

	if err := s.writeAtomic(name, data); err != nil {
		return s.writeFailed(err)
	}
	s.writes.Add(1)
	return nil
}

func (s *Store) writeAtomic(name string, data []byte) error {
	s.fsMu.Lock()
	defer s.fsMu.Unlock()

	tmp, err := s.fs.TempFile(tempDir, name+".")
	if err != nil {
		return classifyIOError(err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return classifyIOError(err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return classifyIOError(err)
	}
	if err := s.fs.Rename(tmpName, name); err != nil {
		_ = s.fs.Remove(tmpName)
		return classifyIOError(err)
	}
	return nil
}

func (s *Store) writeFailed(err error) error {
	s.failures.Add(1)
	kind := "unavailable"
	if errors.Is(err, ErrStorageFull) {
		kind = "full"
	}
	metrics.RecordCacheWriteError(kind)
	return err
}

// usage returns the bytes held by all records except skip.
func (s *Store) usage(skip string) (int64, error) {
	infos, err := s.records()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, fi := range infos {
		if fi.Name() != skip {
			total += fi.Size()
		}
	}
	return total, nil
}

// Remove deletes one key. Removing a missing key is not an error.
func (s *Store) Remove(ctx context.Context, g model.Group, f model.Format) error {
	name := s.fileName(Key{Group: g, Format: f})
	mu := s.lock(name)
	mu.Lock()
	defer mu.Unlock()
	if err := s.removeFile(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return classifyIOError(err)
	}
	return nil
}

// Clear removes every record under the key prefix and nothing else.
func (s *Store) Clear(ctx context.Context) (int, error) {
	infos, err := s.records()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, fi := range infos {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if s.removeNamed(fi.Name()) {
			removed++
		}
	}
	s.log.Info(ctx, "cache cleared", logger.Int("removed", removed))
	return removed, nil
}

type aged struct {
	name string
	ts   time.Time
}

// EvictOldest removes the n records with the smallest timestamps.
// Undecodable records count as oldest.
func (s *Store) EvictOldest(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	all, err := s.scan()
	if err != nil {
		return 0, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].ts.Before(all[j].ts) })

	removed := 0
	for _, rec := range all {
		if removed == n {
			break
		}
		if err := ctx.Err(); err != nil {
			break
		}
		if s.removeNamed(rec.name) {
			removed++
		}
	}
	s.recordEvictions(removed)
	return removed, nil
}

// PurgeOlderThan removes records whose timestamp is older than age. Newer
// records are not rewritten. Undecodable records are left for Get to discard.
func (s *Store) PurgeOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := s.now().Add(-age)
	all, err := s.scan()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, rec := range all {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if rec.ts.IsZero() || !rec.ts.Before(cutoff) {
			continue
		}
		if s.removeNamed(rec.name) {
			removed++
		}
	}
	s.recordEvictions(removed)
	return removed, nil
}

// Keys lists the keys that currently have a record, valid or not.
func (s *Store) Keys(ctx context.Context) ([]Key, error) {
	infos, err := s.records()
	if err != nil {
		return nil, err
	}
	keys := make([]Key, 0, len(infos))
	for _, fi := range infos {
		if k, ok := s.parseName(fi.Name()); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Stats returns counter values.
func (s *Store) Stats() Stats {
	return Stats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evictions.Load(),
		Writes:    s.writes.Load(),
		Failures:  s.failures.Load(),
	}
}

// scan reads the timestamp of every record.
func (s *Store) scan() ([]aged, error) {
	infos, err := s.records()
	if err != nil {
		return nil, err
	}
	out := make([]aged, 0, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		mu := s.lock(name)
		mu.Lock()
		var ts time.Time
		if data, err := s.readFile(name); err == nil {
			var e Entry
			if json.Unmarshal(data, &e) == nil {
				ts = e.Timestamp
			}
		}
		mu.Unlock()
		out = append(out, aged{name: name, ts: ts})
	}
	return out, nil
}

func (s *Store) records() ([]os.FileInfo, error) {
	s.fsMu.Lock()
	infos, err := s.fs.ReadDir(".")
	s.fsMu.Unlock()
	if err != nil {
		return nil, classifyIOError(err)
	}
	out := infos[:0]
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		if strings.HasPrefix(fi.Name(), s.prefix) && strings.HasSuffix(fi.Name(), recordExt) {
			out = append(out, fi)
		}
	}
	return out, nil
}

func (s *Store) read(name string, k Key) (*Entry, error) {
	data, err := s.readFile(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, os.ErrNotExist
		}
		return nil, classifyIOError(err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if e.Version != s.version {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrSchemaMismatch, e.Version, s.version)
	}
	if e.Key() != k || !e.Expiry.After(e.Timestamp) {
		return nil, fmt.Errorf("%w: inconsistent record for %s", ErrSchemaMismatch, k)
	}
	return &e, nil
}

func (s *Store) removeNamed(name string) bool {
	mu := s.lock(name)
	mu.Lock()
	defer mu.Unlock()
	return s.removeLocked(name)
}

func (s *Store) removeLocked(name string) bool {
	return s.removeFile(name) == nil
}

func (s *Store) removeFile(name string) error {
	s.fsMu.Lock()
	defer s.fsMu.Unlock()
	return s.fs.Remove(name)
}

func (s *Store) readFile(name string) ([]byte, error) {
	s.fsMu.Lock()
	defer s.fsMu.Unlock()
	return util.ReadFile(s.fs, name)
}

func (s *Store) recordEvictions(n int) {
	if n > 0 {
		s.evictions.Add(int64(n))
		metrics.RecordCacheEvictions(n)
	}
}

func (s *Store) lock(name string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(name, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *Store) fileName(k Key) string {
	return s.prefix + k.String() + recordExt
}

func (s *Store) parseName(name string) (Key, bool) {
	rest := strings.TrimSuffix(strings.TrimPrefix(name, s.prefix), recordExt)
	gs, fs, ok := strings.Cut(rest, "_")
	if !ok {
		return Key{}, false
	}
	g, err := model.ParseGroup(gs)
	if err != nil {
		return Key{}, false
	}
	f, err := model.ParseFormat(fs)
	if err != nil || fs == "" {
		return Key{}, false
	}
	return Key{Group: g, Format: f}, true
}

func classifyIOError(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", ErrStorageFull, err)
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
