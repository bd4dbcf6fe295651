// Package cache provides a durable JSON file cache for discovery results.
//
// Each logical key maps to one file under the cache directory. Entries are
// replaced wholesale on write and considered fresh only while their age is
// under the configured TTL. Filenames are namespaced by workspace so two
// workspaces never share entries.
package cache

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Record is the on-disk envelope for one cached entry.
type Record struct {
	CachedAt   time.Time       `json:"cached_at"`
	TTLSeconds int             `json:"ttl_seconds"`
	Data       json.RawMessage `json:"data"`
}

// Store manages the cache directory for one workspace.
type Store struct {
	dir         string
	ttl         time.Duration
	workspaceID string
	logger      *log.Logger

	// clock is swappable for tests.
	clock func() time.Time
}

// New creates a store rooted at dir. Entries older than ttl are treated as
// absent. workspaceID namespaces filenames so caches from different
// workspaces can coexist in one directory.
func New(dir string, ttl time.Duration, workspaceID string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[cache] ", log.LstdFlags)
	}
	return &Store{
		dir:         dir,
		ttl:         ttl,
		workspaceID: workspaceID,
		logger:      logger,
		clock:       time.Now,
	}
}

// Get reads the entry for key into target. It returns false when the entry
// is missing, expired, or unreadable; an expired or corrupt file is removed
// so the next write starts clean.
func (s *Store) Get(key string, target any) (bool, error) {
	path := s.path(key)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Printf("Removing corrupt cache entry %s: %v", key, err)
		os.Remove(path)
		return false, nil
	}

	if s.expired(rec) {
		os.Remove(path)
		return false, nil
	}

	if err := json.Unmarshal(rec.Data, target); err != nil {
		s.logger.Printf("Removing unreadable cache entry %s: %v", key, err)
		os.Remove(path)
		return false, nil
	}

	return true, nil
}

// Put replaces the entry for key with value. Existing data for the key is
// discarded entirely, never merged.
func (s *Store) Put(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value for %s: %w", key, err)
	}

	rec := Record{
		CachedAt:   s.clock(),
		TTLSeconds: int(s.ttl.Seconds()),
		Data:       data,
	}

	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache record for %s: %w", key, err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	path := s.path(key)
	tmp, err := os.CreateTemp(s.dir, ".cache-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace cache entry %s: %w", key, err)
	}

	return nil
}

// Invalidate removes the entry for key. Missing entries are fine.
func (s *Store) Invalidate(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache entry %s: %w", key, err)
	}
	return nil
}

// InvalidateAll removes every entry belonging to this store's workspace.
// Entries for other workspaces in the same directory are untouched.
func (s *Store) InvalidateAll() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to list cache directory: %w", err)
	}

	suffix := "_" + s.namespace() + ".json"
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove cache entry %s: %w", entry.Name(), err)
		}
		removed++
	}

	if removed > 0 {
		s.logger.Printf("Invalidated %d cache entries", removed)
	}
	return removed, nil
}

// CleanupExpired removes every expired entry for this workspace and returns
// the number removed.
func (s *Store) CleanupExpired() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to list cache directory: %w", err)
	}

	suffix := "_" + s.namespace() + ".json"
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil || s.expired(rec) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		s.logger.Printf("Removed %d expired cache entries", removed)
	}
	return removed, nil
}

// EntryInfo describes one cache entry for inspection commands.
type EntryInfo struct {
	Key      string
	CachedAt time.Time
	Age      time.Duration
	Expired  bool
	Size     int64
}

// Info lists every entry belonging to this store's workspace.
func (s *Store) Info() ([]EntryInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list cache directory: %w", err)
	}

	suffix := "_" + s.namespace() + ".json"
	var infos []EntryInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}

		fi, err := entry.Info()
		var size int64
		if err == nil {
			size = fi.Size()
		}

		infos = append(infos, EntryInfo{
			Key:      strings.TrimSuffix(entry.Name(), suffix),
			CachedAt: rec.CachedAt,
			Age:      s.clock().Sub(rec.CachedAt),
			Expired:  s.expired(rec),
			Size:     size,
		})
	}

	return infos, nil
}

func (s *Store) expired(rec Record) bool {
	ttl := time.Duration(rec.TTLSeconds) * time.Second
	return s.clock().Sub(rec.CachedAt) >= ttl
}

// namespace is a short workspace prefix used in filenames. Full workspace
// ids are long UUIDs; the first eight characters are enough to keep two
// workspaces apart without unwieldy filenames.
func (s *Store) namespace() string {
	id := s.workspaceID
	if len(id) > 8 {
		id = id[:8]
	}
	return id
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+"_"+s.namespace()+".json")
}
