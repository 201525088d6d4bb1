package conversation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DiskConfig configures the on-disk history store.
type DiskConfig struct {
	Root       string
	TTL        time.Duration
	MaxEntries int
}

type diskEntry struct {
	File       string    `json:"file"`
	ExpiresAt  time.Time `json:"expires_at"`
	AccessedAt time.Time `json:"accessed_at"`
}

type diskIndex struct {
	Entries map[string]diskEntry `json:"entries"`
}

// DiskStore keeps one JSON document per conversation key with a sliding TTL
// and an LRU cap, persisted next to an index file so histories survive
// restarts.
type DiskStore struct {
	mu sync.Mutex

	dataDir   string
	indexPath string

	ttl        time.Duration
	maxEntries int

	entries  map[string]diskEntry
	failures atomic.Uint64
}

func NewDiskStore(cfg DiskConfig) (*DiskStore, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, fmt.Errorf("root is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 4096
	}

	s := &DiskStore{
		dataDir:    filepath.Join(root, "data"),
		indexPath:  filepath.Join(root, "index.json"),
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		entries:    map[string]diskEntry{},
	}
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return nil, err
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	s.cleanupLocked(time.Now())
	if err := s.persistIndexLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DiskStore) Load(_ context.Context, appID int64) ([]Entry, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	key := Key(appID)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if now.After(ent.ExpiresAt) {
		s.removeLocked(key, ent)
		_ = s.persistIndexLocked()
		return nil, nil
	}
	raw, err := os.ReadFile(filepath.Join(s.dataDir, ent.File))
	if err != nil {
		s.degrade(appID, err)
		s.removeLocked(key, ent)
		_ = s.persistIndexLocked()
		return nil, nil
	}
	var history []Entry
	if err := json.Unmarshal(raw, &history); err != nil {
		s.degrade(appID, err)
		s.removeLocked(key, ent)
		_ = s.persistIndexLocked()
		return nil, nil
	}
	ent.AccessedAt = now
	s.entries[key] = ent
	_ = s.persistIndexLocked()
	return history, nil
}

func (s *DiskStore) Replace(_ context.Context, appID int64, entries []Entry) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	key := Key(appID)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	file := fileNameFor(key)
	if err := os.WriteFile(filepath.Join(s.dataDir, file), raw, 0o644); err != nil {
		return err
	}
	s.entries[key] = diskEntry{
		File:       file,
		ExpiresAt:  now.Add(s.ttl),
		AccessedAt: now,
	}
	s.cleanupLocked(now)
	return s.persistIndexLocked()
}

func (s *DiskStore) Clear(_ context.Context, appID int64) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	key := Key(appID)

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		return nil
	}
	s.removeLocked(key, ent)
	return s.persistIndexLocked()
}

func (s *DiskStore) LoadFailures() uint64 { return s.failures.Load() }

func (s *DiskStore) Close() error { return nil }

func (s *DiskStore) degrade(appID int64, err error) {
	s.failures.Add(1)
	log.Printf("conversation: degraded to empty history for app %d: %v", appID, err)
}

func (s *DiskStore) removeLocked(key string, ent diskEntry) {
	_ = os.Remove(filepath.Join(s.dataDir, ent.File))
	delete(s.entries, key)
}

// cleanupLocked drops expired entries and evicts the least recently used
// ones over the cap.
func (s *DiskStore) cleanupLocked(now time.Time) {
	for key, ent := range s.entries {
		if now.After(ent.ExpiresAt) {
			s.removeLocked(key, ent)
		}
	}
	if len(s.entries) <= s.maxEntries {
		return
	}
	type keyed struct {
		key string
		at  time.Time
	}
	order := make([]keyed, 0, len(s.entries))
	for key, ent := range s.entries {
		order = append(order, keyed{key: key, at: ent.AccessedAt})
	}
	sort.Slice(order, func(i, j int) bool { return order[i].at.Before(order[j].at) })
	for _, k := range order {
		if len(s.entries) <= s.maxEntries {
			break
		}
		s.removeLocked(k.key, s.entries[k.key])
	}
}

func (s *DiskStore) loadIndex() error {
	raw, err := os.ReadFile(s.indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var idx diskIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		// Corrupt index: start fresh rather than refusing to boot.
		log.Printf("conversation: discarding corrupt index: %v", err)
		return nil
	}
	if idx.Entries != nil {
		s.entries = idx.Entries
	}
	return nil
}

func (s *DiskStore) persistIndexLocked() error {
	raw, err := json.Marshal(diskIndex{Entries: s.entries})
	if err != nil {
		return err
	}
	tmp := s.indexPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.indexPath)
}

func fileNameFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16]) + ".json"
}
