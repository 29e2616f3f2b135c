package store

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mmcdole/catalog/internal/domain"
	"github.com/zeebo/blake3"
	bolt "go.etcd.io/bbolt"
)

var bucketKV = []byte("kv")

var _ domain.KeyValueStore = (*KV)(nil)

// Option configures a KV.
type Option func(*KV)

// WithQuota caps the bytes the store will hold (keys plus stored values).
// Zero disables the cap.
func WithQuota(bytes int64) Option {
	return func(s *KV) { s.quota = bytes }
}

// KV implements domain.KeyValueStore using BoltDB.
type KV struct {
	db    *bolt.DB
	codec *codec

	mu sync.RWMutex // Protects memory cache and gen
	// In memory-only mode this is the store itself; otherwise a read-through
	// cache of decoded values.
	cache map[string]string
	// gen advances on every committed write. A read only promotes its value
	// if no write landed while it was reading bbolt.
	gen uint64

	wmu   sync.Mutex // Serializes writes so usage accounting stays exact
	used  int64
	quota int64
}

// NewKV opens the store under baseDir, in a subdirectory derived from
// endpoint so different API endpoints never share data. An empty baseDir
// gives a memory-only store.
func NewKV(baseDir, endpoint string, opts ...Option) (*KV, error) {
	s := &KV{cache: make(map[string]string)}
	for _, opt := range opts {
		opt(s)
	}

	if baseDir == "" {
		// Memory-only mode (no persistence)
		return s, nil
	}

	dir := baseDir
	if endpoint != "" {
		dir = filepath.Join(baseDir, hashEndpoint(endpoint))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(filepath.Join(dir, "catalog.db"), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	var used int64
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketKV)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			used += int64(len(k) + len(v))
			return nil
		})
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	c, err := newCodec()
	if err != nil {
		db.Close()
		return nil, err
	}

	s.db = db
	s.codec = c
	s.used = used
	return s, nil
}

func hashEndpoint(endpoint string) string {
	normalized := strings.TrimRight(strings.ToLower(endpoint), "/")
	hash := blake3.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:6])
}

func (s *KV) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.codec.close()
	return err
}

// Used returns the bytes currently accounted against the quota.
func (s *KV) Used() int64 {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.used
}

func (s *KV) Get(key string) (string, bool, error) {
	// Check memory cache first
	s.mu.RLock()
	if v, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return v, true, nil
	}
	gen := s.gen
	s.mu.RUnlock()

	if s.db == nil {
		return "", false, nil
	}

	var framed []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketKV).Get([]byte(key)); v != nil {
			framed = make([]byte, len(v))
			copy(framed, v)
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	if framed == nil {
		return "", false, nil
	}

	value, err := s.codec.decode(framed)
	if err != nil {
		return "", false, fmt.Errorf("reading %q: %w", key, err)
	}

	// Promote to memory cache
	s.mu.Lock()
	if s.gen == gen {
		s.cache[key] = value
	}
	s.mu.Unlock()

	return value, true, nil
}

func (s *KV) Set(key, value string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		delta := int64(len(key) + len(value))
		if old, ok := s.cache[key]; ok {
			delta -= int64(len(key) + len(old))
		}
		if s.overQuota(delta) {
			return domain.ErrStorageFull
		}
		s.cache[key] = value
		s.used += delta
		return nil
	}

	framed := s.codec.encode(value)
	var delta int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		delta = int64(len(key) + len(framed))
		if old := b.Get([]byte(key)); old != nil {
			delta -= int64(len(key) + len(old))
		}
		if s.overQuota(delta) {
			return domain.ErrStorageFull
		}
		return b.Put([]byte(key), framed)
	})
	if err != nil {
		if errors.Is(err, syscall.ENOSPC) {
			return fmt.Errorf("%w: %v", domain.ErrStorageFull, err)
		}
		return err
	}
	s.used += delta

	// Update memory cache only once the write is durable
	s.mu.Lock()
	s.cache[key] = value
	s.gen++
	s.mu.Unlock()
	return nil
}

func (s *KV) overQuota(delta int64) bool {
	return s.quota > 0 && delta > 0 && s.used+delta > s.quota
}

func (s *KV) Remove(key string) error {
	return s.RemoveMany([]string{key})
}

// RemoveMany deletes all keys in one transaction.
func (s *KV) RemoveMany(keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	if s.db == nil {
		s.mu.Lock()
		for _, k := range keys {
			if v, ok := s.cache[k]; ok {
				s.used -= int64(len(k) + len(v))
				delete(s.cache, k)
			}
		}
		s.mu.Unlock()
		return nil
	}

	var freed int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		for _, k := range keys {
			old := b.Get([]byte(k))
			if old == nil {
				continue
			}
			freed += int64(len(k) + len(old))
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.used -= freed

	// Drop from memory cache after the delete commits
	s.mu.Lock()
	for _, k := range keys {
		delete(s.cache, k)
	}
	s.gen++
	s.mu.Unlock()
	return nil
}

// Keys lists every stored key in byte order.
func (s *KV) Keys() ([]string, error) {
	if s.db == nil {
		s.mu.RLock()
		keys := make([]string, 0, len(s.cache))
		for k := range s.cache {
			keys = append(keys, k)
		}
		s.mu.RUnlock()
		sort.Strings(keys)
		return keys, nil
	}

	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}
