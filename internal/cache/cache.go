// Package cache stores API payloads as timestamped JSON entries in a
// namespaced key-value store.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/catalog/internal/domain"
	"github.com/mmcdole/catalog/internal/telemetry"
)

const (
	// DefaultMaxEntrySize is the largest serialized entry, in characters,
	// that will be stored.
	DefaultMaxEntrySize = 500_000

	// DefaultExpiry is the freshness window applied when a read gives none.
	DefaultExpiry = 10 * time.Minute
)

// Entry is the stored form of a cached payload.
type Entry struct {
	Timestamp int64           `json:"timestamp"` // epoch ms
	Data      json.RawMessage `json:"data"`
}

// SaveStatus is the outcome of a Save.
type SaveStatus int

const (
	Stored SaveStatus = iota
	Skipped
	RecoveredAfterClear
	Failed
)

func (s SaveStatus) String() string {
	switch s {
	case Stored:
		return "stored"
	case Skipped:
		return "skipped"
	case RecoveredAfterClear:
		return "recovered"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// SaveResult reports what a Save did. Callers are free to ignore it.
type SaveResult struct {
	Status SaveStatus
	Size   int    // serialized entry size in characters
	Reason string // set for Skipped and Failed
	Err    error
}

// Manager is the persistent cache. Safe for concurrent use; concurrent saves
// to one key are last-write-wins.
type Manager struct {
	kv           domain.KeyValueStore
	namespace    string
	maxEntrySize int
	expiry       time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

func WithNamespace(ns string) Option {
	return func(m *Manager) { m.namespace = ns }
}

func WithMaxEntrySize(n int) Option {
	return func(m *Manager) { m.maxEntrySize = n }
}

// WithExpiry sets the default freshness window.
func WithExpiry(d time.Duration) Option {
	return func(m *Manager) { m.expiry = d }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a cache over kv.
func New(kv domain.KeyValueStore, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		kv:           kv,
		namespace:    DefaultNamespace,
		maxEntrySize: DefaultMaxEntrySize,
		expiry:       DefaultExpiry,
		now:          time.Now,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Save stores data under key with the current timestamp. It never fails the
// caller: oversized payloads are skipped, and a full store triggers one clear
// of the namespace without retrying the write.
func (m *Manager) Save(ctx context.Context, key string, data any) SaveResult {
	payload, err := marshal(data)
	if err != nil {
		return m.saveFailed(ctx, key, "encode payload", err)
	}
	serialized, err := marshal(Entry{Timestamp: m.now().UnixMilli(), Data: payload})
	if err != nil {
		return m.saveFailed(ctx, key, "encode entry", err)
	}

	size := utf8.RuneCount(serialized)
	if size > m.maxEntrySize {
		m.logger.Warn("cache entry too large, skipping", "key", key, "size", size, "max", m.maxEntrySize)
		telemetry.RecordCacheWrite(ctx, Skipped.String(), len(serialized))
		return SaveResult{Status: Skipped, Size: size, Reason: "entry exceeds max size"}
	}

	err = m.kv.Set(key, string(serialized))
	switch {
	case err == nil:
		telemetry.RecordCacheWrite(ctx, Stored.String(), len(serialized))
		return SaveResult{Status: Stored, Size: size}

	case errors.Is(err, domain.ErrStorageFull):
		m.logger.Warn("storage full, clearing cache", "key", key, "size", size)
		if clearErr := m.ClearAll(); clearErr != nil {
			m.logger.Error("failed to clear cache after storage full", "error", clearErr)
		}
		telemetry.RecordCacheWrite(ctx, RecoveredAfterClear.String(), len(serialized))
		return SaveResult{Status: RecoveredAfterClear, Size: size, Err: err}

	default:
		r := m.saveFailed(ctx, key, "write entry", err)
		r.Size = size
		return r
	}
}

// marshal encodes v without HTML escaping, so stored text keeps its
// characters as written.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (m *Manager) saveFailed(ctx context.Context, key, reason string, err error) SaveResult {
	m.logger.Error("cache write failed", "key", key, "reason", reason, "error", err)
	telemetry.RecordCacheWrite(ctx, Failed.String(), 0)
	return SaveResult{Status: Failed, Reason: reason, Err: err}
}

type readOptions struct {
	ignoreExpiry bool
	maxAge       time.Duration
}

// ReadOption adjusts a single Get.
type ReadOption func(*readOptions)

// IgnoreExpiry returns the entry regardless of age.
func IgnoreExpiry() ReadOption {
	return func(o *readOptions) { o.ignoreExpiry = true }
}

// MaxAge overrides the freshness window for one read.
func MaxAge(d time.Duration) ReadOption {
	return func(o *readOptions) { o.maxAge = d }
}

// Get decodes the entry under key into dest. It reports false when the entry
// is absent, unreadable or older than the freshness window.
func (m *Manager) Get(ctx context.Context, key string, dest any, opts ...ReadOption) bool {
	o := readOptions{maxAge: m.expiry}
	for _, opt := range opts {
		opt(&o)
	}

	raw, ok, err := m.kv.Get(key)
	if err != nil {
		m.logger.Warn("cache read failed", "key", key, "error", err)
		telemetry.RecordCacheRead(ctx, "corrupt")
		return false
	}
	if !ok {
		telemetry.RecordCacheRead(ctx, "miss")
		return false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || isNull(entry.Data) {
		m.logger.Warn("cache entry malformed", "key", key, "error", err)
		telemetry.RecordCacheRead(ctx, "corrupt")
		return false
	}

	if !o.ignoreExpiry {
		age := m.now().Sub(time.UnixMilli(entry.Timestamp))
		if age > o.maxAge {
			m.logger.Debug("cache entry expired", "key", key, "age", age)
			telemetry.RecordCacheRead(ctx, "expired")
			return false
		}
	}

	if err := json.Unmarshal(entry.Data, dest); err != nil {
		m.logger.Warn("cache payload malformed", "key", key, "error", err)
		telemetry.RecordCacheRead(ctx, "corrupt")
		return false
	}

	telemetry.RecordCacheRead(ctx, "hit")
	return true
}

func isNull(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Clear removes one entry. Removing an absent key is not an error.
func (m *Manager) Clear(key string) error {
	if err := m.kv.Remove(key); err != nil {
		return fmt.Errorf("clearing %q: %w", key, err)
	}
	return nil
}

// ClearPrefix removes every stored key starting with prefix in one batch.
func (m *Manager) ClearPrefix(prefix string) error {
	if prefix == "" {
		return errors.New("refusing to clear with empty prefix")
	}
	keys, err := m.kv.Keys()
	if err != nil {
		return fmt.Errorf("listing keys: %w", err)
	}

	var matched []string
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			matched = append(matched, k)
		}
	}
	if err := m.kv.RemoveMany(matched); err != nil {
		return fmt.Errorf("clearing prefix %q: %w", prefix, err)
	}
	m.logger.Debug("cleared cache prefix", "prefix", prefix, "count", len(matched))
	return nil
}

// ClearAll removes every entry in the cache namespace, leaving other keys.
func (m *Manager) ClearAll() error {
	if err := m.ClearPrefix(m.namespace); err != nil {
		return err
	}
	m.logger.Info("cleared all cache")
	return nil
}
