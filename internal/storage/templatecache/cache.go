// Package templatecache implements the two-tier (memory + disk) Template
// Cache: a per-template_id lock map coalesces concurrent fetches for the
// same id into a single gateway call (single-flight), and disk writes are
// atomic via temp-file + rename.
package templatecache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/brightleaf/certforge/internal/common"
	"github.com/brightleaf/certforge/internal/interfaces"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// Cache is a TTL'd, single-flight template byte cache with a memory tier
// backed by a disk tier.
type Cache struct {
	basePath string
	ttl      time.Duration
	logger   *common.Logger

	mu      sync.RWMutex
	memory  map[string]memoryEntry
	keyLock *keyMutexMap

	// distLock coalesces fetches across worker processes, not just within
	// this one. Optional: a nil distLock leaves per-process single-flight
	// (keyLock) as the only coalescing, which is sufficient for a single
	// replica but not for "at most one in flight across all items and
	// batches" when several worker processes share a template set.
	distLock    interfaces.Lock
	lockTimeout time.Duration
}

// New constructs a Template Cache rooted at basePath, with entries expiring
// after ttl.
func New(basePath string, ttl time.Duration, logger *common.Logger) (*Cache, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create template cache directory %s: %w", basePath, err)
	}
	return &Cache{
		basePath: basePath,
		ttl:      ttl,
		logger:   logger,
		memory:   make(map[string]memoryEntry),
		keyLock:  newKeyMutexMap(),
	}, nil
}

// WithDistLock attaches a distributed lock used to guard template fetches
// across worker processes, not just within this one.
func (c *Cache) WithDistLock(lock interfaces.Lock, lockTimeout time.Duration) *Cache {
	c.distLock = lock
	c.lockTimeout = lockTimeout
	return c
}

// Get returns the cached bytes for templateID. Concurrent callers for the
// same id are serialized by a per-key lock (plus a distributed lock across
// processes when configured), so at most one fetch per id runs at a time
// and waiters behind a successful fetch get its bytes without fetching. A
// failed fetch is not cached or shared: the next waiter fetches again.
func (c *Cache) Get(ctx context.Context, templateID string, fetch func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if data, ok := c.fromMemory(templateID); ok {
		return data, nil
	}

	unlock := c.keyLock.lock(templateID)
	defer unlock()

	// Re-check after acquiring the lock: another caller may have already
	// populated this entry while we waited.
	if data, ok := c.fromMemory(templateID); ok {
		return data, nil
	}
	if data, ok := c.fromDisk(templateID); ok {
		c.putMemory(templateID, data)
		return data, nil
	}

	if c.distLock != nil {
		return c.getWithDistLock(ctx, templateID, fetch)
	}
	return c.fetchAndStore(ctx, templateID, fetch)
}

// getWithDistLock acquires the cross-process lock before fetching. If
// another process already holds it, this caller polls the disk tier for
// the result that process is expected to populate, falling back to
// fetching itself if the lock never frees up in time.
func (c *Cache) getWithDistLock(ctx context.Context, templateID string, fetch func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	lockKey := "template:" + templateID
	acquired, err := c.distLock.Acquire(ctx, lockKey, c.lockTimeout)
	if err != nil {
		c.logger.Warn().Str("template_id", templateID).Err(err).Msg("distributed template lock unavailable, fetching directly")
		return c.fetchAndStore(ctx, templateID, fetch)
	}
	if !acquired {
		deadline := time.Now().Add(c.lockTimeout)
		for time.Now().Before(deadline) {
			if data, ok := c.fromDisk(templateID); ok {
				c.putMemory(templateID, data)
				return data, nil
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
		// The lock holder never finished in time; fetch ourselves rather
		// than block indefinitely.
		return c.fetchAndStore(ctx, templateID, fetch)
	}
	defer func() {
		if err := c.distLock.Release(ctx, lockKey); err != nil {
			c.logger.Warn().Str("template_id", templateID).Err(err).Msg("failed to release distributed template lock")
		}
	}()
	return c.fetchAndStore(ctx, templateID, fetch)
}

func (c *Cache) fetchAndStore(ctx context.Context, templateID string, fetch func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	data, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.putDisk(templateID, data); err != nil {
		c.logger.Warn().Str("template_id", templateID).Err(err).Msg("failed to write template cache disk entry")
	}
	c.putMemory(templateID, data)
	return data, nil
}

func (c *Cache) fromMemory(templateID string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.memory[templateID]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.data, true
}

func (c *Cache) putMemory(templateID string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory[templateID] = memoryEntry{data: data, expiresAt: time.Now().Add(c.ttl)}
}

func (c *Cache) diskPath(templateID string) string {
	return filepath.Join(c.basePath, templateID+".bin")
}

func (c *Cache) fromDisk(templateID string) ([]byte, bool) {
	path := c.diskPath(templateID)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > c.ttl {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// putDisk writes data atomically: temp file in the same directory, then
// rename over the final path.
func (c *Cache) putDisk(templateID string, data []byte) error {
	path := c.diskPath(templateID)
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

var _ interfaces.TemplateCache = (*Cache)(nil)
