package streams

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/murrou-cell/stremio-zamunda/internal/domain"
	"github.com/murrou-cell/stremio-zamunda/internal/metrics"
)

const (
	defaultCacheTTL      = time.Hour
	defaultSweepInterval = 5 * time.Minute
)

// Cache stores resolved stream lists. Implementations must make Get and
// Set atomic per key; a returned slice is owned by the caller.
type Cache interface {
	Get(ctx context.Context, key string) ([]domain.Stream, bool, error)
	Set(ctx context.Context, key string, streams []domain.Stream) error
}

// Sweeper is implemented by caches that need expired entries purged
// actively rather than by their storage.
type Sweeper interface {
	Sweep() int
}

type cacheEntry struct {
	createdAt time.Time
	streams   []domain.Stream
}

// MemoryCache is a process-local TTL map. Entries past their TTL are never
// served and are removed by Sweep whether or not they are read again.
type MemoryCache struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type MemoryCacheOption func(*MemoryCache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) MemoryCacheOption {
	return func(c *MemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

func NewMemoryCache(ttl time.Duration, opts ...MemoryCacheOption) *MemoryCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	cache := &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache
}

func (c *MemoryCache) expired(entry cacheEntry, now time.Time) bool {
	return now.Sub(entry.createdAt) >= c.ttl
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]domain.Stream, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.expired(entry, c.now()) {
		return nil, false, nil
	}
	return domain.CloneStreams(entry.streams), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, streams []domain.Stream) error {
	stored := domain.CloneStreams(streams)
	if stored == nil {
		stored = []domain.Stream{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{createdAt: c.now(), streams: stored}
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes expired entries and returns how many it removed. Expired
// keys are collected under the read lock and deleted one write lock at a
// time, so a sweep never holds the write lock for more than one removal.
func (c *MemoryCache) Sweep() int {
	now := c.now()

	c.mu.RLock()
	expired := make([]string, 0)
	for key, entry := range c.entries {
		if c.expired(entry, now) {
			expired = append(expired, key)
		}
	}
	c.mu.RUnlock()

	removed := 0
	for _, key := range expired {
		c.mu.Lock()
		// The entry may have been refreshed since the scan.
		if entry, ok := c.entries[key]; ok && c.expired(entry, now) {
			delete(c.entries, key)
			removed++
		}
		metrics.CacheEntries.Set(float64(len(c.entries)))
		c.mu.Unlock()
	}
	if removed > 0 {
		metrics.CacheEvictionsTotal.Add(float64(removed))
	}
	return removed
}

// runSweeper schedules sweeper on a fixed interval until ctx is cancelled.
// The returned channel closes once the scheduler has stopped and any
// running sweep has finished.
func runSweeper(ctx context.Context, sweeper Sweeper, interval time.Duration, logger *slog.Logger) (<-chan struct{}, error) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	scheduler := cron.New()
	_, err := scheduler.AddFunc("@every "+interval.String(), func() {
		removed := sweeper.Sweep()
		logger.Debug("stream cache swept", slog.Int("removed", removed))
	})
	if err != nil {
		return nil, fmt.Errorf("schedule cache sweep: %w", err)
	}
	scheduler.Start()

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		<-scheduler.Stop().Done()
	}()
	return done, nil
}

// buildCacheKey digests every input that changes the result, so neither
// credentials nor other tenants' lookups can be read back from a key.
func buildCacheKey(cfg domain.UserConfig, request domain.StreamRequest) string {
	sum := sha256.New()
	for _, part := range []string{
		cfg.OMDBKey,
		cfg.Username,
		cfg.Password,
		string(request.Type),
		request.ID,
		strconv.FormatBool(cfg.BGAudio),
	} {
		sum.Write([]byte(part))
		sum.Write([]byte{0})
	}
	return hex.EncodeToString(sum.Sum(nil))
}
