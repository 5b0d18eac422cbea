package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lyzr/materials/common/logger"
	rediscommon "github.com/lyzr/materials/common/redis"
)

// MemoryCache is an in-process stand-in for the Redis wrapper, used when the
// service runs without Redis. Published values reach no subscriber.
type MemoryCache struct {
	data map[string]*cacheEntry
	mu   sync.RWMutex
	log  *logger.Logger
	done chan struct{}
	once sync.Once
	now  func() time.Time
}

type cacheEntry struct {
	value     string
	expiresAt time.Time // zero never expires
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(log *logger.Logger) *MemoryCache {
	c := &MemoryCache{
		data: make(map[string]*cacheEntry),
		log:  log,
		done: make(chan struct{}),
		now:  time.Now,
	}

	go c.cleanup(time.Minute)

	return c
}

// Get retrieves a value. Missing and expired keys return
// rediscommon.ErrKeyNotFound.
func (c *MemoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[key]
	if !exists || entry.expired(c.now()) {
		return "", fmt.Errorf("%w: %s", rediscommon.ErrKeyNotFound, key)
	}
	return entry.value, nil
}

// SetWithExpiry stores value under key for ttl
func (c *MemoryCache) SetWithExpiry(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.set(key, value, ttl)
	return nil
}

// SetNX stores value only when key is absent or expired
func (c *MemoryCache) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.data[key]; exists && !entry.expired(c.now()) {
		return false, nil
	}
	c.set(key, value, ttl)
	return true, nil
}

// DeleteIfValue removes key only while it holds value
func (c *MemoryCache) DeleteIfValue(_ context.Context, key, value string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.data[key]
	if !exists || entry.expired(c.now()) || entry.value != value {
		return false, nil
	}
	delete(c.data, key)
	return true, nil
}

// Delete removes keys
func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		delete(c.data, key)
	}
	return nil
}

// SetAndPublish stores value under key. There are no in-process
// subscribers, so the channel is only logged.
func (c *MemoryCache) SetAndPublish(ctx context.Context, key, value string, ttl time.Duration, channel string) error {
	if err := c.SetWithExpiry(ctx, key, value, ttl); err != nil {
		return err
	}
	c.log.Debug("memory cache publish dropped", "channel", channel)
	return nil
}

// Close stops the cleanup loop and drops every entry
func (c *MemoryCache) Close() error {
	c.once.Do(func() {
		close(c.done)

		c.mu.Lock()
		c.data = make(map[string]*cacheEntry)
		c.mu.Unlock()

		c.log.Info("memory cache closed")
	})
	return nil
}

// Len returns the number of live entries
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	n := 0
	for _, entry := range c.data {
		if !entry.expired(now) {
			n++
		}
	}
	return n
}

func (c *MemoryCache) set(key, value string, ttl time.Duration) {
	entry := &cacheEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.data[key] = entry
}

// cleanup removes expired entries periodically
func (c *MemoryCache) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.evict()
		}
	}
}

func (c *MemoryCache) evict() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.data {
		if entry.expired(now) {
			delete(c.data, key)
		}
	}
}
