package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/domain/stock"
)

const (
	defaultStockKeyPrefix = "stock:available:"
	defaultStockTTL       = 24 * time.Hour
	// read-path refills may be stale, so they live shorter
	maxFillTTL = time.Minute
)

// RedisStockCounter mirrors the last committed quantity per product so
// product pages can show availability without hitting the database. It is
// a hint: reservations always read the store.
type RedisStockCounter struct {
	client    redis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStockCounter creates a counter. Empty prefix or zero ttl use defaults.
func NewRedisStockCounter(client redis.Cmdable, keyPrefix string, ttl time.Duration) *RedisStockCounter {
	if keyPrefix == "" {
		keyPrefix = defaultStockKeyPrefix
	}
	if ttl <= 0 {
		ttl = defaultStockTTL
	}
	return &RedisStockCounter{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

// Set records the quantity committed for productID
func (c *RedisStockCounter) Set(ctx context.Context, productID, quantity int64) error {
	if err := c.client.Set(ctx, c.key(productID), quantity, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache stock for product %d: %w", productID, err)
	}
	return nil
}

// Fill records quantity only when the key is missing
func (c *RedisStockCounter) Fill(ctx context.Context, productID, quantity int64) (bool, error) {
	ttl := min(c.ttl, maxFillTTL)
	ok, err := c.client.SetNX(ctx, c.key(productID), quantity, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to fill cached stock for product %d: %w", productID, err)
	}
	return ok, nil
}

// Get returns the cached quantity, found=false on a miss
func (c *RedisStockCounter) Get(ctx context.Context, productID int64) (int64, bool, error) {
	qty, err := c.client.Get(ctx, c.key(productID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read cached stock for product %d: %w", productID, err)
	}
	return qty, true, nil
}

func (c *RedisStockCounter) key(productID int64) string {
	return c.keyPrefix + strconv.FormatInt(productID, 10)
}

// InMemoryStockCounter is the single-process AvailabilityCache
type InMemoryStockCounter struct {
	mu   sync.RWMutex
	data map[int64]int64
}

// NewInMemoryStockCounter creates an empty counter
func NewInMemoryStockCounter() *InMemoryStockCounter {
	return &InMemoryStockCounter{data: make(map[int64]int64)}
}

// Set records the quantity for productID
func (c *InMemoryStockCounter) Set(_ context.Context, productID, quantity int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[productID] = quantity
	return nil
}

// Fill records quantity unless a value is already present
func (c *InMemoryStockCounter) Fill(_ context.Context, productID, quantity int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[productID]; ok {
		return false, nil
	}
	c.data[productID] = quantity
	return true, nil
}

// Get returns the recorded quantity
func (c *InMemoryStockCounter) Get(_ context.Context, productID int64) (int64, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	qty, ok := c.data[productID]
	return qty, ok, nil
}

var (
	_ stock.AvailabilityCache = (*RedisStockCounter)(nil)
	_ stock.AvailabilityCache = (*InMemoryStockCounter)(nil)
)
