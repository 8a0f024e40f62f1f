package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"
)

//go:generate mockgen -source=dedup.go -destination=mock_dedup.go -package=notification

// Deduper remembers change keys so redelivered triggers can be collapsed
type Deduper interface {
	// FirstSeen records key and reports whether it had not been seen before
	FirstSeen(ctx context.Context, key string) (bool, error)
	// Forget releases key so the next delivery of it counts as new
	Forget(ctx context.Context, key string) error
}

// NopDeduper treats every delivery as new
type NopDeduper struct{}

func (NopDeduper) FirstSeen(context.Context, string) (bool, error) {
	return true, nil
}

func (NopDeduper) Forget(context.Context, string) error { return nil }

// MemoryDeduper keeps recently seen keys in a bounded LRU within one process
type MemoryDeduper struct {
	mu   sync.Mutex
	seen *lru.Cache
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryDeduper remembers up to size keys for ttl each (forever when ttl is zero)
func NewMemoryDeduper(size int, ttl time.Duration) (*MemoryDeduper, error) {
	seen, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("dedup cache: %w", err)
	}
	return &MemoryDeduper{seen: seen, ttl: ttl, now: time.Now}, nil
}

func (d *MemoryDeduper) FirstSeen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if v, ok := d.seen.Get(key); ok {
		if d.ttl <= 0 || now.Sub(v.(time.Time)) < d.ttl {
			return false, nil
		}
	}
	d.seen.Add(key, now)
	return true, nil
}

func (d *MemoryDeduper) Forget(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seen.Remove(key)
	return nil
}

// SetNXer is the subset of the Redis client used by RedisDeduper
type SetNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisDeduper shares seen keys between dispatcher replicas through Redis SETNX
type RedisDeduper struct {
	client SetNXer
	prefix string
	ttl    time.Duration
}

// NewRedisDeduper stores keys under prefix, expiring after ttl
func NewRedisDeduper(client SetNXer, prefix string, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, prefix: prefix, ttl: ttl}
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

func (d *RedisDeduper) Forget(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// ConnectRedis opens a client and checks the server answers
func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	return rdb, nil
}
