package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis is a Cache backed by a redis instance. Entries are keyed
// <namespace>:v<version>:<key>; Invalidate increments the version
// counter, orphaning old entries until their TTLs reap them.
type Redis struct {
	client    *redis.Client
	namespace string
}

// NewRedis connects to the given address and verifies it with a ping.
func NewRedis(ctx context.Context, addr, namespace string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: ping %s: %w", addr, err)
	}
	return &Redis{client: client, namespace: namespace}, nil
}

func (r *Redis) versionKey() string {
	return r.namespace + ":version"
}

func (r *Redis) fullKey(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, r.versionKey()).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d:%s", r.namespace, v, key), nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	fk, err := r.fullKey(ctx, key)
	if err != nil {
		return nil, err
	}
	val, err := r.client.Get(ctx, fk).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	fk, err := r.fullKey(ctx, key)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, fk, value, ttl).Err()
}

func (r *Redis) Invalidate(ctx context.Context) error {
	return r.client.Incr(ctx, r.versionKey()).Err()
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
