package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/pbosetti/mads-plugin/errors"
)

// DefaultPrefix namespaces the Redis keys written by RedisBackend
const DefaultPrefix = "mads:"

// RedisBackend keeps documents as Redis strings under a key prefix
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
	owned  bool
}

// NewRedisBackend wraps an existing client. The client stays owned by the caller.
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

// NewRedisBackendURL connects to the server named by a redis:// URL and pings it
func NewRedisBackendURL(ctx context.Context, rawURL, prefix string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, errors.WrapInvalid(err, "RedisBackend", "NewRedisBackendURL", "parse redis URL")
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.WrapTransient(err, "RedisBackend", "NewRedisBackendURL",
			fmt.Sprintf("ping %s", opts.Addr))
	}

	b := NewRedisBackend(client, prefix)
	b.owned = true
	return b, nil
}

// Kind returns "redis"
func (b *RedisBackend) Kind() string { return "redis" }

// Put stores data at key
func (b *RedisBackend) Put(ctx context.Context, key string, data []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := b.client.Set(ctx, b.prefix+key, data, 0).Err(); err != nil {
		return errors.WrapTransient(err, "RedisBackend", "Put", fmt.Sprintf("set %s", key))
	}
	return nil
}

// Get returns the data at key
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	data, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, errors.Wrap(errors.ErrKeyNotFound, "RedisBackend", "Get", fmt.Sprintf("get %s", key))
		}
		return nil, errors.WrapTransient(err, "RedisBackend", "Get", fmt.Sprintf("get %s", key))
	}
	return data, nil
}

// List scans the keys under the backend prefix
func (b *RedisBackend) List(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	iter := b.client.Scan(ctx, 0, b.prefix+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), b.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, errors.WrapTransient(err, "RedisBackend", "List", "scan keys")
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes key
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := b.client.Del(ctx, b.prefix+key).Err(); err != nil {
		return errors.WrapTransient(err, "RedisBackend", "Delete", fmt.Sprintf("del %s", key))
	}
	return nil
}

// Close closes the client when the backend dialed it itself
func (b *RedisBackend) Close() error {
	if !b.owned {
		return nil
	}
	return b.client.Close()
}
