package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis backend.
type RedisOptions struct {
	// URL is the Redis connection string (e.g. "redis://localhost:6379/0").
	URL string
	// Prefix namespaces every key as "<prefix>:<key>".
	Prefix         string
	ConnectTimeout time.Duration
	// TTL expires items nobody promoted back. Zero keeps them.
	TTL time.Duration
}

// RedisKV stores items as plain Redis strings.
type RedisKV struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisKV connects to Redis and checks the connection.
func NewRedisKV(opts RedisOptions) (*RedisKV, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisKV{client: client, prefix: opts.Prefix, ttl: opts.TTL}, nil
}

func (kv *RedisKV) key(k string) string {
	if kv.prefix == "" {
		return k
	}
	return kv.prefix + ":" + k
}

// Get returns the value under key, or nil, nil if there is none.
func (kv *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := kv.client.Get(ctx, kv.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, mapRedisErr("get", key, err)
	}
	return data, nil
}

func (kv *RedisKV) Put(ctx context.Context, key string, value []byte) error {
	if err := kv.client.Set(ctx, kv.key(key), value, kv.ttl).Err(); err != nil {
		return mapRedisErr("put", key, err)
	}
	return nil
}

func (kv *RedisKV) Delete(ctx context.Context, key string) error {
	if err := kv.client.Del(ctx, kv.key(key)).Err(); err != nil {
		return mapRedisErr("delete", key, err)
	}
	return nil
}

func (kv *RedisKV) Close() error {
	return kv.client.Close()
}

func mapRedisErr(op, key string, err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("redis %s %s: %w", op, key, err)
}
