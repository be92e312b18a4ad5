// Package redis adapts a go-redis client to provider.Provider.
//
// A transport failure is retried exactly once; if the retry also fails the
// error is returned to the caller. Misses (redis.Nil) are never retried.
//
// go-redis retries on its own (MaxRetries defaults to 3), which would stack
// with the retry here. New rejects a *redis.Client unless its MaxRetries is
// -1. Cluster and ring clients cannot be inspected the same way; configure
// them with MaxRetries: -1 as well.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/appcache/provider"
)

var (
	ErrNilClient     = errors.New("redis provider: nil client")
	ErrClientRetries = errors.New("redis provider: client retries internally; set Options.MaxRetries to -1")
)

type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var _ pr.Provider = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this provider exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	// Options() reports the initialised value: -1 has become 0, 0 has become 3.
	if c, ok := cfg.Client.(*goredis.Client); ok && c.Options().MaxRetries > 0 {
		return nil, ErrClientRetries
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
}

// retryOnce runs op and, on a transport error, runs it one more time.
func retryOnce(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || errors.Is(err, goredis.Nil) || ctx.Err() != nil {
		return err
	}
	return op()
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var b []byte
	err := retryOnce(ctx, func() error {
		var err error
		b, err = p.rdb.Get(ctx, key).Bytes()
		return err
	})
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (p *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		// already expired: make sure an older value does not linger
		return p.Del(ctx, key)
	}
	// ttl == 0 is "no expiry" for both the provider contract and go-redis
	return retryOnce(ctx, func() error {
		return p.rdb.Set(ctx, key, value, ttl).Err()
	})
}

func (p *Redis) Del(ctx context.Context, key string) error {
	return retryOnce(ctx, func() error {
		return p.rdb.Del(ctx, key).Err()
	})
}

// Clear flushes the whole selected database, not just one cache prefix.
func (p *Redis) Clear(ctx context.Context) error {
	return retryOnce(ctx, func() error {
		return p.rdb.FlushDB(ctx).Err()
	})
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
