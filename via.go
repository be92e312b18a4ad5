package appcache

import (
	"context"
	"time"
)

// GetAs reads key into a fresh V.
func GetAs[V any](ctx context.Context, c *Cache, key Key) (V, bool, error) {
	var v V
	ok, err := c.Get(ctx, key, &v)
	if err != nil || !ok {
		var zero V
		return zero, false, err
	}
	return v, true, nil
}

// GetVia returns the cached value for key or computes, stores and returns it.
// Concurrent misses on the same raw key share one compute call. When compute
// fails nothing is cached and its error is returned. A store failure after a
// successful compute returns the computed value together with the error.
func GetVia[V any](ctx context.Context, c *Cache, key Key, ttl time.Duration, compute func(context.Context) (V, error)) (V, error) {
	if v, ok, err := GetAs[V](ctx, c, key); err != nil || ok {
		return v, err
	}
	if !c.enabled {
		return compute(ctx)
	}

	raw, missing, err := c.rawKey(ctx, key, 0)
	if err != nil {
		var zero V
		return zero, err
	}
	if missing != "" {
		// Nothing to share: the write would be skipped anyway.
		v, err := compute(ctx)
		if err != nil {
			return v, err
		}
		return v, c.Set(ctx, key, v, ttl)
	}

	res, err, _ := c.flight.Do(raw, func() (any, error) {
		// a previous flight may have stored it between our miss and now
		if v, ok, err := GetAs[V](ctx, c, key); err != nil || ok {
			return v, err
		}
		v, err := compute(ctx)
		if err != nil {
			return v, err
		}
		return v, c.Set(ctx, key, v, ttl)
	})
	v, _ := res.(V)
	return v, err
}

// SetVia runs action with value first and caches value only when it succeeds.
func SetVia[V any](ctx context.Context, c *Cache, key Key, value V, ttl time.Duration, action func(context.Context, V) error) error {
	if err := action(ctx, value); err != nil {
		return err
	}
	return c.Set(ctx, key, value, ttl)
}
