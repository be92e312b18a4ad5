// Package namespace manages generation tokens stored under namespace keys.
//
// A namespace key's cached value is part of every member's raw key, so
// writing a new token there makes all members unreachable at once without
// touching them. Orphaned members age out through the provider's TTL or
// eviction.
package namespace

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/appcache"
)

type Config struct {
	// TTL of the token itself. 0 => never expires. A token that expires
	// makes its members unreachable just like a rotation does.
	TTL time.Duration
	// NewToken returns a fresh generation token; nil => random UUID.
	NewToken func() string
}

// Generations reads and rotates namespace tokens through a cache.
type Generations struct {
	cache    *appcache.Cache
	ttl      time.Duration
	newToken func() string
}

func New(c *appcache.Cache, cfg Config) *Generations {
	g := &Generations{cache: c, ttl: cfg.TTL, newToken: cfg.NewToken}
	if g.newToken == nil {
		g.newToken = uuid.NewString
	}
	return g
}

// Current returns the token stored under key; missing => ok=false.
func (g *Generations) Current(ctx context.Context, key appcache.Key) (string, bool, error) {
	return appcache.GetAs[string](ctx, g.cache, key)
}

// Rotate stores a fresh token under key and returns it.
func (g *Generations) Rotate(ctx context.Context, key appcache.Key) (string, error) {
	tok := g.newToken()
	if err := g.cache.Set(ctx, key, tok, g.ttl); err != nil {
		return "", err
	}
	return tok, nil
}

// RotateMany rotates each key in order and stops at the first error.
func (g *Generations) RotateMany(ctx context.Context, keys ...appcache.Key) error {
	for _, k := range keys {
		if _, err := g.Rotate(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Ensure returns the current token, creating one when the namespace does
// not exist yet.
func (g *Generations) Ensure(ctx context.Context, key appcache.Key) (string, error) {
	tok, ok, err := g.Current(ctx, key)
	if err != nil {
		return "", err
	}
	if ok && tok != "" {
		return tok, nil
	}
	return g.Rotate(ctx, key)
}

// Drop removes the token. Members read as misses and writes to them are
// skipped until the namespace is ensured again.
func (g *Generations) Drop(ctx context.Context, key appcache.Key) error {
	return g.cache.Invalidate(ctx, key)
}
