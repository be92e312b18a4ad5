package bigcache

import (
	"context"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/appcache/internal/wire"
	pr "github.com/unkn0wn-root/appcache/provider"
)

// Provider keeps entries in bigcache. BigCache only knows one global
// LifeWindow, so each value is framed with its own expiry and checked on read.
type Provider struct {
	c   *bc.BigCache
	now func() time.Time
}

var _ pr.Provider = (*Provider)(nil)

// ErrLifeWindow is returned when Config.LifeWindow is not positive.
var ErrLifeWindow = errors.New("bigcache provider: LifeWindow must be positive")

type Config struct {
	// LifeWindow is the upper bound on any entry's lifetime, NoExpiry
	// entries included; bigcache evicts everything older. Required.
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
	Now                func() time.Time
}

func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.LifeWindow <= 0 {
		return nil, ErrLifeWindow
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Provider{c: c, now: now}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	rec, err := wire.Decode(b)
	if err != nil || rec.Expired(p.now()) {
		_ = p.c.Delete(key)
		return nil, false, nil
	}
	return rec.Payload, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		return p.Del(context.Background(), key)
	}
	return p.c.Set(key, wire.Encode(wire.ExpiryFor(p.now(), ttl), value))
}

func (p *Provider) Del(_ context.Context, key string) error {
	err := p.c.Delete(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil
	}
	return err
}

func (p *Provider) Clear(context.Context) error {
	return p.c.Reset()
}

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}
