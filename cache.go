package appcache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/appcache/codec"
	"github.com/unkn0wn-root/appcache/compress"
	"github.com/unkn0wn-root/appcache/internal/util"
	pr "github.com/unkn0wn-root/appcache/provider"
)

const (
	DefaultPrefix = "appcache"

	// maxNamespaceDepth bounds namespace chains so a cycle reads as unresolved.
	maxNamespaceDepth = 8
)

// Cache is the façade over a raw byte store. It is immutable after
// construction and safe for concurrent use.
type Cache struct {
	prefix   string
	provider pr.Provider
	ser      codec.Serializer
	comp     compress.Compressor
	log      Logger
	hooks    Hooks
	enabled  bool
	selfHeal bool
	flight   *singleflight.Group
}

func newCache(opts Options) *Cache {
	return &Cache{
		prefix:   coalesce(opts.Prefix, DefaultPrefix),
		provider: opts.Provider,
		ser:      coalesce[codec.Serializer](opts.Serializer, codec.Msgpack{}),
		comp:     coalesce[compress.Compressor](opts.Compressor, compress.GZIP{Level: compress.DefaultLevel}),
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:    coalesce[Hooks](opts.Hooks, NopHooks{}),
		enabled:  !opts.Disabled,
		selfHeal: opts.SelfHeal,
		flight:   &singleflight.Group{},
	}
}

func (c *Cache) Prefix() string { return c.prefix }
func (c *Cache) Enabled() bool  { return c.enabled }

// WithPrefix returns a façade over the same provider that reads and writes
// under a different prefix.
func (c *Cache) WithPrefix(prefix string) *Cache {
	cp := *c
	cp.prefix = coalesce(prefix, DefaultPrefix)
	cp.flight = &singleflight.Group{}
	return &cp
}

// Get decodes the value stored under key into out, which must be a non-nil
// pointer. Absent, expired and undecodable entries are misses. A key whose
// namespace cannot be resolved is a miss as well.
func (c *Cache) Get(ctx context.Context, key Key, out any) (bool, error) {
	if err := checkOut(out); err != nil {
		return false, err
	}
	if !c.enabled {
		return false, nil
	}
	raw, ok, err := c.resolve(ctx, key, "get")
	if err != nil || !ok {
		return false, err
	}
	return c.getRaw(ctx, raw, out)
}

// Set serializes value, compresses it when key asks for it and stores it
// under the resolved raw key. ttl 0 means no expiry. A write through an
// unresolved namespace is skipped and reported via Logger and Hooks.
func (c *Cache) Set(ctx context.Context, key Key, value any, ttl time.Duration) error {
	if !c.enabled {
		return nil
	}
	raw, ok, err := c.resolve(ctx, key, "set")
	if err != nil || !ok {
		return err
	}
	b, err := c.encode(raw, value, func(s []byte) bool { return key.ShouldCompress(value, s) })
	if err != nil {
		return err
	}
	return c.setRaw(ctx, raw, b, ttl)
}

// Invalidate removes the value under key. When key is a namespace key this
// makes every member unreachable.
func (c *Cache) Invalidate(ctx context.Context, key Key) error {
	if !c.enabled {
		return nil
	}
	raw, ok, err := c.resolve(ctx, key, "invalidate")
	if err != nil || !ok {
		return err
	}
	return c.delRaw(ctx, raw)
}

// GetByStr reads prefix/key directly, bypassing the Key abstraction.
func (c *Cache) GetByStr(ctx context.Context, key string, out any) (bool, error) {
	if err := checkOut(out); err != nil {
		return false, err
	}
	if !c.enabled {
		return false, nil
	}
	return c.getRaw(ctx, c.strKey(key), out)
}

// SetByStr writes prefix/key directly, compressing when asked.
func (c *Cache) SetByStr(ctx context.Context, key string, value any, ttl time.Duration, compress bool) error {
	if !c.enabled {
		return nil
	}
	raw := c.strKey(key)
	b, err := c.encode(raw, value, func([]byte) bool { return compress })
	if err != nil {
		return err
	}
	return c.setRaw(ctx, raw, b, ttl)
}

func (c *Cache) InvalidateByStr(ctx context.Context, key string) error {
	if !c.enabled {
		return nil
	}
	return c.delRaw(ctx, c.strKey(key))
}

// Clear empties the whole provider, including entries written under other
// prefixes.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.provider.Clear(ctx); err != nil {
		c.hooks.ProviderError("clear", "", err)
		c.log.Error("provider clear failed", Fields{"err": err})
		return &OpError{Op: "clear", Err: err}
	}
	c.log.Info("cache cleared", Fields{"prefix": c.prefix})
	return nil
}

func (c *Cache) Close(ctx context.Context) error {
	if c.provider == nil {
		return nil
	}
	return c.provider.Close(ctx)
}

func (c *Cache) strKey(key string) string {
	return util.RawKey(c.prefix, "", false, []string{key})
}

// resolve builds the raw key for key. ok is false when a namespace along the
// chain has no cached value; that is reported here and is not an error.
func (c *Cache) resolve(ctx context.Context, key Key, op string) (string, bool, error) {
	raw, missing, err := c.rawKey(ctx, key, 0)
	if err != nil {
		return "", false, err
	}
	if missing != "" {
		c.hooks.NamespaceUnresolved(op, missing)
		f := Fields{"op": op, "namespace": missing, "key": strings.Join(key.Segments(), "/")}
		if op == "get" {
			c.log.Debug("namespace does not exist, treating as miss", f)
		} else {
			c.log.Warn(fmt.Sprintf("unable to %s key as namespace does not exist", op), f)
		}
		return "", false, nil
	}
	return raw, true, nil
}

// rawKey returns the raw key for key, or the raw key of the first namespace
// along the chain that could not be resolved.
func (c *Cache) rawKey(ctx context.Context, key Key, depth int) (raw string, missing string, err error) {
	nsKey := key.NamespaceKey()
	if nsKey == nil {
		return util.RawKey(c.prefix, "", false, key.Segments()), "", nil
	}
	if depth >= maxNamespaceDepth {
		return "", util.RawKey(c.prefix, "", false, nsKey.Segments()), nil
	}
	nsRaw, missing, err := c.rawKey(ctx, nsKey, depth+1)
	if err != nil || missing != "" {
		return "", missing, err
	}
	var v any
	ok, err := c.getRaw(ctx, nsRaw, &v)
	if err != nil {
		return "", "", err
	}
	if !ok {
		return "", nsRaw, nil
	}
	return util.RawKey(c.prefix, namespaceString(v), true, key.Segments()), "", nil
}

// namespaceString formats a decoded namespace value as a raw key component.
func namespaceString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func (c *Cache) getRaw(ctx context.Context, raw string, out any) (bool, error) {
	b, ok, err := c.provider.Get(ctx, raw)
	if err != nil {
		c.hooks.ProviderError("get", raw, err)
		c.log.Error("provider get failed", Fields{"key": raw, "err": err})
		return false, &OpError{Op: "get", Key: raw, Err: err}
	}
	if !ok {
		return false, nil
	}
	payload := b
	if c.comp.IsCompressed(b) {
		if payload, err = c.comp.Decompress(b); err != nil {
			c.corrupt(ctx, raw, "decompress", err)
			return false, nil
		}
	}
	if err := c.decode(payload, out); err != nil {
		c.corrupt(ctx, raw, "decode", err)
		return false, nil
	}
	return true, nil
}

// decode never lets a malformed payload escape as a panic.
func (c *Cache) decode(b []byte, out any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode panic: %v", r)
		}
	}()
	return c.ser.Decode(b, out)
}

func (c *Cache) corrupt(ctx context.Context, raw, reason string, err error) {
	c.hooks.CorruptEntry(raw, reason)
	c.log.Warn("corrupt cache entry treated as miss", Fields{"key": raw, "reason": reason, "err": err})
	if !c.selfHeal {
		return
	}
	if derr := c.provider.Del(ctx, raw); derr != nil {
		c.log.Debug("self-heal delete failed", Fields{"key": raw, "err": derr})
	}
}

func (c *Cache) encode(raw string, value any, shouldCompress func([]byte) bool) ([]byte, error) {
	b, err := c.ser.Encode(value)
	if err != nil {
		return nil, &SerializeError{Key: raw, Err: err}
	}
	// A plain payload that happens to start with the envelope magic would be
	// misread as compressed, so it gets the envelope regardless.
	if !shouldCompress(b) && !c.comp.IsCompressed(b) {
		return b, nil
	}
	z, err := c.comp.Compress(b)
	if err != nil {
		return nil, fmt.Errorf("appcache: compress %q: %w", raw, err)
	}
	return z, nil
}

func (c *Cache) setRaw(ctx context.Context, raw string, b []byte, ttl time.Duration) error {
	err := c.provider.Set(ctx, raw, b, ttl)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pr.ErrRejected):
		c.hooks.ProviderSetRejected(raw)
		c.log.Debug("Set rejected by provider (pressure)", Fields{"key": raw, "size": len(b)})
		return nil
	default:
		c.hooks.ProviderError("set", raw, err)
		c.log.Error("provider set failed", Fields{"key": raw, "err": err})
		return &OpError{Op: "set", Key: raw, Err: err}
	}
}

func (c *Cache) delRaw(ctx context.Context, raw string) error {
	if err := c.provider.Del(ctx, raw); err != nil {
		c.hooks.ProviderError("del", raw, err)
		c.log.Error("provider del failed", Fields{"key": raw, "err": err})
		return &OpError{Op: "del", Key: raw, Err: err}
	}
	c.log.Debug("invalidated key", Fields{"key": raw})
	return nil
}

func checkOut(out any) error {
	if out == nil {
		return ErrNilOut
	}
	v := reflect.ValueOf(out)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return ErrNilOut
	}
	return nil
}
