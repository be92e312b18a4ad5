package appcache

import (
	"github.com/unkn0wn-root/appcache/codec"
	"github.com/unkn0wn-root/appcache/compress"
	pr "github.com/unkn0wn-root/appcache/provider"
)

// Options tune the cache. Only Provider is required; others have sensible defaults.
type Options struct {
	// Required
	Provider pr.Provider

	Prefix     string              // isolates tenants sharing a store; "" => "appcache"
	Serializer codec.Serializer    // nil => codec.Msgpack
	Compressor compress.Compressor // nil => compress.GZIP at level 5
	Logger     Logger              // nil => NopLogger
	Hooks      Hooks               // nil => NopHooks
	Disabled   bool                // every read misses, every write is dropped
	SelfHeal   bool                // delete entries that fail to decompress or decode
}

func New(opts Options) (*Cache, error) {
	if opts.Provider == nil {
		return nil, ErrProviderRequired
	}
	return newCache(opts), nil
}
