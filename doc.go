// Package appcache is an application-level cache façade over a pluggable raw
// byte store. Callers address values with structured keys; the cache handles
// serialization, optional compression and namespace-based group invalidation.
//
// Components:
//   - Provider: raw byte store with TTL (SQLite LRU, filesystem, Redis,
//     Ristretto, BigCache).
//   - Serializer: value <-> []byte (msgpack by default).
//   - Compressor: optional per-value gzip envelope, detected by its magic bytes.
//   - Key: path segments, optional namespace key, per-write compression rule.
//
// Raw keys:
//
//	<prefix>/<seg1>/<seg2>/...              - plain keys
//	<prefix>/<namespace value>/<seg1>/...   - keys inside a namespace
//
// Namespaces:
//
//	lastChanged := appcache.NewKey(user, "last_changed")
//	favourite   := appcache.NewKey("favourite_pokemon").In(lastChanged)
//
//	_ = cache.Set(ctx, lastChanged, time.Now(), 0) // open the namespace
//	_ = cache.Set(ctx, favourite, "pikachu", 0)
//	_ = cache.Set(ctx, lastChanged, time.Now(), 0) // every member is now unreachable
//
// A namespaced key whose namespace key has no cached value reads as a miss;
// writes and invalidations through it are skipped with a warning.
package appcache
