package appcache

// Key addresses a cached value.
//
// Segments are joined with "/" after the cache prefix. A non-nil NamespaceKey
// makes the key live inside a namespace: the namespace key's cached value is
// read at lookup time and becomes part of the raw key, so changing or
// invalidating that value makes every member unreachable at once.
// ShouldCompress is consulted on every write with the original value and its
// serialized bytes.
type Key interface {
	Segments() []string
	NamespaceKey() Key
	ShouldCompress(value any, serialized []byte) bool
}

// BaseKey supplies the common defaults: no namespace, no compression.
// Embed it and define Segments.
//
//	type favouritePokemon struct {
//		appcache.BaseKey
//		user string
//	}
//
//	func (k favouritePokemon) Segments() []string { return []string{"favourite_pokemon"} }
//	func (k favouritePokemon) NamespaceKey() appcache.Key { return lastChanged(k.user) }
type BaseKey struct{}

func (BaseKey) NamespaceKey() Key               { return nil }
func (BaseKey) ShouldCompress(any, []byte) bool { return false }

// StringKey is a single-segment key with no namespace that never compresses.
type StringKey string

var _ Key = StringKey("")

func (k StringKey) Segments() []string            { return []string{string(k)} }
func (StringKey) NamespaceKey() Key               { return nil }
func (StringKey) ShouldCompress(any, []byte) bool { return false }

// SegmentKey is a ready-made Key built from path segments, with an optional
// namespace and compression rule.
type SegmentKey struct {
	Parts     []string
	Namespace Key
	// Compress decides compression per write; nil never compresses.
	Compress func(value any, serialized []byte) bool
}

var _ Key = SegmentKey{}

// NewKey returns a SegmentKey for the given path segments.
func NewKey(parts ...string) SegmentKey {
	return SegmentKey{Parts: parts}
}

// In returns a copy of k that lives in the namespace addressed by ns.
func (k SegmentKey) In(ns Key) SegmentKey {
	k.Namespace = ns
	return k
}

// CompressAbove returns a copy of k that compresses serialized values
// larger than n bytes.
func (k SegmentKey) CompressAbove(n int) SegmentKey {
	k.Compress = CompressAbove(n)
	return k
}

func (k SegmentKey) Segments() []string { return k.Parts }
func (k SegmentKey) NamespaceKey() Key  { return k.Namespace }
func (k SegmentKey) ShouldCompress(value any, serialized []byte) bool {
	return k.Compress != nil && k.Compress(value, serialized)
}

// CompressAbove is a ShouldCompress rule that compresses payloads over n bytes.
func CompressAbove(n int) func(any, []byte) bool {
	return func(_ any, serialized []byte) bool { return len(serialized) > n }
}
