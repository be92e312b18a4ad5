// Package codec holds the serializers used by appcache to turn values into
// the bytes handed to a provider, and back.
//
// Decode must never panic on foreign or truncated input: the cache shares its
// keyspace with whatever else writes to the same store, so any payload may be
// garbage. Returning an error is enough; the cache turns it into a miss.
package codec

// Serializer encodes arbitrary values to []byte and decodes them into out,
// which must be a non-nil pointer.
type Serializer interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte, out any) error
}
