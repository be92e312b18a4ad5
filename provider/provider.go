// Package provider defines the raw byte store used behind appcache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata visible to the caller, no re-encoding, no mutation). If a store frames
// values internally (e.g. to carry an expiry), the framing MUST be fully removed
// before Get returns.
//
// Keys are raw keys built by the cache ("<prefix>/<namespace>/<segment>/...").
// Foreign writes under the same prefix are tolerated by the cache but will be
// treated as misses when they fail to decode.
package provider

import (
	"context"
	"errors"
	"time"
)

// ErrRejected is returned by Set when a store refused the write under
// pressure (admission policy, full buffers). Callers treat it as a dropped
// write, not a failure.
var ErrRejected = errors.New("provider: set rejected")

// NoExpiry is the TTL meaning "never expires". It is a sentinel, not a
// zero-length lifetime.
const NoExpiry time.Duration = 0

// Provider is a minimal byte store with TTLs. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss or expiry.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. ttl == NoExpiry means the entry never
	// expires; a negative ttl stores an entry that is already expired.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Del removes a key. A missing key is not an error.
	Del(ctx context.Context, key string) error

	// Clear removes every entry the store holds. For shared backends this is
	// usually global, not limited to one cache prefix.
	Clear(ctx context.Context) error

	// Close releases resources.
	Close(ctx context.Context) error
}
