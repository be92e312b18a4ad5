// Package wire frames values for stores that cannot carry an expiry next to
// the value themselves (plain files, bigcache). The frame is stripped before
// the bytes are handed back to the cache.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version    byte = 1
	kindRecord byte = 1

	hdrLen = 4 + 1 + 1 + 8 + 4
)

var (
	ErrCorrupt = errors.New("appcache: corrupt record")
	magic4     = [...]byte{'A', 'P', 'P', 'C'}
)

// Record is a decoded frame. A zero Expiry means the value never expires.
type Record struct {
	Expiry  time.Time
	Payload []byte
}

// Expired reports whether the record is past its expiry at now.
// An entry whose expiry equals now is already expired.
func (r Record) Expired(now time.Time) bool {
	return !r.Expiry.IsZero() && !now.Before(r.Expiry)
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// ExpiryFor converts a TTL into an absolute expiry. ttl == 0 yields the zero
// time ("never"); a negative ttl yields an expiry in the past.
func ExpiryFor(now time.Time, ttl time.Duration) time.Time {
	if ttl == 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// Encode lays out:
//
//	magic(4) | ver(1) | kind(1=record) | expiry(i64 be, unix nanos, 0=never) | vlen(u32 be) | payload(vlen)
func Encode(expiry time.Time, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindRecord)

	var u8 [8]byte
	var u4 [4]byte

	var exp int64
	if !expiry.IsZero() {
		exp = expiry.UnixNano()
	}
	binary.BigEndian.PutUint64(u8[:], uint64(exp))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// Decode parses a frame produced by Encode. The payload aliases b.
func Decode(b []byte) (Record, error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version || b[5] != kindRecord {
		return Record{}, ErrCorrupt
	}

	off := 6

	exp := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // exact length; trailing bytes are corruption
		return Record{}, ErrCorrupt
	}

	var rec Record
	if exp != 0 {
		rec.Expiry = time.Unix(0, exp)
	}
	rec.Payload = b[off : off+vlen]
	return rec, nil
}
