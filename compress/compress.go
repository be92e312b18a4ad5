// Package compress provides the optional compression envelope applied to
// cached payloads. Providers only hold bytes, so whether a payload is
// compressed must be detectable from the payload itself.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Compressor detects, applies and removes a self-describing compression envelope.
type Compressor interface {
	// IsCompressed reports whether b carries this compressor's envelope.
	IsCompressed(b []byte) bool
	Compress(b []byte) ([]byte, error)
	Decompress(b []byte) ([]byte, error)
}

// Magic is the gzip member header. A stored payload starts with it if and
// only if it was compressed.
var Magic = [2]byte{0x1f, 0x8b}

const (
	// DefaultLevel is the gzip level used by the zero-value GZIP.
	DefaultLevel = 5
	// DefaultMaxDecompressed caps inflated output when GZIP.MaxDecompressed is 0.
	DefaultMaxDecompressed int64 = 64 << 20
)

// ErrTooLarge is returned when a payload inflates past the configured cap.
var ErrTooLarge = errors.New("compress: decompressed payload too large")

// GZIP compresses with gzip (klauspost/compress). The zero value uses
// DefaultLevel.
type GZIP struct {
	// Level is the gzip compression level; 0 means DefaultLevel.
	Level int
	// MaxDecompressed bounds Decompress output in bytes; 0 means
	// DefaultMaxDecompressed, negative disables the cap.
	MaxDecompressed int64
}

var _ Compressor = GZIP{}

func (GZIP) IsCompressed(b []byte) bool {
	return len(b) >= 2 && b[0] == Magic[0] && b[1] == Magic[1]
}

func (g GZIP) Compress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, coalesceLevel(g.Level))
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g GZIP) Decompress(b []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	limit := g.MaxDecompressed
	if limit == 0 {
		limit = DefaultMaxDecompressed
	}
	if limit < 0 {
		return io.ReadAll(r)
	}
	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("%w: over %d bytes", ErrTooLarge, limit)
	}
	return out, nil
}

func coalesceLevel(l int) int {
	if l == 0 {
		return DefaultLevel
	}
	return l
}
