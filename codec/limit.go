package codec

import "fmt"

// Limit wraps another serializer to enforce a maximum allowed payload size
// at Decode time. Encode is forwarded to Inner unchanged.
// If MaxDecode <= 0, size limiting is disabled.
//
// Typical use: protect against oversized/malicious inputs coming from a
// shared cache or untrusted source.
type Limit struct {
	// Inner is the underlying serializer being wrapped. It must be set.
	Inner Serializer
	// MaxDecode is the maximum permitted length (in bytes) of the incoming
	// payload for Decode. If payload length exceeds MaxDecode, Decode returns
	// an error without invoking Inner.
	MaxDecode int
}

var _ Serializer = Limit{}

func (c Limit) Encode(v any) ([]byte, error) { return c.Inner.Encode(v) }
func (c Limit) Decode(b []byte, out any) error {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		return fmt.Errorf("payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b, out)
}
