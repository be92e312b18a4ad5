package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack is a Serializer backed by vmihailenco/msgpack/v5.
// The zero value is ready to use and is the cache default.
//
// Msgpack is self-describing, so decoding into *any works and yields
// map[string]any, []any, strings, numbers and time.Time. Use `msgpack:"name"`
// struct tags if you need explicit control over field names.
type Msgpack struct{}

var _ Serializer = Msgpack{}

func (Msgpack) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Msgpack) Decode(b []byte, out any) error {
	return msgpack.Unmarshal(b, out)
}
