package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Protobuf serializes proto.Message values. Both the encoded value and the
// decode target must implement proto.Message; anything else is an error.
// Protobuf payloads are not self-describing, so a cache using this serializer
// cannot resolve namespace keys (they decode into *any).
type Protobuf struct {
	// Unmarshal tunes decoding; the zero value is proto's default.
	Unmarshal proto.UnmarshalOptions
}

var _ Serializer = Protobuf{}

func (Protobuf) Encode(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("protobuf codec: %T is not a proto.Message", v)
	}
	return proto.Marshal(m)
}

func (c Protobuf) Decode(b []byte, out any) error {
	m, ok := out.(proto.Message)
	if !ok {
		return fmt.Errorf("protobuf codec: %T is not a proto.Message", out)
	}
	return c.Unmarshal.Unmarshal(b, m)
}
