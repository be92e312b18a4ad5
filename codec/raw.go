package codec

import "fmt"

// Raw is an identity serializer for []byte and string values. Encode returns
// the bytes unchanged; Decode copies them into *[]byte, *string or *any
// (the latter receives a []byte). Useful when values are already encoded and
// you only want the cache's key handling and compression.
type Raw struct{}

var _ Serializer = Raw{}

func (Raw) Encode(v any) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		return nil, fmt.Errorf("raw codec: unsupported value type %T", v)
	}
}

func (Raw) Decode(b []byte, out any) error {
	switch t := out.(type) {
	case *[]byte:
		*t = append([]byte(nil), b...)
	case *string:
		*t = string(b)
	case *any:
		*t = append([]byte(nil), b...)
	default:
		return fmt.Errorf("raw codec: unsupported decode target %T", out)
	}
	return nil
}
