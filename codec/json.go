package codec

import "encoding/json"

// JSON serializes with encoding/json. Numbers decoded into *any become float64.
type JSON struct{}

var _ Serializer = JSON{}

func (JSON) Encode(v any) ([]byte, error) { return json.Marshal(v) }
func (JSON) Decode(b []byte, out any) error {
	return json.Unmarshal(b, out)
}
