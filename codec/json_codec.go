package codec

import (
	"bytes"
	"encoding/json"
)

// JSONCodec uses Go's standard library encoding/json for serialization.
type JSONCodec struct{}

func (c JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode treats an empty payload and a JSON null as "no fields", which is how
// the peer answers commands without a result.
func (c JSONCodec) Decode(data []byte, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (c JSONCodec) Name() string {
	return "json"
}
