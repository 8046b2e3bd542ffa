// Package codec converts typed command parameters, results and event payloads
// to and from their wire form.
//
// The wire form is UTF-8 JSON with camelCase field names; absent optional fields
// are omitted rather than sent as null. Generated domain types carry the json
// struct tags, so the codec itself stays a thin layer.
package codec

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Name() string
}

// Default is the codec used when a connection is not given one.
var Default Codec = JSONCodec{}
