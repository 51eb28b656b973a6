// Package connect provides the Connect RPC control plane.
package connect

import (
	"encoding/json"
)

// JSONCodec encodes messages as plain JSON. It replaces connect's protojson
// codec so that messages can be ordinary Go structs.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (JSONCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}
