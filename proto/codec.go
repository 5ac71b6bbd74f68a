package proto

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protojson"
	protobuf "google.golang.org/protobuf/proto"
)

// CodecName is the content subtype of every Cloudd call ("application/grpc+json").
const CodecName = "json"

// codec carries the api documents as JSON. Protobuf messages, such as the
// well-known types, go through protojson so they keep their canonical form.
type codec struct{}

func init() {
	encoding.RegisterCodec(codec{})
}

func (codec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(protobuf.Message); ok {
		return protojson.Marshal(m)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", v, err)
	}
	return data, nil
}

func (codec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(protobuf.Message); ok {
		return protojson.Unmarshal(data, m)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %T: %w", v, err)
	}
	return nil
}

func (codec) Name() string {
	return CodecName
}
