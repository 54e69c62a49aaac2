package types

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ToStruct converts a wire type to a protobuf Struct through its JSON
// form, so the JSON tags are the field names on both encodings.
func ToStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("flatten %T: %w", v, err)
	}
	return structpb.NewStruct(m)
}

// FromStruct decodes s into dst, a pointer to a wire type.
func FromStruct(s *structpb.Struct, dst any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal struct: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode %T: %w", dst, err)
	}
	return nil
}
