package store

import (
	"encoding/json"
	"fmt"
)

// marshalValue encodes a record value as JSON for storage.
// Hashes encode through their TextMarshaler as hex strings and every number
// is an unsigned integer, so json.Marshal output is already deterministic.
func marshalValue(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return data, nil
}

// unmarshalValue decodes a stored record value.
func unmarshalValue(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}
	return nil
}
