package ingest

import (
	"encoding/json"
)

// Unwrap accepts the envelope shapes produced by CLI exports and returns the
// contained items. Accepted shapes: {data: [...]}, {data: {items: [...]}},
// {data: {...}}, [...], {...}. Anything else yields an empty slice, never an
// error.
func Unwrap(raw []byte) []map[string]interface{} {
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	return UnwrapValue(decoded)
}

// UnwrapValue unwraps an already-decoded JSON value.
func UnwrapValue(decoded interface{}) []map[string]interface{} {
	switch value := decoded.(type) {
	case []interface{}:
		return collectItems(value)
	case map[string]interface{}:
		if data, exists := value["data"]; exists {
			switch inner := data.(type) {
			case []interface{}:
				return collectItems(inner)
			case map[string]interface{}:
				if items, ok := inner["items"].([]interface{}); ok {
					return collectItems(items)
				}
				return []map[string]interface{}{inner}
			}
			return nil
		}
		return []map[string]interface{}{value}
	}
	return nil
}

func collectItems(values []interface{}) []map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(values))
	for _, value := range values {
		if item, ok := value.(map[string]interface{}); ok {
			items = append(items, item)
		}
	}
	return items
}
