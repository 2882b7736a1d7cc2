package ingest

import (
	"fmt"
	"strings"

	"github.com/catherinevee/cloudlens/internal/models"
)

// truncationSentinelFormat renders the value substituted for oversize
// string leaves in RawData, recording the original length.
const truncationSentinelFormat = "[truncated: %d bytes]"

// CamelizeKeys recursively converts kebab-case and snake_case map keys to
// camelCase. Nested maps and slices are rebuilt with converted keys; the
// input value is not modified.
func CamelizeKeys(value interface{}) interface{} {
	switch typed := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for key, inner := range typed {
			out[camelKey(key)] = CamelizeKeys(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, inner := range typed {
			out[i] = CamelizeKeys(inner)
		}
		return out
	default:
		return value
	}
}

// camelKey converts one kebab-case or snake_case key to camelCase. Keys
// already in camelCase pass through unchanged.
func camelKey(key string) string {
	if !strings.ContainsAny(key, "-_") {
		return key
	}
	var b strings.Builder
	b.Grow(len(key))
	upperNext := false
	for _, r := range key {
		switch r {
		case '-', '_':
			upperNext = true
		default:
			if upperNext {
				b.WriteString(strings.ToUpper(string(r)))
				upperNext = false
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// SanitizeRawData walks the value and replaces every string leaf longer than
// MaxRawDataStringBytes with a truncation sentinel recording the original
// length.
func SanitizeRawData(value interface{}) interface{} {
	switch typed := value.(type) {
	case string:
		if len(typed) > models.MaxRawDataStringBytes {
			return fmt.Sprintf(truncationSentinelFormat, len(typed))
		}
		return typed
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for key, inner := range typed {
			out[key] = SanitizeRawData(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, inner := range typed {
			out[i] = SanitizeRawData(inner)
		}
		return out
	default:
		return value
	}
}

// sanitizeMap sanitises a top-level raw-data map.
func sanitizeMap(item map[string]interface{}) map[string]interface{} {
	sanitized, _ := SanitizeRawData(item).(map[string]interface{})
	return sanitized
}

// stringField returns item[key] as a string when it is one.
func stringField(item map[string]interface{}, key string) string {
	if value, ok := item[key].(string); ok {
		return value
	}
	return ""
}

// firstStringField returns the first present string among keys.
func firstStringField(item map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if value := stringField(item, key); value != "" {
			return value
		}
	}
	return ""
}

// mapField returns item[key] as a map when it is one.
func mapField(item map[string]interface{}, key string) map[string]interface{} {
	if value, ok := item[key].(map[string]interface{}); ok {
		return value
	}
	return nil
}

// hasKey reports whether item carries key at the top level.
func hasKey(item map[string]interface{}, key string) bool {
	_, exists := item[key]
	return exists
}
