// internal/pipeline/sanitize.go
package pipeline

import "strings"

// FallbackKey replaces a key that is empty once its __ wrapper is removed.
const FallbackKey = "field"

const reservedWrapper = "__"

// Sanitize rewrites, at every depth, the object keys that the document store
// reserves (keys both starting and ending with "__"). Other keys and all
// scalar values are returned unchanged. One pass only: "____x____" becomes
// "__x__".
func Sanitize(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, inner := range v {
			out[SanitizeKey(k)] = Sanitize(inner)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = Sanitize(inner)
		}
		return out
	default:
		return value
	}
}

// SanitizeRows applies Sanitize to every row of a batch.
func SanitizeRows(rows []any) []any {
	if rows == nil {
		return []any{}
	}
	return Sanitize(rows).([]any)
}

func SanitizeKey(key string) string {
	return SanitizeKeyWithFallback(key, FallbackKey)
}

// SanitizeKeyWithFallback strips one leading and one trailing "__" from a
// wrapped key and substitutes fallback when nothing is left.
func SanitizeKeyWithFallback(key, fallback string) string {
	if !strings.HasPrefix(key, reservedWrapper) || !strings.HasSuffix(key, reservedWrapper) {
		return key
	}
	stripped := strings.TrimSuffix(strings.TrimPrefix(key, reservedWrapper), reservedWrapper)
	if stripped == "" {
		return fallback
	}
	return stripped
}
