// internal/pipeline/normalize.go
package pipeline

import "log"

// envelopeKeys are checked in order; the first one holding an array wins.
var envelopeKeys = []string{"results", "data", "items"}

// Normalize turns any decoded JSON body into a flat list of records.
//   - an array is returned unchanged
//   - an object yields its results, data or items array, in that order
//   - any other object (a single survey submission included) becomes a one-element list
//   - nil becomes an empty list, any other scalar a one-element list
func Normalize(body any, sourceURL string) []any {
	switch v := body.(type) {
	case nil:
		return []any{}
	case []any:
		return v
	case map[string]any:
		for _, key := range envelopeKeys {
			if arr, ok := v[key].([]any); ok {
				return arr
			}
		}
		log.Printf("📦 [NORMALIZE] %s returned a single object, wrapping it", sourceURL)
		return []any{v}
	default:
		return []any{v}
	}
}
