package rulevalue

import (
	"encoding/json"
	"fmt"
)

// toStringFallback formats numbers/maps/slices the way a JS runtime's
// implicit string coercion would for interpolation purposes: numbers
// without a trailing ".0" when integral, everything else via JSON.
func toStringFallback(v any) string {
	switch n := v.(type) {
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%g", n)
	case int, int32, int64:
		return fmt.Sprintf("%d", n)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
