// Package rulevalue implements the composite-operator merge semantics
// (||, &&, %%) shared by the WebView extraction script's in-browser
// logic and the native (fetch-mode) AST evaluator, plus the small value
// coercions ("tagged value sum" in the design notes) used to normalize
// interpolation/JS results to strings.
package rulevalue

import "github.com/nickheyer/bookrule/internal/ruleast"

// MergeStrings implements the composite merge rules on string-array
// results: || (first non-empty), && (concat), %%
// (interleave then leftover tail).
func MergeStrings(op ruleast.CompositeOp, lists [][]string) []string {
	if len(lists) == 0 {
		return nil
	}
	switch op {
	case ruleast.OpOr:
		for _, l := range lists {
			if len(l) > 0 {
				return l
			}
		}
		return lists[len(lists)-1]
	case ruleast.OpAnd:
		out := make([]string, 0)
		for _, l := range lists {
			out = append(out, l...)
		}
		return out
	case ruleast.OpInterleave:
		return interleave(lists)
	default:
		return nil
	}
}

func interleave(lists [][]string) []string {
	out := make([]string, 0)
	maxLen := 0
	for _, l := range lists {
		if len(l) > maxLen {
			maxLen = len(l)
		}
	}
	for i := 0; i < maxLen; i++ {
		for _, l := range lists {
			if i < len(l) {
				out = append(out, l[i])
			}
		}
	}
	return out
}

// OrShortCircuit evaluates children lazily left to right, stopping at the
// first child that yields a non-empty result — matching the WebView
// script's `||` value resolution, where later children (and any errors
// they would throw) are never evaluated.
func OrShortCircuit(children []func() ([]string, error)) ([]string, error) {
	var lastErr error
	for _, eval := range children {
		vals, err := eval()
		if err != nil {
			lastErr = err
			continue
		}
		if len(vals) > 0 {
			return vals, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

// ToString coerces an arbitrary JS/JSON-evaluation result to a string the
// way the interpolator and field-extraction paths do: nil -> "", a
// string is returned verbatim, anything else uses its default Go
// formatting equivalent to JSON stringification for scalars.
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return toStringFallback(v)
	}
}

// ToStringSlice coerces an arbitrary evaluation result into a string
// slice for selector-context composition: a []any is mapped elementwise,
// anything else becomes a single-element slice (or empty for nil).
func ToStringSlice(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, ToString(e))
		}
		return out
	default:
		s := ToString(v)
		if s == "" {
			return nil
		}
		return []string{s}
	}
}
