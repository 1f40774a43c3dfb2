// Package scriptgen builds the in-browser extraction script executed by
// the WebView backend's `evaluateJavaScript` call: a small fixed JS
// interpreter prelude (purify, node resolution, composite merge,
// Python-like slicing) plus a JSON-encoded AST payload it walks at
// runtime. Generating a single data-driven interpreter rather than
// per-rule JS (as a naive code generator would) keeps the prelude
// reviewable once and lets every Source reuse it unchanged.
package scriptgen

import "github.com/nickheyer/bookrule/internal/ruleast"

func encodeNode(n ruleast.Node) map[string]any {
	switch t := n.(type) {
	case *ruleast.Selector:
		m := map[string]any{
			"kind":         "selector",
			"selectorType": string(t.Type),
			"expr":         t.Expr,
			"attr":         t.Attr,
		}
		if t.Slice != nil {
			m["slice"] = encodeSlice(t.Slice)
		}
		if t.RegexReplace != nil {
			m["regexReplace"] = map[string]any{
				"pattern":     t.RegexReplace.Pattern,
				"replacement": t.RegexReplace.Replacement,
				"firstOnly":   t.RegexReplace.FirstOnly,
			}
		}
		if len(t.PutVars) > 0 {
			m["putVars"] = t.PutVars
		}
		return m
	case *ruleast.Js:
		return map[string]any{"kind": "js", "code": t.Code}
	case *ruleast.Composite:
		children := make([]any, 0, len(t.Children))
		for _, c := range t.Children {
			children = append(children, encodeNode(c))
		}
		return map[string]any{"kind": "composite", "op": string(t.Operator), "children": children}
	}
	return nil
}

func encodeSlice(sr *ruleast.SliceRange) map[string]any {
	m := map[string]any{}
	if sr.HasStart && sr.Start != nil {
		m["start"] = *sr.Start
	}
	if sr.HasEnd && sr.End != nil {
		m["end"] = *sr.End
	}
	if sr.HasStep && sr.Step != nil {
		m["step"] = *sr.Step
	}
	m["single"] = sr.HasStart && !sr.HasEnd && !sr.HasStep
	return m
}

// PurifyRule is one resolved purify directive: a CSS removal or a
// regex text-node replacement.
type PurifyRule struct {
	IsRegex     bool
	Selector    string // css
	Pattern     string // regex
	Replacement string
}

func encodePurify(rules []PurifyRule) []any {
	out := make([]any, 0, len(rules))
	for _, r := range rules {
		if r.IsRegex {
			out = append(out, map[string]any{"kind": "regex", "pattern": r.Pattern, "replacement": r.Replacement})
		} else {
			out = append(out, map[string]any{"kind": "css", "selector": r.Selector})
		}
	}
	return out
}
