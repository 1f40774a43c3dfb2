// Package ruleparser parses rule-DSL Expr strings into the typed AST
// defined by package ruleast: composite operators (||, &&, %%),
// selector atoms (css/xpath/json/regex), @js atoms, attribute/slice
// suffixes, @put:{var:rule} side-effects and ##pattern##replacement##1
// regex-replace suffixes.
package ruleparser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nickheyer/bookrule/internal/rerror"
	"github.com/nickheyer/bookrule/internal/ruleast"
)

var sliceContentRe = regexp.MustCompile(`^-?\d*(:-?\d*){0,2}$`)

// Parse parses one Expr into its AST. fieldPath/sourceID/module are
// attached to any ParseError for precise diagnostics.
func Parse(expr, fieldPath, sourceID, module string) (ruleast.Node, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, rerror.NewParseError("empty expression", expr, fieldPath, sourceID, module)
	}

	body, putVars, err := extractPutDirectives(expr)
	if err != nil {
		return nil, annotate(err, expr, fieldPath, sourceID, module)
	}

	body, rr, err := extractRegexReplace(body)
	if err != nil {
		return nil, annotate(err, expr, fieldPath, sourceID, module)
	}

	node, err := parseComposite(body, fieldPath, sourceID, module)
	if err != nil {
		return nil, annotate(err, expr, fieldPath, sourceID, module)
	}

	if len(putVars) > 0 || rr != nil {
		sel, ok := node.(*ruleast.Selector)
		if !ok {
			return nil, rerror.NewParseError(
				"only a selector expression may carry @put:/regex-replace suffix metadata",
				expr, fieldPath, sourceID, module)
		}
		sel.PutVars = putVars
		sel.RegexReplace = rr
	}

	return node, nil
}

func annotate(err error, expr, fieldPath, sourceID, module string) error {
	if re, ok := err.(*rerror.ReaderError); ok {
		if re.Expr == "" {
			re.Expr = expr
		}
		return re
	}
	return rerror.NewParseError(err.Error(), expr, fieldPath, sourceID, module)
}

// extractPutDirectives strips every trailing `@put:{k:rule,...}` block
// from expr and returns the remaining body plus the merged var->rule map.
func extractPutDirectives(expr string) (string, map[string]string, error) {
	out := make(map[string]string)
	body := expr
	for {
		idx := findTopLevelLast(body, "@put:{")
		if idx < 0 {
			break
		}
		// require whitespace (or start-of-string) before the token, per grammar
		if idx > 0 && body[idx-1] != ' ' {
			break
		}
		closeIdx, err := matchBrace(body, idx+len("@put:{")-1)
		if err != nil {
			return "", nil, fmt.Errorf("unclosed @put:{...} block")
		}
		if closeIdx != len(body)-1 {
			// only a trailing block counts; stop looking further back
			break
		}
		inner := body[idx+len("@put:{") : closeIdx]
		kvs, _ := splitTopLevelAny(inner, []string{","})
		for _, kv := range kvs {
			k, v, ok := strings.Cut(kv, ":")
			if !ok {
				return "", nil, fmt.Errorf("malformed @put: entry %q", kv)
			}
			out[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
		body = strings.TrimRight(body[:idx], " ")
	}
	return body, out, nil
}

// matchBrace returns the index of the `}` matching the `{` at openIdx.
func matchBrace(s string, openIdx int) (int, error) {
	depth := 0
	for i := openIdx; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("unbalanced braces")
}

// extractRegexReplace strips a trailing `##pattern##replacement##1?`
// suffix that starts at the first top-level `##`; the replacement is
// optional and defaults to the empty string.
func extractRegexReplace(body string) (string, *ruleast.RegexReplace, error) {
	parts, _ := splitTopLevelAny(body, []string{"##"})
	if len(parts) < 2 {
		return body, nil, nil
	}
	base := parts[0]
	rr := &ruleast.RegexReplace{Pattern: parts[1]}
	if len(parts) >= 3 {
		rr.Replacement = parts[2]
	}
	if len(parts) >= 4 && parts[3] == "1" {
		rr.FirstOnly = true
	}
	if _, err := regexp.Compile(rr.Pattern); err != nil {
		return "", nil, fmt.Errorf("invalid regex-replace pattern %q: %w", rr.Pattern, err)
	}
	return base, rr, nil
}

var compositeOps = []string{" || ", " && ", " %% "}

func parseComposite(body, fieldPath, sourceID, module string) (ruleast.Node, error) {
	body = strings.TrimSpace(body)
	parts, used := splitTopLevelAny(body, compositeOps)
	if len(parts) == 1 {
		return parseAtom(body, fieldPath, sourceID, module)
	}

	first := used[0]
	for _, op := range used {
		if op != first {
			return nil, fmt.Errorf("mixed composite operators at one nesting level in %q", body)
		}
	}

	children := make([]ruleast.Node, 0, len(parts))
	for _, p := range parts {
		child, err := parseAtom(strings.TrimSpace(p), fieldPath, sourceID, module)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	var op ruleast.CompositeOp
	switch strings.TrimSpace(first) {
	case "||":
		op = ruleast.OpOr
	case "&&":
		op = ruleast.OpAnd
	case "%%":
		op = ruleast.OpInterleave
	}
	return &ruleast.Composite{Operator: op, Children: children}, nil
}

func parseAtom(atom, fieldPath, sourceID, module string) (ruleast.Node, error) {
	atom = unescapeOperators(atom)

	switch {
	case strings.HasPrefix(atom, "@js:"):
		return &ruleast.Js{Code: strings.TrimPrefix(atom, "@js:"), RequiresDOM: true}, nil

	case strings.HasPrefix(atom, "@regex:"):
		return parseRegexAtom(strings.TrimPrefix(atom, "@regex:"))

	case strings.HasPrefix(atom, "@json:"):
		return parseJSONAtom(strings.TrimPrefix(atom, "@json:"))

	case strings.HasPrefix(atom, "$"):
		return parseJSONAtom(atom)

	case strings.HasPrefix(atom, "@xpath:"):
		return parseXPathAtom(strings.TrimPrefix(atom, "@xpath:"))

	case strings.HasPrefix(atom, "//"):
		return parseXPathAtom(atom)

	default:
		return parseCSSAtom(atom)
	}
}

func unescapeOperators(s string) string {
	r := strings.NewReplacer(`\||`, `||`, `\&&`, `&&`, `\%%`, `%%`)
	return r.Replace(s)
}

func parseRegexAtom(body string) (ruleast.Node, error) {
	expr, attr, slice, err := stripAttrAndSlice(body)
	if err != nil {
		return nil, err
	}
	if attr == "" {
		attr = ruleast.DefaultAttr
	}
	return &ruleast.Selector{Type: ruleast.SelectorRegex, Expr: expr, Attr: attr, Slice: slice}, nil
}

func parseJSONAtom(body string) (ruleast.Node, error) {
	expr, attr, slice, err := stripAttrAndSlice(body)
	if err != nil {
		return nil, err
	}
	if attr == "" {
		attr = ruleast.DefaultAttr
	}
	return &ruleast.Selector{Type: ruleast.SelectorJSON, Expr: expr, Attr: attr, Slice: slice}, nil
}

func parseXPathAtom(body string) (ruleast.Node, error) {
	expr, attr, slice, err := stripAttrAndSlice(body)
	if err != nil {
		return nil, err
	}
	// trailing /text() normalizes to attr="text"; trailing /@name to attr=name
	if strings.HasSuffix(expr, "/text()") {
		expr = strings.TrimSuffix(expr, "/text()")
		attr = "text"
	} else if attr != "" && strings.HasSuffix(expr, "/") {
		// stripAttrAndSlice already took the name of a trailing /@name
		expr = strings.TrimSuffix(expr, "/")
	} else if idx := strings.LastIndex(expr, "/@"); idx >= 0 && attr == "" {
		attr = expr[idx+2:]
		expr = expr[:idx]
	}
	if attr == "" {
		attr = ruleast.DefaultAttr
	}
	return &ruleast.Selector{Type: ruleast.SelectorXPath, Expr: expr, Attr: normalizeAttr(attr), Slice: slice}, nil
}

func parseCSSAtom(body string) (ruleast.Node, error) {
	expr, attr, slice, err := stripAttrAndSlice(body)
	if err != nil {
		return nil, err
	}
	if attr == "" {
		attr = ruleast.DefaultAttr
	}
	return &ruleast.Selector{Type: ruleast.SelectorCSS, Expr: expr, Attr: normalizeAttr(attr), Slice: slice}, nil
}

// stripAttrAndSlice iteratively strips a trailing `[...]` (slice) and a
// trailing `@name` (attribute), in either order, until neither remains.
func stripAttrAndSlice(body string) (expr, attr string, slice *ruleast.SliceRange, err error) {
	expr = body
	for {
		if strings.HasSuffix(expr, "]") {
			open := strings.LastIndex(expr, "[")
			if open >= 0 {
				content := expr[open+1 : len(expr)-1]
				if sliceContentRe.MatchString(content) {
					sr, perr := parseSliceSpec(content)
					if perr != nil {
						return "", "", nil, perr
					}
					if slice != nil {
						return "", "", nil, fmt.Errorf("multiple slice suffixes in %q", body)
					}
					slice = sr
					expr = expr[:open]
					continue
				}
			}
		}
		if at := lastTopLevelAt(expr); at >= 0 {
			name := expr[at+1:]
			if name != "" && !strings.ContainsAny(name, " \t/") {
				if attr != "" {
					return "", "", nil, fmt.Errorf("multiple attribute suffixes in %q", body)
				}
				attr = name
				expr = expr[:at]
				continue
			}
		}
		break
	}
	return expr, attr, slice, nil
}

// lastTopLevelAt finds a trailing `@name` attribute marker, ignoring any
// leading `@prefix:` (e.g. @regex:, @xpath:) already consumed by the
// caller — those are stripped before stripAttrAndSlice is ever called, so
// any remaining `@` belongs to an attribute suffix.
func lastTopLevelAt(expr string) int {
	idx := strings.LastIndex(expr, "@")
	if idx <= 0 {
		return -1
	}
	return idx
}

func parseSliceSpec(content string) (*ruleast.SliceRange, error) {
	if !strings.Contains(content, ":") {
		v, err := strconv.Atoi(content)
		if err != nil {
			return nil, fmt.Errorf("invalid integer in slice %q", content)
		}
		return &ruleast.SliceRange{Start: &v, HasStart: true}, nil
	}
	parts := strings.Split(content, ":")
	sr := &ruleast.SliceRange{}
	parseField := func(s string) (*int, bool, error) {
		if s == "" {
			return nil, false, nil
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, false, fmt.Errorf("invalid integer in slice %q", content)
		}
		return &v, true, nil
	}
	var err error
	if len(parts) > 0 {
		sr.Start, sr.HasStart, err = parseField(parts[0])
		if err != nil {
			return nil, err
		}
	}
	if len(parts) > 1 {
		sr.End, sr.HasEnd, err = parseField(parts[1])
		if err != nil {
			return nil, err
		}
	}
	if len(parts) > 2 {
		sr.Step, sr.HasStep, err = parseField(parts[2])
		if err != nil {
			return nil, err
		}
		if sr.HasStep && *sr.Step == 0 {
			return nil, fmt.Errorf("slice step must not be 0")
		}
	}
	return sr, nil
}

func normalizeAttr(attr string) string {
	switch attr {
	case "text", "textContent":
		return "text"
	case "html", "innerHtml":
		return "html"
	case "outerHtml":
		return "outerHtml"
	default:
		return attr
	}
}
