// Package nativeeval implements the native AST evaluator used when a
// module's `request.action == "fetch"`: there is no DOM, so Selector
// and Composite nodes are evaluated directly over a decoded JSON/text
// body in the host runtime rather than inside a browser.
//
// The JSONPath-like subset (`$`, `$.field`, `$..field`, `$[N]`,
// `$[*].field`, chained `.key`, trailing slice) is hand-rolled against
// `encoding/json`-decoded `any` values, since no third-party JSONPath
// library carries a buildable package anywhere in the example corpus.
package nativeeval

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nickheyer/bookrule/internal/ruleast"
	"github.com/nickheyer/bookrule/internal/rulevalue"
)

// Evaluator is the JS-runtime capability handed in at construction,
// matching the interpolator's own capability interface.
type Evaluator interface {
	Eval(code string, ctx map[string]any) (any, error)
}

// Env is the evaluation environment for one `result` value.
type Env struct {
	JSEval  Evaluator
	JSCtx   map[string]any // source/book/chapter/keyword/page/pageIndex/baseUrl/url/host/flowVars
	Result  any            // current page text/JSON, or current list item
}

// jsCtxWithResult returns a copy of env.JSCtx whose "result" is
// env.Result, so an @js atom sees the value it is evaluated against.
func jsCtxWithResult(env Env) map[string]any {
	ctx := make(map[string]any, len(env.JSCtx)+1)
	for k, v := range env.JSCtx {
		ctx[k] = v
	}
	ctx["result"] = env.Result
	return ctx
}

// ResolveList resolves a node to a list of opaque "items": each element
// of a resolved JSON array, composite merges over such lists, or, for a
// `Js` atom, the array it evaluates to (one item for a non-array value).
// Regex and other non-JSON selectors are rejected as list sources.
func ResolveList(node ruleast.Node, env Env) ([]any, error) {
	switch n := node.(type) {
	case *ruleast.Js:
		if env.JSEval == nil {
			return nil, nil
		}
		v, err := env.JSEval.Eval(n.Code, jsCtxWithResult(env))
		if err != nil {
			return nil, err
		}
		if arr, ok := v.([]any); ok {
			return arr, nil
		}
		if v == nil {
			return nil, nil
		}
		return []any{v}, nil

	case *ruleast.Selector:
		if n.Type != ruleast.SelectorJSON {
			return nil, fmt.Errorf("unsupported list selectorType %q in native evaluator", n.Type)
		}
		v, err := evalJSONPath(env.Result, n.Expr)
		if err != nil {
			return nil, err
		}
		items, _ := v.([]any)
		items = ruleast.ApplySlice(items, n.Slice)
		return items, nil

	case *ruleast.Composite:
		lists := make([][]any, 0, len(n.Children))
		for _, c := range n.Children {
			l, err := ResolveList(c, env)
			if err != nil {
				return nil, err
			}
			lists = append(lists, l)
		}
		return mergeAnyLists(n.Operator, lists), nil
	}
	return nil, fmt.Errorf("unknown node kind")
}

// ResolveValue resolves a node to its joined scalar string, applying
// regexReplace last. List-bearing sub-results are joined with "\n"
// before the replace.
func ResolveValue(node ruleast.Node, env Env) (string, error) {
	switch n := node.(type) {
	case *ruleast.Js:
		if env.JSEval == nil {
			return "", nil
		}
		v, err := env.JSEval.Eval(n.Code, jsCtxWithResult(env))
		if err != nil {
			return "", err
		}
		return rulevalue.ToString(v), nil

	case *ruleast.Selector:
		vals, err := resolveSelectorStrings(n, env)
		if err != nil {
			return "", err
		}
		joined := strings.Join(vals, "\n")
		if n.RegexReplace != nil {
			joined, err = applyRegexReplace(joined, n.RegexReplace)
			if err != nil {
				return "", err
			}
		}
		return joined, nil

	case *ruleast.Composite:
		lists := make([][]string, 0, len(n.Children))
		for _, c := range n.Children {
			s, err := ResolveValue(c, env)
			if err != nil {
				lists = append(lists, nil)
				continue
			}
			if s == "" {
				lists = append(lists, nil)
			} else {
				lists = append(lists, []string{s})
			}
		}
		merged := rulevalue.MergeStrings(n.Operator, lists)
		return strings.Join(merged, "\n"), nil
	}
	return "", fmt.Errorf("unknown node kind")
}

func resolveSelectorStrings(n *ruleast.Selector, env Env) ([]string, error) {
	switch n.Type {
	case ruleast.SelectorJSON:
		v, err := evalJSONPath(env.Result, n.Expr)
		if err != nil {
			return nil, err
		}
		vals := rulevalue.ToStringSlice(v)
		vals = ruleast.ApplySlice(vals, n.Slice)
		return vals, nil

	case ruleast.SelectorRegex:
		text := rulevalue.ToString(env.Result)
		re, err := regexp.Compile(n.Expr)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", n.Expr, err)
		}
		if re.NumSubexp() >= 1 {
			matches := re.FindAllStringSubmatch(text, -1)
			out := make([]string, 0, len(matches))
			for _, m := range matches {
				out = append(out, m[1])
			}
			return ruleast.ApplySlice(out, n.Slice), nil
		}
		matches := re.FindAllString(text, -1)
		return ruleast.ApplySlice(matches, n.Slice), nil

	default:
		return nil, fmt.Errorf("unsupported selectorType %q in native evaluator", n.Type)
	}
}

func applyRegexReplace(s string, rr *ruleast.RegexReplace) (string, error) {
	re, err := regexp.Compile(rr.Pattern)
	if err != nil {
		return "", fmt.Errorf("invalid regex-replace pattern %q: %w", rr.Pattern, err)
	}
	if rr.FirstOnly {
		replaced := false
		return re.ReplaceAllStringFunc(s, func(m string) string {
			if replaced {
				return m
			}
			replaced = true
			return re.ReplaceAllString(m, rr.Replacement)
		}), nil
	}
	return re.ReplaceAllString(s, rr.Replacement), nil
}

func mergeAnyLists(op ruleast.CompositeOp, lists [][]any) []any {
	switch op {
	case ruleast.OpOr:
		for _, l := range lists {
			if len(l) > 0 {
				return l
			}
		}
		if len(lists) > 0 {
			return lists[len(lists)-1]
		}
		return nil
	case ruleast.OpAnd:
		out := make([]any, 0)
		for _, l := range lists {
			out = append(out, l...)
		}
		return out
	case ruleast.OpInterleave:
		maxLen := 0
		for _, l := range lists {
			if len(l) > maxLen {
				maxLen = len(l)
			}
		}
		out := make([]any, 0)
		for i := 0; i < maxLen; i++ {
			for _, l := range lists {
				if i < len(l) {
					out = append(out, l[i])
				}
			}
		}
		return out
	}
	return nil
}

// ParseJSONBody decodes a raw body string into a generic any (map/slice)
// tree the JSONPath subset walks.
func ParseJSONBody(body string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	return v, nil
}

// evalJSONPath runs a minimal JSONPath subset against root (already-
// decoded JSON, or a map produced for env.Result when it is a single
// list item rather than raw text).
func evalJSONPath(root any, expr string) (any, error) {
	if expr == "$" {
		return root, nil
	}
	if !strings.HasPrefix(expr, "$") {
		return nil, fmt.Errorf("json selector must start with $: %q", expr)
	}
	segs, err := tokenizeJSONPath(expr[1:])
	if err != nil {
		return nil, err
	}
	return walkSegments(root, segs)
}

type segment struct {
	kind  string // "field", "index", "wildcard", "recursive"
	field string
	index int
}

func tokenizeJSONPath(rest string) ([]segment, error) {
	var segs []segment
	i := 0
	for i < len(rest) {
		switch {
		case strings.HasPrefix(rest[i:], ".."):
			j := i + 2
			start := j
			for j < len(rest) && rest[j] != '.' && rest[j] != '[' {
				j++
			}
			if j == start {
				return nil, fmt.Errorf("invalid recursive descent in %q", rest)
			}
			segs = append(segs, segment{kind: "recursive", field: rest[start:j]})
			i = j
		case rest[i] == '.':
			j := i + 1
			start := j
			for j < len(rest) && rest[j] != '.' && rest[j] != '[' {
				j++
			}
			if start == j {
				return nil, fmt.Errorf("empty field segment in %q", rest)
			}
			segs = append(segs, segment{kind: "field", field: rest[start:j]})
			i = j
		case rest[i] == '[':
			end := strings.IndexByte(rest[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated [ in %q", rest)
			}
			content := rest[i+1 : i+end]
			i += end + 1
			if content == "*" {
				segs = append(segs, segment{kind: "wildcard"})
				continue
			}
			n, err := strconv.Atoi(content)
			if err != nil {
				return nil, fmt.Errorf("invalid index %q in %q", content, rest)
			}
			segs = append(segs, segment{kind: "index", index: n})
		default:
			return nil, fmt.Errorf("unexpected character at %q", rest[i:])
		}
	}
	return segs, nil
}

func walkSegments(root any, segs []segment) (any, error) {
	cur := root
	for i := 0; i < len(segs); i++ {
		seg := segs[i]
		switch seg.kind {
		case "field":
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, nil
			}
			cur = m[seg.field]

		case "index":
			arr, ok := cur.([]any)
			if !ok {
				return nil, nil
			}
			idx := seg.index
			if idx < 0 {
				idx += len(arr)
			}
			if idx < 0 || idx >= len(arr) {
				return nil, nil
			}
			cur = arr[idx]

		case "wildcard":
			arr, ok := cur.([]any)
			if !ok {
				return nil, nil
			}
			remaining := segs[i+1:]
			out := make([]any, 0, len(arr))
			for _, elem := range arr {
				v, err := walkSegments(elem, remaining)
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
			return out, nil

		case "recursive":
			return recursiveFind(cur, seg.field), nil
		}
	}
	return cur, nil
}

// recursiveFind implements `$..field`: depth-first collection of every
// value at key `field` anywhere in the tree.
func recursiveFind(v any, field string) []any {
	var out []any
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case map[string]any:
			if val, ok := t[field]; ok {
				out = append(out, val)
			}
			for _, val := range t {
				walk(val)
			}
		case []any:
			for _, e := range t {
				walk(e)
			}
		}
	}
	walk(v)
	return out
}
