package executor

import (
	"strings"

	"github.com/nickheyer/bookrule/internal/rerror"
	"github.com/nickheyer/bookrule/internal/ruleast"
	"github.com/nickheyer/bookrule/internal/ruleparser"
	"github.com/nickheyer/bookrule/internal/scriptgen"
	"github.com/nickheyer/bookrule/internal/source"
)

// parseExpr parses and caches one Expr. Source ASTs are immutable for the
// lifetime of a Source, so once parsed an Expr is never reparsed.
func (e *Engine) parseExpr(expr, fieldPath, sourceID, module string) (ruleast.Node, error) {
	key := sourceID + "\x00" + module + "\x00" + fieldPath + "\x00" + expr

	e.astMu.Lock()
	if n, ok := e.astCache[key]; ok {
		e.astMu.Unlock()
		return n, nil
	}
	e.astMu.Unlock()

	node, err := ruleparser.Parse(expr, fieldPath, sourceID, module)
	if err != nil {
		return nil, err
	}

	e.astMu.Lock()
	e.astCache[key] = node
	e.astMu.Unlock()
	return node, nil
}

// parseListExpr parses a `parse.list` Expr. A list expression must not
// carry @put/regex-replace suffix metadata — those only make sense on a
// single field value.
func (e *Engine) parseListExpr(expr, sourceID, module string) (ruleast.Node, error) {
	node, err := e.parseExpr(expr, "list", sourceID, module)
	if err != nil {
		return nil, err
	}
	if sel, ok := node.(*ruleast.Selector); ok {
		if sel.RegexReplace != nil || len(sel.PutVars) > 0 {
			return nil, rerror.NewParseError("list expression may not carry @put or regex-replace suffixes", expr, "list", sourceID, module)
		}
	}
	return node, nil
}

// parseFieldSet parses every Expr in a FieldSet, keyed by output field
// name for cache/debug attribution.
func (e *Engine) parseFieldSet(fields source.FieldSet, sourceID, module string) (map[string]ruleast.Node, error) {
	out := make(map[string]ruleast.Node, len(fields))
	for key, expr := range fields {
		node, err := e.parseExpr(expr, key, sourceID, module)
		if err != nil {
			return nil, err
		}
		out[key] = node
	}
	return out, nil
}

// parsePurify resolves each purify directive into a scriptgen.PurifyRule.
// A directive prefixed `@regex:` is `pattern##replacement` (replacement
// optional, defaulting to empty string, matching the rule DSL's own
// `##pattern##replacement` suffix convention); anything else is a CSS
// removal selector.
func (e *Engine) parsePurify(rules []string, sourceID, module string) ([]scriptgen.PurifyRule, error) {
	out := make([]scriptgen.PurifyRule, 0, len(rules))
	for _, r := range rules {
		if strings.HasPrefix(r, "@regex:") {
			rest := strings.TrimPrefix(r, "@regex:")
			parts := strings.SplitN(rest, "##", 2)
			pattern := parts[0]
			replacement := ""
			if len(parts) == 2 {
				replacement = parts[1]
			}
			if pattern == "" {
				return nil, rerror.NewParseError("empty purify regex pattern", r, "purify", sourceID, module)
			}
			out = append(out, scriptgen.PurifyRule{IsRegex: true, Pattern: pattern, Replacement: replacement})
			continue
		}
		out = append(out, scriptgen.PurifyRule{Selector: r})
	}
	return out, nil
}
