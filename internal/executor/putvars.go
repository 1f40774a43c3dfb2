package executor

import (
	"github.com/nickheyer/bookrule/internal/nativeeval"
	"github.com/nickheyer/bookrule/internal/ruleast"
)

// evaluatePutVars runs `@put:{key:rule}` side effects. Each put rule is
// evaluated against the item's own already-extracted field map (rather
// than the live page node it was matched from): in fetch mode the native
// evaluator already has full fidelity on the decoded item, but WebView
// items only survive the evaluateJavaScript round trip as plain strings,
// so both backends are normalized to this one evaluation surface.
func (e *Engine) evaluatePutVars(fields map[string]ruleast.Node, itemFields map[string]string, rc *runContext, sourceID, module string) map[string]any {
	out := make(map[string]any)
	itemAny := make(map[string]any, len(itemFields))
	for k, v := range itemFields {
		itemAny[k] = v
	}
	env := nativeeval.Env{JSEval: jsEvalOrNil(e.JSEval), JSCtx: rc.jsContext(), Result: itemAny}

	for _, node := range fields {
		sel, ok := node.(*ruleast.Selector)
		if !ok || len(sel.PutVars) == 0 {
			continue
		}
		for varName, ruleText := range sel.PutVars {
			pv, err := e.parseExpr(ruleText, "put:"+varName, sourceID, module)
			if err != nil {
				continue
			}
			v, err := nativeeval.ResolveValue(pv, env)
			if err == nil {
				out[varName] = v
			}
		}
	}
	return out
}
