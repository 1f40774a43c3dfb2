package executor

import (
	"context"
	"fmt"
	"regexp"

	"github.com/nickheyer/bookrule/internal/backend"
	"github.com/nickheyer/bookrule/internal/debugtrace"
	"github.com/nickheyer/bookrule/internal/nativeeval"
	"github.com/nickheyer/bookrule/internal/rerror"
	"github.com/nickheyer/bookrule/internal/ruleast"
	"github.com/nickheyer/bookrule/internal/rulevalue"
	"github.com/nickheyer/bookrule/internal/scriptgen"
	"github.com/nickheyer/bookrule/internal/source"
	"github.com/nickheyer/bookrule/internal/urlresolve"
)

// fieldSpec is the parsed-AST shape of one module's extraction rules.
type fieldSpec struct {
	list    ruleast.Node // nil when single == true
	fields  map[string]ruleast.Node
	nextURL ruleast.Node // non-nil only for nextUrl-mode pagination
	purify  []scriptgen.PurifyRule
	single  bool
}

// pageResult is one loaded page's raw extraction output, before it is
// turned into a domain record type by the calling module.
type pageResult struct {
	Items      []map[string]string
	NextURL    string
	FetchedURL string
}

// loadPage renders the request, dispatches to the configured backend,
// and extracts items (+ optional next-URL candidate) for one page; in
// fetch mode it also emits debug field samples. Relative-URL resolution
// and @put side effects happen in the callers' record builders.
func (e *Engine) loadPage(ctx context.Context, rc *runContext, req source.RequestConfig, spec fieldSpec, handle debugtrace.Handle, sourceID, module string) (pageResult, error) {
	finalURL, err := rc.render(req.URL, e.JSEval, e.onJSInterpolationError(handle))
	if err != nil {
		return pageResult{}, rerror.Wrap(err, rerror.Context{SourceID: sourceID, Module: module, URL: req.URL})
	}
	headers := make(map[string]string, len(req.Headers))
	for k, v := range req.Headers {
		rendered, rerr := rc.render(v, e.JSEval, e.onJSInterpolationError(handle))
		if rerr != nil {
			return pageResult{}, rerror.Wrap(rerr, rerror.Context{SourceID: sourceID, Module: module, URL: finalURL})
		}
		headers[k] = rendered
	}
	body, err := rc.render(req.Body, e.JSEval, e.onJSInterpolationError(handle))
	if err != nil {
		return pageResult{}, rerror.Wrap(err, rerror.Context{SourceID: sourceID, Module: module, URL: finalURL})
	}
	renderedReq := req
	renderedReq.Headers = headers
	renderedReq.Body = body

	rc.url = finalURL

	action := req.Action
	if action == "" {
		action = source.ActionFetch
	}

	if action == source.ActionFetch {
		return e.loadPageFetch(ctx, rc, renderedReq, spec, handle, sourceID, module)
	}
	return e.loadPageWebView(ctx, rc, renderedReq, spec, handle, sourceID, module)
}

func (e *Engine) loadPageFetch(ctx context.Context, rc *runContext, req source.RequestConfig, spec fieldSpec, handle debugtrace.Handle, sourceID, module string) (pageResult, error) {
	text, err := backend.FetchText(ctx, e.HTTPClient, e.Limiter, rc.src, req, rc.url, handle)
	if err != nil {
		return pageResult{}, err
	}
	text, err = applyFetchPurify(text, spec.purify)
	if err != nil {
		return pageResult{}, rerror.NewSourceError(err.Error(), rerror.Context{SourceID: sourceID, Module: module, URL: rc.url})
	}

	root := text
	if parsed, perr := nativeeval.ParseJSONBody(text); perr == nil {
		root = parsed
	}
	rc.result = root

	env := nativeeval.Env{JSEval: jsEvalOrNil(e.JSEval), JSCtx: rc.jsContext(), Result: root}

	if spec.single {
		fields, err := e.extractFieldsNative(spec.fields, env, rc, handle, sourceID, module, rc.url)
		if err != nil {
			return pageResult{}, err
		}
		return pageResult{Items: []map[string]string{fields}, FetchedURL: rc.url}, nil
	}

	items, err := nativeeval.ResolveList(spec.list, env)
	if err != nil {
		return pageResult{}, rerror.NewSourceError(fmt.Sprintf("list evaluation failed: %v", err), rerror.Context{SourceID: sourceID, Module: module, URL: rc.url})
	}

	var nextURL string
	if spec.nextURL != nil {
		nextURL, err = nativeeval.ResolveValue(spec.nextURL, env)
		if err != nil {
			nextURL = ""
		}
	}

	records := make([]map[string]string, 0, len(items))
	for i, item := range items {
		itemEnv := nativeeval.Env{JSEval: jsEvalOrNil(e.JSEval), JSCtx: rc.jsContext(), Result: item}
		fields, ferr := e.extractFieldsNative(spec.fields, itemEnv, rc, debugHandleFor(handle, i, e.MaxDebugSample), sourceID, module, rc.url)
		if ferr != nil {
			continue // malformed row, skip rather than fail the whole page
		}
		records = append(records, fields)
	}
	return pageResult{Items: records, NextURL: nextURL, FetchedURL: rc.url}, nil
}

func (e *Engine) extractFieldsNative(fields map[string]ruleast.Node, env nativeeval.Env, rc *runContext, handle debugtrace.Handle, sourceID, module, url string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for key, node := range fields {
		val, err := nativeeval.ResolveValue(node, env)
		if err != nil {
			return nil, err
		}
		out[key] = val
		debugtrace.Step(handle, debugtrace.StepEvent{Type: "field", Module: module, SourceID: sourceID, FieldPath: key, URL: url, Data: map[string]any{"value": val}})
	}
	return out, nil
}

func (e *Engine) loadPageWebView(ctx context.Context, rc *runContext, req source.RequestConfig, spec fieldSpec, handle debugtrace.Handle, sourceID, module string) (pageResult, error) {
	var rootFields map[string]ruleast.Node
	if spec.nextURL != nil {
		rootFields = map[string]ruleast.Node{"__nextUrl": spec.nextURL}
	}

	script, err := scriptgen.Generate(spec.list, spec.fields, rootFields, spec.purify)
	if err != nil {
		return pageResult{}, rerror.NewParseError(err.Error(), "", "", sourceID, module)
	}

	raw, _, err := backend.ExtractWebView(ctx, e.NewWebView, e.Limiter, rc.src, rc.url, e.DefaultTimeout, script, false, handle)
	if err != nil {
		return pageResult{}, err
	}

	if spec.single {
		m, _ := raw.(map[string]any)
		return pageResult{Items: []map[string]string{toStringMap(m)}, FetchedURL: rc.url}, nil
	}

	if spec.nextURL != nil {
		m, _ := raw.(map[string]any)
		root, _ := m["root"].(map[string]any)
		itemsRaw, _ := m["items"].([]any)
		return pageResult{
			Items:      toItemSlice(itemsRaw),
			NextURL:    rulevalue.ToString(root["__nextUrl"]),
			FetchedURL: rc.url,
		}, nil
	}

	itemsRaw, _ := raw.([]any)
	return pageResult{Items: toItemSlice(itemsRaw), FetchedURL: rc.url}, nil
}

// applyFetchPurify runs only the regex rules of spec.purify over the raw
// body before extraction; CSS-purify rules require a live DOM and are a
// no-op in fetch mode.
func applyFetchPurify(text string, rules []scriptgen.PurifyRule) (string, error) {
	for _, r := range rules {
		if !r.IsRegex {
			continue
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return "", fmt.Errorf("invalid purify regex %q: %w", r.Pattern, err)
		}
		text = re.ReplaceAllString(text, r.Replacement)
	}
	return text, nil
}

func toStringMap(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = rulevalue.ToString(v)
	}
	return out
}

func toItemSlice(items []any) []map[string]string {
	out := make([]map[string]string, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, toStringMap(m))
	}
	return out
}

func jsEvalOrNil(e JSEvaluator) nativeeval.Evaluator {
	if e == nil {
		return nil
	}
	return e
}

func (e *Engine) onJSInterpolationError(handle debugtrace.Handle) func(code string, err error) {
	return func(code string, err error) {
		debugtrace.Step(handle, debugtrace.StepEvent{Type: "warning", Message: "interpolation @js: block failed", Expr: code, Data: map[string]any{"error": err.Error()}})
	}
}

// debugHandleFor restricts field-sample debug steps to the first
// maxSample items of a page.
func debugHandleFor(handle debugtrace.Handle, itemIndex, maxSample int) debugtrace.Handle {
	if itemIndex < maxSample {
		return handle
	}
	return nil
}

// resolveItemURL resolves a field named "url" (or "cover") against the
// page it was extracted from.
func resolveItemURL(fetchedURL, raw string) string {
	if raw == "" {
		return ""
	}
	return urlresolve.Resolve(fetchedURL, raw)
}
