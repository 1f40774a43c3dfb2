package executor

import (
	"net/url"

	"github.com/nickheyer/bookrule/internal/interpolate"
	"github.com/nickheyer/bookrule/internal/source"
)

// runContext is one module operation's evolving RuleContext. result is
// nil before the first fetch, then the raw page (fetch mode) or nil
// (webview mode, where extraction already happened in-browser). The
// native evaluator hands @js atoms a copy of jsContext whose result is
// the value under evaluation: the page for the list rule, the current
// item for its fields, and the item's own field map for its @put rules.
type runContext struct {
	src       *source.Source
	keyword   string
	page      int
	pageIndex int
	baseURL   string
	url       string
	book      *source.Book
	chapter   *source.Chapter
	flowVars  map[string]any
	result    any
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// jsContext builds the map handed to JSEvaluator.Eval for both `@js:`
// interpolation blocks and explicit @js atoms.
func (rc *runContext) jsContext() map[string]any {
	m := map[string]any{
		"source":    rc.src,
		"keyword":   rc.keyword,
		"page":      rc.page,
		"pageIndex": rc.pageIndex,
		"baseUrl":   rc.baseURL,
		"url":       rc.url,
		"host":      rc.src.Host,
		"result":    rc.result,
		"flowVars":  rc.flowVars,
	}
	if rc.book != nil {
		m["book"] = rc.book
	}
	if rc.chapter != nil {
		m["chapter"] = rc.chapter
	}
	return m
}

func (rc *runContext) interpolateContext(jsEval JSEvaluator) interpolate.Context {
	return interpolate.Context{
		Keyword:     rc.keyword,
		Page:        rc.page,
		PageIndex:   rc.pageIndex,
		Host:        hostOf(rc.url),
		URL:         rc.url,
		FlowVars:    rc.flowVars,
		SourceVars:  rc.src.Vars,
		JSContext:   rc.jsContext(),
		AllowJSEval: jsEval != nil,
	}
}

// render interpolates tmpl against this context, routing @js: errors to
// a debug warning rather than failing the whole template.
func (rc *runContext) render(tmpl string, jsEval JSEvaluator, onJSErr interpolate.OnJSError) (string, error) {
	var eval interpolate.Evaluator
	if jsEval != nil {
		eval = jsEval
	}
	return interpolate.Replace(tmpl, rc.interpolateContext(jsEval), eval, onJSErr)
}
