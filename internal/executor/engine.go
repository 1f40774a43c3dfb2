// Package executor implements the four module-level orchestrators
// (search, discover, chapter, content) that tie every other package
// together — parsing and caching Exprs, rendering requests through the
// interpolator, dispatching to a backend, handing a per-page loader to
// the paginator, and turning extracted field maps into domain records.
package executor

import (
	"sync"

	"github.com/nickheyer/bookrule/internal/backend"
	"github.com/nickheyer/bookrule/internal/debugtrace"
	"github.com/nickheyer/bookrule/internal/flowstore"
	"github.com/nickheyer/bookrule/internal/ratelimit"
	"github.com/nickheyer/bookrule/internal/ruleast"
)

// JSEvaluator is the capability an Engine needs for `@js:` atoms and
// interpolation blocks. Providing the JS runtime itself is out of scope;
// the engine only consumes this interface.
type JSEvaluator interface {
	Eval(code string, ctx map[string]any) (any, error)
}

// Options is the per-call `opts` parameter every upward operation accepts.
type Options struct {
	TimeoutMs int
}

// Engine bundles the shared, cross-operation state threaded explicitly
// rather than kept as globals: the rate limiter, the flow variable
// store, and a parsed-AST cache, plus the backend collaborators.
type Engine struct {
	HTTPClient      backend.HTTPClient
	NewWebView      backend.WebViewFactory
	JSEval          JSEvaluator
	Limiter         *ratelimit.Limiter
	FlowVars        *flowstore.Store
	Debug           debugtrace.Collector
	DefaultTimeout  int
	MaxDebugSample  int

	astMu    sync.Mutex
	astCache map[string]ruleast.Node
}

// NewEngine constructs an Engine. debug may be nil, in which case tracing
// is disabled (NoopCollector semantics apply via nil Handle checks).
func NewEngine(client backend.HTTPClient, newWebView backend.WebViewFactory, jsEval JSEvaluator, limiter *ratelimit.Limiter, flowVars *flowstore.Store, debug debugtrace.Collector, defaultTimeoutMs, maxDebugSample int) *Engine {
	if debug == nil {
		debug = debugtrace.NoopCollector{}
	}
	if defaultTimeoutMs <= 0 {
		defaultTimeoutMs = 15000
	}
	if maxDebugSample <= 0 {
		maxDebugSample = 5
	}
	return &Engine{
		HTTPClient:     client,
		NewWebView:     newWebView,
		JSEval:         jsEval,
		Limiter:        limiter,
		FlowVars:       flowVars,
		Debug:          debug,
		DefaultTimeout: defaultTimeoutMs,
		MaxDebugSample: maxDebugSample,
		astCache:       make(map[string]ruleast.Node),
	}
}

func (e *Engine) timeoutOf(opts Options) int {
	if opts.TimeoutMs > 0 {
		return opts.TimeoutMs
	}
	return e.DefaultTimeout
}
