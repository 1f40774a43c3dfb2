// Package backend implements the two request backends the Source
// Executor drives: a plain Fetch backend (net/http) and a WebView
// backend (headless Chrome via chromedp) with Cloudflare-interstitial
// handling. Both are built against the same small downward-collaborator
// interfaces, so the executor never depends on net/http or chromedp
// directly.
package backend

import "context"

// HTTPResponse mirrors the `{status, ok, text()}` downward collaborator
// contract.
type HTTPResponse struct {
	Status int
	OK     bool
	Text   string
}

// HTTPClient is the fetch downward collaborator.
type HTTPClient interface {
	Fetch(ctx context.Context, method, url string, headers map[string]string, body string) (*HTTPResponse, error)
}

// WebViewController is the headless-browser downward collaborator.
type WebViewController interface {
	LoadURL(ctx context.Context, url string) (bool, error)
	WaitForLoad(ctx context.Context) (bool, error)
	EvaluateJavaScript(ctx context.Context, script string) (any, error)
	ShouldAllowRequest(fn func(requestURL string) bool)
	GetHTML(ctx context.Context) (string, error)
	SetCustomUserAgent(ua string)
	Dispose()
}

// WebViewFactory constructs a fresh, exclusive WebViewController for one
// extraction call. The caller disposes it in every path (success, error,
// timeout).
type WebViewFactory func(ctx context.Context) (WebViewController, error)
