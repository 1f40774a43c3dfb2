package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/nickheyer/bookrule/internal/debugtrace"
	"github.com/nickheyer/bookrule/internal/ratelimit"
	"github.com/nickheyer/bookrule/internal/rerror"
	"github.com/nickheyer/bookrule/internal/source"
)

const cloudflareDetectScript = `(() => {
	const title = document.title || "";
	const body = (document.body && document.body.innerText || "").slice(0, 500);
	return {
		title,
		body,
		hasChallengeForm: !!document.querySelector("#challenge-form"),
		hasCdnCgi: !!document.querySelector('script[src*="cdn-cgi"], iframe[src*="cdn-cgi"]') || location.pathname.includes("cdn-cgi"),
		hasTurnstile: !!document.querySelector(".cf-turnstile, [src*='challenges.cloudflare.com']"),
	};
})()`

type cloudflareSignal struct {
	Title            string
	Body             string
	HasChallengeForm bool
	HasCdnCgi        bool
	HasTurnstile     bool
}

func decodeCloudflareSignal(v any) cloudflareSignal {
	m, _ := v.(map[string]any)
	get := func(k string) any { return m[k] }
	toBool := func(v any) bool { b, _ := v.(bool); return b }
	toStr := func(v any) string { s, _ := v.(string); return s }
	return cloudflareSignal{
		Title:            toStr(get("title")),
		Body:             toStr(get("body")),
		HasChallengeForm: toBool(get("hasChallengeForm")),
		HasCdnCgi:        toBool(get("hasCdnCgi")),
		HasTurnstile:     toBool(get("hasTurnstile")),
	}
}

func (s cloudflareSignal) isChallenge() bool {
	titleWait := strings.Contains(strings.ToLower(s.Title), "just a moment") || strings.Contains(strings.ToLower(s.Title), "attention required")
	bodyChecking := strings.Contains(strings.ToLower(s.Body), "checking your browser") || strings.Contains(strings.ToLower(s.Body), "checking if the site connection is secure")
	return s.HasChallengeForm || s.HasCdnCgi || s.HasTurnstile || (titleWait && bodyChecking)
}

func (s cloudflareSignal) isInteractive() bool { return s.HasTurnstile }

// ExtractWebView rate-limit acquires, loads the page, waits out any
// Cloudflare interstitial, runs the generated extraction script, and
// decodes the result.
func ExtractWebView(
	ctx context.Context,
	newController WebViewFactory,
	limiter *ratelimit.Limiter,
	src *source.Source,
	url string,
	timeoutMs int,
	script string,
	captureHTML bool,
	handle debugtrace.Handle,
) (result any, htmlSnapshot string, err error) {
	if timeoutMs <= 0 {
		timeoutMs = 15000
	}
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	opCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	host := ratelimit.HostOf(url)
	if cfg, ok := ratelimit.ParseRateLimit(src.RateLimit); ok {
		if err := limiter.AcquireSlot(host, cfg); err != nil {
			return nil, "", err
		}
	}
	defer limiter.ReleaseSlot(host)

	controller, cerr := newController(opCtx)
	if cerr != nil {
		return nil, "", rerror.NewNetworkError("webview launch failed", 0, rerror.Context{SourceID: src.ID, URL: url}, cerr)
	}
	defer controller.Dispose()

	var subResourceURLs []string
	controller.ShouldAllowRequest(func(requestURL string) bool {
		subResourceURLs = append(subResourceURLs, requestURL)
		return true
	})

	debugtrace.Step(handle, debugtrace.StepEvent{Type: "request", URL: url, SourceID: src.ID})

	if ok, err := controller.LoadURL(opCtx, url); err != nil || !ok {
		return nil, "", rerror.NewNetworkError("webview load failed", 0, rerror.Context{SourceID: src.ID, URL: url}, err)
	}
	if _, err := controller.WaitForLoad(opCtx); err != nil {
		return nil, "", rerror.NewNetworkError("webview waitForLoad failed", 0, rerror.Context{SourceID: src.ID, URL: url}, err)
	}

	if err := waitOutCloudflare(opCtx, controller, deadline, src, url, handle); err != nil {
		return nil, "", err
	}

	if captureHTML {
		if html, err := controller.GetHTML(opCtx); err == nil {
			htmlSnapshot = goquerySnapshot(html)
		}
	}

	raw, err := controller.EvaluateJavaScript(opCtx, script)
	if err != nil {
		return nil, htmlSnapshot, rerror.Wrap(err, rerror.Context{SourceID: src.ID, URL: url})
	}

	if m, ok := raw.(map[string]any); ok {
		if msg, ok := m["__error"]; ok {
			return nil, htmlSnapshot, rerror.NewSourceError(fmt.Sprintf("%v", msg), rerror.Context{SourceID: src.ID, URL: url})
		}
	}

	debugtrace.Step(handle, debugtrace.StepEvent{Type: "response", URL: url, SourceID: src.ID, Data: map[string]any{"subResources": len(subResourceURLs)}})

	return raw, htmlSnapshot, nil
}

// waitOutCloudflare polls the Cloudflare detection script every ~500ms.
// An interactive (Turnstile) challenge is immediately fatal; a passive
// challenge is polled up to min(15s, remainingTimeout). Three
// consecutive evaluation errors abort the wait gracefully (treated as
// "no challenge" rather than raising, since the page may simply not
// support the detection script).
func waitOutCloudflare(ctx context.Context, controller WebViewController, deadline time.Time, src *source.Source, url string, handle debugtrace.Handle) error {
	maxWait := 15 * time.Second
	if remaining := time.Until(deadline); remaining < maxWait {
		maxWait = remaining
	}
	waitDeadline := time.Now().Add(maxWait)

	consecutiveErrors := 0
	wasChallenge := false

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	check := func() (done bool, err error) {
		raw, evalErr := controller.EvaluateJavaScript(ctx, cloudflareDetectScript)
		if evalErr != nil {
			consecutiveErrors++
			if consecutiveErrors >= 3 {
				return true, nil
			}
			return false, nil
		}
		consecutiveErrors = 0
		sig := decodeCloudflareSignal(raw)
		if sig.isInteractive() {
			return true, rerror.NewSourceError("Cloudflare Turnstile detected", rerror.Context{SourceID: src.ID, URL: url})
		}
		if sig.isChallenge() {
			wasChallenge = true
			return false, nil
		}
		if wasChallenge {
			debugtrace.Step(handle, debugtrace.StepEvent{Type: "cf.passed", URL: url, SourceID: src.ID})
		}
		return true, nil
	}

	if done, err := check(); done || err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return rerror.NewSourceError("Cloudflare wait timed out", rerror.Context{SourceID: src.ID, URL: url})
		case <-ticker.C:
			if time.Now().After(waitDeadline) {
				return rerror.NewSourceError("Cloudflare wait timed out", rerror.Context{SourceID: src.ID, URL: url})
			}
			if done, err := check(); done || err != nil {
				return err
			}
		}
	}
}

// goquerySnapshot normalizes captured HTML through goquery before
// ExtractWebView returns it to its caller, matching the rest of the codebase's use of
// goquery for any DOM inspection that happens on the Go side rather than
// inside the browser.
func goquerySnapshot(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	out, err := doc.Html()
	if err != nil {
		return html
	}
	return out
}
