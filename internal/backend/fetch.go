package backend

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/nickheyer/bookrule/internal/debugtrace"
	"github.com/nickheyer/bookrule/internal/ratelimit"
	"github.com/nickheyer/bookrule/internal/rerror"
	"github.com/nickheyer/bookrule/internal/rlog"
	"github.com/nickheyer/bookrule/internal/source"
)

const maxBodyBytes = 10 * 1024 * 1024 // 10MB cap on a single response body

// HTTPFetcher is the real net/http-backed HTTPClient implementation.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds a fetcher with a cookie jar keyed by the public
// suffix list.
func NewHTTPFetcher() *HTTPFetcher {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return &HTTPFetcher{
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig:       &tls.Config{InsecureSkipVerify: false},
				MaxIdleConns:          100,
				IdleConnTimeout:       30 * time.Second,
				TLSHandshakeTimeout:   15 * time.Second,
				ResponseHeaderTimeout: 60 * time.Second,
				ExpectContinueTimeout: 5 * time.Second,
			},
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, method, url string, headers map[string]string, body string) (*HTTPResponse, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Encoding", "gzip")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var reader io.ReadCloser = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, gerr := gzip.NewReader(resp.Body)
		if gerr != nil {
			return nil, gerr
		}
		defer gz.Close()
		reader = gz
	}

	data, err := io.ReadAll(io.LimitReader(reader, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	return &HTTPResponse{
		Status: resp.StatusCode,
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Text:   string(data),
	}, nil
}

// FetchText composes headers, acquires the host's rate slot, calls the
// HTTPClient, and surfaces a NetworkError on non-2xx. It emits a
// "request" step before dispatch and a "response" step on every
// outcome, symmetric with the WebView backend's ExtractWebView.
func FetchText(ctx context.Context, client HTTPClient, limiter *ratelimit.Limiter, src *source.Source, req source.RequestConfig, url string, handle debugtrace.Handle) (string, error) {
	headers := make(map[string]string, len(src.Headers)+len(req.Headers))
	for k, v := range src.Headers {
		headers[k] = v
	}
	for k, v := range req.Headers {
		headers[k] = v
	}

	host := ratelimit.HostOf(url)
	if cfg, ok := ratelimit.ParseRateLimit(src.RateLimit); ok {
		if err := limiter.AcquireSlot(host, cfg); err != nil {
			return "", err
		}
	}
	defer limiter.ReleaseSlot(host)

	timeout := req.TimeoutMs
	if timeout <= 0 {
		timeout = 15000
	}
	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Millisecond)
	defer cancel()

	method := string(req.Method)
	if method == "" {
		method = string(source.MethodGET)
	}

	debugtrace.Step(handle, debugtrace.StepEvent{Type: "request", URL: url, SourceID: src.ID})

	resp, err := client.Fetch(reqCtx, method, url, headers, req.Body)
	if err != nil {
		rlog.GetLogger().Warn("fetch failed", map[string]any{"url": url, "error": err.Error()})
		debugtrace.Step(handle, debugtrace.StepEvent{Type: "response", URL: url, SourceID: src.ID, Data: map[string]any{"error": err.Error()}})
		return "", rerror.NewNetworkError(err.Error(), 0, rerror.Context{SourceID: src.ID, URL: url}, err)
	}
	if !resp.OK {
		rlog.GetLogger().Debug("non-2xx response body preview", map[string]any{"url": url, "preview": previewOf(resp.Text, 512)})
		debugtrace.Step(handle, debugtrace.StepEvent{Type: "response", URL: url, SourceID: src.ID, Data: map[string]any{"status": resp.Status}})
		return "", rerror.NewNetworkError("non-2xx response", resp.Status, rerror.Context{SourceID: src.ID, URL: url}, nil)
	}
	debugtrace.Step(handle, debugtrace.StepEvent{Type: "response", URL: url, SourceID: src.ID, Data: map[string]any{"status": resp.Status}})
	return resp.Text, nil
}

func previewOf(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
