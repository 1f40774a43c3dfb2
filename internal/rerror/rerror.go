// Package rerror implements the reader error taxonomy: ParseError,
// NetworkError and SourceError, unified under a single ReaderError shape
// carrying the contextual fields callers need to surface a precise
// message (sourceId, module, url, fieldPath, expr, statusCode, cause).
package rerror

import (
	"fmt"
	"time"
)

// Kind names the taxonomy bucket. Never retried by the executor itself —
// retry policy, if any, is left to the caller.
type Kind string

const (
	KindParse   Kind = "parse"
	KindNetwork Kind = "network"
	KindSource  Kind = "source"
)

// ReaderError is the common error shape raised out of every top-level
// module operation (search/discover/chapter/content).
type ReaderError struct {
	Kind       Kind
	Message    string
	SourceID   string
	Module     string
	URL        string
	FieldPath  string
	Expr       string
	StatusCode int
	Cause      error
	Timestamp  time.Time
}

func (e *ReaderError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("[%s/%s] %s (url: %s)", e.Kind, e.Module, e.Message, e.URL)
	}
	if e.Module != "" {
		return fmt.Sprintf("[%s/%s] %s", e.Kind, e.Module, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *ReaderError) Unwrap() error { return e.Cause }

// Context carries the contextual fields attached to every raised error.
type Context struct {
	SourceID  string
	Module    string
	URL       string
	FieldPath string
	Expr      string
}

// NewParseError builds a ParseError — a grammar violation, unbalanced
// interpolation, or invalid slice/regex suffix. Never retried; surfaced
// directly to the caller with the offending Expr and FieldPath attached.
func NewParseError(message, expr, fieldPath, sourceID, module string) *ReaderError {
	return &ReaderError{
		Kind:      KindParse,
		Message:   message,
		Expr:      expr,
		FieldPath: fieldPath,
		SourceID:  sourceID,
		Module:    module,
		Timestamp: time.Now(),
	}
}

// NewNetworkError builds a NetworkError for an HTTP non-2xx, a timeout,
// or a WebView load failure.
func NewNetworkError(message string, statusCode int, ctx Context, cause error) *ReaderError {
	return &ReaderError{
		Kind:       KindNetwork,
		Message:    message,
		StatusCode: statusCode,
		SourceID:   ctx.SourceID,
		Module:     ctx.Module,
		URL:        ctx.URL,
		Cause:      cause,
		Timestamp:  time.Now(),
	}
}

// NewSourceError builds a SourceError — the backend worked but
// extraction failed (empty content, invalid purify rule, Cloudflare
// Turnstile challenge, unsupported selectorType, `__error` from the
// extraction script).
func NewSourceError(message string, ctx Context) *ReaderError {
	return &ReaderError{
		Kind:      KindSource,
		Message:   message,
		SourceID:  ctx.SourceID,
		Module:    ctx.Module,
		URL:       ctx.URL,
		FieldPath: ctx.FieldPath,
		Timestamp: time.Now(),
	}
}

// Wrap converts any error raised inside a module operation into a
// ReaderError carrying {sourceId, module, url}. A *ReaderError passed in
// is returned unchanged (already typed) aside from filling blank context
// fields from ctx.
func Wrap(cause error, ctx Context) *ReaderError {
	if cause == nil {
		return nil
	}
	if re, ok := cause.(*ReaderError); ok {
		if re.SourceID == "" {
			re.SourceID = ctx.SourceID
		}
		if re.Module == "" {
			re.Module = ctx.Module
		}
		if re.URL == "" {
			re.URL = ctx.URL
		}
		return re
	}
	return &ReaderError{
		Kind:      KindSource,
		Message:   cause.Error(),
		SourceID:  ctx.SourceID,
		Module:    ctx.Module,
		URL:       ctx.URL,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// Is reports whether err is a *ReaderError of the given Kind.
func Is(err error, kind Kind) bool {
	re, ok := err.(*ReaderError)
	return ok && re.Kind == kind
}
