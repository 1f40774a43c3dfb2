// Package urlresolve resolves relative URLs extracted from a fetched
// page against that page's own URL (not the request template), per the
// executor's "resolving relative URLs against the fetched URL" rule.
package urlresolve

import (
	"net/url"
	"strings"
)

// Resolve turns relativeURL into an absolute URL against baseURL. An
// already-absolute relativeURL is returned unchanged.
func Resolve(baseURL, relativeURL string) string {
	if relativeURL == "" {
		return relativeURL
	}
	if strings.HasPrefix(relativeURL, "http://") || strings.HasPrefix(relativeURL, "https://") {
		return relativeURL
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return relativeURL
	}

	rel, err := url.Parse(relativeURL)
	if err != nil {
		return relativeURL
	}

	return base.ResolveReference(rel).String()
}
