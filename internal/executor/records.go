package executor

import "github.com/nickheyer/bookrule/internal/source"

// buildBook turns one extracted field map into a Book, resolving "url"
// and "cover" against fetchedURL. Returns ok=false for a malformed row
// (missing name or url); callers skip such rows rather than aborting
// the page.
func buildBook(sourceID, fetchedURL string, fields map[string]string) (source.Book, bool) {
	name := fields["name"]
	rawURL := fields["url"]
	if name == "" || rawURL == "" {
		return source.Book{}, false
	}
	absURL := resolveItemURL(fetchedURL, rawURL)
	return source.Book{
		ID:            absURL,
		SourceID:      sourceID,
		Name:          name,
		URL:           absURL,
		Author:        fields["author"],
		Cover:         resolveItemURL(fetchedURL, fields["cover"]),
		Intro:         fields["intro"],
		LatestChapter: fields["latestChapter"],
	}, true
}

// buildChapter turns one extracted field map into a Chapter (index is
// assigned later, after full pagination and optional reversal).
func buildChapter(bookID, fetchedURL string, fields map[string]string) (source.Chapter, bool) {
	name := fields["name"]
	rawURL := fields["url"]
	if name == "" || rawURL == "" {
		return source.Chapter{}, false
	}
	absURL := resolveItemURL(fetchedURL, rawURL)
	return source.Chapter{
		ID:     absURL,
		BookID: bookID,
		Name:   name,
		URL:    absURL,
	}, true
}

func bookKeyOf(item any) string {
	b, ok := item.(source.Book)
	if !ok {
		return ""
	}
	return b.ID
}

func chapterKeyOf(item any) string {
	c, ok := item.(source.Chapter)
	if !ok {
		return ""
	}
	return c.ID
}
