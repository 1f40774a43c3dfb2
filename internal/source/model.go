// Package source defines the declarative Source document: a book-site
// descriptor with search/discover/chapter/content module rules, and the
// domain records (Book, Chapter, Content, DiscoverCategory) an Engine
// operation produces from it.
package source

// Type distinguishes a novel source (text chapters) from a comic source
// (image-list chapters).
type Type string

const (
	TypeNovel Type = "novel"
	TypeComic Type = "comic"
)

// Action selects the backend used to render a request.
type Action string

const (
	ActionLoadURL Action = "loadUrl"
	ActionFetch   Action = "fetch"
)

// Method is the HTTP method of a RequestConfig.
type Method string

const (
	MethodGET  Method = "GET"
	MethodPOST Method = "POST"
)

// RequestConfig describes one templated HTTP/WebView request.
type RequestConfig struct {
	URL     string            `json:"url"`
	Method  Method            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
	Action  Action            `json:"action,omitempty"`
	// TimeoutMs defaults to 15000 when zero.
	TimeoutMs int `json:"timeout,omitempty"`
}

// StopCondition bounds a Pagination loop.
type StopCondition struct {
	MaxPages    int  `json:"maxPages,omitempty"` // default 20
	EmptyResult bool `json:"emptyResult,omitempty"`
}

// PageParamConfig drives page-number based pagination.
type PageParamConfig struct {
	Start int `json:"start"`
	Step  int `json:"step"`
}

// PaginationStrategy selects sequential or bounded-parallel page loads.
type PaginationStrategy string

const (
	StrategySequential PaginationStrategy = "sequential"
	StrategyParallel   PaginationStrategy = "parallel"
)

// Pagination is a tagged union: exactly one of NextURL or PageParam is set.
type Pagination struct {
	NextURL string `json:"nextUrl,omitempty"`

	PageParam     *PageParamConfig   `json:"pageParam,omitempty"`
	Strategy      PaginationStrategy `json:"strategy,omitempty"`
	MaxConcurrent int                `json:"maxConcurrent,omitempty"` // default 3

	Stop *StopCondition `json:"stop,omitempty"`
}

// IsPageParam reports whether this is a page-number pagination config.
func (p *Pagination) IsPageParam() bool { return p != nil && p.PageParam != nil }

// FieldSet is the common `{key -> Expr}` extraction map used by every module.
type FieldSet map[string]string

// ParseConfig is the `parse` block of a module.
type ParseConfig struct {
	List   string   `json:"list,omitempty"`
	Fields FieldSet `json:"fields,omitempty"`

	// content module only
	Title   string   `json:"title,omitempty"`
	Content string   `json:"content,omitempty"`
	Purify  []string `json:"purify,omitempty"`
}

// SearchModule describes how to run a keyword search.
type SearchModule struct {
	Request    RequestConfig `json:"request"`
	Pagination *Pagination   `json:"pagination,omitempty"`
	Parse      ParseConfig   `json:"parse"`
}

// Category is one static discover category.
type Category struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// DiscoverModule describes category browsing.
type DiscoverModule struct {
	Enabled    bool          `json:"enabled"`
	Categories []Category    `json:"categories,omitempty"`
	Request    RequestConfig `json:"request"`
	Parse      ParseConfig   `json:"parse"`
	Pagination *Pagination   `json:"pagination,omitempty"`
}

// ChapterModule describes how to list a book's chapters.
type ChapterModule struct {
	Request    *RequestConfig `json:"request,omitempty"`
	Parse      ParseConfig    `json:"parse"`
	Pagination *Pagination    `json:"pagination,omitempty"`
	Reverse    bool           `json:"reverse,omitempty"`
}

// ContentModule describes how to extract one chapter's content.
type ContentModule struct {
	Request *RequestConfig `json:"request,omitempty"`
	Parse   ParseConfig    `json:"parse"`
	Purify  []string       `json:"purify,omitempty"`
}

// Source is the user-supplied description of one site.
type Source struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Host      string            `json:"host"`
	Type      Type              `json:"type"`
	Enabled   bool              `json:"enabled"`
	Headers   map[string]string `json:"headers,omitempty"`
	RateLimit string            `json:"rateLimit,omitempty"`
	JSLib     string            `json:"jsLib,omitempty"`
	Vars      map[string]any    `json:"vars,omitempty"`

	Search   SearchModule    `json:"search"`
	Discover *DiscoverModule `json:"discover,omitempty"`
	Chapter  ChapterModule   `json:"chapter"`
	Content  ContentModule   `json:"content"`
}

// Book is a produced search/discover record.
type Book struct {
	ID            string         `json:"id"` // absolute URL
	SourceID      string         `json:"sourceId"`
	Name          string         `json:"name"`
	URL           string         `json:"url"`
	Author        string         `json:"author,omitempty"`
	Cover         string         `json:"cover,omitempty"`
	Intro         string         `json:"intro,omitempty"`
	LatestChapter string         `json:"latestChapter,omitempty"`
	Vars          map[string]any `json:"vars,omitempty"`
}

// Chapter is a produced chapter-list record.
type Chapter struct {
	ID     string         `json:"id"`
	BookID string         `json:"bookId"`
	Name   string         `json:"name"`
	URL    string         `json:"url"`
	Index  int            `json:"index"`
	Vars   map[string]any `json:"vars,omitempty"`
}

// Content is a produced chapter-content record. Body is a single string
// for novel sources and a slice of image URLs for comic sources.
type Content struct {
	Title string
	Body  any // string | []string
}

// DiscoverCategory is one resolved discover category.
type DiscoverCategory struct {
	Name string
	URL  string
}
