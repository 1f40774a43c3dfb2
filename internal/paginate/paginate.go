// Package paginate implements the two pagination drivers a module's
// search/discover/chapter rules can select between. Both drivers call back
// into a caller-supplied page loader and never touch HTTP, the DOM, or the
// rule DSL directly — they only sequence pages and merge results.
//
// PaginatePageParam's parallel strategy uses a counting semaphore
// (golang.org/x/sync/semaphore) rather than a fixed goroutine pool
// draining a task channel: page count is known up front, so a
// semaphore-gated wait group is the simpler fit.
package paginate

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/nickheyer/bookrule/internal/source"
)

const defaultMaxPages = 20
const defaultMaxConcurrent = 3

// Page is one loaded page's items plus the raw "next URL" candidates a
// nextUrl-mode rule resolved on that page (usually zero or one).
type Page struct {
	Items       []any
	NextURLs    []string
	KeyOf       func(item any) string // used for dedup; nil disables dedup
}

// LoadNextURL loads the page at url and returns its items plus any
// next-page URL(s) resolved from that page's content.
type LoadNextURL func(ctx context.Context, url string) (Page, error)

// LoadPageParam loads the page whose page-param value is pageNumber
// (PaginatePageParam passes start + i*step for the i-th page) and
// returns its items.
type LoadPageParam func(ctx context.Context, pageNumber int) ([]any, error)

// PaginateNextURL drives a "next link" crawl starting at initialURL: each
// page's loader may surface zero or more next-URL candidates (normally at
// most one), the first unseen one is followed, and a visited-set guards
// against cycles. Stops at stop.MaxPages (default 20), when a page yields
// no next-URL candidate, or when stop.EmptyResult is set and a page's
// items are empty.
func PaginateNextURL(ctx context.Context, initialURL string, stop *source.StopCondition, load LoadNextURL) ([]any, error) {
	maxPages := defaultMaxPages
	emptyStops := false
	if stop != nil {
		if stop.MaxPages > 0 {
			maxPages = stop.MaxPages
		}
		emptyStops = stop.EmptyResult
	}

	var all []any
	seenKeys := make(map[string]struct{})
	visited := map[string]struct{}{initialURL: {}}

	url := initialURL
	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		p, err := load(ctx, url)
		if err != nil {
			return all, err
		}

		appendDeduped(&all, seenKeys, p)

		if emptyStops && len(p.Items) == 0 {
			break
		}

		next := firstUnvisited(p.NextURLs, visited)
		if next == "" {
			break
		}
		visited[next] = struct{}{}
		url = next
	}

	return all, nil
}

func firstUnvisited(candidates []string, visited map[string]struct{}) string {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, seen := visited[c]; !seen {
			return c
		}
	}
	return ""
}

func appendDeduped(all *[]any, seenKeys map[string]struct{}, p Page) {
	for _, item := range p.Items {
		if p.KeyOf != nil {
			k := p.KeyOf(item)
			if _, dup := seenKeys[k]; dup {
				continue
			}
			seenKeys[k] = struct{}{}
		}
		*all = append(*all, item)
	}
}

// PaginatePageParam drives page-number pagination per cfg.PageParam's
// start/step. Sequential strategy loads pages one at a time and truncates
// at the first empty page when stop.EmptyResult is set (parallel strategy
// cannot honor that truncation rule mid-flight, since pages load out of
// order — it instead loads the full stop.MaxPages window and then
// truncates at the first empty page, documented as an accepted approximation of the
// sequential semantics).
func PaginatePageParam(ctx context.Context, cfg *source.Pagination, keyOf func(item any) string, load LoadPageParam) ([]any, error) {
	if cfg == nil || cfg.PageParam == nil {
		return nil, fmt.Errorf("paginate: PageParam config required")
	}

	maxPages := defaultMaxPages
	emptyStops := false
	if cfg.Stop != nil {
		if cfg.Stop.MaxPages > 0 {
			maxPages = cfg.Stop.MaxPages
		}
		emptyStops = cfg.Stop.EmptyResult
	}

	step := cfg.PageParam.Step
	if step == 0 {
		step = 1
	}
	pageNumbers := make([]int, maxPages)
	for i := range pageNumbers {
		pageNumbers[i] = cfg.PageParam.Start + i*step
	}

	var pages [][]any
	var err error
	if cfg.Strategy == source.StrategyParallel {
		pages, err = loadParallel(ctx, pageNumbers, maxConcurrentOf(cfg), load)
	} else {
		pages, err = loadSequential(ctx, pageNumbers, emptyStops, load)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Strategy == source.StrategyParallel && emptyStops {
		pages = truncateAtFirstEmpty(pages)
	}

	return mergeDeduped(pages, keyOf), nil
}

func maxConcurrentOf(cfg *source.Pagination) int {
	if cfg.MaxConcurrent > 0 {
		return cfg.MaxConcurrent
	}
	return defaultMaxConcurrent
}

func loadSequential(ctx context.Context, pageNumbers []int, emptyStops bool, load LoadPageParam) ([][]any, error) {
	pages := make([][]any, 0, len(pageNumbers))
	for _, n := range pageNumbers {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		items, err := load(ctx, n)
		if err != nil {
			return pages, err
		}
		pages = append(pages, items)
		if emptyStops && len(items) == 0 {
			break
		}
	}
	return pages, nil
}

// loadParallel runs all requested pages through a bounded semaphore,
// preserving page order in the output regardless of completion order.
func loadParallel(ctx context.Context, pageNumbers []int, maxConcurrent int, load LoadPageParam) ([][]any, error) {
	sem := semaphore.NewWeighted(int64(maxConcurrent))
	results := make([][]any, len(pageNumbers))
	errs := make([]error, len(pageNumbers))

	var wg sync.WaitGroup
	for i, n := range pageNumbers {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return results, err
		}
		wg.Add(1)
		go func(i, n int) {
			defer wg.Done()
			defer sem.Release(1)
			items, err := load(ctx, n)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = items
		}(i, n)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func truncateAtFirstEmpty(pages [][]any) [][]any {
	for i, p := range pages {
		if len(p) == 0 {
			return pages[:i]
		}
	}
	return pages
}

func mergeDeduped(pages [][]any, keyOf func(item any) string) []any {
	var all []any
	seen := make(map[string]struct{})
	for _, page := range pages {
		for _, item := range page {
			if keyOf != nil {
				k := keyOf(item)
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
			}
			all = append(all, item)
		}
	}
	return all
}
