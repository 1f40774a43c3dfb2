package executor

import (
	"context"

	"github.com/nickheyer/bookrule/internal/debugtrace"
	"github.com/nickheyer/bookrule/internal/paginate"
	"github.com/nickheyer/bookrule/internal/rerror"
	"github.com/nickheyer/bookrule/internal/source"
)

// GetDiscoverCategories implements `getDiscoverCategories`. Static
// categories are returned as-is; when a source instead describes
// categories dynamically (`parse.list`/`fields` against `discover.request`
// rather than a fixed list), they are fetched like any other list module.
func GetDiscoverCategories(ctx context.Context, e *Engine, src *source.Source, opts Options) ([]source.DiscoverCategory, error) {
	const module = "discover.categories"
	handle := e.Debug.StartOperation(debugtrace.OperationInput{OpType: "getDiscoverCategories", SourceID: src.ID, Module: module})

	cats, err := e.runDiscoverCategories(ctx, src, opts, handle)
	if err != nil {
		rerr := rerror.Wrap(err, rerror.Context{SourceID: src.ID, Module: module})
		debugtrace.EndError(handle, rerr)
		return nil, rerr
	}
	debugtrace.EndOk(handle)
	return cats, nil
}

func (e *Engine) runDiscoverCategories(ctx context.Context, src *source.Source, opts Options, handle debugtrace.Handle) ([]source.DiscoverCategory, error) {
	const module = "discover.categories"
	if src.Discover == nil || !src.Discover.Enabled {
		return nil, nil
	}
	if len(src.Discover.Categories) > 0 {
		out := make([]source.DiscoverCategory, 0, len(src.Discover.Categories))
		for _, c := range src.Discover.Categories {
			out = append(out, source.DiscoverCategory{Name: c.Name, URL: c.URL})
		}
		return out, nil
	}
	if src.Discover.Parse.List == "" {
		return nil, nil
	}

	spec, err := e.buildListSpec(src, src.Discover.Parse, nil, src.ID, module)
	if err != nil {
		return nil, err
	}

	deadline, cancel := contextWithTimeoutMs(ctx, e.timeoutOf(opts))
	defer cancel()

	rc := &runContext{src: src}
	pr, err := e.loadPage(deadline, rc, src.Discover.Request, spec, handle, src.ID, module)
	if err != nil {
		return nil, err
	}

	out := make([]source.DiscoverCategory, 0, len(pr.Items))
	for _, fields := range pr.Items {
		name, rawURL := fields["name"], fields["url"]
		if name == "" || rawURL == "" {
			continue
		}
		out = append(out, source.DiscoverCategory{Name: name, URL: resolveItemURL(pr.FetchedURL, rawURL)})
	}
	return out, nil
}

// GetDiscoverBooks implements `getDiscoverBooks`: identical shape to
// Search, but the browse entry point is a category URL instead of a
// keyword search request.
func GetDiscoverBooks(ctx context.Context, e *Engine, src *source.Source, category source.DiscoverCategory, opts Options) ([]source.Book, error) {
	const module = "discover.books"
	handle := e.Debug.StartOperation(debugtrace.OperationInput{OpType: "getDiscoverBooks", SourceID: src.ID, Module: module, Input: category.URL})

	books, err := e.runDiscoverBooks(ctx, src, category, opts, handle)
	if err != nil {
		rerr := rerror.Wrap(err, rerror.Context{SourceID: src.ID, Module: module, URL: category.URL})
		debugtrace.EndError(handle, rerr)
		return nil, rerr
	}
	debugtrace.EndOk(handle)
	return books, nil
}

func (e *Engine) runDiscoverBooks(ctx context.Context, src *source.Source, category source.DiscoverCategory, opts Options, handle debugtrace.Handle) ([]source.Book, error) {
	const module = "discover.books"
	if src.Discover == nil {
		return nil, rerror.NewSourceError("discover module not configured", rerror.Context{SourceID: src.ID, Module: module})
	}

	spec, err := e.buildListSpec(src, src.Discover.Parse, src.Discover.Pagination, src.ID, module)
	if err != nil {
		return nil, err
	}

	deadline, cancel := contextWithTimeoutMs(ctx, e.timeoutOf(opts))
	defer cancel()

	req := src.Discover.Request
	req.URL = category.URL

	rc := &runContext{src: src}
	initialURL, err := rc.render(req.URL, e.JSEval, e.onJSInterpolationError(handle))
	if err != nil {
		return nil, err
	}

	toBooks := func(pr pageResult) []source.Book { return e.recordsToBooks(src, spec, rc, pr, module) }

	if src.Discover.Pagination.IsPageParam() {
		pageN := 0
		items, err := paginate.PaginatePageParam(deadline, src.Discover.Pagination, bookKeyOf, func(pc context.Context, pageNumber int) ([]any, error) {
			idx := pageN
			pageN++
			rc.page, rc.pageIndex = pageNumber, idx
			pr, err := e.loadPage(pc, rc, req, spec, handle, src.ID, module)
			if err != nil {
				return nil, err
			}
			return anyBooks(toBooks(pr)), nil
		})
		if err != nil {
			return nil, err
		}
		return anySliceToBooks(items), nil
	}

	var stop *source.StopCondition
	if src.Discover.Pagination != nil {
		stop = src.Discover.Pagination.Stop
	}
	page := 0
	items, err := paginate.PaginateNextURL(deadline, initialURL, stop, func(pc context.Context, url string) (paginate.Page, error) {
		rc.page, rc.pageIndex = page+1, page
		rc.url = url
		page++
		pr, err := e.loadPage(pc, rc, req, spec, handle, src.ID, module)
		if err != nil {
			return paginate.Page{}, err
		}
		var nextURLs []string
		if pr.NextURL != "" {
			nextURLs = []string{pr.NextURL}
		}
		return paginate.Page{Items: anyBooks(toBooks(pr)), NextURLs: nextURLs, KeyOf: bookKeyOf}, nil
	})
	if err != nil {
		return nil, err
	}
	return anySliceToBooks(items), nil
}
