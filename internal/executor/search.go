package executor

import (
	"context"

	"github.com/nickheyer/bookrule/internal/debugtrace"
	"github.com/nickheyer/bookrule/internal/paginate"
	"github.com/nickheyer/bookrule/internal/rerror"
	"github.com/nickheyer/bookrule/internal/source"
)

// Search implements the `search` module operation.
func Search(ctx context.Context, e *Engine, src *source.Source, keyword string, opts Options) ([]source.Book, error) {
	handle := e.Debug.StartOperation(debugtrace.OperationInput{OpType: "search", SourceID: src.ID, Module: "search", Input: keyword})

	books, err := e.runSearch(ctx, src, keyword, opts, handle)
	if err != nil {
		rerr := rerror.Wrap(err, rerror.Context{SourceID: src.ID, Module: "search"})
		debugtrace.EndError(handle, rerr)
		return nil, rerr
	}
	debugtrace.EndOk(handle)
	return books, nil
}

func (e *Engine) runSearch(ctx context.Context, src *source.Source, keyword string, opts Options, handle debugtrace.Handle) ([]source.Book, error) {
	const module = "search"

	spec, err := e.buildListSpec(src, src.Search.Parse, src.Search.Pagination, src.ID, module)
	if err != nil {
		return nil, err
	}

	deadline, cancel := contextWithTimeoutMs(ctx, e.timeoutOf(opts))
	defer cancel()

	rc := &runContext{src: src, keyword: keyword}

	req := src.Search.Request
	initialURL, err := rc.render(req.URL, e.JSEval, e.onJSInterpolationError(handle))
	if err != nil {
		return nil, err
	}

	toBooks := func(pr pageResult) []source.Book {
		return e.recordsToBooks(src, spec, rc, pr, module)
	}

	if src.Search.Pagination.IsPageParam() {
		pageN := 0
		items, err := paginate.PaginatePageParam(deadline, src.Search.Pagination, bookKeyOf, func(pc context.Context, pageNumber int) ([]any, error) {
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
	if src.Search.Pagination != nil {
		stop = src.Search.Pagination.Stop
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

// buildListSpec parses the list/fields/nextUrl Exprs shared by search,
// discover and chapter modules.
func (e *Engine) buildListSpec(src *source.Source, parse source.ParseConfig, pagination *source.Pagination, sourceID, module string) (fieldSpec, error) {
	listNode, err := e.parseListExpr(parse.List, sourceID, module)
	if err != nil {
		return fieldSpec{}, err
	}
	fields, err := e.parseFieldSet(parse.Fields, sourceID, module)
	if err != nil {
		return fieldSpec{}, err
	}
	spec := fieldSpec{list: listNode, fields: fields}
	if pagination != nil && pagination.NextURL != "" {
		n, err := e.parseExpr(pagination.NextURL, "pagination.nextUrl", sourceID, module)
		if err != nil {
			return fieldSpec{}, err
		}
		spec.nextURL = n
	}
	return spec, nil
}

// recordsToBooks converts one page's raw field maps into Books, resolving
// relative URLs and persisting any @put side effects under each book's id.
func (e *Engine) recordsToBooks(src *source.Source, spec fieldSpec, rc *runContext, pr pageResult, module string) []source.Book {
	out := make([]source.Book, 0, len(pr.Items))
	for _, fields := range pr.Items {
		b, ok := buildBook(src.ID, pr.FetchedURL, fields)
		if !ok {
			continue
		}
		if put := e.evaluatePutVars(spec.fields, fields, rc, src.ID, module); len(put) > 0 {
			e.FlowVars.SetAll(src.ID, b.ID, put)
			b.Vars = e.FlowVars.Snapshot(src.ID, b.ID)
		}
		out = append(out, b)
	}
	return out
}

func anyBooks(books []source.Book) []any {
	out := make([]any, len(books))
	for i, b := range books {
		out[i] = b
	}
	return out
}

func anySliceToBooks(items []any) []source.Book {
	out := make([]source.Book, 0, len(items))
	for _, it := range items {
		if b, ok := it.(source.Book); ok {
			out = append(out, b)
		}
	}
	return out
}
