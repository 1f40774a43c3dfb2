package executor

import (
	"context"

	"github.com/nickheyer/bookrule/internal/debugtrace"
	"github.com/nickheyer/bookrule/internal/paginate"
	"github.com/nickheyer/bookrule/internal/rerror"
	"github.com/nickheyer/bookrule/internal/source"
)

func defaultChapterRequest() source.RequestConfig {
	return source.RequestConfig{URL: "{{url}}", Action: source.ActionLoadURL}
}

// GetChapterList runs the chapter module's post-processing: optional
// reversal, 0-based index assignment, and flow-var inheritance from the
// book into every chapter.
func GetChapterList(ctx context.Context, e *Engine, src *source.Source, book source.Book, opts Options) ([]source.Chapter, error) {
	const module = "chapter"
	handle := e.Debug.StartOperation(debugtrace.OperationInput{OpType: "getChapterList", SourceID: src.ID, Module: module, Input: book.URL})

	chapters, err := e.runChapterList(ctx, src, book, opts, handle)
	if err != nil {
		rerr := rerror.Wrap(err, rerror.Context{SourceID: src.ID, Module: module, URL: book.URL})
		debugtrace.EndError(handle, rerr)
		return nil, rerr
	}
	debugtrace.EndOk(handle)
	return chapters, nil
}

func (e *Engine) runChapterList(ctx context.Context, src *source.Source, book source.Book, opts Options, handle debugtrace.Handle) ([]source.Chapter, error) {
	const module = "chapter"

	spec, err := e.buildListSpec(src, src.Chapter.Parse, src.Chapter.Pagination, src.ID, module)
	if err != nil {
		return nil, err
	}

	req := defaultChapterRequest()
	if src.Chapter.Request != nil {
		req = *src.Chapter.Request
	}

	deadline, cancel := contextWithTimeoutMs(ctx, e.timeoutOf(opts))
	defer cancel()

	rc := &runContext{src: src, book: &book, url: book.URL}
	initialURL, err := rc.render(req.URL, e.JSEval, e.onJSInterpolationError(handle))
	if err != nil {
		return nil, err
	}

	toChapters := func(pr pageResult) []source.Chapter {
		return e.recordsToChapters(src, book.ID, spec, rc, pr, module)
	}

	var chapters []source.Chapter

	if src.Chapter.Pagination.IsPageParam() {
		pageN := 0
		items, err := paginate.PaginatePageParam(deadline, src.Chapter.Pagination, chapterKeyOf, func(pc context.Context, pageNumber int) ([]any, error) {
			idx := pageN
			pageN++
			rc.page, rc.pageIndex = pageNumber, idx
			pr, err := e.loadPage(pc, rc, req, spec, handle, src.ID, module)
			if err != nil {
				return nil, err
			}
			return anyChapters(toChapters(pr)), nil
		})
		if err != nil {
			return nil, err
		}
		chapters = anySliceToChapters(items)
	} else {
		var stop *source.StopCondition
		if src.Chapter.Pagination != nil {
			stop = src.Chapter.Pagination.Stop
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
			return paginate.Page{Items: anyChapters(toChapters(pr)), NextURLs: nextURLs, KeyOf: chapterKeyOf}, nil
		})
		if err != nil {
			return nil, err
		}
		chapters = anySliceToChapters(items)
	}

	if src.Chapter.Reverse {
		for i, j := 0, len(chapters)-1; i < j; i, j = i+1, j-1 {
			chapters[i], chapters[j] = chapters[j], chapters[i]
		}
	}
	for i := range chapters {
		chapters[i].Index = i
		e.FlowVars.Inherit(src.ID, book.ID, chapters[i].ID)
		chapters[i].Vars = e.FlowVars.Snapshot(src.ID, chapters[i].ID)
	}

	return chapters, nil
}

func (e *Engine) recordsToChapters(src *source.Source, bookID string, spec fieldSpec, rc *runContext, pr pageResult, module string) []source.Chapter {
	out := make([]source.Chapter, 0, len(pr.Items))
	for _, fields := range pr.Items {
		c, ok := buildChapter(bookID, pr.FetchedURL, fields)
		if !ok {
			continue
		}
		if put := e.evaluatePutVars(spec.fields, fields, rc, src.ID, module); len(put) > 0 {
			e.FlowVars.SetAll(src.ID, c.ID, put)
			c.Vars = e.FlowVars.Snapshot(src.ID, c.ID)
		}
		out = append(out, c)
	}
	return out
}

func anyChapters(chapters []source.Chapter) []any {
	out := make([]any, len(chapters))
	for i, c := range chapters {
		out[i] = c
	}
	return out
}

func anySliceToChapters(items []any) []source.Chapter {
	out := make([]source.Chapter, 0, len(items))
	for _, it := range items {
		if c, ok := it.(source.Chapter); ok {
			out = append(out, c)
		}
	}
	return out
}
