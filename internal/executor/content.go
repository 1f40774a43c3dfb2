package executor

import (
	"context"
	"strings"

	"github.com/nickheyer/bookrule/internal/debugtrace"
	"github.com/nickheyer/bookrule/internal/rerror"
	"github.com/nickheyer/bookrule/internal/source"
)

// GetContent implements `getContent`: a single-item extraction (no list,
// no pagination), module+parse purify, and the comic newline-split rule.
func GetContent(ctx context.Context, e *Engine, src *source.Source, book source.Book, chapter source.Chapter, opts Options) (source.Content, error) {
	const module = "content"
	handle := e.Debug.StartOperation(debugtrace.OperationInput{OpType: "getContent", SourceID: src.ID, Module: module, Input: chapter.URL})

	content, err := e.runGetContent(ctx, src, book, chapter, opts, handle)
	if err != nil {
		rerr := rerror.Wrap(err, rerror.Context{SourceID: src.ID, Module: module, URL: chapter.URL})
		debugtrace.EndError(handle, rerr)
		return source.Content{}, rerr
	}
	debugtrace.EndOk(handle)
	return content, nil
}

func (e *Engine) runGetContent(ctx context.Context, src *source.Source, book source.Book, chapter source.Chapter, opts Options, handle debugtrace.Handle) (source.Content, error) {
	const module = "content"

	fieldExprs := source.FieldSet{"content": src.Content.Parse.Content}
	if src.Content.Parse.Title != "" {
		fieldExprs["title"] = src.Content.Parse.Title
	}
	fields, err := e.parseFieldSet(fieldExprs, src.ID, module)
	if err != nil {
		return source.Content{}, err
	}

	purifyRules := append(append([]string{}, src.Content.Purify...), src.Content.Parse.Purify...)
	purify, err := e.parsePurify(purifyRules, src.ID, module)
	if err != nil {
		return source.Content{}, err
	}

	spec := fieldSpec{fields: fields, purify: purify, single: true}

	req := defaultChapterRequest()
	if src.Content.Request != nil {
		req = *src.Content.Request
	}

	deadline, cancel := contextWithTimeoutMs(ctx, e.timeoutOf(opts))
	defer cancel()

	rc := &runContext{src: src, book: &book, chapter: &chapter, url: chapter.URL}

	pr, err := e.loadPage(deadline, rc, req, spec, handle, src.ID, module)
	if err != nil {
		return source.Content{}, err
	}
	if len(pr.Items) == 0 {
		return source.Content{}, rerror.NewSourceError("Empty content extracted", rerror.Context{SourceID: src.ID, Module: module, URL: chapter.URL})
	}
	record := pr.Items[0]

	if put := e.evaluatePutVars(fields, record, rc, src.ID, module); len(put) > 0 {
		e.FlowVars.SetAll(src.ID, chapter.ID, put)
	}

	rawContent := strings.TrimSpace(record["content"])
	if rawContent == "" {
		return source.Content{}, rerror.NewSourceError("Empty content extracted", rerror.Context{SourceID: src.ID, Module: module, URL: chapter.URL})
	}

	content := source.Content{Title: record["title"]}
	if src.Type == source.TypeComic {
		lines := strings.Split(rawContent, "\n")
		images := make([]string, 0, len(lines))
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			images = append(images, resolveItemURL(pr.FetchedURL, line))
		}
		content.Body = images
	} else {
		content.Body = rawContent
	}

	return content, nil
}
