package paginate

import (
	"context"
	"fmt"
	"testing"

	"github.com/nickheyer/bookrule/internal/source"
)

type item struct{ id string }

func keyOf(v any) string { return v.(item).id }

func TestPaginateNextURL_StopsOnEmptyNextURL(t *testing.T) {
	calls := 0
	load := func(ctx context.Context, url string) (Page, error) {
		calls++
		return Page{Items: []any{item{id: url + "-1"}}, KeyOf: keyOf}, nil
	}
	items, err := PaginateNextURL(context.Background(), "https://x/1", nil, load)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call (no next url), got %d", calls)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 item, got %d", len(items))
	}
}

func TestPaginateNextURL_StopsOnCycle(t *testing.T) {
	load := func(ctx context.Context, url string) (Page, error) {
		return Page{Items: []any{item{id: url}}, NextURLs: []string{"https://x/1"}, KeyOf: keyOf}, nil
	}
	items, err := PaginateNextURL(context.Background(), "https://x/1", nil, load)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 item (cycle detected immediately), got %d", len(items))
	}
}

func TestPaginateNextURL_StopsOnMaxPages(t *testing.T) {
	page := 0
	load := func(ctx context.Context, url string) (Page, error) {
		page++
		return Page{Items: []any{item{id: fmt.Sprintf("p%d", page)}}, NextURLs: []string{fmt.Sprintf("https://x/%d", page+1)}, KeyOf: keyOf}, nil
	}
	items, err := PaginateNextURL(context.Background(), "https://x/0", &source.StopCondition{MaxPages: 3}, load)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("expected 3 items (maxPages=3), got %d", len(items))
	}
}

func TestPaginateNextURL_DedupAcrossPages(t *testing.T) {
	page := 0
	load := func(ctx context.Context, url string) (Page, error) {
		page++
		if page == 1 {
			return Page{Items: []any{item{id: "a"}, item{id: "b"}}, NextURLs: []string{"https://x/2"}, KeyOf: keyOf}, nil
		}
		return Page{Items: []any{item{id: "b"}, item{id: "c"}}, KeyOf: keyOf}, nil
	}
	items, err := PaginateNextURL(context.Background(), "https://x/1", nil, load)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var ids []string
	for _, it := range items {
		ids = append(ids, it.(item).id)
	}
	want := []string{"a", "b", "c"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", ids, want)
	}
}

func TestPaginateNextURL_EmptyResultStop(t *testing.T) {
	calls := 0
	load := func(ctx context.Context, url string) (Page, error) {
		calls++
		return Page{Items: nil, NextURLs: []string{"https://x/next"}, KeyOf: keyOf}, nil
	}
	_, err := PaginateNextURL(context.Background(), "https://x/1", &source.StopCondition{EmptyResult: true}, load)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call (empty result stop), got %d", calls)
	}
}

func TestPaginatePageParam_Sequential(t *testing.T) {
	cfg := &source.Pagination{
		PageParam: &source.PageParamConfig{Start: 1, Step: 1},
		Strategy:  source.StrategySequential,
		Stop:      &source.StopCondition{MaxPages: 3},
	}
	var loadedPages []int
	load := func(ctx context.Context, n int) ([]any, error) {
		loadedPages = append(loadedPages, n)
		return []any{item{id: fmt.Sprintf("p%d", n)}}, nil
	}
	items, err := PaginatePageParam(context.Background(), cfg, keyOf, load)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("expected 3 items, got %d", len(items))
	}
	if fmt.Sprint(loadedPages) != "[1 2 3]" {
		t.Errorf("expected sequential pages [1 2 3], got %v", loadedPages)
	}
}

func TestPaginatePageParam_SequentialStopsOnEmpty(t *testing.T) {
	cfg := &source.Pagination{
		PageParam: &source.PageParamConfig{Start: 1, Step: 1},
		Strategy:  source.StrategySequential,
		Stop:      &source.StopCondition{MaxPages: 5, EmptyResult: true},
	}
	calls := 0
	load := func(ctx context.Context, n int) ([]any, error) {
		calls++
		if n >= 2 {
			return nil, nil
		}
		return []any{item{id: fmt.Sprintf("p%d", n)}}, nil
	}
	items, err := PaginatePageParam(context.Background(), cfg, keyOf, load)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 item, got %d", len(items))
	}
	if calls != 2 {
		t.Errorf("expected loader called twice (stop on first empty page), got %d", calls)
	}
}

func TestPaginatePageParam_ParallelPreservesPageOrder(t *testing.T) {
	cfg := &source.Pagination{
		PageParam:     &source.PageParamConfig{Start: 1, Step: 1},
		Strategy:      source.StrategyParallel,
		MaxConcurrent: 2,
		Stop:          &source.StopCondition{MaxPages: 4},
	}
	load := func(ctx context.Context, n int) ([]any, error) {
		return []any{item{id: fmt.Sprintf("p%d", n)}}, nil
	}
	items, err := PaginatePageParam(context.Background(), cfg, keyOf, load)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var ids []string
	for _, it := range items {
		ids = append(ids, it.(item).id)
	}
	want := []string{"p1", "p2", "p3", "p4"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v (order must be preserved despite parallel loads)", ids, want)
	}
}
