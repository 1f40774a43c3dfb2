package nativeeval

import (
	"reflect"
	"testing"

	"github.com/nickheyer/bookrule/internal/ruleast"
)

func mustJSON(t *testing.T, body string) any {
	t.Helper()
	v, err := ParseJSONBody(body)
	if err != nil {
		t.Fatalf("ParseJSONBody: %v", err)
	}
	return v
}

func TestResolveList_JSONPathField(t *testing.T) {
	root := mustJSON(t, `{"data":{"list":[{"id":1},{"id":2}]}}`)
	node := &ruleast.Selector{Type: ruleast.SelectorJSON, Expr: "$.data.list"}
	items, err := ResolveList(node, Env{Result: root})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
}

func TestResolveValue_JSONPathScalar(t *testing.T) {
	root := mustJSON(t, `{"title":"Foo"}`)
	node := &ruleast.Selector{Type: ruleast.SelectorJSON, Expr: "$.title"}
	v, err := ResolveValue(node, Env{Result: root})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "Foo" {
		t.Errorf("expected Foo, got %q", v)
	}
}

func TestResolveValue_RegexCaptureGroup(t *testing.T) {
	node := &ruleast.Selector{Type: ruleast.SelectorRegex, Expr: `ch-(\d+)`}
	v, err := ResolveValue(node, Env{Result: "see ch-12 now"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "12" {
		t.Errorf("expected 12, got %q", v)
	}
}

func TestResolveValue_RegexReplace(t *testing.T) {
	node := &ruleast.Selector{
		Type: ruleast.SelectorRegex, Expr: `\d+`,
		RegexReplace: &ruleast.RegexReplace{Pattern: `\d+`, Replacement: "#"},
	}
	v, err := ResolveValue(node, Env{Result: "a1b2c3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// the selector yields the matches [1 2 3], joined with "\n" before the replace
	if v != "#\n#\n#" {
		t.Errorf("expected %q, got %q", "#\n#\n#", v)
	}
}

type fakeJSEval struct{ result any }

func (f fakeJSEval) Eval(code string, ctx map[string]any) (any, error) { return f.result, nil }

func TestResolveList_JsAtom(t *testing.T) {
	node := &ruleast.Js{Code: "JSON.parse(result).data.list"}
	env := Env{JSEval: fakeJSEval{result: []any{map[string]any{"id": 1.0}}}}
	items, err := ResolveList(node, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 item, got %d", len(items))
	}
}

func TestResolveList_CompositeOr(t *testing.T) {
	root := mustJSON(t, `{"a":[],"b":[1,2]}`)
	node := &ruleast.Composite{Operator: ruleast.OpOr, Children: []ruleast.Node{
		&ruleast.Selector{Type: ruleast.SelectorJSON, Expr: "$.a"},
		&ruleast.Selector{Type: ruleast.SelectorJSON, Expr: "$.b"},
	}}
	items, err := ResolveList(node, Env{Result: root})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []any{1.0, 2.0}
	if !reflect.DeepEqual(items, want) {
		t.Errorf("got %v, want %v", items, want)
	}
}

func TestResolveValue_SliceOnRegexMatches(t *testing.T) {
	minusOne := -1
	node := &ruleast.Selector{Type: ruleast.SelectorRegex, Expr: `\d+`, Slice: &ruleast.SliceRange{Start: &minusOne, HasStart: true}}
	v, err := ResolveValue(node, Env{Result: "1 2 3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "3" {
		t.Errorf("expected last match 3, got %q", v)
	}
}
