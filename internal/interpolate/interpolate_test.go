package interpolate

import (
	"fmt"
	"testing"
)

func TestReplace_NoBlocksIsIdentity(t *testing.T) {
	cases := []string{"", "plain text", "https://x.com/?q=1", "no braces here at all"}
	for _, tmpl := range cases {
		got, err := Replace(tmpl, Context{}, nil, nil)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tmpl, err)
		}
		if got != tmpl {
			t.Errorf("%q: expected identity, got %q", tmpl, got)
		}
	}
}

func TestReplace_Keyword(t *testing.T) {
	got, err := Replace("x{{keyword}}y", Context{Keyword: "Z"}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "xZy" {
		t.Errorf("expected xZy, got %q", got)
	}
}

func TestReplace_UnknownNameIsEmpty(t *testing.T) {
	got, err := Replace("x{{nope}}y", Context{}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "xy" {
		t.Errorf("expected xy, got %q", got)
	}
}

func TestReplace_EscapedBraces(t *testing.T) {
	got, err := Replace(`\{{keyword}}`, Context{Keyword: "Z"}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "{{keyword}}" {
		t.Errorf("expected literal braces, got %q", got)
	}
}

func TestValidateTemplate_Unclosed(t *testing.T) {
	err := ValidateTemplate("x{{keyword")
	if err == nil {
		t.Fatal("expected unclosed-block error")
	}
	if err.Error() != "Unclosed interpolation block" {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestReplace_GetFlowVar(t *testing.T) {
	got, err := Replace("{{@get:mykey}}", Context{FlowVars: map[string]any{"mykey": "val"}}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "val" {
		t.Errorf("expected val, got %q", got)
	}
}

func TestReplace_SourceVarFallthrough(t *testing.T) {
	got, err := Replace("{{custom}}", Context{SourceVars: map[string]any{"custom": "abc"}}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "abc" {
		t.Errorf("expected abc, got %q", got)
	}
}

type fakeEvaluator struct {
	result any
	err    error
}

func (f fakeEvaluator) Eval(code string, ctx map[string]any) (any, error) { return f.result, f.err }

func TestReplace_JsEvalDisallowed(t *testing.T) {
	got, err := Replace("{{@js:1+1}}", Context{AllowJSEval: false}, fakeEvaluator{result: "2"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty string when js eval disallowed, got %q", got)
	}
}

func TestReplace_JsEvalSwallowsErrorToEmptyString(t *testing.T) {
	var captured error
	got, err := Replace("{{@js:boom()}}", Context{AllowJSEval: true}, fakeEvaluator{err: fmt.Errorf("boom")}, func(code string, e error) {
		captured = e
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty string on js eval error, got %q", got)
	}
	if captured == nil {
		t.Error("expected onErr to be invoked")
	}
}

func TestReplace_MultipleBlocksRightToLeft(t *testing.T) {
	got, err := Replace("{{keyword}}-{{page}}-{{pageIndex}}", Context{Keyword: "k", Page: 3, PageIndex: 2}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "k-3-2" {
		t.Errorf("expected k-3-2, got %q", got)
	}
}
