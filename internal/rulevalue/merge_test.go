package rulevalue

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/nickheyer/bookrule/internal/ruleast"
)

func TestMergeStrings_Or(t *testing.T) {
	got := MergeStrings(ruleast.OpOr, [][]string{{}, {"x"}, {"y"}})
	want := []string{"x"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMergeStrings_And(t *testing.T) {
	got := MergeStrings(ruleast.OpAnd, [][]string{{"x"}, {"y", "z"}})
	want := []string{"x", "y", "z"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMergeStrings_Interleave(t *testing.T) {
	got := MergeStrings(ruleast.OpInterleave, [][]string{{"a", "b", "c"}, {"1", "2"}})
	want := []string{"a", "1", "b", "2", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestOrShortCircuit_StopsAtFirstNonEmpty(t *testing.T) {
	calledSecond := false
	children := []func() ([]string, error){
		func() ([]string, error) { return []string{"x"}, nil },
		func() ([]string, error) { calledSecond = true; return []string{"y"}, nil },
	}
	got, err := OrShortCircuit(children)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"x"}) {
		t.Errorf("got %v", got)
	}
	if calledSecond {
		t.Error("expected short-circuit: second child should not be evaluated")
	}
}

func TestOrShortCircuit_CatchesEarlierErrors(t *testing.T) {
	children := []func() ([]string, error){
		func() ([]string, error) { return nil, fmt.Errorf("boom") },
		func() ([]string, error) { return []string{"fallback"}, nil },
	}
	got, err := OrShortCircuit(children)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"fallback"}) {
		t.Errorf("got %v", got)
	}
}

func TestToString(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"abc", "abc"},
		{true, "true"},
		{false, "false"},
		{float64(7), "7"},
		{float64(7.5), "7.5"},
	}
	for _, c := range cases {
		if got := ToString(c.in); got != c.want {
			t.Errorf("ToString(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestToStringSlice(t *testing.T) {
	got := ToStringSlice([]any{"a", float64(1), true})
	want := []string{"a", "1", "true"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
