package urlresolve

import "testing"

func TestResolve(t *testing.T) {
	cases := []struct{ base, rel, want string }{
		{"https://x.com/list", "/b/1", "https://x.com/b/1"},
		{"https://x.com/a/b", "c", "https://x.com/a/c"},
		{"https://x.com", "https://y.com/z", "https://y.com/z"},
		{"https://x.com/a/", "", ""},
	}
	for _, c := range cases {
		if got := Resolve(c.base, c.rel); got != c.want {
			t.Errorf("Resolve(%q, %q) = %q, want %q", c.base, c.rel, got, c.want)
		}
	}
}
