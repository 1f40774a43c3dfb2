package ruleparser

// depthScanner walks a rule-DSL expression tracking bracket depth across
// `[]`, `()`, `{}` and string state across `'`, `"`, `` ` `` so that
// top-level token search (composite operators, @put: blocks, ## suffix)
// never matches inside a nested bracket or string literal.
type depthScanner struct {
	s       string
	brSq    int // [
	brPa    int // (
	brCu    int // {
	quote   byte
	escaped bool
}

func (d *depthScanner) atTopLevel() bool {
	return d.brSq == 0 && d.brPa == 0 && d.brCu == 0 && d.quote == 0
}

func (d *depthScanner) step(c byte) {
	if d.escaped {
		d.escaped = false
		return
	}
	if c == '\\' {
		d.escaped = true
		return
	}
	if d.quote != 0 {
		if c == d.quote {
			d.quote = 0
		}
		return
	}
	switch c {
	case '\'', '"', '`':
		d.quote = c
	case '[':
		d.brSq++
	case ']':
		if d.brSq > 0 {
			d.brSq--
		}
	case '(':
		d.brPa++
	case ')':
		if d.brPa > 0 {
			d.brPa--
		}
	case '{':
		d.brCu++
	case '}':
		if d.brCu > 0 {
			d.brCu--
		}
	}
}

// findTopLevelLast returns the start index of the last top-level
// occurrence of token in s, or -1.
func findTopLevelLast(s, token string) int {
	last := -1
	d := &depthScanner{s: s}
	for i := 0; i < len(s); i++ {
		if d.atTopLevel() && i+len(token) <= len(s) && s[i:i+len(token)] == token {
			last = i
		}
		d.step(s[i])
	}
	return last
}

// splitTopLevelAny splits s on any occurrence of the given separators at
// bracket-depth 0 / outside quotes. It returns the pieces and the
// separators actually used, in order.
func splitTopLevelAny(s string, seps []string) (parts []string, used []string) {
	d := &depthScanner{s: s}
	start := 0
	i := 0
	for i < len(s) {
		if d.atTopLevel() {
			matched := ""
			for _, sep := range seps {
				if i+len(sep) <= len(s) && s[i:i+len(sep)] == sep {
					if len(sep) > len(matched) {
						matched = sep
					}
				}
			}
			if matched != "" {
				parts = append(parts, s[start:i])
				used = append(used, matched)
				i += len(matched)
				start = i
				d = &depthScanner{s: s}
				continue
			}
		}
		d.step(s[i])
		i++
	}
	parts = append(parts, s[start:])
	return parts, used
}
