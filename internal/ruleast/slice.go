package ruleast

// ApplySlice applies a Python-like slice to items: negative indices count
// from the end, step > 0 defaults start=0/end=len, step < 0 defaults
// start=len-1/end=-1 (sentinel meaning "through index 0 inclusive").
func ApplySlice[T any](items []T, sr *SliceRange) []T {
	n := len(items)
	if sr == nil {
		return items
	}
	step := 1
	if sr.HasStep && sr.Step != nil {
		step = *sr.Step
	}
	if step == 0 {
		return nil
	}

	norm := func(i int) int {
		if i < 0 {
			i += n
		}
		return i
	}

	var start, end int
	if step > 0 {
		start, end = 0, n
		if sr.HasStart && sr.Start != nil {
			start = clamp(norm(*sr.Start), 0, n)
		}
		if sr.HasEnd && sr.End != nil {
			end = clamp(norm(*sr.End), 0, n)
		}
	} else {
		start, end = n-1, -1
		if sr.HasStart && sr.Start != nil {
			start = clamp(norm(*sr.Start), -1, n-1)
		}
		if sr.HasEnd && sr.End != nil {
			end = clamp(norm(*sr.End), -1, n-1)
		}
	}

	// Single-index convention: a slice with only Start set (no End, no
	// Step) selects one element, e.g. `[-1]` -> last element.
	if sr.HasStart && !sr.HasEnd && !sr.HasStep {
		idx := norm(*sr.Start)
		if idx < 0 || idx >= n {
			return nil
		}
		return []T{items[idx]}
	}

	out := make([]T, 0)
	if step > 0 {
		for i := start; i < end; i += step {
			out = append(out, items[i])
		}
	} else {
		for i := start; i > end; i += step {
			if i < 0 || i >= n {
				continue
			}
			out = append(out, items[i])
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
