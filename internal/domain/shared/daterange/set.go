package daterange

import "sort"

// Merge returns the minimal sorted set of disjoint windows covering the input.
// Windows that overlap or are separated by less than one free day are joined.
// Invalid windows (end before start) are dropped.
func Merge(windows []DateRange) []DateRange {
	valid := make([]DateRange, 0, len(windows))
	for _, w := range windows {
		if w.Validate() != nil {
			continue
		}
		valid = append(valid, DateRange{Start: Day(w.Start), End: Day(w.End)})
	}
	if len(valid) == 0 {
		return []DateRange{}
	}
	sort.Slice(valid, func(i, j int) bool {
		if valid[i].Start.Equal(valid[j].Start) {
			return valid[i].End.Before(valid[j].End)
		}
		return valid[i].Start.Before(valid[j].Start)
	})

	out := make([]DateRange, 0, len(valid))
	current := valid[0]
	for _, next := range valid[1:] {
		if !current.End.Before(next.Start.AddDate(0, 0, -1)) {
			if next.End.After(current.End) {
				current.End = next.End
			}
			continue
		}
		out = append(out, current)
		current = next
	}
	return append(out, current)
}

// Contains reports whether a single window fully covers query.
func Contains(windows []DateRange, query DateRange) bool {
	if query.Validate() != nil {
		return false
	}
	for _, w := range windows {
		if w.Contains(query) {
			return true
		}
	}
	return false
}

// Subtract removes the range from the windows. The range must be covered by
// the union of the windows, otherwise ErrNotContained is returned and the
// input is left untouched. Windows that do not overlap the range are kept as is.
func Subtract(windows []DateRange, removed DateRange) ([]DateRange, error) {
	if err := removed.Validate(); err != nil {
		return nil, err
	}
	removed = DateRange{Start: Day(removed.Start), End: Day(removed.End)}
	if !Contains(Merge(windows), removed) {
		return nil, ErrNotContained
	}

	out := make([]DateRange, 0, len(windows)+1)
	seen := make(map[DateRange]struct{}, len(windows)+1)
	keep := func(w DateRange) {
		if _, dup := seen[w]; dup {
			return
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	for _, w := range windows {
		if w.Validate() != nil {
			continue
		}
		w = DateRange{Start: Day(w.Start), End: Day(w.End)}
		if !w.Overlaps(removed) {
			keep(w)
			continue
		}
		if w.Start.Before(removed.Start) {
			keep(DateRange{Start: w.Start, End: removed.Start.AddDate(0, 0, -1)})
		}
		if w.End.After(removed.End) {
			keep(DateRange{Start: removed.End.AddDate(0, 0, 1), End: w.End})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
