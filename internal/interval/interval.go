// Package interval implements the half-open interval algebra the
// availability engine is built on: merging busy runs, computing the free
// gaps inside a window, and intersecting many users' free lists.
package interval

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the interval has positive length.
func (iv Interval) Valid() bool {
	return iv.Start.Before(iv.End)
}

// Duration returns End - Start.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether two half-open intervals share any instant.
func (iv Interval) Overlaps(o Interval) bool {
	return iv.Start.Before(o.End) && iv.End.After(o.Start)
}

// Contains reports whether o lies entirely inside iv.
func (iv Interval) Contains(o Interval) bool {
	return !o.Start.Before(iv.Start) && !o.End.After(iv.End)
}

// MergeOverlapping sorts intervals by start and merges any overlapping or
// touching ones into maximal runs. Zero-length inputs are dropped. The input
// slice is not modified.
func MergeOverlapping(ivs []Interval) []Interval {
	if len(ivs) == 0 {
		return nil
	}
	sorted := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		if iv.Valid() {
			sorted = append(sorted, iv)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		// Touching runs (last.End == iv.Start) merge too.
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// FreeWithin returns the gaps left inside window after removing busy. The
// result is sorted, pairwise non-overlapping, and every element has positive
// length. With no busy time the whole window is one free interval.
func FreeWithin(window Interval, busy []Interval) []Interval {
	if !window.Valid() {
		return nil
	}
	var free []Interval
	cursor := window.Start
	for _, b := range MergeOverlapping(busy) {
		if !b.End.After(window.Start) || !b.Start.Before(window.End) {
			continue
		}
		if b.Start.After(cursor) {
			free = append(free, Interval{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if cursor.Before(window.End) {
		free = append(free, Interval{Start: cursor, End: window.End})
	}
	return free
}

// IntersectAll computes the common sub-intervals of N sorted, non-overlapping
// interval lists by sweeping one cursor per list: the candidate is
// [max(current starts), min(current ends)), emitted when it has positive
// length, after which every cursor sitting on the minimal end advances. The
// result is independent of the order the lists are given in.
//
// With zero lists there is nothing to intersect and the result is empty.
func IntersectAll(lists [][]Interval) []Interval {
	if len(lists) == 0 {
		return nil
	}
	for _, l := range lists {
		if len(l) == 0 {
			return nil
		}
	}

	cursors := make([]int, len(lists))
	var out []Interval
	for {
		var lo, hi time.Time
		for i, l := range lists {
			cur := l[cursors[i]]
			if i == 0 || cur.Start.After(lo) {
				lo = cur.Start
			}
			if i == 0 || cur.End.Before(hi) {
				hi = cur.End
			}
		}
		if lo.Before(hi) {
			out = append(out, Interval{Start: lo, End: hi})
		}
		// Advance every cursor whose interval ends at the minimal end.
		exhausted := false
		for i, l := range lists {
			if l[cursors[i]].End.Equal(hi) {
				cursors[i]++
				if cursors[i] >= len(l) {
					exhausted = true
				}
			}
		}
		if exhausted {
			return out
		}
	}
}

// Clip restricts list to the parts covered by allowed. Both inputs must be
// sorted and non-overlapping.
func Clip(list, allowed []Interval) []Interval {
	return IntersectAll([][]Interval{list, allowed})
}

// Slots cuts free intervals into candidate meeting slots of the given
// duration. With step <= 0 each qualifying interval yields exactly one slot
// at its start; with a positive step, slot starts advance by step inside each
// interval (a sliding window). max caps the total number of slots when
// positive.
func Slots(free []Interval, duration, step time.Duration, max int) []Interval {
	if duration <= 0 {
		return nil
	}
	var out []Interval
	for _, iv := range free {
		if iv.Duration() < duration {
			continue
		}
		if step <= 0 {
			out = append(out, Interval{Start: iv.Start, End: iv.Start.Add(duration)})
			if max > 0 && len(out) >= max {
				return out
			}
			continue
		}
		for s := iv.Start; !s.Add(duration).After(iv.End); s = s.Add(step) {
			out = append(out, Interval{Start: s, End: s.Add(duration)})
			if max > 0 && len(out) >= max {
				return out
			}
		}
	}
	return out
}
