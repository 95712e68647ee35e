package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return base.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func iv(startH, startM, endH, endM int) Interval {
	return Interval{Start: at(startH, startM), End: at(endH, endM)}
}

func TestMergeOverlapping(t *testing.T) {
	tests := []struct {
		name string
		in   []Interval
		want []Interval
	}{
		{"empty", nil, nil},
		{"disjoint stay apart", []Interval{iv(9, 0, 10, 0), iv(11, 0, 12, 0)}, []Interval{iv(9, 0, 10, 0), iv(11, 0, 12, 0)}},
		{"overlapping merge", []Interval{iv(9, 0, 10, 30), iv(10, 0, 11, 0)}, []Interval{iv(9, 0, 11, 0)}},
		{"touching merge", []Interval{iv(9, 0, 10, 0), iv(10, 0, 11, 0)}, []Interval{iv(9, 0, 11, 0)}},
		{"unsorted input", []Interval{iv(11, 0, 12, 0), iv(9, 0, 10, 0)}, []Interval{iv(9, 0, 10, 0), iv(11, 0, 12, 0)}},
		{"contained swallowed", []Interval{iv(9, 0, 12, 0), iv(10, 0, 11, 0)}, []Interval{iv(9, 0, 12, 0)}},
		{"zero length dropped", []Interval{iv(9, 0, 9, 0)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeOverlapping(tt.in))
		})
	}
}

func TestFreeWithin(t *testing.T) {
	window := iv(9, 0, 17, 0)

	t.Run("no busy means whole window", func(t *testing.T) {
		free := FreeWithin(window, nil)
		require.Len(t, free, 1)
		assert.Equal(t, window, free[0])
	})

	t.Run("gaps between busy runs", func(t *testing.T) {
		busy := []Interval{iv(10, 0, 11, 0), iv(13, 0, 14, 0)}
		free := FreeWithin(window, busy)
		assert.Equal(t, []Interval{iv(9, 0, 10, 0), iv(11, 0, 13, 0), iv(14, 0, 17, 0)}, free)
	})

	t.Run("busy covering window leaves nothing", func(t *testing.T) {
		assert.Empty(t, FreeWithin(window, []Interval{iv(8, 0, 18, 0)}))
	})

	t.Run("busy hanging over window edges is clipped", func(t *testing.T) {
		busy := []Interval{iv(8, 0, 10, 0), iv(16, 0, 18, 0)}
		assert.Equal(t, []Interval{iv(10, 0, 16, 0)}, FreeWithin(window, busy))
	})

	t.Run("output is sorted and non-overlapping with positive length", func(t *testing.T) {
		busy := []Interval{iv(12, 0, 12, 30), iv(9, 30, 10, 0), iv(9, 45, 11, 0)}
		free := FreeWithin(window, busy)
		for i, f := range free {
			assert.True(t, f.Valid())
			if i > 0 {
				assert.False(t, f.Start.Before(free[i-1].End))
			}
		}
	})
}

func TestIntersectAll(t *testing.T) {
	a := []Interval{iv(9, 0, 10, 0), iv(11, 0, 14, 0)}
	b := []Interval{iv(9, 30, 12, 0), iv(13, 0, 15, 0)}
	c := []Interval{iv(9, 0, 16, 0)}

	want := []Interval{iv(9, 30, 10, 0), iv(11, 0, 12, 0), iv(13, 0, 14, 0)}

	t.Run("three way", func(t *testing.T) {
		assert.Equal(t, want, IntersectAll([][]Interval{a, b, c}))
	})

	t.Run("order independent", func(t *testing.T) {
		assert.Equal(t, want, IntersectAll([][]Interval{c, b, a}))
		assert.Equal(t, want, IntersectAll([][]Interval{b, a, c}))
	})

	t.Run("single list passes through", func(t *testing.T) {
		assert.Equal(t, a, IntersectAll([][]Interval{a}))
	})

	t.Run("empty participant empties the result", func(t *testing.T) {
		assert.Nil(t, IntersectAll([][]Interval{a, nil}))
	})

	t.Run("no lists", func(t *testing.T) {
		assert.Nil(t, IntersectAll(nil))
	})

	t.Run("touching intervals do not intersect", func(t *testing.T) {
		x := []Interval{iv(9, 0, 10, 0)}
		y := []Interval{iv(10, 0, 11, 0)}
		assert.Empty(t, IntersectAll([][]Interval{x, y}))
	})
}

func TestSlots(t *testing.T) {
	free := []Interval{iv(9, 0, 9, 20), iv(10, 0, 11, 0), iv(12, 0, 13, 30)}

	t.Run("default policy emits one slot per qualifying interval", func(t *testing.T) {
		got := Slots(free, 30*time.Minute, 0, 0)
		assert.Equal(t, []Interval{iv(10, 0, 10, 30), iv(12, 0, 12, 30)}, got)
	})

	t.Run("every slot has exact duration inside its interval", func(t *testing.T) {
		for _, s := range Slots(free, 45*time.Minute, 0, 0) {
			assert.Equal(t, 45*time.Minute, s.Duration())
			contained := false
			for _, f := range free {
				if f.Contains(s) {
					contained = true
				}
			}
			assert.True(t, contained)
		}
	})

	t.Run("sliding window steps by granularity", func(t *testing.T) {
		got := Slots([]Interval{iv(10, 0, 11, 0)}, 30*time.Minute, 15*time.Minute, 0)
		assert.Equal(t, []Interval{iv(10, 0, 10, 30), iv(10, 15, 10, 45), iv(10, 30, 11, 0)}, got)
	})

	t.Run("max caps the count", func(t *testing.T) {
		got := Slots(free, 30*time.Minute, 15*time.Minute, 2)
		assert.Len(t, got, 2)
	})

	t.Run("non-positive duration yields nothing", func(t *testing.T) {
		assert.Nil(t, Slots(free, 0, 0, 0))
	})
}
