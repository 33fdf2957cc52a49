package ranges

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBounds(t *testing.T) {
	tests := []struct {
		name  string
		r     Range
		n     int
		start int
		end   int
	}{
		{"empty means whole queue", Range{}, 5, 0, 5},
		{"nil means whole queue", nil, 3, 0, 3},
		{"single index to end", Range{2}, 5, 2, 5},
		{"pair is half-open", Range{1, 3}, 5, 1, 3},
		{"negative start wraps", Range{-2}, 5, 3, 5},
		{"negative pair wraps", Range{-3, -1}, 5, 2, 4},
		{"start clamped to length", Range{10}, 5, 5, 5},
		{"end clamped to length", Range{1, 99}, 5, 1, 5},
		{"very negative clamps to zero", Range{-99, 2}, 5, 0, 2},
		{"inverted collapses to empty", Range{4, 1}, 5, 4, 4},
		{"empty queue", Range{0, 3}, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := tt.r.Bounds(tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestBoundsTooManyElements(t *testing.T) {
	_, _, err := Range{1, 2, 3}.Bounds(5)
	assert.ErrorIs(t, err, ErrTooManyElements)
}

func TestBoundsMatchesSliceSemantics(t *testing.T) {
	// The normalization must agree with Python-style slicing: for every
	// start/end combination over a short queue, the selected elements are
	// exactly q[start:end] after negative wrap and clamping.
	q := []string{"a", "b", "c", "d", "e"}
	for s := -7; s <= 7; s++ {
		for e := -7; e <= 7; e++ {
			start, end, err := Range{s, e}.Bounds(len(q))
			require.NoError(t, err)
			require.LessOrEqual(t, start, end)
			require.LessOrEqual(t, end, len(q))
			_ = q[start:end] // must not panic
		}
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 3, Clamp(3, 5))
	assert.Equal(t, 4, Clamp(-1, 5))
	assert.Equal(t, 0, Clamp(-9, 5))
	assert.Equal(t, 5, Clamp(9, 5))
	assert.Equal(t, 0, Clamp(0, 0))
}

func TestIndex(t *testing.T) {
	i, err := Index(-1, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, i)

	_, err = Index(4, 4)
	assert.Error(t, err)
	_, err = Index(-5, 4)
	assert.Error(t, err)
}

func TestOverlapping(t *testing.T) {
	// Interiors intersecting is overlap; adjacency is not.
	assert.True(t, Overlapping(0, 2, 1, 3))
	assert.True(t, Overlapping(1, 3, 0, 2))
	assert.True(t, Overlapping(0, 4, 1, 2))
	assert.False(t, Overlapping(0, 2, 2, 4))
	assert.False(t, Overlapping(2, 4, 0, 2))
	// Empty intervals overlap nothing, even inside another range.
	assert.False(t, Overlapping(1, 1, 0, 4))
	assert.False(t, Overlapping(0, 4, 2, 2))
}
