package inventory

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundsContains(t *testing.T) {
	outer := Bounds{Width: 4, Height: 3}
	cases := []struct {
		name  string
		inner Bounds
		want  bool
	}{
		{"self", outer, true},
		{"corner cell", Bounds{X: 3, Y: 2, Width: 1, Height: 1}, true},
		{"past right edge", Bounds{X: 3, Y: 0, Width: 2, Height: 1}, false},
		{"past bottom edge", Bounds{X: 0, Y: 2, Width: 1, Height: 2}, false},
		{"negative anchor", Bounds{X: -1, Y: 0, Width: 1, Height: 1}, false},
		{"empty", Bounds{X: 1, Y: 1}, false},
		{"anchor at max int", Bounds{X: math.MaxInt, Y: 0, Width: 1, Height: 1}, false},
		{"row at max int", Bounds{X: 0, Y: math.MaxInt, Width: 2, Height: 1}, false},
		{"min int anchor", Bounds{X: math.MinInt, Y: 0, Width: 1, Height: 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, outer.Contains(tc.inner))
		})
	}
}

func TestBoundsOverlapsIsStrict(t *testing.T) {
	a := Bounds{X: 0, Y: 0, Width: 2, Height: 2}
	assert.True(t, a.Overlaps(Bounds{X: 1, Y: 1, Width: 2, Height: 2}))
	assert.False(t, a.Overlaps(Bounds{X: 2, Y: 0, Width: 1, Height: 2}), "shared vertical edge")
	assert.False(t, a.Overlaps(Bounds{X: 0, Y: 2, Width: 2, Height: 1}), "shared horizontal edge")
	assert.False(t, a.Overlaps(Bounds{X: 2, Y: 2, Width: 1, Height: 1}), "shared corner")
}

func TestBoundsNearIntLimits(t *testing.T) {
	edge := Bounds{X: math.MaxInt - 1, Y: math.MaxInt - 1, Width: 2, Height: 2}
	origin := Bounds{Width: 2, Height: 2}

	assert.False(t, origin.Overlaps(edge))
	assert.False(t, edge.Overlaps(origin))
	assert.True(t, edge.Overlaps(Bounds{X: math.MaxInt, Y: math.MaxInt, Width: 1, Height: 1}))
	assert.False(t, origin.Overlaps(Bounds{X: math.MinInt, Y: 0, Width: math.MaxInt, Height: 1}))

	assert.True(t, edge.ContainsPoint(Point{math.MaxInt, math.MaxInt}))
	assert.False(t, origin.ContainsPoint(Point{math.MinInt, 0}))
	assert.Len(t, slices.Collect(edge.Cells()), 4)
}

func TestBoundsCellsRowMajorAndRestartable(t *testing.T) {
	b := Bounds{X: 1, Y: 2, Width: 2, Height: 2}
	want := []Point{{1, 2}, {2, 2}, {1, 3}, {2, 3}}
	assert.Equal(t, want, slices.Collect(b.Cells()))
	assert.Equal(t, want, slices.Collect(b.Cells()))
	assert.Equal(t, 4, b.Area())

	for p := range b.Cells() {
		assert.True(t, b.ContainsPoint(p))
		break
	}
}

func TestFootprintRotation(t *testing.T) {
	w, h := Footprint(3, 1, Rotation0)
	assert.Equal(t, [2]int{3, 1}, [2]int{w, h})
	w, h = Footprint(3, 1, Rotation90)
	assert.Equal(t, [2]int{1, 3}, [2]int{w, h})

	assert.True(t, Rotation90.Valid())
	assert.False(t, Rotation(45).Valid())
	assert.Equal(t, "90deg", Rotation90.String())
}
