package inventory

import (
	"fmt"
	"iter"
)

// Point represents a grid coordinate (x, y) with origin at top-left.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Rotation is the orientation of a placed item in degrees. Only quarter
// turns between the native footprint and its transpose are supported.
type Rotation int

const (
	// Rotation0 keeps the definition footprint as-is.
	Rotation0 Rotation = 0
	// Rotation90 swaps the definition footprint's width and height.
	Rotation90 Rotation = 90
)

// Valid reports whether r is one of the supported rotations.
func (r Rotation) Valid() bool {
	return r == Rotation0 || r == Rotation90
}

// String returns a human-readable representation of the rotation.
func (r Rotation) String() string {
	switch r {
	case Rotation0:
		return "0deg"
	case Rotation90:
		return "90deg"
	default:
		return fmt.Sprintf("invalid(%d)", int(r))
	}
}

// Footprint applies rotation r to a native (w, h) footprint.
func Footprint(w, h int, r Rotation) (int, int) {
	if r == Rotation90 {
		return h, w
	}
	return w, h
}

// Bounds is an axis-aligned rectangle in grid-cell units. X and Y address the
// anchor (top-left) cell.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NewBounds builds a rectangle anchored at p.
func NewBounds(p Point, width, height int) Bounds {
	return Bounds{X: p.X, Y: p.Y, Width: width, Height: height}
}

// Anchor returns the top-left cell.
func (b Bounds) Anchor() Point {
	return Point{X: b.X, Y: b.Y}
}

// Area returns the number of cells covered.
func (b Bounds) Area() int {
	if b.Empty() {
		return 0
	}
	return b.Width * b.Height
}

// Empty reports whether the rectangle covers no cells.
func (b Bounds) Empty() bool {
	return b.Width < 1 || b.Height < 1
}

// Contains reports whether other lies fully inside b.
func (b Bounds) Contains(other Bounds) bool {
	if b.Empty() || other.Empty() {
		return false
	}
	return spanCovers(b.X, b.Width, other.X, other.Width) &&
		spanCovers(b.Y, b.Height, other.Y, other.Height)
}

// ContainsPoint reports whether cell p lies inside b.
func (b Bounds) ContainsPoint(p Point) bool {
	return spanHas(b.X, b.Width, p.X) && spanHas(b.Y, b.Height, p.Y)
}

// Overlaps is the strict AABB test; rectangles that only share an edge do
// not overlap.
func (b Bounds) Overlaps(other Bounds) bool {
	if b.Empty() || other.Empty() {
		return false
	}
	return (spanHas(b.X, b.Width, other.X) || spanHas(other.X, other.Width, b.X)) &&
		(spanHas(b.Y, b.Height, other.Y) || spanHas(other.Y, other.Height, b.Y))
}

// Interval helpers never compute start+length, which overflows for anchors
// near math.MaxInt. The difference of two ints always fits in a uint.

// spanHas reports whether v lies in [start, start+length).
func spanHas(start, length, v int) bool {
	return length > 0 && v >= start && uint(v-start) < uint(length)
}

// spanCovers reports whether [inner, inner+innerLen) lies in
// [start, start+length). Both lengths must be positive.
func spanCovers(start, length, inner, innerLen int) bool {
	return inner >= start && innerLen <= length && uint(inner-start) <= uint(length-innerLen)
}

// Cells yields every covered cell in row-major order (y outer, x inner).
// The sequence is finite and can be ranged over any number of times.
func (b Bounds) Cells() iter.Seq[Point] {
	return func(yield func(Point) bool) {
		for dy := 0; dy < b.Height; dy++ {
			for dx := 0; dx < b.Width; dx++ {
				if !yield(Point{X: b.X + dx, Y: b.Y + dy}) {
					return
				}
			}
		}
	}
}

func (b Bounds) String() string {
	return fmt.Sprintf("%dx%d@(%d,%d)", b.Width, b.Height, b.X, b.Y)
}
