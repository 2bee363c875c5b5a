// Package geom provides the axis-aligned box math used by the spatial
// indexes. Vectors are mgl32.Vec2.
package geom

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Box is an axis-aligned bounding box. Edges are inclusive: a box with
// Min == Max is a valid point box.
type Box struct {
	Min mgl32.Vec2
	Max mgl32.Vec2
}

func NewBox(minX, minY, maxX, maxY float32) Box {
	return Box{Min: mgl32.Vec2{minX, minY}, Max: mgl32.Vec2{maxX, maxY}}
}

// BoxAround returns the box centered at c extending half in each direction.
func BoxAround(c mgl32.Vec2, half mgl32.Vec2) Box {
	return Box{Min: c.Sub(half), Max: c.Add(half)}
}

// PointBox is a zero-extent box at p.
func PointBox(p mgl32.Vec2) Box {
	return Box{Min: p, Max: p}
}

func (b Box) Width() float32  { return b.Max.X() - b.Min.X() }
func (b Box) Height() float32 { return b.Max.Y() - b.Min.Y() }

func (b Box) Center() mgl32.Vec2 { return b.Min.Add(b.Max).Mul(0.5) }

// Perimeter is the insertion cost metric for the dynamic tree.
func (b Box) Perimeter() float32 {
	return 2 * (b.Width() + b.Height())
}

// Intersects reports whether the boxes overlap or touch.
func (b Box) Intersects(o Box) bool {
	return b.Min.X() <= o.Max.X() && o.Min.X() <= b.Max.X() &&
		b.Min.Y() <= o.Max.Y() && o.Min.Y() <= b.Max.Y()
}

// Contains reports whether o lies entirely inside b.
func (b Box) Contains(o Box) bool {
	return b.Min.X() <= o.Min.X() && b.Min.Y() <= o.Min.Y() &&
		o.Max.X() <= b.Max.X() && o.Max.Y() <= b.Max.Y()
}

func (b Box) ContainsPoint(p mgl32.Vec2) bool {
	return b.Contains(PointBox(p))
}

func (b Box) Union(o Box) Box {
	return Box{
		Min: mgl32.Vec2{min(b.Min.X(), o.Min.X()), min(b.Min.Y(), o.Min.Y())},
		Max: mgl32.Vec2{max(b.Max.X(), o.Max.X()), max(b.Max.Y(), o.Max.Y())},
	}
}

func (b Box) Translate(d mgl32.Vec2) Box {
	return Box{Min: b.Min.Add(d), Max: b.Max.Add(d)}
}

// Enlarge grows the box by m on every side.
func (b Box) Enlarge(m float32) Box {
	d := mgl32.Vec2{m, m}
	return Box{Min: b.Min.Sub(d), Max: b.Max.Add(d)}
}

// Subtract appends to dst the parts of b lying outside o, as at most four
// boxes. Pieces share their edge with o.
func (b Box) Subtract(dst []Box, o Box) []Box {
	if !b.Intersects(o) {
		return append(dst, b)
	}
	if b.Min.X() < o.Min.X() {
		dst = append(dst, NewBox(b.Min.X(), b.Min.Y(), o.Min.X(), b.Max.Y()))
	}
	if b.Max.X() > o.Max.X() {
		dst = append(dst, NewBox(o.Max.X(), b.Min.Y(), b.Max.X(), b.Max.Y()))
	}
	x0, x1 := max(b.Min.X(), o.Min.X()), min(b.Max.X(), o.Max.X())
	if b.Min.Y() < o.Min.Y() {
		dst = append(dst, NewBox(x0, b.Min.Y(), x1, o.Min.Y()))
	}
	if b.Max.Y() > o.Max.Y() {
		dst = append(dst, NewBox(x0, o.Max.Y(), x1, b.Max.Y()))
	}
	return dst
}

// Valid reports Min <= Max on both axes.
func (b Box) Valid() bool {
	return b.Min.X() <= b.Max.X() && b.Min.Y() <= b.Max.Y()
}

func (b Box) String() string {
	return fmt.Sprintf("(%g,%g)-(%g,%g)", b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y())
}
