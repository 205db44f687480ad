package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Box2D is an axis-aligned 2D bounding box.
type Box2D struct {
	Min mgl32.Vec2
	Max mgl32.Vec2
}

// EmptyBox returns a box that unions as the identity.
func EmptyBox() Box2D {
	inf := float32(math.Inf(1))
	return Box2D{
		Min: mgl32.Vec2{inf, inf},
		Max: mgl32.Vec2{-inf, -inf},
	}
}

func BoxFromCircle(center mgl32.Vec2, radius float32) Box2D {
	r := mgl32.Vec2{radius, radius}
	return Box2D{Min: center.Sub(r), Max: center.Add(r)}
}

func BoxFromSegment(a, b mgl32.Vec2) Box2D {
	return Box2D{
		Min: mgl32.Vec2{minf(a.X(), b.X()), minf(a.Y(), b.Y())},
		Max: mgl32.Vec2{maxf(a.X(), b.X()), maxf(a.Y(), b.Y())},
	}
}

func (b Box2D) Union(o Box2D) Box2D {
	return Box2D{
		Min: mgl32.Vec2{minf(b.Min.X(), o.Min.X()), minf(b.Min.Y(), o.Min.Y())},
		Max: mgl32.Vec2{maxf(b.Max.X(), o.Max.X()), maxf(b.Max.Y(), o.Max.Y())},
	}
}

func (b Box2D) Overlaps(o Box2D) bool {
	return b.Min.X() <= o.Max.X() && b.Max.X() >= o.Min.X() &&
		b.Min.Y() <= o.Max.Y() && b.Max.Y() >= o.Min.Y()
}

func (b Box2D) Contains(p mgl32.Vec2) bool {
	return p.X() >= b.Min.X() && p.X() <= b.Max.X() &&
		p.Y() >= b.Min.Y() && p.Y() <= b.Max.Y()
}

func (b Box2D) Expanded(eps float32) Box2D {
	e := mgl32.Vec2{eps, eps}
	return Box2D{Min: b.Min.Sub(e), Max: b.Max.Add(e)}
}

func (b Box2D) Center() mgl32.Vec2 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func sqrtf(v float32) float32 {
	return float32(math.Sqrt(float64(v)))
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
