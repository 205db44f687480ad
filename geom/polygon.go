package geom

import (
	"github.com/go-gl/mathgl/mgl32"
)

// PolygonFace is a single collidable 2D line segment with an outward surface
// normal at each endpoint. Normals are interpolated along the segment when a
// hit point falls between the endpoints.
type PolygonFace struct {
	P1 mgl32.Vec2
	N1 mgl32.Vec2
	P2 mgl32.Vec2
	N2 mgl32.Vec2
}

func (f PolygonFace) Centroid() mgl32.Vec2 {
	return f.P1.Add(f.P2).Mul(0.5)
}

func (f PolygonFace) Bounds() Box2D {
	return BoxFromSegment(f.P1, f.P2)
}

// Degenerate faces (zero-length segments) are never hit.
func (f PolygonFace) Degenerate() bool {
	return f.P2.Sub(f.P1).LenSqr() < 1e-12
}

// NormalAt returns the surface normal interpolated at segment parameter
// s in [0,1], re-normalized. ok is false when the interpolated normal has
// near-zero length and cannot be normalized.
func (f PolygonFace) NormalAt(s float32) (mgl32.Vec2, bool) {
	n := f.N1.Mul(1 - s).Add(f.N2.Mul(s))
	lenSqr := n.LenSqr()
	if lenSqr < 1e-12 {
		return mgl32.Vec2{}, false
	}
	return n.Mul(1 / sqrtf(lenSqr)), true
}

// SegmentIntersection intersects the motion segment [p0,p1] with the face
// segment [q0,q1]. On a hit it returns t (parameter along the motion) and
// s (parameter along the face), both in [0,1]. Parallel and degenerate
// segments never hit.
func SegmentIntersection(p0, p1, q0, q1 mgl32.Vec2) (t, s float32, ok bool) {
	d := p1.Sub(p0)
	e := q1.Sub(q0)
	denom := cross2(d, e)
	if denom > -1e-12 && denom < 1e-12 {
		return 0, 0, false
	}
	w := q0.Sub(p0)
	t = cross2(w, e) / denom
	s = cross2(w, d) / denom
	if t < 0 || t > 1 || s < 0 || s > 1 {
		return 0, 0, false
	}
	return t, s, true
}

func cross2(a, b mgl32.Vec2) float32 {
	return a.X()*b.Y() - a.Y()*b.X()
}
