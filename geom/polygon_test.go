package geom

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestSegmentIntersection(t *testing.T) {
	tests := []struct {
		name           string
		p0, p1, q0, q1 mgl32.Vec2
		wantHit        bool
		wantT, wantS   float32
	}{
		{
			name: "perpendicular crossing",
			p0:   mgl32.Vec2{-1, 0}, p1: mgl32.Vec2{1, 0},
			q0: mgl32.Vec2{0, -1}, q1: mgl32.Vec2{0, 1},
			wantHit: true, wantT: 0.5, wantS: 0.5,
		},
		{
			name: "hit at motion start",
			p0:   mgl32.Vec2{0, 0}, p1: mgl32.Vec2{1, 0},
			q0: mgl32.Vec2{0, -1}, q1: mgl32.Vec2{0, 1},
			wantHit: true, wantT: 0, wantS: 0.5,
		},
		{
			name: "parallel never hits",
			p0:   mgl32.Vec2{0, 0}, p1: mgl32.Vec2{1, 0},
			q0: mgl32.Vec2{0, 1}, q1: mgl32.Vec2{1, 1},
			wantHit: false,
		},
		{
			name: "miss beyond segment end",
			p0:   mgl32.Vec2{0, 0}, p1: mgl32.Vec2{0.4, 0},
			q0: mgl32.Vec2{0.5, -1}, q1: mgl32.Vec2{0.5, 1},
			wantHit: false,
		},
		{
			name: "collinear overlap is degenerate",
			p0:   mgl32.Vec2{0, 0}, p1: mgl32.Vec2{1, 0},
			q0: mgl32.Vec2{0.5, 0}, q1: mgl32.Vec2{2, 0},
			wantHit: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gotT, gotS, hit := SegmentIntersection(tc.p0, tc.p1, tc.q0, tc.q1)
			if hit != tc.wantHit {
				t.Fatalf("hit = %v, want %v", hit, tc.wantHit)
			}
			if !hit {
				return
			}
			if !mgl32.FloatEqualThreshold(gotT, tc.wantT, 1e-6) {
				t.Errorf("t = %f, want %f", gotT, tc.wantT)
			}
			if !mgl32.FloatEqualThreshold(gotS, tc.wantS, 1e-6) {
				t.Errorf("s = %f, want %f", gotS, tc.wantS)
			}
		})
	}
}

func TestNormalAtInterpolates(t *testing.T) {
	face := PolygonFace{
		P1: mgl32.Vec2{0, 0}, N1: mgl32.Vec2{0, 1},
		P2: mgl32.Vec2{1, 0}, N2: mgl32.Vec2{1, 0},
	}
	n, ok := face.NormalAt(0.5)
	if !ok {
		t.Fatal("midpoint normal should exist")
	}
	if !mgl32.FloatEqualThreshold(n.Len(), 1, 1e-6) {
		t.Errorf("normal not re-normalized: len %f", n.Len())
	}
	if !mgl32.FloatEqualThreshold(n.X(), n.Y(), 1e-6) {
		t.Errorf("midpoint normal should be diagonal, got %v", n)
	}
}

func TestNormalAtDegenerate(t *testing.T) {
	// opposing endpoint normals cancel at the midpoint
	face := PolygonFace{
		P1: mgl32.Vec2{0, 0}, N1: mgl32.Vec2{0, 1},
		P2: mgl32.Vec2{1, 0}, N2: mgl32.Vec2{0, -1},
	}
	if _, ok := face.NormalAt(0.5); ok {
		t.Fatal("cancelled normal should not normalize")
	}
}

func TestDegenerateFaceNeverHit(t *testing.T) {
	face := PolygonFace{P1: mgl32.Vec2{0.5, 0.5}, P2: mgl32.Vec2{0.5, 0.5}}
	if !face.Degenerate() {
		t.Fatal("zero-length segment should be degenerate")
	}
}

func TestBoxUnionAndOverlap(t *testing.T) {
	a := Box2D{Min: mgl32.Vec2{0, 0}, Max: mgl32.Vec2{1, 1}}
	b := Box2D{Min: mgl32.Vec2{2, 2}, Max: mgl32.Vec2{3, 3}}
	if a.Overlaps(b) {
		t.Fatal("disjoint boxes should not overlap")
	}
	u := a.Union(b)
	if u.Min != (mgl32.Vec2{0, 0}) || u.Max != (mgl32.Vec2{3, 3}) {
		t.Fatalf("union = %+v", u)
	}
	if !u.Overlaps(a) || !u.Overlaps(b) {
		t.Fatal("union should overlap both inputs")
	}

	// touching edges count as overlap, matching the traversal's pruning
	c := Box2D{Min: mgl32.Vec2{1, 0}, Max: mgl32.Vec2{2, 1}}
	if !a.Overlaps(c) {
		t.Fatal("touching boxes should overlap")
	}
}

func TestEmptyBoxIsUnionIdentity(t *testing.T) {
	a := Box2D{Min: mgl32.Vec2{-1, 2}, Max: mgl32.Vec2{0, 3}}
	if got := EmptyBox().Union(a); got != a {
		t.Fatalf("empty union changed the box: %+v", got)
	}
}
