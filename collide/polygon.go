package collide

import (
	"github.com/gekko3d/ripple/bvh"
	"github.com/gekko3d/ripple/compute"
	"github.com/gekko3d/ripple/geom"
	"github.com/go-gl/mathgl/mgl32"
)

// surfaceEpsilon pushes a reflected particle off the surface so the next
// frame's motion segment starts outside the polygon.
const surfaceEpsilon = 1e-4

// ResolvePolygonCollisions reflects particles off static line-segment
// geometry. Each particle's motion this frame is the segment from its
// previous to its current position; the earliest intersection along that
// segment wins, the velocity reflects about the surface normal interpolated
// at the hit point, and the particle is repositioned just off the surface.
//
// Runs after particle-particle resolution so polygon reflection has the
// final say on the frame's position.
func ResolvePolygonCollisions(
	dev *compute.Device,
	tree *bvh.Tree,
	faces []geom.PolygonFace,
	particles []Particle,
	active int,
	k int,
	dt float32,
	stats *Stats,
) {
	if tree.LeafCount() == 0 {
		return
	}
	if k > MaxCandidates {
		k = MaxCandidates
	}

	dev.Dispatch("resolve polygon collisions", active, func(self int) {
		p := &particles[self]
		motion := p.CurrPos.Sub(p.PrevPos)
		if motion.LenSqr() < nearZeroDistSqr {
			return
		}

		// candidate faces whose boxes cross the motion segment's box
		var candidates [MaxCandidates]int32
		count := 0
		segBox := geom.BoxFromSegment(p.PrevPos, p.CurrPos)
		tree.Query(segBox, func(leaf *bvh.Node) bool {
			if count >= k {
				stats.CandidateOverflows.Add(1)
				return true
			}
			candidates[count] = leaf.DataIndex
			count++
			return true
		})

		// keep the hit closest to the start of the motion
		bestT := float32(2)
		bestS := float32(0)
		bestFace := -1
		for c := 0; c < count; c++ {
			face := faces[candidates[c]]
			if face.Degenerate() {
				continue
			}
			t, s, ok := geom.SegmentIntersection(p.PrevPos, p.CurrPos, face.P1, face.P2)
			if ok && t < bestT {
				bestT, bestS, bestFace = t, s, int(candidates[c])
			}
		}
		if bestFace < 0 {
			return
		}

		normal, ok := faces[bestFace].NormalAt(bestS)
		if !ok {
			p.Velocity = mgl32.Vec2{}
			stats.DegenerateNormals.Add(1)
			return
		}
		facing := p.Velocity.Dot(normal)
		if facing >= 0 {
			// grazing the back side; nothing to reflect
			return
		}

		hit := p.PrevPos.Add(motion.Mul(bestT))
		p.Velocity = p.Velocity.Sub(normal.Mul(2 * facing))
		p.CurrPos = hit.Add(normal.Mul(surfaceEpsilon))
		p.PrevPos = p.CurrPos.Sub(p.Velocity.Mul((1 - bestT) * dt))
	})
}
