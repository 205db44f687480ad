package collide

import (
	"github.com/gekko3d/ripple/bvh"
	"github.com/gekko3d/ripple/compute"
	"github.com/gekko3d/ripple/geom"
)

// DetectParticleCollisions traverses the per-frame particle BVH once per
// active particle and fills its potential-collision list with every other
// particle whose leaf box overlaps the query box. Both particles of a pair
// record each other: resolution is symmetric, with each thread writing only
// its own particle.
//
// Particles are in sorted order here: leaf data indices and list entries are
// indices into the same sorted array.
func DetectParticleCollisions(
	dev *compute.Device,
	tree *bvh.Tree,
	particles []Particle,
	props []ParticleProperties,
	candidates []PotentialCollisions,
	k int,
	stats *Stats,
) {
	if k > MaxCandidates {
		k = MaxCandidates
	}
	active := tree.LeafCount()

	dev.Dispatch("detect particle collisions", active, func(self int) {
		p := &particles[self]
		radius := props[p.TypeIndex].CollisionRadius
		query := geom.BoxFromCircle(p.CurrPos, radius)

		list := &candidates[self]
		list.Count = 0
		tree.Query(query, func(leaf *bvh.Node) bool {
			other := int(leaf.DataIndex)
			if other == self {
				return true
			}
			if int(list.Count) >= k {
				stats.CandidateOverflows.Add(1)
				return true
			}
			list.Indices[list.Count] = leaf.DataIndex
			list.Count++
			return true
		})
		p.NeighborCount = list.Count
	})
}
