package collide

import (
	"github.com/gekko3d/ripple/compute"
	"github.com/go-gl/mathgl/mgl32"
)

// separationEpsilon is the prev-pos nudge that keeps a freshly resolved pair
// from re-colliding on the next frame.
const separationEpsilon = 1e-4

// nearZeroDistSqr is the coincidence threshold below which the contact
// normal is undefined and the velocity is clamped to zero instead.
const nearZeroDistSqr = 1e-12

// ResolveParticleCollisions verifies each candidate pair by true overlap at
// the current positions and applies the closed-form 2D elastic collision.
// Both particles of a pair run the same formula from their own side, so the
// outcome is symmetric without cross-thread writes.
//
// The kernel runs in two dispatches: the first computes every particle's
// post-collision velocity into scratch, the second applies it. The barrier
// between them keeps threads from reading a neighbor's velocity mid-update.
func ResolveParticleCollisions(
	dev *compute.Device,
	particles []Particle,
	props []ParticleProperties,
	candidates []PotentialCollisions,
	resolved []mgl32.Vec2,
	collided []bool,
	active int,
	stats *Stats,
) {
	dev.Dispatch("resolve collisions: compute", active, func(self int) {
		collided[self] = false
		list := &candidates[self]
		if list.Count == 0 {
			return
		}
		p := &particles[self]
		selfProps := props[p.TypeIndex]
		vel := p.Velocity

		hit := false
		for c := int32(0); c < list.Count; c++ {
			other := &particles[list.Indices[c]]
			otherProps := props[other.TypeIndex]

			toSelf := p.CurrPos.Sub(other.CurrPos)
			distSqr := toSelf.LenSqr()
			sum := selfProps.CollisionRadius + otherProps.CollisionRadius
			if distSqr > sum*sum {
				continue
			}
			if distSqr < nearZeroDistSqr {
				// coincident centers have no contact normal
				vel = mgl32.Vec2{}
				hit = true
				stats.ZeroedVelocities.Add(1)
				continue
			}

			relVel := vel.Sub(other.Velocity)
			approach := relVel.Dot(toSelf)
			if approach >= 0 {
				// already separating
				continue
			}
			massScale := 2 * otherProps.Mass / (selfProps.Mass + otherProps.Mass)
			vel = vel.Sub(toSelf.Mul(massScale * approach / distSqr))
			hit = true
		}

		if hit {
			resolved[self] = vel
			collided[self] = true
		}
	})

	dev.Dispatch("resolve collisions: apply", active, func(self int) {
		p := &particles[self]
		candidates[self].Count = 0
		if !collided[self] {
			return
		}
		p.Velocity = resolved[self]
		if l := p.Velocity.Len(); l > 0 {
			p.PrevPos = p.CurrPos.Sub(p.Velocity.Mul(separationEpsilon / l))
		}
	})
}
