package collide

import (
	"testing"

	"github.com/gekko3d/ripple/bvh"
	"github.com/gekko3d/ripple/compute"
	"github.com/gekko3d/ripple/geom"
	"github.com/gekko3d/ripple/radix"
	"github.com/go-gl/mathgl/mgl32"
)

func buildParticleTree(dev *compute.Device, particles []Particle, props []ParticleProperties) *bvh.Tree {
	tree := bvh.NewTree(dev, "TestParticleBvh", 5, len(particles))
	records := make([]radix.SortingRecord, len(particles))
	for i := range records {
		// synthetic strictly increasing keys stand in for the sort; leaves
		// keep the input order, whatever the positions' Morton order is
		records[i] = radix.SortingRecord{Key: uint32(i), SourceIndex: uint32(i)}
	}
	tree.Build(records, len(records), func(i int, rec radix.SortingRecord) (geom.Box2D, int32) {
		p := particles[i]
		return geom.BoxFromCircle(p.CurrPos, props[p.TypeIndex].CollisionRadius), int32(i)
	})
	return tree
}

func kineticEnergy(particles []Particle, props []ParticleProperties) float32 {
	var e float32
	for _, p := range particles {
		e += 0.5 * props[p.TypeIndex].Mass * p.Velocity.LenSqr()
	}
	return e
}

func momentum(particles []Particle, props []ParticleProperties) mgl32.Vec2 {
	var m mgl32.Vec2
	for _, p := range particles {
		m = m.Add(p.Velocity.Mul(props[p.TypeIndex].Mass))
	}
	return m
}

func runDetectResolve(t *testing.T, particles []Particle, props []ParticleProperties) (*Stats, []PotentialCollisions) {
	t.Helper()
	dev := compute.NewDevice(64)
	tree := buildParticleTree(dev, particles, props)

	candidates := make([]PotentialCollisions, len(particles))
	resolved := make([]mgl32.Vec2, len(particles))
	collided := make([]bool, len(particles))
	stats := &Stats{}

	DetectParticleCollisions(dev, tree, particles, props, candidates, 10, stats)
	detected := append([]PotentialCollisions(nil), candidates...)
	ResolveParticleCollisions(dev, particles, props, candidates, resolved, collided, len(particles), stats)
	return stats, detected
}

func TestDetectRecordsBothDirections(t *testing.T) {
	props := []ParticleProperties{{Mass: 1, CollisionRadius: 0.05}}
	particles := []Particle{
		{CurrPos: mgl32.Vec2{0, 0}, Active: true},
		{CurrPos: mgl32.Vec2{0.06, 0}, Active: true},
		{CurrPos: mgl32.Vec2{0.5, 0.5}, Active: true},
	}
	dev := compute.NewDevice(64)
	tree := buildParticleTree(dev, particles, props)
	candidates := make([]PotentialCollisions, len(particles))
	stats := &Stats{}
	DetectParticleCollisions(dev, tree, particles, props, candidates, 10, stats)

	if candidates[0].Count != 1 || candidates[0].Indices[0] != 1 {
		t.Fatalf("particle 0 should list particle 1: %+v", candidates[0])
	}
	if candidates[1].Count != 1 || candidates[1].Indices[0] != 0 {
		t.Fatalf("particle 1 should list particle 0: %+v", candidates[1])
	}
	if candidates[2].Count != 0 {
		t.Fatalf("distant particle should list nothing: %+v", candidates[2])
	}
	if particles[0].NeighborCount != 1 {
		t.Fatalf("neighbor count not updated: %d", particles[0].NeighborCount)
	}
}

func TestDetectHonorsCandidateCap(t *testing.T) {
	// many coincident boxes with a tiny cap: overflow drops pairs silently
	props := []ParticleProperties{{Mass: 1, CollisionRadius: 0.1}}
	particles := make([]Particle, 8)
	for i := range particles {
		particles[i] = Particle{CurrPos: mgl32.Vec2{float32(i) * 0.01, 0}, Active: true}
	}
	dev := compute.NewDevice(64)
	tree := buildParticleTree(dev, particles, props)
	candidates := make([]PotentialCollisions, len(particles))
	stats := &Stats{}
	DetectParticleCollisions(dev, tree, particles, props, candidates, 3, stats)

	for i := range candidates {
		if candidates[i].Count > 3 {
			t.Fatalf("cap exceeded: %d", candidates[i].Count)
		}
	}
	if stats.CandidateOverflows.Load() == 0 {
		t.Fatal("overflow should have been counted")
	}
}

func TestResolveHeadOnEqualMassesSwapsVelocities(t *testing.T) {
	props := []ParticleProperties{{Mass: 1, CollisionRadius: 0.02}}
	particles := []Particle{
		{CurrPos: mgl32.Vec2{-0.01, 0}, Velocity: mgl32.Vec2{1, 0}, Active: true},
		{CurrPos: mgl32.Vec2{0.01, 0}, Velocity: mgl32.Vec2{-1, 0}, Active: true},
	}
	before := kineticEnergy(particles, props)

	runDetectResolve(t, particles, props)

	if !mgl32.FloatEqualThreshold(particles[0].Velocity.X(), -1, 1e-5) {
		t.Errorf("particle 0 velocity %v, want (-1,0)", particles[0].Velocity)
	}
	if !mgl32.FloatEqualThreshold(particles[1].Velocity.X(), 1, 1e-5) {
		t.Errorf("particle 1 velocity %v, want (1,0)", particles[1].Velocity)
	}
	after := kineticEnergy(particles, props)
	if !mgl32.FloatEqualThreshold(before, after, 1e-5) {
		t.Errorf("kinetic energy drifted: %f -> %f", before, after)
	}
}

func TestResolveConservesEnergyAndMomentum(t *testing.T) {
	props := []ParticleProperties{
		{Mass: 1, CollisionRadius: 0.02},
		{Mass: 3, CollisionRadius: 0.03},
	}
	particles := []Particle{
		{CurrPos: mgl32.Vec2{-0.02, 0.001}, Velocity: mgl32.Vec2{0.7, 0.1}, TypeIndex: 0, Active: true},
		{CurrPos: mgl32.Vec2{0.02, -0.001}, Velocity: mgl32.Vec2{-0.3, 0.2}, TypeIndex: 1, Active: true},
	}
	eBefore := kineticEnergy(particles, props)
	pBefore := momentum(particles, props)

	runDetectResolve(t, particles, props)

	eAfter := kineticEnergy(particles, props)
	pAfter := momentum(particles, props)
	if !mgl32.FloatEqualThreshold(eBefore, eAfter, 1e-4) {
		t.Errorf("energy drifted: %f -> %f", eBefore, eAfter)
	}
	if !pBefore.ApproxEqualThreshold(pAfter, 1e-5) {
		t.Errorf("momentum drifted: %v -> %v", pBefore, pAfter)
	}
}

func TestResolveSkipsSeparatingPair(t *testing.T) {
	props := []ParticleProperties{{Mass: 1, CollisionRadius: 0.05}}
	particles := []Particle{
		{CurrPos: mgl32.Vec2{-0.01, 0}, Velocity: mgl32.Vec2{-1, 0}, Active: true},
		{CurrPos: mgl32.Vec2{0.01, 0}, Velocity: mgl32.Vec2{1, 0}, Active: true},
	}
	runDetectResolve(t, particles, props)

	if particles[0].Velocity != (mgl32.Vec2{-1, 0}) || particles[1].Velocity != (mgl32.Vec2{1, 0}) {
		t.Fatalf("separating pair should keep velocities: %v %v",
			particles[0].Velocity, particles[1].Velocity)
	}
}

func TestResolveCoincidentCentersZeroesVelocity(t *testing.T) {
	props := []ParticleProperties{{Mass: 1, CollisionRadius: 0.05}}
	particles := []Particle{
		{CurrPos: mgl32.Vec2{0.25, 0.25}, Velocity: mgl32.Vec2{1, 1}, Active: true},
		{CurrPos: mgl32.Vec2{0.25, 0.25}, Velocity: mgl32.Vec2{-1, 1}, Active: true},
	}
	stats, _ := runDetectResolve(t, particles, props)

	if particles[0].Velocity != (mgl32.Vec2{}) || particles[1].Velocity != (mgl32.Vec2{}) {
		t.Fatalf("coincident pair should clamp to zero velocity: %v %v",
			particles[0].Velocity, particles[1].Velocity)
	}
	if stats.ZeroedVelocities.Load() == 0 {
		t.Fatal("clamp should have been counted")
	}
}

func TestResolveClearsCandidateLists(t *testing.T) {
	props := []ParticleProperties{{Mass: 1, CollisionRadius: 0.05}}
	particles := []Particle{
		{CurrPos: mgl32.Vec2{-0.01, 0}, Velocity: mgl32.Vec2{1, 0}, Active: true},
		{CurrPos: mgl32.Vec2{0.01, 0}, Velocity: mgl32.Vec2{-1, 0}, Active: true},
	}
	dev := compute.NewDevice(64)
	tree := buildParticleTree(dev, particles, props)
	candidates := make([]PotentialCollisions, len(particles))
	resolved := make([]mgl32.Vec2, len(particles))
	collided := make([]bool, len(particles))
	stats := &Stats{}
	DetectParticleCollisions(dev, tree, particles, props, candidates, 10, stats)
	ResolveParticleCollisions(dev, particles, props, candidates, resolved, collided, len(particles), stats)

	for i := range candidates {
		if candidates[i].Count != 0 {
			t.Fatalf("candidate list %d not cleared", i)
		}
	}
}
