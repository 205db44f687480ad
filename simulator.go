// Package ripple is a real-time 2D particle simulator built around a
// data-parallel collision pipeline: every frame the particles are sorted
// along a Morton curve, a binary radix tree is built over the sorted keys,
// and the tree is traversed to detect and resolve particle-particle and
// particle-polygon collisions. All stages run as uniform kernels on a
// work-group device executor with a storage barrier between stages.
package ripple

import (
	"github.com/gekko3d/ripple/bvh"
	"github.com/gekko3d/ripple/collide"
	"github.com/gekko3d/ripple/compute"
	"github.com/gekko3d/ripple/geom"
	"github.com/gekko3d/ripple/morton"
	"github.com/gekko3d/ripple/radix"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// leafEpsilon pads polygon leaf boxes so axis-aligned segments still have
// area to test overlap against.
const leafEpsilon = 1e-5

type Simulator struct {
	cfg Config
	log Logger

	dev  *compute.Device
	prof *Profiler

	// particle buffer holds 2N entries: the live half [0,N) and the copy
	// half [N,2N) the sort gathers from
	particles  *compute.Buffer[collide.Particle]
	props      *compute.Buffer[collide.ParticleProperties]
	sorter     *radix.Sorter
	candidates *compute.Buffer[collide.PotentialCollisions]

	particleTree *bvh.Tree
	resolvedVel  []mgl32.Vec2
	collided     []bool

	polygonFaces []geom.PolygonFace
	polygonTree  *bvh.Tree

	stats  collide.Stats
	warned struct {
		overflow bool
		zeroed   bool
		normals  bool
		overrun  bool
	}

	activeCount int
}

// NewSimulator allocates every device buffer up front. Allocation or
// configuration failure here is the single unrecoverable startup error.
func NewSimulator(cfg Config) (*Simulator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "simulator config")
	}

	dev := compute.NewDevice(cfg.WorkGroupSize)
	n := cfg.MaxParticles

	sorter, err := radix.NewSorter(dev, "ParticleSortingData",
		compute.SortingDataBufferBinding, compute.PrefixScanBufferBinding, n)
	if err != nil {
		return nil, errors.Wrap(err, "particle sorter")
	}

	s := &Simulator{
		cfg:  cfg,
		log:  cfg.Logger,
		dev:  dev,
		prof: NewProfiler(),

		particles: compute.NewBuffer[collide.Particle](
			"ParticleBuffer", compute.ParticleBufferBinding, 2*n),
		props: compute.NewBuffer[collide.ParticleProperties](
			"ParticleProperties", compute.ParticlePropertiesBinding, len(cfg.Types)),
		sorter: sorter,
		candidates: compute.NewBuffer[collide.PotentialCollisions](
			"PotentialCollisions", compute.PotentialCollisionsBinding, n),

		particleTree: bvh.NewTree(dev, "ParticleBvhNodes", compute.BvhNodeBufferBinding, n),
		resolvedVel:  make([]mgl32.Vec2, n),
		collided:     make([]bool, n),

		polygonTree: bvh.NewTree(dev, "PolygonBvhNodes", compute.PolygonBvhNodeBufferBinding, 0),
	}
	copy(s.props.Data, cfg.Types)

	if cfg.Profiling {
		s.EnableProfiling(true)
	}
	return s, nil
}

// EnableProfiling toggles per-dispatch timing. When off, the pipeline runs
// without waits and records nothing.
func (s *Simulator) EnableProfiling(enabled bool) {
	if enabled {
		s.dev.SetTimingHook(s.prof.Add)
	} else {
		s.dev.SetTimingHook(nil)
	}
}

// Profiler exposes the per-frame stage timings recorded in profiling mode.
func (s *Simulator) Profiler() *Profiler { return s.prof }

// Seed writes particles into the live half of the particle buffer. Slots
// beyond the seeded range become inactive. Indices are only stable until
// the next SimulateStep reorders the array.
func (s *Simulator) Seed(particles []Particle) error {
	n := s.cfg.MaxParticles
	if len(particles) > n {
		return errors.Errorf("seeding %d particles into %d slots", len(particles), n)
	}
	for i := range particles {
		if int(particles[i].TypeIndex) >= len(s.cfg.Types) || particles[i].TypeIndex < 0 {
			return errors.Errorf("particle %d: type index %d out of range", i, particles[i].TypeIndex)
		}
	}
	copy(s.particles.Data[:len(particles)], particles)
	for i := len(particles); i < n; i++ {
		s.particles.Data[i] = collide.Particle{}
	}
	return nil
}

// LoadGeometry builds the one-time static BVH over collidable polygons
// using the same sort-and-build pipeline as the per-frame particle tree,
// keyed by polygon centroids. Faces are not reordered; leaves carry the
// source face index.
func (s *Simulator) LoadGeometry(faces []geom.PolygonFace) error {
	s.polygonFaces = append([]geom.PolygonFace(nil), faces...)
	m := len(faces)
	s.polygonTree = bvh.NewTree(s.dev, "PolygonBvhNodes", compute.PolygonBvhNodeBufferBinding, m)
	if m == 0 {
		return nil
	}

	sorter, err := radix.NewSorter(s.dev, "PolygonSortingData",
		compute.PolygonSortingDataBufferBinding, compute.PolygonPrefixScanBufferBinding, m)
	if err != nil {
		return errors.Wrap(err, "polygon sorter")
	}

	window := s.cfg.Window
	records := sorter.Unsorted()
	s.dev.Dispatch("generate polygon sorting data", m, func(i int) {
		records[i] = radix.SortingRecord{
			Key:         morton.Encode(window, faces[i].Centroid()),
			SourceIndex: uint32(i),
		}
	})
	sorter.Sort()
	sorter.Disambiguate()

	s.polygonTree.Build(sorter.Sorted(), m, func(i int, rec radix.SortingRecord) (geom.Box2D, int32) {
		face := s.polygonFaces[rec.SourceIndex]
		return face.Bounds().Expanded(leafEpsilon), int32(rec.SourceIndex)
	})
	s.log.Infof("built static geometry BVH over %d polygons", m)
	return nil
}

// LoadGeometryFile reads a Blender export and installs its line segments as
// collidable geometry. A missing file or OBJ marker leaves the geometry set
// empty; the error is the caller's to judge.
func (s *Simulator) LoadGeometryFile(path string) error {
	g, err := geom.LoadBlenderFile(path, s.log)
	if err != nil {
		s.log.Errorf("geometry load failed, continuing with empty set: %v", err)
		_ = s.LoadGeometry(nil)
		return errors.Wrap(err, "load geometry")
	}
	return s.LoadGeometry(g.AllFaces())
}

// SimulateStep advances the simulation by dt: integrate, sort by Morton
// key, rebuild the particle BVH, then detect and resolve collisions. Each
// stage is one or more kernel dispatches with a barrier in between.
func (s *Simulator) SimulateStep(dt float32) {
	s.prof.Reset()
	n := s.cfg.MaxParticles
	live := s.particles.Data[:n]
	copyHalf := s.particles.Data[n : 2*n]
	window := s.cfg.Window

	// advance active particles; out-of-window particles deactivate so the
	// sort parks them at the tail
	s.dev.Dispatch("update particles", n, func(i int) {
		p := &live[i]
		if !p.Active {
			return
		}
		p.PrevPos = p.CurrPos
		p.CurrPos = p.CurrPos.Add(p.Velocity.Mul(dt))
		if !window.Contains(p.CurrPos) {
			p.Active = false
		}
	})

	// refresh the copy half the sort gathers from
	s.dev.Dispatch("copy particles to copy buffer", n, func(i int) {
		copyHalf[i] = live[i]
	})

	records := s.sorter.Unsorted()
	s.dev.Dispatch("generate particle sorting data", n, func(i int) {
		key := morton.Sentinel
		if copyHalf[i].Active {
			key = morton.Encode(window, copyHalf[i].CurrPos)
		}
		records[i] = radix.SortingRecord{Key: key, SourceIndex: uint32(i)}
	})

	s.sorter.Sort()

	// gather particles into sorted order
	sorted := s.sorter.Sorted()
	s.dev.Dispatch("sort particles", n, func(i int) {
		live[i] = copyHalf[sorted[i].SourceIndex]
	})

	s.sorter.Disambiguate()
	s.activeCount = s.sorter.CountBelow(morton.Sentinel)
	s.prof.SetCount("active particles", s.activeCount)

	if s.activeCount > 0 {
		props := s.props.Data
		s.particleTree.Build(sorted, s.activeCount, func(i int, rec radix.SortingRecord) (geom.Box2D, int32) {
			p := &live[i]
			return geom.BoxFromCircle(p.CurrPos, props[p.TypeIndex].CollisionRadius), int32(i)
		})

		collide.DetectParticleCollisions(s.dev, s.particleTree, live, props,
			s.candidates.Data, s.cfg.MaxCollisionsPerParticle, &s.stats)
		collide.ResolveParticleCollisions(s.dev, live, props, s.candidates.Data,
			s.resolvedVel, s.collided, s.activeCount, &s.stats)
		collide.ResolvePolygonCollisions(s.dev, s.polygonTree, s.polygonFaces,
			live, s.activeCount, s.cfg.MaxCollisionsPerParticle, dt, &s.stats)
	}

	s.logAnomaliesOnce()
}

// ActiveCount reports how many particles took part in the last step.
func (s *Simulator) ActiveCount() int { return s.activeCount }

// SnapshotParticles returns a read-only copy of the live particle array,
// taken between frames. Order is the last frame's sorted order.
func (s *Simulator) SnapshotParticles() []Particle {
	out := make([]Particle, s.cfg.MaxParticles)
	copy(out, s.particles.Data[:s.cfg.MaxParticles])
	return out
}

// SnapshotBVH returns a read-only copy of the last frame's particle tree,
// for diagnostics.
func (s *Simulator) SnapshotBVH() []bvh.Node {
	l := s.particleTree.LeafCount()
	if l == 0 {
		return nil
	}
	count := 2*l - 1
	out := make([]bvh.Node, count)
	copy(out, s.particleTree.Nodes.Data[:count])
	return out
}
