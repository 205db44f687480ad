package ripple

import (
	"github.com/gekko3d/ripple/collide"
	"github.com/gekko3d/ripple/geom"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// Convenience aliases so hosts seed particles without importing subpackages.
type (
	Particle           = collide.Particle
	ParticleProperties = collide.ParticleProperties
)

// Config sizes a simulator. Zero values fall back to defaults; profiling is
// a handle-time choice, not global state.
type Config struct {
	// MaxParticles is the particle slot count N, fixed at startup.
	MaxParticles int

	// WorkGroupSize must be a power of two. Default 256.
	WorkGroupSize int

	// MaxCollisionsPerParticle is the candidate-list cap K.
	MaxCollisionsPerParticle int

	// Window is the simulation region Morton keys quantize over. Particles
	// leaving it deactivate. Default [-1,+1] on both axes.
	Window geom.Box2D

	// Types is the per-type mass/radius lookup table, read-only after
	// startup. Default: one type with mass 1 and radius 0.002.
	Types []ParticleProperties

	Profiling bool
	Logger    Logger
}

func (c Config) withDefaults() Config {
	if c.WorkGroupSize == 0 {
		c.WorkGroupSize = 256
	}
	if c.MaxCollisionsPerParticle == 0 {
		c.MaxCollisionsPerParticle = 10
	}
	if c.Window == (geom.Box2D{}) {
		c.Window = geom.Box2D{Min: mgl32.Vec2{-1, -1}, Max: mgl32.Vec2{1, 1}}
	}
	if len(c.Types) == 0 {
		c.Types = []ParticleProperties{{Mass: 1, CollisionRadius: 0.002}}
	}
	if c.Logger == nil {
		c.Logger = NewNopLogger()
	}
	return c
}

func (c Config) validate() error {
	if c.MaxParticles <= 0 {
		return errors.Errorf("max particles must be positive, got %d", c.MaxParticles)
	}
	if c.WorkGroupSize&(c.WorkGroupSize-1) != 0 {
		return errors.Errorf("work group size must be a power of two, got %d", c.WorkGroupSize)
	}
	if c.MaxCollisionsPerParticle < 0 || c.MaxCollisionsPerParticle > collide.MaxCandidates {
		return errors.Errorf("collision cap %d outside [0, %d]",
			c.MaxCollisionsPerParticle, collide.MaxCandidates)
	}
	if c.Window.Min.X() >= c.Window.Max.X() || c.Window.Min.Y() >= c.Window.Max.Y() {
		return errors.New("window must have positive extent")
	}
	for i, t := range c.Types {
		if t.Mass <= 0 {
			return errors.Errorf("particle type %d: mass must be positive", i)
		}
		if t.CollisionRadius <= 0 {
			return errors.Errorf("particle type %d: collision radius must be positive", i)
		}
	}
	return nil
}
