package ripple

import (
	"github.com/gekko3d/ripple/gpu"
	"github.com/pkg/errors"
)

// BackendName identifies a concrete pipeline executor.
type BackendName string

const (
	BackendCPU  BackendName = "cpu"
	BackendWGPU BackendName = "wgpu"
)

// Backend is the surface shared by the CPU simulator and the wgpu engine:
// seed particles, step frames, read back state.
type Backend interface {
	Seed(particles []Particle) error
	SimulateStep(dt float32) error
	SnapshotParticles() ([]Particle, error)
}

// NewBackend installs exactly one executor. The CPU backend is always
// available; the wgpu backend needs a working GPU and fails at startup
// otherwise.
func NewBackend(name BackendName, cfg Config) (Backend, error) {
	switch name {
	case BackendCPU:
		sim, err := NewSimulator(cfg)
		if err != nil {
			return nil, err
		}
		return &cpuBackend{sim: sim}, nil

	case BackendWGPU:
		cfg = cfg.withDefaults()
		if err := cfg.validate(); err != nil {
			return nil, errors.Wrap(err, "simulator config")
		}
		device, err := gpu.RequestDevice()
		if err != nil {
			return nil, err
		}
		engine, err := gpu.NewEngine(device, gpu.Config{
			MaxParticles:  cfg.MaxParticles,
			MaxCandidates: cfg.MaxCollisionsPerParticle,
			Window:        cfg.Window,
			Types:         cfg.Types,
		})
		if err != nil {
			return nil, err
		}
		return engine, nil

	default:
		return nil, errors.Errorf("unknown backend %q", name)
	}
}

// cpuBackend adapts the in-process simulator to the Backend surface.
type cpuBackend struct {
	sim *Simulator
}

func (b *cpuBackend) Seed(particles []Particle) error { return b.sim.Seed(particles) }

func (b *cpuBackend) SimulateStep(dt float32) error {
	b.sim.SimulateStep(dt)
	return nil
}

func (b *cpuBackend) SnapshotParticles() ([]Particle, error) {
	return b.sim.SnapshotParticles(), nil
}
