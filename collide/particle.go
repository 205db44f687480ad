// Package collide holds the particle data model and the collision kernels:
// BVH-driven particle-particle detection and elastic resolution, and
// particle-polygon reflection against static line-segment geometry.
package collide

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Particle says where a particle is, where it came from last frame, and
// where it is going. Inactive particles are excluded from physics and sort
// to the tail of the array.
//
// The device layout is padded to a fixed 128-byte stride so host and WGSL
// structs match exactly:
//
//	curr_pos   : vec2<f32>;  (8)
//	prev_pos   : vec2<f32>;  (8)
//	velocity   : vec2<f32>;  (8)
//	type_index : i32;        (4)
//	neighbors  : i32;        (4)
//	is_active  : u32;        (4)
//	reserved   : u32[23];    (92)
type Particle struct {
	CurrPos  mgl32.Vec2
	PrevPos  mgl32.Vec2
	Velocity mgl32.Vec2

	// index into the particle properties table
	TypeIndex int32

	// used for coloring by local density
	NeighborCount int32

	Active bool
}

// ParticleStride is the particle's device stride in bytes.
const ParticleStride = 128

func (p *Particle) ToBytes() []byte {
	buf := make([]byte, ParticleStride)
	putVec2(buf[0:8], p.CurrPos)
	putVec2(buf[8:16], p.PrevPos)
	putVec2(buf[16:24], p.Velocity)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(p.TypeIndex))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(p.NeighborCount))
	var active uint32
	if p.Active {
		active = 1
	}
	binary.LittleEndian.PutUint32(buf[32:36], active)
	return buf
}

func ParticleFromBytes(buf []byte) Particle {
	return Particle{
		CurrPos:       getVec2(buf[0:8]),
		PrevPos:       getVec2(buf[8:16]),
		Velocity:      getVec2(buf[16:24]),
		TypeIndex:     int32(binary.LittleEndian.Uint32(buf[24:28])),
		NeighborCount: int32(binary.LittleEndian.Uint32(buf[28:32])),
		Active:        binary.LittleEndian.Uint32(buf[32:36]) != 0,
	}
}

// ParticleProperties is one entry of the per-type lookup table. Read-only
// after startup.
type ParticleProperties struct {
	Mass            float32
	CollisionRadius float32
}

// PropertiesStride is the table's device stride in bytes.
const PropertiesStride = 16

func (p *ParticleProperties) ToBytes() []byte {
	buf := make([]byte, PropertiesStride)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(p.Mass))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(p.CollisionRadius))
	return buf
}

func putVec2(buf []byte, v mgl32.Vec2) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(v.X()))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(v.Y()))
}

func getVec2(buf []byte) mgl32.Vec2 {
	return mgl32.Vec2{
		math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])),
	}
}
