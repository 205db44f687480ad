// Package compute runs the simulator's data-parallel kernels on the CPU. It
// models a compute device: flat, index-addressable buffers with stable
// binding slots, and a work-group dispatcher whose completed dispatch is the
// storage barrier between pipeline stages.
package compute

// Binding slots shared between the CPU executor and the WGSL kernels. Host
// and device agree on these numbers once; they never change at runtime.
const (
	ParticleBufferBinding           uint32 = 1
	ParticlePropertiesBinding       uint32 = 2
	SortingDataBufferBinding        uint32 = 3
	PrefixScanBufferBinding         uint32 = 4
	BvhNodeBufferBinding            uint32 = 5
	PotentialCollisionsBinding      uint32 = 6
	PolygonBufferBinding            uint32 = 7
	PolygonBvhNodeBufferBinding     uint32 = 8
	PolygonSortingDataBufferBinding uint32 = 9
	ResolvedVelocityBinding         uint32 = 10
	UniformsBinding                 uint32 = 11
	ActiveCounterBinding            uint32 = 12

	// host-side scratch for the one-time polygon sort; never bound on the
	// device, slot kept distinct anyway
	PolygonPrefixScanBufferBinding uint32 = 13
)

// VertexLayout is optional render metadata for buffers that double as vertex
// sources. The collision pipeline itself never reads it; it exists so a
// renderer can bind the same buffer without a second descriptor type.
type VertexLayout struct {
	Stride    uint32
	Locations []uint32
}

// Buffer is a typed device buffer: one element slice, one binding slot,
// optional vertex metadata. Exactly one kernel writes a buffer per dispatch.
type Buffer[T any] struct {
	Name    string
	Binding uint32
	Data    []T
	Layout  *VertexLayout
}

func NewBuffer[T any](name string, binding uint32, length int) *Buffer[T] {
	return &Buffer[T]{
		Name:    name,
		Binding: binding,
		Data:    make([]T, length),
	}
}

func (b *Buffer[T]) Len() int { return len(b.Data) }
