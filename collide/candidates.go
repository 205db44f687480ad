package collide

import "sync/atomic"

// MaxCandidates is the compile-time capacity of a potential-collision list.
// The runtime cap K is configurable up to this limit; overflow drops pairs
// silently, trading exact completeness for stable frame time.
const MaxCandidates = 16

// PotentialCollisions is one particle's candidate list, written by the
// detection kernel and consumed (then cleared) by the resolution kernel.
type PotentialCollisions struct {
	Count   int32
	Indices [MaxCandidates]int32
}

// Stats counts per-frame anomalies that are clamped rather than surfaced as
// errors. All counters are cumulative over the simulator's lifetime.
type Stats struct {
	CandidateOverflows atomic.Uint64
	ZeroedVelocities   atomic.Uint64
	DegenerateNormals  atomic.Uint64
}
