package ripple

// Diagnostics is a snapshot of the cumulative per-frame anomaly counters.
// Anomalies never abort a frame: overflowing candidate lists drop pairs,
// degenerate normals and coincident contacts zero velocities, and a BVH
// range-search overrun marks a broken key-uniqueness invariant upstream.
type Diagnostics struct {
	CandidateOverflows uint64
	ZeroedVelocities   uint64
	DegenerateNormals  uint64
	RangeOverruns      uint64
}

// Diagnostics reads the counters. Each anomaly kind was logged at most once
// when it first occurred; the counts keep accumulating silently after that.
func (s *Simulator) Diagnostics() Diagnostics {
	return Diagnostics{
		CandidateOverflows: s.stats.CandidateOverflows.Load(),
		ZeroedVelocities:   s.stats.ZeroedVelocities.Load(),
		DegenerateNormals:  s.stats.DegenerateNormals.Load(),
		RangeOverruns:      s.particleTree.RangeOverruns.Load() + s.polygonTree.RangeOverruns.Load(),
	}
}

// logAnomaliesOnce emits a one-time diagnostic per anomaly kind.
func (s *Simulator) logAnomaliesOnce() {
	d := s.Diagnostics()
	if d.CandidateOverflows > 0 && !s.warned.overflow {
		s.warned.overflow = true
		s.log.Warnf("potential-collision list overflowed; pairs beyond cap %d are dropped", s.cfg.MaxCollisionsPerParticle)
	}
	if d.ZeroedVelocities > 0 && !s.warned.zeroed {
		s.warned.zeroed = true
		s.log.Warnf("coincident or degenerate contact; affected velocities clamped to zero")
	}
	if d.DegenerateNormals > 0 && !s.warned.normals {
		s.warned.normals = true
		s.log.Warnf("zero-length surface normal on collidable geometry; affected velocities clamped to zero")
	}
	if d.RangeOverruns > 0 && !s.warned.overrun {
		s.warned.overrun = true
		s.log.Errorf("BVH range search exceeded its iteration bound; sort keys were not unique")
	}
}
