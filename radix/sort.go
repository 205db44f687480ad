// Package radix sorts (key, source-index) records with a 32-pass LSB radix
// sort. Each pass is a chain of data-parallel kernels: a work-group prefix
// scan of the zero-bit predicate in three stages, then a stable scatter into
// the opposite half of a double-length record buffer.
package radix

import (
	"sort"
	"sync"

	"github.com/gekko3d/ripple/compute"
	"github.com/pkg/errors"
)

// SortingRecord pairs a sort key with the index of the entity it was
// generated from. The key is either a 30-bit Morton code or the inactive
// sentinel; SourceIndex fishes the unsorted entity back out so it can be
// moved to its sorted position.
type SortingRecord struct {
	Key         uint32
	SourceIndex uint32
}

// PrefixSumBuffer backs the three scan stages: a header slot holding the
// pass's grand total of zero bits, a per-item exclusive prefix array padded
// to a multiple of the scan span, and one partial sum per scan work group.
type PrefixSumBuffer struct {
	Binding    uint32
	TotalZeros uint32
	Scan       []uint32
	GroupSums  []uint32
}

// Sorter owns the record buffer (2N entries so passes ping-pong between
// halves without reallocation) and the scan scratch for one entity class.
type Sorter struct {
	dev    *compute.Device
	n      int
	span   int // items scanned per work group: 2*WG
	groups int

	Records *compute.Buffer[SortingRecord]
	Prefix  *PrefixSumBuffer

	readOffset int
	scratch    sync.Pool
}

// NewSorter sizes the sort for n records. The stage-2 scan runs in a single
// work group, so n may not exceed (2*WG)^2; larger populations are a setup
// error, not a runtime clamp.
func NewSorter(dev *compute.Device, name string, binding, prefixBinding uint32, n int) (*Sorter, error) {
	span := 2 * dev.WorkGroupSize()
	if n <= 0 {
		return nil, errors.Errorf("%s: record count must be positive, got %d", name, n)
	}
	if span&(span-1) != 0 {
		return nil, errors.Errorf("%s: work group size %d is not a power of two", name, dev.WorkGroupSize())
	}
	if n > span*span {
		return nil, errors.Errorf("%s: %d records exceed single-stage-2 capacity %d", name, n, span*span)
	}
	padded := roundUp(n, span)
	groups := padded / span
	s := &Sorter{
		dev:     dev,
		n:       n,
		span:    span,
		groups:  groups,
		Records: compute.NewBuffer[SortingRecord](name, binding, 2*n),
		Prefix: &PrefixSumBuffer{
			Binding:   prefixBinding,
			Scan:      make([]uint32, padded),
			GroupSums: make([]uint32, span),
		},
	}
	s.scratch.New = func() any {
		buf := make([]uint32, span)
		return &buf
	}
	return s, nil
}

func (s *Sorter) Len() int { return s.n }

// Unsorted exposes the current read half for the key-generation kernel to
// fill before Sort runs.
func (s *Sorter) Unsorted() []SortingRecord {
	return s.Records.Data[s.readOffset : s.readOffset+s.n]
}

// Sorted exposes the read half after Sort; records are ordered
// non-decreasingly by key with inactive sentinels contiguous at the tail.
func (s *Sorter) Sorted() []SortingRecord {
	return s.Records.Data[s.readOffset : s.readOffset+s.n]
}

// Sort runs all 32 bit passes. Keys are 30-bit, but the loop covers the two
// sentinel bits that park inactive records at the tail.
func (s *Sorter) Sort() {
	for bit := 0; bit < 32; bit++ {
		s.scanZeroBits(bit)
		s.scatter(bit)
		s.readOffset = s.n - s.readOffset
	}
}

// scanZeroBits computes, for every record index, the exclusive count of
// records before it whose key has a zero at the pass bit, plus the pass's
// grand total of zeros.
func (s *Sorter) scanZeroBits(bit int) {
	read := s.Records.Data[s.readOffset : s.readOffset+s.n]

	// Stage 1: per-group exclusive scan in group-local scratch; the group
	// total lands in GroupSums.
	s.dev.DispatchGroups("prefix scan stage 1", s.groups, func(g int) {
		bufPtr := s.scratch.Get().(*[]uint32)
		local := *bufPtr
		base := g * s.span
		for j := 0; j < s.span; j++ {
			i := base + j
			if i < s.n && (read[i].Key>>uint(bit))&1 == 0 {
				local[j] = 1
			} else {
				local[j] = 0
			}
		}
		total := exclusiveScan(local)
		copy(s.Prefix.Scan[base:base+s.span], local)
		s.Prefix.GroupSums[g] = total
		s.scratch.Put(bufPtr)
	})

	// Stage 2: one work group scans the group totals and stores the grand
	// total of zeros in the header slot.
	s.dev.DispatchGroups("prefix scan stage 2", 1, func(int) {
		bufPtr := s.scratch.Get().(*[]uint32)
		local := *bufPtr
		copy(local, s.Prefix.GroupSums)
		for j := s.groups; j < s.span; j++ {
			local[j] = 0
		}
		s.Prefix.TotalZeros = exclusiveScan(local)
		copy(s.Prefix.GroupSums, local)
		s.scratch.Put(bufPtr)
	})

	// Stage 3: fold the scanned group offsets into the per-item prefixes,
	// making them global.
	s.dev.Dispatch("prefix scan stage 3", s.n, func(i int) {
		s.Prefix.Scan[i] += s.Prefix.GroupSums[i/s.span]
	})
}

// scatter moves every record to its destination in the write half:
// zero-bit records pack to the front in order, one-bit records to the back,
// both stably.
func (s *Sorter) scatter(bit int) {
	read := s.Records.Data[s.readOffset : s.readOffset+s.n]
	writeOffset := s.n - s.readOffset
	write := s.Records.Data[writeOffset : writeOffset+s.n]
	totalZeros := s.Prefix.TotalZeros

	s.dev.Dispatch("radix scatter", s.n, func(i int) {
		rec := read[i]
		prefixZeros := s.Prefix.Scan[i]
		var dst uint32
		if (rec.Key>>uint(bit))&1 == 0 {
			dst = prefixZeros
		} else {
			dst = totalZeros + (uint32(i) - prefixZeros)
		}
		write[dst] = rec
	})
}

// Disambiguate makes keys strictly increasing across the sorted array while
// preserving order: adding the index to a non-decreasing sequence yields a
// strictly increasing one in a single parallel pass. Safe while the record
// count stays far below the 2^30 key space.
func (s *Sorter) Disambiguate() {
	sorted := s.Records.Data[s.readOffset : s.readOffset+s.n]
	s.dev.Dispatch("guarantee key uniqueness", s.n, func(i int) {
		sorted[i].Key += uint32(i)
	})
}

// CountBelow reports how many sorted records have keys below threshold;
// with the inactive sentinel as threshold this is the active count.
func (s *Sorter) CountBelow(threshold uint32) int {
	sorted := s.Sorted()
	return sort.Search(len(sorted), func(i int) bool {
		return sorted[i].Key >= threshold
	})
}

// exclusiveScan runs an in-place Blelloch scan over a power-of-two span and
// returns the total.
func exclusiveScan(v []uint32) uint32 {
	n := len(v)
	for d := 1; d < n; d <<= 1 {
		for i := 0; i < n; i += 2 * d {
			v[i+2*d-1] += v[i+d-1]
		}
	}
	total := v[n-1]
	v[n-1] = 0
	for d := n / 2; d >= 1; d >>= 1 {
		for i := 0; i < n; i += 2 * d {
			t := v[i+d-1]
			v[i+d-1] = v[i+2*d-1]
			v[i+2*d-1] += t
		}
	}
	return total
}

func roundUp(v, multiple int) int {
	return (v + multiple - 1) / multiple * multiple
}
