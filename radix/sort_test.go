package radix

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/gekko3d/ripple/compute"
)

const inactiveSentinel uint32 = 0xC0000000

func newTestSorter(t *testing.T, n int) *Sorter {
	t.Helper()
	dev := compute.NewDevice(64)
	s, err := NewSorter(dev, "TestSortingData", 3, 4, n)
	if err != nil {
		t.Fatalf("NewSorter: %v", err)
	}
	return s
}

func fill(s *Sorter, keys []uint32) {
	records := s.Unsorted()
	for i, k := range keys {
		records[i] = SortingRecord{Key: k, SourceIndex: uint32(i)}
	}
}

func TestSortOrdersRandomKeys(t *testing.T) {
	const n = 5000
	rng := rand.New(rand.NewSource(42))
	keys := make([]uint32, n)
	for i := range keys {
		keys[i] = rng.Uint32() & 0x3FFFFFFF
	}

	s := newTestSorter(t, n)
	fill(s, keys)
	s.Sort()

	sorted := s.Sorted()
	for i := 1; i < n; i++ {
		if sorted[i].Key < sorted[i-1].Key {
			t.Fatalf("keys out of order at %d: %#x < %#x", i, sorted[i].Key, sorted[i-1].Key)
		}
	}

	// every source index appears exactly once
	seen := make([]bool, n)
	for _, rec := range sorted {
		if seen[rec.SourceIndex] {
			t.Fatalf("source index %d duplicated", rec.SourceIndex)
		}
		seen[rec.SourceIndex] = true
	}
}

func TestSortIsStable(t *testing.T) {
	// many duplicate keys; equal keys must retain input order
	const n = 1000
	rng := rand.New(rand.NewSource(7))
	keys := make([]uint32, n)
	for i := range keys {
		keys[i] = uint32(rng.Intn(8))
	}

	s := newTestSorter(t, n)
	fill(s, keys)
	s.Sort()

	sorted := s.Sorted()
	for i := 1; i < n; i++ {
		if sorted[i].Key == sorted[i-1].Key && sorted[i].SourceIndex < sorted[i-1].SourceIndex {
			t.Fatalf("stability violated at %d: key %#x, sources %d then %d",
				i, sorted[i].Key, sorted[i-1].SourceIndex, sorted[i].SourceIndex)
		}
	}
}

func TestSortIdempotentOnSortedInput(t *testing.T) {
	const n = 300
	keys := make([]uint32, n)
	for i := range keys {
		keys[i] = uint32(i * 3)
	}

	s := newTestSorter(t, n)
	fill(s, keys)
	s.Sort()
	first := append([]SortingRecord(nil), s.Sorted()...)

	// feed the sorted output back in
	copy(s.Unsorted(), first)
	s.Sort()

	second := s.Sorted()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("resort changed record %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestScanIsExclusivePrefix(t *testing.T) {
	const n = 700
	rng := rand.New(rand.NewSource(3))
	keys := make([]uint32, n)
	for i := range keys {
		keys[i] = rng.Uint32()
	}

	s := newTestSorter(t, n)
	fill(s, keys)

	const bit = 5
	s.scanZeroBits(bit)

	if s.Prefix.Scan[0] != 0 {
		t.Fatalf("exclusive scan must start at 0, got %d", s.Prefix.Scan[0])
	}
	expect := uint32(0)
	for i := 0; i < n; i++ {
		if s.Prefix.Scan[i] != expect {
			t.Fatalf("scan[%d] = %d, want %d", i, s.Prefix.Scan[i], expect)
		}
		if (keys[i]>>bit)&1 == 0 {
			expect++
		}
	}
	if s.Prefix.TotalZeros != expect {
		t.Fatalf("total zeros = %d, want %d", s.Prefix.TotalZeros, expect)
	}
}

func TestInactiveSentinelsSortToTail(t *testing.T) {
	const n = 1000
	const active = 400
	rng := rand.New(rand.NewSource(9))
	keys := make([]uint32, n)
	for i := range keys {
		if i < active {
			keys[i] = rng.Uint32() & 0x3FFFFFFF
		} else {
			keys[i] = inactiveSentinel
		}
	}
	rng.Shuffle(n, func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })

	s := newTestSorter(t, n)
	fill(s, keys)
	s.Sort()

	sorted := s.Sorted()
	for i := 0; i < active; i++ {
		if sorted[i].Key >= inactiveSentinel {
			t.Fatalf("active prefix holds a sentinel at %d", i)
		}
	}
	for i := active; i < n; i++ {
		if sorted[i].Key < inactiveSentinel {
			t.Fatalf("tail holds an active key at %d: %#x", i, sorted[i].Key)
		}
	}
	if got := s.CountBelow(inactiveSentinel); got != active {
		t.Fatalf("CountBelow = %d, want %d", got, active)
	}
}

func TestDisambiguateMakesKeysStrictlyIncreasing(t *testing.T) {
	// identical positions produce identical keys; after disambiguation the
	// whole array is strictly increasing and adjacent duplicates differ by 1
	const n = 64
	keys := make([]uint32, n)
	for i := range keys {
		keys[i] = 0x12345
	}

	s := newTestSorter(t, n)
	fill(s, keys)
	s.Sort()
	s.Disambiguate()

	sorted := s.Sorted()
	for i := 1; i < n; i++ {
		if sorted[i].Key <= sorted[i-1].Key {
			t.Fatalf("keys not strictly increasing at %d: %#x then %#x",
				i, sorted[i-1].Key, sorted[i].Key)
		}
		if sorted[i].Key != sorted[i-1].Key+1 {
			t.Fatalf("adjacent duplicates should differ by 1, got %#x then %#x",
				sorted[i-1].Key, sorted[i].Key)
		}
	}
}

func TestSortMatchesReference(t *testing.T) {
	const n = 2000
	rng := rand.New(rand.NewSource(11))
	keys := make([]uint32, n)
	for i := range keys {
		keys[i] = rng.Uint32()
	}

	s := newTestSorter(t, n)
	fill(s, keys)
	s.Sort()

	want := append([]uint32(nil), keys...)
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	sorted := s.Sorted()
	for i := range want {
		if sorted[i].Key != want[i] {
			t.Fatalf("key %d: got %#x, want %#x", i, sorted[i].Key, want[i])
		}
	}
}

func TestNewSorterRejectsOversizedPopulations(t *testing.T) {
	dev := compute.NewDevice(64)
	span := 2 * dev.WorkGroupSize()
	if _, err := NewSorter(dev, "TooBig", 3, 4, span*span+1); err == nil {
		t.Fatal("expected capacity error")
	}
	if _, err := NewSorter(dev, "Empty", 3, 4, 0); err == nil {
		t.Fatal("expected error for empty population")
	}
}
